package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrymomot/flagkit/modules/flags"
	"github.com/dmitrymomot/flagkit/pkg/apikey"
	"github.com/dmitrymomot/flagkit/pkg/config"
	"github.com/dmitrymomot/flagkit/pkg/evalcache"
	"github.com/dmitrymomot/flagkit/pkg/httpserver"
	"github.com/dmitrymomot/flagkit/pkg/logger"
	"github.com/dmitrymomot/flagkit/pkg/pg"
	"github.com/dmitrymomot/flagkit/pkg/redis"
)

type appConfig struct {
	AppEnv        string `env:"APP_ENV" envDefault:"development"`
	ServiceName   string `env:"SERVICE_NAME" envDefault:"flagkit"`
	StorageDriver string `env:"STORAGE_DRIVER" envDefault:"memory"` // memory or postgres
	CacheDriver   string `env:"CACHE_DRIVER" envDefault:"memory"`   // memory, redis or none
}

func main() {
	if err := run(); err != nil {
		slog.Error("service terminated", logger.Error(err))
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var appCfg appConfig
	if err := config.Load(&appCfg); err != nil {
		return fmt.Errorf("load app config: %w", err)
	}

	log := logger.New(logger.WithEnvironment(appCfg.AppEnv, appCfg.ServiceName))
	logger.SetAsDefault(log)

	healthchecks := make([]func(context.Context) error, 0, 2)

	var storage flags.Storage
	switch appCfg.StorageDriver {
	case "postgres":
		var pgCfg pg.Config
		if err := config.Load(&pgCfg); err != nil {
			return fmt.Errorf("load postgres config: %w", err)
		}
		pool, err := pg.Connect(ctx, pgCfg)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pool.Close()
		healthchecks = append(healthchecks, pg.Healthcheck(pool))
		storage = flags.NewPgStorage(pool)
	case "memory":
		storage = flags.NewMemoryStorage()
	default:
		return fmt.Errorf("unknown storage driver %q", appCfg.StorageDriver)
	}

	var cache evalcache.Cache
	switch appCfg.CacheDriver {
	case "redis":
		var redisCfg redis.Config
		if err := config.Load(&redisCfg); err != nil {
			return fmt.Errorf("load redis config: %w", err)
		}
		client, err := redis.Connect(ctx, redisCfg)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer client.Close()
		healthchecks = append(healthchecks, redis.Healthcheck(client))
		cache = evalcache.NewRedis(client)
	case "memory":
		memCache := evalcache.NewMemory()
		defer memCache.Close()
		cache = memCache
	case "none":
		cache = evalcache.NewNoop()
	default:
		return fmt.Errorf("unknown cache driver %q", appCfg.CacheDriver)
	}

	keys := apikey.NewService(storage)
	service := flags.NewService(storage, storage, cache, flags.WithLogger(log))
	envs := flags.NewEnvironmentService(storage, keys)
	handlers := flags.NewHandlers(service, envs, storage, log)

	router := chi.NewRouter()
	router.Use(chimiddleware.Recoverer)
	router.Get("/health", httpserver.HealthCheckHandler(ctx, log, healthchecks...))
	router.Mount("/", flags.NewRouter(flags.RouterConfig{
		Handlers: handlers,
		Keys:     keys,
	}))

	var httpCfg httpserver.Config
	if err := config.Load(&httpCfg); err != nil {
		return fmt.Errorf("load http config: %w", err)
	}
	server := httpserver.NewFromConfig(httpCfg, httpserver.WithLogger(log))

	log.InfoContext(ctx, "starting flag service",
		slog.String("addr", httpCfg.Addr),
		slog.String("storage", appCfg.StorageDriver),
		slog.String("cache", appCfg.CacheDriver),
	)
	return server.Run(ctx, router)
}
