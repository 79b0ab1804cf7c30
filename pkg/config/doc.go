// Package config loads typed configuration structs from environment
// variables, with optional .env file support for local development.
//
// Each subsystem declares its own Config struct with `env:` tags and loads it
// independently, so packages stay decoupled from a central configuration
// registry:
//
//	type CacheConfig struct {
//		TTL           time.Duration `env:"EVALCACHE_TTL" envDefault:"60s"`
//		SweepInterval time.Duration `env:"EVALCACHE_SWEEP_INTERVAL" envDefault:"1m"`
//	}
//
//	var cfg CacheConfig
//	config.MustLoad(&cfg)
//
// Load caches each configuration type after the first successful parse, so
// repeated loads of the same type are cheap and consistent.
package config
