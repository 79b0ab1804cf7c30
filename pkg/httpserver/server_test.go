package httpserver_test

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/flagkit/pkg/httpserver"
	"github.com/dmitrymomot/flagkit/pkg/logger"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err, "unable to get free port")
	addr := l.Addr().String()
	require.NoError(t, l.Close(), "close listener")
	return addr
}

func TestRunAndShutdown(t *testing.T) {
	t.Parallel()
	addr := freeAddr(t)
	srv := httpserver.New(
		httpserver.WithAddr(addr),
		httpserver.WithShutdownTimeout(100*time.Millisecond),
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- srv.Run(ctx, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
	}()

	var resp *http.Response
	var err error
	for i := 0; i < 50; i++ {
		resp, err = http.Get("http://" + addr)
		if err == nil {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	require.NoError(t, err, "server never became reachable")
	require.NoError(t, resp.Body.Close())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		require.Fail(t, "run did not finish")
	}
	require.NoError(t, srv.Shutdown(context.Background()), "repeated shutdown is safe")
}

func TestNewFromConfig(t *testing.T) {
	t.Parallel()
	// Zero values must not panic; defaults apply instead.
	srv := httpserver.NewFromConfig(httpserver.Config{})
	require.NotNil(t, srv)

	srv = httpserver.NewFromConfig(httpserver.Config{
		Addr:            ":9090",
		ReadTimeout:     time.Second,
		WriteTimeout:    time.Second,
		IdleTimeout:     time.Second,
		ShutdownTimeout: time.Second,
	})
	require.NotNil(t, srv)
}

func TestHealthCheckHandler(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	log := logger.New(logger.WithLevel(10)) // above error, effectively silent

	t.Run("Liveness", func(t *testing.T) {
		t.Parallel()
		h := httpserver.HealthCheckHandler(ctx, log)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "ALIVE", rec.Body.String())
	})

	t.Run("Ready", func(t *testing.T) {
		t.Parallel()
		pass := func(context.Context) error { return nil }
		h := httpserver.HealthCheckHandler(ctx, log, pass, pass)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "READY", rec.Body.String())
	})

	t.Run("NotReady", func(t *testing.T) {
		t.Parallel()
		fail := func(context.Context) error { return assert.AnError }
		h := httpserver.HealthCheckHandler(ctx, log, fail)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "NOT_READY", rec.Body.String())
	})
}
