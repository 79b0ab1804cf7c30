// Package httpserver wraps http.Server with graceful shutdown, signal
// handling and a health endpoint helper, so the evaluation service's main
// can stay a thin wiring layer.
//
// Usage:
//
//	srv := httpserver.NewFromConfig(cfg, httpserver.WithLogger(log))
//	if err := srv.Run(ctx, router); err != nil {
//		log.Error("server stopped", logger.Error(err))
//	}
//
// Run blocks until the context is cancelled, SIGINT/SIGTERM arrives, or the
// listener fails, then drains in-flight requests within the configured
// shutdown timeout.
package httpserver
