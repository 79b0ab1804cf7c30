package httpserver

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/flagkit/pkg/logger"
)

// HealthCheckHandler returns a HTTP handler usable for both liveness and
// readiness probes.
//
//   - Liveness: with no dependency functions it returns 200 OK and "ALIVE".
//   - Readiness: each supplied function is executed; if all succeed the
//     handler returns 200 OK and "READY", otherwise 500 and "NOT_READY".
func HealthCheckHandler(ctx context.Context, log *slog.Logger, funcs ...func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if len(funcs) == 0 {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ALIVE"))
			return
		}

		for _, f := range funcs {
			if err := f(ctx); err != nil {
				log.ErrorContext(ctx, "readiness check failed", logger.Error(err))
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("NOT_READY"))
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		w.Write([]byte("READY"))
	}
}
