package flags

import (
	"context"
	"net/http"

	"github.com/dmitrymomot/flagkit/pkg/apikey"
)

// APIKeyHeader carries the environment credential on evaluation requests.
const APIKeyHeader = "X-API-Key"

type contextKey struct{ name string }

var environmentContextKey = contextKey{"flags:environment"}

// EnvironmentFromContext returns the environment authenticated by
// APIKeyAuth, or nil when the request did not pass through it.
func EnvironmentFromContext(ctx context.Context) *apikey.Environment {
	env, _ := ctx.Value(environmentContextKey).(*apikey.Environment)
	return env
}

// withEnvironment stores the authenticated environment in the context.
func withEnvironment(ctx context.Context, env *apikey.Environment) context.Context {
	return context.WithValue(ctx, environmentContextKey, env)
}

// APIKeyAuth authenticates evaluation requests by the X-API-Key header and
// injects the resolved environment into the request context. Missing and
// invalid keys are indistinguishable on the wire.
func APIKeyAuth(keys *apikey.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(APIKeyHeader)
			if key == "" {
				writeError(w, http.StatusUnauthorized, codeUnauthorized, "missing or invalid API key")
				return
			}

			env, err := keys.Verify(r.Context(), key)
			if err != nil {
				writeError(w, http.StatusUnauthorized, codeUnauthorized, "missing or invalid API key")
				return
			}

			next.ServeHTTP(w, r.WithContext(withEnvironment(r.Context(), env)))
		})
	}
}
