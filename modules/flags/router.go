package flags

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/flagkit/pkg/apikey"
)

// RouterConfig bundles the dependencies of the flags HTTP surface.
type RouterConfig struct {
	Handlers *Handlers
	Keys     *apikey.Service

	// SessionAuth guards the management endpoints. It is supplied by the
	// host application; when nil the management surface is mounted without
	// authentication, which is only acceptable behind an external gateway.
	SessionAuth func(http.Handler) http.Handler
}

// NewRouter mounts the evaluation surface behind API-key auth and the
// management surface behind the injected session auth.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(APIKeyAuth(cfg.Keys))
		r.Post("/evaluate", cfg.Handlers.Evaluate)
		r.Post("/evaluate/batch", cfg.Handlers.EvaluateBatch)
	})

	r.Group(func(r chi.Router) {
		if cfg.SessionAuth != nil {
			r.Use(cfg.SessionAuth)
		}
		r.Post("/flags", cfg.Handlers.CreateFlag)
		r.Put("/flags/{flagID}/environments/{environmentID}/rule", cfg.Handlers.UpdateRule)
		r.Post("/environments", cfg.Handlers.CreateEnvironment)
		r.Post("/environments/{environmentID}/rotate-key", cfg.Handlers.RotateKey)
		r.Delete("/environments/{environmentID}", cfg.Handlers.DeleteEnvironment)
	})

	return r
}
