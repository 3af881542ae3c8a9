package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	Handler *Handler
	Metrics MetricsRecorder // nil disables HTTP metrics
	Logger  *zap.Logger
	APIKey  string
}

// NewRouter creates the serve mode router.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := cfg.Handler

	r := chi.NewRouter()

	// Outermost first.
	r.Use(RecoveryMiddleware(logger))
	r.Use(middleware.RequestID)
	r.Use(LoggingMiddleware(logger))
	if cfg.Metrics != nil {
		r.Use(MetricsMiddleware(cfg.Metrics))
	}
	r.Use(ContentTypeMiddleware())

	// Probes are unauthenticated.
	r.Get("/livez", h.Livez)
	r.Get("/readyz", h.Readyz)

	r.Route("/v1", func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.APIKey))

		r.Post("/deployments", h.CreateDeployment)

		r.Get("/jobs", h.ListJobs)
		r.Get("/jobs/{jobId}", h.GetJob)
		r.Post("/jobs/{jobId}/cancel", h.CancelJob)
		r.Post("/jobs/{jobId}/savepoints", h.CreateSavepoint)

		r.Get("/jars", h.ListJars)
		r.Delete("/jars/{jarId}", h.DeleteJar)
	})

	return r
}
