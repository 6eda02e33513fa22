// Package api exposes the lookup pipeline and the size classifier over
// HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sells-group/company-aggregator/internal/classify"
	"github.com/sells-group/company-aggregator/internal/model"
	"github.com/sells-group/company-aggregator/internal/monitoring"
)

// Invoker runs one lookup. *pipeline.Pipeline satisfies it.
type Invoker interface {
	Invoke(ctx context.Context, userInput string) (*model.PipelineState, error)
}

// HealthChecker reports service health.
type HealthChecker interface {
	Check() monitoring.HealthReport
}

// Deps are the collaborators served by the router.
type Deps struct {
	Pipeline   Invoker
	Classifier classify.Classifier
	Health     HealthChecker

	// Metrics serves /metrics when set.
	Metrics http.Handler

	CORSOrigins []string

	// RequestTimeout bounds a single lookup request. Zero leaves it to
	// the pipeline's own run timeout.
	RequestTimeout time.Duration
}

// NewRouter builds the HTTP handler.
func NewRouter(deps Deps) http.Handler {
	if deps.Classifier == nil {
		deps.Classifier = classify.Local{}
	}
	origins := deps.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	h := &handlers{deps: deps}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", RequestIDHeader},
		ExposedHeaders: []string{RequestIDHeader, RunIDHeader},
		MaxAge:         300,
	}))

	r.Get("/health", h.health)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Post("/agent/aggregator", h.aggregate)
	r.Post("/company/classification", h.classification)

	return r
}
