package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/iconidentify/threadgrabba/internal/api/handler"
	mw "github.com/iconidentify/threadgrabba/internal/api/middleware"
)

// NewRouter creates the HTTP router. The /api/v1 routes are mounted only
// when apiKey is set.
func NewRouter(
	healthHandler *handler.HealthHandler,
	submissionHandler *handler.SubmissionHandler,
	taskHandler *handler.TaskHandler,
	jobHandler *handler.JobHandler,
	apiKey string,
) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.CleanPath)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Health endpoints (no auth)
	r.Get("/health", healthHandler.Live)
	r.Get("/ready", healthHandler.Ready)

	if apiKey == "" {
		return r
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(apiKey))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))

			r.Get("/stats", healthHandler.Stats)
			r.Post("/submissions", submissionHandler.Submit)
			r.Get("/jobs", jobHandler.List)
			r.Get("/jobs/{jobID}", jobHandler.Get)
			r.Get("/tasks", taskHandler.List)
			r.Get("/tasks/{taskID}", taskHandler.Get)
		})

		// A sweep re-runs whole pipelines and may take minutes.
		r.Post("/tasks/sweep", taskHandler.Sweep)
	})

	return r
}
