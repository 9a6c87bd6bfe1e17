// Package runs provides the preview and pipeline run endpoints of the UI.
package runs

import (
	"context"

	"github.com/go-chi/chi/v5"

	"github.com/leapstack-labs/flowtask/internal/editor"
	"github.com/leapstack-labs/flowtask/internal/jobs"
)

// History lists recorded job events. It is optional.
type History interface {
	ListJobs(ctx context.Context, flowTaskID string, limit int) ([]jobs.Event, error)
}

// SetupRoutes registers the runs feature routes.
func SetupRoutes(router chi.Router, ed *editor.Editor, history History) error {
	handlers := NewHandlers(ed, history)

	router.Route("/api/preview", func(r chi.Router) {
		r.Get("/", handlers.Preview)
		r.Delete("/", handlers.DismissPreview)
		r.Post("/{id}", handlers.RequestPreview)
	})

	router.Route("/api/run", func(r chi.Router) {
		r.Get("/", handlers.Run)
		r.Post("/", handlers.RequestRun)
		r.Post("/cancel", handlers.CancelRun)
	})

	router.Get("/api/jobs", handlers.Jobs)

	return nil
}
