// Package router sets up HTTP routes for the UI server.
package router

import (
	"github.com/go-chi/chi/v5"

	"github.com/leapstack-labs/flowtask/internal/editor"
	canvasFeature "github.com/leapstack-labs/flowtask/internal/ui/features/canvas"
	eventsFeature "github.com/leapstack-labs/flowtask/internal/ui/features/events"
	runsFeature "github.com/leapstack-labs/flowtask/internal/ui/features/runs"
	"github.com/leapstack-labs/flowtask/internal/ui/resources"
)

// SetupRoutes configures all routes for the UI server. history may be nil.
func SetupRoutes(router chi.Router, ed *editor.Editor, history runsFeature.History) error {
	// Static assets
	router.Handle("/static/*", resources.Handler())
	router.Handle("/", resources.Index())

	// Feature routes
	if err := canvasFeature.SetupRoutes(router, ed); err != nil {
		return err
	}

	if err := runsFeature.SetupRoutes(router, ed, history); err != nil {
		return err
	}

	if err := eventsFeature.SetupRoutes(router, ed); err != nil {
		return err
	}

	return nil
}
