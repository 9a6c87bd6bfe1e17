// Package events streams editor state to the browser over SSE.
package events

import (
	"github.com/go-chi/chi/v5"

	"github.com/leapstack-labs/flowtask/internal/editor"
)

// SetupRoutes registers the event stream route.
func SetupRoutes(router chi.Router, ed *editor.Editor) error {
	handlers := NewHandlers(ed)

	router.Get("/api/events", handlers.Stream)

	return nil
}
