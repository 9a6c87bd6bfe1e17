// Package canvas provides the graph editing endpoints of the UI.
package canvas

import (
	"github.com/go-chi/chi/v5"

	"github.com/leapstack-labs/flowtask/internal/editor"
)

// SetupRoutes registers the canvas feature routes.
func SetupRoutes(router chi.Router, ed *editor.Editor) error {
	handlers := NewHandlers(ed)

	router.Route("/api", func(r chi.Router) {
		r.Get("/state", handlers.State)
		r.Get("/graph", handlers.Graph)
		r.Post("/validate", handlers.Validate)
		r.Post("/save", handlers.Save)
		r.Post("/draft/recover", handlers.RecoverDraft)

		r.Post("/nodes", handlers.DropNode)
		r.Route("/nodes/{id}", func(r chi.Router) {
			r.Patch("/", handlers.UpdateNode)
			r.Delete("/", handlers.DeleteNode)
			r.Post("/select", handlers.Select)
			r.Post("/duplicate", handlers.Duplicate)
			r.Get("/menu", handlers.Menu)
			r.Post("/actions/{action}", handlers.Invoke)
			r.Get("/columns", handlers.Columns)
		})
		r.Post("/selection/clear", handlers.ClearSelection)

		r.Post("/edges", handlers.Connect)
		r.Post("/changes/nodes", handlers.NodeChanges)
		r.Post("/changes/edges", handlers.EdgeChanges)
	})

	return nil
}
