package events

import (
	"net/http"

	"github.com/starfederation/datastar-go/datastar"

	"github.com/leapstack-labs/flowtask/internal/editor"
	"github.com/leapstack-labs/flowtask/internal/notifier"
	"github.com/leapstack-labs/flowtask/internal/ui/features/common"
)

// Handlers provides the event stream handler.
type Handlers struct {
	editor *editor.Editor
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(ed *editor.Editor) *Handlers {
	return &Handlers{editor: ed}
}

// Stream is the long-lived SSE endpoint of the editor page. It sends the
// full state once, then patches only the signals whose kind changed.
// Bursts of changes are coalesced into one patch.
func (h *Handlers) Stream(w http.ResponseWriter, r *http.Request) {
	sub := h.editor.Store().Notifier().Subscribe(notifier.All)
	defer h.editor.Store().Notifier().Unsubscribe(sub)

	sse := datastar.NewSSE(w, r)

	var schemaSeq uint64
	if err := sse.MarshalAndPatchSignals(common.BuildState(h.editor, notifier.All)); err != nil {
		return
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.C:
			kinds := sub.Take()
			if kinds == 0 {
				continue
			}
			state := common.BuildState(h.editor, kinds)
			if kinds.Has(notifier.Schema) {
				schemaSeq++
				state.SchemaSeq = schemaSeq
			}
			if err := sse.MarshalAndPatchSignals(state); err != nil {
				if ctx.Err() != nil {
					return
				}
				_ = sse.ConsoleError(err)
			}
		}
	}
}
