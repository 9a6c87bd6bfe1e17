package common

import (
	"github.com/leapstack-labs/flowtask/internal/editor"
	"github.com/leapstack-labs/flowtask/internal/flow"
	"github.com/leapstack-labs/flowtask/internal/notifier"
	"github.com/leapstack-labs/flowtask/internal/store"
)

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Error  string         `json:"error"`
	Issues []editor.Issue `json:"issues,omitempty"`
}

// EditorState is the full client-side state of an open flow task. It is
// also the datastar signal set pushed over the event stream; partial
// updates carry only the keys that changed.
type EditorState struct {
	FlowTaskID string                `json:"flowTaskId,omitempty"`
	Nodes      []flow.Node           `json:"nodes,omitempty"`
	Edges      []flow.Edge           `json:"edges,omitempty"`
	Selected   *string               `json:"selected,omitempty"`
	Dirty      *bool                 `json:"dirty,omitempty"`
	Revision   uint64                `json:"revision,omitempty"`
	Preview    *store.PreviewSession `json:"preview,omitempty"`
	Run        *store.RunSession     `json:"run,omitempty"`
	SchemaSeq  uint64                `json:"schemaSeq,omitempty"`
}

// BuildState snapshots the parts of the editor named by kinds.
// notifier.All yields the full state.
func BuildState(ed *editor.Editor, kinds notifier.Kind) EditorState {
	st := ed.Store()
	out := EditorState{}

	if kinds == notifier.All {
		out.FlowTaskID = ed.FlowTaskID()
	}
	if kinds.Has(notifier.Graph) {
		g := st.Graph()
		out.Nodes, out.Edges = g.Nodes, g.Edges
		if out.Nodes == nil {
			out.Nodes = []flow.Node{}
		}
		if out.Edges == nil {
			out.Edges = []flow.Edge{}
		}
	}
	if kinds.Has(notifier.Selection) {
		sel := st.Selected()
		out.Selected = &sel
	}
	if kinds.Has(notifier.Dirty | notifier.Graph) {
		dirty := st.IsDirty()
		out.Dirty = &dirty
		out.Revision = st.Revision()
	}
	if kinds.Has(notifier.Preview) {
		if p, ok := st.Preview(); ok {
			out.Preview = &p
		} else {
			out.Preview = &store.PreviewSession{State: store.StateIdle}
		}
	}
	if kinds.Has(notifier.Run) {
		if r, ok := st.Run(); ok {
			out.Run = &r
		} else {
			out.Run = &store.RunSession{State: store.StateIdle}
		}
	}
	return out
}
