package canvas

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/leapstack-labs/flowtask/internal/editor"
	"github.com/leapstack-labs/flowtask/internal/flow"
	"github.com/leapstack-labs/flowtask/internal/notifier"
	"github.com/leapstack-labs/flowtask/internal/schema"
	"github.com/leapstack-labs/flowtask/internal/store"
	"github.com/leapstack-labs/flowtask/internal/ui/features/common"
)

// Handlers provides HTTP handlers for the canvas feature.
type Handlers struct {
	editor *editor.Editor
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(ed *editor.Editor) *Handlers {
	return &Handlers{editor: ed}
}

// DropRequest is the body of a palette drop.
type DropRequest struct {
	Type     flow.NodeType `json:"type"`
	Position flow.Position `json:"position"`
}

// ColumnsResponse is the column list shown on a node form.
type ColumnsResponse struct {
	NodeID    string        `json:"node_id"`
	Columns   []flow.Column `json:"columns"`
	IsLoading bool          `json:"is_loading"`
	Error     string        `json:"error,omitempty"`
	Key       string        `json:"key,omitempty"`
}

// JoinColumnsResponse lists both inputs of a join or union form.
type JoinColumnsResponse struct {
	Left    ColumnsResponse `json:"left"`
	Right   ColumnsResponse `json:"right"`
	Warning string          `json:"warning,omitempty"`
}

// ValidateResponse reports whether the graph can be run.
type ValidateResponse struct {
	Runnable bool           `json:"runnable"`
	Issues   []editor.Issue `json:"issues"`
}

// State returns the full editor state.
func (h *Handlers) State(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSON(w, http.StatusOK, common.BuildState(h.editor, notifier.All))
}

// Graph returns the current nodes and edges.
func (h *Handlers) Graph(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSON(w, http.StatusOK, h.editor.Store().Graph())
}

// Validate lists the problems that would block a run.
func (h *Handlers) Validate(w http.ResponseWriter, _ *http.Request) {
	issues := h.editor.ValidateForRun()
	if issues == nil {
		issues = []editor.Issue{}
	}
	common.WriteJSON(w, http.StatusOK, ValidateResponse{Runnable: len(issues) == 0, Issues: issues})
}

// Save persists the graph to the backend.
func (h *Handlers) Save(w http.ResponseWriter, r *http.Request) {
	if err := h.editor.Save(r.Context()); err != nil {
		common.WriteError(w, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, map[string]any{
		"dirty":    h.editor.Store().IsDirty(),
		"revision": h.editor.Store().Revision(),
	})
}

// RecoverDraft replaces the graph with the local draft, if one exists.
func (h *Handlers) RecoverDraft(w http.ResponseWriter, r *http.Request) {
	ok, err := h.editor.RecoverDraft(r.Context())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, map[string]bool{"recovered": ok})
}

// DropNode adds a node from the palette.
func (h *Handlers) DropNode(w http.ResponseWriter, r *http.Request) {
	var req DropRequest
	if err := common.DecodeJSON(w, r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	n, err := h.editor.DropNode(req.Type, req.Position)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.WriteJSON(w, http.StatusCreated, n)
}

// UpdateNode merges a form patch into a node's data.
func (h *Handlers) UpdateNode(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.exists(w, id) {
		return
	}
	var patch flow.Data
	if err := common.DecodeJSON(w, r, &patch); err != nil {
		common.WriteError(w, err)
		return
	}
	h.editor.UpdateNode(id, patch)
	n, _ := h.editor.Store().Node(id)
	common.WriteJSON(w, http.StatusOK, n)
}

// DeleteNode removes a node and its edges.
func (h *Handlers) DeleteNode(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.exists(w, id) {
		return
	}
	h.editor.DeleteNode(id)
	w.WriteHeader(http.StatusNoContent)
}

// Select makes a node the selected one.
func (h *Handlers) Select(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.exists(w, id) {
		return
	}
	h.editor.Click(id)
	w.WriteHeader(http.StatusNoContent)
}

// ClearSelection handles a click on the empty pane.
func (h *Handlers) ClearSelection(w http.ResponseWriter, _ *http.Request) {
	h.editor.ClickPane()
	w.WriteHeader(http.StatusNoContent)
}

// Duplicate copies a node next to the original.
func (h *Handlers) Duplicate(w http.ResponseWriter, r *http.Request) {
	n, err := h.editor.Duplicate(chi.URLParam(r, "id"))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.WriteJSON(w, http.StatusCreated, n)
}

// Menu lists the context-menu actions of a node.
func (h *Handlers) Menu(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.exists(w, id) {
		return
	}
	common.WriteJSON(w, http.StatusOK, map[string][]editor.Action{"actions": h.editor.ContextMenu(id)})
}

// Invoke runs a context-menu action.
func (h *Handlers) Invoke(w http.ResponseWriter, r *http.Request) {
	action := editor.Action(chi.URLParam(r, "action"))
	if err := h.editor.Invoke(r.Context(), action, chi.URLParam(r, "id")); err != nil {
		common.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// Connect adds the edge of a connect gesture. Rejected connections are
// reported with 422 so the canvas can drop the provisional edge.
func (h *Handlers) Connect(w http.ResponseWriter, r *http.Request) {
	var c flow.Connection
	if err := common.DecodeJSON(w, r, &c); err != nil {
		common.WriteError(w, err)
		return
	}
	e, err := h.editor.ConnectHandles(c)
	if err != nil {
		common.WriteJSON(w, http.StatusUnprocessableEntity, common.ErrorResponse{Error: err.Error()})
		return
	}
	common.WriteJSON(w, http.StatusCreated, e)
}

// NodeChanges applies a batch of node deltas from the canvas.
func (h *Handlers) NodeChanges(w http.ResponseWriter, r *http.Request) {
	var changes []store.NodeChange
	if err := common.DecodeJSON(w, r, &changes); err != nil {
		common.WriteError(w, err)
		return
	}
	h.editor.Store().ApplyNodeChanges(changes)
	w.WriteHeader(http.StatusNoContent)
}

// EdgeChanges applies a batch of edge deltas from the canvas.
func (h *Handlers) EdgeChanges(w http.ResponseWriter, r *http.Request) {
	var changes []store.EdgeChange
	if err := common.DecodeJSON(w, r, &changes); err != nil {
		common.WriteError(w, err)
		return
	}
	h.editor.Store().ApplyEdgeChanges(changes)
	w.WriteHeader(http.StatusNoContent)
}

// Columns resolves the columns shown on a node form. mode selects the node's
// own output, its upstream input, or both inputs of a join. With wait=false
// a cache miss answers immediately with is_loading set.
func (h *Handlers) Columns(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.exists(w, id) {
		return
	}
	ctx := r.Context()
	q := r.URL.Query()

	switch mode := q.Get("mode"); mode {
	case "", "output":
		if q.Get("wait") == "false" {
			common.WriteJSON(w, http.StatusOK, columnsResponse(id, h.editor.PeekNodeColumns(id)))
			return
		}
		common.WriteJSON(w, http.StatusOK, columnsResponse(id, h.editor.NodeColumns(ctx, id)))
	case "upstream":
		up, _ := h.editor.Store().Graph().Upstream(id)
		common.WriteJSON(w, http.StatusOK, columnsResponse(up, h.editor.UpstreamColumns(ctx, id)))
	case "join":
		in := h.editor.JoinColumns(ctx, id)
		common.WriteJSON(w, http.StatusOK, JoinColumnsResponse{
			Left:    columnsResponse(in.LeftNode, in.Left),
			Right:   columnsResponse(in.RightNode, in.Right),
			Warning: in.Warning,
		})
	default:
		common.WriteError(w, fmt.Errorf("%w: unknown mode %q", common.ErrBadRequest, mode))
	}
}

func (h *Handlers) exists(w http.ResponseWriter, id string) bool {
	if _, ok := h.editor.Store().Node(id); ok {
		return true
	}
	common.WriteError(w, fmt.Errorf("%w: %s", editor.ErrUnknownNode, id))
	return false
}

func columnsResponse(id string, res schema.Result) ColumnsResponse {
	out := ColumnsResponse{
		NodeID:    id,
		Columns:   res.Columns,
		IsLoading: res.IsLoading,
		Key:       res.Key,
	}
	if out.Columns == nil {
		out.Columns = []flow.Column{}
	}
	if res.IsError && res.Err != nil {
		out.Error = res.Err.Error()
	}
	return out
}
