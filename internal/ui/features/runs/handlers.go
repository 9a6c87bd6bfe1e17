package runs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/leapstack-labs/flowtask/internal/editor"
	"github.com/leapstack-labs/flowtask/internal/store"
	"github.com/leapstack-labs/flowtask/internal/ui/features/common"
)

// defaultJobLimit caps the job history listing when no limit is given.
const defaultJobLimit = 50

// Handlers provides HTTP handlers for previews and runs.
type Handlers struct {
	editor  *editor.Editor
	history History
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(ed *editor.Editor, history History) *Handlers {
	return &Handlers{editor: ed, history: history}
}

// StartedResponse acknowledges a submitted job. Token identifies the
// session; the job id arrives later through the session state.
type StartedResponse struct {
	Token string `json:"token"`
}

// JobResponse is one entry of the job history.
type JobResponse struct {
	Kind     string    `json:"kind"`
	Token    string    `json:"token"`
	JobID    string    `json:"job_id,omitempty"`
	NodeID   string    `json:"node_id,omitempty"`
	State    string    `json:"state"`
	Error    string    `json:"error,omitempty"`
	RowCount int       `json:"row_count,omitempty"`
	At       time.Time `json:"at"`
}

// Preview returns the current preview session.
func (h *Handlers) Preview(w http.ResponseWriter, _ *http.Request) {
	p, ok := h.editor.Store().Preview()
	if !ok {
		p = store.PreviewSession{State: store.StateIdle}
	}
	common.WriteJSON(w, http.StatusOK, p)
}

// RequestPreview starts a preview of a node. The request returns as soon as
// the session exists; ?wait=true blocks until it finishes.
func (h *Handlers) RequestPreview(w http.ResponseWriter, r *http.Request) {
	token, err := h.editor.RequestPreview(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	if r.URL.Query().Get("wait") == "true" {
		if err := h.editor.Jobs().Wait(r.Context(), token); err != nil {
			common.WriteError(w, err)
			return
		}
		h.Preview(w, r)
		return
	}
	common.WriteJSON(w, http.StatusAccepted, StartedResponse{Token: token})
}

// DismissPreview closes the preview panel.
func (h *Handlers) DismissPreview(w http.ResponseWriter, _ *http.Request) {
	h.editor.Jobs().DismissPreview()
	w.WriteHeader(http.StatusNoContent)
}

// Run returns the current run session.
func (h *Handlers) Run(w http.ResponseWriter, _ *http.Request) {
	rs, ok := h.editor.Store().Run()
	if !ok {
		rs = store.RunSession{State: store.StateIdle}
	}
	common.WriteJSON(w, http.StatusOK, rs)
}

// RequestRun validates the graph and starts a full run. Validation
// problems are answered with 422 and the list of issues.
func (h *Handlers) RequestRun(w http.ResponseWriter, r *http.Request) {
	token, err := h.editor.RequestRun(r.Context())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.WriteJSON(w, http.StatusAccepted, StartedResponse{Token: token})
}

// CancelRun asks the backend to stop the active run.
func (h *Handlers) CancelRun(w http.ResponseWriter, r *http.Request) {
	if err := h.editor.Jobs().CancelRun(r.Context()); err != nil {
		common.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// Jobs lists recorded job events for the open flow task, newest first.
func (h *Handlers) Jobs(w http.ResponseWriter, r *http.Request) {
	out := []JobResponse{}
	if h.history == nil {
		common.WriteJSON(w, http.StatusOK, out)
		return
	}

	limit := defaultJobLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			common.WriteError(w, common.ErrBadRequest)
			return
		}
		limit = n
	}

	events, err := h.history.ListJobs(r.Context(), h.editor.FlowTaskID(), limit)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	for _, ev := range events {
		out = append(out, JobResponse{
			Kind:     string(ev.Kind),
			Token:    ev.Token,
			JobID:    ev.JobID,
			NodeID:   ev.NodeID,
			State:    string(ev.State),
			Error:    ev.Error,
			RowCount: ev.RowCount,
			At:       ev.At,
		})
	}
	common.WriteJSON(w, http.StatusOK, out)
}
