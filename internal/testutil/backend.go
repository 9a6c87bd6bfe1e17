package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/leapstack-labs/flowtask/internal/flow"
)

// TaskStatus is a scripted job status returned by FakeBackend.
type TaskStatus struct {
	State  string `json:"state"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// SchemaFunc computes the columns the fake backend reports for a node.
type SchemaFunc func(nodeID string, g flow.Graph) ([]flow.Column, error)

// FakeBackend is an in-process implementation of the flow-task REST API.
type FakeBackend struct {
	URL string

	mu          sync.Mutex
	graphs      map[string]flow.Graph
	schema      SchemaFunc
	schemaFails int
	tasks       map[string][]TaskStatus
	preview     []TaskStatus
	run         []TaskStatus
	nextTask    int

	SchemaCalls int
	Saves       int
	Cancels     int
	Previews    []string
}

// NewFakeBackend starts a fake backend that is shut down with the test.
func NewFakeBackend(t testing.TB) *FakeBackend {
	t.Helper()
	b := &FakeBackend{
		graphs: make(map[string]flow.Graph),
		tasks:  make(map[string][]TaskStatus),
		preview: []TaskStatus{{
			State: "SUCCESS",
			Result: map[string]any{
				"columns":    []map[string]string{{"name": "id", "type": "integer"}},
				"rows":       []map[string]any{{"id": 1}},
				"row_count":  1,
				"elapsed_ms": 3.2,
			},
		}},
		run: []TaskStatus{{State: "RUNNING"}, {State: "SUCCESS", Result: map[string]any{}}},
	}

	r := chi.NewRouter()
	r.Route("/flow-tasks/{id}", func(r chi.Router) {
		r.Get("/graph", b.handleGetGraph)
		r.Put("/graph", b.handleSaveGraph)
		r.Post("/schema", b.handleSchema)
		r.Post("/preview", b.handlePreview)
		r.Post("/run", b.handleRun)
		r.Post("/run/cancel", b.handleCancel)
	})
	r.Get("/tasks/{task}/status", b.handleStatus)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	b.URL = srv.URL
	return b
}

// SetGraph stores the graph returned for a flow task.
func (b *FakeBackend) SetGraph(id string, g flow.Graph) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.graphs[id] = g.Clone()
}

// Graph returns the last saved graph of a flow task.
func (b *FakeBackend) Graph(id string) (flow.Graph, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	g, ok := b.graphs[id]
	return g, ok
}

// SetSchema overrides how schema probes are answered.
func (b *FakeBackend) SetSchema(fn SchemaFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.schema = fn
}

// FailSchema makes the next n schema probes fail with 503.
func (b *FakeBackend) FailSchema(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.schemaFails = n
}

// SetPreviewStatuses scripts the statuses of preview jobs submitted from now on.
func (b *FakeBackend) SetPreviewStatuses(st ...TaskStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.preview = st
}

// SetRunStatuses scripts the statuses of run jobs submitted from now on.
func (b *FakeBackend) SetRunStatuses(st ...TaskStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.run = st
}

// Counts returns the request counters under the lock.
func (b *FakeBackend) Counts() (schemaCalls, saves, cancels int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.SchemaCalls, b.Saves, b.Cancels
}

func (b *FakeBackend) handleGetGraph(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	g, ok := b.graphs[chi.URLParam(r, "id")]
	b.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "graph not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"nodes_json": g.Nodes,
		"edges_json": g.Edges,
		"updated_at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (b *FakeBackend) handleSaveGraph(w http.ResponseWriter, r *http.Request) {
	var g flow.Graph
	if err := json.NewDecoder(r.Body).Decode(&g); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	b.mu.Lock()
	b.graphs[chi.URLParam(r, "id")] = g
	b.Saves++
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

type probeRequest struct {
	NodeID string      `json:"node_id"`
	Nodes  []flow.Node `json:"nodes"`
	Edges  []flow.Edge `json:"edges"`
	Limit  int         `json:"limit"`
}

func (b *FakeBackend) handleSchema(w http.ResponseWriter, r *http.Request) {
	var req probeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	b.mu.Lock()
	b.SchemaCalls++
	fail := b.schemaFails > 0
	if fail {
		b.schemaFails--
	}
	fn := b.schema
	b.mu.Unlock()

	if fail {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "schema probe unavailable"})
		return
	}

	cols := []flow.Column{{Name: "id", Type: "integer"}}
	if fn != nil {
		var err error
		cols, err = fn(req.NodeID, flow.Graph{Nodes: req.Nodes, Edges: req.Edges})
		if err != nil {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
			return
		}
	}

	wire := make([]map[string]string, len(cols))
	for i, c := range cols {
		wire[i] = map[string]string{"column_name": c.Name, "data_type": c.Type}
	}
	writeJSON(w, http.StatusOK, map[string]any{"columns": wire})
}

func (b *FakeBackend) newTask(script []TaskStatus) string {
	b.nextTask++
	id := fmt.Sprintf("task-%d", b.nextTask)
	b.tasks[id] = append([]TaskStatus(nil), script...)
	return id
}

func (b *FakeBackend) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req probeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	b.mu.Lock()
	id := b.newTask(b.preview)
	b.Previews = append(b.Previews, req.NodeID)
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"task_id": id})
}

func (b *FakeBackend) handleRun(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	id := b.newTask(b.run)
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"celery_task_id": id})
}

func (b *FakeBackend) handleCancel(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	b.Cancels++
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (b *FakeBackend) handleStatus(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	seq, ok := b.tasks[chi.URLParam(r, "task")]
	var st TaskStatus
	if ok {
		st = TaskStatus{State: "PENDING"}
		if len(seq) > 0 {
			st = seq[0]
			if len(seq) > 1 {
				b.tasks[chi.URLParam(r, "task")] = seq[1:]
			}
		}
	}
	b.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "unknown task"})
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
