// Package features provides shared test utilities for UI feature tests.
package features

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/flowtask/internal/api"
	"github.com/leapstack-labs/flowtask/internal/editor"
	"github.com/leapstack-labs/flowtask/internal/flow"
	"github.com/leapstack-labs/flowtask/internal/jobs"
	"github.com/leapstack-labs/flowtask/internal/schema"
	"github.com/leapstack-labs/flowtask/internal/state"
	"github.com/leapstack-labs/flowtask/internal/testutil"
)

// FlowTaskID is the flow task every fixture opens.
const FlowTaskID = "ft"

// TestFixture holds all dependencies needed for UI handler tests.
type TestFixture struct {
	Backend *testutil.FakeBackend
	Editor  *editor.Editor
	State   *state.SQLiteStore
	Router  chi.Router
}

// OrdersGraph is input(orders) -> clean -> output.
func OrdersGraph() flow.Graph {
	return flow.Graph{
		Nodes: []flow.Node{
			{ID: "in", Type: flow.NodeInput, Data: flow.Data{"label": "Orders", "source_id": "pg", "table_name": "orders"}},
			{ID: "clean", Type: flow.NodeClean, Data: flow.Data{"select_columns": []any{"id", "total"}}},
			{ID: "out", Type: flow.NodeOutput, Data: flow.Data{"table_name": "orders_out"}},
			{ID: "note", Type: flow.NodeNote, Data: flow.Data{"text": "todo"}},
		},
		Edges: []flow.Edge{
			{ID: "e1", Source: "in", Target: "clean"},
			{ID: "e2", Source: "clean", Target: "out"},
		},
	}
}

// SetupTestFixture opens an editor on a fake backend seeded with g, backed by
// an in-memory state database. Autosave is off so tests control saving.
func SetupTestFixture(t *testing.T, g flow.Graph) *TestFixture {
	t.Helper()

	logger := testutil.NewTestLogger(t)

	st := state.NewSQLiteStore()
	require.NoError(t, st.Open(":memory:"))
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate())

	backend := testutil.NewFakeBackend(t)
	if len(g.Nodes) > 0 {
		backend.SetGraph(FlowTaskID, g)
	}

	opts := editor.Options{
		Schema: schema.Options{
			RetryDelay: time.Millisecond,
			MaxRetries: 1,
			IdleTTL:    time.Minute,
			FailureTTL: time.Minute,
		},
		Jobs: jobs.Options{
			PreviewLimit:        100,
			PreviewPollInterval: time.Millisecond,
			PreviewTimeout:      time.Minute,
			RunPollInterval:     time.Millisecond,
			Recorder:            st,
		},
		DisableAutosave: true,
		Drafts:          st,
	}

	client := api.NewClient(backend.URL, "", logger)
	ed, err := editor.Open(context.Background(), FlowTaskID, client, opts, logger)
	require.NoError(t, err)
	t.Cleanup(ed.Close)

	return &TestFixture{
		Backend: backend,
		Editor:  ed,
		State:   st,
		Router:  chi.NewRouter(),
	}
}

// Do sends a request through the fixture router. body is JSON-encoded unless
// it is nil.
func (f *TestFixture) Do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.Router.ServeHTTP(rec, req)
	return rec
}

// Decode unmarshals a recorded JSON response.
func Decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}
