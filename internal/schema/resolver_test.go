package schema

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/flowtask/internal/api"
	"github.com/leapstack-labs/flowtask/internal/dag"
	"github.com/leapstack-labs/flowtask/internal/flow"
	"github.com/leapstack-labs/flowtask/internal/testutil"
)

type fakeBackend struct {
	mu    sync.Mutex
	calls []api.SchemaRequest
	fn    func(n int, req api.SchemaRequest) ([]flow.Column, error)
}

func (b *fakeBackend) ResolveSchema(_ context.Context, _ string, req api.SchemaRequest) ([]flow.Column, error) {
	b.mu.Lock()
	b.calls = append(b.calls, req)
	n := len(b.calls)
	b.mu.Unlock()
	if b.fn == nil {
		return []flow.Column{{Name: "id", Type: "integer"}}, nil
	}
	return b.fn(n, req)
}

func (b *fakeBackend) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.calls)
}

func testOptions() Options {
	return Options{
		RetryDelay: time.Millisecond,
		MaxRetries: 1,
		IdleTTL:    time.Minute,
		FailureTTL: time.Minute,
	}
}

func newTestResolver(t *testing.T, b Backend, opts Options) *Resolver {
	t.Helper()
	r := New(b, opts, testutil.NewTestLogger(t))
	t.Cleanup(r.Close)
	return r
}

// ordersGraph is input(orders) -> clean(select id,total) -> output.
func ordersGraph() flow.Graph {
	return flow.Graph{
		Nodes: []flow.Node{
			{ID: "in", Type: flow.NodeInput, Data: flow.Data{"source_id": "pg", "table_name": "orders"}},
			{ID: "clean", Type: flow.NodeClean, Data: flow.Data{
				"select_columns": []any{"id", "total"},
				"filters":        []any{map[string]any{"column": "total", "operator": ">", "value": 10}},
			}},
			{ID: "out", Type: flow.NodeOutput},
		},
		Edges: []flow.Edge{
			{ID: "e1", Source: "in", Target: "clean"},
			{ID: "e2", Source: "clean", Target: "out"},
		},
	}
}

func setData(g flow.Graph, id, key string, value any) flow.Graph {
	g = g.Clone()
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			g.Nodes[i].Data[key] = value
		}
	}
	return g
}

func TestResolver_Disabled(t *testing.T) {
	b := &fakeBackend{}
	r := newTestResolver(t, b, testOptions())

	unconfigured := ordersGraph()
	unconfigured.Nodes[0].Data = flow.Data{"table_name": "orders"}

	tests := []struct {
		name string
		req  Request
	}{
		{"no flow task", Request{NodeID: "out", Graph: ordersGraph()}},
		{"no node", Request{FlowTaskID: "ft", Graph: ordersGraph()}},
		{"empty graph", Request{FlowTaskID: "ft", NodeID: "out"}},
		{"no configured input", Request{FlowTaskID: "ft", NodeID: "out", Graph: unconfigured}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := r.Resolve(context.Background(), tt.req)
			assert.Equal(t, Result{}, res)
			assert.Equal(t, Result{}, r.Peek(tt.req))
		})
	}
	assert.Zero(t, b.Calls())
}

func TestResolver_FilterEditHitsCache(t *testing.T) {
	b := &fakeBackend{}
	r := newTestResolver(t, b, testOptions())
	ctx := context.Background()

	g := ordersGraph()
	res := r.Resolve(ctx, Request{FlowTaskID: "ft", NodeID: "out", Graph: g})
	require.False(t, res.IsError)
	assert.Equal(t, []flow.Column{{Name: "id", Type: "integer"}}, res.Columns)
	assert.Equal(t, 1, b.Calls())

	// Filter edits do not change the output shape
	filtered := setData(g, "clean", "filters", []any{map[string]any{"column": "total", "operator": "<", "value": 5}})
	res = r.Resolve(ctx, Request{FlowTaskID: "ft", NodeID: "out", Graph: filtered})
	assert.False(t, res.IsError)
	assert.Equal(t, 1, b.Calls())

	// Narrowing the selection does
	narrowed := setData(g, "clean", "select_columns", []any{"id"})
	res = r.Resolve(ctx, Request{FlowTaskID: "ft", NodeID: "out", Graph: narrowed})
	assert.False(t, res.IsError)
	assert.Equal(t, 2, b.Calls())

	// The backend receives the full graph and the target
	b.mu.Lock()
	last := b.calls[1]
	b.mu.Unlock()
	assert.Equal(t, "out", last.NodeID)
	assert.Len(t, last.Nodes, 3)
	assert.Len(t, last.Edges, 2)
}

func TestResolver_CacheScopedByNode(t *testing.T) {
	b := &fakeBackend{}
	r := newTestResolver(t, b, testOptions())
	ctx := context.Background()
	g := ordersGraph()

	r.Resolve(ctx, Request{FlowTaskID: "ft", NodeID: "out", Graph: g})
	r.Resolve(ctx, Request{FlowTaskID: "ft", NodeID: "clean", Graph: g})
	r.Resolve(ctx, Request{FlowTaskID: "other", NodeID: "out", Graph: g})
	assert.Equal(t, 3, b.Calls())

	r.Resolve(ctx, Request{FlowTaskID: "ft", NodeID: "clean", Graph: g})
	assert.Equal(t, 3, b.Calls())
	assert.Equal(t, int64(1), r.Stats().Hits)
}

func TestResolver_RetriesOnceOnServerError(t *testing.T) {
	b := &fakeBackend{fn: func(n int, _ api.SchemaRequest) ([]flow.Column, error) {
		if n == 1 {
			return nil, &api.StatusError{StatusCode: http.StatusServiceUnavailable}
		}
		return []flow.Column{{Name: "total", Type: "numeric"}}, nil
	}}
	r := newTestResolver(t, b, testOptions())

	res := r.Resolve(context.Background(), Request{FlowTaskID: "ft", NodeID: "out", Graph: ordersGraph()})
	assert.False(t, res.IsError)
	assert.Equal(t, []flow.Column{{Name: "total", Type: "numeric"}}, res.Columns)
	assert.Equal(t, 2, b.Calls())
}

func TestResolver_GivesUpAfterRetry(t *testing.T) {
	b := &fakeBackend{fn: func(int, api.SchemaRequest) ([]flow.Column, error) {
		return nil, errors.New("connection reset")
	}}
	r := newTestResolver(t, b, testOptions())
	req := Request{FlowTaskID: "ft", NodeID: "out", Graph: ordersGraph()}

	res := r.Resolve(context.Background(), req)
	assert.True(t, res.IsError)
	assert.Empty(t, res.Columns)
	assert.NotNil(t, res.Columns)
	assert.Equal(t, 2, b.Calls())

	// Failure is remembered
	res = r.Peek(req)
	assert.True(t, res.IsError)
	assert.False(t, res.IsLoading)
	assert.Equal(t, 2, b.Calls())
}

func TestResolver_ClientErrorNotRetried(t *testing.T) {
	b := &fakeBackend{fn: func(int, api.SchemaRequest) ([]flow.Column, error) {
		return nil, &api.StatusError{StatusCode: http.StatusUnprocessableEntity, Message: "bad sql"}
	}}
	r := newTestResolver(t, b, testOptions())

	res := r.Resolve(context.Background(), Request{FlowTaskID: "ft", NodeID: "out", Graph: ordersGraph()})
	assert.True(t, res.IsError)
	var se *api.StatusError
	assert.True(t, errors.As(res.Err, &se))
	assert.Equal(t, 1, b.Calls())
}

func TestResolver_FailureMemoExpires(t *testing.T) {
	fail := true
	var mu sync.Mutex
	b := &fakeBackend{fn: func(int, api.SchemaRequest) ([]flow.Column, error) {
		mu.Lock()
		defer mu.Unlock()
		if fail {
			return nil, &api.StatusError{StatusCode: http.StatusBadRequest}
		}
		return []flow.Column{{Name: "id"}}, nil
	}}
	r := newTestResolver(t, b, testOptions())
	now := time.Now()
	r.now = func() time.Time { return now }
	req := Request{FlowTaskID: "ft", NodeID: "out", Graph: ordersGraph()}

	assert.True(t, r.Resolve(context.Background(), req).IsError)

	mu.Lock()
	fail = false
	mu.Unlock()
	assert.True(t, r.Resolve(context.Background(), req).IsError)
	assert.Equal(t, 1, b.Calls())

	now = now.Add(2 * time.Minute)
	res := r.Resolve(context.Background(), req)
	assert.False(t, res.IsError)
	assert.Equal(t, 2, b.Calls())
}

func TestResolver_CycleIsErrorWithoutNetwork(t *testing.T) {
	b := &fakeBackend{}
	r := newTestResolver(t, b, testOptions())

	g := ordersGraph()
	g.Edges = append(g.Edges, flow.Edge{ID: "back", Source: "out", Target: "in"})

	res := r.Resolve(context.Background(), Request{FlowTaskID: "ft", NodeID: "out", Graph: g})
	assert.True(t, res.IsError)
	var cycleErr *dag.CycleError
	assert.True(t, errors.As(res.Err, &cycleErr))
	assert.Zero(t, b.Calls())
}

func TestResolver_ConcurrentRequestsCollapse(t *testing.T) {
	release := make(chan struct{})
	b := &fakeBackend{fn: func(int, api.SchemaRequest) ([]flow.Column, error) {
		<-release
		return []flow.Column{{Name: "id"}}, nil
	}}
	r := newTestResolver(t, b, testOptions())
	req := Request{FlowTaskID: "ft", NodeID: "out", Graph: ordersGraph()}

	const n = 5
	var wg sync.WaitGroup
	results := make([]Result, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = r.Resolve(context.Background(), req)
		}()
	}

	require.Eventually(t, func() bool { return r.Stats().Misses == n }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, 1, b.Calls())
	for _, res := range results {
		assert.Equal(t, []flow.Column{{Name: "id"}}, res.Columns)
	}
}

func TestResolver_PeekLoadsInBackground(t *testing.T) {
	updated := make(chan struct{}, 1)
	opts := testOptions()
	opts.OnUpdate = func() { updated <- struct{}{} }

	b := &fakeBackend{}
	r := newTestResolver(t, b, opts)
	req := Request{FlowTaskID: "ft", NodeID: "out", Graph: ordersGraph()}

	res := r.Peek(req)
	assert.True(t, res.IsLoading)
	assert.NotEmpty(t, res.Key)

	select {
	case <-updated:
	case <-time.After(time.Second):
		t.Fatal("background fetch did not complete")
	}

	res = r.Peek(req)
	assert.False(t, res.IsLoading)
	assert.Equal(t, []flow.Column{{Name: "id", Type: "integer"}}, res.Columns)
	assert.Equal(t, 1, b.Calls())
}

func TestResolver_EvictIdleEntries(t *testing.T) {
	b := &fakeBackend{}
	r := newTestResolver(t, b, testOptions())
	now := time.Now()
	r.now = func() time.Time { return now }
	g := ordersGraph()

	r.Resolve(context.Background(), Request{FlowTaskID: "ft", NodeID: "out", Graph: g})
	r.Resolve(context.Background(), Request{FlowTaskID: "ft", NodeID: "clean", Graph: g})
	require.Equal(t, 2, r.Stats().Entries)

	now = now.Add(45 * time.Second)
	r.Resolve(context.Background(), Request{FlowTaskID: "ft", NodeID: "clean", Graph: g})

	now = now.Add(30 * time.Second)
	assert.Equal(t, 1, r.Evict())
	assert.Equal(t, 1, r.Stats().Entries)
}

func TestResolver_Invalidate(t *testing.T) {
	b := &fakeBackend{}
	r := newTestResolver(t, b, testOptions())
	req := Request{FlowTaskID: "ft", NodeID: "out", Graph: ordersGraph()}

	r.Resolve(context.Background(), req)
	r.Invalidate("ft")
	r.Resolve(context.Background(), req)
	assert.Equal(t, 2, b.Calls())
}

func TestResolver_Closed(t *testing.T) {
	b := &fakeBackend{}
	r := New(b, testOptions(), testutil.NewTestLogger(t))
	r.Close()

	res := r.Resolve(context.Background(), Request{FlowTaskID: "ft", NodeID: "out", Graph: ordersGraph()})
	assert.True(t, res.IsError)
	assert.ErrorIs(t, res.Err, ErrClosed)
	assert.Zero(t, b.Calls())
}

func TestResolver_RunStopsOnCancel(t *testing.T) {
	r := newTestResolver(t, &fakeBackend{}, testOptions())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}

func TestNew_Defaults(t *testing.T) {
	r := New(&fakeBackend{}, Options{}, nil)
	defer r.Close()
	assert.Equal(t, DefaultOptions().MaxRetries, r.opts.MaxRetries)
	assert.Equal(t, DefaultOptions().RetryDelay, r.opts.RetryDelay)

	noRetry := New(&fakeBackend{}, Options{IdleTTL: time.Minute}, nil)
	defer noRetry.Close()
	assert.Zero(t, noRetry.opts.MaxRetries, "explicit options keep a zero retry count")
	assert.Equal(t, DefaultOptions().FailureTTL, noRetry.opts.FailureTTL)
}

func TestResolver_PeekConcurrentWithClose(t *testing.T) {
	g := ordersGraph()
	for range 50 {
		r := New(&fakeBackend{}, testOptions(), testutil.NewTestLogger(t))

		var wg sync.WaitGroup
		for i := range 4 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				edited := setData(g, "clean", "select_columns", []any{"id", i})
				res := r.Peek(Request{FlowTaskID: "ft", NodeID: "out", Graph: edited})
				assert.True(t, res.IsLoading || res.IsError || len(res.Columns) > 0)
			}()
		}
		r.Close()
		wg.Wait()

		res := r.Peek(Request{FlowTaskID: "ft", NodeID: "clean", Graph: setData(g, "clean", "drop_columns", []any{"x"})})
		assert.ErrorIs(t, res.Err, ErrClosed)
	}
}
