package runs

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/flowtask/internal/flow"
	"github.com/leapstack-labs/flowtask/internal/store"
	"github.com/leapstack-labs/flowtask/internal/testutil"
	"github.com/leapstack-labs/flowtask/internal/ui/features"
	"github.com/leapstack-labs/flowtask/internal/ui/features/common"
)

func setupTest(t *testing.T, g flow.Graph) *features.TestFixture {
	t.Helper()
	f := features.SetupTestFixture(t, g)
	require.NoError(t, SetupRoutes(f.Router, f.Editor, f.State))
	return f
}

func waitFor(t *testing.T, f *features.TestFixture, token string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.Editor.Jobs().Wait(ctx, token))
}

func TestPreview_Idle(t *testing.T) {
	f := setupTest(t, features.OrdersGraph())

	rec := f.Do(t, http.MethodGet, "/api/preview", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, store.StateIdle, features.Decode[store.PreviewSession](t, rec).State)
}

func TestRequestPreview_Wait(t *testing.T) {
	f := setupTest(t, features.OrdersGraph())

	rec := f.Do(t, http.MethodPost, "/api/preview/in?wait=true", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	p := features.Decode[store.PreviewSession](t, rec)
	assert.Equal(t, "in", p.NodeID)
	assert.Equal(t, "Orders", p.NodeLabel)
	assert.Equal(t, store.StateSucceeded, p.State)
	require.NotNil(t, p.Result)
	assert.Equal(t, 1, p.Result.RowCount)
}

func TestRequestPreview_Async(t *testing.T) {
	f := setupTest(t, features.OrdersGraph())

	rec := f.Do(t, http.MethodPost, "/api/preview/clean", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	started := features.Decode[StartedResponse](t, rec)
	require.NotEmpty(t, started.Token)

	waitFor(t, f, started.Token)
	p, ok := f.Editor.Store().Preview()
	require.True(t, ok)
	assert.Equal(t, store.StateSucceeded, p.State)

	rec = f.Do(t, http.MethodDelete, "/api/preview", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	_, ok = f.Editor.Store().Preview()
	assert.False(t, ok)
}

func TestRequestPreview_Errors(t *testing.T) {
	tests := []struct {
		name       string
		node       string
		wantStatus int
	}{
		{name: "note", node: "note", wantStatus: http.StatusBadRequest},
		{name: "unknown node", node: "ghost", wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupTest(t, features.OrdersGraph())

			rec := f.Do(t, http.MethodPost, "/api/preview/"+tt.node, nil)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.NotEmpty(t, features.Decode[common.ErrorResponse](t, rec).Error)
		})
	}
}

func TestRequestRun_NotRunnable(t *testing.T) {
	g := features.OrdersGraph()
	g.Edges = g.Edges[1:]
	f := setupTest(t, g)

	rec := f.Do(t, http.MethodPost, "/api/run", nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	resp := features.Decode[common.ErrorResponse](t, rec)
	require.NotEmpty(t, resp.Issues)
	assert.Equal(t, "clean", resp.Issues[0].NodeID)

	_, ok := f.Editor.Store().Run()
	assert.False(t, ok)
}

func TestRequestRun_Succeeds(t *testing.T) {
	f := setupTest(t, features.OrdersGraph())

	rec := f.Do(t, http.MethodPost, "/api/run", nil)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	waitFor(t, f, features.Decode[StartedResponse](t, rec).Token)

	rec = f.Do(t, http.MethodGet, "/api/run", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, store.StateSucceeded, features.Decode[store.RunSession](t, rec).State)
}

func TestRequestRun_InProgressAndCancel(t *testing.T) {
	f := setupTest(t, features.OrdersGraph())
	f.Backend.SetRunStatuses(testutil.TaskStatus{State: "RUNNING"})

	assert.Equal(t, http.StatusConflict, f.Do(t, http.MethodPost, "/api/run/cancel", nil).Code)

	rec := f.Do(t, http.MethodPost, "/api/run", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = f.Do(t, http.MethodPost, "/api/run", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.Do(t, http.MethodPost, "/api/run/cancel", nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	r, ok := f.Editor.Store().Run()
	require.True(t, ok)
	assert.Equal(t, store.StateIdle, r.State)
	_, _, cancels := f.Backend.Counts()
	assert.Equal(t, 1, cancels)
}

func TestJobs(t *testing.T) {
	f := setupTest(t, features.OrdersGraph())

	rec := f.Do(t, http.MethodPost, "/api/preview/in?wait=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.Do(t, http.MethodGet, "/api/jobs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	jobs := features.Decode[[]JobResponse](t, rec)
	require.NotEmpty(t, jobs)
	assert.Equal(t, "preview", jobs[0].Kind)
	assert.Equal(t, string(store.StateSucceeded), jobs[0].State)
	assert.Equal(t, 1, jobs[0].RowCount)

	rec = f.Do(t, http.MethodGet, "/api/jobs?limit=1", nil)
	assert.Len(t, features.Decode[[]JobResponse](t, rec), 1)

	assert.Equal(t, http.StatusBadRequest, f.Do(t, http.MethodGet, "/api/jobs?limit=zero", nil).Code)
}

func TestJobs_NoHistory(t *testing.T) {
	f := features.SetupTestFixture(t, features.OrdersGraph())
	require.NoError(t, SetupRoutes(f.Router, f.Editor, nil))

	rec := f.Do(t, http.MethodGet, "/api/jobs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}
