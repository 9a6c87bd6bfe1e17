// Package editor ties the pieces of one open flow task together: the graph
// store, the schema resolver, the preview/run orchestrator and the autosaver.
//
// An Editor is constructed by Open and torn down by Close. Nothing in it is
// global, so several editors can coexist in one process.
package editor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/leapstack-labs/flowtask/internal/api"
	"github.com/leapstack-labs/flowtask/internal/flow"
	"github.com/leapstack-labs/flowtask/internal/jobs"
	"github.com/leapstack-labs/flowtask/internal/notifier"
	"github.com/leapstack-labs/flowtask/internal/schema"
	"github.com/leapstack-labs/flowtask/internal/store"
)

// Backend is the full backend surface an editor talks to.
type Backend interface {
	jobs.Backend
	schema.Backend
	GetGraph(ctx context.Context, flowTaskID string) (*api.GraphResponse, error)
	SaveGraph(ctx context.Context, flowTaskID string, g flow.Graph) error
}

// Draft is a locally saved copy of unsaved work.
type Draft struct {
	FlowTaskID string
	Graph      flow.Graph
	Revision   uint64
	SavedAt    time.Time
}

// DraftStore keeps local drafts so edits survive a failed save or a crash.
type DraftStore interface {
	SaveDraft(ctx context.Context, d Draft) error
	LoadDraft(ctx context.Context, flowTaskID string) (*Draft, error)
	DeleteDraft(ctx context.Context, flowTaskID string) error
}

// Options configures an editor session.
type Options struct {
	Schema        schema.Options
	Jobs          jobs.Options
	AutosaveDelay time.Duration
	// DisableAutosave leaves saving to explicit Save calls.
	DisableAutosave bool
	// Drafts is optional.
	Drafts DraftStore
}

// DefaultOptions returns the recommended settings.
func DefaultOptions() Options {
	return Options{
		Schema:        schema.DefaultOptions(),
		Jobs:          jobs.DefaultOptions(),
		AutosaveDelay: 3 * time.Second,
	}
}

// Editor is one open flow task.
type Editor struct {
	flowTaskID string
	backend    Backend
	opts       Options
	logger     *slog.Logger

	store    *store.Store
	resolver *schema.Resolver
	jobs     *jobs.Orchestrator
	autosave *Autosaver

	counter atomic.Uint64
	now     func() time.Time

	saveMu sync.Mutex

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Open loads the graph of flowTaskID and starts the session's background
// workers. A missing or unreadable graph starts the editor empty.
func Open(ctx context.Context, flowTaskID string, backend Backend, opts Options, logger *slog.Logger) (*Editor, error) {
	if flowTaskID == "" {
		return nil, errors.New("flow task id is required")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.AutosaveDelay <= 0 {
		opts.AutosaveDelay = DefaultOptions().AutosaveDelay
	}
	logger = logger.With("flow_task", flowTaskID)

	st := store.New(logger)
	e := &Editor{
		flowTaskID: flowTaskID,
		backend:    backend,
		opts:       opts,
		logger:     logger,
		store:      st,
		now:        time.Now,
	}

	resp, err := backend.GetGraph(ctx, flowTaskID)
	switch {
	case errors.Is(err, api.ErrNotFound):
		logger.Info("no saved graph, starting empty")
	case err != nil:
		logger.Warn("failed to load graph, starting empty", "error", err)
	default:
		g := resp.Graph()
		st.SetNodes(g.Nodes)
		st.SetEdges(g.Edges)
		logger.Info("graph loaded", "nodes", len(g.Nodes), "edges", len(g.Edges))
	}

	schemaOpts := opts.Schema
	schemaOpts.OnUpdate = func() { st.Notifier().Broadcast(notifier.Schema) }
	e.resolver = schema.New(backend, schemaOpts, logger)
	e.jobs = jobs.New(flowTaskID, st, backend, opts.Jobs, logger)
	e.autosave = newAutosaver(st, opts.AutosaveDelay, e.autosaveNow, logger)

	runCtx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		_ = e.resolver.Run(runCtx)
	}()
	if !opts.DisableAutosave {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.autosave.Run(runCtx)
		}()
	}

	return e, nil
}

// Close stops all background work. Unsaved changes are not flushed; call
// Save first to persist them.
func (e *Editor) Close() {
	e.closeOnce.Do(func() {
		e.cancel()
		e.wg.Wait()
		e.jobs.Close()
		e.resolver.Close()
		e.logger.Debug("editor closed")
	})
}

// FlowTaskID returns the id of the open flow task.
func (e *Editor) FlowTaskID() string { return e.flowTaskID }

// Store returns the editor's graph store.
func (e *Editor) Store() *store.Store { return e.store }

// Jobs returns the preview/run orchestrator.
func (e *Editor) Jobs() *jobs.Orchestrator { return e.jobs }

// Resolver returns the schema resolver.
func (e *Editor) Resolver() *schema.Resolver { return e.resolver }

// Save persists the current graph. The dirty flag is cleared only if no edit
// happened while the request was in flight.
func (e *Editor) Save(ctx context.Context) error {
	e.saveMu.Lock()
	defer e.saveMu.Unlock()

	g, rev := e.store.Snapshot()

	if e.opts.Drafts != nil {
		d := Draft{FlowTaskID: e.flowTaskID, Graph: g, Revision: rev, SavedAt: e.now()}
		if err := e.opts.Drafts.SaveDraft(ctx, d); err != nil {
			e.logger.Warn("failed to save local draft", "error", err)
		}
	}

	if err := e.backend.SaveGraph(ctx, e.flowTaskID, g); err != nil {
		return fmt.Errorf("saving graph: %w", err)
	}

	if e.store.MarkCleanAt(rev) && e.opts.Drafts != nil {
		if err := e.opts.Drafts.DeleteDraft(ctx, e.flowTaskID); err != nil {
			e.logger.Warn("failed to delete local draft", "error", err)
		}
	}
	e.logger.Debug("graph saved", "nodes", len(g.Nodes), "edges", len(g.Edges), "revision", rev)
	return nil
}

func (e *Editor) autosaveNow(ctx context.Context) {
	if err := e.Save(ctx); err != nil {
		e.logger.Warn("autosave failed", "error", err)
	}
}

// RecoverDraft restores a local draft left by a failed save, if any.
// The restored graph is dirty so the next save pushes it.
func (e *Editor) RecoverDraft(ctx context.Context) (bool, error) {
	if e.opts.Drafts == nil {
		return false, nil
	}
	d, err := e.opts.Drafts.LoadDraft(ctx, e.flowTaskID)
	if err != nil {
		return false, fmt.Errorf("loading draft: %w", err)
	}
	if d == nil {
		return false, nil
	}
	e.store.Restore(d.Graph)
	e.logger.Info("recovered local draft", "saved_at", d.SavedAt, "nodes", len(d.Graph.Nodes))
	return true, nil
}

// RequestPreview starts a preview of nodeID.
func (e *Editor) RequestPreview(ctx context.Context, nodeID string) (string, error) {
	return e.jobs.RequestPreview(ctx, nodeID, "")
}

// RequestRun validates the graph and starts a full run.
func (e *Editor) RequestRun(ctx context.Context) (string, error) {
	if issues := e.ValidateForRun(); len(issues) > 0 {
		return "", &ValidationError{Issues: issues}
	}
	return e.jobs.RequestRun(ctx)
}
