// Package schema resolves the output columns of flow nodes against the backend.
//
// Results are cached by (flow task, node, fingerprint digest). Because the
// fingerprint only moves when something shape-relevant changes upstream, most
// configuration edits are answered from cache without a network call. A late
// response for an old fingerprint lands in that fingerprint's entry, which is
// simply never read again and is reclaimed by the idle sweep.
package schema

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/singleflight"

	"github.com/leapstack-labs/flowtask/internal/api"
	"github.com/leapstack-labs/flowtask/internal/fingerprint"
	"github.com/leapstack-labs/flowtask/internal/flow"
)

// ErrClosed is returned by Resolve after Close.
var ErrClosed = errors.New("schema resolver closed")

// Backend executes the zero-row schema probe.
type Backend interface {
	ResolveSchema(ctx context.Context, flowTaskID string, req api.SchemaRequest) ([]flow.Column, error)
}

// Options tunes the resolver.
type Options struct {
	// RetryDelay is the fixed wait before retrying a failed probe.
	RetryDelay time.Duration
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries uint64
	// IdleTTL is how long an entry may go unread before the sweep drops it.
	IdleTTL time.Duration
	// FailureTTL is how long a failed probe is remembered.
	FailureTTL time.Duration
	// OnUpdate is called after a background fetch stores a result.
	OnUpdate func()
}

// DefaultOptions returns the recommended settings.
func DefaultOptions() Options {
	return Options{
		RetryDelay: 2 * time.Second,
		MaxRetries: 1,
		IdleTTL:    10 * time.Minute,
		FailureTTL: 30 * time.Second,
	}
}

// Request identifies the node whose columns are wanted.
type Request struct {
	FlowTaskID string
	NodeID     string
	Graph      flow.Graph
}

// Result is what a form renders. The zero value means resolution is disabled.
type Result struct {
	Columns   []flow.Column
	IsLoading bool
	IsError   bool
	Err       error
	// Key is the fingerprint digest the result belongs to.
	Key string
}

// Stats reports cache activity.
type Stats struct {
	Entries  int
	Failures int
	Hits     int64
	Misses   int64
	Fetches  int64
}

type cacheKey struct {
	flowTaskID string
	nodeID     string
	digest     string
}

func (k cacheKey) String() string {
	return k.flowTaskID + "/" + k.nodeID + "/" + k.digest
}

type entry struct {
	columns    []flow.Column
	lastAccess time.Time
}

type failure struct {
	err   error
	until time.Time
}

// Resolver caches schema probes keyed by fingerprint.
type Resolver struct {
	backend Backend
	opts    Options
	logger  *slog.Logger
	now     func() time.Time

	mu       sync.Mutex
	entries  map[cacheKey]*entry
	failures map[cacheKey]failure
	flight   singleflight.Group

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	hits    atomic.Int64
	misses  atomic.Int64
	fetches atomic.Int64
}

// New creates a resolver. Zero durations fall back to the defaults. An
// Options with nothing set gets the default retry count too; otherwise a
// zero MaxRetries disables retries.
func New(backend Backend, opts Options, logger *slog.Logger) *Resolver {
	def := DefaultOptions()
	if opts.RetryDelay == 0 && opts.MaxRetries == 0 && opts.IdleTTL == 0 && opts.FailureTTL == 0 {
		opts.MaxRetries = def.MaxRetries
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = def.RetryDelay
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = def.IdleTTL
	}
	if opts.FailureTTL <= 0 {
		opts.FailureTTL = def.FailureTTL
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Resolver{
		backend:  backend,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
		entries:  make(map[cacheKey]*entry),
		failures: make(map[cacheKey]failure),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// prepare computes the cache key for req. When done is true the returned
// result is final and no lookup is needed.
func (r *Resolver) prepare(req Request) (key cacheKey, res Result, done bool) {
	if req.FlowTaskID == "" || req.NodeID == "" || len(req.Graph.Nodes) == 0 {
		return cacheKey{}, Result{}, true
	}
	if !req.Graph.HasConfiguredInput() {
		return cacheKey{}, Result{}, true
	}

	fp, err := fingerprint.Compute(req.NodeID, req.Graph)
	if err != nil {
		return cacheKey{}, Result{IsError: true, Err: err, Columns: []flow.Column{}}, true
	}
	digest := fp.Digest()
	return cacheKey{flowTaskID: req.FlowTaskID, nodeID: req.NodeID, digest: digest}, Result{Key: digest}, false
}

// lookup answers from the cache or the failure memo.
func (r *Resolver) lookup(key cacheKey) (Result, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[key]; ok {
		e.lastAccess = r.now()
		r.hits.Add(1)
		return Result{Columns: cloneColumns(e.columns), Key: key.digest}, true
	}
	if f, ok := r.failures[key]; ok && r.now().Before(f.until) {
		return Result{Columns: []flow.Column{}, IsError: true, Err: f.err, Key: key.digest}, true
	}
	r.misses.Add(1)
	return Result{}, false
}

// Resolve returns the columns of req.NodeID, blocking on the backend when the
// fingerprint is not cached.
func (r *Resolver) Resolve(ctx context.Context, req Request) Result {
	key, res, done := r.prepare(req)
	if done {
		return res
	}
	if cached, ok := r.lookup(key); ok {
		return cached
	}
	if r.ctx.Err() != nil {
		return Result{Columns: []flow.Column{}, IsError: true, Err: ErrClosed, Key: key.digest}
	}

	ch := r.flight.DoChan(key.String(), func() (any, error) {
		return r.load(r.ctx, key, req)
	})

	select {
	case <-ctx.Done():
		return Result{Columns: []flow.Column{}, IsError: true, Err: ctx.Err(), Key: key.digest}
	case out := <-ch:
		if out.Err != nil {
			return Result{Columns: []flow.Column{}, IsError: true, Err: out.Err, Key: key.digest}
		}
		return Result{Columns: cloneColumns(out.Val.([]flow.Column)), Key: key.digest}
	}
}

// Peek is the non-blocking form of Resolve. On a cache miss it starts a
// background fetch and reports IsLoading; Options.OnUpdate fires once the
// fetch completes.
func (r *Resolver) Peek(req Request) Result {
	key, res, done := r.prepare(req)
	if done {
		return res
	}
	if cached, ok := r.lookup(key); ok {
		return cached
	}

	// Close cancels under mu, so no Add can race its Wait.
	r.mu.Lock()
	if r.ctx.Err() != nil {
		r.mu.Unlock()
		return Result{Columns: []flow.Column{}, IsError: true, Err: ErrClosed, Key: key.digest}
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		<-r.flight.DoChan(key.String(), func() (any, error) {
			return r.load(r.ctx, key, req)
		})
		if r.opts.OnUpdate != nil && r.ctx.Err() == nil {
			r.opts.OnUpdate()
		}
	}()

	return Result{Columns: []flow.Column{}, IsLoading: true, Key: key.digest}
}

// load calls the backend with the retry policy and records the outcome.
func (r *Resolver) load(ctx context.Context, key cacheKey, req Request) ([]flow.Column, error) {
	var cols []flow.Column
	attempt := 0

	backoff := retry.WithMaxRetries(r.opts.MaxRetries, retry.NewConstant(r.opts.RetryDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		r.fetches.Add(1)

		var err error
		cols, err = r.backend.ResolveSchema(ctx, req.FlowTaskID, api.SchemaRequest{
			NodeID: req.NodeID,
			Nodes:  req.Graph.Nodes,
			Edges:  req.Graph.Edges,
		})
		if err == nil {
			return nil
		}
		if api.IsRetryable(err) {
			r.logger.Debug("schema probe failed, will retry",
				"node", req.NodeID,
				"attempt", attempt,
				"error", err)
			return retry.RetryableError(err)
		}
		return err
	})

	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()

	if err != nil {
		if ctx.Err() == nil {
			r.failures[key] = failure{err: err, until: now.Add(r.opts.FailureTTL)}
		}
		r.logger.Warn("schema resolution failed",
			"flow_task", req.FlowTaskID,
			"node", req.NodeID,
			"attempts", attempt,
			"error", err)
		return nil, fmt.Errorf("resolving schema of %s: %w", req.NodeID, err)
	}

	if cols == nil {
		cols = []flow.Column{}
	}
	delete(r.failures, key)
	r.entries[key] = &entry{columns: cols, lastAccess: now}
	r.logger.Debug("schema resolved",
		"node", req.NodeID,
		"columns", len(cols),
		"key", key.digest)
	return cols, nil
}

// Evict drops entries idle for longer than IdleTTL and expired failures.
// It returns the number of cache entries removed.
func (r *Resolver) Evict() int {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for k, e := range r.entries {
		if now.Sub(e.lastAccess) > r.opts.IdleTTL {
			delete(r.entries, k)
			removed++
		}
	}
	for k, f := range r.failures {
		if !now.Before(f.until) {
			delete(r.failures, k)
		}
	}
	return removed
}

// Invalidate drops everything cached for a flow task.
func (r *Resolver) Invalidate(flowTaskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k := range r.entries {
		if k.flowTaskID == flowTaskID {
			delete(r.entries, k)
		}
	}
	for k := range r.failures {
		if k.flowTaskID == flowTaskID {
			delete(r.failures, k)
		}
	}
}

// Run sweeps idle entries until ctx is cancelled or the resolver is closed.
func (r *Resolver) Run(ctx context.Context) error {
	interval := r.opts.IdleTTL / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-r.ctx.Done():
			return nil
		case <-ticker.C:
			if n := r.Evict(); n > 0 {
				r.logger.Debug("evicted idle schema entries", "count", n)
			}
		}
	}
}

// Close cancels background fetches and waits for them to stop.
func (r *Resolver) Close() {
	r.mu.Lock()
	r.cancel()
	r.mu.Unlock()
	r.wg.Wait()
}

// Stats returns a snapshot of cache counters.
func (r *Resolver) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{
		Entries:  len(r.entries),
		Failures: len(r.failures),
		Hits:     r.hits.Load(),
		Misses:   r.misses.Load(),
		Fetches:  r.fetches.Load(),
	}
}

func cloneColumns(cols []flow.Column) []flow.Column {
	return append([]flow.Column{}, cols...)
}
