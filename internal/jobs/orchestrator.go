// Package jobs drives preview and run jobs on the backend: submit, poll until
// terminal, and write the outcome into the editor store.
//
// Each session carries a token. Results are applied through the store's
// token-checked updates, so a session that has been superseded, or whose node
// has been deleted, can never clobber newer state.
package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/leapstack-labs/flowtask/internal/api"
	"github.com/leapstack-labs/flowtask/internal/store"
)

// Errors returned by the orchestrator.
var (
	ErrUnknownNode     = errors.New("node not found")
	ErrNotPreviewable  = errors.New("node cannot be previewed")
	ErrRunInProgress   = errors.New("a run is already in progress")
	ErrNoActiveRun     = errors.New("no run in progress")
	ErrClosed          = errors.New("orchestrator closed")
	ErrPreviewTimedOut = errors.New("preview timed out")
)

// Backend is the part of the API client the orchestrator needs.
type Backend interface {
	SubmitPreview(ctx context.Context, flowTaskID string, req api.PreviewRequest) (string, error)
	TaskStatus(ctx context.Context, taskID string) (*api.TaskStatus, error)
	SubmitRun(ctx context.Context, flowTaskID string) (string, error)
	CancelRun(ctx context.Context, flowTaskID string) error
}

// Kind distinguishes preview jobs from full runs.
type Kind string

// Job kinds.
const (
	KindPreview Kind = "preview"
	KindRun     Kind = "run"
)

// Event describes a job lifecycle transition.
type Event struct {
	Kind       Kind
	FlowTaskID string
	Token      string
	JobID      string
	NodeID     string
	State      store.JobState
	Error      string
	RowCount   int
	At         time.Time
}

// Recorder receives job lifecycle events, e.g. to keep a local history.
type Recorder interface {
	RecordJob(ctx context.Context, ev Event) error
}

// Options tunes polling.
type Options struct {
	PreviewLimit        int
	PreviewPollInterval time.Duration
	PreviewTimeout      time.Duration
	RunPollInterval     time.Duration
	Recorder            Recorder
}

// DefaultOptions returns the recommended settings.
func DefaultOptions() Options {
	return Options{
		PreviewLimit:        500,
		PreviewPollInterval: 1500 * time.Millisecond,
		PreviewTimeout:      2 * time.Minute,
		RunPollInterval:     2 * time.Second,
	}
}

type session struct {
	token  string
	kind   Kind
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (s *session) finish() {
	s.once.Do(func() {
		s.cancel()
		close(s.done)
	})
}

// Orchestrator owns the preview and run sessions of one flow task.
type Orchestrator struct {
	flowTaskID string
	store      *store.Store
	backend    Backend
	opts       Options
	logger     *slog.Logger
	newToken   func() string

	mu       sync.Mutex
	preview  *session
	run      *session
	sessions map[string]*session

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an orchestrator for flowTaskID writing into st.
func New(flowTaskID string, st *store.Store, backend Backend, opts Options, logger *slog.Logger) *Orchestrator {
	def := DefaultOptions()
	if opts.PreviewLimit <= 0 {
		opts.PreviewLimit = def.PreviewLimit
	}
	if opts.PreviewPollInterval <= 0 {
		opts.PreviewPollInterval = def.PreviewPollInterval
	}
	if opts.PreviewTimeout <= 0 {
		opts.PreviewTimeout = def.PreviewTimeout
	}
	if opts.RunPollInterval <= 0 {
		opts.RunPollInterval = def.RunPollInterval
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		flowTaskID: flowTaskID,
		store:      st,
		backend:    backend,
		opts:       opts,
		logger:     logger,
		newToken:   uuid.NewString,
		sessions:   make(map[string]*session),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// startSession registers a new session. A preview supersedes the current
// preview; a run is refused while another run is in flight.
func (o *Orchestrator) startSession(kind Kind) (*session, context.Context, *session, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.ctx.Err() != nil {
		return nil, nil, nil, ErrClosed
	}
	if kind == KindRun && o.run != nil {
		return nil, nil, nil, ErrRunInProgress
	}

	ctx, cancel := context.WithCancel(o.ctx)
	s := &session{
		token:  o.newToken(),
		kind:   kind,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	var prev *session
	switch kind {
	case KindPreview:
		prev, o.preview = o.preview, s
	case KindRun:
		o.run = s
	}
	o.sessions[s.token] = s
	return s, ctx, prev, nil
}

// endSession marks s finished and forgets it.
func (o *Orchestrator) endSession(s *session) {
	s.finish()
	o.mu.Lock()
	delete(o.sessions, s.token)
	switch {
	case o.preview == s:
		o.preview = nil
	case o.run == s:
		o.run = nil
	}
	o.mu.Unlock()
}

func (o *Orchestrator) record(ev Event) {
	if o.opts.Recorder == nil {
		return
	}
	ev.FlowTaskID = o.flowTaskID
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	if err := o.opts.Recorder.RecordJob(context.WithoutCancel(o.ctx), ev); err != nil {
		o.logger.Warn("failed to record job event", "kind", ev.Kind, "state", ev.State, "error", err)
	}
}

// Wait blocks until the session with token reaches a terminal state.
// Unknown tokens belong to sessions that already finished.
func (o *Orchestrator) Wait(ctx context.Context, token string) error {
	o.mu.Lock()
	s, ok := o.sessions[token]
	o.mu.Unlock()
	if !ok {
		return nil
	}

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops all polling and waits for the pollers to exit.
func (o *Orchestrator) Close() {
	o.cancel()

	o.mu.Lock()
	active := make([]*session, 0, len(o.sessions))
	for _, s := range o.sessions {
		active = append(active, s)
	}
	o.mu.Unlock()

	for _, s := range active {
		s.finish()
	}
	o.wg.Wait()
}

// poll calls check every interval until it reports done or ctx ends.
// The first check happens immediately.
func poll(ctx context.Context, interval time.Duration, check func() bool) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			if check() {
				return
			}
			timer.Reset(interval)
		}
	}
}
