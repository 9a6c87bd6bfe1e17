package store

import (
	"time"

	"github.com/leapstack-labs/flowtask/internal/flow"
	"github.com/leapstack-labs/flowtask/internal/notifier"
)

// JobState is the lifecycle state of a preview or run session.
type JobState string

// Session states.
const (
	StateIdle       JobState = "idle"
	StateSubmitting JobState = "submitting"
	StatePolling    JobState = "polling"
	StateSucceeded  JobState = "succeeded"
	StateFailed     JobState = "failed"
	StateSuperseded JobState = "superseded"
)

// Terminal reports whether no further transition will happen.
func (s JobState) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateSuperseded, StateIdle:
		return true
	}
	return false
}

// ColumnProfile holds optional statistics the backend computes per column.
type ColumnProfile struct {
	NullCount     int64 `json:"null_count"`
	DistinctCount int64 `json:"distinct_count"`
	Min           any   `json:"min,omitempty"`
	Max           any   `json:"max,omitempty"`
}

// PreviewResult is the payload of a successful preview job.
type PreviewResult struct {
	Columns   []flow.Column            `json:"columns"`
	Rows      []map[string]any         `json:"rows"`
	RowCount  int                      `json:"row_count"`
	ElapsedMS float64                  `json:"elapsed_ms"`
	Profiles  map[string]ColumnProfile `json:"column_profiles,omitempty"`
}

// PreviewSession tracks the single preview shown by the editor.
type PreviewSession struct {
	NodeID    string         `json:"node_id"`
	NodeLabel string         `json:"node_label"`
	NodeType  flow.NodeType  `json:"node_type"`
	JobID     string         `json:"job_id,omitempty"`
	Token     string         `json:"-"`
	State     JobState       `json:"state"`
	IsLoading bool           `json:"is_loading"`
	Result    *PreviewResult `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
	StartedAt time.Time      `json:"started_at"`
	EndedAt   time.Time      `json:"ended_at,omitzero"`
}

// RunSession tracks the full pipeline execution of the flow task.
type RunSession struct {
	JobID     string         `json:"job_id,omitempty"`
	Token     string         `json:"-"`
	State     JobState       `json:"state"`
	Result    map[string]any `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
	StartedAt time.Time      `json:"started_at"`
	EndedAt   time.Time      `json:"ended_at,omitzero"`
}

// BeginPreview installs a new preview session, replacing any existing one.
// The replaced session is returned so the caller can tear down its polling.
func (s *Store) BeginPreview(p PreviewSession) (PreviewSession, bool) {
	s.mu.Lock()
	var (
		prev PreviewSession
		had  bool
	)
	if s.preview != nil {
		prev, had = *s.preview, true
	}
	s.preview = &p
	s.mu.Unlock()

	s.notify.Broadcast(notifier.Preview)
	return prev, had
}

// UpdatePreview applies fn to the current preview session if its token matches.
// Updates for a stale token, or for a node that has since been deleted, are
// discarded and reported as false.
func (s *Store) UpdatePreview(token string, fn func(*PreviewSession)) bool {
	s.mu.Lock()
	if s.preview == nil || s.preview.Token != token {
		s.mu.Unlock()
		return false
	}
	if s.indexOf(s.preview.NodeID) < 0 {
		s.logger.Debug("preview update for deleted node discarded", "node", s.preview.NodeID)
		s.preview = nil
		s.mu.Unlock()
		s.notify.Broadcast(notifier.Preview)
		return false
	}
	fn(s.preview)
	s.mu.Unlock()

	s.notify.Broadcast(notifier.Preview)
	return true
}

// EndPreview closes the preview session if token is current.
func (s *Store) EndPreview(token string) bool {
	s.mu.Lock()
	if s.preview == nil || s.preview.Token != token {
		s.mu.Unlock()
		return false
	}
	s.preview = nil
	s.mu.Unlock()

	s.notify.Broadcast(notifier.Preview)
	return true
}

// ClosePreview closes whatever preview is open, as when the user dismisses the panel.
func (s *Store) ClosePreview() {
	s.mu.Lock()
	had := s.preview != nil
	s.preview = nil
	s.mu.Unlock()

	if had {
		s.notify.Broadcast(notifier.Preview)
	}
}

// Preview returns a copy of the current preview session.
func (s *Store) Preview() (PreviewSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.preview == nil {
		return PreviewSession{}, false
	}
	return *s.preview, true
}

// BeginRun installs a new run session, returning the one it replaced.
func (s *Store) BeginRun(r RunSession) (RunSession, bool) {
	s.mu.Lock()
	var (
		prev RunSession
		had  bool
	)
	if s.run != nil {
		prev, had = *s.run, true
	}
	s.run = &r
	s.mu.Unlock()

	s.notify.Broadcast(notifier.Run)
	return prev, had
}

// UpdateRun applies fn to the current run session if its token matches.
func (s *Store) UpdateRun(token string, fn func(*RunSession)) bool {
	s.mu.Lock()
	if s.run == nil || s.run.Token != token {
		s.mu.Unlock()
		return false
	}
	fn(s.run)
	s.mu.Unlock()

	s.notify.Broadcast(notifier.Run)
	return true
}

// Run returns a copy of the current run session.
func (s *Store) Run() (RunSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.run == nil {
		return RunSession{}, false
	}
	return *s.run, true
}
