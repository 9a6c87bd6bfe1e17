package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/leapstack-labs/flowtask/internal/editor"
	"github.com/leapstack-labs/flowtask/internal/flow"
)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", s, err)
	}
	return t, nil
}

// SaveDraft stores the draft for a flow task, replacing any previous one.
func (s *SQLiteStore) SaveDraft(ctx context.Context, d editor.Draft) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	graphJSON, err := json.Marshal(d.Graph)
	if err != nil {
		return fmt.Errorf("failed to marshal draft graph: %w", err)
	}

	savedAt := d.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO drafts (flow_task_id, graph_json, revision, saved_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (flow_task_id) DO UPDATE SET
			graph_json = excluded.graph_json,
			revision = excluded.revision,
			saved_at = excluded.saved_at`,
		d.FlowTaskID, string(graphJSON), int64(d.Revision), formatTime(savedAt))
	if err != nil {
		return fmt.Errorf("failed to save draft: %w", err)
	}
	return nil
}

// LoadDraft returns the draft of a flow task, or nil if there is none.
func (s *SQLiteStore) LoadDraft(ctx context.Context, flowTaskID string) (*editor.Draft, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	var (
		graphJSON string
		revision  int64
		savedAt   string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT graph_json, revision, saved_at FROM drafts WHERE flow_task_id = ?`,
		flowTaskID).Scan(&graphJSON, &revision, &savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load draft: %w", err)
	}

	var g flow.Graph
	if err := json.Unmarshal([]byte(graphJSON), &g); err != nil {
		return nil, fmt.Errorf("failed to unmarshal draft graph: %w", err)
	}
	at, err := parseTime(savedAt)
	if err != nil {
		return nil, err
	}

	return &editor.Draft{
		FlowTaskID: flowTaskID,
		Graph:      g,
		Revision:   uint64(revision),
		SavedAt:    at,
	}, nil
}

// DeleteDraft removes the draft of a flow task. Deleting a missing draft is not an error.
func (s *SQLiteStore) DeleteDraft(ctx context.Context, flowTaskID string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM drafts WHERE flow_task_id = ?`, flowTaskID); err != nil {
		return fmt.Errorf("failed to delete draft: %w", err)
	}
	return nil
}

// ListDrafts returns the flow task ids that have a pending draft, newest first.
func (s *SQLiteStore) ListDrafts(ctx context.Context) ([]string, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.QueryContext(ctx, `SELECT flow_task_id FROM drafts ORDER BY saved_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list drafts: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan draft: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
