package state

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/leapstack-labs/flowtask/internal/jobs"
	"github.com/leapstack-labs/flowtask/internal/store"
)

// DefaultJobLimit caps ListJobs when no limit is given.
const DefaultJobLimit = 50

// RecordJob appends a job lifecycle event to the history.
func (s *SQLiteStore) RecordJob(ctx context.Context, ev jobs.Event) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO job_history (id, flow_task_id, kind, token, job_id, node_id, state, error, row_count, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		generateID(), ev.FlowTaskID, string(ev.Kind), ev.Token,
		nullString(ev.JobID), nullString(ev.NodeID), string(ev.State), nullString(ev.Error),
		ev.RowCount, formatTime(ev.At))
	if err != nil {
		return fmt.Errorf("failed to record job event: %w", err)
	}
	return nil
}

// ListJobs returns the most recent job events of a flow task, newest first.
// An empty flowTaskID lists events of every flow task.
func (s *SQLiteStore) ListJobs(ctx context.Context, flowTaskID string, limit int) ([]jobs.Event, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	if limit <= 0 {
		limit = DefaultJobLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT flow_task_id, kind, token, job_id, node_id, state, error, row_count, at
		FROM job_history
		WHERE ? = '' OR flow_task_id = ?
		ORDER BY at DESC, rowid DESC
		LIMIT ?`,
		flowTaskID, flowTaskID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var events []jobs.Event
	for rows.Next() {
		var (
			ev                    jobs.Event
			kind, state, at       string
			jobID, nodeID, errMsg sql.NullString
		)
		if err := rows.Scan(&ev.FlowTaskID, &kind, &ev.Token, &jobID, &nodeID, &state, &errMsg, &ev.RowCount, &at); err != nil {
			return nil, fmt.Errorf("failed to scan job event: %w", err)
		}
		ev.Kind = jobs.Kind(kind)
		ev.State = store.JobState(state)
		ev.JobID = jobID.String
		ev.NodeID = nodeID.String
		ev.Error = errMsg.String
		if ev.At, err = parseTime(at); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate job events: %w", err)
	}
	return events, nil
}

// PruneJobs deletes all but the newest keep events of a flow task.
func (s *SQLiteStore) PruneJobs(ctx context.Context, flowTaskID string, keep int) (int64, error) {
	if s.db == nil {
		return 0, fmt.Errorf("database not opened")
	}

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM job_history
		WHERE flow_task_id = ? AND id NOT IN (
			SELECT id FROM job_history WHERE flow_task_id = ? ORDER BY at DESC, rowid DESC LIMIT ?
		)`,
		flowTaskID, flowTaskID, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune jobs: %w", err)
	}
	return res.RowsAffected()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
