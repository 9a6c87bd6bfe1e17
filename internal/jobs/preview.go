package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/leapstack-labs/flowtask/internal/api"
	"github.com/leapstack-labs/flowtask/internal/store"
)

// RequestPreview snapshots the graph and submits a preview of nodeID.
// A preview already in flight is superseded. The returned token identifies
// the new session. A submission failure closes the session and is returned
// for the caller to surface.
func (o *Orchestrator) RequestPreview(ctx context.Context, nodeID, label string) (string, error) {
	node, ok := o.store.Node(nodeID)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownNode, nodeID)
	}
	if !node.Type.DataFlow() {
		return "", fmt.Errorf("%w: %s is a %s", ErrNotPreviewable, nodeID, node.Type)
	}
	if label == "" {
		label = node.Label()
	}

	g := o.store.Graph()

	s, sctx, prev, err := o.startSession(KindPreview)
	if err != nil {
		return "", err
	}
	if prev != nil {
		o.logger.Debug("preview superseded", "token", prev.token)
		o.endSession(prev)
		o.record(Event{Kind: KindPreview, Token: prev.token, State: store.StateSuperseded})
	}

	o.store.BeginPreview(store.PreviewSession{
		NodeID:    nodeID,
		NodeLabel: label,
		NodeType:  node.Type,
		Token:     s.token,
		State:     store.StateSubmitting,
		IsLoading: true,
		StartedAt: time.Now(),
	})

	// The caller's context bounds submission only; polling outlives it.
	stop := context.AfterFunc(ctx, s.cancel)
	jobID, err := o.backend.SubmitPreview(sctx, o.flowTaskID, api.PreviewRequest{
		NodeID: nodeID,
		Nodes:  g.Nodes,
		Edges:  g.Edges,
		Limit:  o.opts.PreviewLimit,
	})
	cancelled := !stop()

	if err != nil || cancelled {
		if err == nil {
			err = ctx.Err()
		}
		o.store.EndPreview(s.token)
		o.endSession(s)
		o.record(Event{Kind: KindPreview, Token: s.token, NodeID: nodeID, State: store.StateIdle, Error: err.Error()})
		return "", fmt.Errorf("submitting preview of %s: %w", nodeID, err)
	}

	applied := o.store.UpdatePreview(s.token, func(p *store.PreviewSession) {
		p.JobID = jobID
		p.State = store.StatePolling
	})
	if !applied {
		// Superseded or the node was deleted while submitting
		o.endSession(s)
		return s.token, nil
	}

	o.logger.Info("preview submitted", "node", nodeID, "job", jobID)
	o.record(Event{Kind: KindPreview, Token: s.token, JobID: jobID, NodeID: nodeID, State: store.StatePolling})

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer o.endSession(s)
		o.pollPreview(sctx, s, nodeID, jobID)
	}()
	return s.token, nil
}

func (o *Orchestrator) pollPreview(ctx context.Context, s *session, nodeID, jobID string) {
	pctx, cancel := context.WithTimeout(ctx, o.opts.PreviewTimeout)
	defer cancel()

	poll(pctx, o.opts.PreviewPollInterval, func() bool {
		if cur, ok := o.store.Preview(); !ok || cur.Token != s.token {
			// Closed, superseded or its node deleted
			return true
		}

		status, err := o.backend.TaskStatus(pctx, jobID)
		if err != nil {
			if pctx.Err() == nil {
				o.logger.Warn("preview status poll failed", "job", jobID, "error", err)
			}
			return false
		}
		if !status.Done() {
			return false
		}

		o.finishPreview(s, nodeID, jobID, status)
		return true
	})

	if errors.Is(pctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		msg := fmt.Sprintf("%s after %s", ErrPreviewTimedOut, o.opts.PreviewTimeout)
		if o.store.UpdatePreview(s.token, func(p *store.PreviewSession) {
			p.State = store.StateFailed
			p.IsLoading = false
			p.Error = msg
			p.EndedAt = time.Now()
		}) {
			o.logger.Warn("preview timed out", "node", nodeID, "job", jobID)
			o.record(Event{Kind: KindPreview, Token: s.token, JobID: jobID, NodeID: nodeID, State: store.StateFailed, Error: msg})
		}
	}
}

func (o *Orchestrator) finishPreview(s *session, nodeID, jobID string, status *api.TaskStatus) {
	ev := Event{Kind: KindPreview, Token: s.token, JobID: jobID, NodeID: nodeID}

	var (
		result *store.PreviewResult
		errMsg string
	)
	if status.State == api.TaskSuccess {
		result = &store.PreviewResult{}
		if err := json.Unmarshal(status.Result, result); err != nil {
			result = nil
			errMsg = "invalid preview result: " + err.Error()
		}
	} else {
		errMsg = status.Error
		if errMsg == "" {
			errMsg = "preview " + status.State
		}
	}

	applied := o.store.UpdatePreview(s.token, func(p *store.PreviewSession) {
		p.IsLoading = false
		p.EndedAt = time.Now()
		if result != nil {
			p.State = store.StateSucceeded
			p.Result = result
			return
		}
		p.State = store.StateFailed
		p.Error = errMsg
	})
	if !applied {
		o.logger.Debug("stale preview result discarded", "job", jobID)
		return
	}

	if result != nil {
		ev.State = store.StateSucceeded
		ev.RowCount = result.RowCount
		o.logger.Info("preview succeeded", "node", nodeID, "rows", result.RowCount)
	} else {
		ev.State = store.StateFailed
		ev.Error = errMsg
		o.logger.Info("preview failed", "node", nodeID, "error", errMsg)
	}
	o.record(ev)
}

// DismissPreview closes the preview panel and stops its polling.
func (o *Orchestrator) DismissPreview() {
	o.mu.Lock()
	s := o.preview
	o.mu.Unlock()

	if s != nil {
		o.endSession(s)
	}
	o.store.ClosePreview()
}
