package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/leapstack-labs/flowtask/internal/api"
	"github.com/leapstack-labs/flowtask/internal/store"
)

// RequestRun submits a full pipeline run. Only one run may be in flight.
func (o *Orchestrator) RequestRun(ctx context.Context) (string, error) {
	s, sctx, _, err := o.startSession(KindRun)
	if err != nil {
		return "", err
	}

	o.store.BeginRun(store.RunSession{
		Token:     s.token,
		State:     store.StateSubmitting,
		StartedAt: time.Now(),
	})

	stop := context.AfterFunc(ctx, s.cancel)
	jobID, err := o.backend.SubmitRun(sctx, o.flowTaskID)
	cancelled := !stop()

	if err != nil || cancelled {
		if err == nil {
			err = ctx.Err()
		}
		o.store.UpdateRun(s.token, func(r *store.RunSession) {
			r.State = store.StateIdle
			r.Error = err.Error()
			r.EndedAt = time.Now()
		})
		o.endSession(s)
		o.record(Event{Kind: KindRun, Token: s.token, State: store.StateIdle, Error: err.Error()})
		return "", fmt.Errorf("submitting run: %w", err)
	}

	o.store.UpdateRun(s.token, func(r *store.RunSession) {
		r.JobID = jobID
		r.State = store.StatePolling
	})
	o.logger.Info("run submitted", "flow_task", o.flowTaskID, "job", jobID)
	o.record(Event{Kind: KindRun, Token: s.token, JobID: jobID, State: store.StatePolling})

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer o.endSession(s)
		o.pollRun(sctx, s, jobID)
	}()
	return s.token, nil
}

// pollRun polls without a client-side timeout; only cancellation stops it.
func (o *Orchestrator) pollRun(ctx context.Context, s *session, jobID string) {
	poll(ctx, o.opts.RunPollInterval, func() bool {
		status, err := o.backend.TaskStatus(ctx, jobID)
		if err != nil {
			if ctx.Err() == nil {
				o.logger.Warn("run status poll failed", "job", jobID, "error", err)
			}
			return false
		}
		if !status.Done() {
			return false
		}

		o.finishRun(s, jobID, status)
		return true
	})
}

// finishRun applies a terminal status. A status that arrives after a cancel
// confirmation overrides it: the later of the two wins.
func (o *Orchestrator) finishRun(s *session, jobID string, status *api.TaskStatus) {
	ev := Event{Kind: KindRun, Token: s.token, JobID: jobID}

	var result map[string]any
	if status.State == api.TaskSuccess && len(status.Result) > 0 {
		if err := json.Unmarshal(status.Result, &result); err != nil {
			o.logger.Debug("run result is not an object", "job", jobID, "error", err)
		}
	}

	o.store.UpdateRun(s.token, func(r *store.RunSession) {
		r.EndedAt = time.Now()
		if status.State == api.TaskSuccess {
			r.State = store.StateSucceeded
			r.Result = result
			r.Error = ""
			return
		}
		r.State = store.StateFailed
		r.Error = status.Error
		if r.Error == "" {
			r.Error = "run " + status.State
		}
	})

	run, _ := o.store.Run()
	ev.State = run.State
	ev.Error = run.Error
	o.logger.Info("run finished", "job", jobID, "state", run.State)
	o.record(ev)
}

// CancelRun asks the backend to cancel the current run. On confirmation the
// run returns to idle and polling stops.
func (o *Orchestrator) CancelRun(ctx context.Context) error {
	o.mu.Lock()
	s := o.run
	o.mu.Unlock()

	run, ok := o.store.Run()
	if s == nil || !ok || run.Token != s.token {
		return ErrNoActiveRun
	}

	if err := o.backend.CancelRun(ctx, o.flowTaskID); err != nil {
		return fmt.Errorf("cancelling run: %w", err)
	}

	applied := o.store.UpdateRun(s.token, func(r *store.RunSession) {
		r.State = store.StateIdle
		r.Result = nil
		r.Error = ""
		r.EndedAt = time.Now()
	})
	o.endSession(s)

	if applied {
		o.logger.Info("run cancelled", "job", run.JobID)
		o.record(Event{Kind: KindRun, Token: s.token, JobID: run.JobID, State: store.StateIdle, Error: "cancelled"})
	}
	return nil
}
