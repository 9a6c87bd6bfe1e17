package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/flowtask/internal/cli/output"
	"github.com/leapstack-labs/flowtask/internal/editor"
	"github.com/leapstack-labs/flowtask/internal/store"
)

// RunOptions holds options for the run command.
type RunOptions struct {
	NoWait bool
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run <flow-task>",
		Short: "Run the whole pipeline of a flow task",
		Long: `Check the stored graph and submit a full run to the backend, then follow
it until it finishes. Interrupting the wait asks the backend to cancel the
run.

Graphs with problems (unconfigured inputs, disconnected nodes, cycles,
no output) are not submitted.`,
		Example: `  flowtask run 42
  flowtask run 42 --no-wait
  flowtask run cancel 42`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, args[0], opts)
		},
	}

	cmd.Flags().BoolVar(&opts.NoWait, "no-wait", false, "Return once the run is submitted")
	cmd.AddCommand(newRunCancelCommand())

	return cmd
}

func newRunCancelCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <flow-task>",
		Short: "Cancel the active run of a flow task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			if err := c.Client.CancelRun(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("cancelling run of %s: %w", args[0], err)
			}
			c.Renderer.Success("cancel requested for flow task " + args[0])
			return nil
		},
	}
}

func runRun(cmd *cobra.Command, flowTaskID string, opts *RunOptions) error {
	c, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}

	st, err := c.OpenState()
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	ctx := cmd.Context()
	ed, err := c.OpenEditor(ctx, flowTaskID, st, false)
	if err != nil {
		return err
	}
	defer ed.Close()

	r := c.Renderer
	token, err := ed.RequestRun(ctx)
	if err != nil {
		var verr *editor.ValidationError
		if errors.As(err, &verr) && r.EffectiveMode() != output.ModeJSON {
			r.Header(2, "Problems")
			for _, is := range verr.Issues {
				r.Warning(is.String())
			}
		}
		return err
	}

	if opts.NoWait {
		rs, _ := ed.Store().Run()
		return reportRun(r, rs)
	}

	if err := ed.Jobs().Wait(ctx, token); err != nil {
		// Interrupted: do not leave an orphaned run behind.
		cancelCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if cerr := ed.Jobs().CancelRun(cancelCtx); cerr != nil {
			c.Logger.Warn("failed to cancel run", "error", cerr)
		} else {
			r.Warning("run cancelled")
		}
		return err
	}

	rs, _ := ed.Store().Run()
	if err := reportRun(r, rs); err != nil {
		return err
	}
	if rs.State == store.StateFailed {
		return fmt.Errorf("run of %s failed: %s", flowTaskID, rs.Error)
	}
	return nil
}

func reportRun(r *output.Renderer, rs store.RunSession) error {
	out := output.JobOutput{
		Kind:   "run",
		JobID:  rs.JobID,
		State:  string(rs.State),
		Error:  rs.Error,
		Result: rs.Result,
	}
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(out)
	}

	r.KeyValue("Job", out.JobID)
	r.KeyValue("State", out.State)
	if rs.State.Terminal() && !rs.EndedAt.IsZero() {
		r.KeyValue("Duration", rs.EndedAt.Sub(rs.StartedAt).Round(time.Millisecond).String())
	}
	switch rs.State {
	case store.StateSucceeded:
		r.Success("run succeeded")
	case store.StateFailed:
		r.Error(rs.Error)
	}
	return nil
}
