package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/leapstack-labs/flowtask/internal/cli/output"
	"github.com/leapstack-labs/flowtask/internal/state"
)

// JobsOptions holds options for the jobs command.
type JobsOptions struct {
	Limit int
	Prune int
}

// NewJobsCommand creates the jobs command.
func NewJobsCommand() *cobra.Command {
	opts := &JobsOptions{}

	cmd := &cobra.Command{
		Use:   "jobs [flow-task]",
		Short: "List recorded preview and run jobs",
		Long: `List the preview and run job transitions recorded in the local state
database, newest first. Without a flow task id, jobs of every flow task
are listed.`,
		Example: `  flowtask jobs
  flowtask jobs 42 --limit 10
  flowtask jobs 42 --prune 100`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var flowTaskID string
			if len(args) > 0 {
				flowTaskID = args[0]
			}
			return runJobs(cmd, flowTaskID, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", state.DefaultJobLimit, "Maximum number of entries")
	cmd.Flags().IntVar(&opts.Prune, "prune", 0, "Keep only the newest N entries of the flow task")

	return cmd
}

func runJobs(cmd *cobra.Command, flowTaskID string, opts *JobsOptions) error {
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
	r := c.Renderer

	if opts.Prune > 0 {
		if flowTaskID == "" {
			return fmt.Errorf("--prune needs a flow task id")
		}
		n, err := st.PruneJobs(ctx, flowTaskID, opts.Prune)
		if err != nil {
			return err
		}
		c.Logger.Info("job history pruned", "flow_task", flowTaskID, "deleted", n)
		if r.EffectiveMode() != output.ModeJSON {
			r.Success(fmt.Sprintf("deleted %d old job entries", n))
		}
	}

	events, err := st.ListJobs(ctx, flowTaskID, opts.Limit)
	if err != nil {
		return err
	}

	out := make([]output.JobEventOutput, 0, len(events))
	for _, ev := range events {
		out = append(out, output.JobEventOutput{
			At:         ev.At,
			FlowTaskID: ev.FlowTaskID,
			Kind:       string(ev.Kind),
			State:      string(ev.State),
			JobID:      ev.JobID,
			NodeID:     ev.NodeID,
			RowCount:   ev.RowCount,
			Error:      ev.Error,
		})
	}

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(out)
	}

	r.Header(1, fmt.Sprintf("Jobs (%d)", len(out)))
	rows := make([][]string, 0, len(out))
	for _, ev := range out {
		rows = append(rows, []string{
			ev.At.Local().Format(time.DateTime),
			ev.FlowTaskID,
			titleCase(ev.Kind),
			ev.NodeID,
			titleCase(ev.State),
			ev.JobID,
			output.Truncate(ev.Error, 60),
		})
	}
	r.Table([]string{"At", "Flow task", "Kind", "Node", "State", "Job", "Error"}, rows)
	return nil
}

// titleCase formats an enum value for display.
func titleCase(s string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(s, "_", " "))
}
