package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/flowtask/internal/cli/output"
	"github.com/leapstack-labs/flowtask/internal/flow"
	"github.com/leapstack-labs/flowtask/internal/store"
)

// maxCellWidth truncates preview cells in text and markdown output.
const maxCellWidth = 40

// NewPreviewCommand creates the preview command.
func NewPreviewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preview <flow-task> <node>",
		Short: "Preview the rows a node produces",
		Long: `Submit a preview job for one node and wait for its sample rows.

The row count is capped by --preview-limit. The job is recorded in the
local job history.`,
		Example: `  flowtask preview 42 clean_3_1718000000000
  flowtask preview 42 out_1 --preview-limit 20 -o json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPreview(cmd, args[0], args[1])
		},
	}

	return cmd
}

func runPreview(cmd *cobra.Command, flowTaskID, nodeID string) error {
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

	token, err := ed.RequestPreview(ctx, nodeID)
	if err != nil {
		return err
	}

	// The orchestrator enforces the preview timeout; this only guards
	// against a stuck wait.
	waitCtx, cancel := context.WithTimeout(ctx, c.Cfg.Preview.Timeout+c.Cfg.Timeout)
	defer cancel()
	if err := ed.Jobs().Wait(waitCtx, token); err != nil {
		return fmt.Errorf("waiting for preview: %w", err)
	}

	p, ok := ed.Store().Preview()
	if !ok {
		return errors.New("preview was closed before it finished")
	}

	out := output.JobOutput{
		Kind:   "preview",
		JobID:  p.JobID,
		NodeID: p.NodeID,
		State:  string(p.State),
		Error:  p.Error,
	}
	if p.Result != nil {
		out.Columns = p.Result.Columns
		out.Rows = p.Result.Rows
		out.RowCount = p.Result.RowCount
		out.ElapsedMS = p.Result.ElapsedMS
	}

	r := c.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		if err := r.JSON(out); err != nil {
			return err
		}
	} else {
		renderPreview(r, p)
	}

	if p.State != store.StateSucceeded {
		return fmt.Errorf("preview of %s %s: %s", nodeID, p.State, p.Error)
	}
	return nil
}

func renderPreview(r *output.Renderer, p store.PreviewSession) {
	r.Header(1, fmt.Sprintf("Preview of %s (%s)", p.NodeLabel, titleCase(string(p.NodeType))))
	r.KeyValue("Job", p.JobID)
	r.KeyValue("State", string(p.State))
	if p.Result == nil {
		return
	}
	res := p.Result
	r.KeyValue("Rows", fmt.Sprintf("%d", res.RowCount))
	r.KeyValue("Elapsed", fmt.Sprintf("%.1f ms", res.ElapsedMS))
	r.Println("")

	headers := flow.ColumnNames(res.Columns)
	rows := make([][]string, 0, len(res.Rows))
	for _, row := range res.Rows {
		cells := make([]string, len(res.Columns))
		for i, col := range res.Columns {
			cells[i] = output.Truncate(output.FormatValue(row[col.Name]), maxCellWidth)
		}
		rows = append(rows, cells)
	}
	r.Table(headers, rows)

	if len(res.Profiles) > 0 {
		r.Println("")
		r.Header(2, "Column profiles")
		prows := make([][]string, 0, len(res.Profiles))
		for _, col := range res.Columns {
			prof, ok := res.Profiles[col.Name]
			if !ok {
				continue
			}
			prows = append(prows, []string{
				col.Name,
				fmt.Sprintf("%d", prof.NullCount),
				fmt.Sprintf("%d", prof.DistinctCount),
				output.FormatValue(prof.Min),
				output.FormatValue(prof.Max),
			})
		}
		r.Table([]string{"Column", "Nulls", "Distinct", "Min", "Max"}, prows)
	}
}
