package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/flowtask/internal/cli/output"
	"github.com/leapstack-labs/flowtask/internal/editor"
	"github.com/leapstack-labs/flowtask/internal/flow"
	"github.com/leapstack-labs/flowtask/internal/schema"
)

// SchemaOptions holds options for the schema command.
type SchemaOptions struct {
	Mode string
}

// NewSchemaCommand creates the schema command.
func NewSchemaCommand() *cobra.Command {
	opts := &SchemaOptions{}

	cmd := &cobra.Command{
		Use:   "schema <flow-task> <node>",
		Short: "Resolve the columns of a node",
		Long: `Ask the backend which columns a node produces.

Modes:
  output    columns the node itself produces (default)
  upstream  columns flowing into a single-input node
  join      columns on both inputs of a join or union`,
		Example: `  flowtask schema 42 clean_3_1718000000000
  flowtask schema 42 join_1 --mode join -o json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchema(cmd, args[0], args[1], opts)
		},
	}

	cmd.Flags().StringVar(&opts.Mode, "mode", "output", "output, upstream or join")
	_ = cmd.RegisterFlagCompletionFunc("mode", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"output", "upstream", "join"}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func schemaOutput(nodeID string, res schema.Result) output.SchemaOutput {
	out := output.SchemaOutput{NodeID: nodeID, Columns: res.Columns}
	if out.Columns == nil {
		out.Columns = []flow.Column{}
	}
	if res.IsError && res.Err != nil {
		out.Error = res.Err.Error()
	}
	return out
}

func resolveSchema(ctx context.Context, ed *editor.Editor, nodeID, mode string) ([]output.SchemaOutput, string, error) {
	if _, ok := ed.Store().Node(nodeID); !ok {
		return nil, "", fmt.Errorf("%w: %s", editor.ErrUnknownNode, nodeID)
	}

	switch mode {
	case "", "output":
		return []output.SchemaOutput{schemaOutput(nodeID, ed.NodeColumns(ctx, nodeID))}, "", nil
	case "upstream":
		up, ok := ed.Store().Graph().Upstream(nodeID)
		if !ok {
			return nil, "no input connected", nil
		}
		return []output.SchemaOutput{schemaOutput(up, ed.UpstreamColumns(ctx, nodeID))}, "", nil
	case "join":
		in := ed.JoinColumns(ctx, nodeID)
		return []output.SchemaOutput{
			schemaOutput(in.LeftNode, in.Left),
			schemaOutput(in.RightNode, in.Right),
		}, in.Warning, nil
	default:
		return nil, "", fmt.Errorf("unknown mode %q (want output, upstream or join)", mode)
	}
}

func runSchema(cmd *cobra.Command, flowTaskID, nodeID string, opts *SchemaOptions) error {
	c, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	ed, err := c.OpenEditor(ctx, flowTaskID, nil, false)
	if err != nil {
		return err
	}
	defer ed.Close()

	results, warning, err := resolveSchema(ctx, ed, nodeID, opts.Mode)
	if err != nil {
		return err
	}

	r := c.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(results)
	}

	if warning != "" {
		r.Warning(warning)
	}
	for _, res := range results {
		title := "Columns of " + res.NodeID
		if res.NodeID == "" {
			title = "Unconnected input"
		}
		r.Header(2, title)
		if res.Error != "" {
			r.Error(res.Error)
			continue
		}
		rows := make([][]string, 0, len(res.Columns))
		for _, col := range res.Columns {
			rows = append(rows, []string{col.Name, col.Type})
		}
		r.Table([]string{"Column", "Type"}, rows)
		r.Println("")
	}
	return nil
}
