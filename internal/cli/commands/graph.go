package commands

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/flowtask/internal/cli/output"
	"github.com/leapstack-labs/flowtask/internal/dag"
	"github.com/leapstack-labs/flowtask/internal/editor"
	"github.com/leapstack-labs/flowtask/internal/flow"
)

// GraphOptions holds options for the graph subcommands.
type GraphOptions struct {
	File   string
	Format string
}

// NewGraphCommand creates the graph command and its subcommands.
func NewGraphCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Inspect, export and import flow task graphs",
	}

	cmd.AddCommand(newGraphShowCommand())
	cmd.AddCommand(newGraphExportCommand())
	cmd.AddCommand(newGraphImportCommand())

	return cmd
}

func newGraphShowCommand() *cobra.Command {
	opts := &GraphOptions{}

	cmd := &cobra.Command{
		Use:   "show [flow-task]",
		Short: "Show the nodes, execution levels and problems of a graph",
		Long: `Show a flow task graph: its nodes with their inputs, the order they
execute in, and any problem that would stop a run.

The graph is fetched from the backend, or read from --file.`,
		Example: `  # Show a stored graph
  flowtask graph show 42

  # Inspect a local export as JSON
  flowtask graph show --file orders.yaml -o json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGraphShow(cmd, args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "Read the graph from a JSON or YAML file")

	return cmd
}

func newGraphExportCommand() *cobra.Command {
	opts := &GraphOptions{}

	cmd := &cobra.Command{
		Use:   "export <flow-task>",
		Short: "Write a stored graph to a file or stdout",
		Example: `  flowtask graph export 42 --file orders.yaml
  flowtask graph export 42 --format json > orders.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGraphExport(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "Output file (default: stdout)")
	cmd.Flags().StringVar(&opts.Format, "format", "", "json or yaml (default: from the file extension, else json)")

	return cmd
}

func newGraphImportCommand() *cobra.Command {
	opts := &GraphOptions{}

	cmd := &cobra.Command{
		Use:   "import <flow-task> <file>",
		Short: "Replace a stored graph with the contents of a file",
		Long: `Read a graph from a JSON or YAML file, check it, and save it as the graph
of the flow task. Structural problems such as dangling edges are rejected.`,
		Example: `  flowtask graph import 42 orders.yaml`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.File = args[1]
			return runGraphImport(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.Format, "format", "", "json or yaml (default: from the file extension)")

	return cmd
}

// loadGraph reads the graph from file when set, else fetches it.
func loadGraph(ctx context.Context, c *CommandContext, flowTaskID, file string) (flow.Graph, string, error) {
	if file != "" {
		g, err := flow.ReadGraphFile(file)
		return g, "", err
	}
	if flowTaskID == "" {
		return flow.Graph{}, "", fmt.Errorf("a flow task id or --file is required")
	}
	resp, err := c.Client.GetGraph(ctx, flowTaskID)
	if err != nil {
		return flow.Graph{}, "", fmt.Errorf("fetching graph of %s: %w", flowTaskID, err)
	}
	return resp.Graph(), resp.UpdatedAt, nil
}

// describeGraph builds the summary shown by graph show.
func describeGraph(flowTaskID string, g flow.Graph, updatedAt string) output.GraphOutput {
	out := output.GraphOutput{
		FlowTaskID: flowTaskID,
		Nodes:      make([]output.NodeInfo, 0, len(g.Nodes)),
		Edges:      g.Edges,
		UpdatedAt:  updatedAt,
	}
	for _, n := range g.Nodes {
		info := output.NodeInfo{ID: n.ID, Type: n.Type, Label: n.Data.Label()}
		for _, e := range g.Incoming(n.ID) {
			in := e.Source
			if e.TargetHandle != "" {
				in += " (" + e.TargetHandle + ")"
			}
			info.Inputs = append(info.Inputs, in)
		}
		out.Nodes = append(out.Nodes, info)
	}

	d, _ := dag.FromFlow(g)
	if levels, err := d.GetExecutionLevels(); err == nil {
		out.Levels = levels
	}
	out.Sources = d.GetRoots()
	out.Sinks = d.GetLeaves()

	for _, is := range editor.Validate(g) {
		out.Issues = append(out.Issues, output.IssueInfo{NodeID: is.NodeID, Message: is.Message})
	}
	return out
}

func runGraphShow(cmd *cobra.Command, args []string, opts *GraphOptions) error {
	c, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}

	var flowTaskID string
	if len(args) > 0 {
		flowTaskID = args[0]
	}
	g, updatedAt, err := loadGraph(cmd.Context(), c, flowTaskID, opts.File)
	if err != nil {
		return err
	}
	out := describeGraph(flowTaskID, g, updatedAt)

	r := c.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(out)
	}

	title := "Graph"
	if flowTaskID != "" {
		title = "Graph of flow task " + flowTaskID
	}
	r.Header(1, title)
	if out.UpdatedAt != "" {
		r.KeyValue("Updated", out.UpdatedAt)
	}
	r.KeyValue("Nodes", fmt.Sprintf("%d", len(out.Nodes)))
	r.KeyValue("Edges", fmt.Sprintf("%d", len(out.Edges)))
	if len(out.Sources) > 0 {
		r.KeyValue("Sources", strings.Join(out.Sources, ", "))
		r.KeyValue("Sinks", strings.Join(out.Sinks, ", "))
	}
	r.Println("")

	rows := make([][]string, 0, len(out.Nodes))
	for _, n := range out.Nodes {
		rows = append(rows, []string{n.ID, string(n.Type), n.Label, strings.Join(n.Inputs, ", ")})
	}
	r.Table([]string{"ID", "Type", "Label", "Inputs"}, rows)

	if len(out.Levels) > 0 {
		r.Println("")
		r.Header(2, "Execution levels")
		for i, level := range out.Levels {
			r.Printf("%d. %s\n", i, strings.Join(level, ", "))
		}
	}

	r.Println("")
	if len(out.Issues) == 0 {
		r.Success("graph is runnable")
		return nil
	}
	r.Header(2, "Problems")
	for _, is := range out.Issues {
		r.Warning(editor.Issue{NodeID: is.NodeID, Message: is.Message}.String())
	}
	return nil
}

func runGraphExport(cmd *cobra.Command, flowTaskID string, opts *GraphOptions) error {
	c, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}

	format := flow.FormatForPath(opts.File)
	if opts.Format != "" {
		if format, err = flow.ParseFormat(opts.Format); err != nil {
			return err
		}
	}

	g, _, err := loadGraph(cmd.Context(), c, flowTaskID, "")
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := flow.EncodeGraph(&buf, g, format); err != nil {
		return err
	}

	if opts.File == "" {
		_, err := c.Renderer.Writer().Write(buf.Bytes())
		return err
	}
	if err := os.WriteFile(opts.File, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", opts.File, err)
	}
	c.Logger.Info("graph exported", "flow_task", flowTaskID, "file", opts.File)
	c.Renderer.Success(fmt.Sprintf("exported %d nodes to %s", len(g.Nodes), opts.File))
	return nil
}

func runGraphImport(cmd *cobra.Command, flowTaskID string, opts *GraphOptions) error {
	c, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}

	format := flow.FormatForPath(opts.File)
	if opts.Format != "" {
		if format, err = flow.ParseFormat(opts.Format); err != nil {
			return err
		}
	}

	data, err := os.ReadFile(opts.File)
	if err != nil {
		return fmt.Errorf("reading %s: %w", opts.File, err)
	}
	g, err := flow.DecodeGraph(data, format)
	if err != nil {
		return fmt.Errorf("%s: %w", opts.File, err)
	}

	if err := c.Client.SaveGraph(cmd.Context(), flowTaskID, g); err != nil {
		return fmt.Errorf("saving graph of %s: %w", flowTaskID, err)
	}

	c.Renderer.Success(fmt.Sprintf("imported %d nodes and %d edges into flow task %s", len(g.Nodes), len(g.Edges), flowTaskID))
	for _, is := range editor.Validate(g) {
		c.Renderer.Warning(is.String())
	}
	return nil
}
