package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/flowtask/internal/cli/output"
	"github.com/leapstack-labs/flowtask/internal/fingerprint"
)

// NewFingerprintCommand creates the fingerprint command.
func NewFingerprintCommand() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "fingerprint <flow-task> <node>",
		Short: "Show the schema fingerprint of a node",
		Long: `Show the schema fingerprint of a node: the canonical description of the
node and its ancestors that keys the column schema cache.

Two graphs give a node the same fingerprint exactly when its output
columns cannot differ between them.`,
		Example: `  flowtask fingerprint 42 clean_3_1718000000000
  flowtask fingerprint local join_1 --file orders.yaml -o json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFingerprint(cmd, args[0], args[1], file)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Read the graph from a JSON or YAML file")

	return cmd
}

func runFingerprint(cmd *cobra.Command, flowTaskID, nodeID, file string) error {
	c, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}

	g, _, err := loadGraph(cmd.Context(), c, flowTaskID, file)
	if err != nil {
		return err
	}

	fp, err := fingerprint.Compute(nodeID, g)
	if err != nil {
		return err
	}
	out := output.FingerprintOutput{
		NodeID:    nodeID,
		Digest:    fp.Digest(),
		Key:       fp.Key,
		Ancestors: fp.Ancestors,
	}

	r := c.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(out)
	}

	r.Header(1, "Fingerprint of "+nodeID)
	r.KeyValue("Digest", out.Digest)
	r.KeyValue("Ancestors", fmt.Sprintf("%d", len(out.Ancestors)))
	for _, id := range out.Ancestors {
		r.Printf("  - %s\n", id)
	}
	if c.Cfg.Verbose {
		r.Println("")
		r.Println(output.FormatCodeBlock("json", out.Key))
	}
	return nil
}
