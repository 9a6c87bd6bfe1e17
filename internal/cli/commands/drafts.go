package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/flowtask/internal/cli/output"
)

// NewDraftsCommand creates the drafts command and its subcommands.
func NewDraftsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drafts",
		Short: "Manage local drafts of unsaved graphs",
		Long: `The editor keeps a local draft of a graph while saving it, and removes it
once the backend has accepted the save. A draft left behind means a save
failed or the editor stopped before it finished.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List pending drafts",
		Args:  cobra.NoArgs,
		RunE:  runDraftsList,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "restore <flow-task>",
		Short: "Save a pending draft to the backend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDraftsRestore(cmd, args[0])
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "discard <flow-task>",
		Short: "Delete a pending draft",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDraftsDiscard(cmd, args[0])
		},
	})

	return cmd
}

// draftOutput is the JSON shape of one draft.
type draftOutput struct {
	FlowTaskID string    `json:"flow_task_id"`
	Nodes      int       `json:"nodes"`
	Edges      int       `json:"edges"`
	Revision   uint64    `json:"revision"`
	SavedAt    time.Time `json:"saved_at"`
}

func runDraftsList(cmd *cobra.Command, _ []string) error {
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
	ids, err := st.ListDrafts(ctx)
	if err != nil {
		return err
	}

	out := make([]draftOutput, 0, len(ids))
	for _, id := range ids {
		d, err := st.LoadDraft(ctx, id)
		if err != nil {
			return err
		}
		if d == nil {
			continue
		}
		out = append(out, draftOutput{
			FlowTaskID: id,
			Nodes:      len(d.Graph.Nodes),
			Edges:      len(d.Graph.Edges),
			Revision:   d.Revision,
			SavedAt:    d.SavedAt,
		})
	}

	r := c.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(out)
	}
	r.Header(1, fmt.Sprintf("Drafts (%d)", len(out)))
	rows := make([][]string, 0, len(out))
	for _, d := range out {
		rows = append(rows, []string{
			d.FlowTaskID,
			fmt.Sprintf("%d", d.Nodes),
			fmt.Sprintf("%d", d.Edges),
			d.SavedAt.Local().Format(time.DateTime),
		})
	}
	r.Table([]string{"Flow task", "Nodes", "Edges", "Saved at"}, rows)
	return nil
}

func runDraftsRestore(cmd *cobra.Command, flowTaskID string) error {
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

	ok, err := ed.RecoverDraft(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no draft for flow task %s", flowTaskID)
	}
	if err := ed.Save(ctx); err != nil {
		return err
	}
	c.Renderer.Success("draft of flow task " + flowTaskID + " saved")
	return nil
}

func runDraftsDiscard(cmd *cobra.Command, flowTaskID string) error {
	c, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	st, err := c.OpenState()
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	if err := st.DeleteDraft(cmd.Context(), flowTaskID); err != nil {
		return err
	}
	c.Renderer.Success("draft of flow task " + flowTaskID + " discarded")
	return nil
}
