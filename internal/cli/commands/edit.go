package commands

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/flowtask/internal/ui"
)

// EditOptions holds options for the edit command.
type EditOptions struct {
	Watch     string
	Recover   bool
	NoBrowser bool
}

// NewEditCommand creates the edit command.
func NewEditCommand() *cobra.Command {
	opts := &EditOptions{}

	cmd := &cobra.Command{
		Use:   "edit <flow-task>",
		Short: "Open a flow task in the browser editor",
		Long: `Start a local editor server for a flow task and open it in the browser.

The graph is loaded from the backend, autosaved while you edit and saved
once more when the server stops. With --watch, changes to a local graph
file replace the editor's graph as soon as the file is written.`,
		Example: `  # Open flow task 42
  flowtask edit 42

  # Keep the graph in sync with a local file
  flowtask edit 42 --watch flows/42.yaml

  # Continue from a draft left by a failed save
  flowtask edit 42 --recover --no-browser`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEdit(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Watch, "watch", "w", "", "Graph file to watch for changes")
	cmd.Flags().BoolVar(&opts.Recover, "recover", false, "Restore the local draft before serving")
	cmd.Flags().BoolVar(&opts.NoBrowser, "no-browser", false, "Don't auto-open browser")

	return cmd
}

func runEdit(cmd *cobra.Command, flowTaskID string, opts *EditOptions) error {
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
	if err := c.Client.Health(ctx); err != nil {
		c.Renderer.Warning(fmt.Sprintf("backend at %s is unreachable, edits stay local until it returns", c.Cfg.APIURL))
		c.Logger.Debug("health check failed", "error", err)
	}

	ed, err := c.OpenEditor(ctx, flowTaskID, st, true)
	if err != nil {
		return err
	}
	defer ed.Close()

	if opts.Recover {
		ok, err := ed.RecoverDraft(ctx)
		if err != nil {
			return err
		}
		if !ok {
			c.Renderer.Warning("no local draft for flow task " + flowTaskID)
		}
	}

	server := ui.NewServer(ui.Config{
		Editor:    ed,
		History:   st,
		Host:      c.Cfg.UI.Host,
		Port:      c.Cfg.UI.Port,
		WatchFile: opts.Watch,
		Logger:    c.Logger,
	})

	url := "http://" + server.Addr()
	if !opts.NoBrowser && c.Renderer.IsTTY() {
		go openBrowser(url)
	}

	c.Renderer.Printf("Editing flow task %s on %s\n", flowTaskID, url)
	c.Renderer.Println("Press Ctrl+C to stop")

	serveErr := server.Serve(ctx)

	if ed.Store().IsDirty() {
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := ed.Save(saveCtx); err != nil {
			c.Renderer.Error("unsaved changes kept as a local draft: " + err.Error())
			if serveErr == nil {
				serveErr = err
			}
		} else {
			c.Renderer.Success("changes saved")
		}
	}
	return serveErr
}

// openBrowser opens the default browser to the specified URL.
func openBrowser(url string) {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url) //nolint:noctx
	case "linux":
		cmd = exec.Command("xdg-open", url) //nolint:noctx
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url) //nolint:noctx
	default:
		return
	}

	_ = cmd.Start()
}
