package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/flowtask/internal/api"
	"github.com/leapstack-labs/flowtask/internal/cli/config"
	"github.com/leapstack-labs/flowtask/internal/cli/output"
	"github.com/leapstack-labs/flowtask/internal/editor"
	"github.com/leapstack-labs/flowtask/internal/state"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Client   *api.Client
	Renderer *output.Renderer
}

// NewCommandContext creates a CommandContext with a backend client and renderer.
func NewCommandContext(cmd *cobra.Command) (*CommandContext, error) {
	cfg, err := getConfig()
	if err != nil {
		return nil, err
	}
	logger := config.GetLogger(cmd.Context())

	client := api.NewClient(cfg.APIURL, cfg.APIToken, logger)
	client.HTTPClient.Timeout = cfg.Timeout

	return &CommandContext{
		Cfg:      cfg,
		Logger:   logger,
		Client:   client,
		Renderer: output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.Output)),
	}, nil
}

// OpenState opens and migrates the local state database.
// The caller must Close it.
func (c *CommandContext) OpenState() (*state.SQLiteStore, error) {
	if dir := filepath.Dir(c.Cfg.StatePath); c.Cfg.StatePath != ":memory:" && dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	st := state.NewSQLiteStore()
	if err := st.Open(c.Cfg.StatePath); err != nil {
		return nil, err
	}
	if err := st.Migrate(); err != nil {
		_ = st.Close()
		return nil, err
	}
	if v, err := st.GetMigrationVersion(); err == nil {
		c.Logger.Debug("state opened", "path", c.Cfg.StatePath, "schema_version", v)
	}
	return st, nil
}

// OpenEditor opens an editor session for flowTaskID. st may be nil, which
// disables drafts and job history. Autosave runs only when interactive is
// set and the configuration allows it. The caller must Close the editor.
func (c *CommandContext) OpenEditor(ctx context.Context, flowTaskID string, st *state.SQLiteStore, interactive bool) (*editor.Editor, error) {
	var opts editor.Options
	if st != nil {
		opts = c.Cfg.EditorOptions(st, st)
	} else {
		opts = c.Cfg.EditorOptions(nil, nil)
	}
	if !interactive {
		opts.DisableAutosave = true
	}
	return editor.Open(ctx, flowTaskID, c.Client, opts, c.Logger)
}

// getConfig returns the configuration loaded by the root command, loading
// it from the usual sources when a command runs on its own.
func getConfig() (*config.Config, error) {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg, nil
	}
	return config.LoadConfig("", nil)
}
