// Package cli provides the command-line interface for flowtask.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/flowtask/internal/cli/commands"
	"github.com/leapstack-labs/flowtask/internal/cli/config"
)

var cfgFile string

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "flowtask",
		Short: "flowtask - visual ETL flow editor",
		Long: `flowtask edits and runs flow tasks: graphs of input, transform and output
nodes stored by the flow-task backend.

It opens a local browser editor with column schema resolution, data previews
and run tracking, and offers the same operations as scriptable commands.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Skip config loading for help and completion commands
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" || cmd.Name() == "version" {
				return nil
			}

			cfg, err := config.LoadConfig(cfgFile, cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}

			level := slog.LevelWarn
			if cfg.Verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
			cmd.SetContext(config.WithLogger(cmd.Context(), logger))

			if cfg.Verbose {
				if configFile := config.GetConfigFileUsed(); configFile != "" {
					logger.Debug("using config file", "path", configFile)
				}
				logger.Debug("configuration loaded", "api", cfg.APIURL, "state", cfg.StatePath)
			}

			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
`)

	// Global persistent flags
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: ./flowtask.yaml)")
	pf.String("api", "", "Flow-task backend base URL")
	pf.String("token", "", "Bearer token for the backend")
	pf.String("state", "", "Path to the local state database")
	pf.StringP("output", "o", "", "Output format (auto|text|markdown|json)")
	pf.BoolP("verbose", "v", false, "Verbose output")
	pf.Duration("timeout", 0, "Backend request timeout")
	pf.Int("preview-limit", 0, "Maximum rows returned by a preview")
	pf.Duration("preview-timeout", 0, "How long to wait for a preview")
	pf.Duration("preview-poll-interval", 0, "Preview status poll interval")
	pf.Duration("schema-retry-delay", 0, "Initial delay between schema probe retries")
	pf.Bool("no-autosave", false, "Disable autosave in the editor")
	pf.Duration("autosave-delay", 0, "Quiet period before autosaving")
	pf.String("host", "", "Editor server host")
	pf.Int("port", 0, "Editor server port")

	_ = rootCmd.RegisterFlagCompletionFunc("output", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"auto", "text", "markdown", "json"}, cobra.ShellCompDirectiveNoFileComp
	})

	// Add subcommands
	rootCmd.AddGroup(
		&cobra.Group{ID: GroupGraphs, Title: "Graph Commands:"},
		&cobra.Group{ID: GroupJobs, Title: "Job Commands:"},
		&cobra.Group{ID: GroupEditing, Title: "Editing Commands:"},
	)
	addGrouped(rootCmd, GroupGraphs,
		commands.NewGraphCommand(),
		commands.NewFingerprintCommand(),
		commands.NewSchemaCommand(),
	)
	addGrouped(rootCmd, GroupJobs,
		commands.NewPreviewCommand(),
		commands.NewRunCommand(),
		commands.NewJobsCommand(),
	)
	addGrouped(rootCmd, GroupEditing,
		commands.NewEditCommand(),
		commands.NewDraftsCommand(),
	)
	rootCmd.AddCommand(commands.NewVersionCommand(Version, BuildDate, GitCommit))
	rootCmd.AddCommand(NewCompletionCommand())

	return rootCmd
}

// Command group ids of the root command.
const (
	GroupGraphs  = "graphs"
	GroupJobs    = "jobs"
	GroupEditing = "editing"
)

func addGrouped(root *cobra.Command, group string, cmds ...*cobra.Command) {
	for _, c := range cmds {
		c.GroupID = group
		root.AddCommand(c)
	}
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	rootCmd := NewRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// NewCompletionCommand creates the completion command.
func NewCompletionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for flowtask.

To load completions:

Bash:
  $ source <(flowtask completion bash)

Zsh:
  # If shell completion is not already enabled in your environment,
  # you will need to enable it. Execute the following once:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc

  $ flowtask completion zsh > "${fpath[1]}/_flowtask"

Fish:
  $ flowtask completion fish | source

PowerShell:
  PS> flowtask completion powershell | Out-String | Invoke-Expression
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			}
			return nil
		},
	}
	return cmd
}
