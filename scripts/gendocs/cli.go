package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/leapstack-labs/flowtask/internal/cli"
	"github.com/leapstack-labs/flowtask/internal/cli/config"
	intconfig "github.com/leapstack-labs/flowtask/internal/config"
)

// groupIntros introduce each command group on the index page.
var groupIntros = map[string]string{
	cli.GroupGraphs:  "Read, check and move graphs without opening an editor. Schema lookups use the same fingerprint cache as the editor.",
	cli.GroupJobs:    "Submit previews and runs to the backend, wait for them, and browse the local job history.",
	cli.GroupEditing: "Serve the browser editor for a flow task and manage the local drafts kept when a save fails.",
}

// generateCLIDocs writes index.md plus one page per top-level command.
// Subcommands are documented as sections of their parent's page.
func generateCLIDocs(outDir string) error {
	log.Printf("Generating CLI docs to %s", outDir)

	if err := os.MkdirAll(outDir, 0750); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	root := cli.NewRootCmd()
	pages := map[string][]byte{"index.md": cliIndex(root)}
	for _, cmd := range availableCommands(root) {
		pages[cmd.Name()+".md"] = commandPage(cmd)
	}

	for name, data := range pages {
		if err := os.WriteFile(filepath.Join(outDir, name), data, 0600); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
		log.Printf("  Generated %s", name)
	}
	return nil
}

func availableCommands(cmd *cobra.Command) []*cobra.Command {
	var out []*cobra.Command
	for _, c := range cmd.Commands() {
		if c.IsAvailableCommand() && c.Name() != "help" {
			out = append(out, c)
		}
	}
	return out
}

func cliIndex(root *cobra.Command) []byte {
	w := NewMarkdownWriter()
	w.Frontmatter("CLI Reference", "Command-line interface reference for flowtask")
	w.GeneratedMarker()

	w.Header(1, "CLI Reference")
	w.Paragraph("flowtask inspects, previews and runs flow task graphs from the terminal, and serves the browser editor for a flow task.")
	w.CodeBlock("bash", "go install github.com/leapstack-labs/flowtask/cmd/flowtask@latest")

	grouped := make(map[string][]*cobra.Command)
	for _, c := range availableCommands(root) {
		grouped[c.GroupID] = append(grouped[c.GroupID], c)
	}

	sections := make([]*cobra.Group, 0, len(root.Groups())+1)
	sections = append(sections, root.Groups()...)
	sections = append(sections, &cobra.Group{Title: "Other Commands:"})
	for _, g := range sections {
		cmds := grouped[g.ID]
		if len(cmds) == 0 {
			continue
		}
		w.Header(2, strings.TrimSuffix(g.Title, ":"))
		if intro := groupIntros[g.ID]; intro != "" {
			w.Paragraph(intro)
		}
		rows := make([][]string, 0, len(cmds))
		for _, c := range cmds {
			rows = append(rows, []string{
				fmt.Sprintf("[%s](%s.md)", c.Name(), c.Name()),
				InlineCode(synopsis(c)),
				cleanDescription(c.Short),
			})
		}
		w.Table([]string{"Command", "Synopsis", "Description"}, rows)
	}

	w.Header(2, "Global Options")
	w.Paragraph("Every command accepts these flags. A flag overrides the matching configuration key.")
	writeFlags(w, root.PersistentFlags())

	w.Header(2, "Environment Variables")
	w.Paragraph(fmt.Sprintf("Each configuration key maps to a variable prefixed with %s; a double underscore separates nested keys. Variables override the config file and are overridden by flags.",
		InlineCode(config.EnvPrefix)))
	fields := configFields(reflect.TypeOf(intconfig.Config{}), "")
	rows := make([][]string, 0, len(fields))
	for _, f := range fields {
		rows = append(rows, []string{InlineCode(envName(f.Key)), InlineCode(f.Key), cleanDescription(f.Description)})
	}
	w.Table([]string{"Variable", "Key", "Description"}, rows)

	w.Header(2, "Exit Codes")
	w.Table([]string{"Code", "Meaning"}, [][]string{
		{InlineCode("0"), "Success"},
		{InlineCode("1"), "Any error, including a failed preview or run and an interrupted wait"},
	})

	return w.Bytes()
}

// commandPage documents cmd and, as further sections, each of its subcommands.
func commandPage(cmd *cobra.Command) []byte {
	w := NewMarkdownWriter()
	w.Frontmatter(cmd.CommandPath(), cleanDescription(cmd.Short))
	w.GeneratedMarker()

	w.Header(1, cmd.CommandPath())
	writeCommand(w, cmd)

	for _, sub := range availableCommands(cmd) {
		w.Header(2, sub.CommandPath())
		writeCommand(w, sub)
	}

	if cmd.HasAvailableInheritedFlags() {
		w.Header(2, "Global Options")
		w.Paragraph("See [global options](index.md#global-options).")
	}
	return w.Bytes()
}

func writeCommand(w *MarkdownWriter, cmd *cobra.Command) {
	desc := cmd.Long
	if desc == "" {
		desc = cmd.Short
	}
	w.Paragraph(desc)

	if cmd.Runnable() {
		w.CodeBlock("bash", synopsis(cmd))
	}
	if len(cmd.Aliases) > 0 {
		names := make([]string, len(cmd.Aliases))
		for i, a := range cmd.Aliases {
			names[i] = InlineCode(a)
		}
		w.Paragraph("Aliases: " + strings.Join(names, ", "))
	}
	if cmd.HasAvailableLocalFlags() {
		writeFlags(w, cmd.LocalNonPersistentFlags())
	}
	if cmd.Example != "" {
		w.CodeBlock("bash", dedent(cmd.Example))
	}
}

// synopsis is the full command path followed by the arguments of Use.
func synopsis(cmd *cobra.Command) string {
	s := cmd.CommandPath()
	if _, args, ok := strings.Cut(cmd.Use, " "); ok {
		s += " " + args
	}
	if cmd.HasAvailableSubCommands() && !cmd.Runnable() {
		s += " <command>"
	}
	if cmd.HasAvailableLocalFlags() {
		s += " [options]"
	}
	return s
}

func writeFlags(w *MarkdownWriter, flags *pflag.FlagSet) {
	var rows [][]string
	flags.VisitAll(func(f *pflag.Flag) {
		if f.Hidden {
			return
		}
		name := "--" + f.Name
		if f.Shorthand != "" {
			name = "-" + f.Shorthand + ", " + name
		}
		def := "-"
		if f.DefValue != "" && f.DefValue != "0" && f.DefValue != "0s" && f.DefValue != "[]" {
			def = InlineCode(f.DefValue)
		}
		rows = append(rows, []string{InlineCode(name), f.Value.Type(), def, cleanDescription(f.Usage)})
	})
	if len(rows) > 0 {
		w.Table([]string{"Flag", "Type", "Default", "Description"}, rows)
	}
}

// envName is the environment variable that sets key.
func envName(key string) string {
	return config.EnvPrefix + strings.ToUpper(strings.ReplaceAll(key, ".", "__"))
}

// dedent strips the indentation of the first non-blank line from every line.
func dedent(s string) string {
	lines := strings.Split(strings.Trim(s, "\n"), "\n")
	indent := ""
	for _, l := range lines {
		if t := strings.TrimLeft(l, " \t"); t != "" {
			indent = l[:len(l)-len(t)]
			break
		}
	}
	for i, l := range lines {
		lines[i] = strings.TrimPrefix(l, indent)
	}
	return strings.Join(lines, "\n")
}
