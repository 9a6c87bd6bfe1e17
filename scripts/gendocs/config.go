package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/flowtask/internal/cli/config"
	intconfig "github.com/leapstack-labs/flowtask/internal/config"
)

// ConfigField is one documented configuration key.
type ConfigField struct {
	Key         string
	Type        string
	Default     string
	Rules       string
	Description string
}

// configDescriptions documents each key. Keys missing here are reported so
// the reference cannot silently fall behind the model.
var configDescriptions = map[string]string{
	"api_url":               "Base URL of the flow-task backend API",
	"api_token":             "Bearer token sent with every request. `${VAR}` references are expanded",
	"state_path":            "Local SQLite database for drafts and job history, relative to the project root",
	"output":                "Output mode: auto, text, markdown or json",
	"verbose":               "Log debug output to stderr",
	"timeout":               "Timeout of a single backend request",
	"preview.limit":         "Maximum rows fetched by a preview",
	"preview.poll_interval": "Delay between preview status polls",
	"preview.timeout":       "Give up on a preview after this long",
	"run.poll_interval":     "Delay between run status polls",
	"schema.retry_delay":    "Delay before a failed column schema request is retried",
	"schema.max_retries":    "Retries of a failed column schema request",
	"schema.idle_ttl":       "Unused column schemas are evicted after this long",
	"schema.failure_ttl":    "A failed column schema is not requested again within this period",
	"autosave.enabled":      "Save the graph automatically while editing",
	"autosave.delay":        "Quiet period after the last edit before an autosave",
	"ui.host":               "Editor server listen host",
	"ui.port":               "Editor server listen port",
}

// generateConfigDocs generates the configuration reference page.
func generateConfigDocs(outDir string) error {
	log.Printf("Generating config docs to %s", outDir)

	if err := os.MkdirAll(outDir, 0750); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	fields := configFields(reflect.TypeOf(intconfig.Config{}), "")
	for _, f := range fields {
		if f.Description == "" {
			log.Printf("  warning: no description for %s", f.Key)
		}
	}

	example, err := exampleConfig()
	if err != nil {
		return err
	}

	w := NewMarkdownWriter()
	w.Frontmatter("Configuration", "flowtask configuration reference")
	w.GeneratedMarker()

	w.Header(1, "Configuration")
	w.Paragraph(fmt.Sprintf("flowtask reads %s from the project root, or the file given with %s. Environment variables prefixed with %s override the file, and command-line flags override both.",
		InlineCode(intconfig.ConfigFileName), InlineCode("--config"), InlineCode(config.EnvPrefix)))

	w.Header(2, "Keys")
	rows := make([][]string, 0, len(fields))
	for _, f := range fields {
		def := "-"
		if f.Default != "" {
			def = InlineCode(f.Default)
		}
		rules := "-"
		if f.Rules != "" {
			rules = InlineCode(f.Rules)
		}
		rows = append(rows, []string{InlineCode(f.Key), f.Type, def, rules, cleanDescription(f.Description)})
	}
	w.Table([]string{"Key", "Type", "Default", "Constraints", "Description"}, rows)

	w.Header(2, "Defaults")
	w.CodeBlock("yaml", example)

	filename := filepath.Join(outDir, "configuration.md")
	if err := os.WriteFile(filename, w.Bytes(), 0600); err != nil {
		return err
	}
	log.Printf("  Generated configuration.md")
	return nil
}

// configFields walks the koanf tags of t, flattening nested sections.
func configFields(t reflect.Type, prefix string) []ConfigField {
	defaults := intconfig.Defaults()

	var fields []ConfigField
	for i := range t.NumField() {
		sf := t.Field(i)
		name := sf.Tag.Get("koanf")
		if name == "" {
			continue
		}
		key := prefix + name

		if sf.Type.Kind() == reflect.Struct && sf.Type != reflect.TypeOf(time.Duration(0)) {
			fields = append(fields, configFields(sf.Type, key+".")...)
			continue
		}

		f := ConfigField{
			Key:         key,
			Type:        typeName(sf.Type),
			Rules:       sf.Tag.Get("validate"),
			Description: configDescriptions[key],
		}
		if v, ok := defaults[key]; ok {
			f.Default = fmt.Sprint(v)
		}
		fields = append(fields, f)
	}
	return fields
}

func typeName(t reflect.Type) string {
	if t == reflect.TypeOf(time.Duration(0)) {
		return "duration"
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int64, reflect.Uint64:
		return "int"
	default:
		return t.Kind().String()
	}
}

// exampleConfig renders the defaults as a nested YAML document.
func exampleConfig() (string, error) {
	defaults := intconfig.Defaults()
	keys := make([]string, 0, len(defaults))
	for k := range defaults {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	doc := make(map[string]any)
	for _, k := range keys {
		parts := strings.Split(k, ".")
		m := doc
		for _, p := range parts[:len(parts)-1] {
			sub, ok := m[p].(map[string]any)
			if !ok {
				sub = make(map[string]any)
				m[p] = sub
			}
			m = sub
		}
		m[parts[len(parts)-1]] = defaults[k]
	}

	out, err := yaml.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to render default config: %w", err)
	}
	return string(out), nil
}
