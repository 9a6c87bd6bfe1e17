package config

import (
	"github.com/leapstack-labs/flowtask/internal/api"
	"github.com/leapstack-labs/flowtask/internal/editor"
	"github.com/leapstack-labs/flowtask/internal/jobs"
	"github.com/leapstack-labs/flowtask/internal/schema"
)

// Default configuration values.
const (
	DefaultAPIURL    = "http://localhost:8000/api"
	DefaultStateFile = ".flowtask/state.db"
	DefaultOutput    = "auto" // Auto-detect: TTY=text, non-TTY=markdown
	DefaultUIHost    = "127.0.0.1"
	DefaultUIPort    = 8766
)

// Defaults returns the flat key/value defaults loaded before any other layer.
func Defaults() map[string]any {
	s := schema.DefaultOptions()
	j := jobs.DefaultOptions()
	e := editor.DefaultOptions()

	return map[string]any{
		"api_url":               DefaultAPIURL,
		"api_token":             "",
		"state_path":            DefaultStateFile,
		"output":                DefaultOutput,
		"verbose":               false,
		"timeout":               api.DefaultTimeout.String(),
		"preview.limit":         j.PreviewLimit,
		"preview.poll_interval": j.PreviewPollInterval.String(),
		"preview.timeout":       j.PreviewTimeout.String(),
		"run.poll_interval":     j.RunPollInterval.String(),
		"schema.retry_delay":    s.RetryDelay.String(),
		"schema.max_retries":    s.MaxRetries,
		"schema.idle_ttl":       s.IdleTTL.String(),
		"schema.failure_ttl":    s.FailureTTL.String(),
		"autosave.enabled":      true,
		"autosave.delay":        e.AutosaveDelay.String(),
		"ui.host":               DefaultUIHost,
		"ui.port":               DefaultUIPort,
	}
}

// SchemaOptions converts the schema section into resolver options.
func (c *Config) SchemaOptions() schema.Options {
	return schema.Options{
		RetryDelay: c.Schema.RetryDelay,
		MaxRetries: c.Schema.MaxRetries,
		IdleTTL:    c.Schema.IdleTTL,
		FailureTTL: c.Schema.FailureTTL,
	}
}

// JobOptions converts the preview and run sections into orchestrator options.
func (c *Config) JobOptions(rec jobs.Recorder) jobs.Options {
	return jobs.Options{
		PreviewLimit:        c.Preview.Limit,
		PreviewPollInterval: c.Preview.PollInterval,
		PreviewTimeout:      c.Preview.Timeout,
		RunPollInterval:     c.Run.PollInterval,
		Recorder:            rec,
	}
}

// EditorOptions assembles editor session options. drafts and rec may be nil.
func (c *Config) EditorOptions(drafts editor.DraftStore, rec jobs.Recorder) editor.Options {
	return editor.Options{
		Schema:          c.SchemaOptions(),
		Jobs:            c.JobOptions(rec),
		AutosaveDelay:   c.Autosave.Delay,
		DisableAutosave: !c.Autosave.Enabled,
		Drafts:          drafts,
	}
}
