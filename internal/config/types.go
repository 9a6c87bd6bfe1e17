// Package config defines the flowtask configuration model shared by the CLI
// and the local editor server.
package config

import "time"

// Config holds all configuration options.
type Config struct {
	APIURL    string         `koanf:"api_url" validate:"required,url"`
	APIToken  string         `koanf:"api_token"`
	StatePath string         `koanf:"state_path"`
	Output    string         `koanf:"output" validate:"oneof=auto text markdown json"`
	Verbose   bool           `koanf:"verbose"`
	Timeout   time.Duration  `koanf:"timeout" validate:"gt=0"`
	Preview   PreviewConfig  `koanf:"preview"`
	Run       RunConfig      `koanf:"run"`
	Schema    SchemaConfig   `koanf:"schema"`
	Autosave  AutosaveConfig `koanf:"autosave"`
	UI        UIConfig       `koanf:"ui"`
}

// PreviewConfig tunes preview jobs.
type PreviewConfig struct {
	Limit        int           `koanf:"limit" validate:"gt=0,lte=100000"`
	PollInterval time.Duration `koanf:"poll_interval" validate:"gte=100ms"`
	Timeout      time.Duration `koanf:"timeout" validate:"gtefield=PollInterval"`
}

// RunConfig tunes full runs.
type RunConfig struct {
	PollInterval time.Duration `koanf:"poll_interval" validate:"gte=100ms"`
}

// SchemaConfig tunes the column schema cache.
type SchemaConfig struct {
	RetryDelay time.Duration `koanf:"retry_delay" validate:"gte=0"`
	MaxRetries uint64        `koanf:"max_retries" validate:"lte=5"`
	IdleTTL    time.Duration `koanf:"idle_ttl" validate:"gte=1s"`
	FailureTTL time.Duration `koanf:"failure_ttl" validate:"gte=0"`
}

// AutosaveConfig tunes the autosave debouncer.
type AutosaveConfig struct {
	Enabled bool          `koanf:"enabled"`
	Delay   time.Duration `koanf:"delay" validate:"gte=100ms"`
}

// UIConfig holds configuration for the local editor server.
type UIConfig struct {
	Host string `koanf:"host" validate:"required"`
	Port int    `koanf:"port" validate:"gt=0,lte=65535"`
}
