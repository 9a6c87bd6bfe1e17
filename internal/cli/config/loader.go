// Package config loads the flowtask CLI configuration.
//
// Layers, lowest to highest: built-in defaults, flowtask.yaml, FLOWTASK_*
// environment variables, explicitly set command-line flags.
package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	intconfig "github.com/leapstack-labs/flowtask/internal/config"
)

// Config is the shared configuration model.
type Config = intconfig.Config

// Default configuration values re-exported for CLI code.
const (
	DefaultStateFile = intconfig.DefaultStateFile
	DefaultOutput    = intconfig.DefaultOutput
)

// EnvPrefix prefixes every configuration environment variable.
// A double underscore separates nested keys: FLOWTASK_PREVIEW__LIMIT.
const EnvPrefix = "FLOWTASK_"

// loggerKey is used to store logger in context.
type loggerKey struct{}

// flagKeys maps flags whose names do not follow the key naming.
var flagKeys = map[string]string{
	"state":                 "state_path",
	"api":                   "api_url",
	"token":                 "api_token",
	"preview-limit":         "preview.limit",
	"preview-timeout":       "preview.timeout",
	"no-autosave":           "autosave.enabled",
	"autosave-delay":        "autosave.delay",
	"port":                  "ui.port",
	"host":                  "ui.host",
	"schema-retry-delay":    "schema.retry_delay",
	"preview-poll-interval": "preview.poll_interval",
}

// Package-level koanf instance and config file tracking
var (
	k              = koanf.New(".")
	configFileUsed string
	currentConfig  *Config
)

// ResetConfig resets the koanf instance. Used for testing.
func ResetConfig() {
	k = koanf.New(".")
	configFileUsed = ""
	currentConfig = nil
}

// envKey transforms FLOWTASK_PREVIEW__POLL_INTERVAL into preview.poll_interval.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// flagKey transforms a flag into its config key. Unchanged flags and flags
// that are not configuration (like --config) yield "".
func flagKey(flags *pflag.FlagSet, f *pflag.Flag) (string, any) {
	if !f.Changed || f.Name == "config" {
		return "", nil
	}
	if f.Name == "no-autosave" {
		v, _ := flags.GetBool(f.Name)
		return flagKeys[f.Name], !v
	}
	key, ok := flagKeys[f.Name]
	if !ok {
		key = strings.ReplaceAll(f.Name, "-", "_")
	}
	return key, posflag.FlagVal(flags, f)
}

// projectRoot is the directory relative paths in the config resolve against:
// the explicit config file's directory, else the nearest directory upward
// holding flowtask.yaml, else the working directory.
func projectRoot(cfgFile string) string {
	if cfgFile != "" {
		if abs, err := filepath.Abs(cfgFile); err == nil {
			return filepath.Dir(abs)
		}
	}
	cwd, err := os.Getwd()
	if err != nil || cwd == "" {
		return "."
	}
	if root := intconfig.FindProjectRoot(cwd); root != "" {
		return root
	}
	return cwd
}

// LoadConfig loads configuration from file, environment variables, and flags.
// Precedence (highest to lowest): flags > env vars > config file > defaults
func LoadConfig(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k = koanf.New(".")
	configFileUsed = ""

	root := projectRoot(cfgFile)

	// 1. Defaults
	if err := k.Load(confmap.Provider(intconfig.Defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config file
	if cfgFile == "" {
		cfgFile = intconfig.FindConfigFile(root)
	}
	if cfgFile != "" {
		if err := k.Load(file.Provider(cfgFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", cfgFile, err)
		}
		configFileUsed = cfgFile
	}

	// 3. Environment
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Explicitly set flags
	var flagState string
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			return flagKey(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
		if f := flags.Lookup("state"); f != nil && f.Changed {
			flagState = f.Value.String()
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// A --state flag is relative to the working directory; everything else
	// is relative to the project root.
	if flagState != "" && flagState != ":memory:" {
		if abs, err := filepath.Abs(flagState); err == nil {
			cfg.StatePath = abs
		}
	} else {
		cfg.StatePath = intconfig.ResolvePath(cfg.StatePath, root)
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	cfg.APIToken = os.ExpandEnv(cfg.APIToken)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	currentConfig = &cfg
	return &cfg, nil
}

// GetConfigFileUsed returns the path to the config file being used, if any.
func GetConfigFileUsed() string {
	return configFileUsed
}

// GetCurrentConfig returns the currently loaded configuration.
// This is available after LoadConfig is called.
func GetCurrentConfig() *Config {
	return currentConfig
}

// WithLogger returns a copy of ctx carrying logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// GetLogger retrieves the logger from the command context.
func GetLogger(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
			return l
		}
	}
	// Return discard logger as safe fallback
	return slog.New(slog.DiscardHandler)
}
