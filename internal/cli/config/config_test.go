package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/flowtask/internal/testutil"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "flowtask.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func newFlags() *pflag.FlagSet {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("config", "", "config file")
	flags.String("api", "", "backend URL")
	flags.String("state", "", "state database")
	flags.StringP("output", "o", "", "output format")
	flags.BoolP("verbose", "v", false, "verbose")
	flags.Int("preview-limit", 0, "preview row limit")
	flags.Bool("no-autosave", false, "disable autosave")
	flags.Int("port", 0, "ui port")
	return flags
}

func TestLoadConfig_Defaults(t *testing.T) {
	ResetConfig()
	t.Chdir(t.TempDir())

	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8000/api", cfg.APIURL)
	assert.Equal(t, DefaultOutput, cfg.Output)
	assert.Equal(t, 500, cfg.Preview.Limit)
	assert.Equal(t, 1500*time.Millisecond, cfg.Preview.PollInterval)
	assert.Equal(t, 2*time.Minute, cfg.Preview.Timeout)
	assert.Equal(t, 2*time.Second, cfg.Run.PollInterval)
	assert.Equal(t, 10*time.Minute, cfg.Schema.IdleTTL)
	assert.Equal(t, uint64(1), cfg.Schema.MaxRetries)
	assert.True(t, cfg.Autosave.Enabled)
	assert.Equal(t, 3*time.Second, cfg.Autosave.Delay)
	assert.True(t, filepath.IsAbs(cfg.StatePath))
	assert.Equal(t, filepath.Join(".flowtask", "state.db"), filepath.Join(filepath.Base(filepath.Dir(cfg.StatePath)), filepath.Base(cfg.StatePath)))
	assert.Empty(t, GetConfigFileUsed())
	assert.Same(t, cfg, GetCurrentConfig())
}

func TestLoadConfig_File(t *testing.T) {
	ResetConfig()
	path := writeConfig(t, `api_url: https://flows.example.com/api/
api_token: ${FLOWTASK_TEST_TOKEN}
output: json
state_path: local/state.db
preview:
  limit: 100
  poll_interval: 500ms
schema:
  failure_ttl: 1m
autosave:
  enabled: false
`)
	t.Setenv("FLOWTASK_TEST_TOKEN", "s3cret")

	cfg, err := LoadConfig(path, nil)
	require.NoError(t, err)

	assert.Equal(t, path, GetConfigFileUsed())
	assert.Equal(t, "https://flows.example.com/api", cfg.APIURL, "trailing slash trimmed")
	assert.Equal(t, "s3cret", cfg.APIToken)
	assert.Equal(t, "json", cfg.Output)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "local", "state.db"), cfg.StatePath)
	assert.Equal(t, 100, cfg.Preview.Limit)
	assert.Equal(t, 500*time.Millisecond, cfg.Preview.PollInterval)
	assert.Equal(t, 2*time.Minute, cfg.Preview.Timeout, "unset keys keep defaults")
	assert.Equal(t, time.Minute, cfg.Schema.FailureTTL)
	assert.False(t, cfg.Autosave.Enabled)
}

func TestLoadConfig_DiscoversFileUpward(t *testing.T) {
	ResetConfig()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "flowtask.yaml"), []byte("output: markdown\n"), 0600))
	nested := filepath.Join(root, "flows", "daily")
	require.NoError(t, os.MkdirAll(nested, 0755))
	t.Chdir(nested)

	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)
	assert.Equal(t, "markdown", cfg.Output)
	assert.Equal(t, filepath.Join(root, ".flowtask", "state.db"), cfg.StatePath)
}

func TestLoadConfig_EnvPrecedenceOverFile(t *testing.T) {
	ResetConfig()
	path := writeConfig(t, "output: text\npreview:\n  limit: 100\n")
	t.Setenv("FLOWTASK_OUTPUT", "json")
	t.Setenv("FLOWTASK_PREVIEW__LIMIT", "250")
	t.Setenv("FLOWTASK_AUTOSAVE__DELAY", "10s")

	cfg, err := LoadConfig(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.Output)
	assert.Equal(t, 250, cfg.Preview.Limit)
	assert.Equal(t, 10*time.Second, cfg.Autosave.Delay)
}

func TestLoadConfig_FlagPrecedence(t *testing.T) {
	ResetConfig()
	path := writeConfig(t, "output: text\npreview:\n  limit: 100\n")
	t.Setenv("FLOWTASK_OUTPUT", "markdown")
	t.Setenv("FLOWTASK_PREVIEW__LIMIT", "250")

	flags := newFlags()
	require.NoError(t, flags.Set("output", "json"))
	require.NoError(t, flags.Set("preview-limit", "42"))
	require.NoError(t, flags.Set("api", "http://127.0.0.1:9999"))
	require.NoError(t, flags.Set("no-autosave", "true"))
	require.NoError(t, flags.Set("port", "9100"))

	cfg, err := LoadConfig(path, flags)
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.Output)
	assert.Equal(t, 42, cfg.Preview.Limit)
	assert.Equal(t, "http://127.0.0.1:9999", cfg.APIURL)
	assert.False(t, cfg.Autosave.Enabled)
	assert.Equal(t, 9100, cfg.UI.Port)
}

func TestLoadConfig_FlagNotSetUsesEnv(t *testing.T) {
	ResetConfig()
	path := writeConfig(t, "output: text\n")
	t.Setenv("FLOWTASK_OUTPUT", "markdown")

	// Registered but never set, so Changed stays false.
	cfg, err := LoadConfig(path, newFlags())
	require.NoError(t, err)
	assert.Equal(t, "markdown", cfg.Output)
	assert.True(t, cfg.Autosave.Enabled)
}

func TestLoadConfig_StateFlagRelativeToWorkingDir(t *testing.T) {
	ResetConfig()
	path := writeConfig(t, "")
	wd := t.TempDir()
	t.Chdir(wd)

	flags := newFlags()
	require.NoError(t, flags.Set("state", "mine.db"))

	cfg, err := LoadConfig(path, flags)
	require.NoError(t, err)

	resolvedWD, err := filepath.EvalSymlinks(wd)
	require.NoError(t, err)
	resolvedState, err := filepath.EvalSymlinks(filepath.Dir(cfg.StatePath))
	require.NoError(t, err)
	assert.Equal(t, resolvedWD, resolvedState)
	assert.Equal(t, "mine.db", filepath.Base(cfg.StatePath))
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		errSubstr string
	}{
		{name: "bad output", content: "output: xml\n", errSubstr: "output must be one of"},
		{name: "bad url", content: "api_url: '::nope'\n", errSubstr: "api_url"},
		{name: "bad duration", content: "preview:\n  timeout: soon\n", errSubstr: "unable to decode config"},
		{name: "malformed yaml", content: "preview: [\n", errSubstr: "error reading config file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ResetConfig()
			_, err := LoadConfig(writeConfig(t, tt.content), nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errSubstr)
			assert.Nil(t, GetCurrentConfig())
		})
	}
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	ResetConfig()
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestGetLogger(t *testing.T) {
	assert.NotNil(t, GetLogger(context.Background()), "falls back to a discard logger")

	logger := testutil.NewTestLogger(t)
	ctx := WithLogger(context.Background(), logger)
	assert.Same(t, logger, GetLogger(ctx))
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "api_url", envKey("FLOWTASK_API_URL"))
	assert.Equal(t, "preview.poll_interval", envKey("FLOWTASK_PREVIEW__POLL_INTERVAL"))
	assert.Equal(t, "ui.port", envKey("FLOWTASK_UI__PORT"))
}
