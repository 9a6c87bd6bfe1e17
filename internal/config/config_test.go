package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		APIURL:  DefaultAPIURL,
		Output:  DefaultOutput,
		Timeout: 30 * time.Second,
		Preview: PreviewConfig{Limit: 500, PollInterval: 1500 * time.Millisecond, Timeout: 2 * time.Minute},
		Run:     RunConfig{PollInterval: 2 * time.Second},
		Schema: SchemaConfig{
			RetryDelay: 2 * time.Second,
			MaxRetries: 1,
			IdleTTL:    10 * time.Minute,
			FailureTTL: 30 * time.Second,
		},
		Autosave: AutosaveConfig{Enabled: true, Delay: 3 * time.Second},
		UI:       UIConfig{Host: DefaultUIHost, Port: DefaultUIPort},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		edit      func(c *Config)
		errSubstr []string
	}{
		{name: "valid", edit: func(*Config) {}},
		{
			name:      "missing api url",
			edit:      func(c *Config) { c.APIURL = "" },
			errSubstr: []string{"api_url is required"},
		},
		{
			name:      "malformed api url",
			edit:      func(c *Config) { c.APIURL = "not a url" },
			errSubstr: []string{"api_url must be a URL"},
		},
		{
			name:      "unknown output",
			edit:      func(c *Config) { c.Output = "xml" },
			errSubstr: []string{"output must be one of [auto text markdown json]"},
		},
		{
			name:      "preview timeout shorter than poll",
			edit:      func(c *Config) { c.Preview.Timeout = time.Second },
			errSubstr: []string{"preview.timeout must not be shorter than preview.poll_interval"},
		},
		{
			name: "several problems at once",
			edit: func(c *Config) {
				c.Preview.Limit = 0
				c.UI.Port = 70000
			},
			errSubstr: []string{"preview.limit", "ui.port"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.edit(cfg)
			err := cfg.Validate()
			if len(tt.errSubstr) == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			for _, s := range tt.errSubstr {
				assert.Contains(t, err.Error(), s)
			}
		})
	}
}

func TestConfig_EditorOptions(t *testing.T) {
	cfg := validConfig()
	opts := cfg.EditorOptions(nil, nil)

	assert.Equal(t, 3*time.Second, opts.AutosaveDelay)
	assert.False(t, opts.DisableAutosave)
	assert.Equal(t, 500, opts.Jobs.PreviewLimit)
	assert.Equal(t, 2*time.Minute, opts.Jobs.PreviewTimeout)
	assert.Equal(t, 2*time.Second, opts.Jobs.RunPollInterval)
	assert.Equal(t, uint64(1), opts.Schema.MaxRetries)
	assert.Equal(t, 30*time.Second, opts.Schema.FailureTTL)
	assert.Nil(t, opts.Drafts)

	cfg.Autosave.Enabled = false
	assert.True(t, cfg.EditorOptions(nil, nil).DisableAutosave)
}

func TestDefaults_CoverEveryKey(t *testing.T) {
	d := Defaults()
	for _, key := range []string{
		"api_url", "state_path", "output", "timeout",
		"preview.limit", "preview.poll_interval", "preview.timeout",
		"run.poll_interval",
		"schema.retry_delay", "schema.max_retries", "schema.idle_ttl", "schema.failure_ttl",
		"autosave.enabled", "autosave.delay",
		"ui.host", "ui.port",
	} {
		assert.Contains(t, d, key)
	}
	assert.Equal(t, "1.5s", d["preview.poll_interval"])
}

func TestFindProjectRoot(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	assert.Empty(t, FindProjectRoot(nested))

	require.NoError(t, os.WriteFile(filepath.Join(root, ConfigFileNameAlt), []byte("api_url: http://x\n"), 0o600))
	assert.Equal(t, root, FindProjectRoot(nested))
	assert.Equal(t, filepath.Join(root, ConfigFileNameAlt), FindConfigFile(root))

	require.NoError(t, os.WriteFile(filepath.Join(root, ConfigFileName), []byte("api_url: http://x\n"), 0o600))
	assert.Equal(t, filepath.Join(root, ConfigFileName), FindConfigFile(root), "yaml wins over yml")
}

func TestResolvePath(t *testing.T) {
	assert.Equal(t, "", ResolvePath("", "/base"))
	assert.Equal(t, ":memory:", ResolvePath(":memory:", "/base"))
	assert.Equal(t, "/abs/state.db", ResolvePath("/abs/state.db", "/base"))
	assert.Equal(t, filepath.Join("/base", ".flowtask/state.db"), ResolvePath(".flowtask/state.db", "/base"))
}

func TestSnake(t *testing.T) {
	assert.Equal(t, "poll_interval", snake("PollInterval"))
	assert.Equal(t, "limit", snake("Limit"))
	assert.Equal(t, "api_url", snake("APIUrl"))
}
