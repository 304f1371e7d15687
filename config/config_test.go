package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("DOCCHAT_CONFIG_DIR", t.TempDir())

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, DefaultServerURL, cfg.ServerURL)
	assert.Equal(t, DefaultTimeout, cfg.Timeout)
	assert.Equal(t, DefaultPollInterval, cfg.PollInterval)
	assert.Equal(t, OutputFormatText, cfg.OutputFormat)
	assert.True(t, cfg.IncludeTimestamps)
	assert.False(t, cfg.Debug)
}

func TestLoadConfig_FromFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DOCCHAT_CONFIG_DIR", dir)

	content := `server_url: http://backend:9000
timeout: 30s
poll_interval: 500ms
output_format: json
include_timestamps: false
debug: true
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte(content), 0o644))

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "http://backend:9000", cfg.ServerURL)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, 500*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, OutputFormatJSON, cfg.OutputFormat)
	assert.False(t, cfg.IncludeTimestamps)
	assert.True(t, cfg.Debug)
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DOCCHAT_CONFIG_DIR", dir)

	content := "server_url: http://from-file:9000\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte(content), 0o644))

	t.Setenv("DOCCHAT_SERVER_URL", "https://from-env:9443")
	t.Setenv("DOCCHAT_TIMEOUT", "45s")
	t.Setenv("DOCCHAT_INCLUDE_TIMESTAMPS", "false")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "https://from-env:9443", cfg.ServerURL)
	assert.Equal(t, 45*time.Second, cfg.Timeout)
	assert.False(t, cfg.IncludeTimestamps)
}

func TestLoadConfig_InvalidDuration(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DOCCHAT_CONFIG_DIR", dir)

	content := "timeout: not-a-duration\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte(content), 0o644))

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*CLIConfig)
		wantErr bool
	}{
		{"defaults are valid", func(c *CLIConfig) {}, false},
		{"empty server url", func(c *CLIConfig) { c.ServerURL = "" }, true},
		{"bad scheme", func(c *CLIConfig) { c.ServerURL = "ftp://x" }, true},
		{"zero timeout", func(c *CLIConfig) { c.Timeout = 0 }, true},
		{"negative poll interval", func(c *CLIConfig) { c.PollInterval = -time.Second }, true},
		{"unknown output format", func(c *CLIConfig) { c.OutputFormat = "xml" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSave_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DOCCHAT_CONFIG_DIR", dir)

	cfg := DefaultConfig()
	cfg.ServerURL = "http://saved:8000"
	cfg.Timeout = 90 * time.Second
	require.NoError(t, cfg.Save())

	loaded, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "http://saved:8000", loaded.ServerURL)
	assert.Equal(t, 90*time.Second, loaded.Timeout)
}
