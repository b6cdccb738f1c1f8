package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestConfig_DefaultConfig(t *testing.T) {
	config := DefaultConfig()
	require.NotNil(t, config)

	assert.Equal(t, 8000, config.HTTP.Port)
	assert.Equal(t, 1000, config.History.Capacity)
	assert.Equal(t, 50, config.History.SnapshotSize)
	assert.Empty(t, config.Analyzer.URL)
	assert.False(t, config.Journal.Enabled)
	assert.NoError(t, config.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"port out of range", func(c *Config) { c.HTTP.Port = 70000 }},
		{"negative port", func(c *Config) { c.HTTP.Port = -1 }},
		{"empty host", func(c *Config) { c.HTTP.Host = "" }},
		{"read timeout under ping interval", func(c *Config) { c.WebSocket.ReadTimeout = c.WebSocket.PingInterval }},
		{"zero buffer", func(c *Config) { c.WebSocket.BufferSize = 0 }},
		{"zero capacity", func(c *Config) { c.History.Capacity = 0 }},
		{"capacity above the session cap", func(c *Config) { c.History.Capacity = 1001 }},
		{"snapshot larger than capacity", func(c *Config) { c.History.SnapshotSize = c.History.Capacity + 1 }},
		{"zero publish queue", func(c *Config) { c.History.PublishQueueSize = 0 }},
		{"zero analyzer timeout", func(c *Config) { c.Analyzer.Timeout = 0 }},
		{"zero failure threshold", func(c *Config) { c.Analyzer.FailureThreshold = 0 }},
		{"enabled journal without path", func(c *Config) { c.Journal.Enabled = true; c.Journal.Path = "" }},
		{"negative fps", func(c *Config) { c.Limits.FramesPerSecond = -1 }},
		{"zero burst with limiter", func(c *Config) { c.Limits.FrameBurst = 0 }},
		{"missing section", func(c *Config) { c.Limits = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)
			assert.Error(t, config.Validate())
		})
	}
}

func TestConfig_ValidateAllowsDisabledLimiter(t *testing.T) {
	config := DefaultConfig()
	config.Limits.FramesPerSecond = 0
	config.Limits.FrameBurst = 0
	assert.NoError(t, config.Validate())
}

func TestConfig_ValidateIgnoresDisabledJournalPath(t *testing.T) {
	config := DefaultConfig()
	config.Journal.Path = ""
	assert.NoError(t, config.Validate())
}

func TestConfig_LoadFromEnv(t *testing.T) {
	t.Setenv("STUDENTMONITOR_HTTP_PORT", "9090")
	t.Setenv("STUDENTMONITOR_WEBSOCKET_PING_INTERVAL", "10s")
	t.Setenv("STUDENTMONITOR_HISTORY_SNAPSHOT_SIZE", "25")
	t.Setenv("STUDENTMONITOR_ANALYZER_URL", "http://vision:9000/analyze")
	t.Setenv("STUDENTMONITOR_JOURNAL_ENABLED", "true")
	t.Setenv("STUDENTMONITOR_JOURNAL_PATH", "/tmp/journal.db")
	t.Setenv("STUDENTMONITOR_LIMITS_FRAMES_PER_SECOND", "2.5")

	config := LoadFromEnv()

	assert.Equal(t, 9090, config.HTTP.Port)
	assert.Equal(t, 10*time.Second, config.WebSocket.PingInterval)
	assert.Equal(t, 25, config.History.SnapshotSize)
	assert.Equal(t, "http://vision:9000/analyze", config.Analyzer.URL)
	assert.True(t, config.Journal.Enabled)
	assert.Equal(t, "/tmp/journal.db", config.Journal.Path)
	assert.Equal(t, 2.5, config.Limits.FramesPerSecond)
}

func TestConfig_LoadFromEnvIgnoresGarbage(t *testing.T) {
	t.Setenv("STUDENTMONITOR_HTTP_PORT", "not-a-number")
	t.Setenv("STUDENTMONITOR_WEBSOCKET_WRITE_TIMEOUT", "soon")
	t.Setenv("STUDENTMONITOR_JOURNAL_ENABLED", "maybe")

	config := LoadFromEnv()
	defaults := DefaultConfig()

	assert.Equal(t, defaults.HTTP.Port, config.HTTP.Port)
	assert.Equal(t, defaults.WebSocket.WriteTimeout, config.WebSocket.WriteTimeout)
	assert.False(t, config.Journal.Enabled)
}

func TestConfig_LoadFromFileJSON(t *testing.T) {
	path := writeConfigFile(t, "config.json", `{
		"http": {"port": 8081, "read_timeout": "10s"},
		"history": {"capacity": 200, "snapshot_size": 20},
		"journal": {"enabled": true, "path": "/tmp/j.db"}
	}`)

	config, err := LoadFromFile(path, nil)
	require.NoError(t, err)

	assert.Equal(t, 8081, config.HTTP.Port)
	assert.Equal(t, 10*time.Second, config.HTTP.ReadTimeout)
	assert.Equal(t, 200, config.History.Capacity)
	assert.Equal(t, 20, config.History.SnapshotSize)
	assert.True(t, config.Journal.Enabled)
	assert.Equal(t, "/tmp/j.db", config.Journal.Path)
	assert.Equal(t, 30*time.Second, config.HTTP.WriteTimeout, "unset fields keep defaults")
}

func TestConfig_LoadFromFileYAML(t *testing.T) {
	path := writeConfigFile(t, "config.yaml", `
http:
  port: 8082
analyzer:
  url: http://localhost:9000/analyze
  timeout: 500ms
limits:
  frames_per_second: 0
`)

	config, err := LoadFromFile(path, nil)
	require.NoError(t, err)

	assert.Equal(t, 8082, config.HTTP.Port)
	assert.Equal(t, "http://localhost:9000/analyze", config.Analyzer.URL)
	assert.Equal(t, 500*time.Millisecond, config.Analyzer.Timeout)
	assert.Equal(t, float64(0), config.Limits.FramesPerSecond)
}

func TestConfig_LoadFromFileErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"invalid json", "bad.json", `{"http": {"port": 1`},
		{"invalid yaml", "bad.yml", "http: [port"},
		{"bad duration", "dur.json", `{"websocket": {"ping_interval": "often"}}`},
		{"fails validation", "invalid.json", `{"history": {"capacity": 10, "snapshot_size": 50}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfigFile(t, tt.file, tt.content)
			_, err := LoadFromFile(path, nil)
			assert.Error(t, err)
		})
	}

	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.json"), nil)
	assert.Error(t, err)
}

func TestConfig_LoadConfigWithPrecedence(t *testing.T) {
	t.Setenv("STUDENTMONITOR_HTTP_PORT", "7777")
	t.Setenv("STUDENTMONITOR_HTTP_HOST", "127.0.0.1")

	config, err := LoadConfigWithPrecedence("")
	require.NoError(t, err)
	assert.Equal(t, 7777, config.HTTP.Port, "environment overrides defaults")

	path := writeConfigFile(t, "config.json", `{"http": {"port": 6666}}`)
	config, err = LoadConfigWithPrecedence(path)
	require.NoError(t, err)
	assert.Equal(t, 6666, config.HTTP.Port, "file overrides environment")
	assert.Equal(t, "127.0.0.1", config.HTTP.Host, "environment survives where file is silent")
}

func TestConfig_LoadConfigWithPrecedenceBadFile(t *testing.T) {
	t.Setenv("STUDENTMONITOR_HTTP_PORT", "7777")
	path := writeConfigFile(t, "config.json", `not json`)

	config, err := LoadConfigWithPrecedence(path)
	assert.Error(t, err)
	require.NotNil(t, config)
	assert.Equal(t, 7777, config.HTTP.Port)
}

func TestConfig_LoggingSection(t *testing.T) {
	t.Setenv("STUDENTMONITOR_LOG_FILE", "/var/log/studentmonitor.log")
	config := LoadFromEnv()
	assert.Equal(t, "/var/log/studentmonitor.log", config.Logging.File)
	assert.NoError(t, config.Validate())

	config.Logging.MaxSizeMB = 0
	assert.Error(t, config.Validate(), "rotation needs a size when a file is set")

	path := writeConfigFile(t, "config.yml", "logging:\n  file: monitor.log\n  max_backups: 0\n")
	config, err := LoadFromFile(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "monitor.log", config.Logging.File)
	assert.Equal(t, 0, config.Logging.MaxBackups)
}
