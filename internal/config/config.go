package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"studentmonitor/internal/history"
)

// Config is the system-wide settings tree
type Config struct {
	HTTP      *HTTPConfig      `json:"http"`
	WebSocket *WebSocketConfig `json:"websocket"`
	History   *HistoryConfig   `json:"history"`
	Analyzer  *AnalyzerConfig  `json:"analyzer"`
	Journal   *JournalConfig   `json:"journal"`
	Limits    *LimitsConfig    `json:"limits"`
	Logging   *LoggingConfig   `json:"logging"`
}

type HTTPConfig struct {
	Port          int           `json:"port"`
	ReadTimeout   time.Duration `json:"read_timeout"`
	WriteTimeout  time.Duration `json:"write_timeout"`
	Host          string        `json:"host"`
	AllowedOrigin string        `json:"allowed_origin"`
}

// WebSocketConfig covers per-connection heartbeat and write behaviour
type WebSocketConfig struct {
	PingInterval time.Duration `json:"ping_interval"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	BufferSize   int           `json:"buffer_size"`
}

// HistoryConfig sizes the session buffer and the publish queue in front of it
type HistoryConfig struct {
	Capacity         int `json:"capacity"`
	SnapshotSize     int `json:"snapshot_size"`
	PublishQueueSize int `json:"publish_queue_size"`
}

// AnalyzerConfig points at the remote vision service.
// An empty URL selects the local frame-metadata analyzer.
type AnalyzerConfig struct {
	URL              string        `json:"url"`
	Timeout          time.Duration `json:"timeout"`
	FailureThreshold int           `json:"failure_threshold"`
	OpenTimeout      time.Duration `json:"open_timeout"`
}

type JournalConfig struct {
	Enabled bool          `json:"enabled"`
	Path    string        `json:"path"`
	Timeout time.Duration `json:"timeout"`
}

// LimitsConfig bounds what a single producer can push at the server
type LimitsConfig struct {
	FramesPerSecond float64 `json:"frames_per_second"`
	FrameBurst      int     `json:"frame_burst"`
	MaxFrameBytes   int64   `json:"max_frame_bytes"`
}

// LoggingConfig optionally mirrors the standard logger into a rotated file
type LoggingConfig struct {
	File       string `json:"file"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

// DefaultConfig returns defaults matching the classroom deployment:
// browsers send ~5 frames per second, teachers chart the last 50 points.
func DefaultConfig() *Config {
	return &Config{
		HTTP: &HTTPConfig{
			Port:          8000,
			ReadTimeout:   30 * time.Second,
			WriteTimeout:  30 * time.Second,
			Host:          "0.0.0.0",
			AllowedOrigin: "*",
		},
		WebSocket: &WebSocketConfig{
			PingInterval: 30 * time.Second,
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 5 * time.Second,
			BufferSize:   100,
		},
		History: &HistoryConfig{
			Capacity:         history.DefaultCapacity,
			SnapshotSize:     50,
			PublishQueueSize: 1000,
		},
		Analyzer: &AnalyzerConfig{
			URL:              "",
			Timeout:          2 * time.Second,
			FailureThreshold: 5,
			OpenTimeout:      30 * time.Second,
		},
		Journal: &JournalConfig{
			Enabled: false,
			Path:    "./studentmonitor.db",
			Timeout: 30 * time.Second,
		},
		Limits: &LimitsConfig{
			FramesPerSecond: 10,
			FrameBurst:      5,
			MaxFrameBytes:   4 << 20,
		},
		Logging: &LoggingConfig{
			File:       "",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 14,
		},
	}
}

// Validate rejects configurations that would fail at runtime
func (c *Config) Validate() error {
	if c.HTTP == nil {
		return fmt.Errorf("HTTP configuration is required")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}
	if c.HTTP.ReadTimeout <= 0 {
		return fmt.Errorf("HTTP read timeout must be positive")
	}
	if c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP write timeout must be positive")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}

	if c.WebSocket == nil {
		return fmt.Errorf("WebSocket configuration is required")
	}
	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("WebSocket ping interval must be positive")
	}
	if c.WebSocket.ReadTimeout <= c.WebSocket.PingInterval {
		return fmt.Errorf("WebSocket read timeout must exceed the ping interval")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("WebSocket write timeout must be positive")
	}
	if c.WebSocket.BufferSize <= 0 {
		return fmt.Errorf("WebSocket buffer size must be positive")
	}

	if c.History == nil {
		return fmt.Errorf("history configuration is required")
	}
	if c.History.Capacity <= 0 || c.History.Capacity > history.DefaultCapacity {
		return fmt.Errorf("history capacity must be between 1 and %d", history.DefaultCapacity)
	}
	if c.History.SnapshotSize <= 0 || c.History.SnapshotSize > c.History.Capacity {
		return fmt.Errorf("history snapshot size must be between 1 and the capacity")
	}
	if c.History.PublishQueueSize <= 0 {
		return fmt.Errorf("publish queue size must be positive")
	}

	if c.Analyzer == nil {
		return fmt.Errorf("analyzer configuration is required")
	}
	if c.Analyzer.Timeout <= 0 {
		return fmt.Errorf("analyzer timeout must be positive")
	}
	if c.Analyzer.FailureThreshold <= 0 {
		return fmt.Errorf("analyzer failure threshold must be positive")
	}
	if c.Analyzer.OpenTimeout <= 0 {
		return fmt.Errorf("analyzer open timeout must be positive")
	}

	if c.Journal == nil {
		return fmt.Errorf("journal configuration is required")
	}
	if c.Journal.Enabled {
		if c.Journal.Path == "" {
			return fmt.Errorf("journal path cannot be empty")
		}
		if c.Journal.Timeout <= 0 {
			return fmt.Errorf("journal timeout must be positive")
		}
	}

	if c.Limits == nil {
		return fmt.Errorf("limits configuration is required")
	}
	if c.Limits.FramesPerSecond < 0 {
		return fmt.Errorf("frames per second cannot be negative")
	}
	if c.Limits.FramesPerSecond > 0 && c.Limits.FrameBurst <= 0 {
		return fmt.Errorf("frame burst must be positive when rate limiting is enabled")
	}
	if c.Limits.MaxFrameBytes <= 0 {
		return fmt.Errorf("max frame bytes must be positive")
	}

	if c.Logging == nil {
		return fmt.Errorf("logging configuration is required")
	}
	if c.Logging.File != "" && c.Logging.MaxSizeMB <= 0 {
		return fmt.Errorf("log file max size must be positive")
	}
	if c.Logging.MaxBackups < 0 || c.Logging.MaxAgeDays < 0 {
		return fmt.Errorf("log retention cannot be negative")
	}

	return nil
}

// LoadFromEnv overlays STUDENTMONITOR_* environment variables on the defaults.
// Unparseable values are ignored and the default is kept.
func LoadFromEnv() *Config {
	config := DefaultConfig()

	if port := os.Getenv("STUDENTMONITOR_HTTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.HTTP.Port = p
		}
	}
	if host := os.Getenv("STUDENTMONITOR_HTTP_HOST"); host != "" {
		config.HTTP.Host = host
	}
	if origin := os.Getenv("STUDENTMONITOR_HTTP_ALLOWED_ORIGIN"); origin != "" {
		config.HTTP.AllowedOrigin = origin
	}
	setDuration("STUDENTMONITOR_HTTP_READ_TIMEOUT", &config.HTTP.ReadTimeout)
	setDuration("STUDENTMONITOR_HTTP_WRITE_TIMEOUT", &config.HTTP.WriteTimeout)

	setDuration("STUDENTMONITOR_WEBSOCKET_PING_INTERVAL", &config.WebSocket.PingInterval)
	setDuration("STUDENTMONITOR_WEBSOCKET_READ_TIMEOUT", &config.WebSocket.ReadTimeout)
	setDuration("STUDENTMONITOR_WEBSOCKET_WRITE_TIMEOUT", &config.WebSocket.WriteTimeout)
	setInt("STUDENTMONITOR_WEBSOCKET_BUFFER_SIZE", &config.WebSocket.BufferSize)

	setInt("STUDENTMONITOR_HISTORY_CAPACITY", &config.History.Capacity)
	setInt("STUDENTMONITOR_HISTORY_SNAPSHOT_SIZE", &config.History.SnapshotSize)
	setInt("STUDENTMONITOR_HISTORY_PUBLISH_QUEUE_SIZE", &config.History.PublishQueueSize)

	if url := os.Getenv("STUDENTMONITOR_ANALYZER_URL"); url != "" {
		config.Analyzer.URL = url
	}
	setDuration("STUDENTMONITOR_ANALYZER_TIMEOUT", &config.Analyzer.Timeout)
	setInt("STUDENTMONITOR_ANALYZER_FAILURE_THRESHOLD", &config.Analyzer.FailureThreshold)
	setDuration("STUDENTMONITOR_ANALYZER_OPEN_TIMEOUT", &config.Analyzer.OpenTimeout)

	if enabled := os.Getenv("STUDENTMONITOR_JOURNAL_ENABLED"); enabled != "" {
		if b, err := strconv.ParseBool(enabled); err == nil {
			config.Journal.Enabled = b
		}
	}
	if path := os.Getenv("STUDENTMONITOR_JOURNAL_PATH"); path != "" {
		config.Journal.Path = path
	}
	setDuration("STUDENTMONITOR_JOURNAL_TIMEOUT", &config.Journal.Timeout)

	if fps := os.Getenv("STUDENTMONITOR_LIMITS_FRAMES_PER_SECOND"); fps != "" {
		if f, err := strconv.ParseFloat(fps, 64); err == nil {
			config.Limits.FramesPerSecond = f
		}
	}
	setInt("STUDENTMONITOR_LIMITS_FRAME_BURST", &config.Limits.FrameBurst)
	if maxBytes := os.Getenv("STUDENTMONITOR_LIMITS_MAX_FRAME_BYTES"); maxBytes != "" {
		if n, err := strconv.ParseInt(maxBytes, 10, 64); err == nil {
			config.Limits.MaxFrameBytes = n
		}
	}

	if file := os.Getenv("STUDENTMONITOR_LOG_FILE"); file != "" {
		config.Logging.File = file
	}
	setInt("STUDENTMONITOR_LOG_MAX_SIZE_MB", &config.Logging.MaxSizeMB)
	setInt("STUDENTMONITOR_LOG_MAX_BACKUPS", &config.Logging.MaxBackups)
	setInt("STUDENTMONITOR_LOG_MAX_AGE_DAYS", &config.Logging.MaxAgeDays)

	return config
}

func setDuration(key string, target *time.Duration) {
	if raw := os.Getenv(key); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			*target = d
		}
	}
}

func setInt(key string, target *int) {
	if raw := os.Getenv(key); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			*target = n
		}
	}
}

// ConfigFile is the on-disk shape; durations are strings like "30s".
// The same struct is decoded from JSON or YAML depending on the extension.
type ConfigFile struct {
	HTTP      *HTTPConfigFile      `json:"http" yaml:"http"`
	WebSocket *WebSocketConfigFile `json:"websocket" yaml:"websocket"`
	History   *HistoryConfigFile   `json:"history" yaml:"history"`
	Analyzer  *AnalyzerConfigFile  `json:"analyzer" yaml:"analyzer"`
	Journal   *JournalConfigFile   `json:"journal" yaml:"journal"`
	Limits    *LimitsConfigFile    `json:"limits" yaml:"limits"`
	Logging   *LoggingConfigFile   `json:"logging" yaml:"logging"`
}

type HTTPConfigFile struct {
	Port          int    `json:"port" yaml:"port"`
	ReadTimeout   string `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout  string `json:"write_timeout" yaml:"write_timeout"`
	Host          string `json:"host" yaml:"host"`
	AllowedOrigin string `json:"allowed_origin" yaml:"allowed_origin"`
}

type WebSocketConfigFile struct {
	PingInterval string `json:"ping_interval" yaml:"ping_interval"`
	ReadTimeout  string `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout string `json:"write_timeout" yaml:"write_timeout"`
	BufferSize   int    `json:"buffer_size" yaml:"buffer_size"`
}

type HistoryConfigFile struct {
	Capacity         int `json:"capacity" yaml:"capacity"`
	SnapshotSize     int `json:"snapshot_size" yaml:"snapshot_size"`
	PublishQueueSize int `json:"publish_queue_size" yaml:"publish_queue_size"`
}

type AnalyzerConfigFile struct {
	URL              string `json:"url" yaml:"url"`
	Timeout          string `json:"timeout" yaml:"timeout"`
	FailureThreshold int    `json:"failure_threshold" yaml:"failure_threshold"`
	OpenTimeout      string `json:"open_timeout" yaml:"open_timeout"`
}

type JournalConfigFile struct {
	Enabled *bool  `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"`
	Timeout string `json:"timeout" yaml:"timeout"`
}

type LimitsConfigFile struct {
	FramesPerSecond *float64 `json:"frames_per_second" yaml:"frames_per_second"`
	FrameBurst      int      `json:"frame_burst" yaml:"frame_burst"`
	MaxFrameBytes   int64    `json:"max_frame_bytes" yaml:"max_frame_bytes"`
}

type LoggingConfigFile struct {
	File       string `json:"file" yaml:"file"`
	MaxSizeMB  int    `json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups *int   `json:"max_backups" yaml:"max_backups"`
	MaxAgeDays *int   `json:"max_age_days" yaml:"max_age_days"`
}

// LoadFromFile reads a JSON or YAML config file on top of base.
// A nil base starts from DefaultConfig.
func LoadFromFile(path string, base *Config) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var configFile ConfigFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &configFile)
	default:
		err = json.Unmarshal(data, &configFile)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	config := base
	if config == nil {
		config = DefaultConfig()
	}

	if err := configFile.apply(config); err != nil {
		return nil, fmt.Errorf("invalid value in %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}

	return config, nil
}

func (f *ConfigFile) apply(config *Config) error {
	if f.HTTP != nil {
		if f.HTTP.Port > 0 {
			config.HTTP.Port = f.HTTP.Port
		}
		if f.HTTP.Host != "" {
			config.HTTP.Host = f.HTTP.Host
		}
		if f.HTTP.AllowedOrigin != "" {
			config.HTTP.AllowedOrigin = f.HTTP.AllowedOrigin
		}
		if err := parseDuration(f.HTTP.ReadTimeout, &config.HTTP.ReadTimeout); err != nil {
			return fmt.Errorf("http.read_timeout: %w", err)
		}
		if err := parseDuration(f.HTTP.WriteTimeout, &config.HTTP.WriteTimeout); err != nil {
			return fmt.Errorf("http.write_timeout: %w", err)
		}
	}

	if f.WebSocket != nil {
		if f.WebSocket.BufferSize > 0 {
			config.WebSocket.BufferSize = f.WebSocket.BufferSize
		}
		if err := parseDuration(f.WebSocket.PingInterval, &config.WebSocket.PingInterval); err != nil {
			return fmt.Errorf("websocket.ping_interval: %w", err)
		}
		if err := parseDuration(f.WebSocket.ReadTimeout, &config.WebSocket.ReadTimeout); err != nil {
			return fmt.Errorf("websocket.read_timeout: %w", err)
		}
		if err := parseDuration(f.WebSocket.WriteTimeout, &config.WebSocket.WriteTimeout); err != nil {
			return fmt.Errorf("websocket.write_timeout: %w", err)
		}
	}

	if f.History != nil {
		if f.History.Capacity > 0 {
			config.History.Capacity = f.History.Capacity
		}
		if f.History.SnapshotSize > 0 {
			config.History.SnapshotSize = f.History.SnapshotSize
		}
		if f.History.PublishQueueSize > 0 {
			config.History.PublishQueueSize = f.History.PublishQueueSize
		}
	}

	if f.Analyzer != nil {
		if f.Analyzer.URL != "" {
			config.Analyzer.URL = f.Analyzer.URL
		}
		if f.Analyzer.FailureThreshold > 0 {
			config.Analyzer.FailureThreshold = f.Analyzer.FailureThreshold
		}
		if err := parseDuration(f.Analyzer.Timeout, &config.Analyzer.Timeout); err != nil {
			return fmt.Errorf("analyzer.timeout: %w", err)
		}
		if err := parseDuration(f.Analyzer.OpenTimeout, &config.Analyzer.OpenTimeout); err != nil {
			return fmt.Errorf("analyzer.open_timeout: %w", err)
		}
	}

	if f.Journal != nil {
		if f.Journal.Enabled != nil {
			config.Journal.Enabled = *f.Journal.Enabled
		}
		if f.Journal.Path != "" {
			config.Journal.Path = f.Journal.Path
		}
		if err := parseDuration(f.Journal.Timeout, &config.Journal.Timeout); err != nil {
			return fmt.Errorf("journal.timeout: %w", err)
		}
	}

	if f.Limits != nil {
		if f.Limits.FramesPerSecond != nil {
			config.Limits.FramesPerSecond = *f.Limits.FramesPerSecond
		}
		if f.Limits.FrameBurst > 0 {
			config.Limits.FrameBurst = f.Limits.FrameBurst
		}
		if f.Limits.MaxFrameBytes > 0 {
			config.Limits.MaxFrameBytes = f.Limits.MaxFrameBytes
		}
	}

	if f.Logging != nil {
		if f.Logging.File != "" {
			config.Logging.File = f.Logging.File
		}
		if f.Logging.MaxSizeMB > 0 {
			config.Logging.MaxSizeMB = f.Logging.MaxSizeMB
		}
		if f.Logging.MaxBackups != nil {
			config.Logging.MaxBackups = *f.Logging.MaxBackups
		}
		if f.Logging.MaxAgeDays != nil {
			config.Logging.MaxAgeDays = *f.Logging.MaxAgeDays
		}
	}

	return nil
}

func parseDuration(raw string, target *time.Duration) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return err
	}
	*target = d
	return nil
}

// LoadConfigWithPrecedence resolves file > environment > defaults.
// A missing or broken file is reported and the environment result is kept.
func LoadConfigWithPrecedence(path string) (*Config, error) {
	config := LoadFromEnv()

	if path == "" {
		return config, nil
	}

	fileConfig, err := LoadFromFile(path, config)
	if err != nil {
		return LoadFromEnv(), err
	}
	return fileConfig, nil
}
