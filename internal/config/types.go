package config

import "time"

// Config represents the main configuration structure
type Config struct {
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Rules     RulesConfig     `yaml:"rules" mapstructure:"rules"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Logging   LoggingConfig   `yaml:"logging" mapstructure:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
	WebSocket WebSocketConfig `yaml:"websocket" mapstructure:"websocket"`
	Metrics   MetricsConfig   `yaml:"metrics" mapstructure:"metrics"`
}

// ServerConfig contains HTTP scan service configuration
type ServerConfig struct {
	Port         int           `yaml:"port" mapstructure:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
	MaxBodyBytes int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	MaxBatchSize int           `yaml:"max_batch_size" mapstructure:"max_batch_size"`
}

// RulesConfig points at the PII rules file
type RulesConfig struct {
	Path               string        `yaml:"path" mapstructure:"path"`
	StrictPlaceholders bool          `yaml:"strict_placeholders" mapstructure:"strict_placeholders"`
	Watch              bool          `yaml:"watch" mapstructure:"watch"`
	ReloadDebounce     time.Duration `yaml:"reload_debounce" mapstructure:"reload_debounce"`
}

// PipelineConfig contains batch scan settings
type PipelineConfig struct {
	BatchSize      int    `yaml:"batch_size" mapstructure:"batch_size"`
	Workers        int    `yaml:"workers" mapstructure:"workers"`
	Output         string `yaml:"output" mapstructure:"output"`
	ProgressReport int    `yaml:"progress_report" mapstructure:"progress_report"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // json or console
	File   struct {
		Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
		Path    string `yaml:"path" mapstructure:"path"`
	} `yaml:"file" mapstructure:"file"`
}

// RateLimitConfig limits scan requests per client. With a Redis URL the
// limit is shared by every replica.
type RateLimitConfig struct {
	Enabled        bool   `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerMin int    `yaml:"requests_per_min" mapstructure:"requests_per_min"`
	Burst          int    `yaml:"burst" mapstructure:"burst"`
	RedisURL       string `yaml:"redis_url" mapstructure:"redis_url"`
	KeyPrefix      string `yaml:"key_prefix" mapstructure:"key_prefix"`
}

// WebSocketConfig contains live event feed configuration
type WebSocketConfig struct {
	Enabled        bool   `yaml:"enabled" mapstructure:"enabled"`
	Path           string `yaml:"path" mapstructure:"path"`
	Username       string `yaml:"username" mapstructure:"username"`
	PasswordHash   string `yaml:"password_hash" mapstructure:"password_hash"` // bcrypt
	MaxConnections int    `yaml:"max_connections" mapstructure:"max_connections"`
	Events         struct {
		BroadcastScans       bool `yaml:"broadcast_scans" mapstructure:"broadcast_scans"`
		BroadcastSystem      bool `yaml:"broadcast_system" mapstructure:"broadcast_system"`
		BroadcastConnections bool `yaml:"broadcast_connections" mapstructure:"broadcast_connections"`
	} `yaml:"events" mapstructure:"events"`
}

// MetricsConfig contains Prometheus configuration
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" mapstructure:"enabled"`
	Namespace string `yaml:"namespace" mapstructure:"namespace"`
}

// GetDefaults returns a configuration with sensible defaults
func GetDefaults() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
			MaxBodyBytes: 1 << 20,
			MaxBatchSize: 500,
		},
		Rules: RulesConfig{
			Path:           "configs/rules.json",
			Watch:          true,
			ReloadDebounce: 500 * time.Millisecond,
		},
		Pipeline: PipelineConfig{
			BatchSize:      1000,
			Workers:        4,
			Output:         "redacted_output.csv",
			ProgressReport: 10000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		RateLimit: RateLimitConfig{
			Enabled:        false,
			RequestsPerMin: 600,
			Burst:          50,
			KeyPrefix:      "pii-sentinel:ratelimit:",
		},
		WebSocket: WebSocketConfig{
			Enabled:        false,
			Path:           "/ws",
			MaxConnections: 100,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "pii_sentinel",
		},
	}

	cfg.Logging.File.Path = "logs/sentinel.log"
	cfg.WebSocket.Events.BroadcastScans = true
	cfg.WebSocket.Events.BroadcastSystem = true
	cfg.WebSocket.Events.BroadcastConnections = true

	return cfg
}
