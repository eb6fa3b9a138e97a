package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Load loads configuration from file and environment variables. An empty
// configPath searches the usual locations and falls back to defaults; an
// explicit path must exist.
func Load(configPath string) (*Config, error) {
	config := GetDefaults()

	v := newViper(configPath)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

func newViper(configPath string) *viper.Viper {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/pii-sentinel/")
	v.AddConfigPath("$HOME/.pii-sentinel/")

	// SENTINEL_RULES_PATH overrides rules.path
	v.SetEnvPrefix("SENTINEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	}

	// Environment overrides only apply to keys viper already knows about.
	d := GetDefaults()
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("rules.path", d.Rules.Path)
	v.SetDefault("rules.strict_placeholders", d.Rules.StrictPlaceholders)
	v.SetDefault("rules.watch", d.Rules.Watch)
	v.SetDefault("pipeline.workers", d.Pipeline.Workers)
	v.SetDefault("pipeline.batch_size", d.Pipeline.BatchSize)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("rate_limit.redis_url", d.RateLimit.RedisURL)
	v.SetDefault("websocket.username", d.WebSocket.Username)
	v.SetDefault("websocket.password_hash", d.WebSocket.PasswordHash)

	return v
}

// validateConfig validates the loaded configuration
func validateConfig(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Rules.Path == "" {
		return fmt.Errorf("rules.path must be set")
	}

	if config.Pipeline.Workers <= 0 {
		return fmt.Errorf("invalid pipeline workers: %d (must be positive)", config.Pipeline.Workers)
	}

	if config.Pipeline.BatchSize <= 0 {
		return fmt.Errorf("invalid pipeline batch size: %d (must be positive)", config.Pipeline.BatchSize)
	}

	switch config.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", config.Logging.Level)
	}

	if config.Logging.Format != "json" && config.Logging.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be json or console)", config.Logging.Format)
	}

	if config.RateLimit.Enabled && config.RateLimit.RequestsPerMin <= 0 {
		return fmt.Errorf("invalid rate limit: %d requests per minute", config.RateLimit.RequestsPerMin)
	}

	if config.WebSocket.Enabled && (config.WebSocket.Username == "" || config.WebSocket.PasswordHash == "") {
		return fmt.Errorf("websocket feed requires username and password_hash")
	}

	return nil
}

// Watch re-reads the configuration file whenever it changes and passes each
// valid result to callback. Invalid edits are dropped.
func Watch(configPath string, callback func(*Config)) error {
	v := newViper(configPath)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		newConfig := GetDefaults()
		if err := v.Unmarshal(newConfig); err != nil {
			return
		}
		if err := validateConfig(newConfig); err != nil {
			return
		}
		callback(newConfig)
	})
	v.WatchConfig()

	return nil
}
