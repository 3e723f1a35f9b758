package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// LoggingConfig controls the zap logger
type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// ExecutorConfig holds defaults applied to every command
type ExecutorConfig struct {
	DefaultTimeout time.Duration     `mapstructure:"default_timeout"`
	WorkingDir     string            `mapstructure:"working_dir"`
	Env            map[string]string `mapstructure:"env"`
}

// HistoryConfig controls run history persistence
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// EventsConfig controls publishing to NATS
type EventsConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	URL            string        `mapstructure:"url"`
	Name           string        `mapstructure:"name"`
	MaxReconnects  int           `mapstructure:"max_reconnects"`
	ReconnectWait  time.Duration `mapstructure:"reconnect_wait"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// MonitorConfig controls periodic status collection
type MonitorConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// Config is the full application configuration
type Config struct {
	Logging  LoggingConfig  `mapstructure:"logging"`
	Executor ExecutorConfig `mapstructure:"executor"`
	History  HistoryConfig  `mapstructure:"history"`
	Events   EventsConfig   `mapstructure:"events"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
}

// Load reads configuration from the given file path. An empty path loads
// config.yaml from the working directory or ./config, falling back to
// defaults when no file exists.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.development", false)
	v.SetDefault("executor.default_timeout", time.Duration(0))
	v.SetDefault("history.enabled", false)
	v.SetDefault("history.path", "opskit_history.db")
	v.SetDefault("events.enabled", false)
	v.SetDefault("events.url", "nats://127.0.0.1:4222")
	v.SetDefault("events.name", "opskit")
	v.SetDefault("events.max_reconnects", 5)
	v.SetDefault("events.reconnect_wait", 2*time.Second)
	v.SetDefault("events.connect_timeout", 5*time.Second)
	v.SetDefault("monitor.interval", 30*time.Second)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
