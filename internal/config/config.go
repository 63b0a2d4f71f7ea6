// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	Browser  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	Session  SessionConfig  `mapstructure:"session" yaml:"session"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
}

// LoggerConfig controls log output.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"` // "console" or "json"
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`

	// File output (rotated). Empty disables the file core.
	LogFile    string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize    int    `mapstructure:"max_size" yaml:"max_size"` // megabytes
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"` // days
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// BrowserConfig selects and parameterizes the browser-context factory.
type BrowserConfig struct {
	// RemoteURL is the DevTools websocket endpoint of a shared browser farm.
	// When set, contexts attach remotely and closing a session never tears
	// the underlying browser down (keep-alive policy). When empty a local
	// browser process is launched and owned exclusively.
	RemoteURL         string        `mapstructure:"remote_url" yaml:"remote_url"`
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	ExecArgs          []string      `mapstructure:"exec_args" yaml:"exec_args"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
}

// SessionConfig tunes session bookkeeping.
type SessionConfig struct {
	// MaxTabsToTrack bounds how many tabs a serialized snapshot retains.
	// Zero or negative means unbounded.
	MaxTabsToTrack int `mapstructure:"max_tabs_to_track" yaml:"max_tabs_to_track"`
	// ConsoleBufferSize is the per-tab in-memory console history capacity.
	ConsoleBufferSize int `mapstructure:"console_buffer_size" yaml:"console_buffer_size"`
	// DisposeWait bounds how long disposal waits for an in-flight tool call.
	DisposeWait time.Duration `mapstructure:"dispose_wait" yaml:"dispose_wait"`
}

// DatabaseConfig points at the snapshot store. An empty URL disables
// persistence; the server then runs affinity-bound instead of pooled.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// SetDefaults registers the default value for every key so viper.Unmarshal
// produces a complete Config even without a config file.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "tabstate")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.navigation_timeout", 60*time.Second)

	v.SetDefault("session.max_tabs_to_track", 20)
	v.SetDefault("session.console_buffer_size", 200)
	v.SetDefault("session.dispose_wait", 15*time.Second)
}

// NewConfigFromViper unmarshals and validates a Config from the given viper
// instance. Callers are expected to have bound env vars and read any config
// file beforehand.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the runtime cannot honor.
func (c *Config) Validate() error {
	if c.Session.ConsoleBufferSize < 0 {
		return fmt.Errorf("session.console_buffer_size must not be negative: %d", c.Session.ConsoleBufferSize)
	}
	if c.Session.DisposeWait < 0 {
		return fmt.Errorf("session.dispose_wait must not be negative: %s", c.Session.DisposeWait)
	}
	if c.Browser.NavigationTimeout < 0 {
		return fmt.Errorf("browser.navigation_timeout must not be negative: %s", c.Browser.NavigationTimeout)
	}
	return nil
}
