// Package config provides configuration management for the TrustTunnel desktop shell.
// It handles loading, saving, and validating application settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/yllada/trusttunnel-desktop/common"
	"gopkg.in/yaml.v3"
)

// Config represents the application settings.
// All settings are persisted to a YAML file in the user's config directory.
type Config struct {
	Logs LogsConfig `yaml:"logs"`
	// AutoConnect connects with LastConfig on startup.
	AutoConnect bool `yaml:"auto_connect"`
	// AutoReconnect retries transient failures with exponential backoff.
	AutoReconnect bool            `yaml:"auto_reconnect"`
	Reconnect     ReconnectConfig `yaml:"reconnect"`
	Engine        EngineConfig    `yaml:"engine"`
	Routing       RoutingConfig   `yaml:"routing"`
	Notifications NotifyConfig    `yaml:"notifications"`
	Metrics       MetricsConfig   `yaml:"metrics"`
	// LastConfig is the engine config file used by the previous session.
	LastConfig string `yaml:"last_config"`

	path string
}

// LogsConfig controls the application log.
type LogsConfig struct {
	Save  bool   `yaml:"save"`
	Level string `yaml:"level"`
	Path  string `yaml:"path"`
}

// ReconnectConfig holds the backoff bounds.
type ReconnectConfig struct {
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
}

// EngineConfig describes how the tunnel engine is started.
type EngineConfig struct {
	// HelperPath is the tunnel helper binary. Empty means look it up in PATH.
	HelperPath string `yaml:"helper_path"`
	// LogLevel overrides the loglevel of every engine config.
	LogLevel string `yaml:"log_level"`
}

// RoutingConfig controls the subnet list injected into tun listeners.
type RoutingConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Mode      string `yaml:"mode"`
	CachePath string `yaml:"cache_path"`
	SourceURL string `yaml:"source_url"`
}

// NotifyConfig controls desktop notifications.
type NotifyConfig struct {
	OnStateChange bool `yaml:"on_state_change"`
	OnlyErrors    bool `yaml:"only_errors"`
}

// MetricsConfig controls the Prometheus endpoint. Empty Listen disables it.
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

var validEngineLevels = []string{"trace", "debug", "info", "warn", "error"}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Logs: LogsConfig{
			Level: "info",
		},
		AutoReconnect: true,
		Reconnect: ReconnectConfig{
			InitialDelay: common.DefaultReconnectDelay,
			MaxDelay:     common.DefaultMaxReconnectDelay,
		},
		Engine: EngineConfig{
			LogLevel: "info",
		},
		Routing: RoutingConfig{
			Mode:      common.RoutingModeBypass,
			SourceURL: common.DefaultRoutingSourceURL,
		},
		Notifications: NotifyConfig{
			OnStateChange: true,
		},
	}
}

// Load loads the settings from the default location.
// If the file doesn't exist, it creates one with default values.
func Load() (*Config, error) {
	configPath, err := DefaultPath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(configPath)
}

// LoadFrom loads the settings from path, creating it with defaults if missing.
func LoadFrom(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		cfg := DefaultConfig()
		cfg.path = configPath
		if err := cfg.Save(); err != nil {
			return cfg, err
		}
		return cfg, nil
	}

	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrConfigLoad, err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true) // Strict validation: reject unknown fields

	config := DefaultConfig()
	if err := decoder.Decode(config); err != nil {
		return nil, fmt.Errorf("%w: error parsing %s: %v", common.ErrConfigLoad, configPath, err)
	}

	config.validate()
	config.path = configPath
	return config, nil
}

// validate replaces out-of-range values with their defaults.
func (c *Config) validate() {
	defaults := DefaultConfig()

	if _, err := common.ParseLogLevel(c.Logs.Level); err != nil {
		c.Logs.Level = defaults.Logs.Level
	}

	c.Engine.LogLevel = strings.ToLower(strings.TrimSpace(c.Engine.LogLevel))
	if !contains(validEngineLevels, c.Engine.LogLevel) {
		c.Engine.LogLevel = defaults.Engine.LogLevel
	}

	if c.Reconnect.InitialDelay < common.MinReconnectDelay {
		c.Reconnect.InitialDelay = defaults.Reconnect.InitialDelay
	}
	if c.Reconnect.MaxDelay < c.Reconnect.InitialDelay {
		c.Reconnect.MaxDelay = max(defaults.Reconnect.MaxDelay, c.Reconnect.InitialDelay)
	}

	switch c.Routing.Mode {
	case common.RoutingModeTunnel, common.RoutingModeBypass:
	default:
		c.Routing.Mode = defaults.Routing.Mode
	}
	if c.Routing.SourceURL == "" {
		c.Routing.SourceURL = defaults.Routing.SourceURL
	}
}

// Path returns the file the settings were loaded from.
func (c *Config) Path() string {
	return c.path
}

// Save writes the settings back to the file they came from,
// or to the default location for a fresh Config.
func (c *Config) Save() error {
	configPath := c.path
	if configPath == "" {
		var err error
		if configPath, err = DefaultPath(); err != nil {
			return err
		}
		c.path = configPath
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0700); err != nil {
		return fmt.Errorf("%w: error creating config directory: %v", common.ErrConfigSave, err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("%w: error serializing configuration: %v", common.ErrConfigSave, err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("%w: %v", common.ErrConfigSave, err)
	}

	return nil
}

// LogFilePath returns the log file location, falling back to the log dir.
func (c *Config) LogFilePath() string {
	if c.Logs.Path != "" {
		return c.Logs.Path
	}
	return filepath.Join(common.GetLogDir(), common.LogFileName)
}

// RoutingCachePath returns the subnet cache location.
func (c *Config) RoutingCachePath() (string, error) {
	if c.Routing.CachePath != "" {
		return c.Routing.CachePath, nil
	}
	dir, err := common.GetCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, common.RoutingCacheName), nil
}

// DefaultPath returns the default settings file location.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("error getting home directory: %w", err)
	}

	return filepath.Join(homeDir, ".config", common.ConfigDirName, common.SettingsFileName), nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
