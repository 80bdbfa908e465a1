// Package config loads, defaults, validates and materializes the server
// configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (SYNKERD_*)
//  2. Configuration file (YAML)
//  3. Default values
//
// Store Configuration Pattern:
// Each backend defines its own options and factory. The Config struct holds
// type-specific sections as raw maps (e.g. content.filesystem, content.s3)
// and only the section matching the selected Type is decoded.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the complete synkerd server configuration.
type Config struct {
	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging"`

	// Server contains server-wide settings.
	Server ServerConfig `mapstructure:"server"`

	// Metadata selects and configures the metadata store backend.
	Metadata MetadataConfig `mapstructure:"metadata"`

	// Content selects and configures the content store backend.
	Content ContentConfig `mapstructure:"content"`

	// Identity selects and configures the identity provider.
	Identity IdentityConfig `mapstructure:"identity"`

	// Upload configures the upload coordinator.
	Upload UploadConfig `mapstructure:"upload"`

	// GC configures the garbage collector.
	GC GCConfig `mapstructure:"gc"`

	// Notify configures change notification fan-out.
	Notify NotifyConfig `mapstructure:"notify"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output.
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Output is where logs are written: stdout, stderr, or a file path.
	Output string `mapstructure:"output" validate:"required"`
}

// ServerConfig contains server-wide settings.
type ServerConfig struct {
	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0"`
}

// MetadataConfig selects the metadata store backend. Only the section
// matching Type is used.
type MetadataConfig struct {
	// Type is the backend: memory or badger.
	Type string `mapstructure:"type" validate:"required,oneof=memory badger"`

	// Memory holds memory-backend options (none today).
	Memory map[string]any `mapstructure:"memory"`

	// Badger holds BadgerDB options. Used only when Type = "badger".
	Badger map[string]any `mapstructure:"badger"`
}

// ContentConfig selects the content store backend. Only the section matching
// Type is used.
type ContentConfig struct {
	// Type is the backend: memory, filesystem or s3.
	Type string `mapstructure:"type" validate:"required,oneof=memory filesystem s3"`

	// Memory holds memory-backend options (none today).
	Memory map[string]any `mapstructure:"memory"`

	// Filesystem holds local-disk options. Used only when Type = "filesystem".
	Filesystem map[string]any `mapstructure:"filesystem"`

	// S3 holds S3 options. Used only when Type = "s3".
	S3 map[string]any `mapstructure:"s3"`
}

// IdentityConfig selects the identity provider. Only the section matching
// Type is used.
type IdentityConfig struct {
	// Type is the provider: mycloud or static.
	Type string `mapstructure:"type" validate:"required,oneof=mycloud static"`

	// MyCloud holds appliance options. Used only when Type = "mycloud".
	MyCloud map[string]any `mapstructure:"mycloud"`

	// Static holds the config-listed account options. Used only when
	// Type = "static".
	Static map[string]any `mapstructure:"static"`
}

// UploadConfig configures the upload coordinator.
type UploadConfig struct {
	// SessionTTL is how long an idle upload session survives before the
	// sweeper abandons it.
	SessionTTL time.Duration `mapstructure:"session_ttl" validate:"required,gt=0"`
}

// GCConfig configures the garbage collector.
type GCConfig struct {
	// Enabled controls background collection.
	Enabled bool `mapstructure:"enabled"`

	// Interval is how often collection runs.
	Interval time.Duration `mapstructure:"interval" validate:"required,gt=0"`

	// LogRetention is how long change-log entries are kept for devices
	// that have not synced.
	LogRetention time.Duration `mapstructure:"log_retention" validate:"required,gt=0"`

	// DryRun logs what would be reclaimed without deleting.
	DryRun bool `mapstructure:"dry_run"`
}

// NotifyConfig configures change notification fan-out.
type NotifyConfig struct {
	// SubscriberBuffer is the per-subscriber channel capacity.
	SubscriberBuffer int `mapstructure:"subscriber_buffer" validate:"gte=0"`
}

// Load loads configuration from file, environment, and defaults.
//
// Parameters:
//   - configPath: path to a config file (empty uses the default location)
//
// Returns:
//   - *Config: loaded and validated configuration
//   - error: file, decode or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures environment variables and config file lookup.
func setupViper(v *viper.Viper, configPath string) {
	// Example: SYNKERD_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("SYNKERD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists. A missing file
// is fine: defaults and environment variables still apply.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// getConfigDir returns the configuration directory: $XDG_CONFIG_HOME/synkerd,
// ~/.config/synkerd, or the current directory as a last resort.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "synkerd")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "synkerd")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}
