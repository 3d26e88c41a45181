package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration for the
// LimboDB engine: where databases live on disk, how the engine logs,
// and how the optional REST API is exposed.
type Config struct {
	DataDir string        `mapstructure:"data_dir"`
	Logging LoggingConfig `mapstructure:"logging"`
	RestAPI RestAPIConfig `mapstructure:"rest_api"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // console, json
	Output     string `mapstructure:"output"` // stderr, stdout, or a file path
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// RestAPIConfig holds REST API server configuration
type RestAPIConfig struct {
	Enabled      bool     `mapstructure:"enabled"`
	Host         string   `mapstructure:"host"`
	Port         int      `mapstructure:"port"`
	CORS         bool     `mapstructure:"cors"`
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// DefaultConfig returns configuration with the engine's default values.
// DataDir mirrors the original CLI's "data/" directory convention
// (spec §6), rooted under the user's home directory instead of the
// process's working directory so `limbodb` behaves the same no matter
// where it's invoked from.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".limbodb", "data")

	return &Config{
		DataDir: dataDir,
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			Output:     "stderr",
			MaxSizeMB:  50,
			MaxBackups: 3,
		},
		RestAPI: RestAPIConfig{
			Enabled: false,
			Host:    "localhost",
			Port:    4287,
			CORS:    true,
		},
	}
}

// Load loads configuration from a YAML file with fallback to defaults.
// Searches in multiple locations:
//  1. ./limbodb.yaml (current directory)
//  2. ~/.limbodb/limbodb.yaml (user home)
//  3. /etc/limbodb/limbodb.yaml (system-wide)
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("limbodb")
	v.SetConfigType("yaml")

	v.AddConfigPath(".")
	homeDir, _ := os.UserHomeDir()
	v.AddConfigPath(filepath.Join(homeDir, ".limbodb"))
	v.AddConfigPath("/etc/limbodb")

	v.SetEnvPrefix("LIMBODB")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// setDefaults sets default values in Viper
func setDefaults(v *viper.Viper) {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".limbodb", "data")

	v.SetDefault("data_dir", dataDir)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.output", "stderr")
	v.SetDefault("logging.max_size_mb", 50)
	v.SetDefault("logging.max_backups", 3)

	v.SetDefault("rest_api.enabled", false)
	v.SetDefault("rest_api.host", "localhost")
	v.SetDefault("rest_api.port", 4287)
	v.SetDefault("rest_api.cors", true)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	if c.RestAPI.Enabled {
		if c.RestAPI.Port < 1 || c.RestAPI.Port > 65535 {
			return fmt.Errorf("rest_api.port must be between 1 and 65535")
		}
		if c.RestAPI.Host == "" {
			return fmt.Errorf("rest_api.host is required when the REST API is enabled")
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}

	validFormats := map[string]bool{"console": true, "json": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: console, json")
	}

	return nil
}

// EnsureDataDir creates the configured data directory if it doesn't exist
func (c *Config) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	return nil
}
