// Package config loads chanctl configuration from YAML and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config is the root configuration.
type Config struct {
	Valkey ValkeyConfig `mapstructure:"valkey"`
	Bus    BusConfig    `mapstructure:"bus"`
	Log    LogConfig    `mapstructure:"log"`
}

// ValkeyConfig describes how to reach the server.
type ValkeyConfig struct {
	Addresses  []string `mapstructure:"addresses" validate:"required,min=1,dive,hostname_port"`
	Username   string   `mapstructure:"username"`
	Password   string   `mapstructure:"password"`
	DB         int      `mapstructure:"db" validate:"gte=0"`
	ClientName string   `mapstructure:"client_name"`
}

// BusConfig tunes delivery and reconnects.
type BusConfig struct {
	Workers      int           `mapstructure:"workers" validate:"gte=1"`
	BufferSize   int           `mapstructure:"buffer_size" validate:"gte=1"`
	ReconnectMin time.Duration `mapstructure:"reconnect_min" validate:"gt=0"`
	ReconnectMax time.Duration `mapstructure:"reconnect_max" validate:"gtefield=ReconnectMin"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `mapstructure:"level" validate:"oneof=debug info warn warning error"`
	// Format: console or json
	Format string `mapstructure:"format" validate:"oneof=console json"`
	// Outputs: stdout, stderr or file paths
	Outputs     []string       `mapstructure:"outputs" validate:"min=1"`
	Development bool           `mapstructure:"development"`
	Rotation    RotationConfig `mapstructure:"rotation"`
}

// RotationConfig controls log file rotation for file outputs.
type RotationConfig struct {
	Enable     bool   `mapstructure:"enable"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// Default returns a Config populated with defaults for a local server.
func Default() *Config {
	return &Config{
		Valkey: ValkeyConfig{
			Addresses:  []string{"localhost:6379"},
			ClientName: "chanctl",
		},
		Bus: BusConfig{
			Workers:      4,
			BufferSize:   100,
			ReconnectMin: 100 * time.Millisecond,
			ReconnectMax: 30 * time.Second,
		},
		Log: LogConfig{
			Level:   "info",
			Format:  "console",
			Outputs: []string{"stderr"},
			Rotation: RotationConfig{
				Filename:   "logs/chanctl.log",
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 28,
				Compress:   true,
			},
		},
	}
}

// Load reads configuration from path, or from chanctl.yaml in the usual
// locations when path is empty. Environment variables use the prefix
// CHANNELS with `.` replaced by `_`, e.g. CHANNELS_LOG_LEVEL=debug.
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("CHANNELS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// seed defaults so env-only configs work
	v.SetDefault("valkey.addresses", cfg.Valkey.Addresses)
	v.SetDefault("valkey.username", cfg.Valkey.Username)
	v.SetDefault("valkey.password", cfg.Valkey.Password)
	v.SetDefault("valkey.db", cfg.Valkey.DB)
	v.SetDefault("valkey.client_name", cfg.Valkey.ClientName)
	v.SetDefault("bus.workers", cfg.Bus.Workers)
	v.SetDefault("bus.buffer_size", cfg.Bus.BufferSize)
	v.SetDefault("bus.reconnect_min", cfg.Bus.ReconnectMin)
	v.SetDefault("bus.reconnect_max", cfg.Bus.ReconnectMax)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.outputs", cfg.Log.Outputs)
	v.SetDefault("log.development", cfg.Log.Development)
	v.SetDefault("log.rotation.enable", cfg.Log.Rotation.Enable)
	v.SetDefault("log.rotation.filename", cfg.Log.Rotation.Filename)
	v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
	v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
	v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
	v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)

	if path == "" {
		if envPath := os.Getenv("CHANNELS_CONFIG"); envPath != "" {
			path = envPath
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("chanctl")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".chanctl"))
		}
	}

	// a missing config file is fine; defaults and env still apply
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))

	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
