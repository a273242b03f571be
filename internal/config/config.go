// Package config loads the toolkit's configuration from YAML plus
// environment overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the full configuration surface.
type Config struct {
	XA    XAConfig    `mapstructure:"xa" yaml:"xa" json:"xa"`
	Retry RetryConfig `mapstructure:"retry" yaml:"retry" json:"retry"`
	Log   LogConfig   `mapstructure:"log" yaml:"log" json:"log"`
}

// XAConfig configures the two-phase-commit participant.
type XAConfig struct {
	Dialect         string        `mapstructure:"dialect" yaml:"dialect" json:"dialect"`
	DSN             string        `mapstructure:"dsn" yaml:"dsn" json:"dsn"`
	Driver          string        `mapstructure:"driver" yaml:"driver" json:"driver"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
	// CleanupPrefix is the xid prefix the stale-branch sweep targets.
	CleanupPrefix string `mapstructure:"cleanup_prefix" yaml:"cleanup_prefix" json:"cleanup_prefix"`
}

// RetryConfig configures the retrying transaction manager. Retry
// aggressiveness is a deployment tuning knob, not a constant.
type RetryConfig struct {
	DSN         string        `mapstructure:"dsn" yaml:"dsn" json:"dsn"`
	MaxRetries  int           `mapstructure:"max_retries" yaml:"max_retries" json:"max_retries"`
	BaseBackoff time.Duration `mapstructure:"base_backoff" yaml:"base_backoff" json:"base_backoff"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level" json:"level"`
}

// Load reads the configuration file at path (optional), layered under
// SQLTX_-prefixed environment variables. A .env file in the working
// directory is honored when present.
func Load(path string) (*Config, error) {
	// Best effort; absence of a .env file is the normal case.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("SQLTX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("xa.dialect", "mysql")
	v.SetDefault("xa.driver", "mysql")
	v.SetDefault("xa.max_open_conns", 50)
	v.SetDefault("xa.max_idle_conns", 10)
	v.SetDefault("xa.conn_max_lifetime", time.Hour)
	v.SetDefault("xa.cleanup_prefix", "")

	v.SetDefault("retry.max_retries", 3)
	v.SetDefault("retry.base_backoff", 100*time.Millisecond)

	v.SetDefault("log.level", "info")
}
