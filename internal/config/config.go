// Package config loads covrun settings from covrun.yaml, the environment
// and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/psantana5/covrun/internal/instrumenter"
	"github.com/psantana5/covrun/pkg/retry"
)

// EnvPrefix prefixes every environment override, e.g.
// COVRUN_RETRY_MAX_ATTEMPTS.
const EnvPrefix = "COVRUN"

// Config is the complete covrun configuration.
type Config struct {
	Retry        RetryConfig        `mapstructure:"retry" yaml:"retry"`
	DotnetRoot   string             `mapstructure:"dotnet_root" yaml:"dotnet_root"`
	Instrumenter InstrumenterConfig `mapstructure:"instrumenter" yaml:"instrumenter"`
	Backup       BackupConfig       `mapstructure:"backup" yaml:"backup"`
	Logging      LoggingConfig      `mapstructure:"logging" yaml:"logging"`
	Metrics      MetricsConfig      `mapstructure:"metrics" yaml:"metrics"`
	History      HistoryConfig      `mapstructure:"history" yaml:"history"`
	Server       ServerConfig       `mapstructure:"server" yaml:"server"`
	Tracing      TracingConfig      `mapstructure:"tracing" yaml:"tracing"`

	// File is the config file that was read, if any.
	File string `mapstructure:"-" yaml:"-"`
}

// RetryConfig shapes the policy used for module and symbol file access.
type RetryConfig struct {
	MaxAttempts int     `mapstructure:"max_attempts" yaml:"max_attempts"`
	Strategy    string  `mapstructure:"strategy" yaml:"strategy"` // constant, linear, exponential
	Backoff     string  `mapstructure:"backoff" yaml:"backoff"`   // e.g. "250ms"
	MaxBackoff  string  `mapstructure:"max_backoff" yaml:"max_backoff"`
	Multiplier  float64 `mapstructure:"multiplier" yaml:"multiplier"`
}

type InstrumenterConfig struct {
	Command string   `mapstructure:"command" yaml:"command"`
	Args    []string `mapstructure:"args" yaml:"args"`
	Timeout string   `mapstructure:"timeout" yaml:"timeout"`
}

type BackupConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Dir     string `mapstructure:"dir" yaml:"dir"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"` // text or json
	Dir    string `mapstructure:"dir" yaml:"dir"`
}

type MetricsConfig struct {
	Textfile string `mapstructure:"textfile" yaml:"textfile"`
}

type HistoryConfig struct {
	Driver        string `mapstructure:"driver" yaml:"driver"` // "", sqlite3 or postgres
	DSN           string `mapstructure:"dsn" yaml:"dsn"`
	Retention     string `mapstructure:"retention" yaml:"retention"` // e.g. "720h"; empty keeps everything
	PruneInterval string `mapstructure:"prune_interval" yaml:"prune_interval"`
}

type ServerConfig struct {
	Addr         string   `mapstructure:"addr" yaml:"addr"`
	RateLimit    float64  `mapstructure:"rate_limit" yaml:"rate_limit"`
	Burst        int      `mapstructure:"burst" yaml:"burst"`
	APIKeyHashes []string `mapstructure:"api_key_hashes" yaml:"api_key_hashes"`
	TLSCert      string   `mapstructure:"tls_cert" yaml:"tls_cert"`
	TLSKey       string   `mapstructure:"tls_key" yaml:"tls_key"`
	ClientCA     string   `mapstructure:"client_ca" yaml:"client_ca"`
}

type TracingConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
}

// SetDefaults registers every key with its default so that environment
// overrides apply even without a config file.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("retry.max_attempts", retry.DefaultMaxAttempts)
	v.SetDefault("retry.strategy", "linear")
	v.SetDefault("retry.backoff", retry.DefaultBackoffStep.String())
	v.SetDefault("retry.max_backoff", "5s")
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("dotnet_root", "")
	v.SetDefault("instrumenter.command", "")
	v.SetDefault("instrumenter.args", []string{})
	v.SetDefault("instrumenter.timeout", instrumenter.DefaultTimeout.String())
	v.SetDefault("backup.enabled", true)
	v.SetDefault("backup.dir", "")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.dir", "")
	v.SetDefault("metrics.textfile", "")
	v.SetDefault("history.driver", "")
	v.SetDefault("history.dsn", "")
	v.SetDefault("history.retention", "")
	v.SetDefault("history.prune_interval", "1h")
	v.SetDefault("server.addr", "127.0.0.1:8090")
	v.SetDefault("server.rate_limit", 5.0)
	v.SetDefault("server.burst", 10)
	v.SetDefault("server.api_key_hashes", []string{})
	v.SetDefault("server.tls_cert", "")
	v.SetDefault("server.tls_key", "")
	v.SetDefault("server.client_ca", "")
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4318")
}

// NewViper returns a viper instance set up with defaults, the config
// search path and COVRUN_ environment overrides. An explicit file is used
// as given; otherwise covrun.yaml is searched in $HOME/.covrun and the
// working directory.
func NewViper(cfgFile string) *viper.Viper {
	v := viper.New()
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".covrun"))
		}
		v.AddConfigPath(".")
		v.SetConfigName("covrun")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads and validates the configuration. A missing config file is
// only an error when cfgFile names it.
func Load(cfgFile string) (*Config, error) {
	return FromViper(NewViper(cfgFile))
}

// FromViper reads the config file known to v, if any, and decodes it.
func FromViper(v *viper.Viper) (*Config, error) {
	if explicit := v.ConfigFileUsed(); explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	// Defaults always decode.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// YAML renders the configuration.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
