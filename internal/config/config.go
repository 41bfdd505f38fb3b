// Package config loads OpenCall configuration using Viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/opencall/opencall/internal/api"
	ocerrors "github.com/opencall/opencall/internal/errors"
	"github.com/opencall/opencall/internal/log"
	"github.com/opencall/opencall/internal/telemetry"
)

// EnvPrefix prefixes every environment override, e.g. OPENCALL_API_BASE_URL.
const EnvPrefix = "OPENCALL"

// Session backends
const (
	BackendNone      = "none"
	BackendMemory    = "memory"
	BackendFile      = "file"
	BackendEncrypted = "encrypted"
	BackendRedis     = "redis"
)

// Config holds the client configuration.
type Config struct {
	API          APIConfig          `mapstructure:"api"`
	Session      SessionConfig      `mapstructure:"session"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Log          LogConfig          `mapstructure:"log"`
	Interceptors InterceptorsConfig `mapstructure:"interceptors"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
	Telemetry    TelemetryConfig    `mapstructure:"telemetry"`

	// File is the config file that was read, if any.
	File string `mapstructure:"-"`
}

// APIConfig configures the request pipeline
type APIConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Timeout        time.Duration `mapstructure:"timeout"`
	RefreshBuffer  time.Duration `mapstructure:"refresh_buffer"`
	RefreshTimeout time.Duration `mapstructure:"refresh_timeout"`
}

// SessionConfig selects where the session is persisted
type SessionConfig struct {
	Backend    string        `mapstructure:"backend"`
	Path       string        `mapstructure:"path"`
	Key        string        `mapstructure:"key"`
	Passphrase string        `mapstructure:"passphrase"`
	TTL        time.Duration `mapstructure:"ttl"`
}

// RedisConfig is used by the redis session backend
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// LogConfig configures internal/log
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// InterceptorsConfig selects the default interceptor set
type InterceptorsConfig struct {
	Mode string `mapstructure:"mode"`
}

// MetricsConfig configures the Prometheus endpoint of long-running commands
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// TelemetryConfig configures tracing
type TelemetryConfig struct {
	Enabled    bool    `mapstructure:"enabled"`
	Endpoint   string  `mapstructure:"endpoint"`
	Insecure   bool    `mapstructure:"insecure"`
	SampleRate float64 `mapstructure:"sample_rate"`
}

// Home returns the OpenCall home directory: $OPENCALL_HOME or ~/.opencall.
func Home() string {
	if h := os.Getenv(EnvPrefix + "_HOME"); h != "" {
		return h
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".opencall"
	}
	return filepath.Join(home, ".opencall")
}

// Load reads configuration from configPath, or from config.yaml in the
// OpenCall home and the working directory, then applies OPENCALL_*
// environment overrides. A missing config file is not an error.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, ocerrors.NewFileNotFoundError(configPath)
		}
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(Home())
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, ocerrors.Wrap(ocerrors.ErrCodeConfigRead, "failed to read config file", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, ocerrors.Wrap(ocerrors.ErrCodeConfigRead, "failed to unmarshal config", err)
	}
	cfg.File = v.ConfigFileUsed()
	cfg.Session.Path = expandHome(cfg.Session.Path)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when nothing is configured.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", api.DefaultBaseURL)
	v.SetDefault("api.timeout", api.DefaultTimeout)
	v.SetDefault("api.refresh_buffer", api.DefaultRefreshBuffer)
	v.SetDefault("api.refresh_timeout", 15*time.Second)

	v.SetDefault("session.backend", BackendFile)
	v.SetDefault("session.path", Home())
	v.SetDefault("session.key", "opencall-auth")
	v.SetDefault("session.passphrase", "")
	v.SetDefault("session.ttl", time.Duration(0))

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "opencall:session:")

	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.output", "stderr")

	v.SetDefault("interceptors.mode", api.ModeProduction)
	v.SetDefault("metrics.addr", "")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.endpoint", "")
	v.SetDefault("telemetry.insecure", false)
	v.SetDefault("telemetry.sample_rate", 1.0)
}

// Validate reports the first invalid value.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return ocerrors.NewConfigInvalidError("api.base_url", "must not be empty")
	}
	if !strings.HasPrefix(c.API.BaseURL, "http://") && !strings.HasPrefix(c.API.BaseURL, "https://") {
		return ocerrors.NewConfigInvalidError("api.base_url", fmt.Sprintf("%q is not an http(s) URL", c.API.BaseURL))
	}
	if c.API.Timeout <= 0 {
		return ocerrors.NewConfigInvalidError("api.timeout", "must be positive")
	}
	if c.API.RefreshBuffer < 0 {
		return ocerrors.NewConfigInvalidError("api.refresh_buffer", "must not be negative")
	}
	if c.API.RefreshTimeout <= 0 {
		return ocerrors.NewConfigInvalidError("api.refresh_timeout", "must be positive")
	}

	switch c.Session.Backend {
	case BackendNone, BackendMemory:
	case BackendFile:
		if c.Session.Path == "" {
			return ocerrors.NewConfigInvalidError("session.path", "required by the file backend")
		}
	case BackendEncrypted:
		if c.Session.Path == "" {
			return ocerrors.NewConfigInvalidError("session.path", "required by the encrypted backend")
		}
		if c.Session.Passphrase == "" {
			return ocerrors.NewConfigInvalidError("session.passphrase", "required by the encrypted backend")
		}
	case BackendRedis:
		if c.Redis.Addr == "" {
			return ocerrors.NewConfigInvalidError("redis.addr", "required by the redis backend")
		}
	default:
		return ocerrors.NewConfigInvalidError("session.backend",
			fmt.Sprintf("unknown backend %q (want none, memory, file, encrypted or redis)", c.Session.Backend))
	}

	switch c.Interceptors.Mode {
	case api.ModeDevelopment, api.ModeProduction, api.ModeNone:
	default:
		return ocerrors.NewConfigInvalidError("interceptors.mode",
			fmt.Sprintf("unknown mode %q (want development, production or none)", c.Interceptors.Mode))
	}

	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		return ocerrors.NewConfigInvalidError("telemetry.sample_rate", "must be between 0 and 1")
	}
	return nil
}

// Logger builds the log configuration.
func (c *Config) Logger() (log.Config, error) {
	out, err := log.ParseOutput(c.Log.Output)
	if err != nil {
		return log.Config{}, ocerrors.Wrap(ocerrors.ErrCodeFileWriteFailed, "failed to open log output", err)
	}
	return log.Config{
		Level:  log.ParseLevel(c.Log.Level),
		Format: log.ParseFormat(c.Log.Format),
		Output: out,
	}, nil
}

// Tracing builds the telemetry configuration.
func (c *Config) Tracing(version string) telemetry.Config {
	tc := telemetry.DefaultConfig()
	tc.ServiceVersion = version
	tc.Enabled = c.Telemetry.Enabled
	tc.Endpoint = c.Telemetry.Endpoint
	tc.Insecure = c.Telemetry.Insecure
	tc.SampleRate = c.Telemetry.SampleRate
	return tc
}

func expandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
