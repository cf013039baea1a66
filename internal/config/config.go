// Package config loads the vip configuration from file, environment and
// defaults.
package config

import (
	"errors"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"vip/internal/auth"
	"vip/internal/dispatch"
	"vip/internal/pipeline"
)

// EnvPrefix prefixes environment overrides, e.g. VIP_SERVER_PORT.
const EnvPrefix = "VIP"

// Config represents the complete vip configuration.
type Config struct {
	Server   ServerConfig    `json:"server" yaml:"server" toml:"server" mapstructure:"server"`
	Dispatch dispatch.Config `json:"dispatch" yaml:"dispatch" toml:"dispatch" mapstructure:"dispatch"`
	Pipeline pipeline.Config `json:"pipeline" yaml:"pipeline" toml:"pipeline" mapstructure:"pipeline"`
	Runs     RunsConfig      `json:"runs" yaml:"runs" toml:"runs" mapstructure:"runs"`
	Auth     AuthConfig      `json:"auth" yaml:"auth" toml:"auth" mapstructure:"auth"`
	Logging  LoggingConfig   `json:"logging" yaml:"logging" toml:"logging" mapstructure:"logging"`

	// Source is the config file that was read, empty when none was found.
	Source string `json:"-" yaml:"-" toml:"-" mapstructure:"-"`
}

// ServerConfig contains HTTP listener settings. A zero timeout means none;
// WriteTimeout defaults to zero because training requests can run for a long
// time.
type ServerConfig struct {
	Host            string        `json:"host" mapstructure:"host"`
	Port            int           `json:"port" mapstructure:"port"`
	ReadTimeout     time.Duration `json:"readTimeout" mapstructure:"readTimeout"`
	WriteTimeout    time.Duration `json:"writeTimeout" mapstructure:"writeTimeout"`
	IdleTimeout     time.Duration `json:"idleTimeout" mapstructure:"idleTimeout"`
	ShutdownTimeout time.Duration `json:"shutdownTimeout" mapstructure:"shutdownTimeout"`
	MaxBodyBytes    int64         `json:"maxBodyBytes" mapstructure:"maxBodyBytes"`
	Compress        bool          `json:"compress" mapstructure:"compress"`
}

// RunsConfig controls the run history database.
type RunsConfig struct {
	Enabled   bool          `json:"enabled" mapstructure:"enabled"`
	Dir       string        `json:"dir" mapstructure:"dir"`
	Retention time.Duration `json:"retention" mapstructure:"retention"`
}

// AuthConfig protects the training endpoint.
type AuthConfig struct {
	TrainTokenHash string               `json:"trainTokenHash" mapstructure:"trainTokenHash"`
	RateLimit      auth.RateLimitConfig `json:"rateLimit" mapstructure:"rateLimit"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level      string `json:"level" mapstructure:"level"`
	Format     string `json:"format" mapstructure:"format"`
	File       string `json:"file" mapstructure:"file"`
	MaxSize    string `json:"maxSize" mapstructure:"maxSize"`
	MaxBackups int    `json:"maxBackups" mapstructure:"maxBackups"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            5000,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    0,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxBodyBytes:    1 << 20,
			Compress:        true,
		},
		Dispatch: dispatch.DefaultConfig(),
		Pipeline: pipeline.DefaultConfig(),
		Runs: RunsConfig{
			Enabled:   true,
			Dir:       ".vip",
			Retention: 7 * 24 * time.Hour,
		},
		Auth: AuthConfig{
			RateLimit: auth.DefaultRateLimitConfig(),
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "human",
			MaxBackups: 3,
		},
	}
}

// setDefaults registers every key so environment overrides reach Unmarshal.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.readTimeout", d.Server.ReadTimeout)
	v.SetDefault("server.writeTimeout", d.Server.WriteTimeout)
	v.SetDefault("server.idleTimeout", d.Server.IdleTimeout)
	v.SetDefault("server.shutdownTimeout", d.Server.ShutdownTimeout)
	v.SetDefault("server.maxBodyBytes", d.Server.MaxBodyBytes)
	v.SetDefault("server.compress", d.Server.Compress)

	v.SetDefault("dispatch.workerCount", d.Dispatch.WorkerCount)
	v.SetDefault("dispatch.queueSize", d.Dispatch.QueueSize)
	for name, workers := range d.Dispatch.Lanes {
		v.SetDefault("dispatch.lanes."+name, workers)
	}

	v.SetDefault("pipeline.mode", d.Pipeline.Mode)
	v.SetDefault("pipeline.command.train", d.Pipeline.Command.Train)
	v.SetDefault("pipeline.command.predict", d.Pipeline.Command.Predict)
	v.SetDefault("pipeline.command.dir", d.Pipeline.Command.Dir)
	v.SetDefault("pipeline.command.env", d.Pipeline.Command.Env)
	v.SetDefault("pipeline.http.baseURL", d.Pipeline.HTTP.BaseURL)
	v.SetDefault("pipeline.http.token", d.Pipeline.HTTP.Token)
	v.SetDefault("pipeline.http.timeout", d.Pipeline.HTTP.Timeout)
	v.SetDefault("pipeline.static.outcome", d.Pipeline.Static.Outcome)

	v.SetDefault("runs.enabled", d.Runs.Enabled)
	v.SetDefault("runs.dir", d.Runs.Dir)
	v.SetDefault("runs.retention", d.Runs.Retention)

	v.SetDefault("auth.trainTokenHash", d.Auth.TrainTokenHash)
	v.SetDefault("auth.rateLimit.enabled", d.Auth.RateLimit.Enabled)
	v.SetDefault("auth.rateLimit.perMinute", d.Auth.RateLimit.PerMinute)
	v.SetDefault("auth.rateLimit.burst", d.Auth.RateLimit.Burst)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.file", d.Logging.File)
	v.SetDefault("logging.maxSize", d.Logging.MaxSize)
	v.SetDefault("logging.maxBackups", d.Logging.MaxBackups)
}

// Load reads the configuration. With an explicit path that file must exist;
// otherwise vip.{json,yaml,toml} is looked up in ".", "./config" and
// "$HOME/.vip" and a missing file means defaults. Environment variables
// (VIP_SERVER_PORT, ..., plus APP_HOST and APP_PORT) override both.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("vip")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("$HOME/.vip")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("server.host", "VIP_SERVER_HOST", "APP_HOST")
	_ = v.BindEnv("server.port", "VIP_SERVER_PORT", "APP_PORT")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.Source = v.ConfigFileUsed()

	return &cfg, nil
}

// EnvVar returns the environment variable that overrides key, e.g.
// "server.readTimeout" -> "VIP_SERVER_READTIMEOUT".
func EnvVar(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return &ConfigError{Field: "server.port", Message: "must be between 1 and 65535"}
	}
	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 || c.Server.IdleTimeout < 0 {
		return &ConfigError{Field: "server", Message: "timeouts must not be negative"}
	}
	if c.Server.ShutdownTimeout <= 0 {
		return &ConfigError{Field: "server.shutdownTimeout", Message: "must be positive"}
	}
	if c.Server.MaxBodyBytes <= 0 {
		return &ConfigError{Field: "server.maxBodyBytes", Message: "must be positive"}
	}

	if c.Dispatch.WorkerCount < 1 {
		return &ConfigError{Field: "dispatch.workerCount", Message: "must be at least 1"}
	}
	if c.Dispatch.QueueSize < 1 {
		return &ConfigError{Field: "dispatch.queueSize", Message: "must be at least 1"}
	}
	for name, workers := range c.Dispatch.Lanes {
		if workers < 0 {
			return &ConfigError{Field: "dispatch.lanes." + name, Message: "must not be negative"}
		}
	}

	switch c.Pipeline.Mode {
	case pipeline.ModeStatic:
	case pipeline.ModeCommand:
		if len(c.Pipeline.Command.Train) == 0 {
			return &ConfigError{Field: "pipeline.command.train", Message: "command required"}
		}
		if len(c.Pipeline.Command.Predict) == 0 {
			return &ConfigError{Field: "pipeline.command.predict", Message: "command required"}
		}
	case pipeline.ModeHTTP:
		if c.Pipeline.HTTP.BaseURL == "" {
			return &ConfigError{Field: "pipeline.http.baseURL", Message: "base URL required"}
		}
	default:
		return &ConfigError{Field: "pipeline.mode", Message: "unsupported mode " + strconv.Quote(c.Pipeline.Mode)}
	}

	if c.Runs.Enabled && c.Runs.Dir == "" {
		return &ConfigError{Field: "runs.dir", Message: "directory required when runs are enabled"}
	}
	if c.Runs.Retention < 0 {
		return &ConfigError{Field: "runs.retention", Message: "must not be negative"}
	}

	if c.Auth.TrainTokenHash != "" {
		if err := auth.ValidateHash(c.Auth.TrainTokenHash); err != nil {
			return &ConfigError{Field: "auth.trainTokenHash", Message: err.Error()}
		}
	}

	switch strings.ToLower(c.Logging.Format) {
	case "", "human", "text", "json":
	default:
		return &ConfigError{Field: "logging.format", Message: "unsupported format " + strconv.Quote(c.Logging.Format)}
	}

	return nil
}

// ConfigError represents a configuration error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
