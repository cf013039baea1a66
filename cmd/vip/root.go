package main

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"vip/internal/config"
	"vip/internal/slogutil"
	"vip/internal/version"
)

var (
	// configPath is the --config flag value
	configPath string
	logLevel   string
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:   "vip",
	Short: "vip - Vehicle Insurance Prediction service",
	Long: `vip serves a web form that predicts whether a customer is interested in
vehicle insurance, and an endpoint that retrains the model. Training and
prediction are delegated to a configurable pipeline.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate("vip version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Config file (default: vip.{json,yaml,toml} in ., ./config or $HOME/.vip)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level: debug, info, warn, error (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "",
		"Log format: human or json (overrides config)")
}

// loadConfig loads and validates the configuration, applying global flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the logger described by cfg. The returned func closes the
// log file, if any.
func newLogger(cfg *config.Config, out io.Writer) (*slog.Logger, func(), error) {
	logger, closer, err := slogutil.New(slogutil.Options{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		Output:     out,
		MaxSize:    cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups,
	})
	if err != nil {
		return nil, nil, err
	}
	return logger, func() {
		if closer != nil {
			_ = closer.Close()
		}
	}, nil
}
