package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"vip/internal/config"
)

var (
	configFormat  string
	configDefault bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the configuration after merging defaults, the config file and
environment overrides. The output can be saved as vip.json, vip.yaml or vip.toml.

Examples:
  vip config show
  vip config show --format yaml > vip.yaml
  vip config show --defaults --format toml`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

var configEnvCmd = &cobra.Command{
	Use:   "env",
	Short: "List supported environment variables",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		for _, line := range envVarMappings() {
			fmt.Fprintln(cmd.OutOrStdout(), line)
		}
	},
}

func init() {
	configShowCmd.Flags().StringVar(&configFormat, "format", "json", "Output format (json, yaml, toml)")
	configShowCmd.Flags().BoolVar(&configDefault, "defaults", false, "Show built-in defaults instead of the effective config")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEnvCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg := config.DefaultConfig()
	if !configDefault {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
	}
	return writeConfig(cmd.OutOrStdout(), cfg, configFormat)
}

// writeConfig encodes cfg with the JSON field names in the requested format.
func writeConfig(w io.Writer, cfg *config.Config, format string) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	var tree map[string]interface{}
	if err := json.Unmarshal(raw, &tree); err != nil {
		return err
	}
	pruneNulls(tree)

	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(tree)
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(tree); err != nil {
			return err
		}
		return enc.Close()
	case "toml":
		return toml.NewEncoder(w).Encode(tree)
	default:
		return fmt.Errorf("unknown format %q (want json, yaml or toml)", format)
	}
}

// pruneNulls drops unset values, which TOML cannot represent.
func pruneNulls(tree map[string]interface{}) {
	for k, v := range tree {
		switch v := v.(type) {
		case nil:
			delete(tree, k)
		case map[string]interface{}:
			pruneNulls(v)
		}
	}
}

// envVarMappings lists every VIP_ variable that maps onto a config key.
func envVarMappings() []string {
	keys := []string{
		"server.host", "server.port", "server.readTimeout", "server.writeTimeout",
		"server.idleTimeout", "server.shutdownTimeout", "server.maxBodyBytes",
		"dispatch.workerCount", "dispatch.queueSize", "dispatch.lanes.train",
		"pipeline.mode", "pipeline.command.train", "pipeline.command.predict",
		"pipeline.command.dir", "pipeline.command.env",
		"pipeline.http.baseURL", "pipeline.http.token", "pipeline.http.timeout",
		"pipeline.static.outcome",
		"runs.enabled", "runs.dir", "runs.retention",
		"auth.trainTokenHash", "auth.rateLimit.enabled", "auth.rateLimit.perMinute", "auth.rateLimit.burst",
		"logging.level", "logging.format", "logging.file", "logging.maxSize", "logging.maxBackups",
	}

	lines := make([]string, 0, len(keys)+2)
	for _, key := range keys {
		lines = append(lines, fmt.Sprintf("%-40s %s", config.EnvVar(key), key))
	}
	lines = append(lines,
		fmt.Sprintf("%-40s %s", "APP_HOST", "server.host"),
		fmt.Sprintf("%-40s %s", "APP_PORT", "server.port"),
	)
	sort.Strings(lines)
	return lines
}
