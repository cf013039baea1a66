package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"vip/internal/dispatch"
	"vip/internal/pipeline"
	"vip/internal/runs"
	"vip/internal/schema"
)

var (
	predictFields []string
	predictJSON   bool
)

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Predict interest for one customer",
	Long: `Validate the given fields and run the configured prediction pipeline once.

Every field of the form is required:
  ` + strings.Join(schema.Columns(), ", ") + `

Examples:
  vip predict --field Gender=Male --field Age=35 --field Driving_License=1 ...
  vip predict --json --field ...`,
	Args: cobra.NoArgs,
	RunE: runPredict,
}

func init() {
	rootCmd.AddCommand(predictCmd)

	predictCmd.Flags().StringArrayVarP(&predictFields, "field", "f", nil, "Field as name=value (repeatable)")
	predictCmd.Flags().BoolVar(&predictJSON, "json", false, "Print the result as JSON")
}

// parseFields turns name=value pairs into raw input. Later pairs win.
func parseFields(pairs []string) (schema.RawInput, error) {
	in := make(schema.RawInput, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid field %q: expected name=value", pair)
		}
		in[name] = value
	}
	return in, nil
}

func runPredict(cmd *cobra.Command, args []string) error {
	in, err := parseFields(predictFields)
	if err != nil {
		return err
	}
	record, err := schema.ValidateAll(in)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, closeLog, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}
	defer closeLog()

	o, err := startOneShot(cfg, logger)
	if err != nil {
		return err
	}
	defer o.close()

	frame := pipeline.NewFrame(pipeline.ToRow(record))
	prediction, err := dispatch.Call(cmd.Context(), o.dispatcher, runs.KindPredict, func(ctx context.Context) ([]int, error) {
		return o.predictor.Predict(ctx, frame)
	})
	if err != nil {
		return err
	}
	outcome, err := pipeline.OutcomeOf(prediction)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if predictJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]interface{}{
			"label":      outcome.Label(),
			"prediction": int(outcome),
		})
	}
	fmt.Fprintln(out, outcome.Label())
	return nil
}
