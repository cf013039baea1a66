package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"vip/internal/runs"
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Run the training pipeline once",
	Long: `Run the configured training pipeline once, the same way GET /train does,
and print the result.`,
	Args: cobra.NoArgs,
	RunE: runTrain,
}

func init() {
	rootCmd.AddCommand(trainCmd)
}

func runTrain(cmd *cobra.Command, args []string) error {
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

	// Ctrl+C stops waiting; the pipeline itself is not interrupted.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	_, err = o.dispatcher.Do(ctx, runs.KindTrain, func(ctx context.Context) (any, error) {
		return nil, o.trainer.Run(ctx)
	})
	if err != nil {
		return fmt.Errorf("Error Occurred! %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Training successful!!!")
	return nil
}
