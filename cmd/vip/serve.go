package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"vip/internal/api"
	"vip/internal/auth"
	"vip/internal/dispatch"
	"vip/internal/pipeline"
	"vip/internal/runs"
	"vip/internal/web"
)

var (
	servePort int
	serveHost string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the vip HTTP server. GET / shows the prediction form, POST / predicts
and GET /train retrains the model. Host and port come from the config file,
VIP_SERVER_HOST/VIP_SERVER_PORT or APP_HOST/APP_PORT, and the flags below.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides config)")
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to bind to (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveHost != "" {
		cfg.Server.Host = serveHost
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}

	logger, closeLog, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}
	defer closeLog()

	if cfg.Source != "" {
		logger.Info("Loaded configuration", "path", cfg.Source)
	}

	trainer, predictor, err := pipeline.New(cfg.Pipeline, logger)
	if err != nil {
		return err
	}

	renderer, err := web.NewRenderer()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dispatcher := dispatch.New(cfg.Dispatch, logger)

	var store *runs.Store
	if cfg.Runs.Enabled {
		store, err = runs.Open(cfg.Runs.Dir, logger)
		if err != nil {
			return err
		}
		defer func() {
			cancel()
			closeRunStore(store, dispatcher, logger)
		}()

		dispatcher.OnComplete(store.OnComplete)
		if cfg.Runs.Retention > 0 {
			go pruneRuns(ctx, store, cfg.Runs.Retention, logger)
		}
	}

	limiter := auth.NewRateLimiter(cfg.Auth.RateLimit, logger)
	limiter.StartCleanup(ctx, 5*time.Minute)

	guard := auth.NewGuard(cfg.Auth.TrainTokenHash)
	if !guard.Enabled() {
		logger.Warn("Training endpoint is not protected; set auth.trainTokenHash to require a token")
	}

	server, err := api.NewServer(cfg.Server, api.Dependencies{
		Dispatcher: dispatcher,
		Trainer:    trainer,
		Predictor:  predictor,
		Renderer:   renderer,
		Runs:       store,
		Guard:      guard,
		Limiter:    limiter,
	}, logger)
	if err != nil {
		return err
	}

	dispatcher.Start()

	// Setup graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	serverErr := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "vip listening on http://%s\n", server.Addr())
		serverErr <- server.Start()
	}()

	select {
	case err := <-serverErr:
		_ = dispatcher.Stop(cfg.Server.ShutdownTimeout)
		if err != nil {
			logger.Error("Server error", "error", err.Error())
			return err
		}
		return nil
	case sig := <-shutdown:
		logger.Info("Received shutdown signal", "signal", sig.String())
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", "error", err.Error())
	}
	if err := dispatcher.Stop(cfg.Server.ShutdownTimeout); err != nil {
		logger.Error("Error stopping dispatcher", "error", err.Error())
		return err
	}

	logger.Info("Server stopped gracefully")
	return nil
}

// pruneRuns deletes expired runs once at startup and then hourly.
func pruneRuns(ctx context.Context, store *runs.Store, retention time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		removed, err := store.CleanupOld(retention)
		if err != nil {
			logger.Warn("Failed to prune run history", "error", err.Error())
		} else if removed > 0 {
			logger.Info("Pruned run history", "removed", removed)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
