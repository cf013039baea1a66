package main

import (
	"log/slog"
	"time"

	"vip/internal/config"
	"vip/internal/dispatch"
	"vip/internal/pipeline"
	"vip/internal/runs"
)

// oneShot is the pipeline plus a started dispatcher for a single CLI run.
type oneShot struct {
	dispatcher *dispatch.Dispatcher
	trainer    pipeline.Trainer
	predictor  pipeline.Predictor
	store      *runs.Store
	logger     *slog.Logger
}

// startOneShot builds the pipeline and starts a one-worker dispatcher. CLI
// runs are recorded in the run history when it is enabled.
func startOneShot(cfg *config.Config, logger *slog.Logger) (*oneShot, error) {
	trainer, predictor, err := pipeline.New(cfg.Pipeline, logger)
	if err != nil {
		return nil, err
	}

	o := &oneShot{
		dispatcher: dispatch.New(dispatch.Config{WorkerCount: 1, QueueSize: 1}, logger),
		trainer:    trainer,
		predictor:  predictor,
		logger:     logger,
	}

	if cfg.Runs.Enabled {
		o.store, err = runs.Open(cfg.Runs.Dir, logger)
		if err != nil {
			return nil, err
		}
		o.dispatcher.OnComplete(o.store.OnComplete)
	}

	o.dispatcher.Start()
	return o, nil
}

func (o *oneShot) close() {
	_ = o.dispatcher.Stop(10 * time.Second)
	if o.store != nil {
		closeRunStore(o.store, o.dispatcher, o.logger)
	}
}

// closeRunStore closes the run history unless an operation is still
// running, in which case its completion hook may yet write to the store.
// It reports whether the store was closed.
func closeRunStore(store *runs.Store, d *dispatch.Dispatcher, logger *slog.Logger) bool {
	if n := d.Stats().InFlight; n > 0 {
		logger.Warn("Leaving run history open for running operations", "inFlight", n)
		return false
	}
	if err := store.Close(); err != nil {
		logger.Warn("Failed to close run history", "error", err.Error())
	}
	return true
}
