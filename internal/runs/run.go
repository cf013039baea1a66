// Package runs keeps a history of dispatched train and predict operations.
package runs

import (
	"time"

	"vip/internal/dispatch"
)

// Status is the final state of a run.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Run operation kinds, matching the names handed to the dispatcher.
const (
	KindTrain   = "train"
	KindPredict = "predict"
)

// Run is one finished operation.
type Run struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	Status      Status    `json:"status"`
	QueuedAt    time.Time `json:"queuedAt"`
	StartedAt   time.Time `json:"startedAt"`
	CompletedAt time.Time `json:"completedAt"`
	DurationMs  int64     `json:"durationMs"`
	Error       string    `json:"error,omitempty"`
}

// FromCompletion converts a dispatcher completion into a run.
func FromCompletion(c dispatch.Completion) *Run {
	run := &Run{
		ID:          c.ID,
		Kind:        c.Name,
		Status:      StatusSucceeded,
		QueuedAt:    c.QueuedAt.UTC(),
		StartedAt:   c.StartedAt.UTC(),
		CompletedAt: c.FinishedAt.UTC(),
		DurationMs:  c.Duration().Milliseconds(),
	}
	if c.Err != nil {
		run.Status = StatusFailed
		run.Error = c.Err.Error()
	}
	return run
}

// ListOptions filters a listing. Empty fields match everything.
type ListOptions struct {
	Kind   string
	Status Status
	Limit  int
	Offset int
}

// ListResponse is one page of runs, newest first.
type ListResponse struct {
	Runs       []*Run `json:"runs"`
	TotalCount int    `json:"totalCount"`
}
