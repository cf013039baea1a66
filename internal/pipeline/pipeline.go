// Package pipeline defines the training and prediction collaborators the
// server delegates to, plus the adapter that turns a validated record into the
// one-row table a predictor consumes.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"vip/internal/schema"
)

// Trainer runs a full training pass. It may take a long time.
type Trainer interface {
	Run(ctx context.Context) error
}

// Predictor returns one outcome per row of frame.
type Predictor interface {
	Predict(ctx context.Context, frame Frame) ([]int, error)
}

// Row is one record's values in column order.
type Row []any

// Frame is a table whose columns follow schema.Columns(). It marshals in the
// "split" orientation: {"columns": [...], "data": [[...], ...]}.
type Frame struct {
	Columns []string `json:"columns"`
	Data    []Row    `json:"data"`
}

// ToRow adapts a validated record to a row.
func ToRow(record schema.VehicleRecord) Row {
	return Row(record.Values())
}

// NewFrame builds a frame over the given rows.
func NewFrame(rows ...Row) Frame {
	if rows == nil {
		rows = []Row{}
	}
	return Frame{
		Columns: schema.Columns(),
		Data:    rows,
	}
}

// Len returns the number of rows.
func (f Frame) Len() int {
	return len(f.Data)
}

// Outcome is the two-valued prediction result.
type Outcome int

const (
	OutcomeNo  Outcome = 0
	OutcomeYes Outcome = 1
)

// Label returns the text shown to the user.
func (o Outcome) Label() string {
	if o == OutcomeYes {
		return "Response-Yes"
	}
	return "Response-No"
}

// ErrNoPrediction is returned when a predictor yields an empty result.
var ErrNoPrediction = errors.New("predictor returned no outcome")

// OutcomeOf reads the first element of a prediction. Exactly 1 means yes;
// any other value means no.
func OutcomeOf(prediction []int) (Outcome, error) {
	if len(prediction) == 0 {
		return OutcomeNo, ErrNoPrediction
	}
	if prediction[0] == int(OutcomeYes) {
		return OutcomeYes, nil
	}
	return OutcomeNo, nil
}

// Mode selects which adapters back the pipeline.
const (
	ModeCommand = "command"
	ModeHTTP    = "http"
	ModeStatic  = "static"
)

// Config selects and configures the pipeline adapters.
type Config struct {
	Mode    string        `json:"mode" mapstructure:"mode"`
	Command CommandConfig `json:"command" mapstructure:"command"`
	HTTP    HTTPConfig    `json:"http" mapstructure:"http"`
	Static  StaticConfig  `json:"static" mapstructure:"static"`
}

// DefaultConfig returns the static pipeline so a fresh install is runnable.
func DefaultConfig() Config {
	return Config{
		Mode: ModeStatic,
		Command: CommandConfig{
			Train:   []string{"python", "-m", "src.pipeline.training_pipeline"},
			Predict: []string{"python", "-m", "src.pipeline.prediction_pipeline"},
		},
		HTTP: HTTPConfig{
			BaseURL: "http://127.0.0.1:8000",
		},
		Static: StaticConfig{
			Outcome: 0,
		},
	}
}

// New builds the trainer and predictor selected by cfg.Mode.
func New(cfg Config, logger *slog.Logger) (Trainer, Predictor, error) {
	switch cfg.Mode {
	case ModeCommand:
		trainer, err := NewCommandTrainer(cfg.Command, logger)
		if err != nil {
			return nil, nil, err
		}
		predictor, err := NewCommandPredictor(cfg.Command, logger)
		if err != nil {
			return nil, nil, err
		}
		return trainer, predictor, nil
	case ModeHTTP:
		client, err := NewHTTPClient(cfg.HTTP, logger)
		if err != nil {
			return nil, nil, err
		}
		return &HTTPTrainer{client: client}, &HTTPPredictor{client: client}, nil
	case ModeStatic, "":
		return NopTrainer{}, StaticPredictor{Outcome: cfg.Static.Outcome}, nil
	default:
		return nil, nil, fmt.Errorf("unknown pipeline mode %q", cfg.Mode)
	}
}
