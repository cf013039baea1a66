package pipeline

import "context"

// StaticConfig configures the static predictor.
type StaticConfig struct {
	Outcome int `json:"outcome" mapstructure:"outcome"`
}

// NopTrainer succeeds immediately.
type NopTrainer struct{}

func (NopTrainer) Run(ctx context.Context) error { return nil }

// StaticPredictor returns the same outcome for every row.
type StaticPredictor struct {
	Outcome int
}

func (p StaticPredictor) Predict(ctx context.Context, frame Frame) ([]int, error) {
	out := make([]int, frame.Len())
	for i := range out {
		out[i] = p.Outcome
	}
	return out, nil
}

// TrainerFunc adapts a function to Trainer.
type TrainerFunc func(ctx context.Context) error

func (f TrainerFunc) Run(ctx context.Context) error { return f(ctx) }

// PredictorFunc adapts a function to Predictor.
type PredictorFunc func(ctx context.Context, frame Frame) ([]int, error)

func (f PredictorFunc) Predict(ctx context.Context, frame Frame) ([]int, error) {
	return f(ctx, frame)
}
