package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"strings"
)

// CommandConfig configures pipelines that run as external programs.
type CommandConfig struct {
	Train   []string `json:"train" mapstructure:"train"`
	Predict []string `json:"predict" mapstructure:"predict"`
	Dir     string   `json:"dir" mapstructure:"dir"`
	Env     []string `json:"env" mapstructure:"env"`
}

// predictionOutput is what a predict command writes to stdout. Labels may
// arrive as floats ([1.0]) from numpy-backed programs.
type predictionOutput struct {
	Prediction []float64 `json:"prediction"`
}

// labels converts the decoded labels to ints. A non-integral label reads as
// 0, so it never counts as a positive outcome.
func (o predictionOutput) labels() []int {
	out := make([]int, len(o.Prediction))
	for i, v := range o.Prediction {
		if v == math.Trunc(v) && math.Abs(v) <= maxExactLabel {
			out[i] = int(v)
		}
	}
	return out
}

const maxExactLabel = 1 << 53

type command struct {
	argv   []string
	dir    string
	env    []string
	logger *slog.Logger
}

func newCommand(argv []string, cfg CommandConfig, logger *slog.Logger) (command, error) {
	if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
		return command{}, errors.New("empty pipeline command")
	}
	return command{argv: argv, dir: cfg.Dir, env: cfg.Env, logger: logger}, nil
}

// run executes the command, feeding stdin and returning stdout. A non-zero
// exit becomes an error carrying the last line of stderr.
func (c command) run(ctx context.Context, stdin []byte) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.argv[0], c.argv[1:]...)
	cmd.Dir = c.dir
	if len(c.env) > 0 {
		cmd.Env = append(os.Environ(), c.env...)
	}
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	c.logger.Debug("Running pipeline command", "argv", strings.Join(c.argv, " "), "dir", c.dir)

	if err := cmd.Run(); err != nil {
		if msg := lastLine(stderr.String()); msg != "" {
			return nil, errors.New(msg)
		}
		return nil, fmt.Errorf("%s: %w", c.argv[0], err)
	}
	return stdout.Bytes(), nil
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

// CommandTrainer runs the configured training program.
type CommandTrainer struct {
	cmd command
}

// NewCommandTrainer creates a trainer from cfg.Train.
func NewCommandTrainer(cfg CommandConfig, logger *slog.Logger) (*CommandTrainer, error) {
	cmd, err := newCommand(cfg.Train, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}
	return &CommandTrainer{cmd: cmd}, nil
}

func (t *CommandTrainer) Run(ctx context.Context) error {
	_, err := t.cmd.run(ctx, nil)
	return err
}

// CommandPredictor writes the frame as JSON to the program's stdin and reads
// {"prediction": [...]} from its stdout.
type CommandPredictor struct {
	cmd command
}

// NewCommandPredictor creates a predictor from cfg.Predict.
func NewCommandPredictor(cfg CommandConfig, logger *slog.Logger) (*CommandPredictor, error) {
	cmd, err := newCommand(cfg.Predict, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}
	return &CommandPredictor{cmd: cmd}, nil
}

func (p *CommandPredictor) Predict(ctx context.Context, frame Frame) ([]int, error) {
	input, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}

	out, err := p.cmd.run(ctx, input)
	if err != nil {
		return nil, err
	}

	var result predictionOutput
	if err := json.Unmarshal(out, &result); err != nil {
		return nil, fmt.Errorf("invalid predictor output: %w", err)
	}
	return result.labels(), nil
}
