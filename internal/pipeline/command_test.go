package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"testing"

	"vip/internal/slogutil"
)

// TestHelperProcess is not a real test. It is re-executed by the command
// adapters under test to play the external pipeline program.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("VIP_WANT_HELPER_PROCESS") != "1" {
		return
	}
	defer os.Exit(0)

	args := os.Args
	for len(args) > 0 && args[0] != "--" {
		args = args[1:]
	}
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "no helper command")
		os.Exit(2)
	}

	switch args[1] {
	case "train-ok":
		fmt.Println("training done")
	case "train-fail":
		fmt.Fprintln(os.Stderr, "loading data")
		fmt.Fprintln(os.Stderr, "FileNotFoundError: data/train.csv")
		os.Exit(1)
	case "predict-echo":
		var frame Frame
		data, _ := io.ReadAll(os.Stdin)
		if err := json.Unmarshal(data, &frame); err != nil || len(frame.Columns) != 11 {
			fmt.Fprintln(os.Stderr, "bad frame")
			os.Exit(1)
		}
		// Vehicle_Damage_Yes decides the outcome.
		fmt.Printf(`{"prediction":[%v]}`, frame.Data[0][10])
	case "predict-float":
		fmt.Print(`{"prediction":[1.0]}`)
	case "predict-fraction":
		fmt.Print(`{"prediction":[0.5]}`)
	case "predict-garbage":
		fmt.Print("not json")
	case "silent-fail":
		os.Exit(3)
	}
}

func helperConfig(train, predict string) CommandConfig {
	return CommandConfig{
		Train:   []string{os.Args[0], "-test.run=TestHelperProcess", "--", train},
		Predict: []string{os.Args[0], "-test.run=TestHelperProcess", "--", predict},
		Env:     []string{"VIP_WANT_HELPER_PROCESS=1"},
	}
}

func TestCommandTrainer(t *testing.T) {
	logger := slogutil.NewDiscardLogger()

	t.Run("success", func(t *testing.T) {
		trainer, err := NewCommandTrainer(helperConfig("train-ok", ""), logger)
		if err != nil {
			t.Fatalf("NewCommandTrainer() error = %v", err)
		}
		if err := trainer.Run(context.Background()); err != nil {
			t.Errorf("Run() error = %v", err)
		}
	})

	t.Run("failure reports last stderr line", func(t *testing.T) {
		trainer, _ := NewCommandTrainer(helperConfig("train-fail", ""), logger)
		err := trainer.Run(context.Background())
		if err == nil {
			t.Fatal("Run() expected error")
		}
		if err.Error() != "FileNotFoundError: data/train.csv" {
			t.Errorf("error = %q", err.Error())
		}
	})

	t.Run("failure without stderr", func(t *testing.T) {
		trainer, _ := NewCommandTrainer(helperConfig("silent-fail", ""), logger)
		err := trainer.Run(context.Background())
		if err == nil || !strings.Contains(err.Error(), "exit status 3") {
			t.Errorf("error = %v, want exit status 3", err)
		}
	})

	t.Run("empty argv", func(t *testing.T) {
		if _, err := NewCommandTrainer(CommandConfig{Train: []string{" "}}, logger); err == nil {
			t.Error("NewCommandTrainer() expected error")
		}
	})
}

func TestCommandPredictor(t *testing.T) {
	logger := slogutil.NewDiscardLogger()

	t.Run("reads prediction", func(t *testing.T) {
		predictor, err := NewCommandPredictor(helperConfig("", "predict-echo"), logger)
		if err != nil {
			t.Fatalf("NewCommandPredictor() error = %v", err)
		}

		record := sampleRecord()
		for _, damage := range []int{0, 1} {
			record.VehicleDamageYes = damage
			got, err := predictor.Predict(context.Background(), NewFrame(ToRow(record)))
			if err != nil {
				t.Fatalf("Predict() error = %v", err)
			}
			if len(got) != 1 || got[0] != damage {
				t.Errorf("Predict() = %v, want [%d]", got, damage)
			}
		}
	})

	t.Run("float labels", func(t *testing.T) {
		tests := []struct {
			helper string
			want   Outcome
		}{
			{"predict-float", OutcomeYes},
			{"predict-fraction", OutcomeNo},
		}
		for _, tt := range tests {
			predictor, _ := NewCommandPredictor(helperConfig("", tt.helper), logger)
			got, err := predictor.Predict(context.Background(), NewFrame(ToRow(sampleRecord())))
			if err != nil {
				t.Fatalf("%s: Predict() error = %v", tt.helper, err)
			}
			outcome, err := OutcomeOf(got)
			if err != nil || outcome != tt.want {
				t.Errorf("%s: OutcomeOf(%v) = %v, %v; want %v", tt.helper, got, outcome, err, tt.want)
			}
		}
	})

	t.Run("invalid output", func(t *testing.T) {
		predictor, _ := NewCommandPredictor(helperConfig("", "predict-garbage"), logger)
		_, err := predictor.Predict(context.Background(), NewFrame(ToRow(sampleRecord())))
		if err == nil || !strings.Contains(err.Error(), "invalid predictor output") {
			t.Errorf("error = %v", err)
		}
	})
}
