package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"vip/internal/schema"
	"vip/internal/slogutil"
)

func sampleRecord() schema.VehicleRecord {
	return schema.VehicleRecord{
		Gender:             "Male",
		Age:                35,
		DrivingLicense:     1,
		RegionCode:         28.0,
		PreviouslyInsured:  0,
		AnnualPremium:      40454.0,
		PolicySalesChannel: 26.0,
		Vintage:            217,
		VehicleAgeLt1Year:  0,
		VehicleAgeGt2Years: 1,
		VehicleDamageYes:   1,
	}
}

func TestToRow(t *testing.T) {
	row := ToRow(sampleRecord())
	if len(row) != len(schema.Columns()) {
		t.Fatalf("len(row) = %d, want %d", len(row), len(schema.Columns()))
	}
	if row[0] != "Male" {
		t.Errorf("row[0] = %v, want Male", row[0])
	}
	if row[1] != 35 {
		t.Errorf("row[1] = %v, want 35", row[1])
	}
	if row[3] != 28.0 {
		t.Errorf("row[3] = %v, want 28.0", row[3])
	}
	if row[10] != 1 {
		t.Errorf("row[10] = %v, want 1", row[10])
	}
}

func TestNewFrame(t *testing.T) {
	frame := NewFrame(ToRow(sampleRecord()))
	if frame.Len() != 1 {
		t.Errorf("Len() = %d, want 1", frame.Len())
	}

	data, err := json.Marshal(frame)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var decoded struct {
		Columns []string `json:"columns"`
		Data    [][]any  `json:"data"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if len(decoded.Columns) != 11 || decoded.Columns[0] != "Gender" || decoded.Columns[10] != "Vehicle_Damage_Yes" {
		t.Errorf("columns = %v", decoded.Columns)
	}
	if len(decoded.Data) != 1 || len(decoded.Data[0]) != 11 {
		t.Errorf("data = %v", decoded.Data)
	}

	empty := NewFrame()
	if empty.Data == nil || empty.Len() != 0 {
		t.Errorf("NewFrame() = %+v, want empty non-nil data", empty)
	}
}

func TestOutcomeOf(t *testing.T) {
	tests := []struct {
		name       string
		prediction []int
		want       Outcome
		label      string
		wantErr    bool
	}{
		{"yes", []int{1}, OutcomeYes, "Response-Yes", false},
		{"no", []int{0}, OutcomeNo, "Response-No", false},
		{"other value", []int{2}, OutcomeNo, "Response-No", false},
		{"negative", []int{-1}, OutcomeNo, "Response-No", false},
		{"first element wins", []int{1, 0}, OutcomeYes, "Response-Yes", false},
		{"empty", nil, OutcomeNo, "Response-No", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := OutcomeOf(tt.prediction)
			if (err != nil) != tt.wantErr {
				t.Fatalf("OutcomeOf() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, ErrNoPrediction) {
				t.Errorf("error = %v, want ErrNoPrediction", err)
			}
			if got != tt.want {
				t.Errorf("OutcomeOf() = %v, want %v", got, tt.want)
			}
			if got.Label() != tt.label {
				t.Errorf("Label() = %q, want %q", got.Label(), tt.label)
			}
		})
	}
}

func TestNew(t *testing.T) {
	logger := slogutil.NewDiscardLogger()

	t.Run("static default", func(t *testing.T) {
		trainer, predictor, err := New(DefaultConfig(), logger)
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		if err := trainer.Run(context.Background()); err != nil {
			t.Errorf("Run() error = %v", err)
		}
		got, err := predictor.Predict(context.Background(), NewFrame(ToRow(sampleRecord())))
		if err != nil || len(got) != 1 || got[0] != 0 {
			t.Errorf("Predict() = %v, %v", got, err)
		}
	})

	t.Run("command", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Mode = ModeCommand
		trainer, predictor, err := New(cfg, logger)
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		if _, ok := trainer.(*CommandTrainer); !ok {
			t.Errorf("trainer = %T", trainer)
		}
		if _, ok := predictor.(*CommandPredictor); !ok {
			t.Errorf("predictor = %T", predictor)
		}
	})

	t.Run("command without argv", func(t *testing.T) {
		cfg := Config{Mode: ModeCommand}
		if _, _, err := New(cfg, logger); err == nil {
			t.Error("New() expected error")
		}
	})

	t.Run("http", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Mode = ModeHTTP
		trainer, predictor, err := New(cfg, logger)
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		if _, ok := trainer.(*HTTPTrainer); !ok {
			t.Errorf("trainer = %T", trainer)
		}
		if _, ok := predictor.(*HTTPPredictor); !ok {
			t.Errorf("predictor = %T", predictor)
		}
	})

	t.Run("http bad url", func(t *testing.T) {
		cfg := Config{Mode: ModeHTTP, HTTP: HTTPConfig{BaseURL: "ftp://example"}}
		if _, _, err := New(cfg, logger); err == nil {
			t.Error("New() expected error")
		}
	})

	t.Run("unknown mode", func(t *testing.T) {
		if _, _, err := New(Config{Mode: "grpc"}, logger); err == nil {
			t.Error("New() expected error")
		}
	})
}

func TestStaticPredictor(t *testing.T) {
	p := StaticPredictor{Outcome: 1}
	frame := NewFrame(ToRow(sampleRecord()), ToRow(sampleRecord()))
	got, err := p.Predict(context.Background(), frame)
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	if len(got) != 2 || got[0] != 1 || got[1] != 1 {
		t.Errorf("Predict() = %v, want [1 1]", got)
	}
}

func TestFuncAdapters(t *testing.T) {
	cause := errors.New("no data")
	var trainer Trainer = TrainerFunc(func(ctx context.Context) error { return cause })
	if err := trainer.Run(context.Background()); !errors.Is(err, cause) {
		t.Errorf("Run() error = %v", err)
	}

	var predictor Predictor = PredictorFunc(func(ctx context.Context, f Frame) ([]int, error) {
		return []int{f.Len()}, nil
	})
	got, _ := predictor.Predict(context.Background(), NewFrame(ToRow(sampleRecord())))
	if got[0] != 1 {
		t.Errorf("Predict() = %v", got)
	}
}
