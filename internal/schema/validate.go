package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/spf13/cast"
)

// FieldError describes why a single field was rejected.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationError is returned when the input cannot be turned into a record.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 1 {
		return fmt.Sprintf("invalid field %s: %s", e.Fields[0].Field, e.Fields[0].Reason)
	}
	parts := make([]string, len(e.Fields))
	for i, fe := range e.Fields {
		parts[i] = fe.Field + ": " + fe.Reason
	}
	return "invalid fields: " + strings.Join(parts, "; ")
}

// Validate converts in into a VehicleRecord, stopping at the first field that
// is missing or does not convert. The error is a *ValidationError.
func Validate(in RawInput) (VehicleRecord, error) {
	return validate(in, true)
}

// ValidateAll is like Validate but reports every bad field.
func ValidateAll(in RawInput) (VehicleRecord, error) {
	return validate(in, false)
}

func validate(in RawInput, failFast bool) (VehicleRecord, error) {
	var (
		rec  VehicleRecord
		errs []FieldError
	)
	for _, f := range Fields {
		v, err := convert(f.Kind, in[f.Name])
		if err != nil {
			errs = append(errs, FieldError{Field: f.Name, Reason: err.Error()})
			if failFast {
				break
			}
			continue
		}
		f.set(&rec, v)
	}
	if len(errs) > 0 {
		return VehicleRecord{}, &ValidationError{Fields: errs}
	}
	return rec, nil
}

type reasonError string

func (e reasonError) Error() string { return string(e) }

const (
	errMissing    = reasonError("field required")
	errNotText    = reasonError("must be a string")
	errNotNumber  = reasonError("must be a number")
	errNotInteger = reasonError("must be an integer")
	errNotFinite  = reasonError("must be a finite number")
)

func convert(kind Kind, raw any) (value, error) {
	if raw == nil {
		return value{}, errMissing
	}
	if s, ok := raw.(string); ok {
		s = strings.TrimSpace(s)
		if s == "" {
			return value{}, errMissing
		}
		raw = s
	}

	switch kind {
	case Text:
		s, ok := raw.(string)
		if !ok {
			return value{}, errNotText
		}
		return value{text: s}, nil
	case Float:
		f, err := toFloat(raw)
		if err != nil {
			return value{}, err
		}
		return value{real: f}, nil
	case Integer:
		n, err := toInt(raw)
		if err != nil {
			return value{}, err
		}
		return value{integer: n}, nil
	default:
		return value{}, fmt.Errorf("unsupported kind %s", kind)
	}
}

func toFloat(raw any) (float64, error) {
	if _, ok := raw.(bool); ok {
		return 0, errNotNumber
	}
	f, err := cast.ToFloat64E(raw)
	if err != nil {
		return 0, errNotNumber
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errNotFinite
	}
	return f, nil
}

// toInt accepts integral numbers, including "35.0", and rejects fractions.
func toInt(raw any) (int, error) {
	// Exact path first so large integers do not round through float64.
	switch v := raw.(type) {
	case string:
		if n, err := strconv.ParseInt(v, 10, 0); err == nil {
			return int(n), nil
		}
	case json.Number:
		if n, err := strconv.ParseInt(string(v), 10, 0); err == nil {
			return int(n), nil
		}
	}

	f, err := toFloat(raw)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, errNotInteger
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, errNotInteger
	}
	return int(f), nil
}
