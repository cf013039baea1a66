package schema

import (
	"encoding/json"
	"errors"
	"net/url"
	"reflect"
	"strings"
	"testing"
)

// validForm is the reference submission used across tests.
func validForm() url.Values {
	return url.Values{
		"Gender":                 {"Male"},
		"Age":                    {"35"},
		"Driving_License":        {"1"},
		"Region_Code":            {"28.0"},
		"Previously_Insured":     {"0"},
		"Annual_Premium":         {"35000.0"},
		"Policy_Sales_Channel":   {"152.0"},
		"Vintage":                {"200"},
		"Vehicle_Age_lt_1_Year":  {"1"},
		"Vehicle_Age_gt_2_Years": {"0"},
		"Vehicle_Damage_Yes":     {"1"},
	}
}

func wantRecord() VehicleRecord {
	return VehicleRecord{
		Gender:             "Male",
		Age:                35,
		DrivingLicense:     1,
		RegionCode:         28.0,
		PreviouslyInsured:  0,
		AnnualPremium:      35000.0,
		PolicySalesChannel: 152.0,
		Vintage:            200,
		VehicleAgeLt1Year:  1,
		VehicleAgeGt2Years: 0,
		VehicleDamageYes:   1,
	}
}

func TestValidate_Valid(t *testing.T) {
	rec, err := Validate(FromForm(validForm()))
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if rec != wantRecord() {
		t.Errorf("Validate() = %+v, want %+v", rec, wantRecord())
	}
}

func TestValidate_Idempotent(t *testing.T) {
	in := FromForm(validForm())

	first, err := Validate(in)
	if err != nil {
		t.Fatalf("first Validate() error = %v", err)
	}
	second, err := Validate(in)
	if err != nil {
		t.Fatalf("second Validate() error = %v", err)
	}
	if first != second {
		t.Errorf("Validate() not idempotent: %+v != %+v", first, second)
	}
}

func TestValidate_MissingEachField(t *testing.T) {
	for _, f := range Fields {
		t.Run(f.Name, func(t *testing.T) {
			form := validForm()
			form.Del(f.Name)

			rec, err := Validate(FromForm(form))
			if err == nil {
				t.Fatalf("Validate() without %s should fail", f.Name)
			}
			if rec != (VehicleRecord{}) {
				t.Errorf("failed validation should return zero record, got %+v", rec)
			}

			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("error type = %T, want *ValidationError", err)
			}
			if len(ve.Fields) != 1 || ve.Fields[0].Field != f.Name {
				t.Errorf("Fields = %+v, want only %s", ve.Fields, f.Name)
			}
			if ve.Fields[0].Reason != string(errMissing) {
				t.Errorf("Reason = %q, want %q", ve.Fields[0].Reason, errMissing)
			}
		})
	}
}

func TestValidate_Coercion(t *testing.T) {
	tests := []struct {
		name    string
		field   string
		value   string
		wantErr string
	}{
		{"integer from float text", "Age", "35.0", ""},
		{"integer with spaces", "Age", " 35 ", ""},
		{"integer fraction", "Age", "35.5", string(errNotInteger)},
		{"integer garbage", "Age", "thirty", string(errNotNumber)},
		{"integer leading zero", "Vintage", "010", ""},
		{"float garbage", "Annual_Premium", "lots", string(errNotNumber)},
		{"float NaN", "Annual_Premium", "NaN", string(errNotFinite)},
		{"float infinity", "Region_Code", "+Inf", string(errNotFinite)},
		{"float exponent", "Annual_Premium", "3.5e4", ""},
		{"empty value", "Gender", "", string(errMissing)},
		{"blank value", "Region_Code", "   ", string(errMissing)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form := validForm()
			form.Set(tt.field, tt.value)

			_, err := Validate(FromForm(form))
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("error = %v, want *ValidationError", err)
			}
			if ve.Fields[0].Field != tt.field || ve.Fields[0].Reason != tt.wantErr {
				t.Errorf("got %+v, want %s: %s", ve.Fields[0], tt.field, tt.wantErr)
			}
		})
	}
}

func TestValidate_CoercedValues(t *testing.T) {
	form := validForm()
	form.Set("Age", "35.0")
	form.Set("Vintage", "010")
	form.Set("Annual_Premium", "3.5e4")

	rec, err := Validate(FromForm(form))
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if rec.Age != 35 || rec.Vintage != 10 || rec.AnnualPremium != 35000 {
		t.Errorf("unexpected coercion: %+v", rec)
	}
}

func TestValidate_FailFastVsAll(t *testing.T) {
	form := validForm()
	form.Del("Age")
	form.Set("Vintage", "x")
	form.Set("Annual_Premium", "y")

	_, err := Validate(FromForm(form))
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("Validate() error = %v", err)
	}
	if len(ve.Fields) != 1 || ve.Fields[0].Field != "Age" {
		t.Errorf("fail-fast Fields = %+v, want only Age", ve.Fields)
	}

	_, err = ValidateAll(FromForm(form))
	if !errors.As(err, &ve) {
		t.Fatalf("ValidateAll() error = %v", err)
	}
	got := make([]string, len(ve.Fields))
	for i, fe := range ve.Fields {
		got[i] = fe.Field
	}
	want := []string{"Age", "Annual_Premium", "Vintage"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ValidateAll fields = %v, want %v", got, want)
	}
	if !strings.HasPrefix(ve.Error(), "invalid fields: ") {
		t.Errorf("Error() = %q", ve.Error())
	}
}

func TestValidate_JSONInput(t *testing.T) {
	body := `{
		"Gender": "Male", "Age": 35, "Driving_License": 1, "Region_Code": 28,
		"Previously_Insured": 0, "Annual_Premium": 35000.0, "Policy_Sales_Channel": 152,
		"Vintage": 200, "Vehicle_Age_lt_1_Year": 1, "Vehicle_Age_gt_2_Years": 0,
		"Vehicle_Damage_Yes": 1
	}`
	in, err := FromJSON(strings.NewReader(body))
	if err != nil {
		t.Fatalf("FromJSON() error = %v", err)
	}
	if _, ok := in["Age"].(json.Number); !ok {
		t.Errorf("Age should decode as json.Number, got %T", in["Age"])
	}

	rec, err := Validate(in)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if rec != wantRecord() {
		t.Errorf("Validate() = %+v, want %+v", rec, wantRecord())
	}
}

func TestValidate_JSONTypeMismatch(t *testing.T) {
	tests := []struct {
		name  string
		field string
		value any
		want  string
	}{
		{"number as text", "Gender", json.Number("1"), string(errNotText)},
		{"bool as integer", "Age", true, string(errNotNumber)},
		{"null value", "Vintage", nil, string(errMissing)},
		{"object as float", "Region_Code", map[string]any{}, string(errNotNumber)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := FromForm(validForm())
			in[tt.field] = tt.value

			_, err := Validate(in)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("Validate() error = %v", err)
			}
			if ve.Fields[0].Reason != tt.want {
				t.Errorf("Reason = %q, want %q", ve.Fields[0].Reason, tt.want)
			}
		})
	}
}

func TestFromForm_LastValueWins(t *testing.T) {
	form := validForm()
	form["Vehicle_Age_gt_2_Years"] = []string{"1", "0"}

	in := FromForm(form)
	if in["Vehicle_Age_gt_2_Years"] != "0" {
		t.Errorf("got %v, want last value 0", in["Vehicle_Age_gt_2_Years"])
	}
}

func TestFromJSON_Rejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"array", `[1,2]`},
		{"null", `null`},
		{"trailing data", `{"Age":1} {"Age":2}`},
		{"malformed", `{"Age":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := FromJSON(strings.NewReader(tt.body)); err == nil {
				t.Errorf("FromJSON(%q) should fail", tt.body)
			}
		})
	}
}

func TestColumnsAndValues(t *testing.T) {
	cols := Columns()
	vals := wantRecord().Values()

	if len(cols) != 11 || len(vals) != 11 {
		t.Fatalf("len(Columns)=%d len(Values)=%d, want 11", len(cols), len(vals))
	}
	if cols[0] != "Gender" || vals[0] != "Male" {
		t.Errorf("first column = %s:%v", cols[0], vals[0])
	}
	if cols[10] != "Vehicle_Damage_Yes" || vals[10] != 1 {
		t.Errorf("last column = %s:%v", cols[10], vals[10])
	}

	// Column names must match the JSON tags so a record and a row agree.
	data, err := json.Marshal(wantRecord())
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	for _, c := range cols {
		if _, ok := m[c]; !ok {
			t.Errorf("record JSON missing column %s", c)
		}
	}
}
