// Package schema converts untyped request fields into the typed vehicle record
// consumed by the prediction pipeline.
package schema

// VehicleRecord is one fully validated prediction input. A value of this type
// only exists when every field was present and converted to its declared type.
type VehicleRecord struct {
	Gender             string  `json:"Gender"`
	Age                int     `json:"Age"`
	DrivingLicense     int     `json:"Driving_License"`
	RegionCode         float64 `json:"Region_Code"`
	PreviouslyInsured  int     `json:"Previously_Insured"`
	AnnualPremium      float64 `json:"Annual_Premium"`
	PolicySalesChannel float64 `json:"Policy_Sales_Channel"`
	Vintage            int     `json:"Vintage"`
	VehicleAgeLt1Year  int     `json:"Vehicle_Age_lt_1_Year"`
	VehicleAgeGt2Years int     `json:"Vehicle_Age_gt_2_Years"`
	VehicleDamageYes   int     `json:"Vehicle_Damage_Yes"`
}

// Kind is the declared type of a field.
type Kind int

const (
	Text Kind = iota
	Integer
	Float
)

func (k Kind) String() string {
	switch k {
	case Text:
		return "text"
	case Integer:
		return "integer"
	case Float:
		return "float"
	default:
		return "unknown"
	}
}

// value holds a converted field; only the member matching the field's Kind is set.
type value struct {
	text    string
	integer int
	real    float64
}

// Field describes one required input field.
type Field struct {
	Name string
	Kind Kind
	set  func(*VehicleRecord, value)
	get  func(VehicleRecord) any
}

// Fields lists the required fields in the column order the pipeline expects.
var Fields = []Field{
	{
		Name: "Gender", Kind: Text,
		set: func(r *VehicleRecord, v value) { r.Gender = v.text },
		get: func(r VehicleRecord) any { return r.Gender },
	},
	{
		Name: "Age", Kind: Integer,
		set: func(r *VehicleRecord, v value) { r.Age = v.integer },
		get: func(r VehicleRecord) any { return r.Age },
	},
	{
		Name: "Driving_License", Kind: Integer,
		set: func(r *VehicleRecord, v value) { r.DrivingLicense = v.integer },
		get: func(r VehicleRecord) any { return r.DrivingLicense },
	},
	{
		Name: "Region_Code", Kind: Float,
		set: func(r *VehicleRecord, v value) { r.RegionCode = v.real },
		get: func(r VehicleRecord) any { return r.RegionCode },
	},
	{
		Name: "Previously_Insured", Kind: Integer,
		set: func(r *VehicleRecord, v value) { r.PreviouslyInsured = v.integer },
		get: func(r VehicleRecord) any { return r.PreviouslyInsured },
	},
	{
		Name: "Annual_Premium", Kind: Float,
		set: func(r *VehicleRecord, v value) { r.AnnualPremium = v.real },
		get: func(r VehicleRecord) any { return r.AnnualPremium },
	},
	{
		Name: "Policy_Sales_Channel", Kind: Float,
		set: func(r *VehicleRecord, v value) { r.PolicySalesChannel = v.real },
		get: func(r VehicleRecord) any { return r.PolicySalesChannel },
	},
	{
		Name: "Vintage", Kind: Integer,
		set: func(r *VehicleRecord, v value) { r.Vintage = v.integer },
		get: func(r VehicleRecord) any { return r.Vintage },
	},
	{
		Name: "Vehicle_Age_lt_1_Year", Kind: Integer,
		set: func(r *VehicleRecord, v value) { r.VehicleAgeLt1Year = v.integer },
		get: func(r VehicleRecord) any { return r.VehicleAgeLt1Year },
	},
	{
		Name: "Vehicle_Age_gt_2_Years", Kind: Integer,
		set: func(r *VehicleRecord, v value) { r.VehicleAgeGt2Years = v.integer },
		get: func(r VehicleRecord) any { return r.VehicleAgeGt2Years },
	},
	{
		Name: "Vehicle_Damage_Yes", Kind: Integer,
		set: func(r *VehicleRecord, v value) { r.VehicleDamageYes = v.integer },
		get: func(r VehicleRecord) any { return r.VehicleDamageYes },
	},
}

// Columns returns the field names in declared order.
func Columns() []string {
	names := make([]string, len(Fields))
	for i, f := range Fields {
		names[i] = f.Name
	}
	return names
}

// Values returns the record's values in the same order as Columns.
func (r VehicleRecord) Values() []any {
	vals := make([]any, len(Fields))
	for i, f := range Fields {
		vals[i] = f.get(r)
	}
	return vals
}
