// Package vitals owns the reading record and the sources producing it.
// A Reading is a plain value: sources fill every field before returning it,
// so callers never observe a partially populated reading.
package vitals

import (
	"context"
	"fmt"
)

type Reading struct {
	HeartRate        float64 `json:"heartRate"`
	SystolicBP       float64 `json:"systolicBP"`
	DiastolicBP      float64 `json:"diastolicBP"`
	Temperature      float64 `json:"temperature"`
	BloodGlucose     float64 `json:"bloodGlucose"`
	OxygenSaturation float64 `json:"oxygenSaturation"`
}

// Source is the seam between acquisition hardware and the rest of the agent.
type Source interface {
	Produce(ctx context.Context) (Reading, error)
	String() string
}

// Inclusive bounds of synthetic values.
// Temperature is in tenths of degree Celsius.
type Range struct{ Min, Max int }

var (
	RangeHeartRate        = Range{60, 100}
	RangeSystolicBP       = Range{110, 140}
	RangeDiastolicBP      = Range{70, 90}
	RangeTemperature10    = Range{360, 380}
	RangeBloodGlucose     = Range{80, 120}
	RangeOxygenSaturation = Range{95, 100}
)

func (r Range) Contains(v float64) bool { return v >= float64(r.Min) && v <= float64(r.Max) }

func (r Reading) String() string {
	return fmt.Sprintf("hr=%.0fbpm bp=%.0f/%.0fmmHg t=%.1fC glucose=%.0fmg/dL spo2=%.0f%%",
		r.HeartRate, r.SystolicBP, r.DiastolicBP, r.Temperature, r.BloodGlucose, r.OxygenSaturation)
}

// Fields returns values in wire order, used by register-based sources and tests.
func (r Reading) Fields() [6]float64 {
	return [6]float64{r.HeartRate, r.SystolicBP, r.DiastolicBP, r.Temperature, r.BloodGlucose, r.OxygenSaturation}
}
