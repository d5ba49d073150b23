// Package yield projects a crop's yield (t/ha) from its baseline and the
// measured conditions. Pure arithmetic; there are no failure modes.
package yield

import (
	"math"

	"github.com/montanaflynn/stats"

	"github.com/dshills/cropadvisor/internal/knowledge"
	"github.com/dshills/cropadvisor/internal/schema"
)

// Factors are the calibration constants of the estimator.
type Factors struct {
	NutrientMin       float64
	NutrientMax       float64
	NutrientMissing   float64 // normalised value used for an absent N, P or K
	MoistureMin       float64
	MoistureMax       float64
	MoistureMissing   float64
	TemperatureOpt    float64
	TemperatureSpread float64
	UnknownBase       float64 // baseline for crops missing from the knowledge base
}

// DefaultFactors returns the canonical calibration.
func DefaultFactors() Factors {
	return Factors{
		NutrientMin:       0.6,
		NutrientMax:       1.6,
		NutrientMissing:   0.4,
		MoistureMin:       0.4,
		MoistureMax:       1.4,
		MoistureMissing:   0.5,
		TemperatureOpt:    25,
		TemperatureSpread: 12,
		UnknownBase:       2.0,
	}
}

// Ceiling is the largest estimate possible for a crop with baseline base.
// The temperature factor never exceeds 1.
func (f Factors) Ceiling(base float64) float64 {
	return round2(math.Max(0, base) * f.NutrientMax * f.MoistureMax)
}

// Estimator computes yield estimates.
type Estimator struct {
	Factors Factors
}

// NewEstimator returns an Estimator using f.
func NewEstimator(f Factors) Estimator {
	return Estimator{Factors: f}
}

// Estimate returns base * nutrient * moisture * temperature for the named
// crop, rounded to two decimals. Unknown crops use Factors.UnknownBase.
func (e Estimator) Estimate(kb *knowledge.Base, cropName string, input schema.InputConditions) float64 {
	base := e.Factors.UnknownBase
	if kb != nil {
		if p, ok := kb.Profile(cropName); ok {
			base = p.BaselineYield
		}
	}
	y := math.Max(0, base) * e.nutrientFactor(input) * e.moistureFactor(input) * e.temperatureFactor(input)
	return round2(y)
}

func (e Estimator) nutrientFactor(input schema.InputConditions) float64 {
	norm := func(v *float64) float64 {
		if v == nil {
			return e.Factors.NutrientMissing
		}
		return *v / 100
	}
	// Mean only fails on empty input.
	mean, _ := stats.Mean(stats.Float64Data{norm(input.Nitrogen), norm(input.Phosphorus), norm(input.Potassium)})
	return clamp(mean, e.Factors.NutrientMin, e.Factors.NutrientMax)
}

func (e Estimator) moistureFactor(input schema.InputConditions) float64 {
	m := e.Factors.MoistureMissing
	if input.Moisture != nil {
		m = *input.Moisture / 100
	}
	return clamp(m, e.Factors.MoistureMin, e.Factors.MoistureMax)
}

func (e Estimator) temperatureFactor(input schema.InputConditions) float64 {
	if input.Temperature == nil {
		return 1
	}
	spread := e.Factors.TemperatureSpread
	if spread <= 0 {
		spread = DefaultFactors().TemperatureSpread
	}
	d := (*input.Temperature - e.Factors.TemperatureOpt) / spread
	return math.Exp(-(d * d))
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
