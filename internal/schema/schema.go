// Package schema defines the canonical data types shared by the recommendation
// engine, its HTTP surface and its renderers.
package schema

import "strings"

// Season is the cropping season a recommendation is requested for.
type Season string

const (
	SeasonKharif    Season = "Kharif"
	SeasonRabi      Season = "Rabi"
	SeasonSummer    Season = "Summer"
	SeasonAnnual    Season = "Annual"
	SeasonPerennial Season = "Perennial"
)

// Seasons lists every valid season in canonical order.
var Seasons = []Season{SeasonKharif, SeasonRabi, SeasonSummer, SeasonAnnual, SeasonPerennial}

// DefaultSeason is used whenever a request names no recognised season.
const DefaultSeason = SeasonKharif

// ParseSeason matches s case-insensitively against the valid seasons.
// Unrecognised and empty values map to DefaultSeason.
func ParseSeason(s string) Season {
	s = strings.TrimSpace(s)
	for _, season := range Seasons {
		if strings.EqualFold(s, string(season)) {
			return season
		}
	}
	return DefaultSeason
}

// Valid reports whether s is one of the enumerated seasons.
func (s Season) Valid() bool {
	for _, season := range Seasons {
		if s == season {
			return true
		}
	}
	return false
}

// Confidence is the qualitative confidence label attached to a recommendation.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// ParseConfidence returns the confidence label for s and whether s was valid.
func ParseConfidence(s string) (Confidence, bool) {
	switch Confidence(strings.ToLower(strings.TrimSpace(s))) {
	case ConfidenceLow:
		return ConfidenceLow, true
	case ConfidenceMedium:
		return ConfidenceMedium, true
	case ConfidenceHigh:
		return ConfidenceHigh, true
	}
	return "", false
}

// Provenance records where the narrative fields of a recommendation came from.
type Provenance string

const (
	ProvenanceAdvisory Provenance = "advisory"
	ProvenanceFallback Provenance = "fallback"
)

// Range is a {min, optimum, max} triple for one agronomic factor.
type Range struct {
	Min float64 `yaml:"min" json:"min"`
	Opt float64 `yaml:"opt" json:"opt"`
	Max float64 `yaml:"max" json:"max"`
}

// Contains reports whether v lies inside [Min, Max].
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// Nutrients holds the N, P and K ranges of a crop profile.
type Nutrients struct {
	N Range `yaml:"n" json:"n"`
	P Range `yaml:"p" json:"p"`
	K Range `yaml:"k" json:"k"`
}

// CropProfile is one immutable row of the knowledge base.
type CropProfile struct {
	Name          string    `yaml:"name" json:"name"`
	Seasons       []Season  `yaml:"seasons" json:"seasons"`
	PH            Range     `yaml:"ph" json:"ph"`
	Rainfall      Range     `yaml:"rainfall" json:"rainfall"`
	Moisture      Range     `yaml:"moisture" json:"moisture"`
	Temperature   Range     `yaml:"temperature" json:"temperature"`
	Nutrients     Nutrients `yaml:"nutrients" json:"nutrients"`
	Priority      int       `yaml:"priority" json:"priority"`
	BaselineYield float64   `yaml:"baseline_yield" json:"baseline_yield"`
}

// InSeason reports whether the crop can be grown in s.
func (p CropProfile) InSeason(s Season) bool {
	for _, season := range p.Seasons {
		if season == s {
			return true
		}
	}
	return false
}

// Thresholds returns the profile's ranges in the shape used by recommendations.
func (p CropProfile) Thresholds() Thresholds {
	return Thresholds{
		PH:          p.PH,
		Rainfall:    p.Rainfall,
		Moisture:    p.Moisture,
		Temperature: p.Temperature,
		Nitrogen:    p.Nutrients.N,
		Phosphorus:  p.Nutrients.P,
		Potassium:   p.Nutrients.K,
	}
}

// InputConditions are the measured soil and climate conditions of one request.
// A nil field means the value was not supplied.
type InputConditions struct {
	Nitrogen    *float64 `json:"nitrogen"`
	Phosphorus  *float64 `json:"phosphorus"`
	Potassium   *float64 `json:"potassium"`
	PH          *float64 `json:"ph"`
	Moisture    *float64 `json:"moisture"`
	Temperature *float64 `json:"temperature"`
	Rainfall    *float64 `json:"rainfall"`
	Season      Season   `json:"season"`
}

// ScoredCandidate is one crop scored against a request's conditions.
type ScoredCandidate struct {
	Name    string   `json:"name"`
	Score   float64  `json:"score"`
	Seasons []Season `json:"seasons"`
}

// AdvisoryEntry is one crop entry parsed from the advisory service's reply.
// Every field is untrusted; empty strings mean "absent or invalid".
type AdvisoryEntry struct {
	Name       string            `json:"name"`
	Reason     string            `json:"reason,omitempty"`
	Pros       string            `json:"pros,omitempty"`
	Cons       string            `json:"cons,omitempty"`
	Growth     string            `json:"growth,omitempty"`
	Thresholds map[string]string `json:"thresholds,omitempty"`
	Confidence Confidence        `json:"confidence,omitempty"`
}

// Thresholds is the block of agronomic ranges reported with a recommendation.
type Thresholds struct {
	PH          Range `json:"ph"`
	Rainfall    Range `json:"rainfall_mm"`
	Moisture    Range `json:"moisture_percent"`
	Temperature Range `json:"temperature_c"`
	Nitrogen    Range `json:"nitrogen"`
	Phosphorus  Range `json:"phosphorus"`
	Potassium   Range `json:"potassium"`
}

// FinalRecommendation is one ranked crop in the engine's answer.
type FinalRecommendation struct {
	Rank          int        `json:"rank"`
	Name          string     `json:"name"`
	Score         float64    `json:"score"`
	YieldEstimate float64    `json:"yield_estimate_t_per_ha"`
	Thresholds    Thresholds `json:"thresholds"`
	Reason        string     `json:"reason"`
	Pros          string     `json:"pros"`
	Cons          string     `json:"cons"`
	Growth        string     `json:"growth"`
	Confidence    Confidence `json:"confidence"`
	Provenance    Provenance `json:"provenance"`
}

// AdvisoryState summarises what happened on the advisory path of a request.
type AdvisoryState string

const (
	AdvisoryOK      AdvisoryState = "ok"
	AdvisoryFailed  AdvisoryState = "failed"
	AdvisorySkipped AdvisoryState = "skipped"
)

// AdvisoryStatus reports the outcome of the advisory call for one request.
type AdvisoryStatus struct {
	State    AdvisoryState `json:"state"`
	Failure  string        `json:"failure,omitempty"`
	Provider string        `json:"provider,omitempty"`
	Model    string        `json:"model,omitempty"`
}

// Result is the engine's complete answer to one recommendation request.
type Result struct {
	RequestID          string                `json:"request_id"`
	Input              InputConditions       `json:"input"`
	AlgorithmSelection []ScoredCandidate     `json:"algorithm_selection"`
	Recommendations    []FinalRecommendation `json:"recommendations"`
	Advisory           AdvisoryStatus        `json:"advisory"`
}
