// Package suitability provides deterministic local scoring of crops against
// measured conditions. No advisory calls are made here.
package suitability

import (
	"math"
	"sort"

	"github.com/dshills/cropadvisor/internal/knowledge"
	"github.com/dshills/cropadvisor/internal/schema"
)

const (
	// MaxFactorScore is awarded when a measured value sits exactly at a crop's optimum.
	MaxFactorScore = 5.0
	// OutOfRangeScore is awarded when a measured value falls outside [min, max].
	OutOfRangeScore = -5.0
	// DefaultShortlistLimit is used when Shortlist is called with limit <= 0.
	DefaultShortlistLimit = 7
)

// Weights are the season terms added to every crop score.
type Weights struct {
	SeasonBonus   float64
	SeasonPenalty float64
}

// DefaultWeights returns the canonical season weights (+10 in season, -12 out).
func DefaultWeights() Weights {
	return Weights{SeasonBonus: 10, SeasonPenalty: -12}
}

// Scorer ranks crops by suitability. The zero value scores without any season term.
type Scorer struct {
	Weights Weights
}

// NewScorer returns a Scorer using w.
func NewScorer(w Weights) Scorer {
	return Scorer{Weights: w}
}

// ScoreByOptimum scores one measured value against a {min, opt, max} range.
// An absent value is neutral (0). A value outside [min, max] scores -5.
// Otherwise the score is 5 at the optimum, tapering linearly toward 0 at
// either boundary: clamp(5*(1-|v-opt|/halfRange), 0, 5).
func ScoreByOptimum(value *float64, r schema.Range) float64 {
	if value == nil {
		return 0
	}
	v := *value
	if v < r.Min || v > r.Max {
		return OutOfRangeScore
	}
	half := (r.Max - r.Min) / 2
	if half == 0 {
		half = 1
	}
	s := MaxFactorScore * (1 - math.Abs(v-r.Opt)/half)
	return math.Min(MaxFactorScore, math.Max(0, s))
}

// ScoreCrop returns the unbounded suitability score of p for input:
// the season term, plus ScoreByOptimum over the seven factors, plus priority.
func (s Scorer) ScoreCrop(p schema.CropProfile, input schema.InputConditions) float64 {
	season := input.Season
	if !season.Valid() {
		season = schema.DefaultSeason
	}

	total := s.Weights.SeasonPenalty
	if p.InSeason(season) {
		total = s.Weights.SeasonBonus
	}

	total += ScoreByOptimum(input.PH, p.PH)
	total += ScoreByOptimum(input.Rainfall, p.Rainfall)
	total += ScoreByOptimum(input.Moisture, p.Moisture)
	total += ScoreByOptimum(input.Temperature, p.Temperature)
	total += ScoreByOptimum(input.Nitrogen, p.Nutrients.N)
	total += ScoreByOptimum(input.Phosphorus, p.Nutrients.P)
	total += ScoreByOptimum(input.Potassium, p.Nutrients.K)
	total += float64(p.Priority)
	return total
}

// Shortlist scores every crop in kb, sorts descending by score with ties kept
// in knowledge-base order, and truncates to limit (DefaultShortlistLimit when
// limit <= 0).
func (s Scorer) Shortlist(kb *knowledge.Base, input schema.InputConditions, limit int) []schema.ScoredCandidate {
	if limit <= 0 {
		limit = DefaultShortlistLimit
	}

	profiles := kb.All()
	out := make([]schema.ScoredCandidate, len(profiles))
	for i, p := range profiles {
		out[i] = schema.ScoredCandidate{
			Name:    p.Name,
			Score:   s.ScoreCrop(p, input),
			Seasons: p.Seasons,
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})

	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
