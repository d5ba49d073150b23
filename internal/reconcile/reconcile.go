// Package reconcile merges untrusted advisory entries with locally computed
// scores, yields and thresholds into the final ranked recommendations. Crop
// names and every number always come from local computation.
package reconcile

import (
	"strings"

	"github.com/dshills/cropadvisor/internal/knowledge"
	"github.com/dshills/cropadvisor/internal/schema"
	"github.com/dshills/cropadvisor/internal/yield"
)

// DefaultCount is the number of final recommendations.
const DefaultCount = 3

// Fallback narrative used when an entry supplies no usable field.
const (
	FallbackReason = "Ranked by local suitability scoring against the measured soil and climate conditions."
	FallbackPros   = "Conditions fall within the crop's tolerated ranges; Suited to the selected season"
	FallbackCons   = "Narrative advice unavailable; Validate with a local soil test before sowing"
	FallbackGrowth = "Follow standard regional practice for sowing window, irrigation and nutrient split."
)

// FallbackConfidence is the confidence assigned when none is supplied.
const FallbackConfidence = schema.ConfidenceMedium

// Reconciler builds final recommendations.
type Reconciler struct {
	KB        *knowledge.Base
	Estimator yield.Estimator
	Count     int
}

// New returns a Reconciler producing count recommendations (DefaultCount when
// count <= 0).
func New(kb *knowledge.Base, est yield.Estimator, count int) *Reconciler {
	if count <= 0 {
		count = DefaultCount
	}
	return &Reconciler{KB: kb, Estimator: est, Count: count}
}

// Merge produces one recommendation per shortlist rank up to Count. For rank
// i the entry is the one whose name matches the candidate case-insensitively;
// otherwise the entry at position i, unless a name match elsewhere claimed it.
func (r *Reconciler) Merge(shortlist []schema.ScoredCandidate, entries []schema.AdvisoryEntry, input schema.InputConditions) []schema.FinalRecommendation {
	top := r.top(shortlist)
	paired := pair(top, entries)

	out := make([]schema.FinalRecommendation, len(top))
	for i, c := range top {
		out[i] = r.merge(i, c, paired[i], input)
	}
	return out
}

// Fallback produces the recommendations without any advisory input.
func (r *Reconciler) Fallback(shortlist []schema.ScoredCandidate, input schema.InputConditions) []schema.FinalRecommendation {
	return r.Merge(shortlist, nil, input)
}

// HasAdvice reports whether any recommendation carries advisory narrative.
func HasAdvice(recs []schema.FinalRecommendation) bool {
	for _, rec := range recs {
		if rec.Provenance == schema.ProvenanceAdvisory {
			return true
		}
	}
	return false
}

func (r *Reconciler) top(shortlist []schema.ScoredCandidate) []schema.ScoredCandidate {
	n := r.Count
	if n <= 0 {
		n = DefaultCount
	}
	if len(shortlist) < n {
		n = len(shortlist)
	}
	return shortlist[:n]
}

// pair returns, for each candidate, a pointer to its entry or nil.
func pair(top []schema.ScoredCandidate, entries []schema.AdvisoryEntry) []*schema.AdvisoryEntry {
	paired := make([]*schema.AdvisoryEntry, len(top))
	claimed := make([]bool, len(entries))

	for i, c := range top {
		for j := range entries {
			if claimed[j] || entries[j].Name == "" {
				continue
			}
			if strings.EqualFold(strings.TrimSpace(entries[j].Name), c.Name) {
				paired[i] = &entries[j]
				claimed[j] = true
				break
			}
		}
	}

	for i := range top {
		if paired[i] != nil || i >= len(entries) || claimed[i] {
			continue
		}
		// A positional entry naming a different shortlisted crop belongs to
		// that crop, not this rank.
		if namesCandidate(top, entries[i].Name) {
			continue
		}
		paired[i] = &entries[i]
		claimed[i] = true
	}
	return paired
}

func namesCandidate(top []schema.ScoredCandidate, name string) bool {
	if name == "" {
		return false
	}
	for _, c := range top {
		if strings.EqualFold(strings.TrimSpace(name), c.Name) {
			return true
		}
	}
	return false
}

func (r *Reconciler) merge(i int, c schema.ScoredCandidate, e *schema.AdvisoryEntry, input schema.InputConditions) schema.FinalRecommendation {
	rec := schema.FinalRecommendation{
		Rank:          i + 1,
		Name:          c.Name,
		Score:         c.Score,
		YieldEstimate: r.Estimator.Estimate(r.KB, c.Name, input),
		Reason:        FallbackReason,
		Pros:          FallbackPros,
		Cons:          FallbackCons,
		Growth:        FallbackGrowth,
		Confidence:    FallbackConfidence,
		Provenance:    schema.ProvenanceFallback,
	}
	if r.KB != nil {
		if p, ok := r.KB.Profile(c.Name); ok {
			rec.Thresholds = p.Thresholds()
		}
	}
	if e == nil {
		return rec
	}

	used := false
	take := func(dst *string, v string) {
		if v != "" {
			*dst = v
			used = true
		}
	}
	take(&rec.Reason, e.Reason)
	take(&rec.Pros, e.Pros)
	take(&rec.Cons, e.Cons)
	take(&rec.Growth, e.Growth)
	if c, ok := schema.ParseConfidence(string(e.Confidence)); ok {
		rec.Confidence = c
		used = true
	}
	if used {
		rec.Provenance = schema.ProvenanceAdvisory
	}
	return rec
}
