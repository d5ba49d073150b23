// Package engine runs one recommendation request end to end: score the
// knowledge base, ask the advisory service about the shortlist, and merge the
// reply with local numbers, falling back to local-only output on any advisory
// fault.
package engine

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/dshills/cropadvisor/internal/advisory"
	"github.com/dshills/cropadvisor/internal/conditions"
	"github.com/dshills/cropadvisor/internal/knowledge"
	"github.com/dshills/cropadvisor/internal/reconcile"
	"github.com/dshills/cropadvisor/internal/sanitize"
	"github.com/dshills/cropadvisor/internal/schema"
	"github.com/dshills/cropadvisor/internal/suitability"
	"github.com/dshills/cropadvisor/internal/yield"
)

// ErrInternal is returned when a request fails for a reason other than its
// input. The caller should report a server fault.
var ErrInternal = eris.New("engine: internal error")

// State is a request lifecycle state.
type State string

const (
	StateReceived          State = "RECEIVED"
	StateValidated         State = "VALIDATED"
	StateScored            State = "SCORED"
	StateAdvisoryRequested State = "ADVISORY_REQUESTED"
	StateAdvisoryOK        State = "ADVISORY_OK"
	StateAdvisoryFailed    State = "ADVISORY_FAILED"
	StateMerged            State = "MERGED"
	StateResponded         State = "RESPONDED"
)

// Failure reasons reported in the advisory status block besides the
// advisory.Kind values.
const (
	FailureParse    = "parse"
	FailureEmpty    = "empty"
	FailureInternal = "internal"
)

// Advisor produces raw advisory text for a shortlist.
type Advisor interface {
	Advise(ctx context.Context, shortlist []schema.ScoredCandidate, input schema.InputConditions) (string, error)
	ProviderName() string
	Model() string
}

// Config holds the engine's tunables.
type Config struct {
	ShortlistLimit int
	FinalCount     int
	Weights        suitability.Weights
	Factors        yield.Factors
}

// DefaultConfig returns the canonical tunables.
func DefaultConfig() Config {
	return Config{
		ShortlistLimit: suitability.DefaultShortlistLimit,
		FinalCount:     reconcile.DefaultCount,
		Weights:        suitability.DefaultWeights(),
		Factors:        yield.DefaultFactors(),
	}
}

// Engine is safe for concurrent use; it holds no per-request state.
type Engine struct {
	kb         *knowledge.Base
	scorer     suitability.Scorer
	reconciler *reconcile.Reconciler
	advisor    Advisor
	limit      int
	log        *zap.Logger
}

// New builds an Engine. A nil advisor disables the advisory path; every
// result is then local-only with status "skipped".
func New(kb *knowledge.Base, cfg Config, advisor Advisor, log *zap.Logger) *Engine {
	if kb == nil {
		kb = knowledge.Default()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		kb:         kb,
		scorer:     suitability.NewScorer(cfg.Weights),
		reconciler: reconcile.New(kb, yield.NewEstimator(cfg.Factors), cfg.FinalCount),
		advisor:    advisor,
		limit:      cfg.ShortlistLimit,
		log:        log,
	}
}

// KnowledgeBase returns the engine's crop table.
func (e *Engine) KnowledgeBase() *knowledge.Base { return e.kb }

// RecommendRaw validates a loosely typed request mapping and runs it.
// Validation faults are returned as *conditions.ValidationError.
func (e *Engine) RecommendRaw(ctx context.Context, raw map[string]any) (*schema.Result, error) {
	input, err := conditions.Parse(raw)
	if err != nil {
		return nil, err
	}
	return e.Recommend(ctx, input)
}

// Recommend runs one request. Out-of-range or non-finite conditions are
// rejected with *conditions.ValidationError. Once the shortlist is scored a
// complete result is always returned; advisory faults only change provenance
// and the advisory status block.
func (e *Engine) Recommend(ctx context.Context, input schema.InputConditions) (*schema.Result, error) {
	id := uuid.NewString()
	log := e.log.With(zap.String("request_id", id))
	log.Debug("request", zap.String("state", string(StateReceived)))

	if err := conditions.Check(input); err != nil {
		log.Info("request rejected", zap.Error(err))
		return nil, err
	}
	if !input.Season.Valid() {
		input.Season = schema.DefaultSeason
	}
	log.Debug("request", zap.String("state", string(StateValidated)), zap.String("season", string(input.Season)))

	shortlist, err := e.shortlist(input)
	if err != nil {
		log.Error("scoring failed", zap.Error(err))
		return nil, err
	}
	log.Debug("request", zap.String("state", string(StateScored)), zap.Int("candidates", len(shortlist)))

	recs, status := e.advise(ctx, log, shortlist, input)
	log.Debug("request", zap.String("state", string(StateMerged)), zap.String("advisory", string(status.State)))

	res := &schema.Result{
		RequestID:          id,
		Input:              input,
		AlgorithmSelection: shortlist,
		Recommendations:    recs,
		Advisory:           status,
	}
	log.Info("request", zap.String("state", string(StateResponded)),
		zap.String("advisory", string(status.State)),
		zap.String("top", topName(recs)),
	)
	return res, nil
}

func (e *Engine) shortlist(input schema.InputConditions) (out []schema.ScoredCandidate, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = eris.Wrapf(ErrInternal, "scoring panic: %v", r)
		}
	}()
	return e.scorer.Shortlist(e.kb, input, e.limit), nil
}

// advise runs the advisory path and the merge. It never fails: any fault
// yields the fallback recommendations.
func (e *Engine) advise(ctx context.Context, log *zap.Logger, shortlist []schema.ScoredCandidate, input schema.InputConditions) (recs []schema.FinalRecommendation, status schema.AdvisoryStatus) {
	if e.advisor == nil {
		return e.reconciler.Fallback(shortlist, input), schema.AdvisoryStatus{State: schema.AdvisorySkipped}
	}

	status = schema.AdvisoryStatus{
		State:    schema.AdvisoryOK,
		Provider: e.advisor.ProviderName(),
		Model:    e.advisor.Model(),
	}
	fail := func(reason string) {
		status.State = schema.AdvisoryFailed
		status.Failure = reason
		recs = e.reconciler.Fallback(shortlist, input)
		log.Debug("request", zap.String("state", string(StateAdvisoryFailed)), zap.String("failure", reason))
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error("advisory path panic", zap.Any("panic", r))
			fail(FailureInternal)
		}
	}()

	log.Debug("request", zap.String("state", string(StateAdvisoryRequested)))
	raw, err := e.advisor.Advise(ctx, shortlist, input)
	if err != nil {
		kind := string(advisory.KindTransport)
		var aerr *advisory.Error
		if errors.As(err, &aerr) {
			kind = string(aerr.Kind)
		}
		log.Warn("advisory call failed; using fallback", zap.String("kind", kind), zap.Error(err))
		fail(kind)
		return recs, status
	}

	v, ok := sanitize.Extract(raw)
	if !ok {
		log.Warn("advisory reply not parseable; using fallback", zap.Int("bytes", len(raw)))
		fail(FailureParse)
		return recs, status
	}

	recs = e.reconciler.Merge(shortlist, sanitize.Entries(v), input)
	if !reconcile.HasAdvice(recs) {
		log.Warn("advisory reply had no usable entries; using fallback")
		fail(FailureEmpty)
		return recs, status
	}
	log.Debug("request", zap.String("state", string(StateAdvisoryOK)))
	return recs, status
}

func topName(recs []schema.FinalRecommendation) string {
	if len(recs) == 0 {
		return ""
	}
	return recs[0].Name
}
