// Package irrigation advises whether and how much to irrigate one crop given
// its soil type and current soil moisture. The decision and depth fall back to
// a comparison against the crop's moisture optimum when the advisory service
// gives no usable answer.
package irrigation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/dshills/cropadvisor/internal/advisory"
	"github.com/dshills/cropadvisor/internal/conditions"
	"github.com/dshills/cropadvisor/internal/knowledge"
	"github.com/dshills/cropadvisor/internal/profile"
	"github.com/dshills/cropadvisor/internal/sanitize"
	"github.com/dshills/cropadvisor/internal/schema"
)

const (
	// FallbackDepthMM is the application depth used when irrigation is needed
	// and no advised depth is usable.
	FallbackDepthMM = 25.0
	// MaxDepthMM bounds an advised depth; larger values are discarded.
	MaxDepthMM = 200.0

	// FallbackRisk is the risk note used when the reply gives none.
	FallbackRisk ="Over-watering can cause waterlogging and nutrient leaching; check the forecast before irrigating."

	maxExplanation = 5
)

// Mechanisms lists the irrigation methods an advised answer may name.
var Mechanisms = []string{"drip", "sprinkler", "flood", "furrow", "micro-sprinkler"}

// Request asks for irrigation advice for one crop.
type Request struct {
	SoilType string   `json:"soil_type" validate:"required,max=64"`
	Crop     string   `json:"crop" validate:"required"`
	Moisture *float64 `json:"moisture" validate:"required,gte=0,lte=100"`
}

// Advice is the answer to a Request.
type Advice struct {
	Crop            string                `json:"crop"`
	SoilType        string                `json:"soil_type"`
	Moisture        float64               `json:"moisture"`
	OptimalMoisture float64               `json:"optimal_moisture"`
	NeedIrrigation  bool                  `json:"need_irrigation"`
	RecommendedMM   float64               `json:"recommended_mm"`
	Mechanism       string                `json:"irrigation_mechanism,omitempty"`
	FrequencyDays   float64               `json:"frequency_days,omitempty"`
	DurationMinutes float64               `json:"duration_minutes,omitempty"`
	Reason          string                `json:"reason"`
	Risk            string                `json:"risk"`
	Explanation     []string              `json:"ai_explanation,omitempty"`
	Source          schema.Provenance     `json:"source"`
	Advisory        schema.AdvisoryStatus `json:"advisory"`
}

// Completer issues one bounded advisory call.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	ProviderName() string
	Model() string
}

// Service answers irrigation requests.
type Service struct {
	kb        *knowledge.Base
	client    Completer
	profile   profile.Profile
	validator *validator.Validate
	log       *zap.Logger
}

// NewService builds a Service. A nil client yields the local answer only.
func NewService(kb *knowledge.Base, client Completer, prof profile.Profile, log *zap.Logger) *Service {
	if kb == nil {
		kb = knowledge.Default()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{kb: kb, client: client, profile: prof, validator: validator.New(), log: log}
}

// Validate checks req and canonicalises its crop name. Faults are
// *conditions.ValidationError.
func (s *Service) Validate(req *Request) error {
	req.SoilType = strings.TrimSpace(req.SoilType)
	req.Crop = strings.TrimSpace(req.Crop)
	if err := s.validator.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &conditions.ValidationError{Field: fieldName(fe.Field()), Message: fmt.Sprintf("failed %q check", fe.Tag())}
		}
		return &conditions.ValidationError{Field: conditions.FieldBody, Message: err.Error()}
	}
	p, ok := s.kb.Lookup(req.Crop)
	if !ok {
		return &conditions.ValidationError{Field: "crop", Message: fmt.Sprintf("unknown crop %q", req.Crop)}
	}
	req.Crop = p.Name
	return nil
}

func fieldName(f string) string {
	if f == "SoilType" {
		return "soil_type"
	}
	return strings.ToLower(f)
}

// Local answers req from the knowledge base alone: irrigate when moisture is
// below the crop's optimum. req must already be valid.
func (s *Service) Local(req Request) *Advice {
	p, _ := s.kb.Profile(req.Crop)
	out := &Advice{
		Crop:            req.Crop,
		SoilType:        req.SoilType,
		Moisture:        *req.Moisture,
		OptimalMoisture: p.Moisture.Opt,
		Risk:            FallbackRisk,
		Source:          schema.ProvenanceFallback,
		Advisory:        schema.AdvisoryStatus{State: schema.AdvisorySkipped},
	}
	if out.Moisture < p.Moisture.Opt {
		out.NeedIrrigation = true
		out.RecommendedMM = FallbackDepthMM
		out.Reason = fmt.Sprintf("Soil moisture %g%% is below the %g%% optimum for %s.", out.Moisture, p.Moisture.Opt, p.Name)
	} else {
		out.Reason = fmt.Sprintf("Soil moisture %g%% meets the %g%% optimum for %s.", out.Moisture, p.Moisture.Opt, p.Name)
	}
	return out
}

// Advise validates req and returns advice. Advisory faults never fail the
// request; each field the reply omits or gets wrong keeps its local value.
func (s *Service) Advise(ctx context.Context, req Request) (*Advice, error) {
	if err := s.Validate(&req); err != nil {
		return nil, err
	}
	out := s.Local(req)
	if s.client == nil {
		return out, nil
	}

	out.Advisory = schema.AdvisoryStatus{State: schema.AdvisoryOK, Provider: s.client.ProviderName(), Model: s.client.Model()}
	raw, err := s.client.Complete(ctx, s.systemPrompt(), userPrompt(req, out.OptimalMoisture))
	if err != nil {
		kind := string(advisory.KindTransport)
		var aerr *advisory.Error
		if errors.As(err, &aerr) {
			kind = string(aerr.Kind)
		}
		s.log.Warn("irrigation call failed; using local answer", zap.String("crop", req.Crop), zap.String("kind", kind), zap.Error(err))
		out.Advisory.State, out.Advisory.Failure = schema.AdvisoryFailed, kind
		return out, nil
	}

	v, ok := sanitize.Extract(raw)
	if ok && v.IsArray() && len(v.Array()) > 0 {
		v = v.Array()[0]
	}
	if !ok || !v.IsObject() {
		s.log.Warn("irrigation reply not parseable; using local answer", zap.String("crop", req.Crop))
		out.Advisory.State, out.Advisory.Failure = schema.AdvisoryFailed, "parse"
		return out, nil
	}

	if merge(out, v) {
		out.Source = schema.ProvenanceAdvisory
	} else {
		out.Advisory.State, out.Advisory.Failure = schema.AdvisoryFailed, "empty"
	}
	return out, nil
}

// merge overlays the usable fields of v onto out and reports whether any
// field was taken.
func merge(out *Advice, v gjson.Result) bool {
	used := false

	if r := v.Get("need_irrigation"); r.IsBool() {
		out.NeedIrrigation = r.Bool()
		used = true
	}
	if mm, ok := number(v.Get("recommended_mm"), 0, MaxDepthMM); ok {
		out.RecommendedMM = mm
		used = true
	}
	if !out.NeedIrrigation {
		out.RecommendedMM = 0
	} else if out.RecommendedMM == 0 {
		out.RecommendedMM = FallbackDepthMM
	}

	if m := strings.ToLower(strings.TrimSpace(v.Get("irrigation_mechanism").Str)); m != "" {
		for _, known := range Mechanisms {
			if m == known {
				out.Mechanism = m
				used = true
				break
			}
		}
	}
	if d, ok := number(v.Get("frequency_days"), 0, 365); ok && d > 0 {
		out.FrequencyDays = d
		used = true
	}
	if d, ok := number(v.Get("duration_minutes"), 0, 24*60); ok && d > 0 {
		out.DurationMinutes = d
		used = true
	}
	for _, f := range []struct {
		key string
		dst *string
	}{
		{"reason", &out.Reason},
		{"risk", &out.Risk},
	} {
		r := v.Get(f.key)
		if text := strings.TrimSpace(r.Str); r.Type == gjson.String && text != "" {
			*f.dst = text
			used = true
		}
	}
	for _, item := range v.Get("ai_explanation").Array() {
		if text := strings.TrimSpace(item.Str); item.Type == gjson.String && text != "" && len(out.Explanation) < maxExplanation {
			out.Explanation = append(out.Explanation, text)
			used = true
		}
	}
	return used
}

// number returns r as a finite float within [lo, hi].
func number(r gjson.Result, lo, hi float64) (float64, bool) {
	if r.Type != gjson.Number {
		return 0, false
	}
	f := r.Float()
	if math.IsNaN(f) || f < lo || f > hi {
		return 0, false
	}
	return f, true
}

func (s *Service) systemPrompt() string {
	var sb strings.Builder
	sb.WriteString("You are an agricultural irrigation expert.\n\n")
	sb.WriteString("Output ONLY valid JSON. No prose, no markdown, no code blocks.\n")
	if s.profile.SystemPromptAddendum != "" {
		sb.WriteString("\n")
		sb.WriteString(s.profile.SystemPromptAddendum)
		sb.WriteString("\n")
	}
	sb.WriteString("\nFORMAT:\n{\n" +
		"  \"need_irrigation\": true,\n" +
		"  \"recommended_mm\": 0,\n" +
		"  \"irrigation_mechanism\": \"" + strings.Join(Mechanisms, " | ") + "\",\n" +
		"  \"frequency_days\": 0,\n" +
		"  \"duration_minutes\": 0,\n" +
		"  \"reason\": \"one short sentence\",\n" +
		"  \"risk\": \"one short sentence\",\n" +
		"  \"ai_explanation\": [\"up to five short points\"]\n}\n")
	return sb.String()
}

func userPrompt(req Request, optimum float64) string {
	return fmt.Sprintf("Soil type: %s\nCrop: %s\nCurrent soil moisture: %g%%\nOptimal soil moisture for this crop: %g%%\n\nAdvise on irrigation.",
		req.SoilType, req.Crop, *req.Moisture, optimum)
}
