// Package guidance produces crop-care advice (fertiliser, pest control,
// precautions) for one crop at one growth stage. Each field is asked of the
// advisory service and falls back independently to fixed text.
package guidance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
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

// Fallback advice used when the service supplies no usable field.
const (
	FallbackFertilizer  = "Apply balanced NPK as per soil test and crop growth stage."
	FallbackPestControl = "Use neem oil or bio-pesticides first. Apply chemical pesticide only if pest level exceeds threshold."
	FallbackPrecautions = "Avoid spraying during rain, strong wind, or peak sunlight hours."
)

// Soil holds the measured nutrient levels (kg/ha).
type Soil struct {
	N *float64 `json:"n" validate:"required,gte=0"`
	P *float64 `json:"p" validate:"required,gte=0"`
	K *float64 `json:"k" validate:"required,gte=0"`
}

// Request asks for advice on one crop.
type Request struct {
	Crop        string `json:"crop" validate:"required"`
	GrowthStage string `json:"growth_stage" validate:"required,max=64"`
	Soil        *Soil  `json:"soil" validate:"required"`
}

// Advice is the answer to a Request.
type Advice struct {
	Crop        string                `json:"crop"`
	GrowthStage string                `json:"growth_stage"`
	Fertilizer  string                `json:"fertilizer"`
	PestControl string                `json:"pest_control"`
	Precautions string                `json:"precautions"`
	Source      schema.Provenance     `json:"source"`
	Advisory    schema.AdvisoryStatus `json:"advisory"`
}

// Completer issues one bounded advisory call.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	ProviderName() string
	Model() string
}

// Service answers guidance requests.
type Service struct {
	kb        *knowledge.Base
	client    Completer
	profile   profile.Profile
	validator *validator.Validate
	log       *zap.Logger
}

// NewService builds a Service. A nil client yields fallback advice only.
func NewService(kb *knowledge.Base, client Completer, prof profile.Profile, log *zap.Logger) *Service {
	if kb == nil {
		kb = knowledge.Default()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{kb: kb, client: client, profile: prof, validator: validator.New(), log: log}
}

// Validate checks req and canonicalises its crop name against the knowledge
// base. Faults are *conditions.ValidationError.
func (s *Service) Validate(req *Request) error {
	req.Crop = strings.TrimSpace(req.Crop)
	req.GrowthStage = strings.TrimSpace(req.GrowthStage)
	if err := s.validator.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &conditions.ValidationError{Field: fieldName(fe), Message: fmt.Sprintf("failed %q check", fe.Tag())}
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

// fieldName maps a validator field to its JSON path, e.g. "soil.n".
func fieldName(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		ns = ns[i+1:]
	}
	return strings.ToLower(strings.ReplaceAll(ns, "GrowthStage", "growth_stage"))
}

// Advise validates req and returns advice. Advisory faults never fail the
// request.
func (s *Service) Advise(ctx context.Context, req Request) (*Advice, error) {
	if err := s.Validate(&req); err != nil {
		return nil, err
	}

	out := &Advice{
		Crop:        req.Crop,
		GrowthStage: req.GrowthStage,
		Fertilizer:  FallbackFertilizer,
		PestControl: FallbackPestControl,
		Precautions: FallbackPrecautions,
		Source:      schema.ProvenanceFallback,
		Advisory:    schema.AdvisoryStatus{State: schema.AdvisorySkipped},
	}
	if s.client == nil {
		return out, nil
	}

	out.Advisory = schema.AdvisoryStatus{State: schema.AdvisoryOK, Provider: s.client.ProviderName(), Model: s.client.Model()}
	raw, err := s.client.Complete(ctx, s.systemPrompt(), userPrompt(req))
	if err != nil {
		kind := string(advisory.KindTransport)
		var aerr *advisory.Error
		if errors.As(err, &aerr) {
			kind = string(aerr.Kind)
		}
		s.log.Warn("guidance call failed; using fallback", zap.String("crop", req.Crop), zap.String("kind", kind), zap.Error(err))
		out.Advisory.State, out.Advisory.Failure = schema.AdvisoryFailed, kind
		return out, nil
	}

	v, ok := sanitize.Extract(raw)
	if ok && v.IsArray() && len(v.Array()) > 0 {
		v = v.Array()[0]
	}
	if !ok || !v.IsObject() {
		s.log.Warn("guidance reply not parseable; using fallback", zap.String("crop", req.Crop))
		out.Advisory.State, out.Advisory.Failure = schema.AdvisoryFailed, "parse"
		return out, nil
	}

	used := false
	for _, f := range []struct {
		key string
		dst *string
	}{
		{"fertilizer", &out.Fertilizer},
		{"pest_control", &out.PestControl},
		{"precautions", &out.Precautions},
	} {
		r := v.Get(f.key)
		if text := strings.TrimSpace(r.Str); r.Type == gjson.String && text != "" {
			*f.dst = text
			used = true
		}
	}
	if used {
		out.Source = schema.ProvenanceAdvisory
	} else {
		out.Advisory.State, out.Advisory.Failure = schema.AdvisoryFailed, "empty"
	}
	return out, nil
}

func (s *Service) systemPrompt() string {
	var sb strings.Builder
	sb.WriteString("You are an expert agronomist giving crop-care advice.\n\n")
	sb.WriteString("Output ONLY valid JSON. No prose, no markdown.\n\n")
	sb.WriteString("RULES:\n- Organic first, chemical only if required\n- Follow IPM principles\n")
	if s.profile.SystemPromptAddendum != "" {
		sb.WriteString("\n")
		sb.WriteString(s.profile.SystemPromptAddendum)
		sb.WriteString("\n")
	}
	sb.WriteString("\nFORMAT:\n{\n  \"fertilizer\": \"string\",\n  \"pest_control\": \"string\",\n  \"precautions\": \"string\"\n}\n")
	return sb.String()
}

func userPrompt(req Request) string {
	soil, _ := json.Marshal(req.Soil)
	return fmt.Sprintf("Crop: %s\nGrowth stage: %s\nSoil nutrients (kg/ha): %s\n\nProvide fertiliser, pest control and precaution advice.",
		req.Crop, req.GrowthStage, soil)
}
