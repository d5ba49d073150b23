//go:build integration

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/dshills/cropadvisor/internal/advisory"
	"github.com/dshills/cropadvisor/internal/config"
	"github.com/dshills/cropadvisor/internal/guidance"
	"github.com/dshills/cropadvisor/internal/irrigation"
	"github.com/dshills/cropadvisor/internal/schema"
)

// riceMockResponse is the canned advisory reply for the rice scenario.
const riceMockResponse = "Here you go:\n```json\n" + `[
  {"name":"Rice","reason":"Standing water suits paddy.","pros":["Staple","Procurement"],"cons":"Water heavy","growth":"Transplant at 25 days","confidence":"high"},
  {"name":"Jute","reason":"Humid and warm.","pros":"Fibre demand","cons":"Retting water needed","growth":"120 days","confidence":"medium"},
  {"name":"Bitter Gourd","reason":"Warm season vine.","pros":"Market price","cons":"Trellis cost","growth":"Sow on ridges","confidence":"low"}
]` + "\n```"

// mockMultiProvider returns successive responses from a list.
type mockMultiProvider struct {
	responses []string
	idx       int
}

func (m *mockMultiProvider) Complete(ctx context.Context, system, user string, maxTokens int, temp float64) (string, error) {
	if m.idx >= len(m.responses) {
		return "", fmt.Errorf("mock: no more responses")
	}
	r := m.responses[m.idx]
	m.idx++
	return r, nil
}

// errorProvider always returns an error from Complete.
type errorProvider struct{}

func (e *errorProvider) Complete(ctx context.Context, system, user string, maxTokens int, temp float64) (string, error) {
	return "", fmt.Errorf("simulated API error")
}

func injectMock(t *testing.T, responses []string) {
	t.Helper()
	orig := advisory.NewProvider
	advisory.NewProvider = func(providerName, model string) (advisory.Provider, error) {
		return &mockMultiProvider{responses: responses}, nil
	}
	t.Cleanup(func() { advisory.NewProvider = orig })
}

func injectErrProvider(t *testing.T) {
	t.Helper()
	orig := advisory.NewProvider
	advisory.NewProvider = func(providerName, model string) (advisory.Provider, error) {
		return &errorProvider{}, nil
	}
	t.Cleanup(func() { advisory.NewProvider = orig })
}

// onlineConfig loads defaults with the default provider enabled.
func onlineConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { os.Chdir(origDir) })

	c, err := config.Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	return c
}

func decodeResult(t *testing.T, b []byte) schema.Result {
	t.Helper()
	var res schema.Result
	if err := json.Unmarshal(b, &res); err != nil {
		t.Fatalf("parse output JSON: %v", err)
	}
	return res
}

func TestIntegration_AdvisedRecommendation(t *testing.T) {
	injectMock(t, []string{riceMockResponse})
	c := onlineConfig(t)

	var out bytes.Buffer
	if err := runRecommend(context.Background(), c, riceFlags(), nil, &out); err != nil {
		t.Fatalf("runRecommend: %v", err)
	}
	res := decodeResult(t, out.Bytes())

	if res.Advisory.State != schema.AdvisoryOK {
		t.Fatalf("advisory state: got %q, want ok", res.Advisory.State)
	}
	if len(res.Recommendations) != 3 {
		t.Fatalf("recommendations: got %d, want 3", len(res.Recommendations))
	}
	top := res.Recommendations[0]
	if top.Name != "Rice" || top.Provenance != schema.ProvenanceAdvisory {
		t.Errorf("top: got %s/%s, want Rice/advisory", top.Name, top.Provenance)
	}
	if top.Pros != "Staple; Procurement" {
		t.Errorf("pros: got %q", top.Pros)
	}
	if top.YieldEstimate != 2.67 {
		t.Errorf("yield: got %v, want 2.67", top.YieldEstimate)
	}
}

func TestIntegration_ProviderError_FallsBack(t *testing.T) {
	injectErrProvider(t)
	c := onlineConfig(t)

	var out bytes.Buffer
	err := runRecommend(context.Background(), c, riceFlags(), nil, &out)
	if code := exitCode(err); code != 0 {
		t.Fatalf("expected exit 0, got %d: %v", code, err)
	}
	res := decodeResult(t, out.Bytes())
	if res.Advisory.State != schema.AdvisoryFailed || res.Advisory.Failure != string(advisory.KindTransport) {
		t.Errorf("advisory: got %+v, want failed/transport", res.Advisory)
	}
	for _, rec := range res.Recommendations {
		if rec.Provenance != schema.ProvenanceFallback {
			t.Errorf("%s: provenance %q, want fallback", rec.Name, rec.Provenance)
		}
	}
}

func TestIntegration_InvalidOutput_FallsBack(t *testing.T) {
	injectMock(t, []string{"not json at all"})
	c := onlineConfig(t)

	var out bytes.Buffer
	if err := runRecommend(context.Background(), c, riceFlags(), nil, &out); err != nil {
		t.Fatalf("runRecommend: %v", err)
	}
	res := decodeResult(t, out.Bytes())
	if res.Advisory.Failure != "parse" {
		t.Errorf("failure: got %q, want parse", res.Advisory.Failure)
	}
}

func TestIntegration_BadInput_ExitsThree(t *testing.T) {
	injectMock(t, nil)
	c := onlineConfig(t)
	f := riceFlags()
	f.ph = "15"

	err := runRecommend(context.Background(), c, f, nil, &bytes.Buffer{})
	if code := exitCode(err); code != exitCodeBadInput {
		t.Errorf("expected exit %d (bad input), got %d: %v", exitCodeBadInput, code, err)
	}
}

func TestIntegration_Guidance(t *testing.T) {
	injectMock(t, []string{`{"fertilizer":"Top-dress urea","pest_control":"Neem spray","precautions":"Avoid noon sprays"}`})
	c := onlineConfig(t)
	n, p, k := 80.0, 40.0, 30.0

	var out bytes.Buffer
	req := guidance.Request{Crop: "Wheat", GrowthStage: "tillering", Soil: &guidance.Soil{N: &n, P: &p, K: &k}}
	if err := runGuidance(context.Background(), c, req, &out); err != nil {
		t.Fatalf("runGuidance: %v", err)
	}
	var advice guidance.Advice
	if err := json.Unmarshal(out.Bytes(), &advice); err != nil {
		t.Fatalf("parse advice: %v", err)
	}
	if advice.PestControl != "Neem spray" || advice.Source != schema.ProvenanceAdvisory {
		t.Errorf("advice: got %+v", advice)
	}
}

func TestIntegration_Irrigation(t *testing.T) {
	injectMock(t, []string{`{"need_irrigation":true,"recommended_mm":30,"irrigation_mechanism":"drip","reason":"Sandy soil drains fast.","risk":"Salt build-up."}`})
	c := onlineConfig(t)
	f := irrigationFlags{crop: "Wheat", soilType: "sandy", moisture: 30, moistureSet: true}

	var out bytes.Buffer
	if err := runIrrigation(context.Background(), c, f.request(), &out); err != nil {
		t.Fatalf("runIrrigation: %v", err)
	}
	var advice irrigation.Advice
	if err := json.Unmarshal(out.Bytes(), &advice); err != nil {
		t.Fatalf("parse advice: %v", err)
	}
	if advice.Mechanism != "drip" || advice.RecommendedMM != 30 || advice.Source != schema.ProvenanceAdvisory {
		t.Errorf("advice: got %+v", advice)
	}
}

func TestIntegration_KnowledgePathOverride(t *testing.T) {
	injectMock(t, nil)
	c := onlineConfig(t)
	c.Advisory.Provider = "none"
	path := filepath.Join(t.TempDir(), "crops.yaml")
	table := `crops:
  - name: Teff
    seasons: [Kharif]
    ph: {min: 5, opt: 6.5, max: 8}
    rainfall: {min: 300, opt: 700, max: 1200}
    moisture: {min: 20, opt: 40, max: 60}
    temperature: {min: 10, opt: 22, max: 30}
    nutrients:
      n: {min: 20, opt: 40, max: 80}
      p: {min: 10, opt: 20, max: 40}
      k: {min: 10, opt: 20, max: 40}
    priority: 5
    baseline_yield: 1.2
`
	if err := os.WriteFile(path, []byte(table), 0644); err != nil {
		t.Fatalf("write table: %v", err)
	}
	c.Knowledge.Path = path

	var out bytes.Buffer
	if err := runCrops(c, "teff", &out); err != nil {
		t.Fatalf("runCrops: %v", err)
	}
	if !bytes.Contains(out.Bytes(), []byte("name: Teff")) {
		t.Errorf("output missing Teff: %s", out.String())
	}
}
