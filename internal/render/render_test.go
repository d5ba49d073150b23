package render

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/dshills/cropadvisor/internal/schema"
)

func sampleResult() *schema.Result {
	ph := 6.5
	return &schema.Result{
		RequestID: "7c1f4d0e-2b55-4a57-9f1e-0d7f3e2b9a11",
		Input:     schema.InputConditions{PH: &ph, Season: schema.SeasonKharif},
		AlgorithmSelection: []schema.ScoredCandidate{
			{Name: "Rice", Score: 41.717, Seasons: []schema.Season{schema.SeasonKharif}},
			{Name: "Jute", Score: 28.738, Seasons: []schema.Season{schema.SeasonKharif}},
			{Name: "Bitter Gourd", Score: 26.28, Seasons: []schema.Season{schema.SeasonKharif, schema.SeasonSummer}},
		},
		Recommendations: []schema.FinalRecommendation{
			{
				Rank:          1,
				Name:          "Rice",
				Score:         41.717,
				YieldEstimate: 2.67,
				Thresholds: schema.Thresholds{
					PH:       schema.Range{Min: 5.5, Opt: 6.5, Max: 7.5},
					Rainfall: schema.Range{Min: 1000, Opt: 1500, Max: 2500},
				},
				Reason:     "Paddy thrives at this rainfall.",
				Pros:       "High demand; assured procurement",
				Cons:       "Water intensive",
				Growth:     "Transplant at 25 days",
				Confidence: schema.ConfidenceHigh,
				Provenance: schema.ProvenanceAdvisory,
			},
			{
				Rank:          2,
				Name:          "Jute",
				Score:         28.738,
				YieldEstimate: 1.9,
				Reason:        "Fallback reason",
				Confidence:    schema.ConfidenceMedium,
				Provenance:    schema.ProvenanceFallback,
			},
		},
		Advisory: schema.AdvisoryStatus{State: schema.AdvisoryOK, Provider: "openrouter", Model: "openai/gpt-oss-20b:free"},
	}
}

func TestRenderJSON_RoundTrip(t *testing.T) {
	result := sampleResult()
	b, err := RenderJSON(result)
	if err != nil {
		t.Fatalf("RenderJSON error: %v", err)
	}
	var got schema.Result
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("json.Unmarshal error: %v", err)
	}
	if got.RequestID != result.RequestID {
		t.Errorf("request id mismatch: got %q, want %q", got.RequestID, result.RequestID)
	}
	if len(got.Recommendations) != len(result.Recommendations) {
		t.Fatalf("recommendation count mismatch: got %d, want %d", len(got.Recommendations), len(result.Recommendations))
	}
	if got.Recommendations[0].YieldEstimate != 2.67 {
		t.Errorf("yield mismatch: got %v, want 2.67", got.Recommendations[0].YieldEstimate)
	}
	if got.Recommendations[0].Thresholds.PH != result.Recommendations[0].Thresholds.PH {
		t.Errorf("ph thresholds mismatch: got %+v", got.Recommendations[0].Thresholds.PH)
	}
	if len(got.AlgorithmSelection) != 3 {
		t.Errorf("shortlist count mismatch: got %d, want 3", len(got.AlgorithmSelection))
	}
	if got.Input.PH == nil || *got.Input.PH != 6.5 {
		t.Errorf("input ph lost in round trip: %v", got.Input.PH)
	}
}

func TestRenderJSON_FieldNames(t *testing.T) {
	b, err := RenderJSON(sampleResult())
	if err != nil {
		t.Fatalf("RenderJSON error: %v", err)
	}
	s := string(b)
	for _, key := range []string{`"algorithm_selection"`, `"yield_estimate_t_per_ha"`, `"rainfall_mm"`, `"provenance"`, `"advisory"`} {
		if !strings.Contains(s, key) {
			t.Errorf("json output missing key %s", key)
		}
	}
	if !strings.Contains(s, "\n  ") {
		t.Error("expected indentation in pretty-printed JSON output")
	}
}

func TestRenderMarkdown_ContainsAllCrops(t *testing.T) {
	md := RenderMarkdown(sampleResult())
	for _, name := range []string{"Rice", "Jute", "Bitter Gourd"} {
		if !strings.Contains(md, name) {
			t.Errorf("markdown output missing crop %q", name)
		}
	}
	if strings.Index(md, "### 1. Rice") > strings.Index(md, "### 2. Jute") {
		t.Error("recommendations not in rank order")
	}
}

func TestRenderMarkdown_Summary(t *testing.T) {
	md := RenderMarkdown(sampleResult())
	if !strings.Contains(md, "**Season:** Kharif") {
		t.Error("markdown missing season")
	}
	if !strings.Contains(md, "ok via openrouter/openai/gpt-oss-20b:free") {
		t.Error("markdown missing advisory provider")
	}
	if !strings.Contains(md, "| 1 | Rice | 41.72 | 2.67 | high | advisory |") {
		t.Error("markdown missing recommendation table row")
	}
	if !strings.Contains(md, "| pH | 5.5 | 6.5 | 7.5 |") {
		t.Error("markdown missing threshold row")
	}
}

func TestRenderMarkdown_FailureShown(t *testing.T) {
	result := sampleResult()
	result.Advisory = schema.AdvisoryStatus{State: schema.AdvisoryFailed, Failure: "timeout"}
	md := RenderMarkdown(result)
	if !strings.Contains(md, "failed (timeout)") {
		t.Error("markdown missing advisory failure reason")
	}
}

func TestRenderMarkdown_EscapesCells(t *testing.T) {
	result := sampleResult()
	result.Recommendations[0].Pros = "before|after\nnext"
	md := RenderMarkdown(result)
	if !strings.Contains(md, `before\|after next`) {
		t.Error("pipe or newline in pros not escaped")
	}
}

func TestRenderMarkdown_EmptyResult(t *testing.T) {
	md := RenderMarkdown(&schema.Result{Advisory: schema.AdvisoryStatus{State: schema.AdvisorySkipped}})
	if !strings.Contains(md, "skipped") {
		t.Error("markdown missing advisory state")
	}
	if strings.Contains(md, "## Recommendations") {
		t.Error("markdown should not contain Recommendations for empty slice")
	}
	if strings.Contains(md, "## Shortlist") {
		t.Error("markdown should not contain Shortlist for empty slice")
	}
}

func TestRenderHTML(t *testing.T) {
	out := string(RenderHTML(sampleResult()))
	if !strings.Contains(out, "<table>") {
		t.Error("html output missing table")
	}
	if !strings.Contains(out, "Recommendations</h2>") {
		t.Error("html output missing heading")
	}
	if !strings.Contains(out, "Paddy thrives at this rainfall.") {
		t.Error("html output missing reason")
	}
	if RenderHTML(nil) != nil {
		t.Error("expected nil html for nil result")
	}
}

func TestRenderHTML_DropsRawMarkup(t *testing.T) {
	r := sampleResult()
	r.Recommendations[0].Reason = "Good crop <script>alert(document.cookie)</script>"
	r.Recommendations[0].Pros = "<img src=x onerror=alert(1)>"
	r.Recommendations[0].Growth = "[details](javascript:alert(1))"
	r.Recommendations[1].Reason = "<script>alert(2)</script>"

	out := strings.ToLower(string(RenderHTML(r)))
	for _, bad := range []string{"<script", "<img", `href="javascript:`} {
		if strings.Contains(out, bad) {
			t.Errorf("html contains %q:\n%s", bad, out)
		}
	}
	if !strings.Contains(out, "good crop") {
		t.Error("expected surrounding advisory text to survive")
	}
}

func TestRenderJSON_NilResult(t *testing.T) {
	if _, err := RenderJSON(nil); err == nil {
		t.Error("expected error for nil result, got nil")
	}
}

func TestRenderMarkdown_NilResult(t *testing.T) {
	if got := RenderMarkdown(nil); got != "" {
		t.Errorf("expected empty string for nil result, got %q", got)
	}
}

func TestMdEscape(t *testing.T) {
	cases := []struct{ in, want string }{
		{"no pipes", "no pipes"},
		{"a|b", `a\|b`},
		{"a\r\nb", "a b"},
		{"", ""},
	}
	for _, c := range cases {
		if got := mdEscape(c.in); got != c.want {
			t.Errorf("mdEscape(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
