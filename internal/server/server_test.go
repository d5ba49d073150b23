package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dshills/cropadvisor/internal/engine"
	"github.com/dshills/cropadvisor/internal/guidance"
	"github.com/dshills/cropadvisor/internal/irrigation"
	"github.com/dshills/cropadvisor/internal/profile"
	"github.com/dshills/cropadvisor/internal/schema"
)

type stubCompleter struct{ reply string }

func (s stubCompleter) Complete(context.Context, string, string) (string, error) {
	return s.reply, nil
}

func (s stubCompleter) ProviderName() string { return "stub" }
func (s stubCompleter) Model() string        { return "stub-model" }

func newTestServer(t *testing.T, opts Options) *Server {
	t.Helper()
	eng := engine.New(nil, engine.DefaultConfig(), nil, zap.NewNop())
	prof, err := profile.Load("")
	require.NoError(t, err)
	guide := guidance.NewService(nil, stubCompleter{reply: `{"fertilizer":"Apply FYM"}`}, prof, nil)
	irr := irrigation.NewService(nil, stubCompleter{reply: `{"need_irrigation":true,"recommended_mm":35}`}, prof, nil)
	return New(eng, guide, irr, opts, zap.NewNop())
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestPing(t *testing.T) {
	rec := do(t, newTestServer(t, Options{}), http.MethodGet, "/api/ping", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 45, body["crops"])
}

func TestCrops(t *testing.T) {
	s := newTestServer(t, Options{})

	rec := do(t, s, http.MethodGet, "/api/crops", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var all []schema.CropProfile
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	assert.Len(t, all, 45)

	rec = do(t, s, http.MethodGet, "/api/crops/rice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var rice schema.CropProfile
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rice))
	assert.Equal(t, "Rice", rice.Name)

	rec = do(t, s, http.MethodGet, "/api/crops/dragonfruit", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPredict(t *testing.T) {
	body := `{"ph":6.5,"rainfall":1100,"moisture":75,"temperature":27,"nitrogen":90,"phosphorus":55,"potassium":55,"season":"Kharif"}`
	rec := do(t, newTestServer(t, Options{}), http.MethodPost, "/api/crop/predict", body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var res schema.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Len(t, res.Recommendations, 3)
	assert.Equal(t, "Rice", res.Recommendations[0].Name)
	assert.Equal(t, schema.ProvenanceFallback, res.Recommendations[0].Provenance)
	assert.Equal(t, schema.AdvisorySkipped, res.Advisory.State)
	assert.Len(t, res.AlgorithmSelection, 7)
}

func TestPredict_EmptyBody(t *testing.T) {
	rec := do(t, newTestServer(t, Options{}), http.MethodPost, "/api/crop/predict", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var res schema.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, schema.SeasonKharif, res.Input.Season)
	assert.NotEmpty(t, res.Recommendations)
}

func TestPredict_Formats(t *testing.T) {
	s := newTestServer(t, Options{})

	rec := do(t, s, http.MethodPost, "/api/crop/predict?format=markdown", `{"season":"Rabi"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/markdown")
	assert.Contains(t, rec.Body.String(), "## Recommendations")

	rec = do(t, s, http.MethodPost, "/api/crop/predict?format=html", `{"season":"Rabi"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "<table>")
}

func TestPredict_ValidationFaults(t *testing.T) {
	cases := []struct {
		name  string
		body  string
		field string
	}{
		{"non-numeric", `{"ph":"acidic"}`, "ph"},
		{"negative", `{"nitrogen":-4}`, "nitrogen"},
		{"malformed", `{"ph":`, "body"},
		{"array", `[{"ph":6},{"ph":7}]`, "body"},
	}
	s := newTestServer(t, Options{})
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			rec := do(t, s, http.MethodPost, "/api/crop/predict", c.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)

			var body errorBody
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, c.field, body.Field)
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestPredict_BodyTooLarge(t *testing.T) {
	s := newTestServer(t, Options{MaxBodyBytes: 16})
	rec := do(t, s, http.MethodPost, "/api/crop/predict", `{"ph":6.5,"rainfall":1100,"moisture":75}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestGuidance(t *testing.T) {
	s := newTestServer(t, Options{})
	rec := do(t, s, http.MethodPost, "/api/hybrid/recommend",
		`{"crop":"wheat","growth_stage":"tillering","soil":{"n":80,"p":40,"k":30}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var advice guidance.Advice
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &advice))
	assert.Equal(t, "Wheat", advice.Crop)
	assert.Equal(t, "Apply FYM", advice.Fertilizer)
	assert.Equal(t, guidance.FallbackPestControl, advice.PestControl)
	assert.Equal(t, schema.ProvenanceAdvisory, advice.Source)
}

func TestGuidance_ValidationFaults(t *testing.T) {
	s := newTestServer(t, Options{})
	cases := []struct {
		body  string
		field string
	}{
		{`{"crop":"wheat","growth_stage":"tillering"}`, "soil"},
		{`{"crop":"kale","growth_stage":"tillering","soil":{"n":1,"p":1,"k":1}}`, "crop"},
		{`not json`, "body"},
	}
	for _, c := range cases {
		rec := do(t, s, http.MethodPost, "/api/hybrid/recommend", c.body)
		require.Equal(t, http.StatusBadRequest, rec.Code, c.body)
		var body errorBody
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, c.field, body.Field, c.body)
	}
}

func TestAdviceServices_NotConfigured(t *testing.T) {
	eng := engine.New(nil, engine.DefaultConfig(), nil, nil)
	s := New(eng, nil, nil, Options{}, nil)
	for _, path := range []string{"/api/hybrid/recommend", "/api/irrigation/advice"} {
		rec := do(t, s, http.MethodPost, path, `{}`)
		assert.Equal(t, http.StatusNotImplemented, rec.Code, path)
	}
}

func TestIrrigation(t *testing.T) {
	s := newTestServer(t, Options{})
	rec := do(t, s, http.MethodPost, "/api/irrigation/advice", `{"soil_type":"sandy","crop":"wheat","moisture":30}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var advice irrigation.Advice
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &advice))
	assert.Equal(t, "Wheat", advice.Crop)
	assert.True(t, advice.NeedIrrigation)
	assert.Equal(t, 35.0, advice.RecommendedMM)
	assert.Equal(t, schema.ProvenanceAdvisory, advice.Source)
}

func TestIrrigation_ValidationFaults(t *testing.T) {
	s := newTestServer(t, Options{})
	cases := []struct{ body, field string }{
		{`{"soil_type":"sandy","crop":"wheat"}`, "moisture"},
		{`{"soil_type":"sandy","crop":"wheat","moisture":140}`, "moisture"},
		{`{"crop":"wheat","moisture":30}`, "soil_type"},
		{`{"soil_type":"sandy","crop":"kale","moisture":30}`, "crop"},
		{`{"soil_type":`, "body"},
	}
	for _, c := range cases {
		rec := do(t, s, http.MethodPost, "/api/irrigation/advice", c.body)
		require.Equal(t, http.StatusBadRequest, rec.Code, c.body)
		var body errorBody
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, c.field, body.Field, c.body)
	}
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, Options{CORSOrigins: []string{"https://farm.example"}})
	req := httptest.NewRequest(http.MethodOptions, "/api/crop/predict", nil)
	req.Header.Set("Origin", "https://farm.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "https://farm.example", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestUnknownRoute(t *testing.T) {
	rec := do(t, newTestServer(t, Options{}), http.MethodGet, "/api/nothing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	s := newTestServer(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
