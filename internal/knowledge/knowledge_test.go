package knowledge_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/cropadvisor/internal/knowledge"
	"github.com/dshills/cropadvisor/internal/schema"
)

func TestDefault_Table(t *testing.T) {
	kb := knowledge.Default()
	require.NotNil(t, kb)
	assert.Equal(t, 45, kb.Len())

	names := kb.Names()
	assert.Equal(t, "Rice", names[0])
	assert.Equal(t, "Wheat", names[1])
	assert.Equal(t, "Orange", names[len(names)-1])

	for _, p := range kb.All() {
		assert.NotEmpty(t, p.Seasons, "%s has no seasons", p.Name)
		assert.GreaterOrEqual(t, p.BaselineYield, 0.0, p.Name)
		assert.LessOrEqual(t, p.PH.Min, p.PH.Opt, p.Name)
		assert.LessOrEqual(t, p.PH.Opt, p.PH.Max, p.Name)
	}
}

func TestDefault_Singleton(t *testing.T) {
	assert.Same(t, knowledge.Default(), knowledge.Default())
}

func TestProfile_Rice(t *testing.T) {
	p, ok := knowledge.Default().Profile("Rice")
	require.True(t, ok)
	assert.Equal(t, []schema.Season{schema.SeasonKharif}, p.Seasons)
	assert.Equal(t, schema.Range{Min: 5, Opt: 6.5, Max: 7.5}, p.PH)
	assert.Equal(t, schema.Range{Min: 800, Opt: 1200, Max: 2500}, p.Rainfall)
	assert.Equal(t, 2, p.Priority)
	assert.Equal(t, 5.5, p.BaselineYield)
}

func TestProfile_AbsentIsNotAnError(t *testing.T) {
	_, ok := knowledge.Default().Profile("Quinoa")
	assert.False(t, ok)
	_, ok = knowledge.Default().Profile("rice")
	assert.False(t, ok, "Profile is an exact-key lookup")
}

func TestLookup_CaseInsensitive(t *testing.T) {
	p, ok := knowledge.Default().Lookup("  bitter gourd ")
	require.True(t, ok)
	assert.Equal(t, "Bitter Gourd", p.Name)
}

func TestAccessorsReturnCopies(t *testing.T) {
	kb := knowledge.Default()
	p, ok := kb.Profile("Maize")
	require.True(t, ok)
	p.Seasons[0] = schema.SeasonSummer
	p.PH.Opt = 99

	again, _ := kb.Profile("Maize")
	assert.NotEqual(t, schema.SeasonSummer, again.Seasons[0])
	assert.NotEqual(t, 99.0, again.PH.Opt)

	all := kb.All()
	all[0].Name = "Mutated"
	assert.Equal(t, "Rice", kb.Names()[0])
}

const validTable = `crops:
  - name: Millet
    seasons: [Kharif]
    ph: {min: 5, opt: 6, max: 7}
    rainfall: {min: 300, opt: 500, max: 800}
    moisture: {min: 20, opt: 40, max: 60}
    temperature: {min: 20, opt: 28, max: 35}
    nutrients:
      n: {min: 20, opt: 40, max: 60}
      p: {min: 10, opt: 20, max: 30}
      k: {min: 10, opt: 20, max: 30}
    priority: 1
    baseline_yield: 1.5
`

func TestParse_Valid(t *testing.T) {
	kb, err := knowledge.Parse(strings.NewReader(validTable))
	require.NoError(t, err)
	assert.Equal(t, []string{"Millet"}, kb.Names())
}

func TestParse_Rejects(t *testing.T) {
	cases := []struct {
		name  string
		table string
	}{
		{"empty", "crops: []\n"},
		{"bad season", strings.Replace(validTable, "[Kharif]", "[Zaid]", 1)},
		{"no season", strings.Replace(validTable, "[Kharif]", "[]", 1)},
		{"inverted range", strings.Replace(validTable, "ph: {min: 5, opt: 6, max: 7}", "ph: {min: 8, opt: 6, max: 7}", 1)},
		{"negative yield", strings.Replace(validTable, "baseline_yield: 1.5", "baseline_yield: -1", 1)},
		{"duplicate", validTable + strings.TrimPrefix(validTable, "crops:\n")},
		{"unknown field", strings.Replace(validTable, "priority: 1", "priority: 1\n    colour: green", 1)},
		{"not yaml", "crops: [\n"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := knowledge.Parse(strings.NewReader(c.table))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crops.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validTable), 0o600))

	kb, err := knowledge.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1, kb.Len())

	_, err = knowledge.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
