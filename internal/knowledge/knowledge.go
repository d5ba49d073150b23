// Package knowledge holds the static crop knowledge base: one optimum profile
// per crop, loaded once and never mutated afterwards.
package knowledge

import (
	_ "embed"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/dshills/cropadvisor/internal/schema"
)

//go:embed crops.yaml
var embeddedTable []byte

// Base is an immutable, ordered set of crop profiles keyed by name.
type Base struct {
	profiles []schema.CropProfile
	byName   map[string]int
	byFold   map[string]int
}

type document struct {
	Crops []schema.CropProfile `yaml:"crops"`
}

var (
	defaultOnce sync.Once
	defaultBase *Base
)

// Default returns the process-wide knowledge base built from the embedded
// table. The embedded table is part of the binary, so a parse failure panics.
func Default() *Base {
	defaultOnce.Do(func() {
		b, err := Parse(strings.NewReader(string(embeddedTable)))
		if err != nil {
			panic(eris.Wrap(err, "knowledge: embedded crop table"))
		}
		defaultBase = b
	})
	return defaultBase
}

// Load reads an alternate crop table from path.
func Load(path string) (*Base, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "knowledge: open %s", path)
	}
	defer f.Close()
	b, err := Parse(f)
	if err != nil {
		return nil, eris.Wrapf(err, "knowledge: %s", path)
	}
	return b, nil
}

// Parse decodes and validates a YAML crop table.
func Parse(r io.Reader) (*Base, error) {
	var doc document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, eris.Wrap(err, "knowledge: decode")
	}
	return New(doc.Crops)
}

// New builds a base from profiles after validating them. The slice is copied.
func New(profiles []schema.CropProfile) (*Base, error) {
	if len(profiles) == 0 {
		return nil, eris.New("knowledge: table has no crops")
	}
	b := &Base{
		profiles: make([]schema.CropProfile, 0, len(profiles)),
		byName:   make(map[string]int, len(profiles)),
		byFold:   make(map[string]int, len(profiles)),
	}
	for i, p := range profiles {
		if err := validateProfile(p); err != nil {
			return nil, eris.Wrapf(err, "knowledge: crop %d", i)
		}
		if _, dup := b.byName[p.Name]; dup {
			return nil, eris.Errorf("knowledge: duplicate crop %q", p.Name)
		}
		fold := strings.ToLower(p.Name)
		if _, dup := b.byFold[fold]; dup {
			return nil, eris.Errorf("knowledge: crop %q differs from another only by case", p.Name)
		}
		b.byName[p.Name] = len(b.profiles)
		b.byFold[fold] = len(b.profiles)
		b.profiles = append(b.profiles, clone(p))
	}
	return b, nil
}

func validateProfile(p schema.CropProfile) error {
	if strings.TrimSpace(p.Name) == "" {
		return eris.New("name is empty")
	}
	if len(p.Seasons) == 0 {
		return eris.Errorf("%s: no seasons", p.Name)
	}
	for _, s := range p.Seasons {
		if !s.Valid() {
			return eris.Errorf("%s: invalid season %q", p.Name, s)
		}
	}
	ranges := []struct {
		field string
		r     schema.Range
	}{
		{"ph", p.PH},
		{"rainfall", p.Rainfall},
		{"moisture", p.Moisture},
		{"temperature", p.Temperature},
		{"nutrients.n", p.Nutrients.N},
		{"nutrients.p", p.Nutrients.P},
		{"nutrients.k", p.Nutrients.K},
	}
	for _, rg := range ranges {
		if rg.r.Min > rg.r.Opt || rg.r.Opt > rg.r.Max {
			return eris.Errorf("%s: %s range must satisfy min <= opt <= max, got %v/%v/%v",
				p.Name, rg.field, rg.r.Min, rg.r.Opt, rg.r.Max)
		}
	}
	if p.BaselineYield < 0 {
		return eris.Errorf("%s: negative baseline yield", p.Name)
	}
	return nil
}

func clone(p schema.CropProfile) schema.CropProfile {
	p.Seasons = append([]schema.Season(nil), p.Seasons...)
	return p
}

// Profile returns the profile keyed exactly by name. Absence is reported via
// the boolean, never as an error.
func (b *Base) Profile(name string) (schema.CropProfile, bool) {
	i, ok := b.byName[name]
	if !ok {
		return schema.CropProfile{}, false
	}
	return clone(b.profiles[i]), true
}

// Lookup resolves a user-typed name case-insensitively.
func (b *Base) Lookup(name string) (schema.CropProfile, bool) {
	i, ok := b.byFold[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return schema.CropProfile{}, false
	}
	return clone(b.profiles[i]), true
}

// All returns every profile in table order.
func (b *Base) All() []schema.CropProfile {
	out := make([]schema.CropProfile, len(b.profiles))
	for i, p := range b.profiles {
		out[i] = clone(p)
	}
	return out
}

// Names returns every crop name in table order.
func (b *Base) Names() []string {
	out := make([]string, len(b.profiles))
	for i, p := range b.profiles {
		out[i] = p.Name
	}
	return out
}

// Len returns the number of crops.
func (b *Base) Len() int { return len(b.profiles) }
