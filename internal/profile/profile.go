// Package profile defines advisory profiles that modulate prompt construction.
// Each profile provides a SystemPromptAddendum that is appended to the system
// prompt sent to the advisory service.
package profile

import (
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// Profile describes the agronomic context the advisory service writes for.
type Profile struct {
	Name                 string
	Description          string
	SystemPromptAddendum string
	// OrganicFirst, when true, asks for organic and IPM measures before any
	// synthetic input in both crop and crop-care guidance.
	OrganicFirst bool
}

// DefaultName is the profile used when none is configured.
const DefaultName = "india"

// builtins is the registry of built-in profiles keyed by name.
var builtins = map[string]Profile{
	"general": {
		Name:        "general",
		Description: "Region-neutral agronomy; plain language for growers.",
		SystemPromptAddendum: "Write for a smallholder grower in plain language. Keep each " +
			"reason to one sentence. Do not invent measurements that were not supplied; " +
			"when an input is missing, say so in the reason and lower the confidence.",
		OrganicFirst: false,
	},
	"india": {
		Name:        "india",
		Description: "Indian farming context with Kharif/Rabi seasons and organic-first IPM.",
		SystemPromptAddendum: "You are a senior Indian agronomist. Use the Indian farming " +
			"context: Kharif, Rabi and Zaid practice, locally available inputs (urea, DAP, MOP, " +
			"FYM, vermicompost) and common regional pests. Follow IPM principles: organic " +
			"first, chemical only if pest pressure exceeds the economic threshold.",
		OrganicFirst: true,
	},
	"organic": {
		Name:        "organic",
		Description: "Certified-organic production; no synthetic fertiliser or pesticide.",
		SystemPromptAddendum: "The grower farms under organic certification. Never recommend " +
			"synthetic fertiliser or synthetic pesticide. Prefer green manure, compost, bio-" +
			"fertilisers, crop rotation and botanical pest control, and list any certification " +
			"risk under cons.",
		OrganicFirst: true,
	},
}

// Names returns the built-in profile names in sorted order.
func Names() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Load returns the named built-in profile or an error if the name is unknown.
// An empty name selects DefaultName.
func Load(name string) (Profile, error) {
	if name == "" {
		name = DefaultName
	}
	p, ok := builtins[strings.ToLower(name)]
	if !ok {
		return Profile{}, eris.Errorf("profile: unknown profile %q (available: %s)", name, strings.Join(Names(), ", "))
	}
	return p, nil
}
