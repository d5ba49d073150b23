package advisory

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dshills/cropadvisor/internal/profile"
	"github.com/dshills/cropadvisor/internal/schema"
)

// BuildSystemPrompt assembles the system prompt for crop advice.
func BuildSystemPrompt(prof profile.Profile) string {
	var sb strings.Builder

	sb.WriteString("You are an agriculture expert advising growers on crop choice.\n\n")

	sb.WriteString("Output ONLY valid JSON conforming to the schema below. " +
		"No prose, no markdown, no explanation outside the JSON.\n\n")

	sb.WriteString("Only describe crops named in the CANDIDATES list, using their names exactly as written. " +
		"Never introduce another crop. Do not state yields or numeric thresholds; " +
		"they are computed locally.\n\n")

	if prof.OrganicFirst {
		sb.WriteString("Prefer organic inputs and integrated pest management; " +
			"mention chemical control only as a last resort.\n\n")
	}

	if prof.SystemPromptAddendum != "" {
		sb.WriteString(prof.SystemPromptAddendum)
		sb.WriteString("\n\n")
	}

	sb.WriteString(outputSchema)

	return sb.String()
}

// outputSchema is the JSON schema fragment shown to the service.
const outputSchema = `Output schema (JSON array only):
[
  {
    "name": "<crop name from CANDIDATES>",
    "reason": "<one-sentence primary reason>",
    "pros": "<2-3 pros separated by '; '>",
    "cons": "<2-3 cons separated by '; '>",
    "growth": "<sowing window; key growth stages; harvest timing>",
    "confidence": "low|medium|high"
  }
]
`

// BuildUserPrompt assembles the user prompt: the ranked candidates with their
// local scores and the raw input conditions.
func BuildUserPrompt(shortlist []schema.ScoredCandidate, input schema.InputConditions, count int) string {
	var sb strings.Builder

	sb.WriteString("CANDIDATES (ranked by local suitability score):\n")
	for i, c := range shortlist {
		fmt.Fprintf(&sb, "  %d. %s (score %.2f)\n", i+1, c.Name, c.Score)
	}

	sb.WriteString("\nINPUT CONDITIONS (null means not measured):\n")
	b, err := json.MarshalIndent(input, "", "  ")
	if err != nil {
		// Only non-finite floats fail to marshal; validation rejects them.
		b = []byte("{}")
	}
	sb.Write(b)

	n := count
	if n > len(shortlist) {
		n = len(shortlist)
	}
	fmt.Fprintf(&sb, "\n\nReturn a JSON array with exactly %d objects, one for each of the first %d candidates, in the same order.", n, n)

	return sb.String()
}
