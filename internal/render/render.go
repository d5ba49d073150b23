// Package render produces output from a fully assembled schema.Result.
package render

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"github.com/dshills/cropadvisor/internal/schema"
)

// RenderJSON produces a pretty-printed JSON representation of the result.
// The output round-trips through json.Unmarshal back to an equal Result.
func RenderJSON(result *schema.Result) ([]byte, error) {
	if result == nil {
		return nil, fmt.Errorf("render: nil result")
	}
	b, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("render: json marshal: %w", err)
	}
	return b, nil
}

// RenderMarkdown produces a GitHub-flavoured Markdown summary of the result.
// Every recommended crop appears in the output, in rank order.
func RenderMarkdown(result *schema.Result) string {
	if result == nil {
		return ""
	}
	var sb strings.Builder

	sb.WriteString("## Crop Recommendation\n\n")
	fmt.Fprintf(&sb, "**Season:** %s  \n", result.Input.Season)
	fmt.Fprintf(&sb, "**Advisory:** %s", result.Advisory.State)
	if result.Advisory.Failure != "" {
		fmt.Fprintf(&sb, " (%s)", result.Advisory.Failure)
	}
	if result.Advisory.Provider != "" {
		fmt.Fprintf(&sb, " via %s/%s", result.Advisory.Provider, result.Advisory.Model)
	}
	sb.WriteString("  \n")
	if result.RequestID != "" {
		fmt.Fprintf(&sb, "**Request:** `%s`\n", result.RequestID)
	}
	sb.WriteString("\n")

	if len(result.Recommendations) > 0 {
		sb.WriteString("## Recommendations\n\n")
		sb.WriteString("| Rank | Crop | Score | Yield (t/ha) | Confidence | Source |\n")
		sb.WriteString("|---|---|---|---|---|---|\n")
		for _, r := range result.Recommendations {
			fmt.Fprintf(&sb, "| %d | %s | %.2f | %.2f | %s | %s |\n",
				r.Rank, mdEscape(r.Name), r.Score, r.YieldEstimate, r.Confidence, r.Provenance)
		}
		sb.WriteString("\n")

		for _, r := range result.Recommendations {
			fmt.Fprintf(&sb, "### %d. %s\n\n", r.Rank, r.Name)
			fmt.Fprintf(&sb, "%s\n\n", mdEscape(r.Reason))
			fmt.Fprintf(&sb, "- **Pros:** %s\n", mdEscape(r.Pros))
			fmt.Fprintf(&sb, "- **Cons:** %s\n", mdEscape(r.Cons))
			fmt.Fprintf(&sb, "- **Growth:** %s\n\n", mdEscape(r.Growth))
			writeThresholds(&sb, r.Thresholds)
		}
	}

	if len(result.AlgorithmSelection) > 0 {
		sb.WriteString("## Shortlist\n\n")
		sb.WriteString("| Crop | Score | Seasons |\n")
		sb.WriteString("|---|---|---|\n")
		for _, c := range result.AlgorithmSelection {
			seasons := make([]string, len(c.Seasons))
			for i, s := range c.Seasons {
				seasons[i] = string(s)
			}
			fmt.Fprintf(&sb, "| %s | %.2f | %s |\n", mdEscape(c.Name), c.Score, strings.Join(seasons, ", "))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// RenderHTML converts the Markdown summary to an HTML fragment. Raw HTML in
// advisory text is dropped and only safe link schemes are rendered as links.
func RenderHTML(result *schema.Result) []byte {
	md := RenderMarkdown(result)
	if md == "" {
		return nil
	}
	p := parser.NewWithExtensions(parser.CommonExtensions)
	r := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags | html.SkipHTML | html.Safelink})
	return markdown.ToHTML([]byte(md), p, r)
}

// writeThresholds renders the agronomic ranges of one crop into sb.
func writeThresholds(sb *strings.Builder, t schema.Thresholds) {
	sb.WriteString("| Factor | Min | Optimum | Max |\n")
	sb.WriteString("|---|---|---|---|\n")
	for _, row := range []struct {
		label string
		r     schema.Range
	}{
		{"pH", t.PH},
		{"Rainfall (mm)", t.Rainfall},
		{"Moisture (%)", t.Moisture},
		{"Temperature (°C)", t.Temperature},
		{"Nitrogen", t.Nitrogen},
		{"Phosphorus", t.Phosphorus},
		{"Potassium", t.Potassium},
	} {
		fmt.Fprintf(sb, "| %s | %g | %g | %g |\n", row.label, row.r.Min, row.r.Opt, row.r.Max)
	}
	sb.WriteString("\n")
}

// mdEscape replaces characters that would break Markdown table cells.
func mdEscape(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", "")
	return s
}
