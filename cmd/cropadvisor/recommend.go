package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/cropadvisor/internal/conditions"
	"github.com/dshills/cropadvisor/internal/config"
	"github.com/dshills/cropadvisor/internal/render"
	"github.com/dshills/cropadvisor/internal/schema"
)

// recommendFlags holds the parsed flags for the recommend command. Numeric
// conditions are kept as text so they go through the same validation as HTTP
// requests; an empty value means absent.
type recommendFlags struct {
	nitrogen    string
	phosphorus  string
	potassium   string
	ph          string
	moisture    string
	temperature string
	rainfall    string
	season      string
	input       string
	format      string
	out         string
}

func newRecommendCmd() *cobra.Command {
	var f recommendFlags
	cmd := &cobra.Command{
		Use:   "recommend",
		Short: "Recommend crops for the given soil and climate conditions",
		Long: "Scores every crop against the conditions, asks the advisory service about the shortlist " +
			"and prints the ranked recommendations. --input reads one JSON object or an array of objects " +
			"(\"-\" for stdin); arrays are processed concurrently.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecommend(cmd.Context(), cfg, f, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.nitrogen, "nitrogen", "", "soil nitrogen (kg/ha)")
	fl.StringVar(&f.phosphorus, "phosphorus", "", "soil phosphorus (kg/ha)")
	fl.StringVar(&f.potassium, "potassium", "", "soil potassium (kg/ha)")
	fl.StringVar(&f.ph, "ph", "", "soil pH")
	fl.StringVar(&f.moisture, "moisture", "", "soil moisture (%)")
	fl.StringVar(&f.temperature, "temperature", "", "mean temperature (°C)")
	fl.StringVar(&f.rainfall, "rainfall", "", "seasonal rainfall (mm)")
	fl.StringVar(&f.season, "season", "", seasonUsage())
	fl.StringVar(&f.input, "input", "", "JSON file with one request object or an array of them")
	fl.StringVar(&f.format, "format", "json", "output format: json, markdown or html")
	fl.StringVar(&f.out, "out", "", "write output to this file instead of stdout")
	return cmd
}

// seasonUsage lists the accepted seasons for the --season help text.
func seasonUsage() string {
	names := make([]string, len(schema.Seasons))
	for i, s := range schema.Seasons {
		names[i] = string(s)
	}
	return fmt.Sprintf("%s (default %s)", strings.Join(names, ", "), schema.DefaultSeason)
}

// flagObjects turns the condition flags into one request mapping.
func (f recommendFlags) flagObjects() []map[string]any {
	raw := map[string]any{}
	for key, val := range map[string]string{
		conditions.FieldNitrogen:    f.nitrogen,
		conditions.FieldPhosphorus:  f.phosphorus,
		conditions.FieldPotassium:   f.potassium,
		conditions.FieldPH:          f.ph,
		conditions.FieldMoisture:    f.moisture,
		conditions.FieldTemperature: f.temperature,
		conditions.FieldRainfall:    f.rainfall,
		conditions.FieldSeason:      f.season,
	} {
		if strings.TrimSpace(val) != "" {
			raw[key] = val
		}
	}
	return []map[string]any{raw}
}

func runRecommend(ctx context.Context, c *config.Config, f recommendFlags, stdin io.Reader, stdout io.Writer) error {
	switch f.format {
	case "json", "markdown", "html":
	default:
		return &exitError{code: exitCodeBadInput, err: fmt.Errorf("unknown format %q", f.format)}
	}

	objs, batch, err := readRequests(f, stdin)
	if err != nil {
		return classify(err)
	}

	a, err := newApp(c, zap.L())
	if err != nil {
		return classify(err)
	}

	results := make([]*schema.Result, len(objs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.Batch.Concurrency)
	for i, raw := range objs {
		g.Go(func() error {
			res, err := a.engine.RecommendRaw(gctx, raw)
			if err != nil {
				if batch {
					return fmt.Errorf("request %d: %w", i, err)
				}
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return classify(err)
	}

	w := stdout
	if f.out != "" {
		file, err := os.Create(f.out)
		if err != nil {
			return classify(eris.Wrap(err, "create output file"))
		}
		defer file.Close()
		w = file
	}
	return classify(writeResults(w, results, batch, f.format))
}

// readRequests returns the request mappings and whether they came from a
// JSON array.
func readRequests(f recommendFlags, stdin io.Reader) ([]map[string]any, bool, error) {
	if f.input == "" {
		return f.flagObjects(), false, nil
	}

	var r io.Reader = stdin
	if f.input != "-" {
		file, err := os.Open(f.input)
		if err != nil {
			return nil, false, &conditions.ValidationError{Field: "input", Message: err.Error()}
		}
		defer file.Close()
		r = file
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, false, eris.Wrap(err, "read input")
	}
	objs, err := conditions.ReadObjects(strings.NewReader(string(data)))
	if err != nil {
		return nil, false, err
	}
	batch := strings.HasPrefix(strings.TrimSpace(string(data)), "[")
	if len(objs) == 0 && !batch {
		objs = []map[string]any{{}}
	}
	return objs, batch, nil
}

func writeResults(w io.Writer, results []*schema.Result, batch bool, format string) error {
	switch format {
	case "markdown":
		for i, res := range results {
			if i > 0 {
				io.WriteString(w, "\n---\n\n")
			}
			io.WriteString(w, render.RenderMarkdown(res))
		}
		return nil
	case "html":
		for _, res := range results {
			w.Write(render.RenderHTML(res))
		}
		return nil
	}

	if !batch {
		b, err := render.RenderJSON(results[0])
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(b))
		return err
	}
	b, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return eris.Wrap(err, "marshal results")
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
