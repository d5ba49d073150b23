package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dshills/cropadvisor/internal/config"
	"github.com/dshills/cropadvisor/internal/guidance"
)

type guidanceFlags struct {
	crop  string
	stage string
	n     float64
	p     float64
	k     float64
	// set records which nutrient flags were given; unset ones stay absent.
	set map[string]bool
}

func (f guidanceFlags) request() guidance.Request {
	req := guidance.Request{Crop: f.crop, GrowthStage: f.stage, Soil: &guidance.Soil{}}
	if f.set["n"] {
		req.Soil.N = &f.n
	}
	if f.set["p"] {
		req.Soil.P = &f.p
	}
	if f.set["k"] {
		req.Soil.K = &f.k
	}
	return req
}

func newGuidanceCmd() *cobra.Command {
	var f guidanceFlags
	cmd := &cobra.Command{
		Use:   "guidance",
		Short: "Fertiliser, pest-control and precaution advice for one crop",
		RunE: func(cmd *cobra.Command, args []string) error {
			f.set = map[string]bool{
				"n": cmd.Flags().Changed("n"),
				"p": cmd.Flags().Changed("p"),
				"k": cmd.Flags().Changed("k"),
			}
			return runGuidance(cmd.Context(), cfg, f.request(), cmd.OutOrStdout())
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.crop, "crop", "", "crop name from the knowledge base")
	fl.StringVar(&f.stage, "stage", "", "growth stage, e.g. tillering")
	fl.Float64Var(&f.n, "n", 0, "soil nitrogen (kg/ha)")
	fl.Float64Var(&f.p, "p", 0, "soil phosphorus (kg/ha)")
	fl.Float64Var(&f.k, "k", 0, "soil potassium (kg/ha)")
	return cmd
}

func runGuidance(ctx context.Context, c *config.Config, req guidance.Request, w io.Writer) error {
	a, err := newApp(c, zap.L())
	if err != nil {
		return classify(err)
	}
	advice, err := a.guidance.Advise(ctx, req)
	if err != nil {
		return classify(err)
	}
	b, err := json.MarshalIndent(advice, "", "  ")
	if err != nil {
		return classify(eris.Wrap(err, "marshal advice"))
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
