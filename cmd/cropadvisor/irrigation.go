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
	"github.com/dshills/cropadvisor/internal/irrigation"
)

type irrigationFlags struct {
	crop     string
	soilType string
	moisture float64
	// moistureSet is false when --moisture was not given.
	moistureSet bool
}

func (f irrigationFlags) request() irrigation.Request {
	req := irrigation.Request{Crop: f.crop, SoilType: f.soilType}
	if f.moistureSet {
		req.Moisture = &f.moisture
	}
	return req
}

func newIrrigationCmd() *cobra.Command {
	var f irrigationFlags
	cmd := &cobra.Command{
		Use:   "irrigation",
		Short: "Irrigation advice for one crop from soil type and current moisture",
		RunE: func(cmd *cobra.Command, args []string) error {
			f.moistureSet = cmd.Flags().Changed("moisture")
			return runIrrigation(cmd.Context(), cfg, f.request(), cmd.OutOrStdout())
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.crop, "crop", "", "crop name from the knowledge base")
	fl.StringVar(&f.soilType, "soil-type", "", "soil type, e.g. clay loam")
	fl.Float64Var(&f.moisture, "moisture", 0, "current soil moisture (%)")
	return cmd
}

func runIrrigation(ctx context.Context, c *config.Config, req irrigation.Request, w io.Writer) error {
	a, err := newApp(c, zap.L())
	if err != nil {
		return classify(err)
	}
	advice, err := a.irrigation.Advise(ctx, req)
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
