package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dshills/cropadvisor/internal/conditions"
	"github.com/dshills/cropadvisor/internal/config"
	"github.com/dshills/cropadvisor/internal/knowledge"
)

func newCropsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crops [name]",
		Short: "List the knowledge base, or show one crop's profile",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			return runCrops(cfg, name, cmd.OutOrStdout())
		},
	}
}

func runCrops(c *config.Config, name string, w io.Writer) error {
	kb := knowledge.Default()
	if c != nil && c.Knowledge.Path != "" {
		loaded, err := knowledge.Load(c.Knowledge.Path)
		if err != nil {
			return classify(err)
		}
		kb = loaded
	}

	if name != "" {
		p, ok := kb.Lookup(name)
		if !ok {
			return classify(&conditions.ValidationError{Field: "name", Message: fmt.Sprintf("unknown crop %q", name)})
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return classify(enc.Encode(p))
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSEASONS\tPRIORITY\tBASELINE (t/ha)")
	for _, p := range kb.All() {
		seasons := make([]string, len(p.Seasons))
		for i, s := range p.Seasons {
			seasons[i] = string(s)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%.2f\n", p.Name, strings.Join(seasons, ","), p.Priority, p.BaselineYield)
	}
	return tw.Flush()
}
