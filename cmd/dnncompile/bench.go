package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dnncompile/dnncompile/internal/compiler"
	"github.com/dnncompile/dnncompile/internal/config"
	"github.com/dnncompile/dnncompile/internal/costmodel"
)

func newBenchCmd() *cobra.Command {
	var (
		dir  string
		seed uint64
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Run the optimizer over a directory of graph/accel-spec pairs and report cycles and energy",
		RunE: func(cmd *cobra.Command, _ []string) error {
			entries, err := os.ReadDir(dir)
			if err != nil {
				return fmt.Errorf("bench: reading %s: %w", dir, err)
			}

			graphs := map[string]string{}
			accels := map[string]string{}
			for _, e := range entries {
				name := e.Name()
				switch {
				case strings.HasSuffix(name, ".graph.yaml"):
					graphs[strings.TrimSuffix(name, ".graph.yaml")] = filepath.Join(dir, name)
				case strings.HasSuffix(name, ".accel.yaml"):
					accels[strings.TrimSuffix(name, ".accel.yaml")] = filepath.Join(dir, name)
				}
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tNODES\tCYCLES\tENERGY")

			for base, graphPath := range graphs {
				accelPath, ok := accels[base]
				if !ok {
					log.Warnf("bench: %s has no matching .accel.yaml, skipping", base)
					continue
				}

				spec, err := config.LoadAccelSpec(accelPath)
				if err != nil {
					log.Warnf("bench: %s: %v", base, err)
					continue
				}
				g, err := config.LoadGraph(graphPath)
				if err != nil {
					log.Warnf("bench: %s: %v", base, err)
					continue
				}

				c := compiler.New(spec, costmodel.DefaultEnergyCost, seed)
				if _, err := c.Compile(context.Background(), g); err != nil {
					log.Warnf("bench: %s: %v", base, err)
					continue
				}

				var totalCycles uint64
				var totalEnergy float64
				for _, st := range c.NodeStats {
					totalCycles += st.TotalCycles
					totalEnergy += st.Energy(costmodel.DefaultEnergyCost)
				}
				fmt.Fprintf(w, "%s\t%d\t%d\t%.3f\n", base, len(c.NodeStats), totalCycles, totalEnergy)
			}

			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "directory containing <name>.graph.yaml/<name>.accel.yaml pairs (required)")
	cmd.Flags().Uint64Var(&seed, "seed", 1, "memory manager gap-allocation seed")
	cmd.MarkFlagRequired("dir")

	return cmd
}
