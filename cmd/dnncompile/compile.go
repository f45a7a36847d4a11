package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dnncompile/dnncompile/internal/compiler"
	"github.com/dnncompile/dnncompile/internal/config"
	"github.com/dnncompile/dnncompile/internal/costmodel"
	"github.com/dnncompile/dnncompile/internal/layout"
)

func newCompileCmd() *cobra.Command {
	var (
		graphPath  string
		accelPath  string
		outPath    string
		debugPath  string
		layoutPath string
		seed       uint64
	)

	cmd := &cobra.Command{
		Use:   "compile",
		Short: "Compile a graph description against an accelerator spec into an instruction binary",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if graphPath == "" || accelPath == "" || outPath == "" {
				return fmt.Errorf("--graph, --accel, and --out are required")
			}

			spec, err := config.LoadAccelSpec(accelPath)
			if err != nil {
				return err
			}
			g, err := config.LoadGraph(graphPath)
			if err != nil {
				return err
			}

			c := compiler.New(spec, costmodel.DefaultEnergyCost, seed)
			c.Log = log

			blocks, err := c.Compile(context.Background(), g)
			if err != nil {
				return fmt.Errorf("compile: %w", err)
			}

			var words []uint32
			for _, b := range blocks {
				words = append(words, b.Instructions...)
				log.Infof("macro-node %s: %d words, %d cycles", b.Name, len(b.Instructions), c.NodeStats[b.Name].TotalCycles)
			}

			if err := writeBinary(outPath, words); err != nil {
				return err
			}
			if debugPath != "" {
				if err := writeDebugText(debugPath, words); err != nil {
					return err
				}
			}
			if layoutPath != "" {
				plan, err := layout.Build(g.Tensors())
				if err != nil {
					return err
				}
				if err := writeLayout(layoutPath, plan); err != nil {
					return err
				}
			}

			log.Infof("compiled %d macro-nodes, %d total words", len(blocks), len(words))
			return nil
		},
	}

	cmd.Flags().StringVar(&graphPath, "graph", "", "path to the graph description YAML (required)")
	cmd.Flags().StringVar(&accelPath, "accel", "", "path to the accelerator spec YAML (required)")
	cmd.Flags().StringVar(&outPath, "out", "", "path to write the instruction binary (required)")
	cmd.Flags().StringVar(&debugPath, "debug-text", "", "optional path to write one decimal word per line")
	cmd.Flags().StringVar(&layoutPath, "layout", "", "optional path to write the tensor layout plan as JSON")
	cmd.Flags().Uint64Var(&seed, "seed", 1, "memory manager gap-allocation seed")

	return cmd
}

// writeBinary writes words as little-endian uint32s, atomically (§6: the
// debug side file is written "atomically next to the binary" — the same
// discipline applies to the binary itself).
func writeBinary(path string, words []uint32) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("compile: creating %s: %w", tmp, err)
	}
	buf := make([]byte, 4)
	for _, w := range words {
		binary.LittleEndian.PutUint32(buf, w)
		if _, err := f.Write(buf); err != nil {
			f.Close()
			os.Remove(tmp)
			return fmt.Errorf("compile: writing %s: %w", tmp, err)
		}
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("compile: closing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("compile: renaming %s to %s: %w", tmp, path, err)
	}
	return nil
}

func writeDebugText(path string, words []uint32) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("compile: creating %s: %w", tmp, err)
	}
	for _, w := range words {
		if _, err := fmt.Fprintf(f, "%d\n", w); err != nil {
			f.Close()
			os.Remove(tmp)
			return fmt.Errorf("compile: writing %s: %w", tmp, err)
		}
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("compile: closing %s: %w", tmp, err)
	}
	return os.Rename(tmp, path)
}

func writeLayout(path string, plan layout.Plan) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("compile: creating %s: %w", tmp, err)
	}
	if err := layout.WriteJSON(f, plan); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("compile: writing %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("compile: closing %s: %w", tmp, err)
	}
	return os.Rename(tmp, path)
}
