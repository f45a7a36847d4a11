// Package compiler drives the full per-macro-node lowering pipeline
// (§4.5): padding, tile/order search, DRAM address assignment, and
// systolic-array + PU instruction emission, producing one flat 32-bit
// instruction stream per graph. Grounded on
// original_source/dnnweaver2/compiler/__init__.py's GraphCompiler.
package compiler

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/dnncompile/dnncompile/internal/accel"
	"github.com/dnncompile/dnncompile/internal/costmodel"
	"github.com/dnncompile/dnncompile/internal/graph"
	"github.com/dnncompile/dnncompile/internal/isa"
	"github.com/dnncompile/dnncompile/internal/memmanager"
	"github.com/dnncompile/dnncompile/internal/optimizer"
	"github.com/dnncompile/dnncompile/internal/pucompiler"
	"github.com/dnncompile/dnncompile/internal/tensor"
)

// Compiler lowers a fused graph into an instruction stream for one
// accelerator spec.
type Compiler struct {
	Spec   accel.Spec
	Energy costmodel.EnergyCost
	Seed   uint64
	Log    *logrus.Logger

	alloc   *memmanager.Allocator
	tilings map[string]costmodel.Tiling
	orderOf map[string][]costmodel.LoopName

	// NodeStats records each compiled macro-node's chosen cost-model
	// Stats, keyed by its fused name; populated as Compile runs, read by
	// the `compile` command (per-node cycle log) and `bench` (per-graph
	// cycle/energy totals).
	NodeStats map[string]costmodel.Stats
}

// New builds a Compiler for spec; seed fixes the memory manager's gap
// sequence so repeated compiles of the same graph are reproducible.
func New(spec accel.Spec, energy costmodel.EnergyCost, seed uint64) *Compiler {
	log := logrus.New()
	log.SetLevel(logrus.InfoLevel)
	return &Compiler{
		Spec:    spec,
		Energy:  energy,
		Seed:    seed,
		Log:     log,
		alloc:     memmanager.New(seed),
		tilings:   make(map[string]costmodel.Tiling),
		orderOf:   make(map[string][]costmodel.LoopName),
		NodeStats: make(map[string]costmodel.Stats),
	}
}

// InstructionBlock pairs a macro-node's name with the words compiled
// for it, mirroring the source's InstructionBlock namedtuple.
type InstructionBlock struct {
	Name         string
	Instructions []uint32
}

// Compile fuses g's ops into macro-nodes, pads and addresses every
// tensor, searches each macro-node's tiling/ordering, and emits its
// instruction stream. It fails fast (§7) on the first error.
func (c *Compiler) Compile(ctx context.Context, g *graph.Graph) ([]InstructionBlock, error) {
	c.Log.Debug("combining graph ops to create macro nodes")
	nodes, err := graph.FuseMacroNodes(g)
	if err != nil {
		return nil, fmt.Errorf("compiler: %w", err)
	}
	c.Log.Debugf("fused %d macro nodes", len(nodes))

	for _, node := range nodes {
		if err := c.padMacroNode(g, node); err != nil {
			return nil, fmt.Errorf("compiler: padding macro node %s: %w", node.Head.Name, err)
		}
	}

	var blocks []InstructionBlock
	for i, node := range nodes {
		last := i == len(nodes)-1
		c.Log.Debugf("compiling macro node %s (last=%v)", node.Head.Name, last)

		tiling, ordering, err := c.optimizeTiling(ctx, g, node)
		if err != nil {
			return nil, fmt.Errorf("compiler: optimizing macro node %s: %w", node.Head.Name, err)
		}
		c.tilings[node.Head.Name] = tiling
		c.orderOf[node.Head.Name] = ordering

		if err := c.allocateTensors(g); err != nil {
			return nil, fmt.Errorf("compiler: allocating tensors: %w", err)
		}

		words, err := c.compileMacroNode(g, node, tiling, ordering, last)
		if err != nil {
			return nil, fmt.Errorf("compiler: emitting macro node %s: %w", node.Head.Name, err)
		}
		blocks = append(blocks, InstructionBlock{Name: node.Name(), Instructions: words})
	}

	return blocks, nil
}

// padMacroNode applies §4.5 step 1: pad input channels to a multiple of
// N, output channels to a multiple of M, combining additively with any
// pool pad already recorded on the pooled output tensor.
func (c *Compiler) padMacroNode(g *graph.Graph, node *graph.MacroNode) error {
	head := node.Head

	data, err := g.Tensor(head.Data)
	if err != nil {
		return err
	}
	weights, err := g.Tensor(head.Weights)
	if err != nil {
		return err
	}
	convOut, err := g.Tensor(head.Output)
	if err != nil {
		return err
	}

	ic := data.Shape[len(data.Shape)-1]
	icPadded := ceilDiv(ic, c.Spec.N) * c.Spec.N
	icPadding := icPadded - ic
	data.SetChannelPad(len(data.Shape)-1, icPadding)
	weights.SetChannelPad(len(weights.Shape)-1, icPadding)

	oc := weights.Shape[0]
	ocPadded := ceilDiv(oc, c.Spec.M) * c.Spec.M
	ocPadding := ocPadded - oc
	weights.SetChannelPad(0, ocPadding)
	convOut.SetChannelPad(len(convOut.Shape)-1, ocPadding)

	if bias, ok := ifExists(g, head.Bias); ok {
		bias.SetChannelPad(0, ocPadding)
	}

	if pool, ok := node.Pool(); ok {
		poolOut, err := g.Tensor(pool.Output)
		if err != nil {
			return err
		}
		poolOut.SetChannelPad(len(poolOut.Shape)-1, ocPadding)
	}

	return nil
}

func ifExists(g *graph.Graph, id tensor.TensorID) (*tensor.Descriptor, bool) {
	if id == graph.NoTensor {
		return nil, false
	}
	d, err := g.Tensor(id)
	if err != nil {
		return nil, false
	}
	return d, true
}

func (c *Compiler) optimizeTiling(ctx context.Context, g *graph.Graph, node *graph.MacroNode) (costmodel.Tiling, []costmodel.LoopName, error) {
	head := node.Head
	data, err := g.Tensor(head.Data)
	if err != nil {
		return nil, nil, err
	}
	weights, err := g.Tensor(head.Weights)
	if err != nil {
		return nil, nil, err
	}
	convOut, err := g.Tensor(head.Output)
	if err != nil {
		return nil, nil, err
	}

	fpgaWeights := weights.FPGAShape()
	fpgaData := data.FPGAShape()
	fpgaOut := convOut.FPGAShape()

	conv := costmodel.ConvParams{
		K:     fpgaWeights[1],
		O:     fpgaOut[len(fpgaOut)-2],
		S:     head.Stride,
		IC:    fpgaWeights[len(fpgaWeights)-1],
		OC:    fpgaWeights[0],
		B:     fpgaData[0],
		IPrec: data.Dtype.Bits(),
		WPrec: weights.Dtype.Bits(),
	}

	var poolParams *costmodel.PoolParams
	if pool, ok := node.Pool(); ok {
		poolParams = &costmodel.PoolParams{Kernel: pool.PoolKernel, Stride: pool.PoolStride}
	}

	result, err := optimizer.OptimizeForOrder(ctx, c.Spec, conv, c.Energy, poolParams)
	if err != nil {
		return nil, nil, err
	}
	c.NodeStats[node.Name()] = result.Stats

	// The systolic array parallelizes IC/OC directly; the inner KH/KW
	// loops are never tiled (§4.5 step 2).
	tiling := result.Tiling
	icTile := tiling[costmodel.LoopIC]
	icTile.TileSize = ceilDivInt(icTile.TileSize, c.Spec.N)
	tiling[costmodel.LoopIC] = icTile

	ocTile := tiling[costmodel.LoopOC]
	ocTile.TileSize = ceilDivInt(ocTile.TileSize, c.Spec.M)
	tiling[costmodel.LoopOC] = ocTile

	return tiling, result.Ordering, nil
}

func (c *Compiler) allocateTensors(g *graph.Graph) error {
	return c.alloc.AllocateAll(g.Tensors())
}

func (c *Compiler) compileMacroNode(g *graph.Graph, node *graph.MacroNode, tiling costmodel.Tiling, ordering []costmodel.LoopName, last bool) ([]uint32, error) {
	head := node.Head

	data, err := g.Tensor(head.Data)
	if err != nil {
		return nil, err
	}
	weights, err := g.Tensor(head.Weights)
	if err != nil {
		return nil, err
	}
	var bias *tensor.Descriptor
	if b, ok := ifExists(g, head.Bias); ok {
		bias = b
	}
	convOut, err := g.Tensor(head.Output)
	if err != nil {
		return nil, err
	}

	var words []uint32
	emit := func(w uint32, err error) error {
		if err != nil {
			return err
		}
		words = append(words, w)
		return nil
	}

	if err := emit(isa.Setup(16, 16)); err != nil {
		return nil, err
	}

	for _, slot := range []int{0, 1} {
		if err := emit(isa.BaseAddress(isa.IBUF, slot, data.Addr)); err != nil {
			return nil, err
		}
		if err := emit(isa.BaseAddress(isa.WBUF, slot, weights.Addr)); err != nil {
			return nil, err
		}
		if bias != nil {
			if err := emit(isa.BaseAddress(isa.BIAS, slot, bias.Addr)); err != nil {
				return nil, err
			}
		}
		if err := emit(isa.BaseAddress(isa.OBUF, slot, convOut.Addr)); err != nil {
			return nil, err
		}
	}

	outerWords, err := c.emitOuterLoops(tiling, ordering, data, weights, convOut, bias)
	if err != nil {
		return nil, err
	}
	words = append(words, outerWords...)

	tileShapes := buildTileShapes(tiling, data, weights, convOut, bias != nil, c.Spec.N, c.Spec.M)
	memWords, err := c.emitMemoryAccessLoops(tileShapes, data, weights, convOut, bias)
	if err != nil {
		return nil, err
	}
	words = append(words, memWords...)

	innerWords, err := c.emitInnerLoops(tileShapes)
	if err != nil {
		return nil, err
	}
	words = append(words, innerWords...)

	puWords, err := pucompiler.Compile(g, tiling, convOut, node.PostOps, c.Spec.M)
	if err != nil {
		return nil, err
	}
	words = append(words, puWords...)

	if err := emit(isa.BlockEnd(last)); err != nil {
		return nil, err
	}

	return words, nil
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

func ceilDivInt(a, b int) int { return ceilDiv(a, b) }
