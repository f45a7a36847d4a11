package pucompiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dnncompile/dnncompile/internal/costmodel"
	"github.com/dnncompile/dnncompile/internal/dtype"
	"github.com/dnncompile/dnncompile/internal/graph"
	"github.com/dnncompile/dnncompile/internal/isa"
	"github.com/dnncompile/dnncompile/internal/tensor"
)

type fakeGraph struct {
	tensors map[tensor.TensorID]*tensor.Descriptor
}

func (f *fakeGraph) Tensor(id tensor.TensorID) (*tensor.Descriptor, error) {
	return f.tensors[id], nil
}

func tiling(b, ow, oh, oc int) costmodel.Tiling {
	return costmodel.Tiling{
		costmodel.LoopB:  {NumTiles: 1, TileSize: b},
		costmodel.LoopOW: {NumTiles: 1, TileSize: ow},
		costmodel.LoopOH: {NumTiles: 1, TileSize: oh},
		costmodel.LoopIC: {NumTiles: 1, TileSize: 4},
		costmodel.LoopOC: {NumTiles: 1, TileSize: oc},
	}
}

func mustDesc(t *testing.T, name string, shape []int) *tensor.Descriptor {
	t.Helper()
	d, err := tensor.New(name, shape, dtype.FXP16, tensor.NoOp)
	require.NoError(t, err)
	require.NoError(t, d.SetAddr(1024))
	return d
}

func TestCompileNoPostOpsPushesDirectlyToST(t *testing.T) {
	convOut := mustDesc(t, "conv_out", []int{1, 4, 4, 8})
	g := &fakeGraph{tensors: map[tensor.TensorID]*tensor.Descriptor{}}

	prog, err := Compile(g, tiling(1, 4, 4, 8), convOut, nil, 4)
	require.NoError(t, err)
	require.NotEmpty(t, prog)

	last := isa.DecodeA(prog[len(prog)-1])
	assert.Equal(t, isa.BLOCKEND, last.Op)
	assert.Equal(t, uint32(1*4*4*8-1), last.Immediate)

	push := isa.DecodeB(prog[len(prog)-2])
	assert.Equal(t, isa.COMPUTER, push.Op)
	assert.Equal(t, isa.FnNOP, push.Fn)
	assert.Equal(t, uint32(isa.DestST), push.Dest)
}

func TestCompileMaxPoolRepeatCount(t *testing.T) {
	convOut := mustDesc(t, "conv_out", []int{1, 4, 4, 16})
	poolOut := mustDesc(t, "pool_out", []int{1, 2, 2, 16})

	g := &fakeGraph{tensors: map[tensor.TensorID]*tensor.Descriptor{
		1: poolOut,
	}}

	poolOp := &graph.Op{Name: "pool", Kind: graph.MaxPooling, Output: 1,
		PoolKernel: [4]int{1, 2, 2, 1}, PoolStride: [4]int{1, 2, 2, 1}}
	reluOp := &graph.Op{Name: "relu", Kind: graph.LeakyReLU, Output: 1}

	prog, err := Compile(g, tiling(1, 4, 4, 16), convOut, []*graph.Op{poolOp, reluOp}, 4)
	require.NoError(t, err)

	last := isa.DecodeA(prog[len(prog)-1])
	assert.Equal(t, isa.BLOCKEND, last.Op)
	// b * pool_ow * pool_oh * oc - 1 = 1*2*2*16 - 1
	assert.Equal(t, uint32(1*2*2*16-1), last.Immediate)
}

func TestCompileBatchNormAcquiresRegistersOncePerWindow(t *testing.T) {
	convOut := mustDesc(t, "conv_out", []int{1, 4, 4, 8})
	poolOut := mustDesc(t, "pool_out", []int{1, 2, 2, 8})
	mean := mustDesc(t, "mean", []int{8})
	scale := mustDesc(t, "scale", []int{8})

	g := &fakeGraph{tensors: map[tensor.TensorID]*tensor.Descriptor{
		1: poolOut,
		2: mean,
		3: scale,
	}}

	bnOp := &graph.Op{Name: "bn", Kind: graph.BatchNorm, Output: 0, Mean: 2, Scale: 3}
	poolOp := &graph.Op{Name: "pool", Kind: graph.MaxPooling, Output: 1,
		PoolKernel: [4]int{1, 2, 2, 1}, PoolStride: [4]int{1, 2, 2, 1}}

	prog, err := Compile(g, tiling(1, 4, 4, 8), convOut, []*graph.Op{bnOp, poolOp}, 4)
	require.NoError(t, err)

	// The four pool-window elements share one ld0 and one ld1 pop.
	ld0Pops, ld1Pops := 0, 0
	for _, word := range prog {
		f := isa.DecodeB(word)
		if f.Op != isa.COMPUTER || f.Fn != isa.FnNOP {
			continue
		}
		switch f.Src0 {
		case uint32(isa.SrcLD0):
			ld0Pops++
		case uint32(isa.SrcLD1):
			ld1Pops++
		}
	}
	assert.Equal(t, 1, ld0Pops)
	assert.Equal(t, 1, ld1Pops)
}
