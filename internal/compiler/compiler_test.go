package compiler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dnncompile/dnncompile/internal/accel"
	"github.com/dnncompile/dnncompile/internal/costmodel"
	"github.com/dnncompile/dnncompile/internal/dtype"
	"github.com/dnncompile/dnncompile/internal/graph"
	"github.com/dnncompile/dnncompile/internal/isa"
	"github.com/dnncompile/dnncompile/internal/memmanager"
	"github.com/dnncompile/dnncompile/internal/tensor"
)

func testSpec() accel.Spec {
	return accel.Spec{
		N: 4, M: 4,
		IBUFBytes:     256 * 1024,
		WBUFBytes:     256 * 1024,
		OBUFBytes:     256 * 1024,
		BBUFBytes:     16 * 1024,
		DRAMWidthBits: 256,
	}
}

func TestCompileSampleNetworkProducesWellFormedBlocks(t *testing.T) {
	g, err := graph.SampleNetwork()
	require.NoError(t, err)

	c := New(testSpec(), costmodel.DefaultEnergyCost, 1)
	blocks, err := c.Compile(context.Background(), g)
	require.NoError(t, err)
	require.NotEmpty(t, blocks)

	for i, block := range blocks {
		require.NotEmpty(t, block.Instructions, "block %s", block.Name)

		first := isa.DecodeA(block.Instructions[0])
		assert.Equal(t, isa.SETUP, first.Op, "block %s must open with SETUP", block.Name)

		last := isa.DecodeA(block.Instructions[len(block.Instructions)-1])
		assert.Equal(t, isa.BLOCKEND, last.Op, "block %s must close with BLOCK_END", block.Name)

		wantLast := i == len(blocks)-1
		gotLast := last.Immediate == 1
		assert.Equal(t, wantLast, gotLast, "block %s BLOCK_END.last flag", block.Name)
	}

	require.NoError(t, memmanager.CheckNonOverlapping(g.Tensors()))
}

func TestCompileIsDeterministicForSameSeed(t *testing.T) {
	g1, err := graph.SampleNetwork()
	require.NoError(t, err)
	g2, err := graph.SampleNetwork()
	require.NoError(t, err)

	blocks1, err := New(testSpec(), costmodel.DefaultEnergyCost, 7).Compile(context.Background(), g1)
	require.NoError(t, err)
	blocks2, err := New(testSpec(), costmodel.DefaultEnergyCost, 7).Compile(context.Background(), g2)
	require.NoError(t, err)

	require.Len(t, blocks2, len(blocks1))
	for i := range blocks1 {
		assert.Equal(t, blocks1[i].Instructions, blocks2[i].Instructions, "block %d diverged across identical seeds", i)
	}
}

func TestCompileFailsWhenBuffersTooSmall(t *testing.T) {
	g, err := graph.SampleNetwork()
	require.NoError(t, err)

	tiny := accel.Spec{N: 4, M: 4, IBUFBytes: 64, WBUFBytes: 64, OBUFBytes: 64, BBUFBytes: 16, DRAMWidthBits: 256}
	_, err = New(tiny, costmodel.DefaultEnergyCost, 1).Compile(context.Background(), g)
	require.Error(t, err)
}

// genAddrStrides decodes every GENADDRLO word in words whose scratchpad is
// sp and access type is at, returning the immediate (low 16 bits of
// stride) each one carries, in emission order.
func genAddrStrides(words []uint32, sp isa.Scratchpad, at isa.AccessType) []uint32 {
	var out []uint32
	for _, w := range words {
		f := isa.DecodeA(w)
		if f.Op != isa.GENADDRLO {
			continue
		}
		wantSP := isa.Scratchpad(f.OpSpec >> 3)
		wantAT := isa.AccessType(f.OpSpec & 0x7)
		if wantSP == sp && wantAT == at {
			out = append(out, f.Immediate)
		}
	}
	return out
}

// TestLoopNestStridesAccountForLaneFactor exercises emitOuterLoops and
// emitMemoryAccessLoops directly with a tiling where IC and OC are both
// actually tiled (NumTiles>1, i.e. the lane-reduced TileSize is strictly
// less than the buffer's full channel count) — the case review comment
// (b) identified as silently under-striding DRAM addresses by a factor
// of N or M. Every asserted stride below is computed from the *raw*
// (lane-expanded) element counts; a regression back to using the
// lane-reduced ts.dims/FPGAShape() product alone would produce a stride
// short by exactly N (IC axes) or M (OC axes).
func TestLoopNestStridesAccountForLaneFactor(t *testing.T) {
	const n, m = 4, 4
	dt := dtype.NewFixedPoint(16, 8)

	data, err := tensor.New("data", []int{1, 8, 8, 16}, dt, tensor.NoOp)
	require.NoError(t, err)
	weights, err := tensor.New("weights", []int{16, 3, 3, 16}, dt, tensor.NoOp)
	require.NoError(t, err)
	convOut, err := tensor.New("out", []int{1, 2, 2, 12}, dt, tensor.NoOp)
	require.NoError(t, err)
	bias, err := tensor.New("bias", []int{12}, dt, tensor.NoOp)
	require.NoError(t, err)

	// ic/oc below are the *lane-reduced* tile sizes compiler.go's
	// optimizeTiling would have already produced (raw tile 8 / N=4 -> 2,
	// raw tile 12 / M=4 -> 3).
	tiling := costmodel.Tiling{
		costmodel.LoopB:  {NumTiles: 1, TileSize: 1},
		costmodel.LoopOW: {NumTiles: 1, TileSize: 2},
		costmodel.LoopOH: {NumTiles: 1, TileSize: 2},
		costmodel.LoopIC: {NumTiles: 4, TileSize: 2},
		costmodel.LoopOC: {NumTiles: 4, TileSize: 3},
	}
	ordering := []costmodel.LoopName{costmodel.LoopOC, costmodel.LoopIC, costmodel.LoopOH, costmodel.LoopOW, costmodel.LoopB}

	c := New(testSpec(), costmodel.DefaultEnergyCost, 1)

	outerWords, err := c.emitOuterLoops(tiling, ordering, data, weights, convOut, bias)
	require.NoError(t, err)

	// WBUF's OC outer loop steps trailingElements(weights,0)=kh*kw*IC_full
	// = 3*3*16 = 144 elements per lane-reduced OC tile (tileCount=3),
	// times the M=4 lane factor, times 2 bytes: 144*3*4*2 = 3456. Without
	// the lane factor this would be 144*3*2 = 864, short by M.
	wbufOuterLD := genAddrStrides(outerWords, isa.WBUF, isa.AccessLD)
	require.NotEmpty(t, wbufOuterLD)
	assert.Contains(t, wbufOuterLD, uint32(3456))

	// WBUF's IC outer loop has nothing trailing it, so its stride is just
	// tileCount(2)*laneN(4)*2 bytes = 16. Without the lane factor this
	// would be 2*2 = 4, short by N.
	assert.Contains(t, wbufOuterLD, uint32(16))

	shapes := buildTileShapes(tiling, data, weights, convOut, true, n, m)

	var wbuf, ibuf, obuf, biasShape tileShape
	for _, ts := range shapes {
		switch ts.buf {
		case isa.WBUF:
			wbuf = ts
		case isa.IBUF:
			ibuf = ts
		case isa.OBUF:
			obuf = ts
		case isa.BIAS:
			biasShape = ts
		}
	}
	assert.Equal(t, []int{12, 3, 3, 8}, wbuf.rawDims, "WBUF rawDims must expand oc*M and ic*N")
	assert.Equal(t, []int{1, 4, 4, 8}, ibuf.rawDims, "IBUF rawDims must expand ic*N")
	assert.Equal(t, []int{1, 2, 2, 12}, obuf.rawDims, "OBUF rawDims must expand oc*M")
	assert.Equal(t, []int{12}, biasShape.rawDims, "BIAS rawDims must expand oc*M")

	memWords, err := c.emitMemoryAccessLoops(shapes, data, weights, convOut, bias)
	require.NoError(t, err)

	// WBUF's memory-access loop nest strides differently from its outer
	// loop (it walks productFrom(rawDims, dim+1) rather than a full
	// trailing-shape product), but the OC-axis (dim 0) and IC-axis (dim 3)
	// entries must still carry their M/N lane factor: OC stride =
	// productFrom(rawDims,1)=kh*kw*ic_raw=3*3*8=72, *laneM(4)*2 bytes =
	// 576; IC stride = productFrom(rawDims,4)=1, *laneN(4)*2 bytes = 8.
	wbufMemLD := genAddrStrides(memWords, isa.WBUF, isa.AccessLD)
	assert.Contains(t, wbufMemLD, uint32(576), "WBUF OC memory-access stride must include the M lane factor")
	assert.Contains(t, wbufMemLD, uint32(8), "WBUF IC memory-access stride must include the N lane factor")

	// BIAS's only dimension is the OC axis: stride = lane(M=4) * 2 bytes = 8.
	biasMemLD := genAddrStrides(memWords, isa.BIAS, isa.AccessLD)
	assert.Contains(t, biasMemLD, uint32(8))
}
