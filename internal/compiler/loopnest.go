package compiler

import (
	"fmt"

	"github.com/dnncompile/dnncompile/internal/cerrors"
	"github.com/dnncompile/dnncompile/internal/costmodel"
	"github.com/dnncompile/dnncompile/internal/isa"
	"github.com/dnncompile/dnncompile/internal/tensor"
)

// tileShape is one buffer's tensor plus the per-buffer tile-size vector
// used for the memory-access and inner loop nests (§4.5 steps 3-4).
//
// dims holds the lane-reduced tile sizes (IC/OC already divided by N/M,
// per compiler.go's optimizeTiling) — correct as both loop bound and
// stride for emitInnerLoops, which addresses the lane-parallel scratchpad
// directly. rawDims mirrors dims but with the IC/OC entries expanded back
// to raw element counts (*N, *M): DRAM is addressed in raw elements, so
// emitMemoryAccessLoops uses rawDims for any stride that is or includes a
// reduced IC/OC dimension (emitOuterLoops instead strides over the padded
// tensor and applies the same correction through laneFactorFor).
// This is the Go analogue of the source's separate `tensor_tile_shape`
// table (original_source/dnnweaver2/compiler/__init__.py:219-234),
// kept distinct from `padded_tile_shape_mapping` (our dims).
type tileShape struct {
	buf     isa.Scratchpad
	tensor  *tensor.Descriptor
	dims    []int // tile-sized dims, outermost first
	rawDims []int // dims with IC/OC entries expanded to raw element counts
}

// laneFactorFor reports the lane-compression factor (N or M) baked into
// dim of buf's tile-size table, or 1 if dim is not a lane-reduced axis.
// IC is lane-reduced at IBUF/WBUF's last dimension; OC at OBUF's last
// dimension and at WBUF's/BIAS's first.
func laneFactorFor(buf isa.Scratchpad, dim, n, m int) uint64 {
	switch buf {
	case isa.IBUF:
		if dim == 3 {
			return uint64(n)
		}
	case isa.WBUF:
		if dim == 0 {
			return uint64(m)
		}
		if dim == 3 {
			return uint64(n)
		}
	case isa.OBUF:
		if dim == 3 {
			return uint64(m)
		}
	case isa.BIAS:
		if dim == 0 {
			return uint64(m)
		}
	}
	return 1
}

// loopDim describes which dimension of a buffer's tensor one of the five
// outer tiling loops strides over, and how many elements it steps per
// iteration — the Go analogue of the source's outer_loop_strides table.
type loopDim struct {
	buf       isa.Scratchpad
	dim       int
	tileCount int
}

func outerLoopDims(loop costmodel.LoopName, tiling costmodel.Tiling) []loopDim {
	b := tiling[costmodel.LoopB].TileSize
	ic := tiling[costmodel.LoopIC].TileSize
	oc := tiling[costmodel.LoopOC].TileSize
	oh := tiling[costmodel.LoopOH].TileSize
	ow := tiling[costmodel.LoopOW].TileSize

	switch loop {
	case costmodel.LoopIC:
		return []loopDim{{isa.IBUF, 3, ic}, {isa.WBUF, 3, ic}}
	case costmodel.LoopOC:
		return []loopDim{{isa.OBUF, 3, oc}, {isa.WBUF, 0, oc}, {isa.BIAS, 0, oc}}
	case costmodel.LoopB:
		return []loopDim{{isa.IBUF, 0, b}, {isa.OBUF, 0, 1}}
	case costmodel.LoopOH:
		return []loopDim{{isa.IBUF, 1, oh}, {isa.OBUF, 1, oh}}
	case costmodel.LoopOW:
		return []loopDim{{isa.IBUF, 2, ow}, {isa.OBUF, 2, ow}}
	default:
		return nil
	}
}

// emitOuterLoops implements §4.5 step 3's outer tile loop nest: one LOOP
// instruction per ordered loop whose tile count exceeds one, followed by
// the address-generator strides for every buffer that loop advances.
func (c *Compiler) emitOuterLoops(tiling costmodel.Tiling, ordering []costmodel.LoopName, data, weights, convOut, bias *tensor.Descriptor) ([]uint32, error) {
	tensors := map[isa.Scratchpad]*tensor.Descriptor{
		isa.IBUF: data,
		isa.WBUF: weights,
		isa.OBUF: convOut,
	}
	if bias != nil {
		tensors[isa.BIAS] = bias
	}

	var words []uint32
	emit := func(w uint32, err error) error {
		if err != nil {
			return err
		}
		words = append(words, w)
		return nil
	}

	anyLoop := false
	for _, loop := range ordering {
		ts, ok := tiling[loop]
		if !ok || ts.NumTiles <= 1 {
			continue
		}
		anyLoop = true
		if err := emit(isa.Loop(16, 16, uint64(ts.NumTiles-1))); err != nil {
			return nil, err
		}
		for _, d := range outerLoopDims(loop, tiling) {
			t, ok := tensors[d.buf]
			if !ok {
				continue // BIAS has no backing descriptor in loopback table lookups here
			}
			lane := laneFactorFor(d.buf, d.dim, c.Spec.N, c.Spec.M)
			stride := trailingElements(t, d.dim) * uint64(d.tileCount) * lane * bytesPerElement(t)
			if isa.NeedsHigh(stride) {
				if err := emit(isa.GenAddrHigh(d.buf, isa.AccessLD, 16, stride)); err != nil {
					return nil, err
				}
			}
			if err := emit(isa.GenAddrLow(d.buf, isa.AccessLD, 16, stride)); err != nil {
				return nil, err
			}
			if d.buf == isa.OBUF {
				if isa.NeedsHigh(stride) {
					if err := emit(isa.GenAddrHigh(d.buf, isa.AccessST, 16, stride)); err != nil {
						return nil, err
					}
				}
				if err := emit(isa.GenAddrLow(d.buf, isa.AccessST, 16, stride)); err != nil {
					return nil, err
				}
			}
		}
	}

	if !anyLoop {
		if err := emit(isa.Loop(16, 16, 1)); err != nil {
			return nil, err
		}
		if err := emit(isa.GenAddrLow(isa.IBUF, isa.AccessLD, 16, 0)); err != nil {
			return nil, err
		}
	}

	return words, nil
}

// buildTileShapes builds the per-buffer tile-shape table §4.5 step 3/4
// needs: IBUF=(b,ih,iw,ic), OBUF=(b,oh,ow,oc), WBUF=(oc,kh,kw,ic),
// BIAS=(oc,). n and m are the systolic array's lane counts, needed to
// expand each shape's rawDims (see tileShape's doc comment).
func buildTileShapes(tiling costmodel.Tiling, data, weights, convOut *tensor.Descriptor, hasBias bool, n, m int) []tileShape {
	b := tiling[costmodel.LoopB].TileSize
	ic := tiling[costmodel.LoopIC].TileSize
	oc := tiling[costmodel.LoopOC].TileSize
	oh := tiling[costmodel.LoopOH].TileSize
	ow := tiling[costmodel.LoopOW].TileSize

	kh := weights.Shape[1]
	kw := weights.Shape[2]

	// Tile input spatial extents from tile output extents assuming unit
	// stride; compileMacroNode only ever tiles kh/kw=1 so the true conv
	// stride cancels out of this tile-local shape (it matters for DRAM
	// addressing, handled by the outer-loop stride table, not here).
	ih := oh - 1 + kh
	iw := ow - 1 + kw

	shapes := []tileShape{
		{isa.IBUF, data, []int{b, ih, iw, ic}, []int{b, ih, iw, ic * n}},
		{isa.OBUF, convOut, []int{b, oh, ow, oc}, []int{b, oh, ow, oc * m}},
		{isa.WBUF, weights, []int{oc, kh, kw, ic}, []int{oc * m, kh, kw, ic * n}},
	}
	if hasBias {
		shapes = append(shapes, tileShape{isa.BIAS, nil, []int{oc}, []int{oc * m}})
	}
	return shapes
}

// emitMemoryAccessLoops implements §4.5 step 3: one LDMEM (plus STMEM for
// OBUF) per buffer, followed by a nested nest of LOOP/GENADDR instructions
// walking every tile dimension greater than one, innermost first.
func (c *Compiler) emitMemoryAccessLoops(shapes []tileShape, data, weights, convOut *tensor.Descriptor, bias *tensor.Descriptor) ([]uint32, error) {
	var words []uint32
	emit := func(w uint32, err error) error {
		if err != nil {
			return err
		}
		words = append(words, w)
		return nil
	}

	for _, ts := range shapes {
		t := ts.tensor
		if t == nil {
			t = bias
		}
		loopID := uint64(ts.buf) + 1
		elemBits := 16
		if t != nil {
			elemBits = t.Dtype.Bits()
		}

		if err := emit(isa.LDMem(ts.buf, elemBits, loopID)); err != nil {
			return nil, err
		}
		if ts.buf == isa.OBUF {
			if err := emit(isa.STMem(ts.buf, elemBits, loopID)); err != nil {
				return nil, err
			}
		}

		numLoops := 0
		for dim := len(ts.dims) - 1; dim >= 0; dim-- {
			s := ts.dims[dim]
			if s <= 1 {
				continue
			}
			numLoops++
			lane := laneFactorFor(ts.buf, dim, c.Spec.N, c.Spec.M)
			stride := productFrom(ts.rawDims, dim+1) * lane * uint64(elemBits) / 8
			if err := emit(isa.Loop(int(loopID), loopID, uint64(s-1))); err != nil {
				return nil, err
			}
			if isa.NeedsHigh(stride) {
				if err := emit(isa.GenAddrHigh(ts.buf, isa.AccessLD, loopID, stride)); err != nil {
					return nil, err
				}
			}
			if err := emit(isa.GenAddrLow(ts.buf, isa.AccessLD, loopID, stride)); err != nil {
				return nil, err
			}
			if ts.buf == isa.OBUF {
				if isa.NeedsHigh(stride) {
					if err := emit(isa.GenAddrHigh(ts.buf, isa.AccessST, loopID, stride)); err != nil {
						return nil, err
					}
				}
				if err := emit(isa.GenAddrLow(ts.buf, isa.AccessST, loopID, stride)); err != nil {
					return nil, err
				}
			}
		}
		if numLoops == 0 {
			if err := emit(isa.Loop(int(loopID), loopID, 1)); err != nil {
				return nil, err
			}
			if err := emit(isa.GenAddrLow(ts.buf, isa.AccessLD, loopID, 0)); err != nil {
				return nil, err
			}
			if ts.buf == isa.OBUF {
				if err := emit(isa.GenAddrLow(ts.buf, isa.AccessST, loopID, 0)); err != nil {
					return nil, err
				}
			}
		}
	}

	return words, nil
}

// innerLoopOrder is the fixed MACC inner-loop traversal order (§4.5 step 4).
var innerLoopOrder = []string{"IC", "KW", "KH", "OW", "OH", "OC", "B"}

// emitInnerLoops implements §4.5 step 4: the innermost per-cycle MACC
// loop nest, in the fixed order IC,KW,KH,OW,OH,OC,B. Inner-loop strides
// have no GenAddrHigh companion — a stride that does not fit 16 bits here
// is a fatal StrideOverflow, not an infeasibility to route around.
func (c *Compiler) emitInnerLoops(shapes []tileShape) ([]uint32, error) {
	var words []uint32
	emit := func(w uint32, err error) error {
		if err != nil {
			return err
		}
		words = append(words, w)
		return nil
	}

	byBuf := map[isa.Scratchpad]tileShape{}
	for _, ts := range shapes {
		byBuf[ts.buf] = ts
	}

	// Per-(loop, buffer) dimension index, the Go analogue of the source's
	// inner_loop_strides table. All entries carry dim_stride=1, so the
	// element stride is simply the tile shape's trailing-dimension
	// product (productFrom below).
	dimFor := map[string]map[isa.Scratchpad]int{
		"IC": {isa.IBUF: 3, isa.WBUF: 3},
		"OC": {isa.OBUF: 3, isa.WBUF: 0, isa.BIAS: 0},
		"B":  {isa.IBUF: 0, isa.OBUF: 0},
		"OH": {isa.IBUF: 1, isa.OBUF: 1},
		"OW": {isa.IBUF: 2, isa.OBUF: 2},
		"KH": {isa.IBUF: 1, isa.WBUF: 1},
		"KW": {isa.IBUF: 2, isa.WBUF: 2},
	}
	dimIndex := func(name string, buf isa.Scratchpad) (int, bool) {
		d, ok := dimFor[name][buf]
		return d, ok
	}
	writesTo := func(name string, buf isa.Scratchpad) bool {
		_, ok := dimFor[name][buf]
		return ok
	}
	tileCount := func(name string) int {
		switch name {
		case "IC":
			return byBuf[isa.WBUF].dims[3]
		case "KW":
			return byBuf[isa.WBUF].dims[2]
		case "KH":
			return byBuf[isa.WBUF].dims[1]
		case "OW":
			return byBuf[isa.OBUF].dims[2]
		case "OH":
			return byBuf[isa.OBUF].dims[1]
		case "OC":
			return byBuf[isa.OBUF].dims[3]
		case "B":
			return byBuf[isa.OBUF].dims[0]
		}
		return 1
	}

	numLoops := 0
	for _, name := range innerLoopOrder {
		it := tileCount(name)
		if it <= 1 {
			continue
		}
		numLoops++
		if err := emit(isa.Loop(0, 0, uint64(it-1))); err != nil {
			return nil, err
		}
		for buf, ts := range byBuf {
			if !writesTo(name, buf) {
				continue
			}
			dim, _ := dimIndex(name, buf)
			stride := productFrom(ts.dims, dim+1)
			if isa.NeedsHigh(stride) {
				return nil, fmt.Errorf("compiler: inner loop %s on %v: %w: stride %d exceeds 16 bits", name, buf, cerrors.ErrStrideOverflow, stride)
			}
			if err := emit(isa.GenAddrLow(buf, isa.AccessRD, 0, stride)); err != nil {
				return nil, err
			}
			if buf == isa.OBUF {
				if err := emit(isa.GenAddrLow(buf, isa.AccessWR, 0, stride)); err != nil {
					return nil, err
				}
			}
		}
	}

	if numLoops == 0 {
		if err := emit(isa.Loop(0, 0, 1)); err != nil {
			return nil, err
		}
		if err := emit(isa.GenAddrLow(isa.IBUF, isa.AccessRD, 0, 0)); err != nil {
			return nil, err
		}
		if err := emit(isa.GenAddrLow(isa.WBUF, isa.AccessRD, 0, 0)); err != nil {
			return nil, err
		}
		if err := emit(isa.GenAddrLow(isa.OBUF, isa.AccessWR, 0, 0)); err != nil {
			return nil, err
		}
		if err := emit(isa.GenAddrLow(isa.OBUF, isa.AccessRD, 0, 0)); err != nil {
			return nil, err
		}
		if _, ok := byBuf[isa.BIAS]; ok {
			if err := emit(isa.GenAddrLow(isa.BIAS, isa.AccessRD, 0, 0)); err != nil {
				return nil, err
			}
		}
	}

	return words, nil
}

func trailingElements(t *tensor.Descriptor, dim int) uint64 {
	shape := t.FPGAShape()
	n := uint64(1)
	for _, s := range shape[dim+1:] {
		n *= uint64(s)
	}
	return n
}

func bytesPerElement(t *tensor.Descriptor) uint64 {
	return uint64((t.Dtype.Bits() + 7) / 8)
}

func productFrom(dims []int, from int) uint64 {
	n := uint64(1)
	if from < 0 {
		from = 0
	}
	for _, d := range dims[from:] {
		n *= uint64(d)
	}
	return n
}
