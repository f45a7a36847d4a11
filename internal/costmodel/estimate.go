package costmodel

import (
	"fmt"

	"github.com/dnncompile/dnncompile/internal/accel"
	"github.com/dnncompile/dnncompile/internal/cerrors"
)

func ceilDiv(a, b int) uint64 {
	if b == 0 {
		return 0
	}
	return uint64((a + b - 1) / b)
}

// tileDeps reports whether a buffer's data varies across one iteration of
// loop — the table in §4.2.
func tileDeps(loop LoopName, buf Buffer) bool {
	switch loop {
	case LoopB, LoopOW, LoopOH:
		return buf == IBUF || buf == OBUF
	case LoopIC:
		return buf == IBUF || buf == WBUF
	case LoopOC:
		return buf == WBUF || buf == OBUF || buf == BBUF
	default:
		return false
	}
}

// EstimateStats implements §4.2. It returns a cerrors.ErrInfeasibleAccelerator
// error (not a fatal one — callers in the optimizer filter these silently)
// when any buffer's tile occupancy exceeds half its SRAM capacity.
func EstimateStats(spec accel.Spec, conv ConvParams, tiling Tiling, ordering []LoopName, pool *PoolParams) (Stats, error) {
	bSpec, okB := tiling[LoopB]
	owSpec, okOW := tiling[LoopOW]
	ohSpec, okOH := tiling[LoopOH]
	icSpec, okIC := tiling[LoopIC]
	ocSpec, okOC := tiling[LoopOC]
	if !okB || !okOW || !okOH || !okIC || !okOC {
		return Stats{}, fmt.Errorf("costmodel: tiling must specify all five loops")
	}

	kh, kw := conv.K, conv.K
	b, ow, oh := bSpec.TileSize, owSpec.TileSize, ohSpec.TileSize
	ic, oc := icSpec.TileSize, ocSpec.TileSize

	ih := uint64((oh-1)*conv.S + kh)
	iw := uint64((ow-1)*conv.S + kw)

	icPadded := ceilDiv(ic, spec.N) * uint64(spec.N)
	ocPadded := ceilDiv(oc, spec.M) * uint64(spec.M)

	writes := map[Buffer]uint64{
		WBUF: icPadded * uint64(kh) * uint64(kw) * ocPadded * uint64(conv.WPrec),
		IBUF: iw * ih * icPadded * uint64(b) * uint64(conv.IPrec),
		BBUF: ocPadded * 32,
		OBUF: uint64(ow) * uint64(oh) * ocPadded * uint64(b) * 64,
	}
	reads := map[Buffer]uint64{
		OBUF: writes[OBUF],
	}

	for buf, bits := range writes {
		if bits > capacity(spec, buf)/2 {
			return Stats{}, fmt.Errorf("costmodel: buffer %v: %w: %d bits exceeds half of %d", buf, cerrors.ErrInfeasibleAccelerator, bits, capacity(spec, buf))
		}
	}

	// Tile-level sizes before loop multiplication, used for pipeline
	// fill/drain latency (§4.2 step 4 & 8).
	initialDRAMReads := writes[WBUF] + writes[IBUF] + writes[BBUF] + writes[OBUF]
	finalDRAMWrites := reads[OBUF]

	rdCacheHit := map[Buffer]bool{WBUF: true, IBUF: true, OBUF: true, BBUF: true}
	wrCacheHit := map[Buffer]bool{OBUF: true}

	for _, loop := range ordering {
		ts, ok := tiling[loop]
		if !ok {
			return Stats{}, fmt.Errorf("costmodel: ordering references unknown loop %v", loop)
		}
		numTiles := uint64(ts.NumTiles)

		for buf := range writes {
			if rdCacheHit[buf] {
				if tileDeps(loop, buf) {
					writes[buf] *= numTiles
					rdCacheHit[buf] = false
				}
			} else {
				writes[buf] *= numTiles
			}
		}
		for buf := range reads {
			if wrCacheHit[buf] {
				if tileDeps(loop, buf) {
					reads[buf] *= numTiles
					wrCacheHit[buf] = false
				}
			} else {
				reads[buf] *= numTiles
			}
		}
	}

	var stats Stats
	stats.WBUFWrites = writes[WBUF]
	stats.IBUFWrites = writes[IBUF]
	stats.BBUFWrites = writes[BBUF]
	stats.OBUFWrites = writes[OBUF]
	stats.OBUFReads = reads[OBUF]

	stats.DRAMReads = writes[WBUF] + writes[IBUF] + writes[BBUF] + writes[OBUF]
	stats.DRAMWrites = reads[OBUF]

	// Data-reuse pattern selection: pick the minimum of the three
	// closed-form SRAM-traffic expressions and accumulate its extra
	// reads/writes (§4.2 step 6).
	isLoop := ocPadded
	osLoop := icPadded * uint64(kh) * uint64(kw)
	wsLoop := uint64(b) * uint64(oh) * uint64(ow)

	isEnergy := float64(osLoop*wsLoop) * (float64(conv.IPrec) + float64(isLoop)*(float64(conv.WPrec)+64))
	osEnergy := float64(isLoop*wsLoop) * (64 + float64(osLoop)*(float64(conv.IPrec)+float64(conv.WPrec)))
	wsEnergy := float64(osLoop*isLoop) * (float64(conv.WPrec) + float64(wsLoop)*(float64(conv.IPrec)+64))

	numTiles := uint64(bSpec.NumTiles) * uint64(owSpec.NumTiles) * uint64(ohSpec.NumTiles) * uint64(icSpec.NumTiles) * uint64(ocSpec.NumTiles)

	rawIC, rawOC := uint64(ic), uint64(oc)
	rawB, rawOH, rawOW := uint64(b), uint64(oh), uint64(ow)
	rawKH, rawKW := uint64(kh), uint64(kw)

	switch {
	case isEnergy <= osEnergy && isEnergy <= wsEnergy:
		// Input stationary: kw*kh*ic*oh*ow*b -> oc.
		base := numTiles * rawKW * rawKH * rawIC * rawOH * rawOW * rawB
		stats.IBUFReads += base * uint64(conv.IPrec)
		stats.OBUFReads += base * rawOC * 64
		stats.OBUFWrites += base * rawOC * 64
		stats.WBUFReads += base * rawOC * uint64(conv.WPrec)
	case osEnergy <= wsEnergy:
		// Output stationary: oc*oh*ow*b -> kw*kh*ic.
		base := numTiles * rawOC * rawOH * rawOW * rawB
		stats.IBUFReads += base * rawKW * rawKH * rawIC * uint64(conv.IPrec)
		stats.OBUFReads += base * 64
		stats.OBUFWrites += base * 64
		stats.WBUFReads += base * rawKW * rawKH * rawIC * uint64(conv.WPrec)
	default:
		// Weight stationary: kw*kh*ic*oc -> b*ow*oh.
		base := numTiles * rawKW * rawKH * rawIC * rawOC
		stats.IBUFReads += base * rawB * rawOW * rawOH * uint64(conv.IPrec)
		stats.OBUFReads += base * rawB * rawOW * rawOH * 64
		stats.OBUFWrites += base * rawB * rawOW * rawOH * 64
		stats.WBUFReads += base * uint64(conv.WPrec)
	}

	totalDRAMAccesses := stats.DRAMReads + stats.DRAMWrites
	middleDRAMAccesses := totalDRAMAccesses - initialDRAMReads - finalDRAMWrites

	width := spec.DRAMWidthBits
	latency := ceilDivU(initialDRAMReads, width) + ceilDivU(finalDRAMWrites, width)

	icTotal := ceilDiv(ic, spec.N)
	ocTotal := ceilDiv(oc, spec.M)
	computeCyclesPerTile := computeCycles(icTotal, ocTotal, uint64(ow), uint64(oh), uint64(b), uint64(kw), uint64(kh))
	totalComputeCycles := numTiles * computeCyclesPerTile

	memoryCyclesRequired := ceilDivU(middleDRAMAccesses, width)
	memoryStalls := uint64(0)
	if memoryCyclesRequired > totalComputeCycles {
		memoryStalls = memoryCyclesRequired - totalComputeCycles
	}
	memoryStalls += latency

	stats.TotalCycles = totalComputeCycles + memoryStalls
	stats.MemStallCycles = memoryStalls

	_ = pool // pool kernel/stride affect the caller's tiling choice (pooled-output tile coverage), not this function's arithmetic directly.

	return stats, nil
}

func capacity(spec accel.Spec, buf Buffer) uint64 {
	switch buf {
	case IBUF:
		return spec.IBUFBits()
	case WBUF:
		return spec.WBUFBits()
	case OBUF:
		return spec.OBUFBits()
	case BBUF:
		return spec.BBUFBits()
	default:
		return 0
	}
}

func ceilDivU(a uint64, b int) uint64 {
	if b <= 0 {
		return 0
	}
	bb := uint64(b)
	return (a + bb - 1) / bb
}

// computeCycles implements Accelerator.get_compute_cycles: a nested
// "it*prev + overhead" reduction over the seven loop extents sorted
// descending, overhead 2.
func computeCycles(icTiles, ocTiles, ow, oh, b, kw, kh uint64) uint64 {
	loops := []uint64{b, ocTiles, oh, ow, kh, kw, icTiles}
	sortDescending(loops)

	const overhead = 2
	cycles := uint64(1)
	for _, it := range loops {
		cycles = overhead + it*cycles
	}
	return cycles
}

func sortDescending(xs []uint64) {
	for i := 1; i < len(xs); i++ {
		for j := i; j > 0 && xs[j-1] < xs[j]; j-- {
			xs[j-1], xs[j] = xs[j], xs[j-1]
		}
	}
}
