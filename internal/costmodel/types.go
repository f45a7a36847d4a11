// Package costmodel implements estimate_stats (§4.2): a pure function from
// (AccelSpec, tiling, ordering, conv params, optional fused pool) to a
// Stats record of cycles, per-buffer reads/writes, and DRAM traffic.
// Grounded on original_source/dnnweaver2/optimizer/optimizer.py's
// get_stats_fast and tile_deps, and
// original_source/dnnweaver2/simulator/{accelerator,stats}.py.
package costmodel

// LoopName is one of the five outer tiling loops the optimizer schedules.
type LoopName int

const (
	LoopB LoopName = iota
	LoopOW
	LoopOH
	LoopIC
	LoopOC
)

func (l LoopName) String() string {
	switch l {
	case LoopB:
		return "B/b"
	case LoopOW:
		return "OW/ow"
	case LoopOH:
		return "OH/oh"
	case LoopIC:
		return "IC/ic"
	case LoopOC:
		return "OC/oc"
	default:
		return "?"
	}
}

// AllLoops lists the five loop names in a fixed reference order (not an
// ordering candidate — see optimizer.Permutations for those).
var AllLoops = []LoopName{LoopB, LoopOW, LoopOH, LoopIC, LoopOC}

// TileSpec is one loop's (tile count, tile size) pair; count*size need not
// equal the full dimension exactly — the last tile may be partial.
type TileSpec struct {
	NumTiles int
	TileSize int
}

// Tiling maps every loop name to its chosen tile spec.
type Tiling map[LoopName]TileSpec

// ConvParams are the convolution parameters the cost model and optimizer
// share: kernel size, full (pre-pool) output spatial size, stride,
// channel counts, batch, operand precisions, and the im2col flag.
type ConvParams struct {
	K      int
	O      int // full output spatial dimension (square: OH=OW=O)
	S      int
	IC     int
	OC     int
	B      int
	IPrec  int
	WPrec  int
	Im2Col bool
}

// PoolParams is the pool kernel/stride fused into a macro-op, using the
// source's 4-tuple convention (batch, height, width, channel); only the
// height/width entries (indices 1,2) matter to the cost model.
type PoolParams struct {
	Kernel [4]int
	Stride [4]int
}

// Buffer identifies one of the four on-chip SRAM roles.
type Buffer int

const (
	IBUF Buffer = iota
	WBUF
	OBUF
	BBUF
)

// Stats is the cost model's output record (§4.2 "Return a Stats record").
type Stats struct {
	TotalCycles    uint64
	MemStallCycles uint64

	IBUFReads, IBUFWrites uint64
	WBUFReads, WBUFWrites uint64
	OBUFReads, OBUFWrites uint64
	BBUFReads, BBUFWrites uint64

	DRAMReads, DRAMWrites uint64
}

// Add sums two stats records element-wise (Stats.__add__ in the original).
func (s Stats) Add(o Stats) Stats {
	return Stats{
		TotalCycles:    s.TotalCycles + o.TotalCycles,
		MemStallCycles: s.MemStallCycles + o.MemStallCycles,
		IBUFReads:      s.IBUFReads + o.IBUFReads,
		IBUFWrites:     s.IBUFWrites + o.IBUFWrites,
		WBUFReads:      s.WBUFReads + o.WBUFReads,
		WBUFWrites:     s.WBUFWrites + o.WBUFWrites,
		OBUFReads:      s.OBUFReads + o.OBUFReads,
		OBUFWrites:     s.OBUFWrites + o.OBUFWrites,
		BBUFReads:      s.BBUFReads + o.BBUFReads,
		BBUFWrites:     s.BBUFWrites + o.BBUFWrites,
		DRAMReads:      s.DRAMReads + o.DRAMReads,
		DRAMWrites:     s.DRAMWrites + o.DRAMWrites,
	}
}

// EnergyCost configures Stats.Energy's per-component costs, in (arbitrary
// consistent) energy units per cycle or per bit. The reference compiler
// typically runs with all fields but DRAMCost at zero ("optimized for
// performance, not energy" — compiler/__init__.py); this repository keeps
// the cost model fully configurable rather than hardcoding that.
type EnergyCost struct {
	LeakCost     float64
	CoreDynCost  float64
	WBUFReadCost float64
	WBUFWriteCost float64
	IBUFReadCost float64
	IBUFWriteCost float64
	BBUFReadCost float64
	BBUFWriteCost float64
	OBUFReadCost float64
	OBUFWriteCost float64
	DRAMCost     float64
}

// DefaultEnergyCost mirrors the reference compiler's usual configuration:
// only DRAM traffic is costed, at 6 fJ/bit (simulator/stats.py's
// dram_cost=6.e-3 default argument).
var DefaultEnergyCost = EnergyCost{DRAMCost: 6e-3}

// Energy computes total dynamic + leakage energy (Stats.get_energy).
func (s Stats) Energy(cost EnergyCost) float64 {
	dyn := float64(s.TotalCycles-s.MemStallCycles) * cost.CoreDynCost
	dyn += float64(s.WBUFReads)*cost.WBUFReadCost + float64(s.WBUFWrites)*cost.WBUFWriteCost
	dyn += float64(s.IBUFReads)*cost.IBUFReadCost + float64(s.IBUFWrites)*cost.IBUFWriteCost
	dyn += float64(s.BBUFReads)*cost.BBUFReadCost + float64(s.BBUFWrites)*cost.BBUFWriteCost
	dyn += float64(s.OBUFReads)*cost.OBUFReadCost + float64(s.OBUFWrites)*cost.OBUFWriteCost
	dyn += float64(s.DRAMReads+s.DRAMWrites) * cost.DRAMCost
	leak := float64(s.TotalCycles) * cost.LeakCost
	return dyn + leak
}
