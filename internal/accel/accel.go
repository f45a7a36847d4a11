// Package accel defines AccelSpec, the accelerator capability value type
// the cost model, optimizer, and graph compiler all take as an input
// (§2, §6). Grounded on original_source/dnnweaver2/simulator/accelerator.py's
// Accelerator (N, M, sram dict, mem_if_width, frequency, prec).
package accel

import "fmt"

// Spec is an accelerator's capability envelope: systolic array dimensions,
// per-role SRAM byte capacities, DRAM interface width, clock, and the
// precision range it supports.
type Spec struct {
	// N is the systolic array's row count (input-channel lanes), M its
	// column count (output-channel lanes).
	N, M int

	// Per-role SRAM capacities, in bytes.
	IBUFBytes uint64
	WBUFBytes uint64
	OBUFBytes uint64
	BBUFBytes uint64

	// DRAMWidthBits is the DRAM interface width, in bits per cycle.
	DRAMWidthBits int

	// ClockHz is only reported (String); the cost model does not read it,
	// so it never affects cycle counts.
	ClockHz float64

	// MinPrecisionBits/MaxPrecisionBits bound the dtypes this spec
	// accepts.
	MinPrecisionBits int
	MaxPrecisionBits int
}

// IBUFBits returns the IBUF capacity in bits.
func (s Spec) IBUFBits() uint64 { return s.IBUFBytes * 8 }

// WBUFBits returns the WBUF capacity in bits.
func (s Spec) WBUFBits() uint64 { return s.WBUFBytes * 8 }

// OBUFBits returns the OBUF capacity in bits.
func (s Spec) OBUFBits() uint64 { return s.OBUFBytes * 8 }

// BBUFBits returns the BBUF capacity in bits.
func (s Spec) BBUFBits() uint64 { return s.BBUFBytes * 8 }

// SupportsPrecision reports whether bits falls within [Min,Max].
func (s Spec) SupportsPrecision(bits int) bool {
	return bits >= s.MinPrecisionBits && bits <= s.MaxPrecisionBits
}

func (s Spec) String() string {
	return fmt.Sprintf(
		"AccelSpec(N=%d, M=%d, ibuf=%dB, wbuf=%dB, obuf=%dB, bbuf=%dB, dram_width=%dbit, clock=%.0fHz, prec=[%d,%d])",
		s.N, s.M, s.IBUFBytes, s.WBUFBytes, s.OBUFBytes, s.BBUFBytes,
		s.DRAMWidthBits, s.ClockHz, s.MinPrecisionBits, s.MaxPrecisionBits,
	)
}
