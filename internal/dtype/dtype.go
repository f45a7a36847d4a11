// Package dtype defines the scalar element types carried by tensor and
// instruction-stream metadata: fixed-point, floating-point, log-domain, and
// binary encodings, plus the frac-bit arithmetic the compiler needs to
// track output precision through convolution, batch-norm, and type-cast.
package dtype

import "fmt"

// Dtype is the element type of a tensor. Only FixedPoint participates in
// the compiler's bit-width arithmetic; the others carry metadata only.
type Dtype interface {
	fmt.Stringer

	// Bits is the total element width.
	Bits() int

	// Equal reports whether two dtypes describe the same encoding.
	Equal(other Dtype) bool
}

// FixedPoint is a signed Qm.n fixed-point type: m = Bits-FracBits integer
// bits, n = FracBits fractional bits.
type FixedPoint struct {
	bits     int
	fracBits int
}

// NewFixedPoint constructs a fixed-point dtype with the given total bit
// width and fractional bit width.
func NewFixedPoint(bits, fracBits int) FixedPoint {
	return FixedPoint{bits: bits, fracBits: fracBits}
}

func (f FixedPoint) Bits() int     { return f.bits }
func (f FixedPoint) FracBits() int { return f.fracBits }
func (f FixedPoint) IntBits() int  { return f.bits - f.fracBits }

func (f FixedPoint) String() string {
	return fmt.Sprintf("FXP%d(%d,%d)", f.bits, f.IntBits(), f.fracBits)
}

func (f FixedPoint) Equal(other Dtype) bool {
	o, ok := other.(FixedPoint)
	return ok && o.bits == f.bits && o.fracBits == f.fracBits
}

// Float is an IEEE floating-point type carried for metadata only (16 or 32
// bit); the accelerator never computes in it.
type Float struct{ bits int }

func NewFloat(bits int) Float {
	if bits != 16 && bits != 32 {
		panic(fmt.Sprintf("dtype: unsupported float width %d", bits))
	}
	return Float{bits: bits}
}

func (f Float) Bits() int      { return f.bits }
func (f Float) String() string { return fmt.Sprintf("FP%d", f.bits) }
func (f Float) Equal(other Dtype) bool {
	o, ok := other.(Float)
	return ok && o.bits == f.bits
}

// Log is a log-domain type carried for metadata only.
type Log struct{ expBits int }

func NewLog(expBits int) Log { return Log{expBits: expBits} }

func (l Log) Bits() int      { return 2 }
func (l Log) String() string { return fmt.Sprintf("Log%d", l.expBits) }
func (l Log) Equal(other Dtype) bool {
	o, ok := other.(Log)
	return ok && o.expBits == l.expBits
}

// Binary is a single-bit fixed-point type.
type Binary struct{}

func (Binary) Bits() int      { return 1 }
func (Binary) String() string { return "Binary" }
func (Binary) Equal(other Dtype) bool {
	_, ok := other.(Binary)
	return ok
}

// CustomFloat is a non-IEEE float carried for metadata only.
type CustomFloat struct {
	bits    int
	expBits int
}

func NewCustomFloat(bits, expBits int) CustomFloat {
	return CustomFloat{bits: bits, expBits: expBits}
}

func (c CustomFloat) Bits() int { return c.bits }
func (c CustomFloat) String() string {
	return fmt.Sprintf("CustomFloat(%d,%d)", c.bits, c.expBits)
}
func (c CustomFloat) Equal(other Dtype) bool {
	o, ok := other.(CustomFloat)
	return ok && o.bits == c.bits && o.expBits == c.expBits
}

// Common dtypes, named after the original compiler's FQDtype table.
var (
	FP32  = NewFloat(32)
	FP16  = NewFloat(16)
	FXP32 = NewFixedPoint(32, 16)
	FXP16 = NewFixedPoint(16, 8)
	FXP8  = NewFixedPoint(8, 8)
)

// ConvOutputFracBits returns the output fractional width of a convolution
// given its operand fractional widths: frac_bits add under multiplication.
func ConvOutputFracBits(dataFracBits, weightFracBits int) int {
	return dataFracBits + weightFracBits
}

// BatchNormOutput returns the 32-bit fixed-point dtype produced by a
// batch-norm whose input and scale have the given fractional widths.
func BatchNormOutput(inputFracBits, scaleFracBits int) FixedPoint {
	return NewFixedPoint(32, inputFracBits+scaleFracBits)
}

// TypeCastShift returns the right-shift amount a TypeCast applies when
// narrowing from inFracBits to outFracBits fractional bits.
func TypeCastShift(inFracBits, outFracBits int) int {
	return inFracBits - outFracBits
}
