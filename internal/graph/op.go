// Package graph holds the op/tensor arena, the graph builder, and macro-op
// fusion (§3, §4.1, §9 Design Notes: arena indices replace the Python
// source's tensor->op back-pointers and isinstance-based op dispatch).
package graph

import (
	"github.com/dnncompile/dnncompile/internal/dtype"
	"github.com/dnncompile/dnncompile/internal/tensor"
)

// Kind tags an Op's variant. It replaces the source's isinstance-based
// dispatch with a closed sum type the graph compiler switches on.
type Kind int

const (
	// Convolution is the only macro-op head kind.
	Convolution Kind = iota
	MaxPooling
	BatchNorm
	LeakyReLU
	TypeCast
	// Passthrough marks a non-core op (e.g. Reshape/Identity) that the
	// compiler accepts without emitting anything for it.
	Passthrough
	// Unsupported marks an op the compiler must reject outright.
	Unsupported
)

func (k Kind) String() string {
	switch k {
	case Convolution:
		return "Convolution"
	case MaxPooling:
		return "MaxPooling"
	case BatchNorm:
		return "BatchNorm"
	case LeakyReLU:
		return "LeakyReLU"
	case TypeCast:
		return "TypeCast"
	case Passthrough:
		return "Passthrough"
	default:
		return "Unsupported"
	}
}

// IsPostConv reports whether a Kind may appear in a MacroNode's trailing
// op list (MaxPooling | LeakyReLU | BatchNorm | TypeCast, per §3).
func (k Kind) IsPostConv() bool {
	switch k {
	case MaxPooling, BatchNorm, LeakyReLU, TypeCast:
		return true
	default:
		return false
	}
}

// PadMode is a convolution/pooling padding policy.
type PadMode int

const (
	PadSame PadMode = iota
	PadValid
	PadExplicit
)

// NoTensor is the sentinel TensorID for an unused per-kind field (e.g. a
// MaxPooling op's Weights field).
const NoTensor tensor.TensorID = -1

// Op is a tagged record: one variant per operator kind (§3 "Op variants
// and required fields"). Only the fields relevant to Kind are meaningful;
// the rest hold their zero value.
type Op struct {
	Name   string
	Kind   Kind
	Output tensor.TensorID

	// Data is the primary input, meaningful for every core kind.
	Data tensor.TensorID

	// Convolution fields.
	Weights     tensor.TensorID // (OC, KH, KW, IC)
	Bias        tensor.TensorID // (OC,)
	Stride      int
	PadMode     PadMode
	ExplicitPad [4][2]int
	Group       int

	// MaxPooling fields.
	PoolKernel      [4]int
	PoolStride      [4]int
	PoolPadMode     PadMode
	PoolExplicitPad [4][2]int

	// BatchNorm fields. Eps is carried for metadata only — scale already
	// folds sqrt(var+eps) per §3.
	Mean  tensor.TensorID
	Scale tensor.TensorID
	Eps   float64

	// LeakyReLU field: alpha stored as a length-1 tensor.
	Alpha tensor.TensorID

	// TypeCast field.
	TargetDtype dtype.Dtype
}
