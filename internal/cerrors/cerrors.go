// Package cerrors defines the typed sentinel errors the compiler fails
// fast with (§7): each names the offending op or tensor when wrapped, and
// none is ever swallowed into a partial instruction stream.
package cerrors

import "errors"

var (
	// ErrInfeasibleAccelerator means no tiling candidate fit the SRAM
	// half-budget for any outer-loop ordering.
	ErrInfeasibleAccelerator = errors.New("infeasible accelerator: no tiling fits the SRAM budget")

	// ErrUnsupportedOp means an op is not recognized in its position:
	// non-conv before the first conv, an unknown post-conv op kind, a
	// grouped convolution (group != 1), or a second BatchNorm in one
	// macro-node.
	ErrUnsupportedOp = errors.New("unsupported op")

	// ErrStrideOverflow means an inner-loop element stride needs 2^16 or
	// more and has no high-word companion to absorb it.
	ErrStrideOverflow = errors.New("stride overflow")

	// ErrEncodingOutOfRange means a field does not fit its bit width.
	ErrEncodingOutOfRange = errors.New("encoding out of range")

	// ErrLayoutConflict means a tensor address was assigned twice with
	// different values.
	ErrLayoutConflict = errors.New("layout conflict")

	// ErrUnsupportedPUOp means the PU compiler encountered an op kind it
	// does not know how to expand into a micro-program.
	ErrUnsupportedPUOp = errors.New("unsupported PU op")
)
