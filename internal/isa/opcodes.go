// Package isa implements the bit-exact 32-bit instruction encoding (§4.7):
// Family A (control/memory) and Family B (compute). Grounded on
// original_source/dnnweaver2/isa/__init__.py's OPCodes/ScratchPad/
// AccessType/FNCodes tables and BFInstruction/ComputeInstruction encoders.
package isa

import (
	"fmt"
	"math/bits"

	"github.com/dnncompile/dnncompile/internal/cerrors"
)

// Opcode is a Family A or Family B op_code, the top 4 bits of every word.
type Opcode uint32

const (
	SETUP Opcode = iota
	LDMEM
	STMEM
	RDBUF
	WRBUF
	GENADDRHI
	GENADDRLO
	LOOP
	BLOCKEND
	BASEADDR
	PUBLOCK
	COMPUTER
	COMPUTEI
)

// Scratchpad identifies an on-chip buffer role.
type Scratchpad int

const (
	IBUF Scratchpad = iota
	OBUF
	WBUF
	BIAS
)

// AccessType distinguishes the four address-generator purposes.
type AccessType int

const (
	AccessLD AccessType = iota
	AccessST
	AccessRD
	AccessWR
)

// Fn is a Family B compute function code.
type Fn int

const (
	FnNOP Fn = iota
	FnADD
	FnSUB
	FnMUL
	FnMVHI
	FnMAX
	FnMIN
	FnRSHIFT
)

// log2Exact returns log2(n) for a positive power of two, erroring
// otherwise — every bit-width field in the ISA is always a power of two.
func log2Exact(n int) (int, error) {
	if n <= 0 || n&(n-1) != 0 {
		return 0, fmt.Errorf("isa: %w: %d is not a positive power of two", cerrors.ErrEncodingOutOfRange, n)
	}
	return bits.Len(uint(n)) - 1, nil
}

func fitsBits(v uint64, width int) bool {
	if width >= 64 {
		return true
	}
	return v < (uint64(1) << width)
}

func checkField(name string, v uint64, width int) error {
	if !fitsBits(v, width) {
		return fmt.Errorf("isa: field %s: %w: value %d does not fit %d bits", name, cerrors.ErrEncodingOutOfRange, v, width)
	}
	return nil
}

// packA assembles a Family A word from its four fields, range-checking
// each against its bit width before packing.
func packA(op Opcode, opSpec, loopID, immediate uint64) (uint32, error) {
	if err := checkField("op_code", uint64(op), 4); err != nil {
		return 0, err
	}
	if err := checkField("op_spec", opSpec, 7); err != nil {
		return 0, err
	}
	if err := checkField("loop_id", loopID, 5); err != nil {
		return 0, err
	}
	if err := checkField("immediate", immediate, 16); err != nil {
		return 0, err
	}
	word := uint32(op)<<28 | uint32(opSpec)<<21 | uint32(loopID)<<16 | uint32(immediate)
	return word, nil
}

// FieldsA is the decoded field set of a Family A word.
type FieldsA struct {
	Op        Opcode
	OpSpec    uint32
	LoopID    uint32
	Immediate uint32
}

// DecodeA splits a word into its Family A fields. It performs no semantic
// validation — callers that need opcode-specific interpretation of
// OpSpec/LoopID (scratchpad, access type, log2 widths) do that themselves.
func DecodeA(word uint32) FieldsA {
	return FieldsA{
		Op:        Opcode(word >> 28 & 0xF),
		OpSpec:    word >> 21 & 0x7F,
		LoopID:    word >> 16 & 0x1F,
		Immediate: word & 0xFFFF,
	}
}

// FieldsB is the decoded field set of a Family B word.
type FieldsB struct {
	Op         Opcode
	Src1IsImm  bool
	Fn         Fn
	Src1       uint32 // register address or immediate, per Src1IsImm
	Src0       uint32
	Dest       uint32
}

// DecodeB splits a word into its Family B fields.
func DecodeB(word uint32) FieldsB {
	return FieldsB{
		Op:        Opcode(word >> 28 & 0xF),
		Src1IsImm: word>>27&0x1 != 0,
		Fn:        Fn(word >> 24 & 0x7),
		Src1:      word >> 8 & 0xFFFF,
		Src0:      word >> 4 & 0xF,
		Dest:      word & 0xF,
	}
}
