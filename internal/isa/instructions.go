package isa

import "fmt"

// Setup encodes a one-time SETUP(op0Bits, op1Bits) instruction: op_spec
// packs log2 of each operand width.
func Setup(op0Bits, op1Bits int) (uint32, error) {
	l0, err := log2Exact(op0Bits)
	if err != nil {
		return 0, err
	}
	l1, err := log2Exact(op1Bits)
	if err != nil {
		return 0, err
	}
	return packA(SETUP, uint64(l0)<<3|uint64(l1), 0, 0)
}

// BaseAddress encodes one 21-bit slice of a DRAM address: index selects
// which slice (0 = low, 1 = high). The slice's low 16 bits become the
// immediate; its next 5 bits become loop_id.
func BaseAddress(sp Scratchpad, index int, address uint64) (uint32, error) {
	if index != 0 && index != 1 {
		return 0, fmt.Errorf("isa: BaseAddress index must be 0 or 1, got %d", index)
	}
	chunk := (address >> uint(index*21)) & ((1 << 21) - 1)
	immediate := chunk & 0xFFFF
	loopID := (chunk >> 16) & 0x1F
	opSpec := uint64(sp)<<3 | uint64(index)
	return packA(BASEADDR, opSpec, loopID, immediate)
}

// Loop encodes a LOOP instruction with the given nest level, loop id, and
// iteration count (immediate = iterations-1, per §4.7).
func Loop(level int, loopID uint64, iterations uint64) (uint32, error) {
	if iterations == 0 {
		return 0, fmt.Errorf("isa: Loop iterations must be >= 1")
	}
	return packA(LOOP, uint64(level), loopID, iterations-1)
}

// AccessType for LD/ST/RD/WR-class instructions bundles scratchpad and
// element width into op_spec = (scratchpad<<3) | log2(element_bits).
func accessOpSpec(sp Scratchpad, elementBits int) (uint64, error) {
	lg, err := log2Exact(elementBits)
	if err != nil {
		return 0, err
	}
	return uint64(sp)<<3 | uint64(lg), nil
}

// LDMem encodes an LDMEM instruction moving elementBits-wide elements for
// loop id loopID.
func LDMem(sp Scratchpad, elementBits int, loopID uint64) (uint32, error) {
	opSpec, err := accessOpSpec(sp, elementBits)
	if err != nil {
		return 0, err
	}
	return packA(LDMEM, opSpec, loopID, 0)
}

// STMem encodes an STMEM instruction.
func STMem(sp Scratchpad, elementBits int, loopID uint64) (uint32, error) {
	opSpec, err := accessOpSpec(sp, elementBits)
	if err != nil {
		return 0, err
	}
	return packA(STMEM, opSpec, loopID, 0)
}

// RDBuf encodes an RDBUF instruction.
func RDBuf(sp Scratchpad, elementBits int, loopID uint64) (uint32, error) {
	opSpec, err := accessOpSpec(sp, elementBits)
	if err != nil {
		return 0, err
	}
	return packA(RDBUF, opSpec, loopID, 0)
}

// WRBuf encodes a WRBUF instruction.
func WRBuf(sp Scratchpad, elementBits int, loopID uint64) (uint32, error) {
	opSpec, err := accessOpSpec(sp, elementBits)
	if err != nil {
		return 0, err
	}
	return packA(WRBUF, opSpec, loopID, 0)
}

// GenAddrLow encodes the low 16 bits of an address-generator stride for
// scratchpad sp / access at loop id loopID.
func GenAddrLow(sp Scratchpad, at AccessType, loopID uint64, stride uint64) (uint32, error) {
	opSpec := uint64(sp)<<3 | uint64(at)
	return packA(GENADDRLO, opSpec, loopID, stride&0xFFFF)
}

// GenAddrHigh encodes the high bits of a stride (stride >> 16), required
// whenever stride >= 2^16.
func GenAddrHigh(sp Scratchpad, at AccessType, loopID uint64, stride uint64) (uint32, error) {
	opSpec := uint64(sp)<<3 | uint64(at)
	return packA(GENADDRHI, opSpec, loopID, stride>>16)
}

// NeedsHigh reports whether a GenAddrHigh companion is required for
// stride.
func NeedsHigh(stride uint64) bool { return stride >= (1 << 16) }

// BlockEnd encodes a BLOCK_END instruction; last selects whether this is
// the final macro-op's block.
func BlockEnd(last bool) (uint32, error) {
	imm := uint64(0)
	if last {
		imm = 1
	}
	return packA(BLOCKEND, 0, 0, imm)
}

// PUBlockRepeat reuses the BLOCK_END opcode with immediate = repeat-1; it
// terminates a PU micro-program.
func PUBlockRepeat(repeat uint64) (uint32, error) {
	if repeat == 0 {
		return 0, fmt.Errorf("isa: PUBlockRepeat repeat count must be >= 1")
	}
	return packA(BLOCKEND, 0, 0, repeat-1)
}

// PUBlockStart encodes the PU_BLOCK instruction opening a PU
// micro-program; n is the instruction count between start and repeat.
func PUBlockStart(n uint64) (uint32, error) {
	return packA(PUBLOCK, 0, 0, n)
}

// ComputeR encodes a register-register Family B instruction.
func ComputeR(fn Fn, src1, src0, dest uint32) (uint32, error) {
	return packB(COMPUTER, false, fn, src1, src0, dest)
}

// ComputeI encodes a register-immediate Family B instruction; imm is
// packed into the 16-bit src1 field.
func ComputeI(fn Fn, imm uint32, src0, dest uint32) (uint32, error) {
	return packB(COMPUTEI, true, fn, imm, src0, dest)
}

func packB(op Opcode, src1IsImm bool, fn Fn, src1, src0, dest uint32) (uint32, error) {
	if err := checkField("op_code", uint64(op), 4); err != nil {
		return 0, err
	}
	if err := checkField("fn", uint64(fn), 3); err != nil {
		return 0, err
	}
	if err := checkField("src1", uint64(src1), 16); err != nil {
		return 0, err
	}
	if err := checkField("src0", uint64(src0), 4); err != nil {
		return 0, err
	}
	if err := checkField("dest", uint64(dest), 4); err != nil {
		return 0, err
	}
	word := uint32(op) << 28
	if src1IsImm {
		word |= 1 << 27
	}
	word |= uint32(fn) << 24
	word |= (src1 & 0xFFFF) << 8
	word |= (src0 & 0xF) << 4
	word |= dest & 0xF
	return word, nil
}

// Special register addresses used by the PU compute program (§4.6 step 8).
const (
	SrcOBUF  = 8 // source slot: pop from the OBUF stream
	SrcLD0   = 9
	SrcLD1   = 10
	DestST   = 8 // dest slot: push to the ST-DDR stream
)
