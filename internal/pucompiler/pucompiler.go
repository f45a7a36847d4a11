// Package pucompiler compiles a macro-node's trailing post-conv ops
// (§4.6) into a PU micro-program: a short register-allocated compute
// sequence, repeated once per pooled output window via PUBlockRepeat.
// Grounded on original_source/dnnweaver2/compiler/pu_compiler.py's
// PUCompiler.compile_layer.
package pucompiler

import (
	"fmt"

	"github.com/dnncompile/dnncompile/internal/cerrors"
	"github.com/dnncompile/dnncompile/internal/costmodel"
	"github.com/dnncompile/dnncompile/internal/graph"
	"github.com/dnncompile/dnncompile/internal/isa"
	"github.com/dnncompile/dnncompile/internal/tensor"
)

const registerFileSize = 8

// RegisterFile models the PU's small scratch-register file
// (Acquire/Release), mirroring the source's numpy boolean array.
type RegisterFile struct {
	used [registerFileSize]bool
}

// Acquire returns the index of a free register, marking it used.
func (r *RegisterFile) Acquire() (int, error) {
	for i := 0; i < registerFileSize; i++ {
		if !r.used[i] {
			r.used[i] = true
			return i, nil
		}
	}
	return 0, fmt.Errorf("pucompiler: no registers left")
}

// Release frees register i.
func (r *RegisterFile) Release(i int) { r.used[i] = false }

// AllReleased reports whether every register has been freed — the
// compiler asserts this after compiling each layer.
func (r *RegisterFile) AllReleased() bool {
	for _, u := range r.used {
		if u {
			return false
		}
	}
	return true
}

// Lookup resolves the tensor descriptors a PU program needs.
type Lookup interface {
	Tensor(id tensor.TensorID) (*tensor.Descriptor, error)
}

// Compile builds the PU micro-program for one macro-node's trailing ops.
// convTiling supplies the conv macro-op's chosen tile sizes; convOut is
// the convolution's (pre-pool) output tensor; simdLanes is the
// accelerator's column count (M).
func Compile(g Lookup, convTiling costmodel.Tiling, convOut *tensor.Descriptor, puOps []*graph.Op, simdLanes int) ([]uint32, error) {
	b := convTiling[costmodel.LoopB].TileSize
	oc := convTiling[costmodel.LoopOC].TileSize
	oh := convTiling[costmodel.LoopOH].TileSize
	ow := convTiling[costmodel.LoopOW].TileSize

	poolKW, poolKH, poolSW, poolSH := 1, 1, 1, 1
	for _, op := range puOps {
		if op.Kind == graph.MaxPooling {
			poolKW, poolKH = op.PoolKernel[2], op.PoolKernel[1]
			poolSW, poolSH = op.PoolStride[2], op.PoolStride[1]
		}
	}
	poolOW := (ow-poolKW)/poolSW + 1
	poolOH := (oh-poolKH)/poolSH + 1

	var prePool, postPool []*graph.Op
	inPrePool := true
	ld0Required, ld1Required := false, false
	var bnMean, bnScale *tensor.Descriptor

	for _, op := range puOps {
		switch op.Kind {
		case graph.BatchNorm:
			ld0Required, ld1Required = true, true
			mean, err := g.Tensor(op.Mean)
			if err != nil {
				return nil, err
			}
			scale, err := g.Tensor(op.Scale)
			if err != nil {
				return nil, err
			}
			bnMean, bnScale = mean, scale
			if inPrePool {
				prePool = append(prePool, op)
			} else {
				postPool = append(postPool, op)
			}
		case graph.MaxPooling:
			inPrePool = false
		default:
			if inPrePool {
				prePool = append(prePool, op)
			} else {
				postPool = append(postPool, op)
			}
		}
	}

	var out *tensor.Descriptor
	if len(puOps) > 0 {
		last, err := g.Tensor(puOps[len(puOps)-1].Output)
		if err != nil {
			return nil, err
		}
		out = last
	} else {
		out = convOut
	}

	prologue, err := addressPrologue(out, bnMean, bnScale, ld0Required, ld1Required)
	if err != nil {
		return nil, err
	}

	windowAddr, err := windowAddressGen(poolKW, poolKH, poolOW, poolOH, poolSW, poolSH, oc, ow, oh, b, ld0Required, ld1Required)
	if err != nil {
		return nil, err
	}

	outputAddr, err := outputAddressGen(out, oc, ow, oh, b, poolOW, poolOH, simdLanes)
	if err != nil {
		return nil, err
	}

	ldAddr, err := loadAddressGen(poolOW, poolOH, oc, b, ld0Required, ld1Required)
	if err != nil {
		return nil, err
	}

	regs := &RegisterFile{}
	compute, repeats, err := computeProgram(regs, prePool, postPool, poolKW, poolKH, ld0Required, ld1Required, poolOW, poolOH, b, oc)
	if err != nil {
		return nil, err
	}
	if !regs.AllReleased() {
		return nil, fmt.Errorf("pucompiler: register leak after compiling layer")
	}

	body := make([]uint32, 0, len(prologue)+len(windowAddr)+len(outputAddr)+len(ldAddr)+len(compute)+2)
	body = append(body, prologue...)
	body = append(body, windowAddr...)
	body = append(body, outputAddr...)
	body = append(body, ldAddr...)
	body = append(body, compute...)

	repeatWord, err := isa.PUBlockRepeat(uint64(repeats))
	if err != nil {
		return nil, err
	}

	startWord, err := isa.PUBlockStart(uint64(len(body)))
	if err != nil {
		return nil, err
	}

	program := make([]uint32, 0, len(body)+2)
	program = append(program, startWord)
	program = append(program, body...)
	program = append(program, repeatWord)
	return program, nil
}

// addressPrologue sets the output-stream and (if needed) batch-norm
// operand base addresses.
func addressPrologue(out, bnMean, bnScale *tensor.Descriptor, ld0, ld1 bool) ([]uint32, error) {
	var words []uint32
	emit := func(sp isa.Scratchpad, index int, addr uint64) error {
		w, err := isa.BaseAddress(sp, index, addr)
		if err != nil {
			return err
		}
		words = append(words, w)
		return nil
	}

	outAddr := out.Addr + padOffset(out)
	if err := emit(isa.OBUF, 0, outAddr); err != nil {
		return nil, err
	}
	if err := emit(isa.OBUF, 1, outAddr); err != nil {
		return nil, err
	}
	if ld0 {
		if err := emit(isa.WBUF, 0, bnMean.Addr); err != nil {
			return nil, err
		}
		if err := emit(isa.WBUF, 1, bnMean.Addr); err != nil {
			return nil, err
		}
	}
	if ld1 {
		if err := emit(isa.BIAS, 0, bnScale.Addr); err != nil {
			return nil, err
		}
		if err := emit(isa.BIAS, 1, bnScale.Addr); err != nil {
			return nil, err
		}
	}
	return words, nil
}

func padOffset(d *tensor.Descriptor) uint64 {
	shape := d.FPGAShape()
	bytesPerElem := uint64((d.Dtype.Bits() + 7) / 8)
	offset := uint64(0)
	for i := range shape {
		trailing := uint64(1)
		for _, s := range shape[i+1:] {
			trailing *= uint64(s)
		}
		offset += uint64(d.Pad[i].Left) * trailing
	}
	return offset * bytesPerElem
}

// windowAddressGen emits the nested pool-window read-address generator
// loops (one level per pool kernel/stride dimension, loop ids 0).
func windowAddressGen(poolKW, poolKH, poolOW, poolOH, poolSW, poolSH, oc, ow, oh, b int, ld0, ld1 bool) ([]uint32, error) {
	var words []uint32
	step := func(loopID int, iterations int, stride int) error {
		l, err := isa.Loop(0, uint64(loopID), uint64(iterations))
		if err != nil {
			return err
		}
		words = append(words, l)
		g, err := isa.GenAddrLow(isa.IBUF, isa.AccessRD, uint64(loopID), uint64(stride))
		if err != nil {
			return err
		}
		words = append(words, g)
		return nil
	}
	if err := step(0, poolKW, oc); err != nil {
		return nil, err
	}
	if err := step(0, poolKH, oc*ow); err != nil {
		return nil, err
	}
	if err := step(0, poolOW, oc*poolSW); err != nil {
		return nil, err
	}
	if err := step(0, poolOH, oc*poolSH*ow); err != nil {
		return nil, err
	}
	if err := step(0, oc, 1); err != nil {
		return nil, err
	}
	if err := step(0, b, oc*oh*ow); err != nil {
		return nil, err
	}

	if ld0 {
		w, err := isa.LDMem(isa.WBUF, 32, 0)
		if err != nil {
			return nil, err
		}
		words = append(words, w)
	}
	if ld1 {
		w, err := isa.LDMem(isa.BIAS, 32, 0)
		if err != nil {
			return nil, err
		}
		words = append(words, w)
	}
	return words, nil
}

// outputAddressGen emits the write-address generator loops for the
// pooled output stream (loop id 1).
func outputAddressGen(out *tensor.Descriptor, oc, ow, oh, b, poolOW, poolOH, simdLanes int) ([]uint32, error) {
	shape := out.FPGAShape()
	pOC := ceilDivInt(shape[len(shape)-1], simdLanes)

	var words []uint32
	step := func(iterations, stride int) error {
		l, err := isa.Loop(1, 1, uint64(iterations))
		if err != nil {
			return err
		}
		words = append(words, l)
		g, err := isa.GenAddrLow(isa.OBUF, isa.AccessWR, 1, uint64(stride))
		if err != nil {
			return err
		}
		words = append(words, g)
		return nil
	}
	if err := step(poolOW, pOC); err != nil {
		return nil, err
	}
	if err := step(poolOH, pOC*poolOW); err != nil {
		return nil, err
	}
	if err := step(oc, 1); err != nil {
		return nil, err
	}
	if err := step(b, pOC*poolOW*poolOH); err != nil {
		return nil, err
	}
	return words, nil
}

// loadAddressGen emits the ld0/ld1 (batch-norm operand) read-address
// generator loops, acquired once per pooled window rather than once per
// pool-kernel element — the enabled Open Question behavior.
func loadAddressGen(poolOW, poolOH, oc, b int, ld0, ld1 bool) ([]uint32, error) {
	var words []uint32
	emit := func(loopID int, iterations, stride int) error {
		l, err := isa.Loop(loopID, uint64(loopID), uint64(iterations))
		if err != nil {
			return err
		}
		words = append(words, l)
		sp := isa.WBUF
		if loopID == 3 {
			sp = isa.BIAS
		}
		g, err := isa.GenAddrLow(sp, isa.AccessRD, uint64(loopID), uint64(stride))
		if err != nil {
			return err
		}
		words = append(words, g)
		return nil
	}
	if ld0 {
		if err := emit(2, poolOW, 0); err != nil {
			return nil, err
		}
		if err := emit(2, poolOH, 0); err != nil {
			return nil, err
		}
		if err := emit(2, oc, 1); err != nil {
			return nil, err
		}
		if err := emit(2, b, 0); err != nil {
			return nil, err
		}
	}
	if ld1 {
		if err := emit(3, poolOW, 0); err != nil {
			return nil, err
		}
		if err := emit(3, poolOH, 0); err != nil {
			return nil, err
		}
		if err := emit(3, oc, 1); err != nil {
			return nil, err
		}
		if err := emit(3, b, 0); err != nil {
			return nil, err
		}
	}
	return words, nil
}

// computeProgram builds the register-allocated compute sequence and
// returns (instructions, repeat count). It implements the max-reduction
// pool accumulation and the no-pool shortcut (no pool_reg when
// pool_kw*pool_kh == 1, per the second Open Question decision).
func computeProgram(regs *RegisterFile, prePool, postPool []*graph.Op, poolKW, poolKH int, ld0, ld1 bool, poolOW, poolOH, b, oc int) ([]uint32, int, error) {
	var compute []uint32
	emit := func(w uint32, err error) error {
		if err != nil {
			return err
		}
		compute = append(compute, w)
		return nil
	}

	var bnScaleReg, bnMeanReg int = -1, -1
	var poolReg int = -1
	windows := poolKW * poolKH
	if windows < 1 {
		windows = 1
	}

	applyOp := func(op *graph.Op, destReg int) error {
		switch op.Kind {
		case graph.LeakyReLU:
			tmp, err := regs.Acquire()
			if err != nil {
				return err
			}
			if err := emit(isa.ComputeI(isa.FnMUL, 0, uint32(destReg), uint32(tmp))); err != nil {
				return err
			}
			if err := emit(isa.ComputeI(isa.FnRSHIFT, 16, uint32(tmp), uint32(tmp))); err != nil {
				return err
			}
			if err := emit(isa.ComputeR(isa.FnMAX, uint32(tmp), uint32(destReg), uint32(destReg))); err != nil {
				return err
			}
			regs.Release(tmp)
			return nil
		case graph.BatchNorm:
			if bnScaleReg < 0 {
				r1, err := regs.Acquire()
				if err != nil {
					return err
				}
				bnScaleReg = r1
				if err := emit(isa.ComputeR(isa.FnNOP, 0, isa.SrcLD0, uint32(bnScaleReg))); err != nil {
					return err
				}
				r2, err := regs.Acquire()
				if err != nil {
					return err
				}
				bnMeanReg = r2
				if err := emit(isa.ComputeR(isa.FnNOP, 0, isa.SrcLD1, uint32(bnMeanReg))); err != nil {
					return err
				}
			}
			if err := emit(isa.ComputeR(isa.FnSUB, uint32(bnScaleReg), uint32(destReg), uint32(destReg))); err != nil {
				return err
			}
			if err := emit(isa.ComputeI(isa.FnRSHIFT, 0, uint32(destReg), uint32(destReg))); err != nil {
				return err
			}
			if err := emit(isa.ComputeR(isa.FnMUL, uint32(bnMeanReg), uint32(destReg), uint32(destReg))); err != nil {
				return err
			}
			return nil
		case graph.TypeCast:
			return emit(isa.ComputeI(isa.FnRSHIFT, 0, uint32(destReg), uint32(destReg)))
		default:
			return fmt.Errorf("pucompiler: %w: op kind %s in PU compute program", cerrors.ErrUnsupportedPUOp, op.Kind)
		}
	}

	for idx := 0; idx < windows; idx++ {
		destReg, err := regs.Acquire()
		if err != nil {
			return nil, 0, err
		}
		if err := emit(isa.ComputeR(isa.FnNOP, 0, isa.SrcOBUF, uint32(destReg))); err != nil {
			return nil, 0, err
		}

		for _, op := range prePool {
			if err := applyOp(op, destReg); err != nil {
				return nil, 0, err
			}
		}

		if poolReg < 0 {
			poolReg = destReg
		} else {
			if idx != windows-1 || len(postPool) > 0 {
				if err := emit(isa.ComputeR(isa.FnMAX, uint32(poolReg), uint32(destReg), uint32(poolReg))); err != nil {
					return nil, 0, err
				}
			} else {
				if err := emit(isa.ComputeR(isa.FnMAX, uint32(poolReg), uint32(destReg), isa.DestST)); err != nil {
					return nil, 0, err
				}
				regs.Release(poolReg)
				poolReg = -1
			}
			regs.Release(destReg)
		}
	}

	if ld0 || ld1 {
		if bnScaleReg >= 0 {
			regs.Release(bnScaleReg)
		}
		if bnMeanReg >= 0 {
			regs.Release(bnMeanReg)
		}
	}

	destReg := poolReg
	for _, op := range postPool {
		if err := applyOp(op, destReg); err != nil {
			return nil, 0, err
		}
	}
	if destReg >= 0 {
		if err := emit(isa.ComputeR(isa.FnNOP, 0, uint32(destReg), isa.DestST)); err != nil {
			return nil, 0, err
		}
		regs.Release(destReg)
	}

	repeats := b * poolOW * poolOH * oc
	return compute, repeats, nil
}

func ceilDivInt(a, b int) int {
	if b <= 0 {
		return 0
	}
	return (a + b - 1) / b
}
