// Package tensor defines the tensor descriptor that flows through the
// compiler: logical shape, element dtype, FPGA padding, and DRAM address.
// Descriptors are immutable after construction except for the two
// compiler-written fields: Pad, which the graph compiler's padding pass
// accumulates through SetChannelPad, and Addr, which is write-once.
package tensor

import (
	"fmt"

	"github.com/dnncompile/dnncompile/internal/cerrors"
	"github.com/dnncompile/dnncompile/internal/dtype"
)

// OpID indexes into a Graph's op arena. The sentinel NoOp (-1) means "no
// producing op" (a graph input or parameter tensor).
type OpID int

// NoOp is the sentinel OpID for tensors with no producing operation.
const NoOp OpID = -1

// TensorID indexes into a Graph's tensor arena.
type TensorID int

// Pad is a (left, right) non-negative padding pair for one dimension.
type Pad struct {
	Left  int
	Right int
}

// Total returns Left+Right.
func (p Pad) Total() int { return p.Left + p.Right }

// Descriptor is a tensor's compile-time metadata. Shape, Dtype, and Name
// are fixed at construction; Pad is written by the graph compiler (adding
// to any padding already recorded) and Addr exactly once by the memory
// manager.
type Descriptor struct {
	Name  string
	Shape []int
	Dtype dtype.Dtype

	// Producer is the op that wrote this tensor, or NoOp for inputs and
	// parameters.
	Producer OpID

	// Pad holds one entry per dimension of Shape; all zero until the
	// graph compiler's padding pass runs.
	Pad []Pad

	// Addr is the DRAM byte offset. addrSet guards the write-once
	// invariant (iv) from the data model.
	Addr    uint64
	addrSet bool

	// Data is optional backing bytes for parameters (weights, bias,
	// batch-norm statistics). Nil for activations.
	Data []byte
}

// New constructs a tensor descriptor with zero padding and no assigned
// address. shape must be all-positive.
func New(name string, shape []int, dt dtype.Dtype, producer OpID) (*Descriptor, error) {
	for i, s := range shape {
		if s <= 0 {
			return nil, fmt.Errorf("tensor %q: dimension %d has non-positive size %d", name, i, s)
		}
	}
	pad := make([]Pad, len(shape))
	return &Descriptor{
		Name:     name,
		Shape:    append([]int(nil), shape...),
		Dtype:    dt,
		Producer: producer,
		Pad:      pad,
	}, nil
}

// SetChannelPad sets the (left=0, right) padding of dimension axis,
// combining additively with whatever padding is already recorded there —
// required by §4.5 step 1, where a conv output's channel pad must combine
// with any pool pad already present.
func (d *Descriptor) SetChannelPad(axis, right int) {
	d.Pad[axis].Right += right
}

// FPGAShape returns Shape with per-dimension padding applied.
func (d *Descriptor) FPGAShape() []int {
	out := make([]int, len(d.Shape))
	for i, s := range d.Shape {
		out[i] = s + d.Pad[i].Total()
	}
	return out
}

// FPGASizeInBytes returns product(FPGAShape) * bits/8, bits rounded up to
// a whole byte.
func (d *Descriptor) FPGASizeInBytes() uint64 {
	elems := uint64(1)
	for _, s := range d.FPGAShape() {
		elems *= uint64(s)
	}
	bits := uint64(d.Dtype.Bits())
	return elems * ((bits + 7) / 8)
}

// SetAddr assigns the DRAM base address. It may only be called once; a
// second call with a different value is a LayoutConflict.
func (d *Descriptor) SetAddr(addr uint64) error {
	if d.addrSet {
		if d.Addr == addr {
			return nil
		}
		return fmt.Errorf("tensor %q: %w: already assigned %d, got %d", d.Name, cerrors.ErrLayoutConflict, d.Addr, addr)
	}
	d.Addr = addr
	d.addrSet = true
	return nil
}

// AddrAssigned reports whether SetAddr has been called.
func (d *Descriptor) AddrAssigned() bool { return d.addrSet }

// Size returns the element count of the unpadded logical shape.
func (d *Descriptor) Size() int {
	n := 1
	for _, s := range d.Shape {
		n *= s
	}
	return n
}

func (d *Descriptor) String() string {
	return fmt.Sprintf("Tensor(%s, shape=%v, dtype=%s, pad=%v)", d.Name, d.Shape, d.Dtype, d.Pad)
}
