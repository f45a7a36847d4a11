// Package memmanager implements the DRAM address allocator (§4.4): a
// bump allocator that rounds every tensor's size up to a 1 KiB boundary
// and leaves a small randomized gap between tensors, assigning each
// address exactly once. Grounded on the teacher's kernel.go RandomFill,
// which already reaches for math/rand/v2 for test-data generation; the
// allocator reuses that same package for its inter-tensor gap.
package memmanager

import (
	"fmt"
	"math/rand/v2"

	"github.com/dnncompile/dnncompile/internal/cerrors"
	"github.com/dnncompile/dnncompile/internal/tensor"
)

const (
	alignment   = 1024
	minGapBytes = 1 * 1024
	maxGapBytes = 15 * 1024
)

// Allocator is a seeded bump allocator over a flat DRAM address space.
// It is not safe for concurrent use; the graph compiler drives it from
// a single goroutine per compilation.
type Allocator struct {
	next uint64
	rng  *rand.Rand
}

// New builds an allocator seeded for reproducible gap sequences. Two
// allocators built with the same seed produce identical address plans
// for the same sequence of Allocate calls.
func New(seed uint64) *Allocator {
	return &Allocator{
		rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Allocate assigns the next free address to d, rounding its FPGA-padded
// size up to a 1 KiB boundary and advancing past a random 1-15 KiB gap
// for the next tensor. It fails with LayoutConflict if d already has an
// address assigned to a different value.
func (a *Allocator) Allocate(d *tensor.Descriptor) (uint64, error) {
	addr := a.next

	size := d.FPGASizeInBytes()
	rounded := roundUp(size, alignment)

	gap := uint64(minGapBytes)
	if maxGapBytes > minGapBytes {
		gap += uint64(a.rng.IntN(maxGapBytes - minGapBytes + 1))
	}
	a.next = addr + rounded + gap

	if err := d.SetAddr(addr); err != nil {
		return 0, fmt.Errorf("memmanager: %s: %w", d.Name, err)
	}
	return addr, nil
}

// AllocateAll allocates addresses for every descriptor in order, failing
// fast on the first error (§7's no-partial-output policy).
func (a *Allocator) AllocateAll(descs []*tensor.Descriptor) error {
	for _, d := range descs {
		if d.AddrAssigned() {
			continue
		}
		if _, err := a.Allocate(d); err != nil {
			return err
		}
	}
	return nil
}

// HighWaterMark returns the first address not yet claimed by any
// allocation (the total footprint of everything allocated so far, plus
// its trailing gap).
func (a *Allocator) HighWaterMark() uint64 {
	return a.next
}

func roundUp(size, align uint64) uint64 {
	if align == 0 {
		return size
	}
	return ((size + align - 1) / align) * align
}

// CheckNonOverlapping verifies the invariant that no two assigned
// descriptors share any byte of address space; it is intended for test
// and validation use, not the hot compile path.
func CheckNonOverlapping(descs []*tensor.Descriptor) error {
	type span struct {
		start, end uint64
		name       string
	}
	spans := make([]span, 0, len(descs))
	for _, d := range descs {
		if !d.AddrAssigned() {
			continue
		}
		start := d.Addr
		end := start + d.FPGASizeInBytes()
		spans = append(spans, span{start, end, d.Name})
	}
	for i := 0; i < len(spans); i++ {
		for j := i + 1; j < len(spans); j++ {
			if spans[i].start < spans[j].end && spans[j].start < spans[i].end {
				return fmt.Errorf("memmanager: %s and %s: %w", spans[i].name, spans[j].name, cerrors.ErrLayoutConflict)
			}
		}
	}
	return nil
}
