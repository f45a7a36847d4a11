package graph

import (
	"fmt"
	"strings"

	"github.com/dnncompile/dnncompile/internal/cerrors"
	"github.com/dnncompile/dnncompile/internal/dtype"
	"github.com/dnncompile/dnncompile/internal/tensor"
)

// Builder replaces the source's process-wide GraphStack/name_scope (§9
// Design Notes) with an explicit value threaded through construction
// calls. Scope names are pushed/popped on a local stack owned by the
// builder, never on global state.
type Builder struct {
	g     *Graph
	scope []string
}

// NewBuilder returns a builder wrapping a fresh, empty graph.
func NewBuilder() *Builder {
	return &Builder{g: New()}
}

// PushScope pushes a scope name; subsequent qualified names are prefixed
// by "/".join(scope) + "/".
func (b *Builder) PushScope(name string) { b.scope = append(b.scope, name) }

// PopScope pops the innermost scope. It panics if the stack is empty,
// mirroring a programming error rather than a data error.
func (b *Builder) PopScope() {
	if len(b.scope) == 0 {
		panic("graph: PopScope called with empty scope stack")
	}
	b.scope = b.scope[:len(b.scope)-1]
}

// Scoped builds a qualified name from the current scope stack.
func (b *Builder) Scoped(name string) string {
	if len(b.scope) == 0 {
		return name
	}
	return strings.Join(b.scope, "/") + "/" + name
}

// Graph returns the graph under construction. Callers typically finish
// building, then call Graph() once.
func (b *Builder) Graph() *Graph { return b.g }

// Input registers a graph input (or parameter) tensor with no producer.
func (b *Builder) Input(name string, shape []int, dt dtype.Dtype) (tensor.TensorID, error) {
	return b.g.AddTensor(b.Scoped(name), shape, dt, tensor.NoOp)
}

// ConvOutputShape computes a convolution's output shape for SAME/VALID
// padding given an (B,H,W,C) input and a (OC,KH,KW,IC) weight shape.
func ConvOutputShape(input []int, weightOC, kh, kw, stride int, mode PadMode) ([]int, error) {
	if len(input) != 4 {
		return nil, fmt.Errorf("graph: conv input must be rank 4, got %v", input)
	}
	b, h, w := input[0], input[1], input[2]
	var oh, ow int
	switch mode {
	case PadSame:
		oh = ceilDiv(h, stride)
		ow = ceilDiv(w, stride)
	case PadValid:
		oh = (h-kh)/stride + 1
		ow = (w-kw)/stride + 1
	default:
		return nil, fmt.Errorf("graph: explicit pad conv output shape must be computed by the caller")
	}
	if oh <= 0 || ow <= 0 {
		return nil, fmt.Errorf("graph: conv produces non-positive output shape (%d,%d)", oh, ow)
	}
	return []int{b, oh, ow, weightOC}, nil
}

func ceilDiv(a, b int) int { return (a + b - 1) / b }

// Conv adds a Convolution op. data, weights, bias must already be
// registered tensors; the output tensor is created with the given shape
// and dtype and wired as this op's output.
func (b *Builder) Conv(name string, data, weights, bias tensor.TensorID, outShape []int, outDtype dtype.Dtype, stride int, mode PadMode, group int) (tensor.TensorID, error) {
	if group != 1 {
		return 0, fmt.Errorf("graph: conv %q: %w: group must be 1, got %d", name, cerrors.ErrUnsupportedOp, group)
	}
	out, err := b.g.AddTensor(b.Scoped(name+"_out"), outShape, outDtype, tensor.NoOp)
	if err != nil {
		return 0, err
	}
	op := &Op{
		Name:    b.Scoped(name),
		Kind:    Convolution,
		Data:    data,
		Weights: weights,
		Bias:    bias,
		Stride:  stride,
		PadMode: mode,
		Group:   group,
		Output:  out,
	}
	if _, err := b.g.AddOp(op); err != nil {
		return 0, err
	}
	return out, nil
}

// MaxPool adds a MaxPooling op whose output has the given shape and
// dtype dt.
func (b *Builder) MaxPool(name string, data tensor.TensorID, outShape []int, dt dtype.Dtype, kernel, stride [4]int, mode PadMode) (tensor.TensorID, error) {
	out, err := b.g.AddTensor(b.Scoped(name+"_out"), outShape, dt, tensor.NoOp)
	if err != nil {
		return 0, err
	}
	op := &Op{
		Name:        b.Scoped(name),
		Kind:        MaxPooling,
		Data:        data,
		PoolKernel:  kernel,
		PoolStride:  stride,
		PoolPadMode: mode,
		Output:      out,
	}
	if _, err := b.g.AddOp(op); err != nil {
		return 0, err
	}
	return out, nil
}

// BatchNorm adds a BatchNorm op whose output has the given shape and
// dtype outDtype.
func (b *Builder) BatchNorm(name string, data, mean, scale tensor.TensorID, outShape []int, outDtype dtype.Dtype, eps float64) (tensor.TensorID, error) {
	out, err := b.g.AddTensor(b.Scoped(name+"_out"), outShape, outDtype, tensor.NoOp)
	if err != nil {
		return 0, err
	}
	op := &Op{
		Name:   b.Scoped(name),
		Kind:   BatchNorm,
		Data:   data,
		Mean:   mean,
		Scale:  scale,
		Eps:    eps,
		Output: out,
	}
	if _, err := b.g.AddOp(op); err != nil {
		return 0, err
	}
	return out, nil
}

// LeakyReLU adds a LeakyReLU op whose alpha is carried as a length-1
// tensor.
func (b *Builder) LeakyReLU(name string, data, alpha tensor.TensorID, outShape []int, dt dtype.Dtype) (tensor.TensorID, error) {
	out, err := b.g.AddTensor(b.Scoped(name+"_out"), outShape, dt, tensor.NoOp)
	if err != nil {
		return 0, err
	}
	op := &Op{
		Name:   b.Scoped(name),
		Kind:   LeakyReLU,
		Data:   data,
		Alpha:  alpha,
		Output: out,
	}
	if _, err := b.g.AddOp(op); err != nil {
		return 0, err
	}
	return out, nil
}

// TypeCast adds a TypeCast op narrowing/widening data to target.
func (b *Builder) TypeCast(name string, data tensor.TensorID, outShape []int, target dtype.Dtype) (tensor.TensorID, error) {
	out, err := b.g.AddTensor(b.Scoped(name+"_out"), outShape, target, tensor.NoOp)
	if err != nil {
		return 0, err
	}
	op := &Op{
		Name:        b.Scoped(name),
		Kind:        TypeCast,
		Data:        data,
		TargetDtype: target,
		Output:      out,
	}
	if _, err := b.g.AddOp(op); err != nil {
		return 0, err
	}
	return out, nil
}
