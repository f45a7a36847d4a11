package graph

import (
	"fmt"

	"github.com/dnncompile/dnncompile/internal/dtype"
	"github.com/dnncompile/dnncompile/internal/tensor"
)

// Graph is an ordered mapping from op name to op descriptor and from
// tensor name to tensor descriptor; iteration order is insertion order and
// is the execution order the compiler consumes (§3).
type Graph struct {
	tensors     []*tensor.Descriptor
	tensorIndex map[string]tensor.TensorID

	ops     []*Op
	opIndex map[string]tensor.OpID
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		tensorIndex: make(map[string]tensor.TensorID),
		opIndex:     make(map[string]tensor.OpID),
	}
}

// AddTensor registers a new tensor descriptor and returns its arena index.
// Names must be unique within the graph (invariant iii).
func (g *Graph) AddTensor(name string, shape []int, dt dtype.Dtype, producer tensor.OpID) (tensor.TensorID, error) {
	if _, exists := g.tensorIndex[name]; exists {
		return 0, fmt.Errorf("graph: tensor name %q already in use", name)
	}
	desc, err := tensor.New(name, shape, dt, producer)
	if err != nil {
		return 0, err
	}
	id := tensor.TensorID(len(g.tensors))
	g.tensors = append(g.tensors, desc)
	g.tensorIndex[name] = id
	return id, nil
}

// AddOp registers a new op and returns its arena index. It records the
// returned id as op.Output's Producer (callers build the output tensor
// first with NoOp) and fails if that tensor already has another producer.
func (g *Graph) AddOp(op *Op) (tensor.OpID, error) {
	if _, exists := g.opIndex[op.Name]; exists {
		return 0, fmt.Errorf("graph: op name %q already in use", op.Name)
	}
	id := tensor.OpID(len(g.ops))
	g.ops = append(g.ops, op)
	g.opIndex[op.Name] = id
	if op.Output >= 0 {
		out, err := g.Tensor(op.Output)
		if err != nil {
			return 0, err
		}
		if err := g.setProducer(out, id); err != nil {
			return 0, err
		}
	}
	return id, nil
}

func (g *Graph) setProducer(t *tensor.Descriptor, id tensor.OpID) error {
	if t.Producer != tensor.NoOp && t.Producer != id {
		return fmt.Errorf("graph: tensor %q already has a producer", t.Name)
	}
	t.Producer = id
	return nil
}

// Tensor returns the tensor descriptor at id.
func (g *Graph) Tensor(id tensor.TensorID) (*tensor.Descriptor, error) {
	if int(id) < 0 || int(id) >= len(g.tensors) {
		return nil, fmt.Errorf("graph: tensor id %d out of range", id)
	}
	return g.tensors[id], nil
}

// TensorByName looks up a tensor by its unique name.
func (g *Graph) TensorByName(name string) (*tensor.Descriptor, error) {
	id, ok := g.tensorIndex[name]
	if !ok {
		return nil, fmt.Errorf("graph: no tensor named %q", name)
	}
	return g.Tensor(id)
}

// Op returns the op at id.
func (g *Graph) Op(id tensor.OpID) (*Op, error) {
	if int(id) < 0 || int(id) >= len(g.ops) {
		return nil, fmt.Errorf("graph: op id %d out of range", id)
	}
	return g.ops[id], nil
}

// Ops returns all ops in insertion order.
func (g *Graph) Ops() []*Op { return g.ops }

// Tensors returns all tensor descriptors in insertion order.
func (g *Graph) Tensors() []*tensor.Descriptor { return g.tensors }
