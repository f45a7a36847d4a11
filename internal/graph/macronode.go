package graph

import (
	"fmt"

	"github.com/dnncompile/dnncompile/internal/cerrors"
)

// MacroNode is a fusion cluster: exactly one Convolution (Head) plus an
// ordered list of zero or more post-conv ops that follow it in graph
// order, up to but not including the next Convolution (§3, §4.1).
type MacroNode struct {
	Head    *Op
	PostOps []*Op
}

// Name joins the head op's name with every post-op's name, mirroring the
// source's MacroNode.name ('{}+{}'.format(...) chain).
func (m *MacroNode) Name() string {
	name := m.Head.Name
	for _, op := range m.PostOps {
		name += "+" + op.Name
	}
	return name
}

// Pool returns the node's single MaxPooling op and true, or nil, false if
// none is present. The loop-nest emitter assumes at most one per node.
func (m *MacroNode) Pool() (*Op, bool) {
	for _, op := range m.PostOps {
		if op.Kind == MaxPooling {
			return op, true
		}
	}
	return nil, false
}

// FuseMacroNodes walks g in insertion order and groups it into macro-ops
// per §4.1: a new node opens at each Convolution; every subsequent
// non-Convolution op joins the currently open node. A non-Convolution op
// before any Convolution is a fatal UnsupportedOp error. Two BatchNorms in
// one node, or any Unsupported-kind op, are also rejected.
func FuseMacroNodes(g *Graph) ([]*MacroNode, error) {
	var nodes []*MacroNode
	var current *MacroNode
	sawBatchNorm := false

	for _, op := range g.Ops() {
		switch op.Kind {
		case Convolution:
			current = &MacroNode{Head: op}
			nodes = append(nodes, current)
			sawBatchNorm = false
		case Passthrough:
			// Accepted anywhere; the compiler emits nothing for it and it
			// does not join a macro-node's post-op chain.
			continue
		default:
			if current == nil {
				return nil, fmt.Errorf("graph: op %q: %w: non-convolution op before any convolution", op.Name, cerrors.ErrUnsupportedOp)
			}
			if !op.Kind.IsPostConv() {
				return nil, fmt.Errorf("graph: op %q: %w: kind %s cannot follow a convolution", op.Name, cerrors.ErrUnsupportedOp, op.Kind)
			}
			if op.Kind == BatchNorm {
				if sawBatchNorm {
					return nil, fmt.Errorf("graph: op %q: %w: a macro-op may fuse at most one BatchNorm", op.Name, cerrors.ErrUnsupportedOp)
				}
				sawBatchNorm = true
			}
			current.PostOps = append(current.PostOps, op)
		}
	}
	return nodes, nil
}
