package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dnncompile/dnncompile/internal/dtype"
	"github.com/dnncompile/dnncompile/internal/graph"
	"github.com/dnncompile/dnncompile/internal/tensor"
)

// DtypeFile is the YAML-facing description of one dtype.Dtype value,
// covering every variant in §3's data model.
type DtypeFile struct {
	Kind     string `yaml:"kind"` // "fixedpoint", "float", "log", "binary", "customfloat"
	Bits     int    `yaml:"bits,omitempty"`
	FracBits int    `yaml:"frac_bits,omitempty"`
	ExpBits  int    `yaml:"exp_bits,omitempty"`
}

// ToDtype resolves a DtypeFile into a concrete dtype.Dtype.
func (f DtypeFile) ToDtype() (dtype.Dtype, error) {
	switch f.Kind {
	case "fixedpoint", "":
		return dtype.NewFixedPoint(f.Bits, f.FracBits), nil
	case "float":
		return dtype.NewFloat(f.Bits), nil
	case "log":
		return dtype.NewLog(f.ExpBits), nil
	case "binary":
		return dtype.Binary{}, nil
	case "customfloat":
		return dtype.NewCustomFloat(f.Bits, f.ExpBits), nil
	default:
		return nil, fmt.Errorf("config: unknown dtype kind %q", f.Kind)
	}
}

// TensorFile is one entry of the ordered tensor table (§3).
type TensorFile struct {
	Name  string    `yaml:"name"`
	Shape []int     `yaml:"shape"`
	Dtype DtypeFile `yaml:"dtype"`
}

// OpFile is one entry of the ordered op table (§3). Only the fields
// relevant to Kind need be set; tensor references are by name and
// resolved against the tensors already declared above them.
type OpFile struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind"`

	Data   string `yaml:"data,omitempty"`
	Output string `yaml:"output"`

	// Convolution.
	Weights string `yaml:"weights,omitempty"`
	Bias    string `yaml:"bias,omitempty"`
	Stride  int    `yaml:"stride,omitempty"`
	PadMode string `yaml:"pad_mode,omitempty"`
	Group   int    `yaml:"group,omitempty"`

	// MaxPooling.
	PoolKernel  [4]int `yaml:"pool_kernel,omitempty"`
	PoolStride  [4]int `yaml:"pool_stride,omitempty"`
	PoolPadMode string `yaml:"pool_pad_mode,omitempty"`

	// BatchNorm.
	Mean string  `yaml:"mean,omitempty"`
	Scale string `yaml:"scale,omitempty"`
	Eps   float64 `yaml:"eps,omitempty"`

	// LeakyReLU.
	Alpha string `yaml:"alpha,omitempty"`

	// TypeCast.
	TargetDtype DtypeFile `yaml:"target_dtype,omitempty"`
}

// GraphFile is the full ordered tensor table + ordered op table a
// "compile" invocation reads (§6's "Input: graph description").
type GraphFile struct {
	Tensors []TensorFile `yaml:"tensors"`
	Ops     []OpFile     `yaml:"ops"`
}

func parsePadMode(s string) (graph.PadMode, error) {
	switch s {
	case "", "same":
		return graph.PadSame, nil
	case "valid":
		return graph.PadValid, nil
	case "explicit":
		return graph.PadExplicit, nil
	default:
		return 0, fmt.Errorf("config: unknown pad mode %q", s)
	}
}

// LoadGraph reads a GraphFile from path and builds a graph.Graph from it
// directly against the tensor/op arena (not graph.Builder's
// shape-inference helpers — a graph description spells out every tensor
// and op explicitly, per §3).
func LoadGraph(path string) (*graph.Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading graph description %q: %w", path, err)
	}
	return ParseGraph(data)
}

// ParseGraph decodes raw YAML bytes into a graph.Graph.
func ParseGraph(data []byte) (*graph.Graph, error) {
	var file GraphFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("config: parsing graph description: %w", err)
	}

	g := graph.New()
	names := make(map[string]tensor.TensorID, len(file.Tensors))

	for _, tf := range file.Tensors {
		dt, err := tf.Dtype.ToDtype()
		if err != nil {
			return nil, fmt.Errorf("config: tensor %q: %w", tf.Name, err)
		}
		id, err := g.AddTensor(tf.Name, tf.Shape, dt, tensor.NoOp)
		if err != nil {
			return nil, fmt.Errorf("config: tensor %q: %w", tf.Name, err)
		}
		names[tf.Name] = id
	}

	resolve := func(name string) tensor.TensorID {
		if name == "" {
			return graph.NoTensor
		}
		return names[name]
	}

	for _, of := range file.Ops {
		op, err := buildOp(of, resolve)
		if err != nil {
			return nil, fmt.Errorf("config: op %q: %w", of.Name, err)
		}
		if _, err := g.AddOp(op); err != nil {
			return nil, fmt.Errorf("config: op %q: %w", of.Name, err)
		}
	}

	return g, nil
}

func buildOp(of OpFile, resolve func(string) tensor.TensorID) (*graph.Op, error) {
	op := &graph.Op{
		Name:   of.Name,
		Data:   resolve(of.Data),
		Output: resolve(of.Output),
	}

	switch of.Kind {
	case "convolution":
		mode, err := parsePadMode(of.PadMode)
		if err != nil {
			return nil, err
		}
		op.Kind = graph.Convolution
		op.Weights = resolve(of.Weights)
		op.Bias = resolve(of.Bias)
		op.Stride = of.Stride
		op.PadMode = mode
		op.Group = of.Group
		if op.Group == 0 {
			op.Group = 1
		}
	case "maxpooling":
		mode, err := parsePadMode(of.PoolPadMode)
		if err != nil {
			return nil, err
		}
		op.Kind = graph.MaxPooling
		op.PoolKernel = of.PoolKernel
		op.PoolStride = of.PoolStride
		op.PoolPadMode = mode
	case "batchnorm":
		op.Kind = graph.BatchNorm
		op.Mean = resolve(of.Mean)
		op.Scale = resolve(of.Scale)
		op.Eps = of.Eps
	case "leakyrelu":
		op.Kind = graph.LeakyReLU
		op.Alpha = resolve(of.Alpha)
	case "typecast":
		dt, err := of.TargetDtype.ToDtype()
		if err != nil {
			return nil, err
		}
		op.Kind = graph.TypeCast
		op.TargetDtype = dt
	case "passthrough":
		op.Kind = graph.Passthrough
	default:
		return nil, fmt.Errorf("unknown op kind %q", of.Kind)
	}

	return op, nil
}
