package graph

import (
	"fmt"

	"github.com/dnncompile/dnncompile/internal/dtype"
)

// SampleNetwork builds a small fixed-point conv/batchnorm/leakyrelu/maxpool
// graph, adapted from the CIFAR-10 architecture table in
// duchm1606-gocnn/internal/model/architecture.go (trimmed to two conv
// layers and two pools): it is used by the graph and compiler tests as a
// stand-in for a demo network.
func SampleNetwork() (*Graph, error) {
	b := NewBuilder()

	data := dtype.FXP16
	weight := dtype.FXP16
	bnScale := dtype.FXP16

	input, err := b.Input("input", []int{1, 32, 32, 3}, data)
	if err != nil {
		return nil, err
	}

	x := input
	inC := 3
	filters := []int{16, 32}
	for i, oc := range filters {
		name := fmt.Sprintf("conv%d", i+1)

		weights, err := b.Input(name+"_w", []int{oc, 3, 3, inC}, weight)
		if err != nil {
			return nil, err
		}
		bias, err := b.Input(name+"_b", []int{oc}, weight)
		if err != nil {
			return nil, err
		}

		xDesc, err := b.Graph().Tensor(x)
		if err != nil {
			return nil, err
		}
		inShape := xDesc.Shape
		outShape, err := ConvOutputShape(inShape, oc, 3, 3, 1, PadSame)
		if err != nil {
			return nil, err
		}
		convOut := dtype.NewFixedPoint(64, dtype.ConvOutputFracBits(data.FracBits(), weight.FracBits()))
		x, err = b.Conv(name, x, weights, bias, outShape, convOut, 1, PadSame, 1)
		if err != nil {
			return nil, err
		}

		mean, err := b.Input(name+"_bn_mean", []int{oc}, bnScale)
		if err != nil {
			return nil, err
		}
		scale, err := b.Input(name+"_bn_scale", []int{oc}, bnScale)
		if err != nil {
			return nil, err
		}
		bnOut := dtype.BatchNormOutput(convOut.FracBits(), bnScale.FracBits())
		x, err = b.BatchNorm(name+"_bn", x, mean, scale, outShape, bnOut, 1e-5)
		if err != nil {
			return nil, err
		}

		alpha, err := b.Input(name+"_alpha", []int{1}, bnOut)
		if err != nil {
			return nil, err
		}
		x, err = b.LeakyReLU(name+"_relu", x, alpha, outShape, bnOut)
		if err != nil {
			return nil, err
		}

		poolOutShape := []int{outShape[0], outShape[1] / 2, outShape[2] / 2, outShape[3]}
		poolKernel := [4]int{1, 2, 2, 1}
		poolStride := [4]int{1, 2, 2, 1}
		x, err = b.MaxPool(fmt.Sprintf("maxpool%d", i+1), x, poolOutShape, bnOut, poolKernel, poolStride, PadValid)
		if err != nil {
			return nil, err
		}

		inC = oc
	}

	return b.Graph(), nil
}
