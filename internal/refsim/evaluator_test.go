package refsim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConv2DSameShapeMatchesGraphConvOutput(t *testing.T) {
	// Mirrors graph.SampleNetwork's conv1: 32x32x3 input, 16 filters, 3x3
	// same padding, stride 1 -> 32x32x16 output.
	input := NewFeatureMap(32, 32, 3)
	input.RandomFill()
	kernel := NewKernel(3, 3, 16)
	kernel.RandomFill()
	bias := make([]float32, 16)

	out, err := Conv2D(input, kernel, bias, 1, ConvSamePadding(3))
	require.NoError(t, err)
	assert.Equal(t, []int{32, 32, 16}, out.Shape())
}

func TestMaxPool2DHalvesSpatialExtent(t *testing.T) {
	input := NewFeatureMap(32, 32, 16)
	input.RandomFill()

	out, err := MaxPool2D(input, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{16, 16, 16}, out.Shape())
}

func TestBatchNormPreservesShape(t *testing.T) {
	input := NewFeatureMap(8, 8, 4)
	input.RandomFill()
	mean := []float32{0.1, 0.2, 0.3, 0.4}
	scale := []float32{1, 1, 1, 1}

	out, err := BatchNorm(input, mean, scale)
	require.NoError(t, err)
	assert.Equal(t, input.Shape(), out.Shape())
}

func TestLeakyReLUClipsNegativesByAlpha(t *testing.T) {
	input, err := NewFeatureMapFromData([]float32{-2, 3, -4, 5}, 1, 2, 2)
	require.NoError(t, err)

	out := LeakyReLU(input, 0.1)
	assert.InDelta(t, -0.2, out.Data[0], 1e-6)
	assert.InDelta(t, 3, out.Data[1], 1e-6)
	assert.InDelta(t, -0.4, out.Data[2], 1e-6)
	assert.InDelta(t, 5, out.Data[3], 1e-6)
}

func TestFusedConvBatchNormLeakyReluMaxPoolPipeline(t *testing.T) {
	input := NewFeatureMap(32, 32, 3)
	input.RandomFill()
	kernel := NewKernel(3, 3, 16)
	kernel.RandomFill()
	bias := make([]float32, 16)

	conv, err := Conv2D(input, kernel, bias, 1, ConvSamePadding(3))
	require.NoError(t, err)

	mean := make([]float32, 16)
	scale := make([]float32, 16)
	for i := range scale {
		scale[i] = 1
	}
	bn, err := BatchNorm(conv, mean, scale)
	require.NoError(t, err)

	act := LeakyReLU(bn, 0.01)

	pooled, err := MaxPool2D(act, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{16, 16, 16}, pooled.Shape())
}
