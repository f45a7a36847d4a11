package refsim

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dnncompile/dnncompile/internal/dtype"
	"github.com/dnncompile/dnncompile/internal/tensor"
)

// encodeQ8_8 packs float values as Q8.8 fixed-point little-endian bytes,
// the inverse of fixedDecoder — test-only, to build a parameter tensor's
// Data in the layout fixedDecoder reads.
func encodeQ8_8(values []float32) []byte {
	out := make([]byte, len(values)*2)
	for i, v := range values {
		raw := int16(v * 256)
		binary.LittleEndian.PutUint16(out[i*2:], uint16(raw))
	}
	return out
}

func TestNewFeatureMapFromTensorDequantizesNHWC(t *testing.T) {
	fp := dtype.NewFixedPoint(16, 8)
	// 1x2x2x1 NHWC: a simple 2x2 single-channel image.
	desc, err := tensor.New("data", []int{1, 2, 2, 1}, fp, tensor.NoOp)
	require.NoError(t, err)
	desc.Data = encodeQ8_8([]float32{1, 2, 3, 4})

	fm, err := NewFeatureMapFromTensor(desc)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2, 1}, fm.Shape())
	assert.InDelta(t, 1, fm.GetUnsafe(0, 0, 0), 1e-3)
	assert.InDelta(t, 2, fm.GetUnsafe(0, 0, 1), 1e-3)
	assert.InDelta(t, 3, fm.GetUnsafe(0, 1, 0), 1e-3)
	assert.InDelta(t, 4, fm.GetUnsafe(0, 1, 1), 1e-3)
}

func TestNewKernelFromTensorDequantizesOHWI(t *testing.T) {
	fp := dtype.NewFixedPoint(16, 8)
	// 1x1x1x1 OHWI: a single 1x1 filter over a single input channel.
	desc, err := tensor.New("weights", []int{1, 1, 1, 1}, fp, tensor.NoOp)
	require.NoError(t, err)
	desc.Data = encodeQ8_8([]float32{2})

	k, err := NewKernelFromTensor(desc)
	require.NoError(t, err)
	assert.InDelta(t, 2, k.GetWeightUnsafe(0, 0, 0, 0), 1e-3)
}

func TestFromTensorFeedsConv2DDirectly(t *testing.T) {
	fp := dtype.NewFixedPoint(16, 8)

	data, err := tensor.New("data", []int{1, 2, 2, 1}, fp, tensor.NoOp)
	require.NoError(t, err)
	data.Data = encodeQ8_8([]float32{1, 2, 3, 4})

	weights, err := tensor.New("weights", []int{1, 1, 1, 1}, fp, tensor.NoOp)
	require.NoError(t, err)
	weights.Data = encodeQ8_8([]float32{2})

	fm, err := NewFeatureMapFromTensor(data)
	require.NoError(t, err)
	kernel, err := NewKernelFromTensor(weights)
	require.NoError(t, err)

	out, err := Conv2D(fm, kernel, []float32{0}, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2, 1}, out.Shape())
	assert.InDelta(t, 2, out.GetUnsafe(0, 0, 0), 1e-3)
	assert.InDelta(t, 4, out.GetUnsafe(0, 0, 1), 1e-3)
	assert.InDelta(t, 6, out.GetUnsafe(0, 1, 0), 1e-3)
	assert.InDelta(t, 8, out.GetUnsafe(0, 1, 1), 1e-3)
}

func TestNewFeatureMapFromTensorRejectsNonFixedPointDtype(t *testing.T) {
	desc, err := tensor.New("data", []int{1, 1, 1, 1}, dtype.NewFloat(32), tensor.NoOp)
	require.NoError(t, err)
	desc.Data = make([]byte, 4)

	_, err = NewFeatureMapFromTensor(desc)
	assert.Error(t, err)
}
