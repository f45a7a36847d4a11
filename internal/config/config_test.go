package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dnncompile/dnncompile/internal/graph"
)

func TestParseAccelSpec(t *testing.T) {
	yaml := []byte(`
n: 16
m: 16
ibuf_bytes: 262144
wbuf_bytes: 262144
obuf_bytes: 262144
bbuf_bytes: 16384
dram_width_bits: 256
clock_hz: 200000000
min_precision_bits: 1
max_precision_bits: 32
`)
	spec, err := ParseAccelSpec(yaml)
	require.NoError(t, err)
	assert.Equal(t, 16, spec.N)
	assert.Equal(t, 16, spec.M)
	assert.Equal(t, uint64(262144), spec.IBUFBytes)
	assert.Equal(t, 256, spec.DRAMWidthBits)
}

func TestParseGraphBuildsConvBatchNormReluPool(t *testing.T) {
	yaml := []byte(`
tensors:
  - name: input
    shape: [1, 8, 8, 4]
    dtype: {kind: fixedpoint, bits: 16, frac_bits: 8}
  - name: conv1_w
    shape: [8, 3, 3, 4]
    dtype: {kind: fixedpoint, bits: 16, frac_bits: 8}
  - name: conv1_b
    shape: [8]
    dtype: {kind: fixedpoint, bits: 16, frac_bits: 8}
  - name: conv1_out
    shape: [1, 8, 8, 8]
    dtype: {kind: fixedpoint, bits: 32, frac_bits: 16}
  - name: bn_mean
    shape: [8]
    dtype: {kind: fixedpoint, bits: 16, frac_bits: 8}
  - name: bn_scale
    shape: [8]
    dtype: {kind: fixedpoint, bits: 16, frac_bits: 8}
  - name: bn_out
    shape: [1, 8, 8, 8]
    dtype: {kind: fixedpoint, bits: 32, frac_bits: 16}
  - name: alpha
    shape: [1]
    dtype: {kind: fixedpoint, bits: 16, frac_bits: 8}
  - name: relu_out
    shape: [1, 8, 8, 8]
    dtype: {kind: fixedpoint, bits: 32, frac_bits: 16}
  - name: pool_out
    shape: [1, 4, 4, 8]
    dtype: {kind: fixedpoint, bits: 32, frac_bits: 16}
ops:
  - name: conv1
    kind: convolution
    data: input
    weights: conv1_w
    bias: conv1_b
    output: conv1_out
    stride: 1
    pad_mode: same
  - name: conv1_bn
    kind: batchnorm
    data: conv1_out
    mean: bn_mean
    scale: bn_scale
    output: bn_out
    eps: 0.00001
  - name: conv1_relu
    kind: leakyrelu
    data: bn_out
    alpha: alpha
    output: relu_out
  - name: pool1
    kind: maxpooling
    data: relu_out
    output: pool_out
    pool_kernel: [1, 2, 2, 1]
    pool_stride: [1, 2, 2, 1]
    pool_pad_mode: valid
`)
	g, err := ParseGraph(yaml)
	require.NoError(t, err)
	require.Len(t, g.Ops(), 4)
	require.Len(t, g.Tensors(), 10)

	nodes, err := graph.FuseMacroNodes(g)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Len(t, nodes[0].PostOps, 3)
}
