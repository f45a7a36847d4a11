package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAccelYAML = `
n: 4
m: 4
ibuf_bytes: 262144
wbuf_bytes: 262144
obuf_bytes: 262144
bbuf_bytes: 16384
dram_width_bits: 256
clock_hz: 200000000
min_precision_bits: 1
max_precision_bits: 32
`

const testGraphYAML = `
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
ops:
  - name: conv1
    kind: convolution
    data: input
    weights: conv1_w
    bias: conv1_b
    output: conv1_out
    stride: 1
    pad_mode: same
`

func writeTestFiles(t *testing.T, dir string) (graphPath, accelPath string) {
	t.Helper()
	graphPath = filepath.Join(dir, "net.graph.yaml")
	accelPath = filepath.Join(dir, "net.accel.yaml")
	require.NoError(t, os.WriteFile(graphPath, []byte(testGraphYAML), 0o644))
	require.NoError(t, os.WriteFile(accelPath, []byte(testAccelYAML), 0o644))
	return graphPath, accelPath
}

func TestCompileCommandProducesBinaryAndLayout(t *testing.T) {
	dir := t.TempDir()
	graphPath, accelPath := writeTestFiles(t, dir)
	outPath := filepath.Join(dir, "out.bin")
	layoutPath := filepath.Join(dir, "layout.json")

	cmd := NewRootCmd()
	cmd.SetArgs([]string{"compile",
		"--graph", graphPath,
		"--accel", accelPath,
		"--out", outPath,
		"--layout", layoutPath,
	})
	require.NoError(t, cmd.Execute())

	info, err := os.Stat(outPath)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
	assert.Zero(t, info.Size()%4)

	_, err = os.Stat(layoutPath)
	require.NoError(t, err)
}

func TestInspectCommandDecodesBinary(t *testing.T) {
	dir := t.TempDir()
	graphPath, accelPath := writeTestFiles(t, dir)
	outPath := filepath.Join(dir, "out.bin")

	compileCmd := NewRootCmd()
	compileCmd.SetArgs([]string{"compile", "--graph", graphPath, "--accel", accelPath, "--out", outPath})
	require.NoError(t, compileCmd.Execute())

	inspectCmd := NewRootCmd()
	inspectCmd.SetArgs([]string{"inspect", outPath})
	require.NoError(t, inspectCmd.Execute())
}

func TestBenchCommandReportsOverDirectory(t *testing.T) {
	dir := t.TempDir()
	writeTestFiles(t, dir)

	cmd := NewRootCmd()
	cmd.SetArgs([]string{"bench", "--dir", dir})
	require.NoError(t, cmd.Execute())
}
