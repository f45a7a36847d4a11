package layout

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dnncompile/dnncompile/internal/dtype"
	"github.com/dnncompile/dnncompile/internal/tensor"
)

func TestBuildFailsBeforeAddressAssignment(t *testing.T) {
	d, err := tensor.New("w", []int{4, 3, 3, 4}, dtype.FXP16, tensor.NoOp)
	require.NoError(t, err)

	_, err = Build([]*tensor.Descriptor{d})
	require.Error(t, err)
}

func TestBuildAndWriteJSONRoundTrips(t *testing.T) {
	d, err := tensor.New("w", []int{4, 3, 3, 4}, dtype.FXP16, tensor.NoOp)
	require.NoError(t, err)
	d.SetChannelPad(len(d.Shape)-1, 4)
	require.NoError(t, d.SetAddr(2048))

	plan, err := Build([]*tensor.Descriptor{d})
	require.NoError(t, err)
	require.Len(t, plan.Tensors, 1)

	entry := plan.Tensors[0]
	assert.Equal(t, "w", entry.Name)
	assert.Equal(t, []int{4, 3, 3, 4}, entry.Shape)
	assert.Equal(t, []int{4, 3, 3, 8}, entry.PaddedShape)
	assert.Equal(t, 16, entry.BitWidth)
	assert.Equal(t, uint64(2048), entry.DRAMAddress)

	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, plan))

	var decoded Plan
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, plan, decoded)
}
