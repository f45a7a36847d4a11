package tensor

import (
	"testing"

	"github.com/dnncompile/dnncompile/internal/dtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsNonPositiveDims(t *testing.T) {
	_, err := New("x", []int{4, 0, 3}, dtype.FXP16, NoOp)
	require.Error(t, err)
}

func TestFPGAShapeAndSize(t *testing.T) {
	d, err := New("ibuf", []int{1, 4, 4, 14}, dtype.FXP16, NoOp)
	require.NoError(t, err)

	d.SetChannelPad(3, 2) // pad channel 14 -> 16

	assert.Equal(t, []int{1, 4, 4, 16}, d.FPGAShape())
	assert.Equal(t, uint64(1*4*4*16*2), d.FPGASizeInBytes())
}

func TestChannelPadCombinesAdditively(t *testing.T) {
	d, err := New("obuf", []int{1, 4, 4, 14}, dtype.FXP16, NoOp)
	require.NoError(t, err)

	d.SetChannelPad(3, 1) // pool pad recorded first
	d.SetChannelPad(3, 2) // conv padding pass adds more

	assert.Equal(t, Pad{Left: 0, Right: 3}, d.Pad[3])
}

func TestSetAddrWriteOnce(t *testing.T) {
	d, err := New("w", []int{4}, dtype.FXP16, NoOp)
	require.NoError(t, err)

	require.NoError(t, d.SetAddr(1024))
	assert.True(t, d.AddrAssigned())

	// Re-assigning the same value is idempotent.
	require.NoError(t, d.SetAddr(1024))

	// A different value is a layout conflict.
	err = d.SetAddr(2048)
	require.Error(t, err)
}
