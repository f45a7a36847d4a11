// Package refsim is a float32 reference evaluator for fused macro-nodes
// (conv + ordered post-ops), used only by tests to cross-check the shapes
// the fixed-point compile path produces. It never runs on the compile
// path itself.
package refsim

import (
	"fmt"
	"math/rand/v2"

	"github.com/dnncompile/dnncompile/internal/tensor"
)

// FeatureMap is a 3D activation in [channel][height][width] flat layout,
// refsim's float32 ground truth for an IBUF/OBUF tensor.
type FeatureMap struct {
	Height   int
	Width    int
	Channels int
	Data     []float32
}

// NewFeatureMap allocates a zeroed feature map of the given dimensions.
func NewFeatureMap(height, width, channels int) *FeatureMap {
	return &FeatureMap{
		Height:   height,
		Width:    width,
		Channels: channels,
		Data:     make([]float32, height*width*channels),
	}
}

// NewFeatureMapFromData wraps an existing flat CHW buffer.
func NewFeatureMapFromData(data []float32, height, width, channels int) (*FeatureMap, error) {
	want := height * width * channels
	if len(data) != want {
		return nil, fmt.Errorf("refsim: feature map data length %d != expected %d", len(data), want)
	}
	fm := NewFeatureMap(height, width, channels)
	copy(fm.Data, data)
	return fm, nil
}

// NewFeatureMapFromTensor dequantizes t (an IBUF/OBUF tensor, shape
// [B,H,W,C] with B=1 or [H,W,C]) into a float32 FeatureMap — the bridge
// from a tensor's fixed-point bytes into the float32 evaluator, exercised
// by fixedpoint_test.
func NewFeatureMapFromTensor(t *tensor.Descriptor) (*FeatureMap, error) {
	var h, w, c int
	switch len(t.Shape) {
	case 3:
		h, w, c = t.Shape[0], t.Shape[1], t.Shape[2]
	case 4:
		if t.Shape[0] != 1 {
			return nil, fmt.Errorf("refsim: tensor %q: only batch size 1 is supported, got %d", t.Name, t.Shape[0])
		}
		h, w, c = t.Shape[1], t.Shape[2], t.Shape[3]
	default:
		return nil, fmt.Errorf("refsim: tensor %q must be rank 3 or 4 (H,W,C or 1,H,W,C), got shape %v", t.Name, t.Shape)
	}
	dec, err := newFixedDecoder(t)
	if err != nil {
		return nil, err
	}

	fm := NewFeatureMap(h, w, c)
	idx := 0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			for ch := 0; ch < c; ch++ {
				fm.SetUnsafe(ch, y, x, dec.at(idx))
				idx++
			}
		}
	}
	return fm, nil
}

// GetUnsafe returns the value at (c,h,w) without bounds checking.
// Formula: index = c*height*width + h*width + w.
func (fm *FeatureMap) GetUnsafe(c, h, w int) float32 {
	return fm.Data[c*fm.Height*fm.Width+h*fm.Width+w]
}

// SetUnsafe sets the value at (c,h,w) without bounds checking.
func (fm *FeatureMap) SetUnsafe(c, h, w int, value float32) {
	fm.Data[c*fm.Height*fm.Width+h*fm.Width+w] = value
}

// Clone creates a deep copy of the feature map.
func (fm *FeatureMap) Clone() *FeatureMap {
	clone := NewFeatureMap(fm.Height, fm.Width, fm.Channels)
	copy(clone.Data, fm.Data)
	return clone
}

// Fill sets every element to value.
func (fm *FeatureMap) Fill(value float32) {
	for i := range fm.Data {
		fm.Data[i] = value
	}
}

// RandomFill fills the feature map with values in [0, 1), for tests that
// only need a shape to exercise, not specific activations.
func (fm *FeatureMap) RandomFill() {
	for i := range fm.Data {
		fm.Data[i] = rand.Float32()
	}
}

// Shape returns [height, width, channels].
func (fm *FeatureMap) Shape() []int {
	return []int{fm.Height, fm.Width, fm.Channels}
}
