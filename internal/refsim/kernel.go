package refsim

import (
	"fmt"
	"math/rand/v2"

	"github.com/dnncompile/dnncompile/internal/tensor"
)

// Kernel is convolution weights in [filter][channel][height][width] flat
// layout, refsim's float32 ground truth for a WBUF tensor.
type Kernel struct {
	Size     int // kernel height/width (square kernels only)
	Channels int // input channels
	Filters  int // output filters
	Weights  []float32
}

// NewKernel allocates a zeroed kernel of the given dimensions.
func NewKernel(size, channels, filters int) *Kernel {
	return &Kernel{
		Size:     size,
		Channels: channels,
		Filters:  filters,
		Weights:  make([]float32, size*size*channels*filters),
	}
}

// NewKernelFromTensor dequantizes t (a WBUF tensor, shape [OC,KH,KW,IC],
// backed by fixed-point Data) into a float32 Kernel — the bridge from a
// weight tensor's fixed-point bytes into the float32 evaluator, exercised
// by fixedpoint_test.
func NewKernelFromTensor(t *tensor.Descriptor) (*Kernel, error) {
	if len(t.Shape) != 4 {
		return nil, fmt.Errorf("refsim: kernel tensor %q must be rank 4 (OC,KH,KW,IC), got shape %v", t.Name, t.Shape)
	}
	oc, kh, kw, ic := t.Shape[0], t.Shape[1], t.Shape[2], t.Shape[3]
	if kh != kw {
		return nil, fmt.Errorf("refsim: kernel tensor %q is not square: %dx%d", t.Name, kh, kw)
	}
	dec, err := newFixedDecoder(t)
	if err != nil {
		return nil, err
	}

	k := NewKernel(kh, ic, oc)
	idx := 0
	for f := 0; f < oc; f++ {
		for h := 0; h < kh; h++ {
			for w := 0; w < kw; w++ {
				for c := 0; c < ic; c++ {
					k.SetWeightUnsafe(f, c, h, w, dec.at(idx))
					idx++
				}
			}
		}
	}
	return k, nil
}

// GetWeightUnsafe returns the weight at (f,c,h,w) without bounds checking.
// Formula: index = f*channels*size*size + c*size*size + h*size + w.
func (k *Kernel) GetWeightUnsafe(f, c, h, w int) float32 {
	return k.Weights[f*k.Channels*k.Size*k.Size+c*k.Size*k.Size+h*k.Size+w]
}

// SetWeightUnsafe sets the weight at (f,c,h,w) without bounds checking.
func (k *Kernel) SetWeightUnsafe(f, c, h, w int, value float32) {
	k.Weights[f*k.Channels*k.Size*k.Size+c*k.Size*k.Size+h*k.Size+w] = value
}

// RandomFill fills the kernel with values in [-1, 1), for tests that only
// need a shape to exercise, not specific weights.
func (k *Kernel) RandomFill() {
	for i := range k.Weights {
		k.Weights[i] = rand.Float32()*2 - 1
	}
}
