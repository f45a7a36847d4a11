package refsim

import "fmt"

// Conv2D performs a same/valid-padded 2D convolution, the float32 ground
// truth for a macro-node's Convolution head. Grounded on the teacher's
// Conv2D/convolveFilter (internal/ops/conv.go), generalized to arbitrary
// stride/padding instead of the fixed Conv2DSame/Conv2DValid helpers.
func Conv2D(input *FeatureMap, kernel *Kernel, bias []float32, stride, padding int) (*FeatureMap, error) {
	if input.Channels != kernel.Channels {
		return nil, fmt.Errorf("refsim: conv input channels %d != kernel channels %d", input.Channels, kernel.Channels)
	}
	if len(bias) != kernel.Filters {
		return nil, fmt.Errorf("refsim: bias length %d != kernel filters %d", len(bias), kernel.Filters)
	}
	if stride <= 0 {
		return nil, fmt.Errorf("refsim: stride must be positive, got %d", stride)
	}

	in := input
	if padding > 0 {
		in = PadFeatureMap(input, padding)
	}

	outHeight := (in.Height-kernel.Size)/stride + 1
	outWidth := (in.Width-kernel.Size)/stride + 1
	if outHeight <= 0 || outWidth <= 0 {
		return nil, fmt.Errorf("refsim: input too small for kernel after padding")
	}

	out := NewFeatureMap(outHeight, outWidth, kernel.Filters)
	for f := 0; f < kernel.Filters; f++ {
		b := bias[f]
		for i := 0; i < outHeight; i++ {
			for j := 0; j < outWidth; j++ {
				var sum float32
				for c := 0; c < kernel.Channels; c++ {
					for m := 0; m < kernel.Size; m++ {
						for n := 0; n < kernel.Size; n++ {
							sum += in.GetUnsafe(c, i*stride+m, j*stride+n) * kernel.GetWeightUnsafe(f, c, m, n)
						}
					}
				}
				out.SetUnsafe(f, i, j, sum+b)
			}
		}
	}
	return out, nil
}

// ConvSamePadding returns the padding Conv2D needs to hold spatial extent
// with stride 1 (§3's PadSame convolution mode).
func ConvSamePadding(kernelSize int) int {
	return (kernelSize - 1) / 2
}

// MaxPool2D performs 2D max pooling, one reduction window per channel.
// Grounded on the teacher's Pooling2D (internal/ops/pooling.go), trimmed
// to the max-reduction the accelerator's PU actually implements.
func MaxPool2D(input *FeatureMap, kernelSize, stride int) (*FeatureMap, error) {
	if kernelSize <= 0 || stride <= 0 {
		return nil, fmt.Errorf("refsim: pool kernel/stride must be positive")
	}
	outHeight := (input.Height-kernelSize)/stride + 1
	outWidth := (input.Width-kernelSize)/stride + 1
	if outHeight <= 0 || outWidth <= 0 {
		return nil, fmt.Errorf("refsim: input too small for pool window")
	}

	out := NewFeatureMap(outHeight, outWidth, input.Channels)
	for c := 0; c < input.Channels; c++ {
		for i := 0; i < outHeight; i++ {
			for j := 0; j < outWidth; j++ {
				max := input.GetUnsafe(c, i*stride, j*stride)
				for m := 0; m < kernelSize; m++ {
					for n := 0; n < kernelSize; n++ {
						v := input.GetUnsafe(c, i*stride+m, j*stride+n)
						if v > max {
							max = v
						}
					}
				}
				out.SetUnsafe(c, i, j, max)
			}
		}
	}
	return out, nil
}

// BatchNorm applies the accelerator's already-folded affine form
// y = (x - mean) * scale, matching graph.Op's BatchNorm fields (Mean,
// Scale; no separate Variance/Shift — scale already folds
// 1/sqrt(var+eps), per §3). Grounded on the teacher's BatchNormalize
// (internal/ops/normalization.go), with the teacher's built-in ReLU
// fusion removed since LeakyReLU is its own macro-op post-op here.
func BatchNorm(input *FeatureMap, mean, scale []float32) (*FeatureMap, error) {
	if len(mean) != input.Channels || len(scale) != input.Channels {
		return nil, fmt.Errorf("refsim: batchnorm params don't match %d channels", input.Channels)
	}
	out := NewFeatureMap(input.Height, input.Width, input.Channels)
	for c := 0; c < input.Channels; c++ {
		m, s := mean[c], scale[c]
		for h := 0; h < input.Height; h++ {
			for w := 0; w < input.Width; w++ {
				out.SetUnsafe(c, h, w, (input.GetUnsafe(c, h, w)-m)*s)
			}
		}
	}
	return out, nil
}

// LeakyReLU applies f(x) = x if x > 0 else alpha*x elementwise. Grounded
// on the teacher's LeakyReLU (internal/ops/activation.go).
func LeakyReLU(input *FeatureMap, alpha float32) *FeatureMap {
	out := NewFeatureMap(input.Height, input.Width, input.Channels)
	for i, v := range input.Data {
		if v > 0 {
			out.Data[i] = v
		} else {
			out.Data[i] = alpha * v
		}
	}
	return out
}
