package refsim

// PadFeatureMap returns a copy of input with padding zero-rows/columns
// added symmetrically on every spatial edge, as Conv2D needs. Channels are
// not padded.
func PadFeatureMap(input *FeatureMap, padding int) *FeatureMap {
	if padding <= 0 {
		return input.Clone()
	}

	newHeight := input.Height + 2*padding
	newWidth := input.Width + 2*padding
	padded := NewFeatureMap(newHeight, newWidth, input.Channels)

	for c := 0; c < input.Channels; c++ {
		for h := 0; h < input.Height; h++ {
			for w := 0; w < input.Width; w++ {
				padded.SetUnsafe(c, h+padding, w+padding, input.GetUnsafe(c, h, w))
			}
		}
	}

	return padded
}
