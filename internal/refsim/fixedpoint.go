package refsim

import (
	"encoding/binary"
	"fmt"

	"github.com/dnncompile/dnncompile/internal/dtype"
	"github.com/dnncompile/dnncompile/internal/tensor"
)

// fixedDecoder reads little-endian signed fixed-point elements out of a
// tensor.Descriptor's raw Data and converts them to float32, the dequant
// step every *FromTensor constructor in this package needs.
type fixedDecoder struct {
	data      []byte
	byteWidth int
	scale     float32
}

func newFixedDecoder(t *tensor.Descriptor) (fixedDecoder, error) {
	fp, ok := t.Dtype.(dtype.FixedPoint)
	if !ok {
		return fixedDecoder{}, fmt.Errorf("refsim: tensor %q dtype %v is not fixed-point", t.Name, t.Dtype)
	}
	byteWidth := fp.Bits() / 8
	if byteWidth != 1 && byteWidth != 2 && byteWidth != 4 {
		return fixedDecoder{}, fmt.Errorf("refsim: tensor %q: unsupported fixed-point width %d bits", t.Name, fp.Bits())
	}

	elems := 1
	for _, s := range t.Shape {
		elems *= s
	}
	if want := elems * byteWidth; len(t.Data) != want {
		return fixedDecoder{}, fmt.Errorf("refsim: tensor %q: data length %d != expected %d", t.Name, len(t.Data), want)
	}

	return fixedDecoder{
		data:      t.Data,
		byteWidth: byteWidth,
		scale:     float32(int64(1) << uint(fp.FracBits())),
	}, nil
}

func (d fixedDecoder) at(idx int) float32 {
	off := idx * d.byteWidth
	var raw int64
	switch d.byteWidth {
	case 1:
		raw = int64(int8(d.data[off]))
	case 2:
		raw = int64(int16(binary.LittleEndian.Uint16(d.data[off : off+2])))
	case 4:
		raw = int64(int32(binary.LittleEndian.Uint32(d.data[off : off+4])))
	}
	return float32(raw) / d.scale
}
