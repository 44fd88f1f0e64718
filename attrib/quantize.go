package attrib

import (
	"github.com/psc3k/tiles"
	"github.com/psc3k/tiles/accessor"
	"github.com/psc3k/tiles/vmath"
)

// QuantizedRange is the largest value of a quantized position component.
const QuantizedRange = 65535

// Dequantize maps a quantized position into the quantized volume described by
// offset and scale.
func Dequantize(q, offset, scale vmath.Vec3) vmath.Vec3 {
	return vmath.Vec3{
		q[0]*scale[0]/QuantizedRange + offset[0],
		q[1]*scale[1]/QuantizedRange + offset[1],
		q[2]*scale[2]/QuantizedRange + offset[2],
	}
}

// DequantizePositions dequantizes a sequence of quantized 3-component
// positions.
func DequantizePositions(s accessor.VectorSequence, offset, scale vmath.Vec3) ([]vmath.Vec3, error) {
	if s.Size() != 3 {
		return nil, tiles.Formatf("quantized positions must have 3 components, got %d", s.Size())
	}
	positions := make([]vmath.Vec3, 0, s.Len())
	for v := range s.All() {
		positions = append(positions, Dequantize(vmath.Vec3{v[0], v[1], v[2]}, offset, scale))
	}
	return positions, nil
}

// Vec3s converts a sequence of 3-component vectors.
func Vec3s(s accessor.VectorSequence) ([]vmath.Vec3, error) {
	if s.Size() != 3 {
		return nil, tiles.Formatf("expected 3-component vectors, got %d", s.Size())
	}
	r := make([]vmath.Vec3, 0, s.Len())
	for v := range s.All() {
		r = append(r, vmath.Vec3{v[0], v[1], v[2]})
	}
	return r, nil
}
