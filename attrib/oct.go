// Package attrib decodes the compressed vertex attributes of legacy tile
// payloads: oct-encoded normals, sRGB and RGB565 colors, and quantized
// positions.
package attrib

import (
	"math"

	"github.com/psc3k/tiles"
	"github.com/psc3k/tiles/accessor"
	"github.com/psc3k/tiles/vmath"
)

// Ranges of oct-encoded components.
const (
	Oct8Range  = 255   // OCT16P: two UNSIGNED_BYTE components.
	Oct16Range = 65535 // OCT32P: two UNSIGNED_SHORT components.
)

// signNotZero returns 1 for zero, unlike math.Copysign-based conventions.
func signNotZero(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func fromSNorm(v, rangeMax float64) float64 {
	return clamp(v, 0, rangeMax)/rangeMax*2 - 1
}

func toSNorm(v, rangeMax float64) float64 {
	return math.Round((clamp(v, -1, 1)*0.5 + 0.5) * rangeMax)
}

// OctDecode decodes an oct-encoded unit vector whose components are in the
// range [0, rangeMax].
func OctDecode(x, y, rangeMax float64) vmath.Vec3 {
	fx := fromSNorm(x, rangeMax)
	fy := fromSNorm(y, rangeMax)
	fz := 1 - (math.Abs(fx) + math.Abs(fy))
	if fz < 0 {
		ox := fx
		fx = (1 - math.Abs(fy)) * signNotZero(ox)
		fy = (1 - math.Abs(ox)) * signNotZero(fy)
	}
	return vmath.Vec3{fx, fy, fz}.Normalize()
}

// OctEncode encodes the unit vector v into two components in the range
// [0, rangeMax].
func OctEncode(v vmath.Vec3, rangeMax float64) (x, y float64) {
	l1 := math.Abs(v[0]) + math.Abs(v[1]) + math.Abs(v[2])
	if l1 == 0 {
		return toSNorm(0, rangeMax), toSNorm(0, rangeMax)
	}
	px := v[0] / l1
	py := v[1] / l1
	if v[2] < 0 {
		ox := px
		px = (1 - math.Abs(py)) * signNotZero(ox)
		py = (1 - math.Abs(ox)) * signNotZero(py)
	}
	return toSNorm(px, rangeMax), toSNorm(py, rangeMax)
}

// OctRange returns the encoding range of oct-encoded components of type ct.
func OctRange(ct tiles.ComponentType) (float64, error) {
	switch ct {
	case tiles.Uint8:
		return Oct8Range, nil
	case tiles.Uint16:
		return Oct16Range, nil
	}
	return 0, tiles.Formatf("oct-encoded vectors must be UINT8 or UINT16, got %s", ct)
}

// DecodeOctNormals decodes a sequence of oct-encoded 2-component vectors. The
// range is derived from the component type of the sequence.
func DecodeOctNormals(s accessor.VectorSequence) ([]vmath.Vec3, error) {
	if s.Size() != 2 {
		return nil, tiles.Formatf("oct-encoded vectors must have 2 components, got %d", s.Size())
	}
	r, err := OctRange(s.ComponentType())
	if err != nil {
		return nil, err
	}
	normals := make([]vmath.Vec3, 0, s.Len())
	for v := range s.All() {
		normals = append(normals, OctDecode(v[0], v[1], r))
	}
	return normals, nil
}
