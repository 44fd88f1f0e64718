package attrib

import (
	"math"

	"github.com/psc3k/tiles"
	"github.com/psc3k/tiles/accessor"
	"github.com/psc3k/tiles/vmath"
)

// SRGBToLinear converts a normalized sRGB channel value to linear space.
func SRGBToLinear(c float64) float64 {
	if c <= 0.04045 {
		return c / 12.92
	}
	return math.Pow((c+0.055)/1.055, 2.4)
}

// StandardToLinear converts a standard color with 3 or 4 channels in the
// range [0, 255] to normalized linear RGBA. Alpha is not gamma corrected and
// defaults to 1.
func StandardToLinear(c []float64) (vmath.Vec4, error) {
	if len(c) != 3 && len(c) != 4 {
		return vmath.Vec4{}, tiles.InvalidArgumentf("color must have 3 or 4 channels, got %d", len(c))
	}
	r := vmath.Vec4{
		SRGBToLinear(c[0] / 255),
		SRGBToLinear(c[1] / 255),
		SRGBToLinear(c[2] / 255),
		1,
	}
	if len(c) == 4 {
		r[3] = c[3] / 255
	}
	return r, nil
}

// RGB565ToStandard unpacks a 5-6-5 packed color into standard RGB channels in
// the range [0, 255].
func RGB565ToStandard(v uint16) [3]float64 {
	r := float64((v >> 11) & 0x1F)
	g := float64((v >> 5) & 0x3F)
	b := float64(v & 0x1F)
	return [3]float64{r * 255 / 31, g * 255 / 63, b * 255 / 31}
}

// RGB565ToLinear converts a 5-6-5 packed color to normalized linear RGBA with
// an alpha of 1.
func RGB565ToLinear(v uint16) vmath.Vec4 {
	c := RGB565ToStandard(v)
	r, _ := StandardToLinear(c[:])
	return r
}

// DecodeColors converts a sequence of standard RGB or RGBA colors to linear
// RGBA.
func DecodeColors(s accessor.VectorSequence) ([]vmath.Vec4, error) {
	colors := make([]vmath.Vec4, 0, s.Len())
	for c := range s.All() {
		l, err := StandardToLinear(c)
		if err != nil {
			return nil, err
		}
		colors = append(colors, l)
	}
	return colors, nil
}

// DecodeRGB565 converts a sequence of packed UINT16 colors to linear RGBA.
func DecodeRGB565(s accessor.ScalarSequence) ([]vmath.Vec4, error) {
	if s.ComponentType() != tiles.Uint16 {
		return nil, tiles.Formatf("RGB565 colors must be UINT16, got %s", s.ComponentType())
	}
	colors := make([]vmath.Vec4, 0, s.Len())
	for v := range s.All() {
		colors = append(colors, RGB565ToLinear(uint16(v)))
	}
	return colors, nil
}
