package schema

import (
	"math"

	"github.com/psc3k/tiles"
)

// NumberType describes the smallest representation that can hold a set of
// numbers without loss.
type NumberType struct {
	Signed   bool
	Integral bool
	// Bits is one of 8, 16, 32 or 64.
	Bits int
}

// Widen returns the smallest number type that covers both n and m. When an
// unsigned integer type is combined with a signed one, the unsigned side is
// counted with one more bit, so that its upper half remains representable.
func (n NumberType) Widen(m NumberType) NumberType {
	nb, mb := n.Bits, m.Bits
	if n.Integral && m.Integral && n.Signed != m.Signed {
		if !n.Signed {
			nb = min(nb*2, 64)
		} else {
			mb = min(mb*2, 64)
		}
	}
	return NumberType{
		Signed:   n.Signed || m.Signed,
		Integral: n.Integral && m.Integral,
		Bits:     max(nb, mb),
	}
}

// ComponentType returns the component type corresponding to n.
func (n NumberType) ComponentType() tiles.ComponentType {
	if !n.Integral {
		if n.Bits > 32 {
			return tiles.Float64
		}
		return tiles.Float32
	}
	switch {
	case n.Bits <= 8:
		if n.Signed {
			return tiles.Int8
		}
		return tiles.Uint8
	case n.Bits <= 16:
		if n.Signed {
			return tiles.Int16
		}
		return tiles.Uint16
	case n.Bits <= 32:
		if n.Signed {
			return tiles.Int32
		}
		return tiles.Uint32
	default:
		if n.Signed {
			return tiles.Int64
		}
		return tiles.Uint64
	}
}

func signedBits(i int64) int {
	for bits := 8; bits < 64; bits *= 2 {
		lim := int64(1) << (bits - 1)
		if -lim <= i && i < lim {
			return bits
		}
	}
	return 64
}

func unsignedBits(u uint64) int {
	for bits := 8; bits < 64; bits *= 2 {
		if u < uint64(1)<<bits {
			return bits
		}
	}
	return 64
}

func inferScalar(v interface{}) (NumberType, error) {
	if i, ok := tiles.AsInt64(v); ok {
		if i < 0 {
			return NumberType{Signed: true, Integral: true, Bits: signedBits(i)}, nil
		}
		return NumberType{Integral: true, Bits: unsignedBits(uint64(i))}, nil
	}
	if u, ok := tiles.AsUint64(v); ok {
		return NumberType{Integral: true, Bits: unsignedBits(u)}, nil
	}
	f, ok := tiles.AsFloat64(v)
	if !ok {
		return NumberType{}, tiles.Formatf("value %v is not a number", v)
	}
	n := NumberType{Signed: true, Bits: 32}
	if math.Abs(f) > math.MaxFloat32 {
		n.Bits = 64
	}
	return n, nil
}

// InferNumberType returns the number type of a number, or the widened number
// type of a possibly nested array of numbers. Null elements are ignored.
// Returns a FormatError if a non-number is encountered or no number is found.
func InferNumberType(v interface{}) (NumberType, error) {
	a, ok := v.([]interface{})
	if !ok {
		return inferScalar(v)
	}
	var n NumberType
	found := false
	for _, e := range a {
		if e == nil {
			continue
		}
		if sub, ok := e.([]interface{}); ok && len(sub) == 0 {
			continue
		}
		t, err := InferNumberType(e)
		if err != nil {
			return n, err
		}
		if found {
			n = n.Widen(t)
		} else {
			n, found = t, true
		}
	}
	if !found {
		return n, tiles.Formatf("no numbers to infer a type from")
	}
	return n, nil
}

// InferComponentType returns the smallest component type that can represent
// v without loss. Non-integral values are FLOAT32, or FLOAT64 when outside of
// the float32 range. Arrays are widened over each element.
func InferComponentType(v interface{}) (tiles.ComponentType, error) {
	n, err := InferNumberType(v)
	if err != nil {
		return tiles.ComponentInvalid, err
	}
	return n.ComponentType(), nil
}
