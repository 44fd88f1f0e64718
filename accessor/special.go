package accessor

import (
	"fmt"

	"github.com/psc3k/tiles"
	"github.com/psc3k/tiles/vmath"
)

// Feature table semantics that describe the placement of a whole payload.
const (
	RTCCenter             = "RTC_CENTER"
	QuantizedVolumeOffset = "QUANTIZED_VOLUME_OFFSET"
	QuantizedVolumeScale  = "QUANTIZED_VOLUME_SCALE"
)

var floatVec3 = tiles.LegacyTypeDescriptor{Type: tiles.LegacyVec3, ComponentType: tiles.LegacyFloat}

// Property returns count elements of the named property of t, either read
// from the binary body or taken from an inline value. def supplies the element
// type when a reference does not declare one, and determines the grouping of
// inline values. ok is false if the property is absent.
func Property(t *tiles.Table, name string, def tiles.LegacyTypeDescriptor, count int) (s VectorSequence, ok bool, err error) {
	p, ok := t.Get(name)
	if !ok {
		return s, false, nil
	}
	if p.Ref != nil {
		s, err = ReadReference(t.Binary, *p.Ref, def, count)
		if err != nil {
			return s, true, fmt.Errorf("%s: %w", name, err)
		}
		return s, true, nil
	}

	var values []float64
	switch v := p.Value.(type) {
	case []interface{}:
		values = make([]float64, 0, len(v))
		for _, e := range v {
			f, ok := tiles.AsFloat64(e)
			if !ok {
				return s, true, tiles.Formatf("%s: element is not a number", name)
			}
			values = append(values, f)
		}
	default:
		f, ok := tiles.AsFloat64(v)
		if !ok {
			return s, true, tiles.Formatf("%s: neither binary body reference nor array", name)
		}
		values = []float64{f}
	}
	size := def.Type.Components()
	if size == 0 {
		size = 1
	}
	if len(values) != size*count {
		return s, true, tiles.Formatf("%s: expected %d values, got %d", name, size*count, len(values))
	}
	s, err = FromValues(values, size)
	return s, true, err
}

// Vec3 returns the named global 3-component property of t, which may be an
// inline array or a FLOAT VEC3 binary body reference.
func Vec3(t *tiles.Table, name string) (v vmath.Vec3, ok bool, err error) {
	s, ok, err := Property(t, name, floatVec3, 1)
	if !ok || err != nil {
		return v, ok, err
	}
	if s.Size() != 3 {
		return v, true, tiles.Formatf("%s: expected a 3-component vector", name)
	}
	copy(v[:], s.At(0))
	return v, true, nil
}

// RTC returns the RTC_CENTER of t.
func RTC(t *tiles.Table) (center vmath.Vec3, ok bool, err error) {
	return Vec3(t, RTCCenter)
}

// QuantizedVolume returns the offset and scale of the quantized volume of t.
// ok is false if neither is present. Returns a FormatError if only one of
// them is present.
func QuantizedVolume(t *tiles.Table) (offset, scale vmath.Vec3, ok bool, err error) {
	offset, hasOffset, err := Vec3(t, QuantizedVolumeOffset)
	if err != nil {
		return offset, scale, false, err
	}
	scale, hasScale, err := Vec3(t, QuantizedVolumeScale)
	if err != nil {
		return offset, scale, false, err
	}
	if hasOffset != hasScale {
		return offset, scale, false, tiles.Formatf("%s and %s must be defined together", QuantizedVolumeOffset, QuantizedVolumeScale)
	}
	return offset, scale, hasOffset, nil
}

// GlobalPosition returns the translation applied to every position of the
// payload: the quantized volume offset plus the RTC center, each only when
// present. ok is false if neither is present.
func GlobalPosition(t *tiles.Table) (pos vmath.Vec3, ok bool, err error) {
	offset, hasOffset, err := Vec3(t, QuantizedVolumeOffset)
	if err != nil {
		return pos, false, err
	}
	rtc, hasRTC, err := RTC(t)
	if err != nil {
		return pos, false, err
	}
	if hasOffset {
		pos = pos.Add(offset)
	}
	if hasRTC {
		pos = pos.Add(rtc)
	}
	return pos, hasOffset || hasRTC, nil
}
