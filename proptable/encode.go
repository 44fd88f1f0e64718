package proptable

import (
	"bytes"
	"math"

	"github.com/anaminus/parse"
	"github.com/psc3k/tiles"
)

// OffsetType is the component type of array offsets and string offsets.
const OffsetType = tiles.Uint32

// valueWriter encodes little-endian values of a component type.
type valueWriter struct {
	buf bytes.Buffer
	fw  *parse.BinaryWriter
}

func newValueWriter() *valueWriter {
	w := &valueWriter{}
	w.fw = parse.NewBinaryWriter(&w.buf)
	return w
}

// number writes v as a component of type ct. Nil is written as zero.
func (w *valueWriter) number(ct tiles.ComponentType, v interface{}) error {
	if v == nil {
		v = 0
	}
	c, err := convert(ct, v)
	if err != nil {
		return err
	}
	if w.fw.Number(c) {
		return w.fw.Err()
	}
	return nil
}

func (w *valueWriter) offset(v int) error {
	if v < 0 || v > math.MaxUint32 {
		return tiles.Formatf("offset %d exceeds the range of %s", v, OffsetType)
	}
	if w.fw.Number(uint32(v)) {
		return w.fw.Err()
	}
	return nil
}

func (w *valueWriter) bytes(b []byte) error {
	if w.fw.Bytes(b) {
		return w.fw.Err()
	}
	return nil
}

// end returns the written bytes.
func (w *valueWriter) end() ([]byte, error) {
	if _, err := w.fw.End(); err != nil {
		return nil, err
	}
	return w.buf.Bytes(), nil
}

func rangeError(ct tiles.ComponentType, v interface{}) error {
	return tiles.Formatf("value %v cannot be represented as %s", v, ct)
}

// convert returns v as the Go type of the component type ct.
func convert(ct tiles.ComponentType, v interface{}) (interface{}, error) {
	if !tiles.IsNumber(v) {
		return nil, tiles.Formatf("value %v is not a number", v)
	}
	switch ct {
	case tiles.Float32:
		f, _ := tiles.AsFloat64(v)
		return float32(f), nil
	case tiles.Float64:
		f, _ := tiles.AsFloat64(v)
		return f, nil
	case tiles.Uint64:
		u, ok := tiles.AsUint64(v)
		if !ok {
			return nil, rangeError(ct, v)
		}
		return u, nil
	}
	i, ok := tiles.AsInt64(v)
	if !ok {
		return nil, rangeError(ct, v)
	}
	switch ct {
	case tiles.Int8:
		if i < math.MinInt8 || i > math.MaxInt8 {
			return nil, rangeError(ct, v)
		}
		return int8(i), nil
	case tiles.Uint8:
		if i < 0 || i > math.MaxUint8 {
			return nil, rangeError(ct, v)
		}
		return uint8(i), nil
	case tiles.Int16:
		if i < math.MinInt16 || i > math.MaxInt16 {
			return nil, rangeError(ct, v)
		}
		return int16(i), nil
	case tiles.Uint16:
		if i < 0 || i > math.MaxUint16 {
			return nil, rangeError(ct, v)
		}
		return uint16(i), nil
	case tiles.Int32:
		if i < math.MinInt32 || i > math.MaxInt32 {
			return nil, rangeError(ct, v)
		}
		return int32(i), nil
	case tiles.Uint32:
		if i < 0 || i > math.MaxUint32 {
			return nil, rangeError(ct, v)
		}
		return uint32(i), nil
	case tiles.Int64:
		return i, nil
	}
	return nil, tiles.Formatf("invalid component type %s", ct)
}

// flatten returns the scalar values of a possibly nested row value.
func flatten(v interface{}) []interface{} {
	switch v := v.(type) {
	case nil:
		return nil
	case []interface{}:
		var r []interface{}
		for _, e := range v {
			if _, ok := e.([]interface{}); ok {
				r = append(r, flatten(e)...)
				continue
			}
			if _, ok := e.([]float64); ok {
				r = append(r, flatten(e)...)
				continue
			}
			r = append(r, e)
		}
		return r
	case []float64:
		r := make([]interface{}, len(v))
		for i, e := range v {
			r[i] = e
		}
		return r
	}
	return []interface{}{v}
}

// bitWriter packs booleans, least significant bit first.
type bitWriter struct {
	b []byte
	n int
}

func (w *bitWriter) bit(v bool) {
	if w.n%8 == 0 {
		w.b = append(w.b, 0)
	}
	if v {
		w.b[w.n/8] |= 1 << (w.n % 8)
	}
	w.n++
}

func asBool(v interface{}) (bool, error) {
	switch v := v.(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	}
	return false, tiles.Formatf("value %v is not a boolean", v)
}
