// Package accessor reads typed scalar and vector sequences out of the binary
// body of a legacy feature table or batch table.
//
// A sequence is a description of a byte range and an element type. Reading
// never copies the underlying buffer, and iterating a sequence has no side
// effects, so a sequence may be consumed any number of times by independent
// consumers.
package accessor

import (
	"encoding/binary"
	"iter"
	"math"
	"math/bits"

	"github.com/psc3k/tiles"
)

func checkComponentType(ct tiles.ComponentType) error {
	switch ct {
	case tiles.Int8, tiles.Uint8, tiles.Int16, tiles.Uint16, tiles.Int32, tiles.Uint32, tiles.Float32, tiles.Float64:
		return nil
	case tiles.Int64, tiles.Uint64:
		return tiles.Formatf("component type %s cannot be read from a binary body", ct)
	}
	return tiles.Formatf("invalid component type %s", ct)
}

// readComponent decodes one little-endian component at b.
func readComponent(b []byte, ct tiles.ComponentType) float64 {
	switch ct {
	case tiles.Int8:
		return float64(int8(b[0]))
	case tiles.Uint8:
		return float64(b[0])
	case tiles.Int16:
		return float64(int16(binary.LittleEndian.Uint16(b)))
	case tiles.Uint16:
		return float64(binary.LittleEndian.Uint16(b))
	case tiles.Int32:
		return float64(int32(binary.LittleEndian.Uint32(b)))
	case tiles.Uint32:
		return float64(binary.LittleEndian.Uint32(b))
	case tiles.Float32:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	case tiles.Float64:
		return math.Float64frombits(binary.LittleEndian.Uint64(b))
	}
	panic("unreachable component type " + ct.String())
}

// span returns the number of bytes covered by count elements of elem bytes
// placed stride bytes apart. Saturates at math.MaxInt.
func span(count, stride, elem int) int {
	if count == 0 {
		return 0
	}
	hi, lo := bits.Mul64(uint64(count-1), uint64(stride))
	if hi != 0 || lo > uint64(math.MaxInt-elem) {
		return math.MaxInt
	}
	return int(lo) + elem
}

////////////////////////////////////////////////////////////////

// ScalarSequence is a finite sequence of numbers stored in a buffer.
type ScalarSequence struct {
	buf    []byte
	offset int
	ct     tiles.ComponentType
	count  int
	stride int
}

// ReadScalarSequence returns a sequence of count numbers of type ct, starting
// at byteOffset in buf. Returns an OutOfRangeError if the sequence does not
// fit within buf.
func ReadScalarSequence(buf []byte, byteOffset int, ct tiles.ComponentType, count int) (s ScalarSequence, err error) {
	return ReadStridedScalarSequence(buf, byteOffset, ct, count, 0)
}

// ReadStridedScalarSequence is like ReadScalarSequence, with the start of
// consecutive numbers stride bytes apart. A stride of 0 means the numbers
// are tightly packed.
func ReadStridedScalarSequence(buf []byte, byteOffset int, ct tiles.ComponentType, count, stride int) (s ScalarSequence, err error) {
	if err := checkComponentType(ct); err != nil {
		return s, err
	}
	if count < 0 {
		return s, tiles.InvalidArgumentf("negative count %d", count)
	}
	if stride == 0 {
		stride = ct.Size()
	}
	if stride < ct.Size() {
		return s, tiles.InvalidArgumentf("stride %d is less than component size %d", stride, ct.Size())
	}
	if err := tiles.CheckRange(byteOffset, span(count, stride, ct.Size()), len(buf)); err != nil {
		return s, err
	}
	return ScalarSequence{buf: buf, offset: byteOffset, ct: ct, count: count, stride: stride}, nil
}

// Len returns the number of elements.
func (s ScalarSequence) Len() int {
	return s.count
}

// ComponentType returns the stored type of each element.
func (s ScalarSequence) ComponentType() tiles.ComponentType {
	return s.ct
}

// At returns element i. Panics if i is out of bounds.
func (s ScalarSequence) At(i int) float64 {
	if i < 0 || i >= s.count {
		panic("accessor: index out of range")
	}
	return readComponent(s.buf[s.offset+i*s.stride:], s.ct)
}

// All returns an iterator over the elements. Each call starts over from the
// first element.
func (s ScalarSequence) All() iter.Seq[float64] {
	return func(yield func(float64) bool) {
		for i := 0; i < s.count; i++ {
			if !yield(s.At(i)) {
				return
			}
		}
	}
}

// Values returns the elements as a slice.
func (s ScalarSequence) Values() []float64 {
	v := make([]float64, 0, s.count)
	for f := range s.All() {
		v = append(v, f)
	}
	return v
}

////////////////////////////////////////////////////////////////

// VectorSequence is a finite sequence of fixed-size vectors stored in a
// buffer.
type VectorSequence struct {
	buf    []byte
	offset int
	ct     tiles.ComponentType
	size   int
	count  int
}

// ReadVectorSequence returns a sequence of count vectors, each having size
// components of type ct, starting at byteOffset in buf. Returns an
// OutOfRangeError if the sequence does not fit within buf.
func ReadVectorSequence(buf []byte, byteOffset int, ct tiles.ComponentType, size, count int) (s VectorSequence, err error) {
	if err := checkComponentType(ct); err != nil {
		return s, err
	}
	if size <= 0 {
		return s, tiles.InvalidArgumentf("vector size must be positive, got %d", size)
	}
	if count < 0 {
		return s, tiles.InvalidArgumentf("negative count %d", count)
	}
	if size > math.MaxInt/ct.Size() {
		return s, tiles.InvalidArgumentf("vector size %d is too large", size)
	}
	elem := size * ct.Size()
	if err := tiles.CheckRange(byteOffset, span(count, elem, elem), len(buf)); err != nil {
		return s, err
	}
	return VectorSequence{buf: buf, offset: byteOffset, ct: ct, size: size, count: count}, nil
}

// Len returns the number of vectors.
func (s VectorSequence) Len() int {
	return s.count
}

// Size returns the number of components of each vector.
func (s VectorSequence) Size() int {
	return s.size
}

// ComponentType returns the stored type of each component.
func (s VectorSequence) ComponentType() tiles.ComponentType {
	return s.ct
}

// At returns a newly allocated vector i. Panics if i is out of bounds.
func (s VectorSequence) At(i int) []float64 {
	if i < 0 || i >= s.count {
		panic("accessor: index out of range")
	}
	n := s.ct.Size()
	b := s.buf[s.offset+i*s.size*n:]
	v := make([]float64, s.size)
	for j := range v {
		v[j] = readComponent(b[j*n:], s.ct)
	}
	return v
}

// All returns an iterator over the vectors. Each yielded vector is newly
// allocated and may be retained by the consumer. Each call starts over from
// the first vector.
func (s VectorSequence) All() iter.Seq[[]float64] {
	return func(yield func([]float64) bool) {
		for i := 0; i < s.count; i++ {
			if !yield(s.At(i)) {
				return
			}
		}
	}
}

// Values returns the vectors as a slice.
func (s VectorSequence) Values() [][]float64 {
	v := make([][]float64, 0, s.count)
	for e := range s.All() {
		v = append(v, e)
	}
	return v
}

// Flat returns the components of every vector in order.
func (s VectorSequence) Flat() []float64 {
	v := make([]float64, 0, s.count*s.size)
	for e := range s.All() {
		v = append(v, e...)
	}
	return v
}

// Scalars returns the sequence viewed as scalars. Returns false if the
// vectors have more than one component.
func (s VectorSequence) Scalars() (ScalarSequence, bool) {
	if s.size != 1 {
		return ScalarSequence{}, false
	}
	return ScalarSequence{buf: s.buf, offset: s.offset, ct: s.ct, count: s.count, stride: s.ct.Size()}, true
}

// FromValues returns a sequence over inline values, grouped into vectors of
// the given size. The values are stored as FLOAT64.
func FromValues(values []float64, size int) (VectorSequence, error) {
	if size <= 0 || len(values)%size != 0 {
		return VectorSequence{}, tiles.InvalidArgumentf("%d values cannot form vectors of size %d", len(values), size)
	}
	buf := make([]byte, len(values)*8)
	for i, v := range values {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return ReadVectorSequence(buf, 0, tiles.Float64, size, len(values)/size)
}

// ReadReference returns the sequence of count elements addressed by a binary
// body reference within buf. Parts of the element type that the reference
// does not declare are taken from def.
func ReadReference(buf []byte, ref tiles.BinaryBodyReference, def tiles.LegacyTypeDescriptor, count int) (VectorSequence, error) {
	d := ref.Descriptor(def)
	if !d.Type.Valid() || !d.ComponentType.Valid() {
		return VectorSequence{}, tiles.Formatf("binary body reference at %d has no type", ref.ByteOffset)
	}
	t, ct := d.Canonical()
	return ReadVectorSequence(buf, ref.ByteOffset, ct, t.Components(), count)
}
