// Package gltfdoc writes binary data into glTF documents, and combines
// documents into one.
package gltfdoc

import (
	"bytes"
	"math"

	"github.com/psc3k/tiles"
	"github.com/psc3k/tiles/accessor"
	"github.com/qmuntal/gltf"
	"golang.org/x/crypto/blake2b"
)

// Alignment is the byte alignment of every buffer view written by a Writer.
const Alignment = 8

// Generator is written to the asset of new documents.
const Generator = "github.com/psc3k/tiles"

// NewDocument returns an empty document with a single scene.
func NewDocument() *gltf.Document {
	return &gltf.Document{
		Asset:  gltf.Asset{Version: "2.0", Generator: Generator},
		Scene:  gltf.Index(0),
		Scenes: []*gltf.Scene{{}},
	}
}

// Decode decodes a glTF or GLB document whose buffers are embedded.
func Decode(data []byte) (*gltf.Document, error) {
	doc := new(gltf.Document)
	if err := gltf.NewDecoder(bytes.NewReader(data)).Decode(doc); err != nil {
		return nil, &tiles.FormatError{Message: "glTF", Cause: err}
	}
	return doc, nil
}

// EncodeBinary encodes doc as GLB.
func EncodeBinary(doc *gltf.Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := gltf.NewEncoder(&buf)
	enc.AsBinary = true
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var componentTypes = map[tiles.ComponentType]gltf.ComponentType{
	tiles.Int8:    gltf.ComponentByte,
	tiles.Uint8:   gltf.ComponentUbyte,
	tiles.Int16:   gltf.ComponentShort,
	tiles.Uint16:  gltf.ComponentUshort,
	tiles.Uint32:  gltf.ComponentUint,
	tiles.Float32: gltf.ComponentFloat,
}

// ComponentType returns the accessor component type of ct. Returns a
// FormatError for component types that accessors cannot hold.
func ComponentType(ct tiles.ComponentType) (gltf.ComponentType, error) {
	if c, ok := componentTypes[ct]; ok {
		return c, nil
	}
	return 0, tiles.Formatf("component type %s cannot back an accessor", ct)
}

// ComponentTypeOf returns the component type of an accessor component type.
func ComponentTypeOf(ct gltf.ComponentType) tiles.ComponentType {
	switch ct {
	case gltf.ComponentByte:
		return tiles.Int8
	case gltf.ComponentUbyte:
		return tiles.Uint8
	case gltf.ComponentShort:
		return tiles.Int16
	case gltf.ComponentUshort:
		return tiles.Uint16
	case gltf.ComponentUint:
		return tiles.Uint32
	case gltf.ComponentFloat:
		return tiles.Float32
	}
	return tiles.ComponentInvalid
}

// AccessorType returns the accessor type of t.
func AccessorType(t tiles.Type) (gltf.AccessorType, error) {
	switch t {
	case tiles.Scalar:
		return gltf.AccessorScalar, nil
	case tiles.Vec2:
		return gltf.AccessorVec2, nil
	case tiles.Vec3:
		return gltf.AccessorVec3, nil
	case tiles.Vec4:
		return gltf.AccessorVec4, nil
	case tiles.Mat2:
		return gltf.AccessorMat2, nil
	case tiles.Mat3:
		return gltf.AccessorMat3, nil
	case tiles.Mat4:
		return gltf.AccessorMat4, nil
	}
	return 0, tiles.Formatf("type %s cannot back an accessor", t)
}

////////////////////////////////////////////////////////////////

type viewKey struct {
	hash   [blake2b.Size256]byte
	target gltf.Target
	stride int
}

// Writer appends data to the embedded buffer of a document. Buffer views are
// aligned, and identical buffer views are written once.
type Writer struct {
	doc    *gltf.Document
	buffer int
	views  map[viewKey]int
}

// NewWriter returns a Writer that appends to the first buffer of doc, adding
// a buffer if doc has no embedded buffer.
func NewWriter(doc *gltf.Document) *Writer {
	if len(doc.Buffers) == 0 || doc.Buffers[0].URI != "" {
		doc.Buffers = append(doc.Buffers, &gltf.Buffer{})
	}
	w := &Writer{doc: doc, views: map[viewKey]int{}}
	for i, b := range doc.Buffers {
		if b.URI == "" {
			w.buffer = i
			break
		}
	}
	return w
}

// Document returns the document being written.
func (w *Writer) Document() *gltf.Document {
	return w.doc
}

// Append appends aligned raw data to the buffer and returns its byte offset.
func (w *Writer) Append(data []byte) int {
	b := w.doc.Buffers[w.buffer]
	if pad := len(b.Data) % Alignment; pad != 0 {
		b.Data = append(b.Data, make([]byte, Alignment-pad)...)
	}
	off := len(b.Data)
	b.Data = append(b.Data, data...)
	b.ByteLength = len(b.Data)
	return off
}

// BufferView returns the index of a buffer view holding data, adding one if
// no identical view exists.
func (w *Writer) BufferView(data []byte, target gltf.Target, stride int) int {
	if len(data) == 0 {
		// Buffer views cannot be empty.
		data = []byte{0}
	}
	key := viewKey{hash: blake2b.Sum256(data), target: target, stride: stride}
	if i, ok := w.views[key]; ok {
		return i
	}
	off := w.Append(data)
	w.doc.BufferViews = append(w.doc.BufferViews, &gltf.BufferView{
		Buffer:     w.buffer,
		ByteOffset: off,
		ByteLength: len(data),
		ByteStride: stride,
		Target:     target,
	})
	i := len(w.doc.BufferViews) - 1
	w.views[key] = i
	return i
}

// AccessorData describes tightly packed elements to be written as an
// accessor.
type AccessorData struct {
	Type          tiles.Type
	ComponentType tiles.ComponentType
	Count         int
	Data          []byte
	Normalized    bool
	// Attribute marks the data as a vertex attribute. Elements are aligned to
	// 4 bytes within the buffer view.
	Attribute bool
	// Bounds computes the min and max of the accessor.
	Bounds bool
}

// Accessor writes a and returns the index of the new accessor.
func (w *Writer) Accessor(a AccessorData) (int, error) {
	ct, err := ComponentType(a.ComponentType)
	if err != nil {
		return 0, err
	}
	at, err := AccessorType(a.Type)
	if err != nil {
		return 0, err
	}
	comps := a.Type.Components()
	size := comps * a.ComponentType.Size()
	if err := tiles.CheckRange(0, a.Count*size, len(a.Data)); err != nil {
		return 0, err
	}
	acr := &gltf.Accessor{
		ComponentType: ct,
		Type:          at,
		Count:         a.Count,
		Normalized:    a.Normalized,
	}
	if a.Bounds && a.Count > 0 {
		s, err := accessor.ReadVectorSequence(a.Data, 0, a.ComponentType, comps, a.Count)
		if err != nil {
			return 0, err
		}
		acr.Min, acr.Max = bounds(s)
	}

	data := a.Data[:a.Count*size]
	var target gltf.Target
	stride := 0
	if a.Attribute {
		target = gltf.TargetArrayBuffer
		if size%4 != 0 {
			stride = (size + 3) &^ 3
			data = padElements(data, size, stride)
		}
	}
	acr.BufferView = gltf.Index(w.BufferView(data, target, stride))
	w.doc.Accessors = append(w.doc.Accessors, acr)
	return len(w.doc.Accessors) - 1, nil
}

func bounds(s accessor.VectorSequence) (lo, hi []float64) {
	lo = make([]float64, s.Size())
	hi = make([]float64, s.Size())
	for i := range lo {
		lo[i] = math.Inf(1)
		hi[i] = math.Inf(-1)
	}
	for v := range s.All() {
		for i, c := range v {
			lo[i] = math.Min(lo[i], c)
			hi[i] = math.Max(hi[i], c)
		}
	}
	return lo, hi
}

func padElements(data []byte, size, stride int) []byte {
	n := len(data) / size
	r := make([]byte, n*stride)
	for i := 0; i < n; i++ {
		copy(r[i*stride:], data[i*size:(i+1)*size])
	}
	return r
}

// AddExtensionUsed adds name to the extensions used by doc.
func AddExtensionUsed(doc *gltf.Document, name string) {
	for _, e := range doc.ExtensionsUsed {
		if e == name {
			return
		}
	}
	doc.ExtensionsUsed = append(doc.ExtensionsUsed, name)
}

// AddExtensionRequired adds name to the extensions used and required by doc.
func AddExtensionRequired(doc *gltf.Document, name string) {
	AddExtensionUsed(doc, name)
	for _, e := range doc.ExtensionsRequired {
		if e == name {
			return
		}
	}
	doc.ExtensionsRequired = append(doc.ExtensionsRequired, name)
}
