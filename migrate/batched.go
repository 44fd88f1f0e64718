package migrate

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/anaminus/parse"
	"github.com/psc3k/tiles"
	"github.com/psc3k/tiles/accessor"
	"github.com/psc3k/tiles/errors"
	"github.com/psc3k/tiles/gltfdoc"
	"github.com/psc3k/tiles/metadata"
	"github.com/psc3k/tiles/tile"
	"github.com/psc3k/tiles/vmath"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
	"go.uber.org/zap"
)

var batchedSemantic = map[string]bool{
	"BATCH_LENGTH":     true,
	accessor.RTCCenter: true,
}

// Names of the legacy batch ID attribute. The second is used by old
// exporters.
var batchIDAttributes = []string{"_BATCHID", "BATCHID"}

// decodeModel decodes an embedded glTF. A GLB is cut to the length in its
// header, since payload bodies may carry trailing padding.
func decodeModel(data []byte) (*gltf.Document, error) {
	fr := parse.NewBinaryReader(bytes.NewReader(data))
	var magic [4]byte
	var version, length uint32
	if !fr.Bytes(magic[:]) && !fr.Number(&version) && !fr.Number(&length) &&
		string(magic[:]) == "glTF" && int(length) <= len(data) {
		data = data[:length]
	}
	return gltfdoc.Decode(data)
}

type cesiumRTC struct {
	Center vmath.Vec3 `json:"center"`
}

// removeExtension removes an extension from the root of doc and from its
// lists of used and required extensions.
func removeExtension(doc *gltf.Document, name string) {
	delete(doc.Extensions, name)
	doc.ExtensionsUsed = slices.DeleteFunc(doc.ExtensionsUsed, func(s string) bool { return s == name })
	doc.ExtensionsRequired = slices.DeleteFunc(doc.ExtensionsRequired, func(s string) bool { return s == name })
}

// modelCenter returns the RTC center of a batched or instanced mesh: the
// RTC_CENTER of its feature table plus the center of the CESIUM_RTC
// extension, which is removed from doc.
func modelCenter(doc *gltf.Document, ft *tiles.Table) (center vmath.Vec3, err error) {
	center, _, err = accessor.RTC(ft)
	if err != nil {
		return center, err
	}
	var rtc cesiumRTC
	ok, err := gltfdoc.Extension(doc.Extensions, ExtCesiumRTC, &rtc)
	if err != nil {
		return center, &tiles.FormatError{Message: ExtCesiumRTC, Cause: err}
	}
	if ok {
		center = center.Add(rtc.Center)
		removeExtension(doc, ExtCesiumRTC)
	}
	return center, nil
}

func (m *Migrator) migrateBatched(t *tile.Tile, warns *errors.Errors, log *zap.Logger) (*gltf.Document, error) {
	ft := t.FeatureTable
	length, ok := ft.Int("BATCH_LENGTH")
	if !ok || length < 0 {
		return nil, tiles.Formatf("BATCH_LENGTH is missing or invalid")
	}
	ignoreSemantics(ft, batchedSemantic, warns)
	batchTableWarnings(t.BatchTable, warns)

	doc, err := decodeModel(t.Body)
	if err != nil {
		return nil, err
	}
	center, err := modelCenter(doc, ft)
	if err != nil {
		return nil, err
	}

	w := gltfdoc.NewWriter(doc)
	table, err := m.attachBatchTable(w, t.BatchTable, length, nil)
	if err != nil {
		return nil, fmt.Errorf("batch table: %w", err)
	}
	bound := 0
	for _, mesh := range doc.Meshes {
		for _, prim := range mesh.Primitives {
			ok, err := bindBatchIDs(doc, prim, length, table, warns)
			if err != nil {
				return nil, err
			}
			if ok {
				bound++
			}
		}
	}
	if center != (vmath.Vec3{}) {
		wrapRoots(doc, rtcMatrix(center))
	}
	log.Debug("migrated batched mesh", zap.Int("batchLength", length), zap.Int("primitives", bound))
	return doc, nil
}

// bindBatchIDs renames the batch ID attribute of prim to a feature ID
// attribute, and adds the feature ID set. Reports whether prim has batch IDs.
func bindBatchIDs(doc *gltf.Document, prim *gltf.Primitive, length int, table *int, warns *errors.Errors) (bool, error) {
	name := ""
	for _, n := range batchIDAttributes {
		if _, ok := prim.Attributes[n]; ok {
			name = n
			break
		}
	}
	if name == "" {
		return false, nil
	}
	acr := prim.Attributes[name]
	if acr < 0 || acr >= len(doc.Accessors) {
		return false, tiles.Formatf("%s refers to missing accessor %d", name, acr)
	}
	highest, err := maxBatchID(doc, doc.Accessors[acr])
	if err != nil {
		return false, fmt.Errorf("%s: %w", name, err)
	}
	if highest >= length {
		*warns = warns.Appendf("%s: batch ID %d is not less than BATCH_LENGTH %d", name, highest, length)
	}

	delete(prim.Attributes, name)
	set := 0
	for {
		if _, ok := prim.Attributes[metadata.FeatureIDAttribute(set)]; !ok {
			break
		}
		set++
	}
	prim.Attributes[metadata.FeatureIDAttribute(set)] = acr
	err = metadata.AddMeshFeatureID(doc, prim, &metadata.FeatureID{
		FeatureCount:  length,
		Attribute:     gltf.Index(set),
		PropertyTable: table,
	})
	return err == nil, err
}

// maxBatchID returns the largest batch ID of an accessor, or -1 if it is
// empty.
func maxBatchID(doc *gltf.Document, acr *gltf.Accessor) (int, error) {
	if acr.Type != gltf.AccessorScalar {
		return 0, tiles.Formatf("batch IDs must be scalar, got %s", acr.Type)
	}
	highest := -1
	switch {
	case acr.BufferView == nil && acr.Sparse == nil:
		// Accessors without data hold zeros.
		if acr.Count > 0 {
			highest = 0
		}
		return highest, nil
	case acr.Sparse != nil:
		data, err := modeler.ReadAccessor(doc, acr, nil)
		if err != nil {
			return 0, &tiles.FormatError{Message: "batch IDs", Cause: err}
		}
		var ids []float64
		switch data := data.(type) {
		case []uint8:
			ids = toFloats(data)
		case []uint16:
			ids = toFloats(data)
		case []uint32:
			ids = toFloats(data)
		case []float32:
			ids = toFloats(data)
		default:
			return 0, tiles.Formatf("batch IDs have invalid component type %s", acr.ComponentType)
		}
		for _, v := range ids {
			highest = max(highest, int(v))
		}
		return highest, nil
	}

	ids, err := stridedScalars(doc, acr)
	if err != nil {
		return 0, err
	}
	for v := range ids.All() {
		highest = max(highest, int(v))
	}
	return highest, nil
}

func toFloats[T uint8 | uint16 | uint32 | float32](v []T) []float64 {
	f := make([]float64, len(v))
	for i, v := range v {
		f[i] = float64(v)
	}
	return f
}

// stridedScalars returns the elements of a scalar accessor stored in a buffer
// view, honoring the byte stride of the view.
func stridedScalars(doc *gltf.Document, acr *gltf.Accessor) (accessor.ScalarSequence, error) {
	var s accessor.ScalarSequence
	v := *acr.BufferView
	if v < 0 || v >= len(doc.BufferViews) {
		return s, tiles.Formatf("accessor refers to missing buffer view %d", v)
	}
	view := doc.BufferViews[v]
	if view.Buffer < 0 || view.Buffer >= len(doc.Buffers) {
		return s, tiles.Formatf("buffer view %d refers to missing buffer %d", v, view.Buffer)
	}
	buf := doc.Buffers[view.Buffer].Data
	if err := tiles.CheckRange(view.ByteOffset, view.ByteLength, len(buf)); err != nil {
		return s, err
	}
	ct := gltfdoc.ComponentTypeOf(acr.ComponentType)
	data := buf[view.ByteOffset : view.ByteOffset+view.ByteLength]
	return accessor.ReadStridedScalarSequence(data, acr.ByteOffset, ct, acr.Count, view.ByteStride)
}
