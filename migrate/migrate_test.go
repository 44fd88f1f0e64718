package migrate

import (
	"bytes"
	"context"
	"encoding/binary"
	"math"
	"testing"

	"github.com/psc3k/tiles"
	"github.com/psc3k/tiles/accessor"
	"github.com/psc3k/tiles/attrib"
	"github.com/psc3k/tiles/errors"
	"github.com/psc3k/tiles/gltfdoc"
	"github.com/psc3k/tiles/metadata"
	"github.com/psc3k/tiles/tile"
	"github.com/psc3k/tiles/vmath"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const delta = 1e-6

func le(t *testing.T, data ...interface{}) []byte {
	t.Helper()
	var buf bytes.Buffer
	for _, d := range data {
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, d))
	}
	return buf.Bytes()
}

func newMigrator(t *testing.T, opts Options) *Migrator {
	t.Helper()
	m, err := New(opts, nil)
	require.NoError(t, err)
	return m
}

func encode(t *testing.T, tl *tile.Tile) []byte {
	t.Helper()
	data, err := tile.Encode(tl)
	require.NoError(t, err)
	return data
}

func migrate(t *testing.T, m *Migrator, data []byte) (*gltf.Document, error) {
	t.Helper()
	doc, warn, err := m.Migrate(context.Background(), data)
	require.NoError(t, err)
	return doc, warn
}

func readAccessor(t *testing.T, doc *gltf.Document, i int) interface{} {
	t.Helper()
	require.Less(t, i, len(doc.Accessors))
	v, err := modeler.ReadAccessor(doc, doc.Accessors[i], nil)
	require.NoError(t, err)
	return v
}

func primitive(t *testing.T, doc *gltf.Document) *gltf.Primitive {
	t.Helper()
	require.Len(t, doc.Meshes, 1)
	require.Len(t, doc.Meshes[0].Primitives, 1)
	return doc.Meshes[0].Primitives[0]
}

func meshFeatures(t *testing.T, p *gltf.Primitive) metadata.FeatureIDs {
	t.Helper()
	var f metadata.FeatureIDs
	ok, err := gltfdoc.Extension(p.Extensions, metadata.ExtMeshFeatures, &f)
	require.NoError(t, err)
	require.True(t, ok)
	return f
}

func structuralMetadata(t *testing.T, doc *gltf.Document) *metadata.StructuralMetadata {
	t.Helper()
	m, err := metadata.Root(doc)
	require.NoError(t, err)
	require.NotNil(t, m)
	return m
}

// model returns a GLB holding one triangle, with batch IDs when given.
func model(t *testing.T, batchIDs []float32) []byte {
	t.Helper()
	doc := gltfdoc.NewDocument()
	w := gltfdoc.NewWriter(doc)
	pos, err := w.Accessor(gltfdoc.AccessorData{
		Type:          tiles.Vec3,
		ComponentType: tiles.Float32,
		Count:         3,
		Data:          le(t, []float32{0, 0, 0, 1, 0, 0, 0, 1, 0}),
		Attribute:     true,
		Bounds:        true,
	})
	require.NoError(t, err)
	prim := &gltf.Primitive{Attributes: map[string]int{gltf.POSITION: pos}}
	if batchIDs != nil {
		ids, err := w.Accessor(gltfdoc.AccessorData{
			Type:          tiles.Scalar,
			ComponentType: tiles.Float32,
			Count:         len(batchIDs),
			Data:          le(t, batchIDs),
			Attribute:     true,
		})
		require.NoError(t, err)
		prim.Attributes["_BATCHID"] = ids
	}
	doc.Meshes = []*gltf.Mesh{{Primitives: []*gltf.Primitive{prim}}}
	doc.Nodes = []*gltf.Node{{Mesh: gltf.Index(0)}}
	doc.Scenes[0].Nodes = []int{0}
	data, err := gltfdoc.EncodeBinary(doc)
	require.NoError(t, err)
	return data
}

func TestMigratePointsColorsAndNormals(t *testing.T) {
	normals := []vmath.Vec3{{0, 0, 1}, {1, 0, 0}, {0, -1, 0}}
	var oct []uint8
	for _, n := range normals {
		x, y := attrib.OctEncode(n, attrib.Oct8Range)
		oct = append(oct, uint8(x), uint8(y))
	}
	data := encode(t, &tile.Tile{
		Format: tile.FormatPNTS,
		FeatureTableJSON: []byte(`{"POINTS_LENGTH":3,"POSITION":{"byteOffset":0},` +
			`"RGB565":{"byteOffset":36},"NORMAL_OCT16P":{"byteOffset":42}}`),
		FeatureTableBinary: le(t,
			[]float32{0, 0, 0, 1, 2, 3, 4, 5, 6},
			[]uint16{0xFFFF, 0xF800, 0x0000},
			oct,
		),
	})

	doc, warn := migrate(t, newMigrator(t, DefaultOptions()), data)
	assert.NoError(t, warn)
	prim := primitive(t, doc)
	assert.Equal(t, gltf.PrimitivePoints, prim.Mode)

	positions := readAccessor(t, doc, prim.Attributes[gltf.POSITION]).([][3]float32)
	require.Len(t, positions, 3)
	assert.Equal(t, [3]float32{4, 5, 6}, positions[2])

	colors := readAccessor(t, doc, prim.Attributes[gltf.COLOR_0]).([][4]float32)
	require.Len(t, colors, 3)
	assert.InDeltaSlice(t, []float32{1, 1, 1, 1}, colors[0][:], delta)
	assert.InDeltaSlice(t, []float32{1, 0, 0, 1}, colors[1][:], delta)
	assert.InDeltaSlice(t, []float32{0, 0, 0, 1}, colors[2][:], delta)
	for _, c := range colors {
		for _, v := range c {
			assert.True(t, v >= 0 && v <= 1)
		}
	}

	decoded := readAccessor(t, doc, prim.Attributes[gltf.NORMAL]).([][3]float32)
	require.Len(t, decoded, 3)
	for i, n := range decoded {
		l := math.Sqrt(float64(n[0]*n[0] + n[1]*n[1] + n[2]*n[2]))
		assert.InDelta(t, 1, l, 1e-5)
		assert.InDelta(t, normals[i][0], n[0], 1e-2)
		assert.InDelta(t, normals[i][1], n[1], 1e-2)
		assert.InDelta(t, normals[i][2], n[2], 1e-2)
	}

	require.Len(t, doc.Nodes, 1)
	assert.Equal(t, [16]float64(vmath.ZUpToYUp), doc.Nodes[0].Matrix)
	assert.Equal(t, []int{0}, gltfdoc.Roots(doc))
}

func TestMigratePointsQuantizedWithRTC(t *testing.T) {
	data := encode(t, &tile.Tile{
		Format: tile.FormatPNTS,
		FeatureTableJSON: []byte(`{"POINTS_LENGTH":2,"POSITION_QUANTIZED":{"byteOffset":0},` +
			`"QUANTIZED_VOLUME_OFFSET":[10,20,30],"QUANTIZED_VOLUME_SCALE":[2,4,6],` +
			`"RTC_CENTER":[100,200,300],"CONSTANT_RGBA":[255,0,0,128]}`),
		FeatureTableBinary: le(t, []uint16{0, 0, 0, 65535, 65535, 65535}),
	})
	doc, _ := migrate(t, newMigrator(t, DefaultOptions()), data)
	prim := primitive(t, doc)

	positions := readAccessor(t, doc, prim.Attributes[gltf.POSITION]).([][3]float32)
	assert.Equal(t, [3]float32{0, 0, 0}, positions[0])
	assert.InDeltaSlice(t, []float32{2, 4, 6}, positions[1][:], delta)

	want := vmath.MulAll(vmath.ZUpToYUp, vmath.Translation(vmath.Vec3{110, 220, 330}))
	assert.InDeltaSlice(t, want[:], doc.Nodes[0].Matrix[:], delta)

	require.NotNil(t, prim.Material)
	mat := doc.Materials[*prim.Material]
	require.NotNil(t, mat.PBRMetallicRoughness)
	require.NotNil(t, mat.PBRMetallicRoughness.BaseColorFactor)
	factor := *mat.PBRMetallicRoughness.BaseColorFactor
	assert.InDelta(t, 1, factor[0], delta)
	assert.InDelta(t, 128.0/255, factor[3], delta)
	assert.Equal(t, gltf.AlphaBlend, mat.AlphaMode)
	_, hasColor := prim.Attributes[gltf.COLOR_0]
	assert.False(t, hasColor)
}

func TestMigratePointsBatched(t *testing.T) {
	data := encode(t, &tile.Tile{
		Format: tile.FormatPNTS,
		FeatureTableJSON: []byte(`{"POINTS_LENGTH":3,"POSITION":{"byteOffset":0},` +
			`"BATCH_ID":{"byteOffset":36,"componentType":"UNSIGNED_BYTE"},"BATCH_LENGTH":2}`),
		FeatureTableBinary: le(t, make([]float32, 9), []uint8{0, 1, 1}),
		BatchTableJSON:     []byte(`{"name":["a","b"]}`),
	})
	doc, warn := migrate(t, newMigrator(t, DefaultOptions()), data)
	assert.NoError(t, warn)

	root := structuralMetadata(t, doc)
	require.Len(t, root.PropertyTables, 1)
	assert.Equal(t, 2, root.PropertyTables[0].Count)
	assert.Equal(t, DefaultClassName, root.PropertyTables[0].Class)

	prim := primitive(t, doc)
	ids := readAccessor(t, doc, prim.Attributes[metadata.FeatureIDAttribute(0)]).([]uint8)
	assert.Equal(t, []uint8{0, 1, 1}, ids)
	f := meshFeatures(t, prim)
	require.Len(t, f.FeatureIDs, 1)
	assert.Equal(t, 2, f.FeatureIDs[0].FeatureCount)
	require.NotNil(t, f.FeatureIDs[0].PropertyTable)
	assert.Equal(t, 0, *f.FeatureIDs[0].PropertyTable)
}

func TestMigratePointsPerPointProperties(t *testing.T) {
	pnts := func(batch string) []byte {
		return encode(t, &tile.Tile{
			Format:             tile.FormatPNTS,
			FeatureTableJSON:   []byte(`{"POINTS_LENGTH":3,"POSITION":{"byteOffset":0}}`),
			FeatureTableBinary: le(t, make([]float32, 9)),
			BatchTableJSON:     []byte(batch),
		})
	}

	t.Run("attributes", func(t *testing.T) {
		doc, warn := migrate(t, newMigrator(t, DefaultOptions()), pnts(`{"intensity":[1,2,3]}`))
		assert.NoError(t, warn)
		root := structuralMetadata(t, doc)
		require.Len(t, root.PropertyAttributes, 1)
		assert.Empty(t, root.PropertyTables)
		prim := primitive(t, doc)
		i, ok := prim.Attributes["_INTENSITY"]
		require.True(t, ok)
		assert.Equal(t, []uint8{1, 2, 3}, readAccessor(t, doc, i))
	})

	t.Run("table", func(t *testing.T) {
		opts := DefaultOptions()
		opts.PointPropertiesAs = PointPropertiesTable
		doc, warn := migrate(t, newMigrator(t, opts), pnts(`{"intensity":[1,2,3]}`))
		assert.NoError(t, warn)
		root := structuralMetadata(t, doc)
		require.Len(t, root.PropertyTables, 1)
		assert.Equal(t, 3, root.PropertyTables[0].Count)
		assert.Empty(t, root.PropertyAttributes)
		f := meshFeatures(t, primitive(t, doc))
		assert.Equal(t, 3, f.FeatureIDs[0].FeatureCount)
	})

	t.Run("strings fall back to a table", func(t *testing.T) {
		doc, warn := migrate(t, newMigrator(t, DefaultOptions()), pnts(`{"name":["a","b","c"]}`))
		require.Error(t, warn)
		assert.Contains(t, warn.Error(), "property table")
		root := structuralMetadata(t, doc)
		require.Len(t, root.PropertyTables, 1)
		assert.Empty(t, root.PropertyAttributes)
	})
}

type fakeDraco struct {
	decoded    map[string]accessor.VectorSequence
	attributes map[string]int
	data       []byte
}

func (d *fakeDraco) DecodePointCloud(data []byte, attributes map[string]int) (map[string]accessor.VectorSequence, error) {
	d.data = data
	d.attributes = attributes
	return d.decoded, nil
}

func TestMigratePointsDraco(t *testing.T) {
	positions, err := accessor.FromValues([]float64{0, 0, 0, 1, 1, 1}, 3)
	require.NoError(t, err)
	intensity, err := accessor.FromValues([]float64{5, 6}, 1)
	require.NoError(t, err)
	draco := &fakeDraco{decoded: map[string]accessor.VectorSequence{
		"POSITION":  positions,
		"intensity": intensity,
	}}

	data := encode(t, &tile.Tile{
		Format: tile.FormatPNTS,
		FeatureTableJSON: []byte(`{"POINTS_LENGTH":2,"POSITION":{"byteOffset":0},"extensions":` +
			`{"3DTILES_draco_point_compression":{"properties":{"POSITION":0},"byteOffset":0,"byteLength":4}}}`),
		FeatureTableBinary: []byte{1, 2, 3, 4},
		BatchTableJSON: []byte(`{"intensity":{"byteOffset":0,"componentType":"UNSIGNED_BYTE","type":"SCALAR"},` +
			`"extensions":{"3DTILES_draco_point_compression":{"properties":{"intensity":1}}}}`),
	})

	_, _, err = newMigrator(t, DefaultOptions()).Migrate(context.Background(), data)
	var formatErr *tiles.FormatError
	require.True(t, errors.As(err, &formatErr))

	opts := DefaultOptions()
	opts.Draco = draco
	doc, warn := migrate(t, newMigrator(t, opts), data)
	assert.NoError(t, warn)
	assert.Equal(t, []byte{1, 2, 3, 4}, draco.data)
	assert.Equal(t, map[string]int{"POSITION": 0, "intensity": 1}, draco.attributes)

	prim := primitive(t, doc)
	acr := doc.Accessors[prim.Attributes[gltf.POSITION]]
	assert.Equal(t, 2, acr.Count)
	assert.Equal(t, []float64{1, 1, 1}, acr.Max)
	i, ok := prim.Attributes["_INTENSITY"]
	require.True(t, ok)
	assert.Equal(t, []uint8{5, 6}, readAccessor(t, doc, i))
}

func TestMigratePointsErrors(t *testing.T) {
	tests := []struct {
		name   string
		header string
		binary []byte
	}{
		{"no length", `{"POSITION":{"byteOffset":0}}`, nil},
		{"no position", `{"POINTS_LENGTH":1}`, nil},
		{"quantized without volume", `{"POINTS_LENGTH":1,"POSITION_QUANTIZED":{"byteOffset":0}}`, make([]byte, 8)},
		{"batch id without length", `{"POINTS_LENGTH":1,"POSITION":{"byteOffset":0},"BATCH_ID":{"byteOffset":12}}`, make([]byte, 16)},
		{"position out of range", `{"POINTS_LENGTH":4,"POSITION":{"byteOffset":0}}`, make([]byte, 8)},
	}
	m := newMigrator(t, DefaultOptions())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := encode(t, &tile.Tile{
				Format:             tile.FormatPNTS,
				FeatureTableJSON:   []byte(tt.header),
				FeatureTableBinary: tt.binary,
			})
			_, _, err := m.Migrate(context.Background(), data)
			require.Error(t, err)
			var formatErr *tiles.FormatError
			var rangeErr *tiles.OutOfRangeError
			assert.True(t, errors.As(err, &formatErr) || errors.As(err, &rangeErr), err.Error())
		})
	}
}

func TestMigrateWarnings(t *testing.T) {
	data := encode(t, &tile.Tile{
		Format:             tile.FormatPNTS,
		FeatureTableJSON:   []byte(`{"POINTS_LENGTH":1,"POSITION":{"byteOffset":0},"CUSTOM":[1]}`),
		FeatureTableBinary: le(t, make([]float32, 3)),
		BatchTableJSON:     []byte(`{"extensions":{"3DTILES_batch_table_hierarchy":{"classes":[]}}}`),
	})
	doc, warn := migrate(t, newMigrator(t, DefaultOptions()), data)
	require.NotNil(t, doc)
	require.Error(t, warn)

	var names []string
	for _, w := range warn.(errors.Errors) {
		var u UnsupportedError
		require.True(t, errors.As(w, &u))
		names = append(names, u.Name)
	}
	assert.ElementsMatch(t, []string{"CUSTOM", ExtBatchTableHierarchy}, names)
}

func TestMigrateBatched(t *testing.T) {
	data := encode(t, &tile.Tile{
		Format:           tile.FormatB3DM,
		FeatureTableJSON: []byte(`{"BATCH_LENGTH":2,"RTC_CENTER":[1,2,3]}`),
		BatchTableJSON:   []byte(`{"id":[10,20]}`),
		Body:             model(t, []float32{0, 1, 1}),
	})
	doc, warn := migrate(t, newMigrator(t, DefaultOptions()), data)
	assert.NoError(t, warn)

	prim := primitive(t, doc)
	_, ok := prim.Attributes["_BATCHID"]
	assert.False(t, ok)
	i, ok := prim.Attributes[metadata.FeatureIDAttribute(0)]
	require.True(t, ok)
	assert.Equal(t, []float32{0, 1, 1}, readAccessor(t, doc, i))

	f := meshFeatures(t, prim)
	require.Len(t, f.FeatureIDs, 1)
	assert.Equal(t, 2, f.FeatureIDs[0].FeatureCount)
	require.NotNil(t, f.FeatureIDs[0].Attribute)
	assert.Equal(t, 0, *f.FeatureIDs[0].Attribute)

	root := structuralMetadata(t, doc)
	require.Len(t, root.PropertyTables, 1)
	assert.Equal(t, 2, root.PropertyTables[0].Count)
	assert.Contains(t, doc.ExtensionsUsed, metadata.ExtMeshFeatures)
	assert.Contains(t, doc.ExtensionsUsed, metadata.ExtStructuralMetadata)

	roots := gltfdoc.Roots(doc)
	require.Len(t, roots, 1)
	wrapper := doc.Nodes[roots[0]]
	assert.Equal(t, []int{0}, wrapper.Children)
	want := rtcMatrix(vmath.Vec3{1, 2, 3})
	assert.InDeltaSlice(t, want[:], wrapper.Matrix[:], delta)
	// The translation is expressed in the Y-up space of the content.
	assert.InDeltaSlice(t, []float64{1, 3, -2}, wrapper.Matrix[12:15], delta)
}

func TestMigrateBatchedCesiumRTC(t *testing.T) {
	doc, err := gltfdoc.Decode(model(t, nil))
	require.NoError(t, err)
	doc.Extensions = gltf.Extensions{ExtCesiumRTC: map[string]interface{}{"center": []float64{4, 5, 6}}}
	doc.ExtensionsUsed = []string{ExtCesiumRTC}
	doc.ExtensionsRequired = []string{ExtCesiumRTC}
	glb, err := gltfdoc.EncodeBinary(doc)
	require.NoError(t, err)

	data := encode(t, &tile.Tile{
		Format:           tile.FormatB3DM,
		FeatureTableJSON: []byte(`{"BATCH_LENGTH":0}`),
		Body:             glb,
	})
	out, warn := migrate(t, newMigrator(t, DefaultOptions()), data)
	assert.NoError(t, warn)
	assert.NotContains(t, out.ExtensionsUsed, ExtCesiumRTC)
	assert.NotContains(t, out.ExtensionsRequired, ExtCesiumRTC)
	_, ok := out.Extensions[ExtCesiumRTC]
	assert.False(t, ok)

	roots := gltfdoc.Roots(out)
	require.Len(t, roots, 1)
	want := rtcMatrix(vmath.Vec3{4, 5, 6})
	assert.InDeltaSlice(t, want[:], out.Nodes[roots[0]].Matrix[:], delta)
}

func TestMigrateBatchedIDOutOfRange(t *testing.T) {
	data := encode(t, &tile.Tile{
		Format:           tile.FormatB3DM,
		FeatureTableJSON: []byte(`{"BATCH_LENGTH":1}`),
		Body:             model(t, []float32{0, 1, 2}),
	})
	_, warn := migrate(t, newMigrator(t, DefaultOptions()), data)
	require.Error(t, warn)
	assert.Contains(t, warn.Error(), "BATCH_LENGTH")
}

func TestMaxBatchID(t *testing.T) {
	doc := gltfdoc.NewDocument()
	w := gltfdoc.NewWriter(doc)
	// UNSIGNED_BYTE attributes are padded to a stride of 4.
	acr, err := w.Accessor(gltfdoc.AccessorData{
		Type:          tiles.Scalar,
		ComponentType: tiles.Uint8,
		Count:         3,
		Data:          []byte{0, 5, 2},
		Attribute:     true,
	})
	require.NoError(t, err)
	require.Equal(t, 4, doc.BufferViews[*doc.Accessors[acr].BufferView].ByteStride)

	highest, err := maxBatchID(doc, doc.Accessors[acr])
	require.NoError(t, err)
	assert.Equal(t, 5, highest)

	highest, err = maxBatchID(doc, &gltf.Accessor{Type: gltf.AccessorScalar, ComponentType: gltf.ComponentUbyte, Count: 2})
	require.NoError(t, err)
	assert.Equal(t, 0, highest)

	_, err = maxBatchID(doc, &gltf.Accessor{Type: gltf.AccessorVec2, ComponentType: gltf.ComponentUbyte, Count: 1})
	assert.Error(t, err)

	var rangeErr *tiles.OutOfRangeError
	_, err = maxBatchID(doc, &gltf.Accessor{
		Type:          gltf.AccessorScalar,
		ComponentType: gltf.ComponentUbyte,
		Count:         1 << 62,
		BufferView:    doc.Accessors[acr].BufferView,
	})
	assert.True(t, errors.As(err, &rangeErr))
}

func TestMigrateBatchedPaddedIDOutOfRange(t *testing.T) {
	doc := gltfdoc.NewDocument()
	w := gltfdoc.NewWriter(doc)
	pos, err := w.Accessor(gltfdoc.AccessorData{
		Type:          tiles.Vec3,
		ComponentType: tiles.Float32,
		Count:         3,
		Data:          le(t, make([]float32, 9)),
		Attribute:     true,
		Bounds:        true,
	})
	require.NoError(t, err)
	ids, err := w.Accessor(gltfdoc.AccessorData{
		Type:          tiles.Scalar,
		ComponentType: tiles.Uint8,
		Count:         3,
		Data:          []byte{0, 0, 1},
		Attribute:     true,
	})
	require.NoError(t, err)
	doc.Meshes = []*gltf.Mesh{{Primitives: []*gltf.Primitive{{
		Attributes: map[string]int{gltf.POSITION: pos, "_BATCHID": ids},
	}}}}
	doc.Nodes = []*gltf.Node{{Mesh: gltf.Index(0)}}
	doc.Scenes[0].Nodes = []int{0}
	body, err := gltfdoc.EncodeBinary(doc)
	require.NoError(t, err)

	data := encode(t, &tile.Tile{
		Format:           tile.FormatB3DM,
		FeatureTableJSON: []byte(`{"BATCH_LENGTH":1}`),
		Body:             body,
	})
	_, warn := migrate(t, newMigrator(t, DefaultOptions()), data)
	require.Error(t, warn)
	assert.Contains(t, warn.Error(), "batch ID 1 is not less than BATCH_LENGTH 1")
}

func assertColumn(t *testing.T, want vmath.Vec3, m vmath.Mat4, c int, scale float64) {
	t.Helper()
	got := m.Column(c).Scale(1 / scale)
	assert.InDeltaSlice(t, want[:], got[:], 1e-9)
}

func TestInstanceMatricesFromNormals(t *testing.T) {
	ft, err := tiles.ParseTable([]byte(`{
		"INSTANCES_LENGTH": 2,
		"POSITION": [1, 2, 3, 4, 5, 6],
		"NORMAL_UP": [0, 0, 1, 0, 1, 0],
		"NORMAL_RIGHT": [1, 0, 0, 0, 0, 1],
		"SCALE": [2, 3]
	}`), nil)
	require.NoError(t, err)

	matrices, center, err := InstanceMatrices(ft, 2)
	require.NoError(t, err)
	assert.Equal(t, vmath.Vec3{}, center)
	require.Len(t, matrices, 2)

	for i, tt := range []struct {
		right, up, forward, translation vmath.Vec3
		scale                           float64
	}{
		{vmath.Vec3{1, 0, 0}, vmath.Vec3{0, 0, 1}, vmath.Vec3{0, -1, 0}, vmath.Vec3{1, 2, 3}, 2},
		{vmath.Vec3{0, 0, 1}, vmath.Vec3{0, 1, 0}, vmath.Vec3{-1, 0, 0}, vmath.Vec3{4, 5, 6}, 3},
	} {
		m := matrices[i]
		assertColumn(t, tt.right, m, 0, tt.scale)
		assertColumn(t, tt.up, m, 1, tt.scale)
		assertColumn(t, tt.forward, m, 2, tt.scale)
		assert.InDeltaSlice(t, tt.translation[:], m[12:15], 1e-9)
	}
}

func TestInstanceMatricesEastNorthUp(t *testing.T) {
	ft, err := tiles.ParseTable([]byte(`{
		"INSTANCES_LENGTH": 1,
		"POSITION_QUANTIZED": {"byteOffset": 0},
		"QUANTIZED_VOLUME_OFFSET": [0, 0, 0],
		"QUANTIZED_VOLUME_SCALE": [65535, 65535, 65535],
		"RTC_CENTER": [6378137, 0, 0],
		"EAST_NORTH_UP": true,
		"SCALE_NON_UNIFORM": [1, 2, 3]
	}`), le(t, []uint16{0, 0, 0}, []float32{}))
	require.NoError(t, err)

	matrices, center, err := InstanceMatrices(ft, 1)
	require.NoError(t, err)
	assert.Equal(t, vmath.Vec3{6378137, 0, 0}, center)
	e, n, u := vmath.EastNorthUpAxes(center)
	assertColumn(t, e, matrices[0], 0, 1)
	assertColumn(t, n, matrices[0], 1, 2)
	assertColumn(t, u, matrices[0], 2, 3)
	assert.InDeltaSlice(t, []float64{0, 0, 0}, matrices[0][12:15], 1e-9)
}

func TestInstanceMatricesErrors(t *testing.T) {
	for _, header := range []string{
		`{"INSTANCES_LENGTH":1}`,
		`{"INSTANCES_LENGTH":1,"POSITION":[0,0,0],"NORMAL_UP":[0,0,1]}`,
		`{"INSTANCES_LENGTH":1,"POSITION_QUANTIZED":[0,0,0]}`,
	} {
		ft, err := tiles.ParseTable([]byte(header), nil)
		require.NoError(t, err)
		_, _, err = InstanceMatrices(ft, 1)
		var formatErr *tiles.FormatError
		assert.True(t, errors.As(err, &formatErr), header)
	}
}

func instancedTile(t *testing.T, format tile.GLTFFormat, body []byte) []byte {
	t.Helper()
	return encode(t, &tile.Tile{
		Format: tile.FormatI3DM,
		FeatureTableJSON: []byte(`{"INSTANCES_LENGTH":2,"POSITION":{"byteOffset":0},` +
			`"BATCH_ID":{"byteOffset":24},"RTC_CENTER":[10,0,0]}`),
		FeatureTableBinary: le(t, []float32{1, 2, 3, 0, 0, 0}, []uint16{1, 0}),
		BatchTableJSON:     []byte(`{"name":["a","b"]}`),
		GLTFFormat:         format,
		Body:               body,
	})
}

func TestMigrateInstanced(t *testing.T) {
	doc, warn := migrate(t, newMigrator(t, DefaultOptions()), instancedTile(t, tile.GLTFEmbedded, model(t, nil)))
	assert.NoError(t, warn)
	assert.Contains(t, doc.ExtensionsRequired, gltfdoc.ExtMeshGPUInstancing)
	assert.Contains(t, doc.ExtensionsUsed, metadata.ExtInstanceFeatures)

	node := doc.Nodes[0]
	var inst gltfdoc.MeshGPUInstancing
	ok, err := gltfdoc.Extension(node.Extensions, gltfdoc.ExtMeshGPUInstancing, &inst)
	require.NoError(t, err)
	require.True(t, ok)

	// Instances are moved from the Z-up space of the tile into the Y-up
	// space of the model.
	translations := readAccessor(t, doc, inst.Attributes["TRANSLATION"]).([][3]float32)
	require.Len(t, translations, 2)
	assert.InDeltaSlice(t, []float32{1, 3, -2}, translations[0][:], delta)
	assert.InDeltaSlice(t, []float32{0, 0, 0}, translations[1][:], delta)
	rotations := readAccessor(t, doc, inst.Attributes["ROTATION"]).([][4]float32)
	assert.InDelta(t, 1, math.Abs(float64(rotations[0][3])), delta)
	scales := readAccessor(t, doc, inst.Attributes["SCALE"]).([][3]float32)
	assert.InDeltaSlice(t, []float32{1, 1, 1}, scales[1][:], delta)

	ids := readAccessor(t, doc, inst.Attributes[metadata.FeatureIDAttribute(0)]).([]uint16)
	assert.Equal(t, []uint16{1, 0}, ids)
	var f metadata.FeatureIDs
	ok, err = gltfdoc.Extension(node.Extensions, metadata.ExtInstanceFeatures, &f)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, f.FeatureIDs, 1)
	assert.Equal(t, 2, f.FeatureIDs[0].FeatureCount)

	root := structuralMetadata(t, doc)
	require.Len(t, root.PropertyTables, 1)
	assert.Equal(t, 2, root.PropertyTables[0].Count)

	roots := gltfdoc.Roots(doc)
	require.Len(t, roots, 1)
	want := rtcMatrix(vmath.Vec3{10, 0, 0})
	assert.InDeltaSlice(t, want[:], doc.Nodes[roots[0]].Matrix[:], delta)
}

func TestMigrateInstancedURI(t *testing.T) {
	glb := model(t, nil)
	data := instancedTile(t, tile.GLTFURI, []byte("models/box.glb"))

	_, _, err := newMigrator(t, DefaultOptions()).Migrate(context.Background(), data)
	var formatErr *tiles.FormatError
	require.True(t, errors.As(err, &formatErr))

	var requested string
	opts := DefaultOptions()
	opts.ResolveURI = func(uri string) ([]byte, error) {
		requested = uri
		return glb, nil
	}
	doc, _ := migrate(t, newMigrator(t, opts), data)
	assert.Equal(t, "models/box.glb", requested)
	_, ok := doc.Nodes[0].Extensions[gltfdoc.ExtMeshGPUInstancing]
	assert.True(t, ok)
}

func TestNodeGlobals(t *testing.T) {
	doc := &gltf.Document{Nodes: []*gltf.Node{
		{Children: []int{1}, Translation: [3]float64{1, 0, 0}},
		{Scale: [3]float64{2, 2, 2}},
		{Matrix: [16]float64(vmath.Translation(vmath.Vec3{0, 0, 5}))},
	}}
	globals := nodeGlobals(doc)
	assert.Equal(t, vmath.Vec3{3, 0, 0}, globals[1].MulPoint(vmath.Vec3{1, 0, 0}))
	assert.Equal(t, vmath.Vec3{0, 0, 5}, globals[2].MulPoint(vmath.Vec3{}))
}

func pointsTile(header, batch string, binary []byte) *tile.Tile {
	return &tile.Tile{
		Format:             tile.FormatPNTS,
		FeatureTableJSON:   []byte(header),
		FeatureTableBinary: binary,
		BatchTableJSON:     []byte(batch),
	}
}

func TestMigrateComposite(t *testing.T) {
	zeros := make([]byte, 12)
	data := encode(t, &tile.Tile{
		Format: tile.FormatCMPT,
		Tiles: []*tile.Tile{
			pointsTile(`{"POINTS_LENGTH":1,"POSITION":{"byteOffset":0}}`, `{"name":["a"]}`, zeros),
			{Format: tile.FormatCMPT, Tiles: []*tile.Tile{
				pointsTile(`{"POINTS_LENGTH":1,"POSITION":{"byteOffset":0},"CUSTOM":1}`, `{"name":[1.5]}`, zeros),
			}},
		},
	})

	opts := DefaultOptions()
	opts.SchemaSuffix = "fixed"
	opts.PointPropertiesAs = PointPropertiesTable
	opts.Workers = 2
	doc, warn := migrate(t, newMigrator(t, opts), data)

	require.Error(t, warn)
	assert.Contains(t, warn.Error(), "inner tile 1: inner tile 0: CUSTOM")
	var u UnsupportedError
	assert.True(t, errors.As(warn, &u))

	require.Len(t, doc.Meshes, 2)
	assert.Len(t, gltfdoc.Roots(doc), 2)
	root := structuralMetadata(t, doc)
	assert.Equal(t, metadata.MergedSchemaPrefix+"fixed", root.Schema.ID)
	assert.Len(t, root.Schema.Classes, 2)
	require.Len(t, root.PropertyTables, 2)
	assert.Equal(t, "tile", root.PropertyTables[0].Class)
	assert.Equal(t, "tile_0", root.PropertyTables[1].Class)

	f := meshFeatures(t, doc.Meshes[1].Primitives[0])
	require.NotNil(t, f.FeatureIDs[0].PropertyTable)
	assert.Equal(t, 1, *f.FeatureIDs[0].PropertyTable)
}

func TestMigrateCompositeError(t *testing.T) {
	data := encode(t, &tile.Tile{
		Format: tile.FormatCMPT,
		Tiles: []*tile.Tile{
			pointsTile(`{"POINTS_LENGTH":1,"POSITION":{"byteOffset":0}}`, ``, make([]byte, 12)),
			pointsTile(`{"POINTS_LENGTH":1}`, ``, nil),
		},
	})
	_, _, err := newMigrator(t, DefaultOptions()).Migrate(context.Background(), data)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inner tile 1")
}

func TestMigrateCanceled(t *testing.T) {
	data := encode(t, pointsTile(`{"POINTS_LENGTH":1,"POSITION":{"byteOffset":0}}`, ``, make([]byte, 12)))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := newMigrator(t, DefaultOptions()).Migrate(ctx, data)
	assert.ErrorIs(t, err, context.Canceled)
}
