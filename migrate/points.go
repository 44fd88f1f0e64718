package migrate

import (
	"fmt"
	"maps"

	"github.com/psc3k/tiles"
	"github.com/psc3k/tiles/accessor"
	"github.com/psc3k/tiles/attrib"
	"github.com/psc3k/tiles/errors"
	"github.com/psc3k/tiles/gltfdoc"
	"github.com/psc3k/tiles/metadata"
	"github.com/psc3k/tiles/proptable"
	"github.com/psc3k/tiles/tile"
	"github.com/psc3k/tiles/vmath"
	"github.com/qmuntal/gltf"
	"go.uber.org/zap"
)

// ExtDracoPointCompression is the feature table and batch table extension of
// Draco compressed point clouds.
const ExtDracoPointCompression = "3DTILES_draco_point_compression"

// Descriptors of point cloud semantics.
var (
	floatVec3     = tiles.LegacyTypeDescriptor{Type: tiles.LegacyVec3, ComponentType: tiles.LegacyFloat}
	ushortVec3    = tiles.LegacyTypeDescriptor{Type: tiles.LegacyVec3, ComponentType: tiles.LegacyUnsignedShort}
	ubyteVec4     = tiles.LegacyTypeDescriptor{Type: tiles.LegacyVec4, ComponentType: tiles.LegacyUnsignedByte}
	ubyteVec3     = tiles.LegacyTypeDescriptor{Type: tiles.LegacyVec3, ComponentType: tiles.LegacyUnsignedByte}
	ubyteVec2     = tiles.LegacyTypeDescriptor{Type: tiles.LegacyVec2, ComponentType: tiles.LegacyUnsignedByte}
	ushortScalar  = tiles.LegacyTypeDescriptor{Type: tiles.LegacyScalar, ComponentType: tiles.LegacyUnsignedShort}
	ushortVec2    = tiles.LegacyTypeDescriptor{Type: tiles.LegacyVec2, ComponentType: tiles.LegacyUnsignedShort}
	floatScalar   = tiles.LegacyTypeDescriptor{Type: tiles.LegacyScalar, ComponentType: tiles.LegacyFloat}
	pointSemantic = map[string]bool{
		"POINTS_LENGTH":                true,
		"POSITION":                     true,
		"POSITION_QUANTIZED":           true,
		"RGBA":                         true,
		"RGB":                          true,
		"RGB565":                       true,
		"NORMAL":                       true,
		"NORMAL_OCT16P":                true,
		"BATCH_ID":                     true,
		"BATCH_LENGTH":                 true,
		"CONSTANT_RGBA":                true,
		accessor.RTCCenter:             true,
		accessor.QuantizedVolumeOffset: true,
		accessor.QuantizedVolumeScale:  true,
	}
)

type dracoExtension struct {
	Properties map[string]int `json:"properties"`
	ByteOffset int            `json:"byteOffset"`
	ByteLength int            `json:"byteLength"`
}

// pointCloud reads the per-point semantics of a point cloud feature table.
type pointCloud struct {
	ft    *tiles.Table
	count int
	// draco holds feature table semantics decoded from compressed data.
	draco map[string]accessor.VectorSequence
}

func (p *pointCloud) property(name string, def tiles.LegacyTypeDescriptor) (accessor.VectorSequence, bool, error) {
	if s, ok := p.draco[name]; ok {
		if s.Len() != p.count {
			return s, true, tiles.Formatf("%s: decoded %d elements, expected %d", name, s.Len(), p.count)
		}
		return s, true, nil
	}
	return accessor.Property(p.ft, name, def, p.count)
}

// positions returns the positions of the points, and the translation that
// places them in the tile.
func (p *pointCloud) positions() (positions []vmath.Vec3, translation vmath.Vec3, err error) {
	rtc, _, err := accessor.RTC(p.ft)
	if err != nil {
		return nil, translation, err
	}
	if s, ok, err := p.property("POSITION", floatVec3); err != nil {
		return nil, translation, err
	} else if ok {
		positions, err = attrib.Vec3s(s)
		return positions, rtc, err
	}

	s, ok, err := p.property("POSITION_QUANTIZED", ushortVec3)
	if err != nil {
		return nil, translation, err
	}
	if !ok {
		return nil, translation, tiles.Formatf("POSITION or POSITION_QUANTIZED is required")
	}
	offset, scale, ok, err := accessor.QuantizedVolume(p.ft)
	if err != nil {
		return nil, translation, err
	}
	if !ok {
		return nil, translation, tiles.Formatf("POSITION_QUANTIZED requires %s and %s", accessor.QuantizedVolumeOffset, accessor.QuantizedVolumeScale)
	}
	positions, err = attrib.DequantizePositions(s, vmath.Vec3{}, scale)
	return positions, rtc.Add(offset), err
}

// colors returns the per-point linear colors, or the constant color when no
// per-point color is present.
func (p *pointCloud) colors() (colors []vmath.Vec4, constant *vmath.Vec4, err error) {
	for _, c := range []struct {
		name string
		def  tiles.LegacyTypeDescriptor
	}{
		{"RGBA", ubyteVec4},
		{"RGB", ubyteVec3},
	} {
		s, ok, err := p.property(c.name, c.def)
		if err != nil {
			return nil, nil, err
		}
		if ok {
			colors, err = attrib.DecodeColors(s)
			if err != nil {
				return nil, nil, fmt.Errorf("%s: %w", c.name, err)
			}
			return colors, nil, nil
		}
	}

	s, ok, err := p.property("RGB565", ushortScalar)
	if err != nil {
		return nil, nil, err
	}
	if ok {
		packed, ok := s.Scalars()
		if !ok {
			return nil, nil, tiles.Formatf("RGB565 must be scalar")
		}
		colors, err = attrib.DecodeRGB565(packed)
		if err != nil {
			return nil, nil, err
		}
		return colors, nil, nil
	}

	s, ok, err = accessor.Property(p.ft, "CONSTANT_RGBA", ubyteVec4, 1)
	if err != nil || !ok {
		return nil, nil, err
	}
	c, err := attrib.StandardToLinear(s.At(0))
	if err != nil {
		return nil, nil, fmt.Errorf("CONSTANT_RGBA: %w", err)
	}
	return nil, &c, nil
}

// normals returns the per-point normals, or nil when absent.
func (p *pointCloud) normals() ([]vmath.Vec3, error) {
	s, ok, err := p.property("NORMAL", floatVec3)
	if err != nil {
		return nil, err
	}
	if ok {
		return attrib.Vec3s(s)
	}
	s, ok, err = p.property("NORMAL_OCT16P", ubyteVec2)
	if err != nil || !ok {
		return nil, err
	}
	return attrib.DecodeOctNormals(s)
}

// decodeDraco decodes the compressed semantics of the feature table and the
// compressed properties of the batch table.
func (m *Migrator) decodeDraco(t *tile.Tile) (semantics map[string]accessor.VectorSequence, columns map[string]proptable.Column, err error) {
	var ext dracoExtension
	ok, err := t.FeatureTable.Extension(ExtDracoPointCompression, &ext)
	if err != nil || !ok {
		return nil, nil, err
	}
	if m.opts.Draco == nil {
		return nil, nil, tiles.Formatf("%s requires a Draco decoder", ExtDracoPointCompression)
	}
	if err := tiles.CheckRange(ext.ByteOffset, ext.ByteLength, len(t.FeatureTable.Binary)); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", ExtDracoPointCompression, err)
	}
	var btExt dracoExtension
	if _, err := t.BatchTable.Extension(ExtDracoPointCompression, &btExt); err != nil {
		return nil, nil, err
	}

	attributes := maps.Clone(ext.Properties)
	if attributes == nil {
		attributes = map[string]int{}
	}
	maps.Copy(attributes, btExt.Properties)
	data := t.FeatureTable.Binary[ext.ByteOffset : ext.ByteOffset+ext.ByteLength]
	decoded, err := m.opts.Draco.DecodePointCloud(data, attributes)
	if err != nil {
		return nil, nil, &tiles.FormatError{Message: ExtDracoPointCompression, Cause: err}
	}

	semantics = make(map[string]accessor.VectorSequence, len(ext.Properties))
	for name := range ext.Properties {
		s, ok := decoded[name]
		if !ok {
			return nil, nil, tiles.Formatf("%s: %s was not decoded", ExtDracoPointCompression, name)
		}
		semantics[name] = s
	}
	columns = make(map[string]proptable.Column, len(btExt.Properties))
	for name := range btExt.Properties {
		s, ok := decoded[name]
		if !ok {
			return nil, nil, tiles.Formatf("%s: batch table property %s was not decoded", ExtDracoPointCompression, name)
		}
		columns[name] = proptable.SequenceColumn{VectorSequence: s}
	}
	return semantics, columns, nil
}

func (m *Migrator) migratePoints(t *tile.Tile, warns *errors.Errors, log *zap.Logger) (*gltf.Document, error) {
	ft := t.FeatureTable
	n, ok := ft.Int("POINTS_LENGTH")
	if !ok || n < 0 {
		return nil, tiles.Formatf("POINTS_LENGTH is missing or invalid")
	}
	ignoreSemantics(ft, pointSemantic, warns)
	batchTableWarnings(t.BatchTable, warns)

	doc := gltfdoc.NewDocument()
	if n == 0 {
		log.Debug("empty point cloud")
		return doc, nil
	}
	draco, dracoColumns, err := m.decodeDraco(t)
	if err != nil {
		return nil, err
	}
	pc := &pointCloud{ft: ft, count: n, draco: draco}

	w := gltfdoc.NewWriter(doc)
	prim := &gltf.Primitive{Mode: gltf.PrimitivePoints, Attributes: map[string]int{}}

	positions, translation, err := pc.positions()
	if err != nil {
		return nil, err
	}
	if prim.Attributes[gltf.POSITION], err = floatAccessor(w, tiles.Vec3, flattenVec3(positions), true, true); err != nil {
		return nil, err
	}

	colors, constant, err := pc.colors()
	if err != nil {
		return nil, err
	}
	translucent := false
	if colors != nil {
		if prim.Attributes[gltf.COLOR_0], err = floatAccessor(w, tiles.Vec4, flattenVec4(colors), true, false); err != nil {
			return nil, err
		}
		for _, c := range colors {
			translucent = translucent || c[3] < 1
		}
	}
	if constant != nil || translucent {
		mat := &gltf.Material{}
		if constant != nil {
			mat.PBRMetallicRoughness = &gltf.PBRMetallicRoughness{BaseColorFactor: (*[4]float64)(constant)}
			translucent = constant[3] < 1
		}
		if translucent {
			mat.AlphaMode = gltf.AlphaBlend
		}
		doc.Materials = append(doc.Materials, mat)
		prim.Material = gltf.Index(len(doc.Materials) - 1)
	}

	normals, err := pc.normals()
	if err != nil {
		return nil, err
	}
	if normals != nil {
		if prim.Attributes[gltf.NORMAL], err = floatAccessor(w, tiles.Vec3, flattenVec3(normals), true, false); err != nil {
			return nil, err
		}
	}

	if err := m.pointFeatures(w, prim, pc, t.BatchTable, dracoColumns, warns); err != nil {
		return nil, err
	}

	doc.Meshes = append(doc.Meshes, &gltf.Mesh{Primitives: []*gltf.Primitive{prim}})
	doc.Nodes = append(doc.Nodes, &gltf.Node{
		Mesh:   gltf.Index(len(doc.Meshes) - 1),
		Matrix: vmath.MulAll(vmath.ZUpToYUp, vmath.Translation(translation)),
	})
	scene := gltfdoc.DefaultScene(doc)
	scene.Nodes = append(scene.Nodes, len(doc.Nodes)-1)
	log.Debug("migrated point cloud", zap.Int("points", n))
	return doc, nil
}

// pointFeatures attaches the batch table of a point cloud. Batched points get
// a property table indexed by BATCH_ID. Otherwise each point is a feature,
// whose properties are stored as property attributes when possible.
func (m *Migrator) pointFeatures(w *gltfdoc.Writer, prim *gltf.Primitive, pc *pointCloud, bt *tiles.Table, external map[string]proptable.Column, warns *errors.Errors) error {
	s, ok, err := pc.property("BATCH_ID", ushortScalar)
	if err != nil {
		return err
	}
	if ok {
		length, ok := pc.ft.Int("BATCH_LENGTH")
		if !ok {
			return tiles.Formatf("BATCH_ID requires BATCH_LENGTH")
		}
		batchIDs, ok := s.Scalars()
		if !ok {
			return tiles.Formatf("BATCH_ID must be scalar")
		}
		table, err := m.attachBatchTable(w, bt, length, external)
		if err != nil {
			return fmt.Errorf("batch table: %w", err)
		}
		ids, err := proptable.FeatureIDsFromSequence(batchIDs, length)
		if err != nil {
			return fmt.Errorf("BATCH_ID: %w", err)
		}
		_, err = metadata.AttachFeatureIDs(w, prim, ids, table)
		return err
	}

	if bt == nil || bt.Len() == 0 {
		return nil
	}
	if m.opts.PointPropertiesAs == PointPropertiesAttributes {
		attrs, err := m.pointAttributes(bt, pc.count, external)
		var formatErr *tiles.FormatError
		switch {
		case err == nil:
			_, err = metadata.AttachPropertyAttributes(w, prim, attrs)
			return err
		case !errors.As(err, &formatErr):
			return err
		}
		*warns = warns.Append(fmt.Errorf("per-point properties stored as a property table: %w", err))
	}
	table, err := m.attachBatchTable(w, bt, pc.count, external)
	if err != nil {
		return fmt.Errorf("batch table: %w", err)
	}
	ids, err := proptable.SequentialFeatureIDs(pc.count)
	if err != nil {
		return err
	}
	_, err = metadata.AttachFeatureIDs(w, prim, ids, table)
	return err
}

func (m *Migrator) pointAttributes(bt *tiles.Table, count int, external map[string]proptable.Column) (*proptable.PropertyAttributes, error) {
	s, className, err := m.batchSchema(bt)
	if err != nil {
		return nil, err
	}
	columns, err := proptable.TableColumns(bt, count, external)
	if err != nil {
		return nil, err
	}
	return proptable.BuildPropertyAttributes(s, className, columns, count)
}
