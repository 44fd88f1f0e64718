package migrate

import (
	"fmt"

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

var instancedSemantic = map[string]bool{
	"INSTANCES_LENGTH":             true,
	"POSITION":                     true,
	"POSITION_QUANTIZED":           true,
	"NORMAL_UP":                    true,
	"NORMAL_RIGHT":                 true,
	"NORMAL_UP_OCT32P":             true,
	"NORMAL_RIGHT_OCT32P":          true,
	"SCALE":                        true,
	"SCALE_NON_UNIFORM":            true,
	"BATCH_ID":                     true,
	"EAST_NORTH_UP":                true,
	accessor.RTCCenter:             true,
	accessor.QuantizedVolumeOffset: true,
	accessor.QuantizedVolumeScale:  true,
}

// Instancing attribute names.
const (
	instanceTranslation = "TRANSLATION"
	instanceRotation    = "ROTATION"
	instanceScale       = "SCALE"
)

// instanceTranslations returns the positions of the instances relative to
// the RTC center.
func instanceTranslations(ft *tiles.Table, count int) ([]vmath.Vec3, error) {
	s, ok, err := accessor.Property(ft, "POSITION", floatVec3, count)
	if err != nil {
		return nil, err
	}
	if ok {
		return attrib.Vec3s(s)
	}
	s, ok, err = accessor.Property(ft, "POSITION_QUANTIZED", ushortVec3, count)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, tiles.Formatf("POSITION or POSITION_QUANTIZED is required")
	}
	offset, scale, ok, err := accessor.QuantizedVolume(ft)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, tiles.Formatf("POSITION_QUANTIZED requires %s and %s", accessor.QuantizedVolumeOffset, accessor.QuantizedVolumeScale)
	}
	return attrib.DequantizePositions(s, offset, scale)
}

// instanceAxes returns the up and right vectors of the instances, or nil when
// the feature table defines none.
func instanceAxes(ft *tiles.Table, count int) (up, right []vmath.Vec3, err error) {
	for _, names := range [][2]string{
		{"NORMAL_UP", "NORMAL_RIGHT"},
		{"NORMAL_UP_OCT32P", "NORMAL_RIGHT_OCT32P"},
	} {
		def := floatVec3
		decode := attrib.Vec3s
		if names[0] == "NORMAL_UP_OCT32P" {
			def = ushortVec2
			decode = attrib.DecodeOctNormals
		}
		us, hasUp, err := accessor.Property(ft, names[0], def, count)
		if err != nil {
			return nil, nil, err
		}
		rs, hasRight, err := accessor.Property(ft, names[1], def, count)
		if err != nil {
			return nil, nil, err
		}
		if hasUp != hasRight {
			return nil, nil, tiles.Formatf("%s and %s must be defined together", names[0], names[1])
		}
		if !hasUp {
			continue
		}
		if up, err = decode(us); err != nil {
			return nil, nil, fmt.Errorf("%s: %w", names[0], err)
		}
		if right, err = decode(rs); err != nil {
			return nil, nil, fmt.Errorf("%s: %w", names[1], err)
		}
		return up, right, nil
	}
	return nil, nil, nil
}

// instanceScales returns the scale of each instance.
func instanceScales(ft *tiles.Table, count int) ([]vmath.Vec3, error) {
	scales := make([]vmath.Vec3, count)
	s, ok, err := accessor.Property(ft, "SCALE", floatScalar, count)
	if err != nil {
		return nil, err
	}
	if ok {
		for i := range scales {
			f := s.At(i)[0]
			scales[i] = vmath.Vec3{f, f, f}
		}
		return scales, nil
	}
	s, ok, err = accessor.Property(ft, "SCALE_NON_UNIFORM", floatVec3, count)
	if err != nil {
		return nil, err
	}
	if ok {
		return attrib.Vec3s(s)
	}
	for i := range scales {
		scales[i] = vmath.Vec3{1, 1, 1}
	}
	return scales, nil
}

// InstanceMatrices returns the transform of each instance of an instanced
// mesh, relative to the RTC center of the feature table, which is returned
// as center.
//
// The rotation of an instance is given by its up and right vectors, then by
// the east-north-up frame at its position when EAST_NORTH_UP is set, and is
// the identity otherwise.
func InstanceMatrices(ft *tiles.Table, count int) (matrices []vmath.Mat4, center vmath.Vec3, err error) {
	center, _, err = accessor.RTC(ft)
	if err != nil {
		return nil, center, err
	}
	translations, err := instanceTranslations(ft, count)
	if err != nil {
		return nil, center, err
	}
	up, right, err := instanceAxes(ft, count)
	if err != nil {
		return nil, center, err
	}
	enu, _ := ft.Bool("EAST_NORTH_UP")
	scales, err := instanceScales(ft, count)
	if err != nil {
		return nil, center, err
	}

	matrices = make([]vmath.Mat4, count)
	for i := range matrices {
		r := vmath.IdentityQuat
		switch {
		case up != nil:
			u := up[i].Normalize()
			x := right[i].Normalize()
			r = vmath.QuatFromBasis(x, u, x.Cross(u).Normalize())
		case enu:
			r = vmath.EastNorthUpRotation(translations[i].Add(center))
		}
		matrices[i] = vmath.Compose(translations[i], r, scales[i])
	}
	return matrices, center, nil
}

// localMatrix returns the local transform of a node.
func localMatrix(n *gltf.Node) vmath.Mat4 {
	if m := vmath.Mat4(n.Matrix); m != (vmath.Mat4{}) && !m.IsIdentity() {
		return m
	}
	r := vmath.Quat(n.Rotation)
	if r == (vmath.Quat{}) {
		r = vmath.IdentityQuat
	}
	s := vmath.Vec3(n.Scale)
	if s == (vmath.Vec3{}) {
		s = vmath.Vec3{1, 1, 1}
	}
	return vmath.Compose(vmath.Vec3(n.Translation), r, s)
}

// nodeGlobals returns the global transform of each node of doc.
func nodeGlobals(doc *gltf.Document) []vmath.Mat4 {
	parent := make([]int, len(doc.Nodes))
	for i := range parent {
		parent[i] = -1
	}
	for i, n := range doc.Nodes {
		for _, c := range n.Children {
			if c >= 0 && c < len(parent) {
				parent[c] = i
			}
		}
	}
	globals := make([]vmath.Mat4, len(doc.Nodes))
	done := make([]bool, len(doc.Nodes))
	var global func(i, depth int) vmath.Mat4
	global = func(i, depth int) vmath.Mat4 {
		if done[i] {
			return globals[i]
		}
		m := localMatrix(doc.Nodes[i])
		// A cycle leaves the remaining ancestors out.
		if p := parent[i]; p >= 0 && depth < len(doc.Nodes) {
			m = global(p, depth+1).Mul(m)
		}
		globals[i], done[i] = m, true
		return m
	}
	for i := range doc.Nodes {
		global(i, 0)
	}
	return globals
}

// loadModel returns the glTF of an instanced mesh.
func (m *Migrator) loadModel(t *tile.Tile) (*gltf.Document, error) {
	switch t.GLTFFormat {
	case tile.GLTFEmbedded:
		return decodeModel(t.Body)
	case tile.GLTFURI:
		uri := string(t.Body)
		if m.opts.ResolveURI == nil {
			return nil, tiles.Formatf("glTF URI %q cannot be resolved", uri)
		}
		data, err := m.opts.ResolveURI(uri)
		if err != nil {
			return nil, fmt.Errorf("resolve glTF URI %q: %w", uri, err)
		}
		return decodeModel(data)
	}
	return nil, tiles.Formatf("invalid glTF format %d", t.GLTFFormat)
}

// instanceFeatureIDs returns the feature IDs of the instances. ids is nil when the instances have neither batch IDs nor a
// batch table.
func instanceFeatureIDs(ft *tiles.Table, bt *tiles.Table, count int) (ids *proptable.FeatureIDs, err error) {
	s, ok, err := accessor.Property(ft, "BATCH_ID", ushortScalar, count)
	if err != nil {
		return nil, err
	}
	if !ok {
		if bt == nil || bt.Len() == 0 {
			return nil, nil
		}
		return proptable.SequentialFeatureIDs(count)
	}
	batchIDs, ok := s.Scalars()
	if !ok {
		return nil, tiles.Formatf("BATCH_ID must be scalar")
	}
	length := 0
	for v := range batchIDs.All() {
		if int(v) >= length {
			length = int(v) + 1
		}
	}
	ids, err = proptable.FeatureIDsFromSequence(batchIDs, length)
	if err != nil {
		return nil, fmt.Errorf("BATCH_ID: %w", err)
	}
	return ids, nil
}

func (m *Migrator) migrateInstanced(t *tile.Tile, warns *errors.Errors, log *zap.Logger) (*gltf.Document, error) {
	ft := t.FeatureTable
	n, ok := ft.Int("INSTANCES_LENGTH")
	if !ok || n < 0 {
		return nil, tiles.Formatf("INSTANCES_LENGTH is missing or invalid")
	}
	ignoreSemantics(ft, instancedSemantic, warns)
	batchTableWarnings(t.BatchTable, warns)

	doc, err := m.loadModel(t)
	if err != nil {
		return nil, err
	}
	matrices, center, err := InstanceMatrices(ft, n)
	if err != nil {
		return nil, err
	}
	var rtc cesiumRTC
	if ok, err := gltfdoc.Extension(doc.Extensions, ExtCesiumRTC, &rtc); err != nil {
		return nil, &tiles.FormatError{Message: ExtCesiumRTC, Cause: err}
	} else if ok {
		*warns = warns.Append(UnsupportedError{Name: ExtCesiumRTC, Reason: "instanced models are placed by their instances"})
		removeExtension(doc, ExtCesiumRTC)
	}
	ids, err := instanceFeatureIDs(ft, t.BatchTable, n)
	if err != nil {
		return nil, err
	}

	w := gltfdoc.NewWriter(doc)
	var table *int
	if ids != nil {
		if table, err = m.attachBatchTable(w, t.BatchTable, ids.FeatureCount, nil); err != nil {
			return nil, fmt.Errorf("batch table: %w", err)
		}
	}

	globals := nodeGlobals(doc)
	instanced := 0
	for i, node := range doc.Nodes {
		if node.Mesh == nil || n == 0 {
			continue
		}
		if err := instanceNode(w, node, globals[i], matrices); err != nil {
			return nil, fmt.Errorf("node %d: %w", i, err)
		}
		if ids != nil {
			if _, err := metadata.AttachInstanceFeatureIDs(w, node, ids, table); err != nil {
				return nil, fmt.Errorf("node %d: %w", i, err)
			}
		}
		instanced++
	}
	if instanced > 0 {
		gltfdoc.AddExtensionUsed(doc, gltfdoc.ExtMeshGPUInstancing)
		gltfdoc.AddExtensionRequired(doc, gltfdoc.ExtMeshGPUInstancing)
	}
	if center != (vmath.Vec3{}) {
		wrapRoots(doc, rtcMatrix(center))
	}
	log.Debug("migrated instanced mesh", zap.Int("instances", n), zap.Int("nodes", instanced))
	return doc, nil
}

// instanceNode adds the instances to a mesh node whose global transform is
// global. Instance matrices are in the Z-up space of the tile, and are
// brought into the frame of the node.
func instanceNode(w *gltfdoc.Writer, node *gltf.Node, global vmath.Mat4, matrices []vmath.Mat4) error {
	frame := vmath.YUpToZUp.Mul(global)
	inv, ok := frame.Invert()
	if !ok {
		return tiles.Formatf("singular node transform")
	}
	translations := make([]vmath.Vec3, len(matrices))
	rotations := make([]vmath.Quat, len(matrices))
	scales := make([]vmath.Vec3, len(matrices))
	for i, m := range matrices {
		translations[i], rotations[i], scales[i] = vmath.Decompose(vmath.MulAll(inv, m, frame))
		rotations[i] = rotations[i].Normalize()
	}

	inst := gltfdoc.MeshGPUInstancing{Attributes: map[string]int{}}
	var err error
	if inst.Attributes[instanceTranslation], err = floatAccessor(w, tiles.Vec3, flattenVec3(translations), false, false); err != nil {
		return err
	}
	if inst.Attributes[instanceRotation], err = floatAccessor(w, tiles.Vec4, flattenQuat(rotations), false, false); err != nil {
		return err
	}
	if inst.Attributes[instanceScale], err = floatAccessor(w, tiles.Vec3, flattenVec3(scales), false, false); err != nil {
		return err
	}
	gltfdoc.SetExtension(&node.Extensions, gltfdoc.ExtMeshGPUInstancing, &inst)
	return nil
}
