package metadata

import (
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/psc3k/tiles"
	"github.com/psc3k/tiles/gltfdoc"
	"github.com/psc3k/tiles/schema"
	"github.com/qmuntal/gltf"
	"go.uber.org/zap"
)

// MergedSchemaPrefix prefixes the identifier of a schema whose classes or
// enums were changed by a merge.
const MergedSchemaPrefix = "merged_"

// Merger merges the structural metadata of documents.
//
// A Merger mutates its target and treats its source as read-only. Merges into
// the same target must not run concurrently.
type Merger struct {
	// Suffix, when not empty, is used in place of a random suffix for the
	// identifiers of merged schemas.
	Suffix string

	logger *zap.Logger
}

// NewMerger returns a Merger that logs to logger, which may be nil.
func NewMerger(logger *zap.Logger) *Merger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Merger{logger: logger}
}

// MergeResult describes how a source was merged into a target.
type MergeResult struct {
	// ClassRenames maps the names of source classes to their names in the
	// target, for classes that were renamed.
	ClassRenames map[string]string
	// EnumRenames maps the names of source enums to their names in the
	// target, for enums that were renamed.
	EnumRenames map[string]string
	// Changed reports whether classes or enums were added to the target.
	Changed bool

	// Indices in the target of each source property table, property texture
	// and property attribute.
	PropertyTables     []int
	PropertyTextures   []int
	PropertyAttributes []int
}

// Class returns the target name of the source class name.
func (r *MergeResult) Class(name string) string {
	if n, ok := r.ClassRenames[name]; ok {
		return n
	}
	return name
}

// Enum returns the target name of the source enum name.
func (r *MergeResult) Enum(name string) string {
	if n, ok := r.EnumRenames[name]; ok {
		return n
	}
	return name
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (m *Merger) newID() string {
	suffix := m.Suffix
	if suffix == "" {
		suffix = strings.ReplaceAll(uuid.NewString(), "-", "_")
	}
	return MergedSchemaPrefix + suffix
}

// mergeSchema merges src into dst in place.
func (m *Merger) mergeSchema(dst, src *schema.Schema) *MergeResult {
	r := &MergeResult{
		ClassRenames: map[string]string{},
		EnumRenames:  map[string]string{},
	}

	for _, key := range sortedKeys(src.Enums) {
		e := src.Enums[key]
		t, ok := dst.Enums[key]
		switch {
		case !ok:
			if dst.Enums == nil {
				dst.Enums = map[string]*schema.Enum{}
			}
			dst.Enums[key] = e.Copy()
			r.Changed = true
		case t.Equal(e):
		default:
			name := schema.UniqueName(key, func(s string) bool {
				_, ok := dst.Enums[s]
				return ok
			})
			dst.Enums[name] = e.Copy()
			r.EnumRenames[key] = name
			r.Changed = true
			m.logger.Debug("renamed enum", zap.String("enum", key), zap.String("name", name))
		}
	}

	usedClass := func(s string) bool {
		_, ok := dst.Classes[s]
		return ok
	}
	for _, key := range sortedKeys(src.Classes) {
		c := src.Classes[key]
		forced := false
		for _, p := range c.Properties {
			if _, ok := r.EnumRenames[p.EnumType]; ok && p.EnumType != "" {
				forced = true
				break
			}
		}
		t, ok := dst.Classes[key]
		if !forced {
			if !ok {
				if dst.Classes == nil {
					dst.Classes = map[string]*schema.Class{}
				}
				dst.Classes[key] = c.Copy()
				r.Changed = true
				continue
			}
			if t.Equal(c) {
				continue
			}
		}
		cc := c.Copy()
		for _, p := range cc.Properties {
			if p.EnumType != "" {
				p.EnumType = r.Enum(p.EnumType)
			}
		}
		name := schema.UniqueName(key, usedClass)
		if dst.Classes == nil {
			dst.Classes = map[string]*schema.Class{}
		}
		dst.Classes[name] = cc
		if name != key {
			r.ClassRenames[key] = name
		}
		r.Changed = true
		m.logger.Debug("renamed class", zap.String("class", key), zap.String("name", name))
	}
	return r
}

// MergeSchemas merges the classes and enums of src into dst. Conflicting
// classes and enums are copied under new names. When classes or enums are
// added, dst receives a new identifier. dst is only modified if the merge
// succeeds.
func (m *Merger) MergeSchemas(dst, src *schema.Schema) (*MergeResult, error) {
	if dst == nil || src == nil {
		return nil, tiles.Metadataf("merge requires two schemas")
	}
	work := dst.Copy()
	r := m.mergeSchema(work, src)
	if r.Changed {
		work.ID = m.newID()
	}
	*dst = *work
	return r, nil
}

// validate checks the references of structural metadata to its schema.
func validate(root *StructuralMetadata) error {
	if root == nil {
		return nil
	}
	if root.Schema == nil {
		if len(root.PropertyTables)+len(root.PropertyTextures)+len(root.PropertyAttributes) > 0 {
			return tiles.Metadataf("structural metadata has no schema")
		}
		return nil
	}
	check := func(kind string, i int, class string) error {
		if _, ok := root.Schema.Class(class); !ok {
			return tiles.Metadataf("%s %d refers to missing class %q", kind, i, class)
		}
		return nil
	}
	for i, t := range root.PropertyTables {
		if err := check("property table", i, t.Class); err != nil {
			return err
		}
	}
	for i, t := range root.PropertyTextures {
		if err := check("property texture", i, t.Class); err != nil {
			return err
		}
	}
	for i, a := range root.PropertyAttributes {
		if err := check("property attribute", i, a.Class); err != nil {
			return err
		}
	}
	return nil
}

// validateFeatures checks that the feature IDs of doc refer to existing
// property tables and textures.
func validateFeatures(doc *gltf.Document, root *StructuralMetadata) error {
	tables := 0
	if root != nil {
		tables = len(root.PropertyTables)
	}
	check := func(exts gltf.Extensions, name string) error {
		var f FeatureIDs
		if _, err := gltfdoc.Extension(exts, name, &f); err != nil {
			return tiles.Metadataf("%s: %v", name, err)
		}
		for _, id := range f.FeatureIDs {
			if id.PropertyTable != nil && (*id.PropertyTable < 0 || *id.PropertyTable >= tables) {
				return tiles.Metadataf("%s refers to missing property table %d", name, *id.PropertyTable)
			}
			if id.Texture != nil && (id.Texture.Index < 0 || id.Texture.Index >= len(doc.Textures)) {
				return tiles.Metadataf("%s refers to missing texture %d", name, id.Texture.Index)
			}
		}
		return nil
	}
	for _, mesh := range doc.Meshes {
		for _, p := range mesh.Primitives {
			if err := check(p.Extensions, ExtMeshFeatures); err != nil {
				return err
			}
			if err := validatePrimitive(p, root); err != nil {
				return err
			}
		}
	}
	for _, n := range doc.Nodes {
		if err := check(n.Extensions, ExtInstanceFeatures); err != nil {
			return err
		}
	}
	return nil
}

// validatePrimitive checks that the structural metadata of p refers to
// existing property textures and property attributes of root.
func validatePrimitive(p *gltf.Primitive, root *StructuralMetadata) error {
	var pm PrimitiveMetadata
	ok, err := gltfdoc.Extension(p.Extensions, ExtStructuralMetadata, &pm)
	if err != nil {
		return tiles.Metadataf("%s: %v", ExtStructuralMetadata, err)
	}
	if !ok {
		return nil
	}
	var textures, attributes int
	if root != nil {
		textures = len(root.PropertyTextures)
		attributes = len(root.PropertyAttributes)
	}
	for _, i := range pm.PropertyTextures {
		if i < 0 || i >= textures {
			return tiles.Metadataf("primitive refers to missing property texture %d", i)
		}
	}
	for _, i := range pm.PropertyAttributes {
		if i < 0 || i >= attributes {
			return tiles.Metadataf("primitive refers to missing property attribute %d", i)
		}
	}
	return nil
}

func shiftIndex(i *int, off int) *int {
	if i == nil {
		return nil
	}
	return gltf.Index(*i + off)
}

// Merge appends src to the document of w, and merges the structural metadata
// of src into that of the document. Property tables are appended with their
// classes renamed. Property textures and property attributes equal to ones
// already present are reused, and the primitives of src are rebound to them.
//
// References of src are validated before the document is modified, so a
// failed merge leaves the document unchanged.
func (m *Merger) Merge(w *gltfdoc.Writer, src *gltf.Document) (*MergeResult, error) {
	dst := w.Document()
	srcRoot, err := Root(src)
	if err != nil {
		return nil, err
	}
	if err := validate(srcRoot); err != nil {
		return nil, err
	}
	if err := validateFeatures(src, srcRoot); err != nil {
		return nil, err
	}
	dstRoot, err := Root(dst)
	if err != nil {
		return nil, err
	}
	if err := validate(dstRoot); err != nil {
		return nil, err
	}

	work := dstRoot.Copy()
	r := &MergeResult{ClassRenames: map[string]string{}, EnumRenames: map[string]string{}}
	if srcRoot != nil && srcRoot.Schema != nil {
		switch {
		case work == nil:
			work = &StructuralMetadata{Schema: srcRoot.Schema.Copy()}
		case work.Schema == nil:
			work.Schema = srcRoot.Schema.Copy()
		default:
			r = m.mergeSchema(work.Schema, srcRoot.Schema)
			if r.Changed {
				work.Schema.ID = m.newID()
			}
		}
	}

	off, err := gltfdoc.Append(w, src)
	if err != nil {
		return nil, err
	}
	m.logger.Debug("appended document",
		zap.Int("nodes", len(src.Nodes)),
		zap.Int("accessors", len(src.Accessors)),
	)
	if srcRoot != nil {
		if work == nil {
			work = &StructuralMetadata{}
		}
		mergeObjects(work, srcRoot, r, off)
	}

	for _, mesh := range dst.Meshes[off.Meshes:] {
		for _, p := range mesh.Primitives {
			if err := rebindPrimitive(p, r, off); err != nil {
				return nil, err
			}
		}
	}
	for _, n := range dst.Nodes[off.Nodes:] {
		if err := rebindFeatures(&n.Extensions, ExtInstanceFeatures, r, off); err != nil {
			return nil, err
		}
	}

	if work != nil {
		SetRoot(dst, work)
	}
	return r, nil
}

// mergeObjects appends the property tables, textures and attributes of src
// to root.
func mergeObjects(root, src *StructuralMetadata, r *MergeResult, off *gltfdoc.Offsets) {
	for _, t := range src.PropertyTables {
		c := t.Copy()
		c.Class = r.Class(t.Class)
		for _, p := range c.Properties {
			p.Values += off.BufferViews
			p.ArrayOffsets = shiftIndex(p.ArrayOffsets, off.BufferViews)
			p.StringOffsets = shiftIndex(p.StringOffsets, off.BufferViews)
		}
		root.PropertyTables = append(root.PropertyTables, c)
		r.PropertyTables = append(r.PropertyTables, len(root.PropertyTables)-1)
	}
	for _, t := range src.PropertyTextures {
		c := t.Copy()
		c.Class = r.Class(t.Class)
		for _, p := range c.Properties {
			p.Index += off.Textures
		}
		r.PropertyTextures = append(r.PropertyTextures, addTexture(root, c))
	}
	for _, a := range src.PropertyAttributes {
		c := a.Copy()
		c.Class = r.Class(a.Class)
		r.PropertyAttributes = append(r.PropertyAttributes, addAttribute(root, c))
	}
}

func addTexture(root *StructuralMetadata, t *PropertyTexture) int {
	for i, u := range root.PropertyTextures {
		if u.Equal(t) {
			return i
		}
	}
	root.PropertyTextures = append(root.PropertyTextures, t)
	return len(root.PropertyTextures) - 1
}

func addAttribute(root *StructuralMetadata, a *PropertyAttribute) int {
	for i, b := range root.PropertyAttributes {
		if b.Equal(a) {
			return i
		}
	}
	root.PropertyAttributes = append(root.PropertyAttributes, a)
	return len(root.PropertyAttributes) - 1
}

func remapIndices(indices, to []int, kind string) ([]int, error) {
	if indices == nil {
		return nil, nil
	}
	r := make([]int, len(indices))
	for i, j := range indices {
		if j < 0 || j >= len(to) {
			return nil, tiles.Metadataf("primitive refers to missing %s %d", kind, j)
		}
		r[i] = to[j]
	}
	return r, nil
}

// rebindPrimitive rewrites the metadata references of an appended primitive.
func rebindPrimitive(p *gltf.Primitive, r *MergeResult, off *gltfdoc.Offsets) error {
	var pm PrimitiveMetadata
	ok, err := gltfdoc.Extension(p.Extensions, ExtStructuralMetadata, &pm)
	if err != nil {
		return tiles.Metadataf("%s: %v", ExtStructuralMetadata, err)
	}
	if ok {
		if pm.PropertyTextures, err = remapIndices(pm.PropertyTextures, r.PropertyTextures, "property texture"); err != nil {
			return err
		}
		if pm.PropertyAttributes, err = remapIndices(pm.PropertyAttributes, r.PropertyAttributes, "property attribute"); err != nil {
			return err
		}
		p.Extensions[ExtStructuralMetadata] = &pm
	}
	return rebindFeatures(&p.Extensions, ExtMeshFeatures, r, off)
}

// rebindFeatures rewrites the property table and texture references of the
// feature IDs extension name.
func rebindFeatures(exts *gltf.Extensions, name string, r *MergeResult, off *gltfdoc.Offsets) error {
	var f FeatureIDs
	ok, err := gltfdoc.Extension(*exts, name, &f)
	if err != nil {
		return tiles.Metadataf("%s: %v", name, err)
	}
	if !ok {
		return nil
	}
	for _, id := range f.FeatureIDs {
		if id.PropertyTable != nil {
			t := *id.PropertyTable
			if t < 0 || t >= len(r.PropertyTables) {
				return tiles.Metadataf("%s refers to missing property table %d", name, t)
			}
			id.PropertyTable = gltf.Index(r.PropertyTables[t])
		}
		if id.Texture != nil {
			id.Texture.Index += off.Textures
		}
	}
	(*exts)[name] = &f
	return nil
}
