package metadata

import (
	"strconv"

	"github.com/psc3k/tiles"
	"github.com/psc3k/tiles/gltfdoc"
	"github.com/psc3k/tiles/proptable"
	"github.com/psc3k/tiles/schema"
	"github.com/qmuntal/gltf"
)

// Root returns the structural metadata of doc, or nil if it has none.
func Root(doc *gltf.Document) (*StructuralMetadata, error) {
	v, ok := doc.Extensions[ExtStructuralMetadata]
	if !ok || v == nil {
		return nil, nil
	}
	if m, ok := v.(*StructuralMetadata); ok {
		return m, nil
	}
	m := new(StructuralMetadata)
	if err := gltfdoc.DecodeExtension(v, m); err != nil {
		return nil, tiles.Metadataf("%s: %v", ExtStructuralMetadata, err)
	}
	return m, nil
}

// SetRoot sets the structural metadata of doc.
func SetRoot(doc *gltf.Document, m *StructuralMetadata) {
	gltfdoc.SetExtension(&doc.Extensions, ExtStructuralMetadata, m)
	gltfdoc.AddExtensionUsed(doc, ExtStructuralMetadata)
}

// root returns the structural metadata of doc, adding it if needed.
func root(doc *gltf.Document) (*StructuralMetadata, error) {
	m, err := Root(doc)
	if err != nil {
		return nil, err
	}
	if m == nil {
		m = &StructuralMetadata{}
	}
	SetRoot(doc, m)
	return m, nil
}

// useClass makes s the schema of m when m has none. Otherwise, the class is
// added to the schema of m, which must not already hold a different class of
// the same name.
func useClass(m *StructuralMetadata, s *schema.Schema, name string) error {
	class, ok := s.Class(name)
	if !ok {
		return tiles.Metadataf("schema has no class %q", name)
	}
	switch {
	case m.Schema == nil:
		m.Schema = s
		return nil
	case m.Schema == s:
		return nil
	}
	if c, ok := m.Schema.Classes[name]; ok {
		if !c.Equal(class) {
			return tiles.Metadataf("document schema has a different class %q", name)
		}
		return nil
	}
	for _, p := range class.Properties {
		if p.EnumType == "" {
			continue
		}
		e := s.Enums[p.EnumType]
		if f, ok := m.Schema.Enums[p.EnumType]; ok {
			if !f.Equal(e) {
				return tiles.Metadataf("document schema has a different enum %q", p.EnumType)
			}
			continue
		}
		if m.Schema.Enums == nil {
			m.Schema.Enums = map[string]*schema.Enum{}
		}
		m.Schema.Enums[p.EnumType] = e.Copy()
	}
	if m.Schema.Classes == nil {
		m.Schema.Classes = map[string]*schema.Class{}
	}
	m.Schema.Classes[name] = class.Copy()
	return nil
}

// AttachPropertyTable writes the buffers of t into the document of w, and
// adds a property table to its structural metadata. Returns the index of the
// property table.
func AttachPropertyTable(w *gltfdoc.Writer, t *proptable.BinaryPropertyTable) (int, error) {
	m, err := root(w.Document())
	if err != nil {
		return 0, err
	}
	if err := useClass(m, t.Schema, t.ClassName); err != nil {
		return 0, err
	}
	pt := &PropertyTable{
		Class:      t.ClassName,
		Count:      t.Count,
		Properties: make(map[string]*PropertyTableProperty, len(t.Properties)),
	}
	for _, key := range t.Keys() {
		b := t.Properties[key]
		p := &PropertyTableProperty{Values: w.BufferView(b.Values, 0, 0)}
		if b.ArrayOffsets != nil {
			p.ArrayOffsets = gltf.Index(w.BufferView(b.ArrayOffsets, 0, 0))
			p.ArrayOffsetType = proptable.OffsetType
		}
		if b.StringOffsets != nil {
			p.StringOffsets = gltf.Index(w.BufferView(b.StringOffsets, 0, 0))
			p.StringOffsetType = proptable.OffsetType
		}
		pt.Properties[key] = p
	}
	m.PropertyTables = append(m.PropertyTables, pt)
	return len(m.PropertyTables) - 1, nil
}

// AttachPropertyAttributes writes each attribute of a as a vertex attribute
// of prim, and adds a property attribute referring to them. Returns the
// index of the property attribute.
func AttachPropertyAttributes(w *gltfdoc.Writer, prim *gltf.Primitive, a *proptable.PropertyAttributes) (int, error) {
	doc := w.Document()
	m, err := root(doc)
	if err != nil {
		return 0, err
	}
	if err := useClass(m, a.Schema, a.ClassName); err != nil {
		return 0, err
	}
	pa := &PropertyAttribute{
		Class:      a.ClassName,
		Properties: make(map[string]*PropertyAttributeProperty, len(a.Attributes)),
	}
	if prim.Attributes == nil {
		prim.Attributes = map[string]int{}
	}
	for _, key := range a.Keys() {
		attr := a.Attributes[key]
		i, err := w.Accessor(gltfdoc.AccessorData{
			Type:          attr.Type,
			ComponentType: attr.ComponentType,
			Count:         attr.Count,
			Data:          attr.Data,
			Attribute:     true,
		})
		if err != nil {
			return 0, err
		}
		prim.Attributes[attr.Name] = i
		pa.Properties[key] = &PropertyAttributeProperty{Attribute: attr.Name}
	}
	m.PropertyAttributes = append(m.PropertyAttributes, pa)
	index := len(m.PropertyAttributes) - 1

	var pm PrimitiveMetadata
	if _, err := gltfdoc.Extension(prim.Extensions, ExtStructuralMetadata, &pm); err != nil {
		return 0, tiles.Metadataf("%s: %v", ExtStructuralMetadata, err)
	}
	pm.PropertyAttributes = append(pm.PropertyAttributes, index)
	gltfdoc.SetExtension(&prim.Extensions, ExtStructuralMetadata, &pm)
	return index, nil
}

// FeatureIDAttribute returns the name of the attribute of feature ID set n.
func FeatureIDAttribute(n int) string {
	return "_FEATURE_ID_" + strconv.Itoa(n)
}

// nextFeatureIDSet returns the first feature ID set without an attribute.
func nextFeatureIDSet(attrs map[string]int) int {
	n := 0
	for {
		if _, ok := attrs[FeatureIDAttribute(n)]; !ok {
			return n
		}
		n++
	}
}

// AddMeshFeatureID adds a feature ID set to the mesh features of prim.
func AddMeshFeatureID(doc *gltf.Document, prim *gltf.Primitive, id *FeatureID) error {
	var f FeatureIDs
	if _, err := gltfdoc.Extension(prim.Extensions, ExtMeshFeatures, &f); err != nil {
		return tiles.Metadataf("%s: %v", ExtMeshFeatures, err)
	}
	f.FeatureIDs = append(f.FeatureIDs, id)
	gltfdoc.SetExtension(&prim.Extensions, ExtMeshFeatures, &f)
	gltfdoc.AddExtensionUsed(doc, ExtMeshFeatures)
	return nil
}

// AttachFeatureIDs writes ids as the next feature ID attribute of prim, and
// adds a feature ID set referring to it. propertyTable is the index of the
// property table of the features, or nil.
func AttachFeatureIDs(w *gltfdoc.Writer, prim *gltf.Primitive, ids *proptable.FeatureIDs, propertyTable *int) (*FeatureID, error) {
	acr, err := w.Accessor(gltfdoc.AccessorData{
		Type:          tiles.Scalar,
		ComponentType: ids.ComponentType,
		Count:         ids.Count,
		Data:          ids.Data,
		Attribute:     true,
	})
	if err != nil {
		return nil, err
	}
	if prim.Attributes == nil {
		prim.Attributes = map[string]int{}
	}
	n := nextFeatureIDSet(prim.Attributes)
	prim.Attributes[FeatureIDAttribute(n)] = acr
	id := &FeatureID{
		FeatureCount:  ids.FeatureCount,
		Attribute:     gltf.Index(n),
		PropertyTable: propertyTable,
	}
	if err := AddMeshFeatureID(w.Document(), prim, id); err != nil {
		return nil, err
	}
	return id, nil
}

// AttachInstanceFeatureIDs writes ids as the next feature ID attribute of the
// instancing extension of node, and adds a feature ID set referring to it.
func AttachInstanceFeatureIDs(w *gltfdoc.Writer, node *gltf.Node, ids *proptable.FeatureIDs, propertyTable *int) (*FeatureID, error) {
	doc := w.Document()
	var inst gltfdoc.MeshGPUInstancing
	ok, err := gltfdoc.Extension(node.Extensions, gltfdoc.ExtMeshGPUInstancing, &inst)
	if err != nil {
		return nil, tiles.Formatf("%s: %v", gltfdoc.ExtMeshGPUInstancing, err)
	}
	if !ok {
		return nil, tiles.Metadataf("node is not instanced")
	}
	acr, err := w.Accessor(gltfdoc.AccessorData{
		Type:          tiles.Scalar,
		ComponentType: ids.ComponentType,
		Count:         ids.Count,
		Data:          ids.Data,
	})
	if err != nil {
		return nil, err
	}
	if inst.Attributes == nil {
		inst.Attributes = map[string]int{}
	}
	n := nextFeatureIDSet(inst.Attributes)
	inst.Attributes[FeatureIDAttribute(n)] = acr
	gltfdoc.SetExtension(&node.Extensions, gltfdoc.ExtMeshGPUInstancing, &inst)

	var f FeatureIDs
	if _, err := gltfdoc.Extension(node.Extensions, ExtInstanceFeatures, &f); err != nil {
		return nil, tiles.Metadataf("%s: %v", ExtInstanceFeatures, err)
	}
	id := &FeatureID{
		FeatureCount:  ids.FeatureCount,
		Attribute:     gltf.Index(n),
		PropertyTable: propertyTable,
	}
	f.FeatureIDs = append(f.FeatureIDs, id)
	gltfdoc.SetExtension(&node.Extensions, ExtInstanceFeatures, &f)
	gltfdoc.AddExtensionUsed(doc, ExtInstanceFeatures)
	return id, nil
}
