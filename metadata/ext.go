// Package metadata implements the structural metadata and feature ID
// extensions of glTF documents, and merges the metadata of combined
// documents.
package metadata

import (
	"maps"
	"slices"

	"github.com/psc3k/tiles"
	"github.com/psc3k/tiles/schema"
)

// Extension names.
const (
	ExtStructuralMetadata = "EXT_structural_metadata"
	ExtMeshFeatures       = "EXT_mesh_features"
	ExtInstanceFeatures   = "EXT_instance_features"
)

// StructuralMetadata is the document-level structural metadata extension.
type StructuralMetadata struct {
	Schema             *schema.Schema       `json:"schema,omitempty"`
	SchemaURI          string               `json:"schemaUri,omitempty"`
	PropertyTables     []*PropertyTable     `json:"propertyTables,omitempty"`
	PropertyTextures   []*PropertyTexture   `json:"propertyTextures,omitempty"`
	PropertyAttributes []*PropertyAttribute `json:"propertyAttributes,omitempty"`
}

// PropertyTable stores the properties of a class in buffer views.
type PropertyTable struct {
	Name       string                            `json:"name,omitempty"`
	Class      string                            `json:"class"`
	Count      int                               `json:"count"`
	Properties map[string]*PropertyTableProperty `json:"properties,omitempty"`
}

// PropertyTableProperty holds the buffer view indices of one property.
type PropertyTableProperty struct {
	Values           int                 `json:"values"`
	ArrayOffsets     *int                `json:"arrayOffsets,omitempty"`
	StringOffsets    *int                `json:"stringOffsets,omitempty"`
	ArrayOffsetType  tiles.ComponentType `json:"arrayOffsetType,omitempty"`
	StringOffsetType tiles.ComponentType `json:"stringOffsetType,omitempty"`
}

// PropertyTexture stores the properties of a class in texture channels.
type PropertyTexture struct {
	Name       string                              `json:"name,omitempty"`
	Class      string                              `json:"class"`
	Properties map[string]*PropertyTextureProperty `json:"properties,omitempty"`
}

// PropertyTextureProperty refers to the channels of a texture.
type PropertyTextureProperty struct {
	Index    int   `json:"index"`
	TexCoord int   `json:"texCoord,omitempty"`
	Channels []int `json:"channels,omitempty"`
}

// PropertyAttribute stores the properties of a class in vertex attributes.
type PropertyAttribute struct {
	Name       string                                `json:"name,omitempty"`
	Class      string                                `json:"class"`
	Properties map[string]*PropertyAttributeProperty `json:"properties,omitempty"`
}

// PropertyAttributeProperty names the vertex attribute of a property.
type PropertyAttributeProperty struct {
	Attribute string `json:"attribute"`
}

// PrimitiveMetadata is the structural metadata extension of a mesh
// primitive.
type PrimitiveMetadata struct {
	PropertyTextures   []int `json:"propertyTextures,omitempty"`
	PropertyAttributes []int `json:"propertyAttributes,omitempty"`
}

// FeatureIDs is the feature ID extension of mesh primitives and of
// instanced nodes.
type FeatureIDs struct {
	FeatureIDs []*FeatureID `json:"featureIds"`
}

// FeatureID is one set of feature IDs. Attribute N refers to the vertex or
// instance attribute _FEATURE_ID_N.
type FeatureID struct {
	FeatureCount  int               `json:"featureCount"`
	NullFeatureID *int              `json:"nullFeatureId,omitempty"`
	Label         string            `json:"label,omitempty"`
	Attribute     *int              `json:"attribute,omitempty"`
	Texture       *FeatureIDTexture `json:"texture,omitempty"`
	PropertyTable *int              `json:"propertyTable,omitempty"`
}

// FeatureIDTexture refers to the channels of a texture holding feature IDs.
type FeatureIDTexture struct {
	Index    int   `json:"index"`
	TexCoord int   `json:"texCoord,omitempty"`
	Channels []int `json:"channels,omitempty"`
}

////////////////////////////////////////////////////////////////

func copyIndex(i *int) *int {
	if i == nil {
		return nil
	}
	j := *i
	return &j
}

// Copy returns a deep copy of m.
func (m *StructuralMetadata) Copy() *StructuralMetadata {
	if m == nil {
		return nil
	}
	c := &StructuralMetadata{SchemaURI: m.SchemaURI}
	if m.Schema != nil {
		c.Schema = m.Schema.Copy()
	}
	for _, t := range m.PropertyTables {
		c.PropertyTables = append(c.PropertyTables, t.Copy())
	}
	for _, t := range m.PropertyTextures {
		c.PropertyTextures = append(c.PropertyTextures, t.Copy())
	}
	for _, a := range m.PropertyAttributes {
		c.PropertyAttributes = append(c.PropertyAttributes, a.Copy())
	}
	return c
}

func (t *PropertyTable) Copy() *PropertyTable {
	c := *t
	c.Properties = make(map[string]*PropertyTableProperty, len(t.Properties))
	for k, p := range t.Properties {
		cp := *p
		cp.ArrayOffsets = copyIndex(p.ArrayOffsets)
		cp.StringOffsets = copyIndex(p.StringOffsets)
		c.Properties[k] = &cp
	}
	return &c
}

func (t *PropertyTexture) Copy() *PropertyTexture {
	c := *t
	c.Properties = make(map[string]*PropertyTextureProperty, len(t.Properties))
	for k, p := range t.Properties {
		cp := *p
		cp.Channels = slices.Clone(p.Channels)
		c.Properties[k] = &cp
	}
	return &c
}

func (a *PropertyAttribute) Copy() *PropertyAttribute {
	c := *a
	c.Properties = make(map[string]*PropertyAttributeProperty, len(a.Properties))
	for k, p := range a.Properties {
		cp := *p
		c.Properties[k] = &cp
	}
	return &c
}

// Equal reports whether t and u refer to the same class and texture
// channels.
func (t *PropertyTexture) Equal(u *PropertyTexture) bool {
	if t.Name != u.Name || t.Class != u.Class {
		return false
	}
	return maps.EqualFunc(t.Properties, u.Properties, func(p, q *PropertyTextureProperty) bool {
		return p.Index == q.Index &&
			p.TexCoord == q.TexCoord &&
			slices.Equal(p.Channels, q.Channels)
	})
}

// Equal reports whether a and b refer to the same class and attributes.
func (a *PropertyAttribute) Equal(b *PropertyAttribute) bool {
	if a.Name != b.Name || a.Class != b.Class {
		return false
	}
	return maps.EqualFunc(a.Properties, b.Properties, func(p, q *PropertyAttributeProperty) bool {
		return p.Attribute == q.Attribute
	})
}
