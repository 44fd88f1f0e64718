package proptable

import (
	"fmt"
	"sort"
	"strings"

	"github.com/psc3k/tiles"
	"github.com/psc3k/tiles/schema"
)

// Attribute is the per-vertex data of one property.
type Attribute struct {
	// Name is the name of the vertex attribute.
	Name          string
	Type          tiles.Type
	ComponentType tiles.ComponentType
	Count         int
	// Data holds tightly packed little-endian components.
	Data []byte
}

// PropertyAttributes holds the vertex attributes of each property of a
// class.
type PropertyAttributes struct {
	Schema     *schema.Schema
	ClassName  string
	Attributes map[string]*Attribute
}

// Keys returns the keys of the properties in a stable order.
func (a *PropertyAttributes) Keys() []string {
	keys := make([]string, 0, len(a.Attributes))
	for k := range a.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// AttributeName returns the name of the vertex attribute holding a property.
func AttributeName(key string) string {
	return "_" + strings.ToUpper(key)
}

// attributeType returns the accessor type of a property stored as a vertex
// attribute.
func attributeType(p *schema.ClassProperty) (tiles.Type, error) {
	switch p.ComponentType {
	case tiles.Int8, tiles.Uint8, tiles.Int16, tiles.Uint16, tiles.Float32:
	default:
		return tiles.TypeInvalid, tiles.Formatf("component type %s cannot back a vertex attribute", p.ComponentType)
	}
	switch {
	case !p.Array:
		switch p.Type {
		case tiles.Scalar, tiles.Vec2, tiles.Vec3, tiles.Vec4:
			return p.Type, nil
		}
	case p.Type == tiles.Scalar:
		if t := tiles.VectorType(p.Count); t.Valid() {
			return t, nil
		}
	}
	return tiles.TypeInvalid, tiles.Formatf("%s property cannot back a vertex attribute", describe(p))
}

func describe(p *schema.ClassProperty) string {
	switch {
	case !p.Array:
		return p.Type.String()
	case p.Count > 0:
		return fmt.Sprintf("%s[%d]", p.Type, p.Count)
	}
	return p.Type.String() + "[]"
}

// BuildPropertyAttributes encodes count rows of each column as a vertex
// attribute. Vectors and fixed-length arrays are flattened. Returns a
// FormatError for a property whose component type is not one of INT8, UINT8,
// INT16, UINT16 or FLOAT32, or whose type cannot be stored per vertex.
func BuildPropertyAttributes(s *schema.Schema, className string, columns map[string]Column, count int) (*PropertyAttributes, error) {
	class, ok := s.Class(className)
	if !ok {
		return nil, tiles.Metadataf("schema has no class %q", className)
	}
	a := &PropertyAttributes{
		Schema:     s,
		ClassName:  className,
		Attributes: make(map[string]*Attribute, len(class.Properties)),
	}
	for key, p := range class.Properties {
		t, err := attributeType(p)
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", key, err)
		}
		c, ok := column(columns, key, p)
		if !ok {
			return nil, tiles.Formatf("no data for property %q", key)
		}
		if c.Len() < count {
			return nil, tiles.Formatf("property %q has %d rows, expected %d", key, c.Len(), count)
		}
		b, err := encodeNumbers(p, c, count)
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", key, err)
		}
		a.Attributes[key] = &Attribute{
			Name:          AttributeName(key),
			Type:          t,
			ComponentType: p.ComponentType,
			Count:         count,
			Data:          b.Values,
		}
	}
	return a, nil
}
