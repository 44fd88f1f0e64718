package schema

import (
	"fmt"
	"strings"

	"github.com/psc3k/tiles"
)

// Sanitize returns s with every character that is not valid in an identifier
// replaced with an underscore. Identifiers match ^[A-Za-z_][A-Za-z0-9_]*$.
func Sanitize(s string) string {
	if s == "" {
		return "_"
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case 'A' <= c && c <= 'Z', 'a' <= c && c <= 'z', c == '_':
		case '0' <= c && c <= '9' && i > 0:
		default:
			c = '_'
		}
		b.WriteByte(c)
	}
	return b.String()
}

// UniqueName returns the first name of the sequence name, name_0, name_1, ...
// for which used returns false.
func UniqueName(name string, used func(string) bool) string {
	if !used(name) {
		return name
	}
	for i := 0; ; i++ {
		n := fmt.Sprintf("%s_%d", name, i)
		if !used(n) {
			return n
		}
	}
}

// valueKind classifies an inline value.
type valueKind int

const (
	kindNull valueKind = iota
	kindBool
	kindString
	kindNumber
	kindArray
	kindOther
)

func kindOf(v interface{}) valueKind {
	switch v := v.(type) {
	case nil:
		return kindNull
	case bool:
		return kindBool
	case string:
		return kindString
	case []interface{}:
		return kindArray
	default:
		if tiles.IsNumber(v) {
			return kindNumber
		}
	}
	return kindOther
}

// commonKind returns the kind shared by every non-null value, or kindOther if
// the values are mixed. kindNull is returned if there are no values.
func commonKind(values []interface{}) valueKind {
	k := kindNull
	for _, v := range values {
		vk := kindOf(v)
		switch {
		case vk == kindNull:
		case k == kindNull:
			k = vk
		case k != vk:
			return kindOther
		}
	}
	return k
}

// elementProperty sets the type of p from elements that all have kind k.
func elementProperty(p *ClassProperty, k valueKind, values []interface{}) error {
	switch k {
	case kindBool:
		p.Type = tiles.Boolean
	case kindNumber:
		ct, err := InferComponentType(values)
		if err != nil {
			return err
		}
		p.Type = tiles.Scalar
		p.ComponentType = ct
	default:
		p.Type = tiles.String
	}
	return nil
}

// CreateClassProperty returns the class property describing the column of a
// legacy table. A binary body reference is converted from its declared type.
// An inline array is described by the common type of its elements, where
// values of mixed or structured types are stored as strings. If every element
// is itself an array, the property is an array, with a fixed count when all
// element arrays have the same length.
//
// Returns a FormatError if the value is neither a binary body reference nor
// an array, or if a reference does not declare its type.
func CreateClassProperty(name string, v tiles.Property) (*ClassProperty, error) {
	p := &ClassProperty{Name: name, Required: true}
	if v.Ref != nil {
		if !v.Ref.Type.Valid() || !v.Ref.ComponentType.Valid() {
			return nil, tiles.Formatf("property %q: binary body reference must declare type and componentType", name)
		}
		p.Type, p.ComponentType = v.Ref.Descriptor(tiles.LegacyTypeDescriptor{}).Canonical()
		return p, nil
	}

	values, ok := v.Value.([]interface{})
	if !ok {
		return nil, tiles.Formatf("property %q is neither binary body reference nor array", name)
	}

	k := commonKind(values)
	if k != kindArray {
		if err := elementProperty(p, k, values); err != nil {
			return nil, fmt.Errorf("property %q: %w", name, err)
		}
		return p, nil
	}

	var elements []interface{}
	count := -1
	for _, e := range values {
		a, ok := e.([]interface{})
		if !ok {
			continue
		}
		switch {
		case count == -1:
			count = len(a)
		case count != len(a):
			count = 0
		}
		elements = append(elements, a...)
	}
	ek := commonKind(elements)
	if ek == kindArray || ek == kindOther {
		// Nested arrays are kept as JSON text.
		p.Type = tiles.String
		return p, nil
	}
	if err := elementProperty(p, ek, elements); err != nil {
		return nil, fmt.Errorf("property %q: %w", name, err)
	}
	p.Array = true
	if count > 0 {
		p.Count = count
	}
	return p, nil
}

// CreateSchema returns a schema with a single class holding a property for
// each column of the table. The identifier is sanitized and used for the
// schema ID and the class name. Property keys are sanitized names of the
// columns, while the column name is kept in the Name of each property.
// Returns nil if the table has no columns.
func CreateSchema(identifier string, t *tiles.Table) (*Schema, error) {
	if t.Len() == 0 {
		return nil, nil
	}
	id := Sanitize(identifier)
	class := &Class{
		Name:       identifier,
		Properties: make(map[string]*ClassProperty, t.Len()),
	}
	for _, name := range t.Names() {
		v, _ := t.Get(name)
		p, err := CreateClassProperty(name, v)
		if err != nil {
			return nil, err
		}
		key := UniqueName(Sanitize(name), func(s string) bool {
			_, ok := class.Properties[s]
			return ok
		})
		class.Properties[key] = p
	}
	return &Schema{
		ID:      id,
		Classes: map[string]*Class{id: class},
	}, nil
}

// PropertyKey returns the key of the class property whose Name is the given
// column name.
func (c *Class) PropertyKey(column string) (key string, ok bool) {
	for k, p := range c.Properties {
		if p.Name == column {
			return k, true
		}
	}
	return "", false
}
