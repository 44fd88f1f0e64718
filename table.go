package tiles

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// BinaryBodyReference stands in for an inline value of a table. It points into
// the binary body of the table.
type BinaryBodyReference struct {
	ByteOffset int

	// Type is the declared element type, or LegacyTypeInvalid when the
	// reference does not declare one.
	Type LegacyType

	// ComponentType is the declared component type, or
	// LegacyComponentInvalid when the reference does not declare one.
	ComponentType LegacyComponentType
}

// Descriptor returns the type descriptor of the reference, using def for
// parts that the reference does not declare.
func (r BinaryBodyReference) Descriptor(def LegacyTypeDescriptor) LegacyTypeDescriptor {
	d := LegacyTypeDescriptor{Type: r.Type, ComponentType: r.ComponentType}
	if !d.Type.Valid() {
		d.Type = def.Type
	}
	if !d.ComponentType.Valid() {
		d.ComponentType = def.ComponentType
	}
	return d
}

type bodyReferenceJSON struct {
	ByteOffset    *int   `json:"byteOffset"`
	ComponentType string `json:"componentType,omitempty"`
	Type          string `json:"type,omitempty"`
}

func (r BinaryBodyReference) MarshalJSON() ([]byte, error) {
	off := r.ByteOffset
	j := bodyReferenceJSON{ByteOffset: &off}
	if r.ComponentType.Valid() {
		j.ComponentType = r.ComponentType.String()
	}
	if r.Type.Valid() {
		j.Type = r.Type.String()
	}
	return json.Marshal(j)
}

////////////////////////////////////////////////////////////////

// Property is one entry of a table. Exactly one of Value and Ref is set.
type Property struct {
	// Value is the inline value, decoded from JSON. Numbers are represented
	// as json.Number.
	Value interface{}

	// Ref is set when the value is stored in the binary body.
	Ref *BinaryBodyReference
}

// Table is a legacy feature table or batch table: a map of property names to
// inline values or binary body references, along with the binary body itself.
type Table struct {
	names []string
	props map[string]Property

	// Extensions holds the raw content of the "extensions" entry.
	Extensions map[string]json.RawMessage

	// Extras holds the raw content of the "extras" entry.
	Extras json.RawMessage

	// Binary is the binary body of the table. It is owned by the caller and
	// never modified.
	Binary []byte
}

// NewTable returns an empty table over a binary body.
func NewTable(binary []byte) *Table {
	return &Table{
		props:  map[string]Property{},
		Binary: binary,
	}
}

// Set adds or replaces a property. Set is used while constructing a table;
// tables are treated as read-only afterward.
func (t *Table) Set(name string, p Property) {
	if t.props == nil {
		t.props = map[string]Property{}
	}
	if _, ok := t.props[name]; !ok {
		t.names = append(t.names, name)
	}
	t.props[name] = p
}

// Len returns the number of properties.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.names)
}

// Names returns the property names in the order they were declared.
func (t *Table) Names() []string {
	if t == nil {
		return nil
	}
	names := make([]string, len(t.names))
	copy(names, t.names)
	return names
}

// Get returns the property of the given name.
func (t *Table) Get(name string) (p Property, ok bool) {
	if t == nil {
		return p, false
	}
	p, ok = t.props[name]
	return p, ok
}

// Has returns whether the table contains the property.
func (t *Table) Has(name string) bool {
	_, ok := t.Get(name)
	return ok
}

// Int returns an inline integral value. ok is false if the property is absent
// or is not an inline integer.
func (t *Table) Int(name string) (v int, ok bool) {
	p, ok := t.Get(name)
	if !ok || p.Ref != nil {
		return 0, false
	}
	i, ok := AsInt64(p.Value)
	if !ok {
		return 0, false
	}
	return int(i), true
}

// Bool returns an inline boolean value.
func (t *Table) Bool(name string) (v bool, ok bool) {
	p, ok := t.Get(name)
	if !ok || p.Ref != nil {
		return false, false
	}
	v, ok = p.Value.(bool)
	return v, ok
}

// Floats returns an inline array of numbers.
func (t *Table) Floats(name string) (v []float64, ok bool) {
	p, ok := t.Get(name)
	if !ok || p.Ref != nil {
		return nil, false
	}
	a, ok := p.Value.([]interface{})
	if !ok {
		return nil, false
	}
	v = make([]float64, len(a))
	for i, e := range a {
		if v[i], ok = AsFloat64(e); !ok {
			return nil, false
		}
	}
	return v, true
}

// Extension decodes the named extension into v. ok is false if the extension
// is absent.
func (t *Table) Extension(name string, v interface{}) (ok bool, err error) {
	if t == nil {
		return false, nil
	}
	raw, ok := t.Extensions[name]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return true, &FormatError{Message: "extension " + name, Cause: err}
	}
	return true, nil
}

func (t *Table) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	entry := func(key string, v interface{}) error {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		k, _ := json.Marshal(key)
		buf.Write(k)
		buf.WriteByte(':')
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		buf.Write(b)
		return nil
	}
	for _, name := range t.names {
		p := t.props[name]
		var v interface{} = p.Value
		if p.Ref != nil {
			v = *p.Ref
		}
		if err := entry(name, v); err != nil {
			return nil, err
		}
	}
	if len(t.Extensions) > 0 {
		if err := entry("extensions", t.Extensions); err != nil {
			return nil, err
		}
	}
	if len(t.Extras) > 0 {
		if err := entry("extras", t.Extras); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// ParseTable decodes the JSON header of a feature table or batch table. The
// declaration order of properties is kept. Objects holding a "byteOffset"
// member are decoded as binary body references; every other value is kept
// inline. Empty JSON yields an empty table.
func ParseTable(data []byte, binary []byte) (*Table, error) {
	t := NewTable(binary)
	if len(bytes.TrimSpace(data)) == 0 {
		return t, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return nil, &FormatError{Message: "table JSON", Cause: err}
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, Formatf("table JSON is not an object")
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, &FormatError{Message: "table JSON", Cause: err}
		}
		name := tok.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, &FormatError{Message: fmt.Sprintf("property %q", name), Cause: err}
		}
		switch name {
		case "extensions":
			if err := json.Unmarshal(raw, &t.Extensions); err != nil {
				return nil, &FormatError{Message: "extensions", Cause: err}
			}
			continue
		case "extras":
			t.Extras = raw
			continue
		}
		p, err := parseProperty(raw)
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", name, err)
		}
		t.Set(name, p)
	}
	if _, err := dec.Token(); err != nil && err != io.EOF {
		return nil, &FormatError{Message: "table JSON", Cause: err}
	}
	return t, nil
}

func parseProperty(raw json.RawMessage) (p Property, err error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return p, &FormatError{Cause: err}
	}
	obj, ok := v.(map[string]interface{})
	if !ok {
		p.Value = v
		return p, nil
	}
	if _, ok := obj["byteOffset"]; !ok {
		p.Value = v
		return p, nil
	}

	var j bodyReferenceJSON
	if err := json.Unmarshal(raw, &j); err != nil {
		return p, &FormatError{Message: "binary body reference", Cause: err}
	}
	if j.ByteOffset == nil || *j.ByteOffset < 0 {
		return p, Formatf("invalid byteOffset")
	}
	ref := &BinaryBodyReference{ByteOffset: *j.ByteOffset}
	if j.ComponentType != "" {
		if ref.ComponentType, err = ParseLegacyComponentType(j.ComponentType); err != nil {
			return p, err
		}
	}
	if j.Type != "" {
		if ref.Type, err = ParseLegacyType(j.Type); err != nil {
			return p, err
		}
	}
	p.Ref = ref
	return p, nil
}
