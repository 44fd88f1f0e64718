// Package schema implements the structured metadata schema model, along with
// the inference of a schema from an untyped legacy property table.
package schema

import (
	"github.com/psc3k/tiles"
)

// Schema describes the classes and enums of structured metadata.
type Schema struct {
	ID          string            `json:"id"`
	Name        string            `json:"name,omitempty"`
	Description string            `json:"description,omitempty"`
	Version     string            `json:"version,omitempty"`
	Classes     map[string]*Class `json:"classes,omitempty"`
	Enums       map[string]*Enum  `json:"enums,omitempty"`
}

// Class describes the properties of a kind of entity.
type Class struct {
	Name        string                    `json:"name,omitempty"`
	Description string                    `json:"description,omitempty"`
	Properties  map[string]*ClassProperty `json:"properties,omitempty"`
}

// ClassProperty describes a single property of a class.
type ClassProperty struct {
	Name          string              `json:"name,omitempty"`
	Description   string              `json:"description,omitempty"`
	Type          tiles.Type          `json:"type"`
	ComponentType tiles.ComponentType `json:"componentType,omitempty"`
	EnumType      string              `json:"enumType,omitempty"`
	Array         bool                `json:"array,omitempty"`
	Count         int                 `json:"count,omitempty"`
	Normalized    bool                `json:"normalized,omitempty"`
	Required      bool                `json:"required,omitempty"`
}

// Enum is a set of named integer values.
type Enum struct {
	Name        string              `json:"name,omitempty"`
	Description string              `json:"description,omitempty"`
	ValueType   tiles.ComponentType `json:"valueType,omitempty"`
	Values      []EnumValue         `json:"values"`
}

// EnumValue is one value of an enum.
type EnumValue struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Value       int64  `json:"value"`
}

// Equal returns whether p and q describe the same property.
func (p *ClassProperty) Equal(q *ClassProperty) bool {
	if p == nil || q == nil {
		return p == q
	}
	return *p == *q
}

// Equal returns whether c and d have the same content.
func (c *Class) Equal(d *Class) bool {
	if c == nil || d == nil {
		return c == d
	}
	if c.Name != d.Name || c.Description != d.Description {
		return false
	}
	if len(c.Properties) != len(d.Properties) {
		return false
	}
	for k, p := range c.Properties {
		q, ok := d.Properties[k]
		if !ok || !p.Equal(q) {
			return false
		}
	}
	return true
}

// Equal returns whether e and f have the same content. The order of values is
// significant.
func (e *Enum) Equal(f *Enum) bool {
	if e == nil || f == nil {
		return e == f
	}
	if e.Name != f.Name || e.Description != f.Description || e.ValueType != f.ValueType {
		return false
	}
	if len(e.Values) != len(f.Values) {
		return false
	}
	for i := range e.Values {
		if e.Values[i] != f.Values[i] {
			return false
		}
	}
	return true
}

// Copy returns a deep copy of p.
func (p *ClassProperty) Copy() *ClassProperty {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

// Copy returns a deep copy of c.
func (c *Class) Copy() *Class {
	if c == nil {
		return nil
	}
	d := *c
	if c.Properties != nil {
		d.Properties = make(map[string]*ClassProperty, len(c.Properties))
		for k, p := range c.Properties {
			d.Properties[k] = p.Copy()
		}
	}
	return &d
}

// Copy returns a deep copy of e.
func (e *Enum) Copy() *Enum {
	if e == nil {
		return nil
	}
	f := *e
	f.Values = append([]EnumValue(nil), e.Values...)
	return &f
}

// Copy returns a deep copy of s.
func (s *Schema) Copy() *Schema {
	if s == nil {
		return nil
	}
	c := *s
	if s.Classes != nil {
		c.Classes = make(map[string]*Class, len(s.Classes))
		for k, v := range s.Classes {
			c.Classes[k] = v.Copy()
		}
	}
	if s.Enums != nil {
		c.Enums = make(map[string]*Enum, len(s.Enums))
		for k, v := range s.Enums {
			c.Enums[k] = v.Copy()
		}
	}
	return &c
}

// Class returns the class of the given name. ok is false if the class does
// not exist.
func (s *Schema) Class(name string) (c *Class, ok bool) {
	if s == nil {
		return nil, false
	}
	c, ok = s.Classes[name]
	return c, ok
}
