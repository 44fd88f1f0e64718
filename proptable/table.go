package proptable

import (
	"fmt"
	"sort"

	"github.com/psc3k/tiles"
	"github.com/psc3k/tiles/schema"
)

// PropertyBuffers holds the binary data of one property of a property table.
type PropertyBuffers struct {
	// Values holds the packed element values. Strings are concatenated UTF-8
	// bytes, and booleans are packed bits.
	Values []byte
	// ArrayOffsets holds count+1 element offsets of variable-length arrays,
	// or is nil. For string arrays, the offsets index strings.
	ArrayOffsets []byte
	// StringOffsets holds the byte offset of each string plus the total
	// length, or is nil.
	StringOffsets []byte
}

// BinaryPropertyTable is a fully resolved property table, ready to be written
// into a document.
type BinaryPropertyTable struct {
	Schema     *schema.Schema
	ClassName  string
	Count      int
	Properties map[string]*PropertyBuffers
}

// Keys returns the keys of the properties in a stable order.
func (t *BinaryPropertyTable) Keys() []string {
	keys := make([]string, 0, len(t.Properties))
	for k := range t.Properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// column returns the column of a class property, matched by the legacy name
// of the property, then by its key.
func column(columns map[string]Column, key string, p *schema.ClassProperty) (Column, bool) {
	if p.Name != "" {
		if c, ok := columns[p.Name]; ok {
			return c, true
		}
	}
	c, ok := columns[key]
	return c, ok
}

// BuildPropertyTable encodes count rows of each column according to the class
// of the schema. Each property of the class must have a column.
func BuildPropertyTable(s *schema.Schema, className string, columns map[string]Column, count int) (*BinaryPropertyTable, error) {
	class, ok := s.Class(className)
	if !ok {
		return nil, tiles.Metadataf("schema has no class %q", className)
	}
	t := &BinaryPropertyTable{
		Schema:     s,
		ClassName:  className,
		Count:      count,
		Properties: make(map[string]*PropertyBuffers, len(class.Properties)),
	}
	for key, p := range class.Properties {
		c, ok := column(columns, key, p)
		if !ok {
			return nil, tiles.Formatf("no data for property %q", key)
		}
		if c.Len() < count {
			return nil, tiles.Formatf("property %q has %d rows, expected %d", key, c.Len(), count)
		}
		b, err := encodeProperty(p, c, count)
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", key, err)
		}
		t.Properties[key] = b
	}
	return t, nil
}

func encodeProperty(p *schema.ClassProperty, c Column, count int) (*PropertyBuffers, error) {
	switch {
	case p.Type == tiles.Boolean:
		return encodeBooleans(p, c, count)
	case p.Type == tiles.String:
		return encodeStrings(p, c, count)
	case p.Type.Numeric():
		return encodeNumbers(p, c, count)
	}
	return nil, tiles.Formatf("type %s cannot be stored in a property table", p.Type)
}

// rowLength checks the number of elements of a row of an array property.
func rowLength(p *schema.ClassProperty, n int) error {
	if p.Count > 0 && n != p.Count {
		return tiles.Formatf("expected %d elements, got %d", p.Count, n)
	}
	return nil
}

func encodeNumbers(p *schema.ClassProperty, c Column, count int) (*PropertyBuffers, error) {
	comps := p.Type.Components()
	values := newValueWriter()
	var offsets *valueWriter
	if p.Array && p.Count == 0 {
		offsets = newValueWriter()
	}
	elements := 0
	for i := 0; i < count; i++ {
		row := flatten(c.Row(i))
		switch {
		case !p.Array:
			if row == nil {
				row = make([]interface{}, comps)
			}
			if len(row) != comps {
				return nil, tiles.Formatf("row %d: expected %d components, got %d", i, comps, len(row))
			}
		case len(row)%comps != 0:
			return nil, tiles.Formatf("row %d: %d values do not form %s elements", i, len(row), p.Type)
		default:
			if row == nil && p.Count > 0 {
				row = make([]interface{}, p.Count*comps)
			}
			if err := rowLength(p, len(row)/comps); err != nil {
				return nil, fmt.Errorf("row %d: %w", i, err)
			}
		}
		if offsets != nil {
			if err := offsets.offset(elements); err != nil {
				return nil, err
			}
			elements += len(row) / comps
		}
		for _, v := range row {
			if err := values.number(p.ComponentType, v); err != nil {
				return nil, fmt.Errorf("row %d: %w", i, err)
			}
		}
	}
	return finish(values, offsets, nil, elements)
}

func encodeBooleans(p *schema.ClassProperty, c Column, count int) (*PropertyBuffers, error) {
	var bits bitWriter
	var offsets *valueWriter
	if p.Array && p.Count == 0 {
		offsets = newValueWriter()
	}
	for i := 0; i < count; i++ {
		var row []interface{}
		if p.Array {
			row = flatten(c.Row(i))
			if row == nil && p.Count > 0 {
				row = make([]interface{}, p.Count)
			}
			if err := rowLength(p, len(row)); err != nil {
				return nil, fmt.Errorf("row %d: %w", i, err)
			}
		} else {
			row = []interface{}{c.Row(i)}
		}
		if offsets != nil {
			if err := offsets.offset(bits.n); err != nil {
				return nil, err
			}
		}
		for _, v := range row {
			b, err := asBool(v)
			if err != nil {
				return nil, fmt.Errorf("row %d: %w", i, err)
			}
			bits.bit(b)
		}
	}
	values := newValueWriter()
	if err := values.bytes(bits.b); err != nil {
		return nil, err
	}
	return finish(values, offsets, nil, bits.n)
}

func encodeStrings(p *schema.ClassProperty, c Column, count int) (*PropertyBuffers, error) {
	values := newValueWriter()
	strOffsets := newValueWriter()
	var offsets *valueWriter
	if p.Array && p.Count == 0 {
		offsets = newValueWriter()
	}
	size, n := 0, 0
	for i := 0; i < count; i++ {
		var row []string
		v := c.Row(i)
		if p.Array {
			a, _ := v.([]interface{})
			if v != nil && a == nil {
				return nil, tiles.Formatf("row %d: expected an array", i)
			}
			for _, e := range a {
				row = append(row, stringRow(e))
			}
			if row == nil && p.Count > 0 {
				row = make([]string, p.Count)
			}
			if err := rowLength(p, len(row)); err != nil {
				return nil, fmt.Errorf("row %d: %w", i, err)
			}
		} else {
			row = []string{stringRow(v)}
		}
		if offsets != nil {
			if err := offsets.offset(n); err != nil {
				return nil, err
			}
		}
		for _, s := range row {
			if err := strOffsets.offset(size); err != nil {
				return nil, err
			}
			if err := values.bytes([]byte(s)); err != nil {
				return nil, err
			}
			size += len(s)
			n++
		}
	}
	if err := strOffsets.offset(size); err != nil {
		return nil, err
	}
	return finish(values, offsets, strOffsets, n)
}

// finish completes the writers. The final array offset is total.
func finish(values, offsets, strOffsets *valueWriter, total int) (b *PropertyBuffers, err error) {
	b = &PropertyBuffers{}
	if b.Values, err = values.end(); err != nil {
		return nil, err
	}
	if offsets != nil {
		if err := offsets.offset(total); err != nil {
			return nil, err
		}
		if b.ArrayOffsets, err = offsets.end(); err != nil {
			return nil, err
		}
	}
	if strOffsets != nil {
		if b.StringOffsets, err = strOffsets.end(); err != nil {
			return nil, err
		}
	}
	return b, nil
}
