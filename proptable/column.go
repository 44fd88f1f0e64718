// Package proptable builds binary structured metadata from the columns of a
// legacy table: property tables for batched data, and property attributes for
// per-vertex data.
package proptable

import (
	"fmt"

	"github.com/psc3k/tiles"
	"github.com/psc3k/tiles/accessor"
)

// Column is the data of one property, indexed by row.
type Column interface {
	// Len returns the number of rows.
	Len() int
	// Row returns the value of row i. Values are numbers, strings, booleans,
	// nil, or slices of values. Vectors are []float64.
	Row(i int) interface{}
}

// SequenceColumn is a column read from a binary body, or decoded from
// compressed attribute data.
type SequenceColumn struct {
	accessor.VectorSequence
}

func (c SequenceColumn) Row(i int) interface{} {
	v := c.At(i)
	if c.Size() == 1 {
		return v[0]
	}
	return v
}

// ValuesColumn is a column of inline values.
type ValuesColumn []interface{}

func (c ValuesColumn) Len() int {
	return len(c)
}

func (c ValuesColumn) Row(i int) interface{} {
	return c[i]
}

// TableColumns returns a column for each property of t. Binary body
// references are read with count rows. A column in external, such as one
// decoded from compressed data, replaces the property of the same name.
// Returns a FormatError if a property is neither a binary body reference nor
// an array.
func TableColumns(t *tiles.Table, count int, external map[string]Column) (map[string]Column, error) {
	columns := make(map[string]Column, t.Len())
	for _, name := range t.Names() {
		if c, ok := external[name]; ok {
			columns[name] = c
			continue
		}
		p, _ := t.Get(name)
		switch {
		case p.Ref != nil:
			s, err := accessor.ReadReference(t.Binary, *p.Ref, tiles.LegacyTypeDescriptor{}, count)
			if err != nil {
				return nil, fmt.Errorf("property %q: %w", name, err)
			}
			columns[name] = SequenceColumn{s}
		default:
			values, ok := p.Value.([]interface{})
			if !ok {
				return nil, tiles.Formatf("property %q is neither binary body reference nor array", name)
			}
			columns[name] = ValuesColumn(values)
		}
	}
	return columns, nil
}
