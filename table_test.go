package tiles_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/psc3k/tiles"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTable(t *testing.T) {
	tab, err := tiles.ParseTable([]byte(`{
		"POINTS_LENGTH": 4,
		"POSITION": {"byteOffset": 8},
		"id": {"byteOffset": 0, "componentType": "UNSIGNED_SHORT", "type": "SCALAR"},
		"RTC_CENTER": [1, 2.5, 3],
		"EAST_NORTH_UP": true,
		"name": {"first": "a"},
		"extensions": {"3DTILES_draco_point_compression": {"byteOffset": 4}},
		"extras": {"note": 1}
	}`), []byte{1, 2, 3})
	require.NoError(t, err)

	assert.Equal(t, []string{"POINTS_LENGTH", "POSITION", "id", "RTC_CENTER", "EAST_NORTH_UP", "name"}, tab.Names())
	assert.Equal(t, 6, tab.Len())
	assert.Equal(t, []byte{1, 2, 3}, tab.Binary)

	n, ok := tab.Int("POINTS_LENGTH")
	assert.True(t, ok)
	assert.Equal(t, 4, n)
	_, ok = tab.Int("POSITION")
	assert.False(t, ok)

	p, ok := tab.Get("id")
	require.True(t, ok)
	require.NotNil(t, p.Ref)
	assert.Equal(t, tiles.LegacyUnsignedShort, p.Ref.ComponentType)
	assert.Equal(t, tiles.LegacyScalar, p.Ref.Type)

	p, ok = tab.Get("POSITION")
	require.True(t, ok)
	require.NotNil(t, p.Ref)
	d := p.Ref.Descriptor(tiles.LegacyTypeDescriptor{Type: tiles.LegacyVec3, ComponentType: tiles.LegacyFloat})
	assert.Equal(t, tiles.LegacyVec3, d.Type)
	assert.Equal(t, tiles.LegacyFloat, d.ComponentType)

	f, ok := tab.Floats("RTC_CENTER")
	assert.True(t, ok)
	assert.Equal(t, []float64{1, 2.5, 3}, f)
	b, ok := tab.Bool("EAST_NORTH_UP")
	assert.True(t, ok)
	assert.True(t, b)

	p, ok = tab.Get("name")
	require.True(t, ok)
	assert.Nil(t, p.Ref)

	var ext struct {
		ByteOffset int `json:"byteOffset"`
	}
	ok, err = tab.Extension("3DTILES_draco_point_compression", &ext)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 4, ext.ByteOffset)
	assert.JSONEq(t, `{"note":1}`, string(tab.Extras))
}

func TestParseTableEmpty(t *testing.T) {
	tab, err := tiles.ParseTable(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, tab.Len())

	var nilTable *tiles.Table
	assert.Nil(t, nilTable.Names())
	ok, err := nilTable.Extension("x", nil)
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestParseTableErrors(t *testing.T) {
	for _, data := range []string{
		`[1, 2]`,
		`{"a": tru}`,
		`{"a": {"byteOffset": -1}}`,
		`{"a": {"byteOffset": 0, "componentType": "HALF"}}`,
		`{"a": {"byteOffset": 0, "type": "MAT4"}}`,
	} {
		_, err := tiles.ParseTable([]byte(data), nil)
		var formatErr *tiles.FormatError
		assert.True(t, errors.As(err, &formatErr), data)
	}
}

func TestTableMarshalJSON(t *testing.T) {
	src := `{"b":1,"a":{"byteOffset":4,"componentType":"FLOAT","type":"VEC3"},"extensions":{"x":{}}}`
	tab, err := tiles.ParseTable([]byte(src), nil)
	require.NoError(t, err)
	b, err := json.Marshal(tab)
	require.NoError(t, err)
	assert.Equal(t, src, string(b))
}

func TestComponentTypes(t *testing.T) {
	for c, want := range map[tiles.LegacyComponentType]tiles.ComponentType{
		tiles.LegacyByte:          tiles.Int8,
		tiles.LegacyUnsignedByte:  tiles.Uint8,
		tiles.LegacyShort:         tiles.Int16,
		tiles.LegacyUnsignedShort: tiles.Uint16,
		tiles.LegacyInt:           tiles.Int32,
		tiles.LegacyUnsignedInt:   tiles.Uint32,
		tiles.LegacyFloat:         tiles.Float32,
		tiles.LegacyDouble:        tiles.Float64,
	} {
		parsed, err := tiles.ParseLegacyComponentType(c.String())
		require.NoError(t, err)
		assert.Equal(t, c, parsed)
		assert.Equal(t, want, c.Canonical())

		canonical, err := tiles.ParseComponentType(want.String())
		require.NoError(t, err)
		assert.Equal(t, want, canonical)
	}

	assert.Equal(t, 8, tiles.Float64.Size())
	assert.Equal(t, 0, tiles.ComponentInvalid.Size())
	assert.True(t, tiles.Int16.Signed())
	assert.False(t, tiles.Float32.Integral())

	for _, s := range []string{"", "float", "UINT128", "unsigned_byte"} {
		_, err := tiles.ParseComponentType(s)
		assert.Error(t, err, s)
		_, err = tiles.ParseLegacyComponentType(s)
		assert.Error(t, err, s)
	}
}

func TestTypes(t *testing.T) {
	assert.Equal(t, 16, tiles.Mat4.Components())
	assert.Equal(t, tiles.Vec3, tiles.VectorType(3))
	assert.False(t, tiles.VectorType(5).Valid())
	assert.True(t, tiles.Vec2.Numeric())
	assert.False(t, tiles.String.Numeric())

	typ, err := tiles.ParseType("BOOLEAN")
	require.NoError(t, err)
	assert.Equal(t, tiles.Boolean, typ)
	_, err = tiles.ParseLegacyType("MAT2")
	assert.Error(t, err)
	assert.Equal(t, tiles.Vec4, tiles.LegacyVec4.Canonical())
}

func TestNumbers(t *testing.T) {
	assert.True(t, tiles.IsNumber(json.Number("1e3")))
	assert.False(t, tiles.IsNumber("1"))

	i, ok := tiles.AsInt64(json.Number("-7"))
	assert.True(t, ok)
	assert.Equal(t, int64(-7), i)
	i, ok = tiles.AsInt64(json.Number("4.0"))
	assert.True(t, ok)
	assert.Equal(t, int64(4), i)
	_, ok = tiles.AsInt64(json.Number("4.5"))
	assert.False(t, ok)

	u, ok := tiles.AsUint64(json.Number("18446744073709551615"))
	assert.True(t, ok)
	assert.Equal(t, uint64(18446744073709551615), u)
	_, ok = tiles.AsUint64(-1)
	assert.False(t, ok)

	assert.True(t, tiles.IsIntegral(3.0))
	assert.False(t, tiles.IsIntegral(3.5))
}

func TestCheckRange(t *testing.T) {
	assert.NoError(t, tiles.CheckRange(0, 4, 4))
	assert.NoError(t, tiles.CheckRange(4, 0, 4))

	err := tiles.CheckRange(2, 4, 4)
	var rangeErr *tiles.OutOfRangeError
	require.True(t, errors.As(err, &rangeErr))
	assert.Equal(t, tiles.OutOfRangeError{Offset: 2, Length: 4, Size: 4}, *rangeErr)
	assert.Equal(t, "out of range: 4 bytes at offset 2 exceed buffer of 4 bytes", err.Error())

	assert.Error(t, tiles.CheckRange(-1, 1, 4))
	assert.Error(t, tiles.CheckRange(0, -1, 4))
}

func TestFormatError(t *testing.T) {
	cause := errors.New("bad")
	err := error(&tiles.FormatError{Message: "header", Cause: cause})
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "header")
	assert.Contains(t, tiles.Metadataf("class %q", "x").Error(), `class "x"`)
}
