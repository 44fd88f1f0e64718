package tiles

import (
	"strings"
)

// ComponentType is a canonical component type of structured metadata and of
// decoded binary data.
type ComponentType uint8

const (
	ComponentInvalid ComponentType = iota
	Int8
	Uint8
	Int16
	Uint16
	Int32
	Uint32
	Int64
	Uint64
	Float32
	Float64

	numComponentTypes
)

var componentTypeStrings = [numComponentTypes]string{
	ComponentInvalid: "",
	Int8:             "INT8",
	Uint8:            "UINT8",
	Int16:            "INT16",
	Uint16:           "UINT16",
	Int32:            "INT32",
	Uint32:           "UINT32",
	Int64:            "INT64",
	Uint64:           "UINT64",
	Float32:          "FLOAT32",
	Float64:          "FLOAT64",
}

var componentTypeSizes = [numComponentTypes]int{
	Int8:    1,
	Uint8:   1,
	Int16:   2,
	Uint16:  2,
	Int32:   4,
	Uint32:  4,
	Int64:   8,
	Uint64:  8,
	Float32: 4,
	Float64: 8,
}

// Valid returns whether the component type is one of the canonical types.
func (c ComponentType) Valid() bool {
	return ComponentInvalid < c && c < numComponentTypes
}

// Size returns the number of bytes of one component, or 0 if the type is
// invalid.
func (c ComponentType) Size() int {
	if !c.Valid() {
		return 0
	}
	return componentTypeSizes[c]
}

// Integral returns whether the component type holds integers.
func (c ComponentType) Integral() bool {
	return c.Valid() && c != Float32 && c != Float64
}

// Signed returns whether the component type can hold negative values.
func (c ComponentType) Signed() bool {
	switch c {
	case Int8, Int16, Int32, Int64, Float32, Float64:
		return true
	}
	return false
}

// String returns the canonical token of the component type. Returns
// "Invalid" for an invalid type.
func (c ComponentType) String() string {
	if !c.Valid() {
		return "Invalid"
	}
	return componentTypeStrings[c]
}

func (c ComponentType) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, Formatf("invalid component type %d", uint8(c))
	}
	return []byte(componentTypeStrings[c]), nil
}

func (c *ComponentType) UnmarshalText(b []byte) error {
	t, err := ParseComponentType(string(b))
	if err != nil {
		return err
	}
	*c = t
	return nil
}

// ParseComponentType returns the component type of a canonical token. The
// match is case-sensitive.
func ParseComponentType(s string) (ComponentType, error) {
	for c := Int8; c < numComponentTypes; c++ {
		if componentTypeStrings[c] == s {
			return c, nil
		}
	}
	return ComponentInvalid, Formatf("unknown component type %q", s)
}

////////////////////////////////////////////////////////////////

// Type is the element type of a structured metadata property.
type Type uint8

const (
	TypeInvalid Type = iota
	Scalar
	Vec2
	Vec3
	Vec4
	Mat2
	Mat3
	Mat4
	String
	Boolean
	Enum

	numTypes
)

var typeStrings = [numTypes]string{
	TypeInvalid: "",
	Scalar:      "SCALAR",
	Vec2:        "VEC2",
	Vec3:        "VEC3",
	Vec4:        "VEC4",
	Mat2:        "MAT2",
	Mat3:        "MAT3",
	Mat4:        "MAT4",
	String:      "STRING",
	Boolean:     "BOOLEAN",
	Enum:        "ENUM",
}

var typeComponents = [numTypes]int{
	Scalar:  1,
	Vec2:    2,
	Vec3:    3,
	Vec4:    4,
	Mat2:    4,
	Mat3:    9,
	Mat4:    16,
	String:  1,
	Boolean: 1,
	Enum:    1,
}

func (t Type) Valid() bool {
	return TypeInvalid < t && t < numTypes
}

// Components returns the number of components of one element of the type.
func (t Type) Components() int {
	if !t.Valid() {
		return 0
	}
	return typeComponents[t]
}

// Numeric returns whether elements of the type are made of numeric
// components.
func (t Type) Numeric() bool {
	switch t {
	case Scalar, Vec2, Vec3, Vec4, Mat2, Mat3, Mat4:
		return true
	}
	return false
}

func (t Type) String() string {
	if !t.Valid() {
		return "Invalid"
	}
	return typeStrings[t]
}

func (t Type) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, Formatf("invalid type %d", uint8(t))
	}
	return []byte(typeStrings[t]), nil
}

func (t *Type) UnmarshalText(b []byte) error {
	v, err := ParseType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// ParseType returns the type of a canonical token.
func ParseType(s string) (Type, error) {
	for t := Scalar; t < numTypes; t++ {
		if typeStrings[t] == s {
			return t, nil
		}
	}
	return TypeInvalid, Formatf("unknown type %q", s)
}

// VectorType returns the SCALAR or VECn type with n components, or
// TypeInvalid.
func VectorType(n int) Type {
	switch n {
	case 1:
		return Scalar
	case 2:
		return Vec2
	case 3:
		return Vec3
	case 4:
		return Vec4
	}
	return TypeInvalid
}

////////////////////////////////////////////////////////////////

// LegacyComponentType is a component type token of a legacy feature or batch
// table.
type LegacyComponentType uint8

const (
	LegacyComponentInvalid LegacyComponentType = iota
	LegacyByte
	LegacyUnsignedByte
	LegacyShort
	LegacyUnsignedShort
	LegacyInt
	LegacyUnsignedInt
	LegacyFloat
	LegacyDouble

	numLegacyComponentTypes
)

var legacyComponentTypeStrings = [numLegacyComponentTypes]string{
	LegacyComponentInvalid: "",
	LegacyByte:             "BYTE",
	LegacyUnsignedByte:     "UNSIGNED_BYTE",
	LegacyShort:            "SHORT",
	LegacyUnsignedShort:    "UNSIGNED_SHORT",
	LegacyInt:              "INT",
	LegacyUnsignedInt:      "UNSIGNED_INT",
	LegacyFloat:            "FLOAT",
	LegacyDouble:           "DOUBLE",
}

var legacyComponentTypes = [numLegacyComponentTypes]ComponentType{
	LegacyComponentInvalid: ComponentInvalid,
	LegacyByte:             Int8,
	LegacyUnsignedByte:     Uint8,
	LegacyShort:            Int16,
	LegacyUnsignedShort:    Uint16,
	LegacyInt:              Int32,
	LegacyUnsignedInt:      Uint32,
	LegacyFloat:            Float32,
	LegacyDouble:           Float64,
}

func (c LegacyComponentType) Valid() bool {
	return LegacyComponentInvalid < c && c < numLegacyComponentTypes
}

// Canonical returns the canonical component type corresponding to the legacy
// type.
func (c LegacyComponentType) Canonical() ComponentType {
	if !c.Valid() {
		return ComponentInvalid
	}
	return legacyComponentTypes[c]
}

func (c LegacyComponentType) String() string {
	if !c.Valid() {
		return "Invalid"
	}
	return legacyComponentTypeStrings[c]
}

func (c LegacyComponentType) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, Formatf("invalid legacy component type %d", uint8(c))
	}
	return []byte(legacyComponentTypeStrings[c]), nil
}

func (c *LegacyComponentType) UnmarshalText(b []byte) error {
	v, err := ParseLegacyComponentType(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// ParseLegacyComponentType returns the legacy component type of a token. The
// match is case-sensitive.
func ParseLegacyComponentType(s string) (LegacyComponentType, error) {
	for c := LegacyByte; c < numLegacyComponentTypes; c++ {
		if legacyComponentTypeStrings[c] == s {
			return c, nil
		}
	}
	return LegacyComponentInvalid, Formatf("unknown legacy component type %q", s)
}

// LegacyType is an element type token of a legacy feature or batch table.
type LegacyType uint8

const (
	LegacyTypeInvalid LegacyType = iota
	LegacyScalar
	LegacyVec2
	LegacyVec3
	LegacyVec4

	numLegacyTypes
)

var legacyTypeStrings = [numLegacyTypes]string{
	LegacyTypeInvalid: "",
	LegacyScalar:      "SCALAR",
	LegacyVec2:        "VEC2",
	LegacyVec3:        "VEC3",
	LegacyVec4:        "VEC4",
}

var legacyTypes = [numLegacyTypes]Type{
	LegacyTypeInvalid: TypeInvalid,
	LegacyScalar:      Scalar,
	LegacyVec2:        Vec2,
	LegacyVec3:        Vec3,
	LegacyVec4:        Vec4,
}

func (t LegacyType) Valid() bool {
	return LegacyTypeInvalid < t && t < numLegacyTypes
}

// Canonical returns the canonical type corresponding to the legacy type.
func (t LegacyType) Canonical() Type {
	if !t.Valid() {
		return TypeInvalid
	}
	return legacyTypes[t]
}

// Components returns the number of components of one element.
func (t LegacyType) Components() int {
	return t.Canonical().Components()
}

func (t LegacyType) String() string {
	if !t.Valid() {
		return "Invalid"
	}
	return legacyTypeStrings[t]
}

func (t LegacyType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, Formatf("invalid legacy type %d", uint8(t))
	}
	return []byte(legacyTypeStrings[t]), nil
}

func (t *LegacyType) UnmarshalText(b []byte) error {
	v, err := ParseLegacyType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// ParseLegacyType returns the legacy type of a token.
func ParseLegacyType(s string) (LegacyType, error) {
	for t := LegacyScalar; t < numLegacyTypes; t++ {
		if legacyTypeStrings[t] == s {
			return t, nil
		}
	}
	return LegacyTypeInvalid, Formatf("unknown legacy type %q", s)
}

// LegacyTypeDescriptor pairs a legacy element type with a legacy component
// type.
type LegacyTypeDescriptor struct {
	Type          LegacyType
	ComponentType LegacyComponentType
}

// Canonical returns the canonical type pair of the descriptor.
func (d LegacyTypeDescriptor) Canonical() (Type, ComponentType) {
	return d.Type.Canonical(), d.ComponentType.Canonical()
}

func (d LegacyTypeDescriptor) String() string {
	var s strings.Builder
	s.WriteString(d.Type.String())
	s.WriteByte('/')
	s.WriteString(d.ComponentType.String())
	return s.String()
}
