// Package vmath implements the vector, quaternion and matrix algebra used to
// decode legacy tile attributes and to build instance transforms.
//
// Vectors and matrices are fixed-size value types. Matrices are stored in
// column-major order, matching glTF.
package vmath

import (
	"math"

	"github.com/psc3k/tiles"
	"gonum.org/v1/gonum/spatial/r3"
)

// Vec3 is a 3-component vector.
type Vec3 [3]float64

// Vec4 is a 4-component vector.
type Vec4 [4]float64

func (v Vec3) r3() r3.Vec {
	return r3.Vec{X: v[0], Y: v[1], Z: v[2]}
}

func fromR3(v r3.Vec) Vec3 {
	return Vec3{v.X, v.Y, v.Z}
}

func (v Vec3) Add(w Vec3) Vec3 {
	return fromR3(r3.Add(v.r3(), w.r3()))
}

func (v Vec3) Sub(w Vec3) Vec3 {
	return fromR3(r3.Sub(v.r3(), w.r3()))
}

func (v Vec3) Scale(f float64) Vec3 {
	return fromR3(r3.Scale(f, v.r3()))
}

// Mul returns the componentwise product of v and w.
func (v Vec3) Mul(w Vec3) Vec3 {
	return Vec3{v[0] * w[0], v[1] * w[1], v[2] * w[2]}
}

func (v Vec3) Dot(w Vec3) float64 {
	return r3.Dot(v.r3(), w.r3())
}

func (v Vec3) Cross(w Vec3) Vec3 {
	return fromR3(r3.Cross(v.r3(), w.r3()))
}

// Len returns the Euclidean length of v.
func (v Vec3) Len() float64 {
	return r3.Norm(v.r3())
}

// Normalize returns v scaled to unit length. The zero vector is returned
// unchanged.
func (v Vec3) Normalize() Vec3 {
	if v == (Vec3{}) {
		return v
	}
	return fromR3(r3.Unit(v.r3()))
}

// Slice returns the components of v as a new slice.
func (v Vec3) Slice() []float64 {
	return []float64{v[0], v[1], v[2]}
}

// Vec3From returns the first three values of s as a vector. Returns an
// InvalidArgumentError if s has fewer than three values.
func Vec3From(s []float64) (Vec3, error) {
	if len(s) < 3 {
		return Vec3{}, tiles.InvalidArgumentf("expected 3 components, got %d", len(s))
	}
	return Vec3{s[0], s[1], s[2]}, nil
}

////////////////////////////////////////////////////////////////

// Add returns the componentwise sum of a and b.
func Add(a, b []float64) ([]float64, error) {
	if len(a) != len(b) {
		return nil, tiles.InvalidArgumentf("cannot add vectors of length %d and %d", len(a), len(b))
	}
	r := make([]float64, len(a))
	for i := range a {
		r[i] = a[i] + b[i]
	}
	return r, nil
}

// Sub returns the componentwise difference of a and b.
func Sub(a, b []float64) ([]float64, error) {
	if len(a) != len(b) {
		return nil, tiles.InvalidArgumentf("cannot subtract vectors of length %d and %d", len(a), len(b))
	}
	r := make([]float64, len(a))
	for i := range a {
		r[i] = a[i] - b[i]
	}
	return r, nil
}

// MulElem returns the componentwise product of a and b.
func MulElem(a, b []float64) ([]float64, error) {
	if len(a) != len(b) {
		return nil, tiles.InvalidArgumentf("cannot multiply vectors of length %d and %d", len(a), len(b))
	}
	r := make([]float64, len(a))
	for i := range a {
		r[i] = a[i] * b[i]
	}
	return r, nil
}

// Scale returns a scaled by f.
func Scale(a []float64, f float64) []float64 {
	r := make([]float64, len(a))
	for i := range a {
		r[i] = a[i] * f
	}
	return r
}

// Normalize returns a scaled to unit length. The zero vector is returned as
// a copy.
func Normalize(a []float64) []float64 {
	var sum float64
	for _, v := range a {
		sum += v * v
	}
	if sum == 0 {
		return Scale(a, 1)
	}
	return Scale(a, 1/math.Sqrt(sum))
}
