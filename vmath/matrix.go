package vmath

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
)

// Quat is a rotation quaternion, ordered x, y, z, w as in glTF.
type Quat [4]float64

// IdentityQuat is the quaternion of no rotation.
var IdentityQuat = Quat{0, 0, 0, 1}

func (q Quat) number() quat.Number {
	return quat.Number{Real: q[3], Imag: q[0], Jmag: q[1], Kmag: q[2]}
}

func fromNumber(n quat.Number) Quat {
	return Quat{n.Imag, n.Jmag, n.Kmag, n.Real}
}

// Normalize returns q scaled to unit length.
func (q Quat) Normalize() Quat {
	n := q.number()
	l := quat.Abs(n)
	if l == 0 {
		return IdentityQuat
	}
	return fromNumber(quat.Scale(1/l, n))
}

// Mul returns the Hamilton product q·r, the rotation r followed by q.
func (q Quat) Mul(r Quat) Quat {
	return fromNumber(quat.Mul(q.number(), r.number()))
}

// Rotate returns v rotated by the unit quaternion q.
func (q Quat) Rotate(v Vec3) Vec3 {
	n := q.number()
	p := quat.Mul(quat.Mul(n, quat.Number{Imag: v[0], Jmag: v[1], Kmag: v[2]}), quat.Conj(n))
	return Vec3{p.Imag, p.Jmag, p.Kmag}
}

////////////////////////////////////////////////////////////////

// Mat4 is a 4x4 matrix in column-major order.
type Mat4 [16]float64

// Identity is the 4x4 identity matrix.
var Identity = Mat4{
	1, 0, 0, 0,
	0, 1, 0, 0,
	0, 0, 1, 0,
	0, 0, 0, 1,
}

var (
	// YUpToZUp rotates the Y axis onto the Z axis.
	YUpToZUp = Mat4{
		1, 0, 0, 0,
		0, 0, 1, 0,
		0, -1, 0, 0,
		0, 0, 0, 1,
	}
	// ZUpToYUp rotates the Z axis onto the Y axis.
	ZUpToYUp = Mat4{
		1, 0, 0, 0,
		0, 0, -1, 0,
		0, 1, 0, 0,
		0, 0, 0, 1,
	}
	// XUpToYUp rotates the X axis onto the Y axis.
	XUpToYUp = Mat4{
		0, 1, 0, 0,
		-1, 0, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
)

// At returns the element at row r and column c.
func (m Mat4) At(r, c int) float64 {
	return m[c*4+r]
}

// Column returns the first three components of column c.
func (m Mat4) Column(c int) Vec3 {
	return Vec3{m[c*4], m[c*4+1], m[c*4+2]}
}

// Mul returns the product m·n.
func (m Mat4) Mul(n Mat4) Mat4 {
	var r Mat4
	for c := 0; c < 4; c++ {
		for row := 0; row < 4; row++ {
			var sum float64
			for k := 0; k < 4; k++ {
				sum += m[k*4+row] * n[c*4+k]
			}
			r[c*4+row] = sum
		}
	}
	return r
}

// MulAll returns the chained product of the matrices, starting from the
// identity. An empty list yields the identity.
func MulAll(ms ...Mat4) Mat4 {
	r := Identity
	for _, m := range ms {
		r = r.Mul(m)
	}
	return r
}

// MulPoint transforms the point p by m.
func (m Mat4) MulPoint(p Vec3) Vec3 {
	return Vec3{
		m[0]*p[0] + m[4]*p[1] + m[8]*p[2] + m[12],
		m[1]*p[0] + m[5]*p[1] + m[9]*p[2] + m[13],
		m[2]*p[0] + m[6]*p[1] + m[10]*p[2] + m[14],
	}
}

// Translation returns a matrix translating by t.
func Translation(t Vec3) Mat4 {
	m := Identity
	m[12], m[13], m[14] = t[0], t[1], t[2]
	return m
}

// Invert returns the inverse of m. ok is false if m is singular.
func (m Mat4) Invert() (r Mat4, ok bool) {
	a00, a01, a02, a03 := m[0], m[1], m[2], m[3]
	a10, a11, a12, a13 := m[4], m[5], m[6], m[7]
	a20, a21, a22, a23 := m[8], m[9], m[10], m[11]
	a30, a31, a32, a33 := m[12], m[13], m[14], m[15]

	b00 := a00*a11 - a01*a10
	b01 := a00*a12 - a02*a10
	b02 := a00*a13 - a03*a10
	b03 := a01*a12 - a02*a11
	b04 := a01*a13 - a03*a11
	b05 := a02*a13 - a03*a12
	b06 := a20*a31 - a21*a30
	b07 := a20*a32 - a22*a30
	b08 := a20*a33 - a23*a30
	b09 := a21*a32 - a22*a31
	b10 := a21*a33 - a23*a31
	b11 := a22*a33 - a23*a32

	det := b00*b11 - b01*b10 + b02*b09 + b03*b08 - b04*b07 + b05*b06
	if det == 0 || math.IsNaN(det) {
		return r, false
	}
	det = 1 / det

	r[0] = (a11*b11 - a12*b10 + a13*b09) * det
	r[1] = (a02*b10 - a01*b11 - a03*b09) * det
	r[2] = (a31*b05 - a32*b04 + a33*b03) * det
	r[3] = (a22*b04 - a21*b05 - a23*b03) * det
	r[4] = (a12*b08 - a10*b11 - a13*b07) * det
	r[5] = (a00*b11 - a02*b08 + a03*b07) * det
	r[6] = (a32*b02 - a30*b05 - a33*b01) * det
	r[7] = (a20*b05 - a22*b02 + a23*b01) * det
	r[8] = (a10*b10 - a11*b08 + a13*b06) * det
	r[9] = (a01*b08 - a00*b10 - a03*b06) * det
	r[10] = (a30*b04 - a31*b02 + a33*b00) * det
	r[11] = (a21*b02 - a20*b04 - a23*b00) * det
	r[12] = (a11*b07 - a10*b09 - a12*b06) * det
	r[13] = (a00*b09 - a01*b07 + a02*b06) * det
	r[14] = (a31*b01 - a30*b03 - a32*b00) * det
	r[15] = (a20*b03 - a21*b01 + a22*b00) * det
	return r, true
}

// IsIdentity returns whether m is exactly the identity.
func (m Mat4) IsIdentity() bool {
	return m == Identity
}

////////////////////////////////////////////////////////////////

// rotation returns the 3x3 rotation matrix of a unit quaternion, row-major.
func (q Quat) rotation() [9]float64 {
	x, y, z, w := q[0], q[1], q[2], q[3]
	return [9]float64{
		1 - 2*(y*y+z*z), 2 * (x*y - z*w), 2 * (x*z + y*w),
		2 * (x*y + z*w), 1 - 2*(x*x+z*z), 2 * (y*z - x*w),
		2 * (x*z - y*w), 2 * (y*z + x*w), 1 - 2*(x*x+y*y),
	}
}

// QuatFromRotation returns the unit quaternion of a row-major 3x3 rotation
// matrix.
func QuatFromRotation(r [9]float64) Quat {
	r00, r01, r02 := r[0], r[1], r[2]
	r10, r11, r12 := r[3], r[4], r[5]
	r20, r21, r22 := r[6], r[7], r[8]

	var q Quat
	switch trace := r00 + r11 + r22; {
	case trace > 0:
		s := 0.5 / math.Sqrt(trace+1)
		q = Quat{(r21 - r12) * s, (r02 - r20) * s, (r10 - r01) * s, 0.25 / s}
	case r00 > r11 && r00 > r22:
		s := 2 * math.Sqrt(1+r00-r11-r22)
		q = Quat{0.25 * s, (r01 + r10) / s, (r02 + r20) / s, (r21 - r12) / s}
	case r11 > r22:
		s := 2 * math.Sqrt(1+r11-r00-r22)
		q = Quat{(r01 + r10) / s, 0.25 * s, (r12 + r21) / s, (r02 - r20) / s}
	default:
		s := 2 * math.Sqrt(1+r22-r00-r11)
		q = Quat{(r02 + r20) / s, (r12 + r21) / s, 0.25 * s, (r10 - r01) / s}
	}
	return q.Normalize()
}

// QuatFromBasis returns the rotation that maps the X, Y and Z axes onto the
// orthonormal vectors x, y and z.
func QuatFromBasis(x, y, z Vec3) Quat {
	return QuatFromRotation([9]float64{
		x[0], y[0], z[0],
		x[1], y[1], z[1],
		x[2], y[2], z[2],
	})
}

// Compose returns the matrix T·R·S of a translation, a unit rotation
// quaternion and a scale.
func Compose(t Vec3, r Quat, s Vec3) Mat4 {
	rot := r.rotation()
	return Mat4{
		rot[0] * s[0], rot[3] * s[0], rot[6] * s[0], 0,
		rot[1] * s[1], rot[4] * s[1], rot[7] * s[1], 0,
		rot[2] * s[2], rot[5] * s[2], rot[8] * s[2], 0,
		t[0], t[1], t[2], 1,
	}
}

// Decompose splits an affine matrix into translation, rotation and scale such
// that Compose(t, r, s) reproduces m. A matrix with a negative determinant
// yields a negative X scale. The sign of r is not preserved.
func Decompose(m Mat4) (t Vec3, r Quat, s Vec3) {
	t = Vec3{m[12], m[13], m[14]}
	cx, cy, cz := m.Column(0), m.Column(1), m.Column(2)
	s = Vec3{cx.Len(), cy.Len(), cz.Len()}
	if cx.Cross(cy).Dot(cz) < 0 {
		s[0] = -s[0]
	}
	if s[0] == 0 || s[1] == 0 || s[2] == 0 {
		return t, IdentityQuat, s
	}
	x, y, z := cx.Scale(1/s[0]), cy.Scale(1/s[1]), cz.Scale(1/s[2])
	r = QuatFromBasis(x, y, z)
	return t, r, s
}
