package vmath

import "math"

// WGS84 ellipsoid radii, in meters.
const (
	WGS84RadiusA = 6378137.0
	WGS84RadiusB = 6356752.3142451793
)

const epsilon14 = 1e-14

// GeodeticSurfaceNormal returns the unit normal of the WGS84 ellipsoid at the
// position p.
func GeodeticSurfaceNormal(p Vec3) Vec3 {
	const a2 = WGS84RadiusA * WGS84RadiusA
	const b2 = WGS84RadiusB * WGS84RadiusB
	return Vec3{p[0] / a2, p[1] / a2, p[2] / b2}.Normalize()
}

// EastNorthUpAxes returns the east, north and up directions of the local frame
// at position p on the WGS84 ellipsoid. On the polar axis, including the
// center of the earth, a fixed frame is used with east along +Y.
func EastNorthUpAxes(p Vec3) (east, north, up Vec3) {
	if math.Abs(p[0]) < epsilon14 && math.Abs(p[1]) < epsilon14 {
		s := 1.0
		if p[2] < 0 {
			s = -1
		}
		return Vec3{0, 1, 0}, Vec3{-s, 0, 0}, Vec3{0, 0, s}
	}
	up = GeodeticSurfaceNormal(p)
	east = Vec3{-p[1], p[0], 0}.Normalize()
	north = up.Cross(east)
	return east, north, up
}

// EastNorthUp returns the matrix of the local east-north-up frame at p,
// transforming local coordinates to earth-fixed coordinates.
func EastNorthUp(p Vec3) Mat4 {
	e, n, u := EastNorthUpAxes(p)
	return Mat4{
		e[0], e[1], e[2], 0,
		n[0], n[1], n[2], 0,
		u[0], u[1], u[2], 0,
		p[0], p[1], p[2], 1,
	}
}

// EastNorthUpRotation returns the rotation of the east-north-up frame at p.
func EastNorthUpRotation(p Vec3) Quat {
	e, n, u := EastNorthUpAxes(p)
	return QuatFromBasis(e, n, u)
}
