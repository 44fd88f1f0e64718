package vmath

import (
	"math"
	"testing"

	"github.com/psc3k/tiles"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const delta = 1e-12

func assertVec3(t *testing.T, want, got Vec3, d float64) {
	t.Helper()
	for i := range want {
		assert.InDelta(t, want[i], got[i], d, "component %d of %v", i, got)
	}
}

func assertMat4(t *testing.T, want, got Mat4, d float64) {
	t.Helper()
	for i := range want {
		assert.InDelta(t, want[i], got[i], d, "element %d", i)
	}
}

func TestSliceArithmetic(t *testing.T) {
	r, err := Add([]float64{1, 2, 3}, []float64{4, 5, 6})
	require.NoError(t, err)
	assert.Equal(t, []float64{5, 7, 9}, r)

	r, err = Sub([]float64{1, 2}, []float64{4, 5})
	require.NoError(t, err)
	assert.Equal(t, []float64{-3, -3}, r)

	assert.Equal(t, []float64{2, 4}, Scale([]float64{1, 2}, 2))

	var target *tiles.InvalidArgumentError
	_, err = Add([]float64{1, 2, 3}, []float64{1})
	assert.ErrorAs(t, err, &target)
	_, err = Sub([]float64{1}, nil)
	assert.ErrorAs(t, err, &target)
	_, err = MulElem([]float64{1}, []float64{1, 2})
	assert.ErrorAs(t, err, &target)

	_, err = Vec3From([]float64{1, 2})
	assert.ErrorAs(t, err, &target)
}

func TestMulAll(t *testing.T) {
	assert.Equal(t, Identity, MulAll())
	assert.Equal(t, YUpToZUp, MulAll(YUpToZUp))
	assert.Equal(t, Identity, MulAll(ZUpToYUp, YUpToZUp))

	m := MulAll(Translation(Vec3{1, 2, 3}), Translation(Vec3{4, 5, 6}))
	assert.Equal(t, Vec3{5, 7, 9}, m.MulPoint(Vec3{}))
}

func TestAxisMatrices(t *testing.T) {
	assert.Equal(t, Vec3{0, 0, 1}, YUpToZUp.MulPoint(Vec3{0, 1, 0}))
	assert.Equal(t, Vec3{0, 1, 0}, ZUpToYUp.MulPoint(Vec3{0, 0, 1}))
	assert.Equal(t, Vec3{0, 1, 0}, XUpToYUp.MulPoint(Vec3{1, 0, 0}))
}

func TestCompose(t *testing.T) {
	s := math.Sqrt2 / 2
	m := Compose(Vec3{1, 2, 3}, Quat{0, 0, s, s}, Vec3{2, 2, 2})
	assertVec3(t, Vec3{0, 2, 0}, m.Column(0), delta)
	assertVec3(t, Vec3{-2, 0, 0}, m.Column(1), delta)
	assertVec3(t, Vec3{0, 0, 2}, m.Column(2), delta)
	assert.Equal(t, Vec3{1, 2, 3}, m.Column(3))
	assertVec3(t, Vec3{0, 1, 0}, Quat{0, 0, s, s}.Rotate(Vec3{1, 0, 0}), delta)
}

func TestTRSRoundTrip(t *testing.T) {
	tests := []struct {
		t Vec3
		r Quat
		s Vec3
	}{
		{Vec3{0, 0, 0}, IdentityQuat, Vec3{1, 1, 1}},
		{Vec3{1, -2, 3}, Quat{0, 0, math.Sqrt2 / 2, math.Sqrt2 / 2}, Vec3{2, 3, 4}},
		{Vec3{1e6, 2e6, -3e6}, Quat{0.5, 0.5, 0.5, 0.5}, Vec3{0.5, 0.5, 0.5}},
		{Vec3{-7, 0.25, 9}, Quat{1, 0, 0, 0}, Vec3{1, 10, 0.1}},
		{Vec3{3, 3, 3}, Quat{0.1, -0.7, 0.3, 0.2}.Normalize(), Vec3{1.5, 2.5, 3.5}},
	}
	for i, tt := range tests {
		gt, gr, gs := Decompose(Compose(tt.t, tt.r, tt.s))
		assert.Equal(t, tt.t, gt, "#%d translation", i)
		assertVec3(t, tt.s, gs, 1e-12)
		if gr.Mul(Quat{-tt.r[0], -tt.r[1], -tt.r[2], tt.r[3]})[3] < 0 {
			gr = Quat{-gr[0], -gr[1], -gr[2], -gr[3]}
		}
		for j := range gr {
			assert.InDelta(t, tt.r[j], gr[j], 1e-9, "#%d rotation component %d", i, j)
		}
	}
}

func TestInvert(t *testing.T) {
	m := Compose(Vec3{10, -4, 2}, Quat{0.1, -0.7, 0.3, 0.2}.Normalize(), Vec3{2, 3, 0.5})
	inv, ok := m.Invert()
	require.True(t, ok)
	assertMat4(t, Identity, m.Mul(inv), 1e-12)
	assertMat4(t, Identity, inv.Mul(m), 1e-12)

	inv, ok = YUpToZUp.Invert()
	require.True(t, ok)
	assertMat4(t, ZUpToYUp, inv, 0)

	_, ok = Mat4{}.Invert()
	assert.False(t, ok)
}

func TestEastNorthUp(t *testing.T) {
	e, n, u := EastNorthUpAxes(Vec3{WGS84RadiusA, 0, 0})
	assertVec3(t, Vec3{0, 1, 0}, e, delta)
	assertVec3(t, Vec3{0, 0, 1}, n, delta)
	assertVec3(t, Vec3{1, 0, 0}, u, delta)

	m := EastNorthUp(Vec3{WGS84RadiusA, 0, 0})
	assert.Equal(t, Vec3{WGS84RadiusA, 0, 0}, m.Column(3))

	e, n, u = EastNorthUpAxes(Vec3{0, 0, -WGS84RadiusB})
	assert.Equal(t, Vec3{0, 1, 0}, e)
	assert.Equal(t, Vec3{1, 0, 0}, n)
	assert.Equal(t, Vec3{0, 0, -1}, u)

	e, n, u = EastNorthUpAxes(Vec3{})
	assert.Equal(t, e.Cross(n), u)

	p := Vec3{1215107.76, -4736682.90, 4081926.10}
	q := EastNorthUpRotation(p)
	e, n, u = EastNorthUpAxes(p)
	assertVec3(t, e, q.Rotate(Vec3{1, 0, 0}), 1e-9)
	assertVec3(t, n, q.Rotate(Vec3{0, 1, 0}), 1e-9)
	assertVec3(t, u, q.Rotate(Vec3{0, 0, 1}), 1e-9)
}
