package geom

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const eps = 1e-9

func assertVec(t *testing.T, want, got r3.Vector) {
	t.Helper()
	assert.InDelta(t, want.X, got.X, 1e-9, "x")
	assert.InDelta(t, want.Y, got.Y, 1e-9, "y")
	assert.InDelta(t, want.Z, got.Z, 1e-9, "z")
}

// ----------------------------------------------------------------------------
// Rotation3d
// ----------------------------------------------------------------------------

func TestRotation_ZeroValueIsIdentity(t *testing.T) {
	t.Parallel()
	var r Rotation3d
	assertVec(t, r3.Vector{X: 1, Y: 2, Z: 3}, r.Rotate(r3.Vector{X: 1, Y: 2, Z: 3}))
	assert.InDelta(t, 0, r.Angle(), eps)
}

func TestRotation_RPYRoundTrip(t *testing.T) {
	t.Parallel()
	cases := []struct{ roll, pitch, yaw float64 }{
		{0, 0, 0},
		{0.1, -0.2, 0.3},
		{-1.2, 0.7, 2.9},
		{math.Pi / 4, math.Pi / 6, -math.Pi / 3},
	}
	for _, tc := range cases {
		r := NewRotationRPY(tc.roll, tc.pitch, tc.yaw)
		assert.InDelta(t, tc.roll, r.Roll(), 1e-9)
		assert.InDelta(t, tc.pitch, r.Pitch(), 1e-9)
		assert.InDelta(t, tc.yaw, r.Yaw(), 1e-9)
	}
}

func TestRotation_YawRotatesXTowardY(t *testing.T) {
	t.Parallel()
	r := NewRotationRPY(0, 0, math.Pi/2)
	assertVec(t, r3.Vector{Y: 1}, r.Rotate(r3.Vector{X: 1}))
}

func TestRotation_MatrixRoundTrip(t *testing.T) {
	t.Parallel()
	for _, r := range []Rotation3d{
		NewRotationRPY(0.3, -0.4, 1.1),
		NewRotationRPY(math.Pi, 0, 0),
		NewRotationRPY(0, math.Pi-1e-3, 0),
		NewRotationRPY(0, 0, -math.Pi+1e-3),
	} {
		back, err := NewRotationFromMatrix(r.Matrix())
		require.NoError(t, err)
		assert.True(t, r.ApproxEqual(back, 1e-9), "%v != %v", r, back)
	}
}

func TestRotation_FromMatrixRejectsNonRotation(t *testing.T) {
	t.Parallel()
	_, err := NewRotationFromMatrix([3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, -1}})
	assert.ErrorIs(t, err, ErrNotRotation)

	_, err = NewRotationFromMatrix([3][3]float64{{2, 0, 0}, {0, 1, 0}, {0, 0, 1}})
	assert.ErrorIs(t, err, ErrNotRotation)
}

func TestRotation_PlusMinus(t *testing.T) {
	t.Parallel()
	a := NewRotationRPY(0.2, 0.1, -0.5)
	b := NewRotationRPY(-0.3, 0.6, 0.9)

	// Plus applies a first, then b.
	v := r3.Vector{X: 0.3, Y: -1, Z: 2}
	assertVec(t, b.Rotate(a.Rotate(v)), a.Plus(b).Rotate(v))

	assert.True(t, a.Plus(b).Minus(b).ApproxEqual(a, 1e-9))
	assert.True(t, a.Minus(b).Plus(b).ApproxEqual(a, 1e-9))
	assert.True(t, a.Plus(a.Inverse()).ApproxEqual(IdentityRotation(), 1e-9))
}

func TestRotation_AxisAngleAndVector(t *testing.T) {
	t.Parallel()
	axis := r3.Vector{X: 1, Y: 2, Z: -1}.Normalize()
	r := NewRotationAxisAngle(axis, 0.8)
	assert.InDelta(t, 0.8, r.Angle(), 1e-9)
	assertVec(t, axis.Mul(0.8), r.Vector())

	back := NewRotationFromVector(r.Vector())
	assert.True(t, r.ApproxEqual(back, 1e-9))

	assert.True(t, NewRotationAxisAngle(r3.Vector{}, 1).ApproxEqual(IdentityRotation(), eps))
}

func TestRotation_ApproxEqualTreatsNegatedQuaternionAsSame(t *testing.T) {
	t.Parallel()
	r := NewRotationRPY(0.4, 0.2, 0.1)
	q := r.Quaternion()
	q.Real, q.Imag, q.Jmag, q.Kmag = -q.Real, -q.Imag, -q.Jmag, -q.Kmag
	assert.True(t, r.ApproxEqual(NewRotationFromQuaternion(q), 1e-9))
}

// ----------------------------------------------------------------------------
// Transform3d / Pose3d
// ----------------------------------------------------------------------------

func TestPose_TransformBy(t *testing.T) {
	t.Parallel()
	p := NewPose3d(r3.Vector{X: 1, Y: 2}, NewRotationRPY(0, 0, math.Pi/2))
	tr := NewTransform3d(r3.Vector{X: 1}, NewRotationRPY(0, 0, math.Pi/2))

	got := p.TransformBy(tr)
	// Moving 1 m "forward" while facing +Y lands at (1, 3).
	assertVec(t, r3.Vector{X: 1, Y: 3}, got.Translation)
	assert.InDelta(t, math.Pi, math.Abs(got.Rotation.Yaw()), 1e-9)
}

func TestTransformBetween_InvertsTransformBy(t *testing.T) {
	t.Parallel()
	a := NewPose3d(r3.Vector{X: 1, Y: -2, Z: 0.5}, NewRotationRPY(0.1, 0.2, 0.3))
	tr := NewTransform3d(r3.Vector{X: 0.4, Y: 0.1, Z: -0.3}, NewRotationRPY(-0.2, 0.5, 1.0))

	b := a.TransformBy(tr)
	back := TransformBetween(a, b)
	assert.True(t, back.ApproxEqual(tr, 1e-9, 1e-9), "got %v want %v", back, tr)

	rel := b.RelativeTo(a)
	assert.True(t, Transform3d(rel).ApproxEqual(tr, 1e-9, 1e-9))
}

func TestTransform_InverseAndPlus(t *testing.T) {
	t.Parallel()
	tr := NewTransform3d(r3.Vector{X: 3, Y: -1, Z: 2}, NewRotationRPY(0.3, -0.2, 0.7))
	id := tr.Plus(tr.Inverse())
	assert.True(t, id.ApproxEqual(Transform3d{}, 1e-9, 1e-9), "got %v", id)

	other := NewTransform3d(r3.Vector{Y: 1}, NewRotationRPY(0, 0.4, 0))
	p := Pose3d{}.TransformBy(tr).TransformBy(other)
	assert.True(t, Transform3d(p).ApproxEqual(tr.Plus(other), 1e-9, 1e-9))
}

// ----------------------------------------------------------------------------
// CoordinateSystem
// ----------------------------------------------------------------------------

func TestNewCoordinateSystem_RejectsLeftHanded(t *testing.T) {
	t.Parallel()
	_, err := NewCoordinateSystem(AxisN, AxisE, AxisU)
	assert.ErrorIs(t, err, ErrNotRotation)

	_, err = NewCoordinateSystem(AxisN, AxisN, AxisU)
	assert.Error(t, err)
}

func TestConvertTranslation_EDNToNWU(t *testing.T) {
	t.Parallel()
	// Optical forward is robot forward; optical right is robot -Y; optical
	// down is robot -Z.
	assertVec(t, r3.Vector{X: 1}, ConvertTranslation(r3.Vector{Z: 1}, EDN(), NWU()))
	assertVec(t, r3.Vector{Y: -1}, ConvertTranslation(r3.Vector{X: 1}, EDN(), NWU()))
	assertVec(t, r3.Vector{Z: -1}, ConvertTranslation(r3.Vector{Y: 1}, EDN(), NWU()))
	assertVec(t, r3.Vector{X: 2, Y: 3, Z: 4}, ConvertTranslation(r3.Vector{X: 2, Y: 3, Z: 4}, NWU(), NWU()))
}

func TestConvertTransform_RoundTrip(t *testing.T) {
	t.Parallel()
	cases := []Transform3d{
		{},
		NewTransform3d(r3.Vector{X: 0.2, Y: -0.1, Z: 3}, NewRotationRPY(0.1, 0.2, 0.3)),
		NewTransform3d(r3.Vector{X: -1, Y: 4, Z: 0.5}, NewRotationRPY(math.Pi, -0.4, 2.0)),
	}
	for _, tr := range cases {
		back := RobotToOpenCV(OpenCVToRobot(tr))
		assert.True(t, back.ApproxEqual(tr, 1e-9, 1e-9), "round trip of %v gave %v", tr, back)

		back = ConvertTransform(ConvertTransform(tr, NED(), EDN()), EDN(), NED())
		assert.True(t, back.ApproxEqual(tr, 1e-9, 1e-9))
	}
}

func TestConvertTransform_ConjugatesRotation(t *testing.T) {
	t.Parallel()
	// A rotation about the optical axis (EDN z) is a rotation about the
	// robot forward axis (NWU x), i.e. a roll.
	tr := NewTransform3d(r3.Vector{Z: 2}, NewRotationAxisAngle(r3.Vector{Z: 1}, 0.3))
	got := OpenCVToRobot(tr)
	assertVec(t, r3.Vector{X: 2}, got.Translation)
	assert.InDelta(t, 0.3, got.Rotation.Roll(), 1e-9)
	assert.InDelta(t, 0, got.Rotation.Pitch(), 1e-9)
	assert.InDelta(t, 0, got.Rotation.Yaw(), 1e-9)
}

func TestConvertPose(t *testing.T) {
	t.Parallel()
	p := NewPose3d(r3.Vector{X: 1, Y: 2, Z: 3}, NewRotationRPY(0.1, 0.2, 0.3))
	back := ConvertPose(ConvertPose(p, NWU(), EDN()), EDN(), NWU())
	assert.True(t, back.ApproxEqual(p, 1e-9, 1e-9))
}

func TestNearestRotation(t *testing.T) {
	t.Parallel()
	want := NewRotationRPY(0.2, -0.4, 1.1)
	m := want.Matrix()
	// Scale and perturb the matrix; the polar factor recovers the rotation.
	for i := range m {
		for j := range m[i] {
			m[i][j] *= 3
		}
	}
	m[0][1] += 1e-4
	got, err := NearestRotation(m)
	require.NoError(t, err)
	assert.True(t, got.ApproxEqual(want, 1e-4), "got %v want %v", got, want)

	reflect := [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, -1}}
	got, err = NearestRotation(reflect)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, Det3(got.Matrix()), 1e-12)
}

// ----------------------------------------------------------------------------
// 3x3 matrix helpers
// ----------------------------------------------------------------------------

func TestMatrix3Helpers(t *testing.T) {
	t.Parallel()
	a := [3][3]float64{{1, 2, 3}, {0, 1, 4}, {5, 6, 0}}
	b := [3][3]float64{{2, 0, 0}, {0, 3, 0}, {1, 0, 1}}

	assert.Equal(t, [3][3]float64{{5, 6, 3}, {4, 3, 4}, {10, 18, 0}}, Mul3(a, b))
	assert.Equal(t, a, Mul3(a))
	assert.Equal(t, Mul3(Mul3(a, b), a), Mul3(a, b, a))
	assert.Equal(t, [3][3]float64{{1, 0, 5}, {2, 1, 6}, {3, 4, 0}}, Transpose3(a))
	assert.Equal(t, [3][3]float64{{-1, -2, -3}, {0, -1, -4}, {-5, -6, 0}}, Scale3(-1, a))
	assert.InDelta(t, 1.0, Det3(a), 1e-12)
	assert.InDelta(t, 6.0, Det3(b), 1e-12)
	assert.InDelta(t, -1.0, Det3([3][3]float64{{0, 1, 0}, {1, 0, 0}, {0, 0, 1}}), 1e-12)
	assert.Equal(t, a, Array3(Dense3(a)))
}
