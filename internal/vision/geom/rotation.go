package geom

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// ErrNotRotation is returned when a matrix is not a proper rotation.
var ErrNotRotation = errors.New("matrix is not a rotation")

// Rotation3d is a rotation in 3D space stored as a unit quaternion.
// The zero value is the identity.
type Rotation3d struct {
	q quat.Number
}

// IdentityRotation returns the rotation that leaves every vector unchanged.
func IdentityRotation() Rotation3d {
	return Rotation3d{q: quat.Number{Real: 1}}
}

// NewRotationFromQuaternion normalises q and wraps it. A zero quaternion
// yields the identity.
func NewRotationFromQuaternion(q quat.Number) Rotation3d {
	n := quat.Abs(q)
	if n == 0 {
		return IdentityRotation()
	}
	return Rotation3d{q: quat.Scale(1/n, q)}
}

// NewRotationRPY builds a rotation from extrinsic roll (about X), pitch
// (about Y) and yaw (about Z), in radians, applied in that order.
func NewRotationRPY(roll, pitch, yaw float64) Rotation3d {
	cr, sr := math.Cos(roll*0.5), math.Sin(roll*0.5)
	cp, sp := math.Cos(pitch*0.5), math.Sin(pitch*0.5)
	cy, sy := math.Cos(yaw*0.5), math.Sin(yaw*0.5)

	return Rotation3d{q: quat.Number{
		Real: cr*cp*cy + sr*sp*sy,
		Imag: sr*cp*cy - cr*sp*sy,
		Jmag: cr*sp*cy + sr*cp*sy,
		Kmag: cr*cp*sy - sr*sp*cy,
	}}
}

// NewRotationAxisAngle returns a rotation of angle radians about axis.
// A zero axis yields the identity.
func NewRotationAxisAngle(axis r3.Vector, angle float64) Rotation3d {
	n := axis.Norm()
	if n == 0 {
		return IdentityRotation()
	}
	axis = axis.Mul(1 / n)
	s := math.Sin(angle * 0.5)
	return Rotation3d{q: quat.Number{
		Real: math.Cos(angle * 0.5),
		Imag: axis.X * s,
		Jmag: axis.Y * s,
		Kmag: axis.Z * s,
	}}
}

// NewRotationFromVector interprets v as a rotation vector (axis scaled by
// angle in radians).
func NewRotationFromVector(v r3.Vector) Rotation3d {
	return NewRotationAxisAngle(v, v.Norm())
}

// NewRotationFromMatrix converts a row-major 3x3 rotation matrix. The matrix
// must be orthonormal with determinant +1 within a small tolerance.
func NewRotationFromMatrix(m [3][3]float64) (Rotation3d, error) {
	const tol = 1e-6
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			var dot float64
			for k := 0; k < 3; k++ {
				dot += m[k][i] * m[k][j]
			}
			want := 0.0
			if i == j {
				want = 1
			}
			if math.Abs(dot-want) > tol {
				return Rotation3d{}, fmt.Errorf("%w: columns %d,%d dot %.6f", ErrNotRotation, i, j, dot)
			}
		}
	}
	if det := Det3(m); math.Abs(det-1) > tol {
		return Rotation3d{}, fmt.Errorf("%w: determinant %.6f", ErrNotRotation, det)
	}

	var w, x, y, z float64
	trace := m[0][0] + m[1][1] + m[2][2]
	switch {
	case trace > 0:
		s := 0.5 / math.Sqrt(trace+1)
		w = 0.25 / s
		x = (m[2][1] - m[1][2]) * s
		y = (m[0][2] - m[2][0]) * s
		z = (m[1][0] - m[0][1]) * s
	case m[0][0] > m[1][1] && m[0][0] > m[2][2]:
		s := 2 * math.Sqrt(1+m[0][0]-m[1][1]-m[2][2])
		w = (m[2][1] - m[1][2]) / s
		x = 0.25 * s
		y = (m[0][1] + m[1][0]) / s
		z = (m[0][2] + m[2][0]) / s
	case m[1][1] > m[2][2]:
		s := 2 * math.Sqrt(1+m[1][1]-m[0][0]-m[2][2])
		w = (m[0][2] - m[2][0]) / s
		x = (m[0][1] + m[1][0]) / s
		y = 0.25 * s
		z = (m[1][2] + m[2][1]) / s
	default:
		s := 2 * math.Sqrt(1+m[2][2]-m[0][0]-m[1][1])
		w = (m[1][0] - m[0][1]) / s
		x = (m[0][2] + m[2][0]) / s
		y = (m[1][2] + m[2][1]) / s
		z = 0.25 * s
	}
	return NewRotationFromQuaternion(quat.Number{Real: w, Imag: x, Jmag: y, Kmag: z}), nil
}

// NewRotationFromColumns builds the rotation whose columns are the given
// axes, i.e. the rotation taking the standard basis onto (x, y, z).
func NewRotationFromColumns(x, y, z r3.Vector) (Rotation3d, error) {
	return NewRotationFromMatrix([3][3]float64{
		{x.X, y.X, z.X},
		{x.Y, y.Y, z.Y},
		{x.Z, y.Z, z.Z},
	})
}

// Quaternion returns the unit quaternion (w = Real).
func (r Rotation3d) Quaternion() quat.Number {
	if r.q == (quat.Number{}) {
		return quat.Number{Real: 1}
	}
	return r.q
}

// Matrix returns the row-major rotation matrix.
func (r Rotation3d) Matrix() [3][3]float64 {
	q := r.Quaternion()
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag
	return [3][3]float64{
		{1 - 2*(y*y+z*z), 2 * (x*y - w*z), 2 * (x*z + w*y)},
		{2 * (x*y + w*z), 1 - 2*(x*x+z*z), 2 * (y*z - w*x)},
		{2 * (x*z - w*y), 2 * (y*z + w*x), 1 - 2*(x*x+y*y)},
	}
}

// Roll returns the extrinsic rotation about X in radians.
func (r Rotation3d) Roll() float64 {
	q := r.Quaternion()
	return math.Atan2(2*(q.Real*q.Imag+q.Jmag*q.Kmag), 1-2*(q.Imag*q.Imag+q.Jmag*q.Jmag))
}

// Pitch returns the extrinsic rotation about Y in radians.
func (r Rotation3d) Pitch() float64 {
	q := r.Quaternion()
	ratio := 2 * (q.Real*q.Jmag - q.Kmag*q.Imag)
	if math.Abs(ratio) >= 1 {
		return math.Copysign(math.Pi/2, ratio)
	}
	return math.Asin(ratio)
}

// Yaw returns the extrinsic rotation about Z in radians.
func (r Rotation3d) Yaw() float64 {
	q := r.Quaternion()
	return math.Atan2(2*(q.Real*q.Kmag+q.Imag*q.Jmag), 1-2*(q.Jmag*q.Jmag+q.Kmag*q.Kmag))
}

// Angle returns the magnitude of the rotation in radians, in [0, π].
func (r Rotation3d) Angle() float64 {
	q := r.Quaternion()
	v := math.Sqrt(q.Imag*q.Imag + q.Jmag*q.Jmag + q.Kmag*q.Kmag)
	return 2 * math.Atan2(v, math.Abs(q.Real))
}

// Vector returns the rotation vector (axis scaled by angle).
func (r Rotation3d) Vector() r3.Vector {
	q := r.Quaternion()
	if q.Real < 0 {
		q = quat.Scale(-1, q)
	}
	v := r3.Vector{X: q.Imag, Y: q.Jmag, Z: q.Kmag}
	n := v.Norm()
	if n < 1e-12 {
		return v.Mul(2)
	}
	return v.Mul(2 * math.Atan2(n, q.Real) / n)
}

// Inverse returns the opposite rotation.
func (r Rotation3d) Inverse() Rotation3d {
	return Rotation3d{q: quat.Conj(r.Quaternion())}
}

// Plus returns the rotation that applies r and then other.
func (r Rotation3d) Plus(other Rotation3d) Rotation3d {
	return NewRotationFromQuaternion(quat.Mul(other.Quaternion(), r.Quaternion()))
}

// Minus returns the rotation that takes other to r, so that
// r.Minus(other).Plus(other) == r.
func (r Rotation3d) Minus(other Rotation3d) Rotation3d {
	return r.Plus(other.Inverse())
}

// Rotate applies the rotation to v.
func (r Rotation3d) Rotate(v r3.Vector) r3.Vector {
	m := r.Matrix()
	return r3.Vector{
		X: m[0][0]*v.X + m[0][1]*v.Y + m[0][2]*v.Z,
		Y: m[1][0]*v.X + m[1][1]*v.Y + m[1][2]*v.Z,
		Z: m[2][0]*v.X + m[2][1]*v.Y + m[2][2]*v.Z,
	}
}

// ApproxEqual reports whether r and o describe the same rotation within tol
// radians. q and -q are the same rotation.
func (r Rotation3d) ApproxEqual(o Rotation3d, tol float64) bool {
	return r.Minus(o).Angle() <= tol
}

// String implements fmt.Stringer.
func (r Rotation3d) String() string {
	return fmt.Sprintf("Rotation3d(roll=%.4f, pitch=%.4f, yaw=%.4f)", r.Roll(), r.Pitch(), r.Yaw())
}
