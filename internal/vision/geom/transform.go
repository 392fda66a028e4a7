package geom

import (
	"fmt"

	"github.com/golang/geo/r3"
)

// Transform3d is a rigid transformation: a translation followed by a
// rotation, both expressed in the starting frame.
type Transform3d struct {
	Translation r3.Vector
	Rotation    Rotation3d
}

// Pose3d is a position and orientation in some parent frame.
type Pose3d struct {
	Translation r3.Vector
	Rotation    Rotation3d
}

// NewTransform3d builds a transform from its parts.
func NewTransform3d(t r3.Vector, r Rotation3d) Transform3d {
	return Transform3d{Translation: t, Rotation: r}
}

// NewPose3d builds a pose from its parts.
func NewPose3d(t r3.Vector, r Rotation3d) Pose3d {
	return Pose3d{Translation: t, Rotation: r}
}

// TransformBetween returns the transform that maps initial onto last, both
// poses being expressed in the same parent frame.
func TransformBetween(initial, last Pose3d) Transform3d {
	return Transform3d{
		Translation: initial.Rotation.Inverse().Rotate(last.Translation.Sub(initial.Translation)),
		Rotation:    last.Rotation.Minus(initial.Rotation),
	}
}

// Inverse returns the transform that undoes t.
func (t Transform3d) Inverse() Transform3d {
	inv := t.Rotation.Inverse()
	return Transform3d{
		Translation: inv.Rotate(t.Translation.Mul(-1)),
		Rotation:    inv,
	}
}

// Plus composes t with other, other being expressed in the frame t leads to.
func (t Transform3d) Plus(other Transform3d) Transform3d {
	p := Pose3d{}.TransformBy(t).TransformBy(other)
	return Transform3d(p)
}

// ApproxEqual compares translation within tolTrans and rotation within
// tolRot radians.
func (t Transform3d) ApproxEqual(o Transform3d, tolTrans, tolRot float64) bool {
	return t.Translation.Sub(o.Translation).Norm() <= tolTrans && t.Rotation.ApproxEqual(o.Rotation, tolRot)
}

// String implements fmt.Stringer.
func (t Transform3d) String() string {
	return fmt.Sprintf("Transform3d(x=%.4f, y=%.4f, z=%.4f, %v)",
		t.Translation.X, t.Translation.Y, t.Translation.Z, t.Rotation)
}

// TransformBy applies t, expressed in the pose's own frame, to the pose.
func (p Pose3d) TransformBy(t Transform3d) Pose3d {
	return Pose3d{
		Translation: p.Translation.Add(p.Rotation.Rotate(t.Translation)),
		Rotation:    t.Rotation.Plus(p.Rotation),
	}
}

// RelativeTo expresses p in the frame of other.
func (p Pose3d) RelativeTo(other Pose3d) Pose3d {
	return Pose3d(TransformBetween(other, p))
}

// ApproxEqual compares translation within tolTrans and rotation within
// tolRot radians.
func (p Pose3d) ApproxEqual(o Pose3d, tolTrans, tolRot float64) bool {
	return Transform3d(p).ApproxEqual(Transform3d(o), tolTrans, tolRot)
}
