package geom

import (
	"fmt"

	"github.com/golang/geo/r3"
)

// CoordinateAxis is a unit direction expressed in NWU.
type CoordinateAxis r3.Vector

// The six cardinal axes.
var (
	AxisN = CoordinateAxis{X: 1}
	AxisS = CoordinateAxis{X: -1}
	AxisE = CoordinateAxis{Y: -1}
	AxisW = CoordinateAxis{Y: 1}
	AxisU = CoordinateAxis{Z: 1}
	AxisD = CoordinateAxis{Z: -1}
)

// CoordinateSystem is an axis convention, stored as the rotation whose
// columns are the convention's X, Y and Z axes expressed in NWU.
type CoordinateSystem struct {
	rotation Rotation3d
}

// NewCoordinateSystem builds a convention from its positive axes. The axes
// must be orthogonal and right-handed.
func NewCoordinateSystem(x, y, z CoordinateAxis) (CoordinateSystem, error) {
	r, err := NewRotationFromColumns(r3.Vector(x), r3.Vector(y), r3.Vector(z))
	if err != nil {
		return CoordinateSystem{}, fmt.Errorf("coordinate system axes: %w", err)
	}
	return CoordinateSystem{rotation: r}, nil
}

func mustCoordinateSystem(x, y, z CoordinateAxis) CoordinateSystem {
	cs, err := NewCoordinateSystem(x, y, z)
	if err != nil {
		panic(err)
	}
	return cs
}

var (
	nwu = mustCoordinateSystem(AxisN, AxisW, AxisU)
	edn = mustCoordinateSystem(AxisE, AxisD, AxisN)
	ned = mustCoordinateSystem(AxisN, AxisE, AxisD)
)

// NWU returns the robot convention: x north/forward, y west/left, z up.
func NWU() CoordinateSystem { return nwu }

// EDN returns the optical convention: x east/right, y down, z north/forward.
func EDN() CoordinateSystem { return edn }

// NED returns the aerospace convention: x north, y east, z down.
func NED() CoordinateSystem { return ned }

// coordRotation maps vectors expressed in from into to.
func coordRotation(from, to CoordinateSystem) Rotation3d {
	return from.rotation.Minus(to.rotation)
}

// ConvertTranslation re-expresses a translation from one convention in
// another.
func ConvertTranslation(t r3.Vector, from, to CoordinateSystem) r3.Vector {
	return coordRotation(from, to).Rotate(t)
}

// ConvertRotation re-expresses an orientation from one convention in
// another.
func ConvertRotation(r Rotation3d, from, to CoordinateSystem) Rotation3d {
	return r.Plus(coordRotation(from, to))
}

// ConvertPose re-expresses a pose from one convention in another.
func ConvertPose(p Pose3d, from, to CoordinateSystem) Pose3d {
	return Pose3d{
		Translation: ConvertTranslation(p.Translation, from, to),
		Rotation:    ConvertRotation(p.Rotation, from, to),
	}
}

// ConvertTransform re-expresses a transform from one convention in another.
// Both the start and end frames change convention, so the rotation is
// conjugated by the change of basis.
func ConvertTransform(t Transform3d, from, to CoordinateSystem) Transform3d {
	c := coordRotation(from, to)
	return Transform3d{
		Translation: c.Rotate(t.Translation),
		Rotation:    c.Inverse().Plus(t.Rotation.Plus(c)),
	}
}

// OpenCVToRobot converts a camera-to-target transform from the optical
// (EDN) convention used by solvers into the robot (NWU) convention used
// for reporting.
func OpenCVToRobot(t Transform3d) Transform3d {
	return ConvertTransform(t, edn, nwu)
}

// RobotToOpenCV is the inverse of OpenCVToRobot.
func RobotToOpenCV(t Transform3d) Transform3d {
	return ConvertTransform(t, nwu, edn)
}
