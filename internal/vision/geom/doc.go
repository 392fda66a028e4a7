// Package geom holds the rigid-body primitives shared by every vision layer:
// rotations, transforms, poses and axis conventions.
//
// Rotations are unit quaternions (gonum num/quat); translations are
// r3.Vector values. Composition follows the robot-library convention:
// a.Plus(b) applies a first and then b, and Pose3d.TransformBy applies a
// transform expressed in the pose's own frame.
//
// Two axis conventions appear throughout the pipeline. NWU (x forward,
// y left, z up) is the robot and field convention; EDN (x right, y down,
// z forward) is the optical convention used by calibration and solvers.
// Convert between them with ConvertTransform or OpenCVToRobot.
//
// Dependency rule: geom depends on nothing else in this module.
package geom
