// Package l4motion owns Layer 4 (Motion) of the vision data model.
//
// Responsibilities: turning index-aligned correspondences into a relative
// camera motion (unit translation direction plus rotation) through a
// pluggable PoseSolver, and classifying why a frame produced no estimate.
// Key types: Estimator, MotionEstimate, EightPointSolver, Failure.
//
// Dependency rule: L4 may depend on L1-L3, but never on L5+.
package l4motion
