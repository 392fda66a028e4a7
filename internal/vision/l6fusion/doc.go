// Package l6fusion owns Layer 6 (Fusion) of the vision data model.
//
// Responsibilities: filtering fiducial detections, running the single and
// joint marker pose solvers, deriving poses from the marker map when a
// marker was only seen by the joint solve, and correcting every reported
// pose from the optical to the robot convention.
// Key types: Fuser, MarkerDetection, PoseCandidate, FieldLayout.
//
// Dependency rule: L6 may depend on L1 and geom. Solver implementations
// live in package pnp and depend on L6, not the other way round.
package l6fusion
