// Package pnp solves marker poses from corner detections.
//
// PlanarSolver implements l6fusion.SingleMarkerSolver: a homography seed
// refined against pixel reprojection error, plus the mirrored-tilt
// alternative. MultiTagSolver implements l6fusion.MultiMarkerSolver over a
// marker map, solving the camera pose in the field from every mapped
// marker at once.
package pnp
