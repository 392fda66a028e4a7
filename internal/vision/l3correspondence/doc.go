// Package l3correspondence owns Layer 3 (Correspondences) of the vision
// data model.
//
// Responsibilities: deciding, frame by frame, whether to re-detect or track
// features; filtering tracked points in lockstep; and scoring how much the
// image actually moved (motion confidence) before any geometry is solved.
// Key types: Tracker, State, Outcome, Correspondences.
//
// Dependency rule: L3 may depend on L1 and L2, but never on L4+.
package l3correspondence
