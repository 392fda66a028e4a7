// Package l2features owns Layer 2 (Features) of the vision data model.
//
// Responsibilities: the contracts for corner detection and frame-to-frame
// point tracking, plus default implementations of both: a FAST-9 segment
// test detector and a pyramidal Lucas-Kanade tracker.
// Key types: FeatureDetector, PointTracker, FASTDetector, PyramidalLK.
//
// Dependency rule: L2 may depend on L1, but never on L3+.
package l2features
