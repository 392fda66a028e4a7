// Package l5odometry owns Layer 5 (Odometry) of the vision data model.
//
// Responsibilities: the per-camera odometry session lifecycle
// (uninitialized, tracking, degraded), driving the L3 tracker and L4
// estimator once per frame, and integrating relative motions into an
// up-to-scale trajectory.
// Key types: Session, SessionState, Report.
//
// Dependency rule: L5 may depend on L1-L4, but never on L6 or the pipeline.
package l5odometry
