// Package l1frames owns Layer 1 (Frames) of the vision data model.
//
// Responsibilities: the frame record handed to the pipeline, greyscale
// normalisation, and the camera intrinsics every later layer reads.
// Key types: Frame, FrameType, CameraIntrinsics.
//
// Dependency rule: L1 depends on nothing above it.
package l1frames
