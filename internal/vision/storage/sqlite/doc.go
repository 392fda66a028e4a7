// Package sqlite persists pipeline results in SQLite.
//
// A PoseStore records one odometry session per instance: a row per frame
// in vo_frames and a row per fused target in vo_targets. The schema ships
// embedded in the binary and is applied with MigrateUp.
package sqlite
