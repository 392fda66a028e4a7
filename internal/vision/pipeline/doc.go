// Package pipeline runs the per-frame vision pipeline.
//
// For each greyscale frame it detects and fuses fiducial markers (L6),
// estimates camera motion (L5), measures processing time and frame rate,
// and hands the Result to every registered ResultSink. Frames the pipeline
// cannot process produce an empty Result carrying a Diagnostic.
//
// Dependency rule: the pipeline may depend on every layer; no layer
// depends on it.
package pipeline
