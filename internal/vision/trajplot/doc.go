// Package trajplot renders odometry runs as PNG plots: the top-down camera
// trail, per-frame motion confidence and per-marker range.
package trajplot
