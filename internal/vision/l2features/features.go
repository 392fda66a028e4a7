package l2features

import (
	"image"

	"github.com/golang/geo/r2"
)

// FeatureDetector finds trackable corner points in a greyscale image.
// Points are pixel coordinates relative to the image's bounds origin.
type FeatureDetector interface {
	Detect(img *image.Gray) []r2.Point
}

// PointTracker follows points from prev into curr. The returned slices are
// index-aligned with pts; valid[i] is false when point i could not be
// tracked.
type PointTracker interface {
	Track(prev, curr *image.Gray, pts []r2.Point) (tracked []r2.Point, valid []bool)
}
