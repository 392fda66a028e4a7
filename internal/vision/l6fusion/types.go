package l6fusion

import (
	"github.com/golang/geo/r2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/banshee-data/pose.report/internal/vision/geom"
	"github.com/banshee-data/pose.report/internal/vision/l1frames"
)

// MarkerDetection is one fiducial found in a frame. Corners are in pixels,
// counter-clockwise from the bottom-left as seen in the image.
type MarkerDetection struct {
	ID             int
	DecisionMargin float64
	Hamming        int
	Corners        [4]r2.Point
}

func (d MarkerDetection) polygon() orb.Polygon {
	ring := make(orb.Ring, 0, 5)
	for _, c := range d.Corners {
		ring = append(ring, orb.Point{c.X, c.Y})
	}
	ring = append(ring, ring[0])
	return orb.Polygon{ring}
}

// Center returns the centroid of the corner quadrilateral.
func (d MarkerDetection) Center() r2.Point {
	c, area := planar.CentroidArea(d.polygon())
	if area == 0 {
		var sum r2.Point
		for _, p := range d.Corners {
			sum = sum.Add(p)
		}
		return sum.Mul(0.25)
	}
	return r2.Point{X: c[0], Y: c[1]}
}

// Area returns the area of the corner quadrilateral in px².
func (d MarkerDetection) Area() float64 {
	_, area := planar.CentroidArea(d.polygon())
	return area
}

// PoseEstimate is a pair of candidate camera-to-marker transforms with
// their RMS reprojection errors in pixels. Best has the lower error.
type PoseEstimate struct {
	Best      geom.Transform3d
	Alt       geom.Transform3d
	BestError float64
	AltError  float64
}

// Ambiguity is BestError/AltError, or 0 when the alternate has no error.
// Values near 1 mean the two solutions explain the corners equally well.
func (p PoseEstimate) Ambiguity() float64 {
	if p.AltError == 0 {
		return 0
	}
	return p.BestError / p.AltError
}

// Source says where a pose candidate came from.
type Source string

const (
	SourceIndependent Source = "independent" // single-marker solve
	SourceJoint       Source = "joint"       // multi-marker field-to-camera solve
	SourceMapDerived  Source = "map_derived" // joint camera pose composed with the marker map
)

// PoseCandidate is a tagged pose estimate.
type PoseCandidate struct {
	Source Source
	PoseEstimate
}

// MultiMarkerResult is a joint solve over several markers with known map
// poses. FieldToCamera.Best is the camera pose in the field (NWU).
type MultiMarkerResult struct {
	FieldToCamera PoseEstimate
	UsedIDs       []int
}

// Uses reports whether marker id contributed to the joint solve.
func (r *MultiMarkerResult) Uses(id int) bool {
	if r == nil {
		return false
	}
	for _, u := range r.UsedIDs {
		if u == id {
			return true
		}
	}
	return false
}

// Candidate returns the joint solve as a tagged candidate.
func (r *MultiMarkerResult) Candidate() PoseCandidate {
	return PoseCandidate{Source: SourceJoint, PoseEstimate: r.FieldToCamera}
}

// FusedTarget pairs a surviving detection with its chosen pose. Candidate
// is nil only when pose solving is disabled. Candidate poses are camera to
// marker in the robot (NWU) convention.
type FusedTarget struct {
	Detection MarkerDetection
	Candidate *PoseCandidate
}

// MarkerDetector finds markers in a frame.
type MarkerDetector interface {
	Detect(frame l1frames.Frame) ([]MarkerDetection, error)
}

// DetectorSettings are the tuning options consumed by the marker detector
// itself rather than by fusion.
type DetectorSettings struct {
	Family      string
	Decimate    int
	Blur        int
	Threads     int
	RefineEdges bool
}

// ConfigurableDetector is a MarkerDetector that accepts DetectorSettings.
// The pipeline applies settings whenever its tuning changes.
type ConfigurableDetector interface {
	MarkerDetector
	Configure(s DetectorSettings) error
}

// SingleMarkerSolver estimates the camera-to-marker transform of one
// detection, in the optical (EDN) convention with the marker's Z axis
// pointing into the tag.
type SingleMarkerSolver interface {
	SolveSingle(d MarkerDetection) (PoseEstimate, error)
}

// MultiMarkerSolver jointly estimates the camera pose in the field from
// every detection it can place on the map. ok is false when it could not.
type MultiMarkerSolver interface {
	SolveMulti(dets []MarkerDetection) (res MultiMarkerResult, ok bool)
}

// MarkerMap gives the field pose (NWU) of each known marker.
type MarkerMap interface {
	MarkerPose(id int) (geom.Pose3d, bool)
}
