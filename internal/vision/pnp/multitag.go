package pnp

import (
	"sort"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"

	"github.com/banshee-data/pose.report/internal/vision/geom"
	"github.com/banshee-data/pose.report/internal/vision/l1frames"
	"github.com/banshee-data/pose.report/internal/vision/l6fusion"
)

// MinTags is the number of distinct mapped markers a joint solve needs.
const MinTags = 2

// MultiTagSolver estimates the camera pose in the field from every
// detected marker whose field pose is known.
type MultiTagSolver struct {
	k      *l1frames.CameraIntrinsics
	model  TagModel
	layout l6fusion.MarkerMap
	single *PlanarSolver
	cfg    SolverConfig
}

var _ l6fusion.MultiMarkerSolver = (*MultiTagSolver)(nil)

// NewMultiTagSolver returns a joint solver over the given marker map.
func NewMultiTagSolver(k *l1frames.CameraIntrinsics, model TagModel, layout l6fusion.MarkerMap, cfg SolverConfig) *MultiTagSolver {
	single := NewPlanarSolver(k, model, cfg)
	return &MultiTagSolver{k: k, model: model, layout: layout, single: single, cfg: single.cfg}
}

type mappedDetection struct {
	det  l6fusion.MarkerDetection
	pose geom.Pose3d
}

// SolveMulti implements l6fusion.MultiMarkerSolver. The result's
// FieldToCamera holds the camera pose in field coordinates (NWU); Alt
// repeats Best because a joint solve has no mirrored alternative.
func (s *MultiTagSolver) SolveMulti(dets []l6fusion.MarkerDetection) (l6fusion.MultiMarkerResult, bool) {
	if s.k == nil || s.layout == nil {
		return l6fusion.MultiMarkerResult{}, false
	}

	byID := make(map[int]mappedDetection)
	for _, d := range dets {
		pose, ok := s.layout.MarkerPose(d.ID)
		if !ok {
			continue
		}
		if prev, seen := byID[d.ID]; seen && prev.det.DecisionMargin >= d.DecisionMargin {
			continue
		}
		byID[d.ID] = mappedDetection{det: d, pose: pose}
	}
	if len(byID) < MinTags {
		return l6fusion.MultiMarkerResult{}, false
	}

	ids := make([]int, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	seed, ok := s.seed(ids, byID)
	if !ok {
		return l6fusion.MultiMarkerResult{}, false
	}

	var world []r3.Vector
	var img []r2.Point
	for _, id := range ids {
		m := byID[id]
		corners := s.model.FieldCorners(m.pose)
		world = append(world, corners[:]...)
		img = append(img, m.det.Corners[:]...)
	}

	cam := make([]r3.Vector, len(world))
	cost := func(r geom.Rotation3d, t r3.Vector) float64 {
		inv := r.Inverse()
		for i, w := range world {
			c := inv.Rotate(w.Sub(t))
			cam[i] = r3.Vector{X: -c.Y, Y: -c.Z, Z: c.X}
		}
		return reprojection(s.k, cam, img)
	}

	r, t, f, err := minimizePose(seed.Rotation, seed.Translation, s.cfg.MaxEvaluations, cost)
	if err != nil {
		return l6fusion.MultiMarkerResult{}, false
	}

	best := geom.NewTransform3d(t, r)
	return l6fusion.MultiMarkerResult{
		FieldToCamera: l6fusion.PoseEstimate{
			Best:      best,
			Alt:       best,
			BestError: rms(f, len(world)),
		},
		UsedIDs: ids,
	}, true
}

// seed picks the camera pose implied by the best-fitting single marker.
func (s *MultiTagSolver) seed(ids []int, byID map[int]mappedDetection) (geom.Pose3d, bool) {
	var (
		best    geom.Pose3d
		bestErr float64
		found   bool
	)
	for _, id := range ids {
		m := byID[id]
		est, solveErr := s.single.SolveSingle(m.det)
		if solveErr != nil {
			continue
		}
		if !found || est.BestError < bestErr {
			best = l6fusion.CameraPoseFromMarker(est.Best, m.pose)
			bestErr = est.BestError
			found = true
		}
	}
	return best, found
}
