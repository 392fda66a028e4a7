package l6fusion

import (
	"math"

	"github.com/banshee-data/pose.report/internal/config"
	"github.com/banshee-data/pose.report/internal/vision/geom"
)

// Config holds the fusion policy.
type Config struct {
	// DecisionMargin is the minimum detector decision margin to keep a
	// detection.
	DecisionMargin float64
	// HammingDist is the maximum number of corrected bits to keep a
	// detection.
	HammingDist int
	// DoMultiTarget enables the joint multi-marker solve.
	DoMultiTarget bool
	// DoSingleTargetAlways runs the single-marker solve even for markers
	// used by the joint solve.
	DoSingleTargetAlways bool
	// SolvePNPEnabled turns pose solving on. When off, targets are reported
	// without candidates.
	SolvePNPEnabled bool
	// Map places markers on the field. Required for map-derived poses.
	Map MarkerMap
}

// ConfigFromTuning builds a Config from tuning values and a marker map.
func ConfigFromTuning(cfg *config.TuningConfig, m MarkerMap) Config {
	return Config{
		DecisionMargin:       cfg.GetDecisionMargin(),
		HammingDist:          cfg.GetHammingDist(),
		DoMultiTarget:        cfg.GetDoMultiTarget(),
		DoSingleTargetAlways: cfg.GetDoSingleTargetAlways(),
		SolvePNPEnabled:      cfg.GetSolvePNPEnabled(),
		Map:                  m,
	}
}

// DetectorSettingsFromTuning extracts the marker detector options.
func DetectorSettingsFromTuning(cfg *config.TuningConfig) DetectorSettings {
	return DetectorSettings{
		Family:      cfg.GetTagFamily(),
		Decimate:    cfg.GetDecimate(),
		Blur:        cfg.GetBlur(),
		Threads:     cfg.GetThreads(),
		RefineEdges: cfg.GetRefineEdges(),
	}
}

// Fuser chooses one pose candidate per surviving detection.
type Fuser struct {
	cfg    Config
	single SingleMarkerSolver
	multi  MultiMarkerSolver
}

// NewFuser creates a fuser. Either solver may be nil.
func NewFuser(cfg Config, single SingleMarkerSolver, multi MultiMarkerSolver) *Fuser {
	return &Fuser{cfg: cfg, single: single, multi: multi}
}

// Config returns the fusion policy.
func (f *Fuser) Config() Config { return f.cfg }

// Filter keeps detections whose decision margin and hamming distance pass
// the configured limits, preserving order.
func (f *Fuser) Filter(dets []MarkerDetection) []MarkerDetection {
	kept := make([]MarkerDetection, 0, len(dets))
	for _, d := range dets {
		if d.DecisionMargin < f.cfg.DecisionMargin || d.Hamming > f.cfg.HammingDist {
			tracef("reject marker %d: margin %.1f hamming %d", d.ID, d.DecisionMargin, d.Hamming)
			continue
		}
		kept = append(kept, d)
	}
	return kept
}

// Fuse returns the fused targets for one frame.
func (f *Fuser) Fuse(dets []MarkerDetection) []FusedTarget {
	targets, _ := f.FuseWithJoint(dets)
	return targets
}

// FuseWithJoint is Fuse that also returns the joint solve, or nil when none
// ran or it failed.
func (f *Fuser) FuseWithJoint(dets []MarkerDetection) ([]FusedTarget, *MultiMarkerResult) {
	kept := f.Filter(dets)
	targets := make([]FusedTarget, 0, len(kept))

	if !f.cfg.SolvePNPEnabled {
		for _, d := range kept {
			targets = append(targets, FusedTarget{Detection: d})
		}
		return targets, nil
	}

	var joint *MultiMarkerResult
	if f.cfg.DoMultiTarget && len(kept) > 0 && f.multi != nil {
		if res, ok := f.multi.SolveMulti(kept); ok {
			joint = &res
			tracef("joint solve used %v error %.3f", res.UsedIDs, res.FieldToCamera.BestError)
		}
	}

	for _, d := range kept {
		var cand *PoseCandidate
		if f.single != nil && (f.cfg.DoSingleTargetAlways || !joint.Uses(d.ID)) {
			est, err := f.single.SolveSingle(d)
			if err != nil {
				diagf("single solve for marker %d failed: %v", d.ID, err)
			} else {
				cand = &PoseCandidate{Source: SourceIndependent, PoseEstimate: est}
			}
		}

		if cand == nil && joint != nil && f.cfg.Map != nil {
			if tagPose, ok := f.cfg.Map.MarkerPose(d.ID); ok {
				x := MapDerivedPose(joint.FieldToCamera.Best, tagPose)
				cand = &PoseCandidate{
					Source:       SourceMapDerived,
					PoseEstimate: PoseEstimate{Best: x, Alt: x},
				}
			}
		}

		if cand == nil {
			diagf("dropping marker %d: no pose available", d.ID)
			continue
		}

		cand.Best = geom.OpenCVToRobot(cand.Best)
		cand.Alt = geom.OpenCVToRobot(cand.Alt)
		targets = append(targets, FusedTarget{Detection: d, Candidate: cand})
	}
	return targets, joint
}

// tagFlip turns a marker frame with Z out of the tag into one with Z into
// the tag.
var tagFlip = geom.NewRotationRPY(0, math.Pi, 0)

// MapDerivedPose returns the camera-to-marker transform implied by a
// camera pose in the field and the marker's field pose, in the optical
// (EDN) convention with the marker's Z axis into the tag, i.e. the same
// convention a SingleMarkerSolver reports.
func MapDerivedPose(fieldToCamera geom.Transform3d, markerPose geom.Pose3d) geom.Transform3d {
	camToTag := geom.TransformBetween(geom.Pose3d(fieldToCamera), markerPose)
	camToTag = geom.RobotToOpenCV(camToTag)
	return geom.NewTransform3d(camToTag.Translation, tagFlip.Plus(camToTag.Rotation))
}

// CameraPoseFromMarker inverts MapDerivedPose: given a camera-to-marker
// transform in the solver convention and the marker's field pose, it
// returns the camera pose in the field (NWU).
func CameraPoseFromMarker(camToTag geom.Transform3d, markerPose geom.Pose3d) geom.Pose3d {
	unflipped := geom.NewTransform3d(camToTag.Translation, tagFlip.Inverse().Plus(camToTag.Rotation))
	rel := geom.OpenCVToRobot(unflipped)
	return markerPose.TransformBy(rel.Inverse())
}
