package l5odometry

import (
	"image"

	"github.com/banshee-data/pose.report/internal/config"
	"github.com/banshee-data/pose.report/internal/vision/geom"
	"github.com/banshee-data/pose.report/internal/vision/l1frames"
	"github.com/banshee-data/pose.report/internal/vision/l2features"
	"github.com/banshee-data/pose.report/internal/vision/l3correspondence"
	"github.com/banshee-data/pose.report/internal/vision/l4motion"
)

// SessionState is the odometry session's lifecycle state.
type SessionState string

const (
	StateUninitialized SessionState = "uninitialized" // No frame seen since construction or Reset
	StateTracking      SessionState = "tracking"      // Enough features to track
	StateDegraded      SessionState = "degraded"      // Feature count below minimum; re-detecting
)

// Config bundles the per-layer configs the session needs.
type Config struct {
	Correspondence l3correspondence.Config
	Motion         l4motion.Config
}

// DefaultConfig returns the session defaults.
func DefaultConfig() Config {
	return ConfigFromTuning(config.EmptyTuningConfig())
}

// ConfigFromTuning builds a Config from tuning values.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		Correspondence: l3correspondence.ConfigFromTuning(cfg),
		Motion:         l4motion.ConfigFromTuning(cfg),
	}
}

// Report describes what happened to one frame. It is populated whether or
// not an estimate was produced.
type Report struct {
	State      SessionState
	Outcome    l3correspondence.Outcome
	Confidence float64 // px²
	Points     int     // previous-point count after this frame
	Failure    l4motion.Failure
	Err        error
}

// Session runs frame-to-frame visual odometry. It owns the correspondence
// tracker and integrates successive relative motions into an up-to-scale
// trajectory. A Session is not safe for concurrent use.
type Session struct {
	cfg       Config
	k         *l1frames.CameraIntrinsics
	tracker   *l3correspondence.Tracker
	estimator *l4motion.Estimator

	state     SessionState
	pose      geom.Pose3d
	estimates int
}

// NewSession creates a session. k may be nil, in which case every tracked
// frame reports FailureInsufficientData.
func NewSession(cfg Config, k *l1frames.CameraIntrinsics, det l2features.FeatureDetector, pt l2features.PointTracker, solver l4motion.PoseSolver) *Session {
	return &Session{
		cfg:       cfg,
		k:         k,
		tracker:   l3correspondence.NewTracker(cfg.Correspondence, det, pt),
		estimator: l4motion.NewEstimator(cfg.Motion, solver),
		state:     StateUninitialized,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState { return s.state }

// Trajectory returns the accumulated pose of the camera relative to the
// first frame after the last Reset, in the optical frame. Translation is
// the sum of unit steps and has no metric meaning.
func (s *Session) Trajectory() geom.Pose3d { return s.pose }

// Estimates returns how many frames produced a motion estimate since the
// last Reset.
func (s *Session) Estimates() int { return s.estimates }

// Tracker exposes the correspondence tracker for inspection.
func (s *Session) Tracker() *l3correspondence.Tracker { return s.tracker }

// Estimate processes one greyscale frame. A nil estimate is an expected
// outcome (cold start, re-detection, lost tracks, a static scene or a solver
// failure); the Report says which.
func (s *Session) Estimate(img *image.Gray) (*l4motion.MotionEstimate, Report) {
	res := s.tracker.Track(img)
	rep := Report{
		Outcome:    res.Outcome,
		Confidence: res.Confidence,
		Points:     res.Features,
	}

	var est *l4motion.MotionEstimate
	if res.Outcome == l3correspondence.OutcomeTracked {
		var err error
		est, err = s.estimator.Estimate(res.Correspondences, s.k)
		if err != nil {
			rep.Failure = l4motion.FailureOf(err)
			rep.Err = err
			diagf("no motion estimate from %d pairs: %v", res.Correspondences.Len(), err)
		}
		s.tracker.Advance(img)
		rep.Points = len(s.tracker.State().Previous)
		if est != nil {
			s.pose = s.pose.TransformBy(est.Transform())
			s.estimates++
			tracef("motion t=(%.3f,%.3f,%.3f) rpy=(%.4f,%.4f,%.4f) pairs=%d",
				est.Translation.X, est.Translation.Y, est.Translation.Z,
				est.Roll, est.Pitch, est.Yaw, est.Pairs)
		}
	}

	s.transition(res.Outcome, rep.Points)
	rep.State = s.state
	return est, rep
}

func (s *Session) transition(outcome l3correspondence.Outcome, points int) {
	next := StateTracking
	switch {
	case outcome == l3correspondence.OutcomeColdStart:
		next = StateTracking
	case outcome == l3correspondence.OutcomeLost:
		next = StateDegraded
	case points < s.cfg.Correspondence.MinFeatures:
		next = StateDegraded
	}
	if next == s.state {
		return
	}
	if next == StateDegraded {
		opsf("odometry degraded: %s with %d points (min %d)", outcome, points, s.cfg.Correspondence.MinFeatures)
	} else {
		diagf("odometry %s -> %s (%s, %d points)", s.state, next, outcome, points)
	}
	s.state = next
}

// Reset discards all tracking state and the accumulated trajectory. It is
// idempotent.
func (s *Session) Reset() {
	if s.state != StateUninitialized {
		diagf("odometry reset from %s after %d estimates", s.state, s.estimates)
	}
	s.tracker.Reset()
	s.state = StateUninitialized
	s.pose = geom.Pose3d{}
	s.estimates = 0
}
