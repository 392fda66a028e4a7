package l4motion

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"

	"github.com/banshee-data/pose.report/internal/config"
	"github.com/banshee-data/pose.report/internal/vision/geom"
	"github.com/banshee-data/pose.report/internal/vision/l1frames"
	"github.com/banshee-data/pose.report/internal/vision/l3correspondence"
)

var (
	// ErrTooFewPoints means there were not enough correspondences to solve.
	ErrTooFewPoints = errors.New("too few correspondences")
	// ErrDegenerate means the point configuration does not determine a
	// unique relative pose.
	ErrDegenerate = errors.New("degenerate point configuration")
	// ErrSolver wraps any other pose solver failure.
	ErrSolver = errors.New("pose solver failed")
)

// Failure classifies why no motion estimate was produced.
type Failure int

const (
	FailureNone Failure = iota
	FailureInsufficientData
	FailureDegenerate
	FailureSolver
)

// String implements fmt.Stringer.
func (f Failure) String() string {
	switch f {
	case FailureNone:
		return "none"
	case FailureInsufficientData:
		return "insufficient_data"
	case FailureDegenerate:
		return "degenerate"
	case FailureSolver:
		return "solver"
	default:
		return "unknown"
	}
}

// FailureOf maps an Estimate error to its Failure class.
func FailureOf(err error) Failure {
	switch {
	case err == nil:
		return FailureNone
	case errors.Is(err, ErrTooFewPoints):
		return FailureInsufficientData
	case errors.Is(err, ErrDegenerate):
		return FailureDegenerate
	default:
		return FailureSolver
	}
}

// AngleMode selects how rotation angles are reported.
type AngleMode int

const (
	// AngleModeRadians reports roll, pitch and yaw in radians.
	AngleModeRadians AngleMode = iota
	// AngleModeLegacyScaled multiplies the radian angles by π/180, matching
	// the output of earlier releases. The resulting values are not angles in
	// any unit; use only for comparison with recorded legacy data.
	AngleModeLegacyScaled
)

// String implements fmt.Stringer.
func (m AngleMode) String() string {
	if m == AngleModeLegacyScaled {
		return "legacy_scaled"
	}
	return "radians"
}

// PoseSolver recovers the relative camera motion between two views from
// index-aligned pixel correspondences. The returned rotation and unit
// translation map points from the current camera frame into the previous
// one: X_prev = R·X_curr + t. Equivalently they are the current camera's
// pose in the previous camera's optical frame.
type PoseSolver interface {
	Solve(prev, curr []r2.Point, k *l1frames.CameraIntrinsics) (geom.Rotation3d, r3.Vector, error)
}

// minPointer is implemented by solvers that know their minimal sample size.
type minPointer interface {
	MinPoints() int
}

// MotionEstimate is the relative motion between two consecutive frames.
// Translation is unit length: monocular odometry recovers direction only.
type MotionEstimate struct {
	Translation r3.Vector
	Rotation    geom.Rotation3d
	Roll        float64
	Pitch       float64
	Yaw         float64
	Mode        AngleMode
	Pairs       int
}

// Transform returns the estimate as a rigid transform.
func (m *MotionEstimate) Transform() geom.Transform3d {
	return geom.NewTransform3d(m.Translation, m.Rotation)
}

// Config holds estimator options.
type Config struct {
	AngleMode AngleMode
	// MinCorrespondences overrides the solver's minimum when larger. Zero
	// defers to the solver.
	MinCorrespondences int
}

// DefaultConfig returns the estimator defaults.
func DefaultConfig() Config {
	return ConfigFromTuning(config.EmptyTuningConfig())
}

// ConfigFromTuning builds a Config from tuning values.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	c := Config{AngleMode: AngleModeRadians}
	if cfg.GetLegacyAngleScaling() {
		c.AngleMode = AngleModeLegacyScaled
	}
	return c
}

// Estimator turns correspondences into a MotionEstimate.
type Estimator struct {
	cfg    Config
	solver PoseSolver
}

// NewEstimator creates an estimator around solver.
func NewEstimator(cfg Config, solver PoseSolver) *Estimator {
	return &Estimator{cfg: cfg, solver: solver}
}

// MinPairs is the number of correspondences below which Estimate fails
// with ErrTooFewPoints.
func (e *Estimator) MinPairs() int {
	n := e.cfg.MinCorrespondences
	if mp, ok := e.solver.(minPointer); ok && mp.MinPoints() > n {
		n = mp.MinPoints()
	}
	if n < 5 {
		n = 5
	}
	return n
}

// Estimate solves for the relative motion between the previous and current
// frame. On failure it returns a nil estimate and an error wrapping one of
// ErrTooFewPoints, ErrDegenerate or ErrSolver; see FailureOf.
func (e *Estimator) Estimate(c l3correspondence.Correspondences, k *l1frames.CameraIntrinsics) (*MotionEstimate, error) {
	if k == nil {
		return nil, fmt.Errorf("%w: no camera intrinsics", ErrTooFewPoints)
	}
	if len(c.Previous) != len(c.Current) {
		return nil, fmt.Errorf("%w: %d previous vs %d current points", ErrSolver, len(c.Previous), len(c.Current))
	}
	if n, min := c.Len(), e.MinPairs(); n < min {
		return nil, fmt.Errorf("%w: %d < %d", ErrTooFewPoints, n, min)
	}

	rot, t, err := e.solver.Solve(c.Previous, c.Current, k)
	if err != nil {
		if errors.Is(err, ErrTooFewPoints) || errors.Is(err, ErrDegenerate) || errors.Is(err, ErrSolver) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrSolver, err)
	}
	if n := t.Norm(); n > 0 {
		t = t.Mul(1 / n)
	}

	roll, pitch, yaw := EulerFromMatrix(rot.Matrix())
	if e.cfg.AngleMode == AngleModeLegacyScaled {
		roll *= math.Pi / 180
		pitch *= math.Pi / 180
		yaw *= math.Pi / 180
	}

	return &MotionEstimate{
		Translation: t,
		Rotation:    geom.NewRotationRPY(roll, pitch, yaw),
		Roll:        roll,
		Pitch:       pitch,
		Yaw:         yaw,
		Mode:        e.cfg.AngleMode,
		Pairs:       c.Len(),
	}, nil
}

// EulerFromMatrix extracts roll, pitch and yaw (radians) from a row-major
// rotation matrix R = Rz(yaw)·Ry(pitch)·Rx(roll).
func EulerFromMatrix(m [3][3]float64) (roll, pitch, yaw float64) {
	roll = math.Atan2(m[2][1], m[2][2])
	pitch = math.Atan2(-m[2][0], math.Hypot(m[2][1], m[2][2]))
	yaw = math.Atan2(m[1][0], m[0][0])
	return roll, pitch, yaw
}
