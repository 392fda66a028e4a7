package l4motion

import (
	"errors"
	"math"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/pose.report/internal/config"
	"github.com/banshee-data/pose.report/internal/testutil"
	"github.com/banshee-data/pose.report/internal/vision/geom"
	"github.com/banshee-data/pose.report/internal/vision/l1frames"
	"github.com/banshee-data/pose.report/internal/vision/l3correspondence"
)

// sceneMotion returns pixel pairs for a camera that moves from the origin to
// currCam.
func sceneMotion(t *testing.T, currCam geom.Pose3d, seed int64) (*l1frames.CameraIntrinsics, []r2.Point, []r2.Point) {
	t.Helper()
	k := testutil.Intrinsics(t)
	world := testutil.RandomScene(200, 2, 4, 8, seed)
	prev, curr := testutil.Correspondences(k, geom.Pose3d{}, currCam, world)
	require.Greater(t, len(prev), 100)
	return k, prev, curr
}

func assertDirection(t *testing.T, want, got r3.Vector, minDot float64) {
	t.Helper()
	assert.InDelta(t, 1.0, got.Norm(), 1e-9, "translation must be unit length")
	assert.Greater(t, got.Dot(want.Normalize()), minDot, "got %v want direction %v", got, want)
}

// ----------------------------------------------------------------------------
// EightPointSolver
// ----------------------------------------------------------------------------

func TestEightPoint_PureTranslation(t *testing.T) {
	t.Parallel()
	move := r3.Vector{X: 0.3}
	k, prev, curr := sceneMotion(t, geom.NewPose3d(move, geom.IdentityRotation()), 1)

	rot, tr, err := NewEightPointSolver(DefaultRANSACConfig()).Solve(prev, curr, k)
	require.NoError(t, err)
	assert.Less(t, rot.Angle(), 1e-6)
	assertDirection(t, move, tr, 1-1e-6)
}

func TestEightPoint_RotationAndTranslation(t *testing.T) {
	t.Parallel()
	want := geom.NewPose3d(r3.Vector{X: 0.2, Y: -0.05, Z: 0.3}, geom.NewRotationRPY(0.02, -0.03, 0.05))
	k, prev, curr := sceneMotion(t, want, 2)

	sol, err := NewEightPointSolver(DefaultRANSACConfig()).SolveDetailed(prev, curr, k)
	require.NoError(t, err)
	assert.True(t, sol.Rotation.ApproxEqual(want.Rotation, 1e-6), "got %v want %v", sol.Rotation, want.Rotation)
	assertDirection(t, want.Translation, sol.Translation, 1-1e-6)
	assert.Equal(t, len(prev), sol.InlierCount)
	assert.Greater(t, sol.Cheiral, sol.InlierCount*9/10)
}

func TestEightPoint_RejectsOutliers(t *testing.T) {
	t.Parallel()
	want := geom.NewPose3d(r3.Vector{X: -0.25, Z: 0.1}, geom.NewRotationRPY(0, 0.04, 0))
	k, prev, curr := sceneMotion(t, want, 3)

	clean := 0
	for i := range curr {
		if i%5 == 0 {
			curr[i] = r2.Point{X: float64((i * 97) % 640), Y: float64((i * 53) % 480)}
			continue
		}
		clean++
	}

	sol, err := NewEightPointSolver(DefaultRANSACConfig()).SolveDetailed(prev, curr, k)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, sol.InlierCount, clean)
	assert.True(t, sol.Rotation.ApproxEqual(want.Rotation, 1e-2), "got %v want %v", sol.Rotation, want.Rotation)
	assertDirection(t, want.Translation, sol.Translation, 0.99)
}

func TestEightPoint_Deterministic(t *testing.T) {
	t.Parallel()
	k, prev, curr := sceneMotion(t, geom.NewPose3d(r3.Vector{Y: 0.2, Z: 0.2}, geom.NewRotationRPY(0.01, 0, 0)), 4)
	s := NewEightPointSolver(DefaultRANSACConfig())
	rotA, trA, errA := s.Solve(prev, curr, k)
	rotB, trB, errB := s.Solve(prev, curr, k)
	require.NoError(t, errA)
	require.NoError(t, errB)
	assert.Equal(t, rotA, rotB)
	assert.Equal(t, trA, trB)
}

func TestEightPoint_StaticSceneIsDegenerate(t *testing.T) {
	t.Parallel()
	k, prev, _ := sceneMotion(t, geom.NewPose3d(r3.Vector{X: 0.1}, geom.IdentityRotation()), 5)
	_, _, err := NewEightPointSolver(DefaultRANSACConfig()).Solve(prev, prev, k)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDegenerate)
}

func TestEightPoint_InputErrors(t *testing.T) {
	t.Parallel()
	k := testutil.Intrinsics(t)
	s := NewEightPointSolver(RANSACConfig{})

	_, _, err := s.Solve(make([]r2.Point, 7), make([]r2.Point, 7), k)
	assert.ErrorIs(t, err, ErrTooFewPoints)

	_, _, err = s.Solve(make([]r2.Point, 9), make([]r2.Point, 8), k)
	assert.ErrorIs(t, err, ErrSolver)
}

func TestNewEightPointSolver_Defaults(t *testing.T) {
	t.Parallel()
	s := NewEightPointSolver(RANSACConfig{Probability: 2})
	assert.Equal(t, 0.999, s.cfg.Probability)
	assert.Equal(t, 1.0, s.cfg.Threshold)
	assert.Equal(t, 1000, s.cfg.MaxIterations)
	assert.Equal(t, MinEightPoint, s.MinPoints())
}

func TestRANSACConfigFromTuning(t *testing.T) {
	t.Parallel()
	p, thr := 0.99, 2.5
	cfg := RANSACConfigFromTuning(&config.TuningConfig{EssentialMatProb: &p, EssentialMatThreshold: &thr})
	assert.Equal(t, 0.99, cfg.Probability)
	assert.Equal(t, 2.5, cfg.Threshold)

	def := DefaultRANSACConfig()
	assert.Equal(t, 0.999, def.Probability)
	assert.Equal(t, 1.0, def.Threshold)
}

func TestRANSACIterations(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 1, ransacIterations(0.999, 1, 8))
	assert.Equal(t, math.MaxInt32, ransacIterations(0.999, 0, 8))
	assert.InDelta(t, 1177, ransacIterations(0.99, 0.5, 8), 1)
}

func TestSampson_ZeroOnEpipolarConstraint(t *testing.T) {
	t.Parallel()
	// Pure x translation: E = [t]x with t = (1, 0, 0).
	E := [3][3]float64{{0, 0, 0}, {0, 0, -1}, {0, 1, 0}}
	assert.InDelta(t, 0, sampson(E, r2.Point{X: 0.1, Y: 0.2}, r2.Point{X: 0.3, Y: 0.2}), 1e-15)
	assert.Greater(t, sampson(E, r2.Point{X: 0.1, Y: 0.2}, r2.Point{X: 0.3, Y: 0.25}), 0.0)
}

// ----------------------------------------------------------------------------
// Estimator
// ----------------------------------------------------------------------------

type errSolver struct{ err error }

func (s errSolver) Solve([]r2.Point, []r2.Point, *l1frames.CameraIntrinsics) (geom.Rotation3d, r3.Vector, error) {
	return geom.Rotation3d{}, r3.Vector{}, s.err
}

func TestEstimator_Radians(t *testing.T) {
	t.Parallel()
	want := geom.NewPose3d(r3.Vector{X: 0.1, Z: 0.4}, geom.NewRotationRPY(0.03, 0.02, -0.04))
	k, prev, curr := sceneMotion(t, want, 6)

	est, err := NewEstimator(DefaultConfig(), NewEightPointSolver(DefaultRANSACConfig())).
		Estimate(l3correspondence.Correspondences{Previous: prev, Current: curr}, k)
	require.NoError(t, err)
	require.NotNil(t, est)

	assert.Equal(t, AngleModeRadians, est.Mode)
	assert.InDelta(t, want.Rotation.Roll(), est.Roll, 1e-6)
	assert.InDelta(t, want.Rotation.Pitch(), est.Pitch, 1e-6)
	assert.InDelta(t, want.Rotation.Yaw(), est.Yaw, 1e-6)
	assert.True(t, est.Rotation.ApproxEqual(want.Rotation, 1e-6))
	assertDirection(t, want.Translation, est.Translation, 1-1e-6)
	assert.Equal(t, len(prev), est.Pairs)

	tf := est.Transform()
	assert.Equal(t, est.Translation, tf.Translation)
	assert.Equal(t, est.Rotation, tf.Rotation)
}

func TestEstimator_LegacyAngleScaling(t *testing.T) {
	t.Parallel()
	want := geom.NewPose3d(r3.Vector{X: 0.3}, geom.NewRotationRPY(0.05, -0.02, 0.08))
	k, prev, curr := sceneMotion(t, want, 7)

	legacy := true
	cfg := ConfigFromTuning(&config.TuningConfig{LegacyAngleScaling: &legacy})
	require.Equal(t, AngleModeLegacyScaled, cfg.AngleMode)

	est, err := NewEstimator(cfg, NewEightPointSolver(DefaultRANSACConfig())).
		Estimate(l3correspondence.Correspondences{Previous: prev, Current: curr}, k)
	require.NoError(t, err)

	scale := math.Pi / 180
	assert.InDelta(t, want.Rotation.Roll()*scale, est.Roll, 1e-7)
	assert.InDelta(t, want.Rotation.Pitch()*scale, est.Pitch, 1e-7)
	assert.InDelta(t, want.Rotation.Yaw()*scale, est.Yaw, 1e-7)
	assert.True(t, est.Rotation.ApproxEqual(geom.NewRotationRPY(est.Roll, est.Pitch, est.Yaw), 1e-12))
	assert.Less(t, est.Rotation.Angle(), want.Rotation.Angle())
}

func TestEstimator_TooFewPairs(t *testing.T) {
	t.Parallel()
	k := testutil.Intrinsics(t)
	e := NewEstimator(DefaultConfig(), NewEightPointSolver(DefaultRANSACConfig()))
	assert.Equal(t, 8, e.MinPairs())

	pts := make([]r2.Point, 7)
	est, err := e.Estimate(l3correspondence.Correspondences{Previous: pts, Current: pts}, k)
	assert.Nil(t, est)
	assert.ErrorIs(t, err, ErrTooFewPoints)
	assert.Equal(t, FailureInsufficientData, FailureOf(err))

	est, err = e.Estimate(l3correspondence.Correspondences{Previous: make([]r2.Point, 20), Current: make([]r2.Point, 20)}, nil)
	assert.Nil(t, est)
	assert.Equal(t, FailureInsufficientData, FailureOf(err))
}

func TestEstimator_DegenerateIsClassified(t *testing.T) {
	t.Parallel()
	k, prev, _ := sceneMotion(t, geom.NewPose3d(r3.Vector{X: 0.1}, geom.IdentityRotation()), 8)
	est, err := NewEstimator(DefaultConfig(), NewEightPointSolver(DefaultRANSACConfig())).
		Estimate(l3correspondence.Correspondences{Previous: prev, Current: prev}, k)
	assert.Nil(t, est)
	assert.Equal(t, FailureDegenerate, FailureOf(err))
}

func TestEstimator_WrapsForeignSolverErrors(t *testing.T) {
	t.Parallel()
	k := testutil.Intrinsics(t)
	boom := errors.New("boom")
	pts := make([]r2.Point, 10)

	_, err := NewEstimator(DefaultConfig(), errSolver{err: boom}).
		Estimate(l3correspondence.Correspondences{Previous: pts, Current: pts}, k)
	assert.ErrorIs(t, err, ErrSolver)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, FailureSolver, FailureOf(err))
}

func TestEstimator_MinPairsFloor(t *testing.T) {
	t.Parallel()
	e := NewEstimator(Config{}, errSolver{})
	assert.Equal(t, 5, e.MinPairs())
	e = NewEstimator(Config{MinCorrespondences: 12}, NewEightPointSolver(RANSACConfig{}))
	assert.Equal(t, 12, e.MinPairs())
}

// fivePointSolver advertises a five-pair minimal sample.
type fivePointSolver struct{ errSolver }

func (fivePointSolver) MinPoints() int { return 5 }

func TestEstimator_MinPairsFollowsSolver(t *testing.T) {
	t.Parallel()
	k := testutil.Intrinsics(t)
	boom := errors.New("boom")
	e := NewEstimator(DefaultConfig(), fivePointSolver{errSolver{err: boom}})
	assert.Equal(t, 5, e.MinPairs())

	// Six pairs reach a five-point solver.
	pts := make([]r2.Point, 6)
	_, err := e.Estimate(l3correspondence.Correspondences{Previous: pts, Current: pts}, k)
	assert.ErrorIs(t, err, ErrSolver)
	assert.Contains(t, err.Error(), "boom")

	assert.Equal(t, MinEightPoint, NewEstimator(DefaultConfig(), NewEightPointSolver(DefaultRANSACConfig())).MinPairs())
}

func TestFailureAndModeStrings(t *testing.T) {
	t.Parallel()
	assert.Equal(t, FailureNone, FailureOf(nil))
	assert.Equal(t, "none", FailureNone.String())
	assert.Equal(t, "insufficient_data", FailureInsufficientData.String())
	assert.Equal(t, "degenerate", FailureDegenerate.String())
	assert.Equal(t, "solver", FailureSolver.String())
	assert.Equal(t, "unknown", Failure(42).String())
	assert.Equal(t, "radians", AngleModeRadians.String())
	assert.Equal(t, "legacy_scaled", AngleModeLegacyScaled.String())
}

func TestEulerFromMatrix(t *testing.T) {
	t.Parallel()
	r := geom.NewRotationRPY(0.1, -0.2, 0.3)
	roll, pitch, yaw := EulerFromMatrix(r.Matrix())
	assert.InDelta(t, 0.1, roll, 1e-12)
	assert.InDelta(t, -0.2, pitch, 1e-12)
	assert.InDelta(t, 0.3, yaw, 1e-12)
}
