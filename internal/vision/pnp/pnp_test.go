package pnp

import (
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
	"github.com/banshee-data/pose.report/internal/vision/l6fusion"
)

var testModel = TagModel{Family: "36h11", Size: 0.1651}

// imageCorners projects a marker seen through camToTag (optical convention).
func imageCorners(t *testing.T, k *l1frames.CameraIntrinsics, model TagModel, camToTag geom.Transform3d) [4]r2.Point {
	t.Helper()
	var out [4]r2.Point
	for i, c := range model.Corners() {
		p, ok := k.Project(camToTag.Rotation.Rotate(c).Add(camToTag.Translation))
		require.True(t, ok, "corner %d behind camera", i)
		out[i] = p
	}
	return out
}

// fieldImageCorners projects a mapped marker through a camera whose field
// pose is cam (NWU).
func fieldImageCorners(t *testing.T, k *l1frames.CameraIntrinsics, model TagModel, cam, marker geom.Pose3d) [4]r2.Point {
	t.Helper()
	var out [4]r2.Point
	inv := cam.Rotation.Inverse()
	for i, w := range model.FieldCorners(marker) {
		c := inv.Rotate(w.Sub(cam.Translation))
		p, ok := k.Project(r3.Vector{X: -c.Y, Y: -c.Z, Z: c.X})
		require.True(t, ok, "corner %d behind camera", i)
		out[i] = p
	}
	return out
}

func testLayout() *l6fusion.FieldLayout {
	return l6fusion.NewFieldLayout(map[int]geom.Pose3d{
		1: geom.NewPose3d(r3.Vector{X: 5, Y: 0.8, Z: 0.6}, geom.NewRotationRPY(0, 0, math.Pi)),
		2: geom.NewPose3d(r3.Vector{X: 5, Y: -0.8, Z: 0.6}, geom.NewRotationRPY(0, 0, math.Pi)),
		3: geom.NewPose3d(r3.Vector{X: 4, Y: 3, Z: 0.5}, geom.NewRotationRPY(0, 0, -math.Pi/2)),
	}, l6fusion.FieldSize{Length: 16.5, Width: 8.1})
}

// ----------------------------------------------------------------------------
// TagModel
// ----------------------------------------------------------------------------

func TestTagModel_Corners(t *testing.T) {
	t.Parallel()
	c := TagModel{Size: 0.2}.Corners()
	assert.Equal(t, r3.Vector{X: -0.1, Y: 0.1}, c[0])
	assert.Equal(t, r3.Vector{X: 0.1, Y: 0.1}, c[1])
	assert.Equal(t, r3.Vector{X: 0.1, Y: -0.1}, c[2])
	assert.Equal(t, r3.Vector{X: -0.1, Y: -0.1}, c[3])
}

func TestTagModelFromTuning(t *testing.T) {
	t.Parallel()
	m := TagModelFromTuning(config.EmptyTuningConfig())
	assert.Equal(t, "36h11", m.Family)
	assert.InDelta(t, 0.1651, m.Size, 1e-9)
}

func TestFieldCorners_MatchMapDerivedPose(t *testing.T) {
	t.Parallel()
	k := testutil.Intrinsics(t)
	cam := geom.NewPose3d(r3.Vector{X: 1, Y: 0.3, Z: 0.4}, geom.NewRotationRPY(0.02, -0.05, 0.15))
	marker := geom.NewPose3d(r3.Vector{X: 4.5, Y: 0.9, Z: 0.7}, geom.NewRotationRPY(0, 0.1, math.Pi-0.3))

	viaField := fieldImageCorners(t, k, testModel, cam, marker)
	viaSolverFrame := imageCorners(t, k, testModel, l6fusion.MapDerivedPose(geom.Transform3d(cam), marker))
	for i := range viaField {
		assert.InDelta(t, viaField[i].X, viaSolverFrame[i].X, 1e-6, "corner %d x", i)
		assert.InDelta(t, viaField[i].Y, viaSolverFrame[i].Y, 1e-6, "corner %d y", i)
	}

	// Image corners run counter-clockwise from the bottom left.
	assert.Less(t, viaField[0].X, viaField[1].X)
	assert.Greater(t, viaField[0].Y, viaField[3].Y)
}

// ----------------------------------------------------------------------------
// PlanarSolver
// ----------------------------------------------------------------------------

func TestPlanarSolver_HeadOn(t *testing.T) {
	t.Parallel()
	k := testutil.Intrinsics(t)
	truth := geom.NewTransform3d(r3.Vector{X: 0.1, Y: -0.05, Z: 1.5}, geom.IdentityRotation())

	s := NewPlanarSolver(k, testModel, DefaultSolverConfig())
	est, err := s.SolveSingle(l6fusion.MarkerDetection{ID: 4, Corners: imageCorners(t, k, testModel, truth)})
	require.NoError(t, err)

	assert.True(t, est.Best.ApproxEqual(truth, 1e-4, 1e-3), "got %v want %v", est.Best, truth)
	assert.Less(t, est.BestError, 1e-3)
	assert.GreaterOrEqual(t, est.AltError, est.BestError)
}

func TestPlanarSolver_Tilted(t *testing.T) {
	t.Parallel()
	k := testutil.Intrinsics(t)
	truth := geom.NewTransform3d(r3.Vector{X: 0.2, Y: 0.1, Z: 1.0}, geom.NewRotationRPY(0.1, 0.5, -0.2))

	s := NewPlanarSolver(k, testModel, DefaultSolverConfig())
	est, err := s.SolveSingle(l6fusion.MarkerDetection{ID: 4, Corners: imageCorners(t, k, testModel, truth)})
	require.NoError(t, err)

	assert.True(t, est.Best.ApproxEqual(truth, 1e-4, 1e-3), "got %v want %v", est.Best, truth)
	assert.Less(t, est.BestError, 1e-3)
	assert.GreaterOrEqual(t, est.AltError, est.BestError)
	assert.LessOrEqual(t, est.Ambiguity(), 1.0)
}

func TestPlanarSolver_Errors(t *testing.T) {
	t.Parallel()
	k := testutil.Intrinsics(t)

	collinear := l6fusion.MarkerDetection{Corners: [4]r2.Point{{X: 100, Y: 100}, {X: 200, Y: 100}, {X: 300, Y: 100}, {X: 400, Y: 100}}}
	_, err := NewPlanarSolver(k, testModel, DefaultSolverConfig()).SolveSingle(collinear)
	assert.ErrorIs(t, err, ErrDegenerateHomography)

	good := l6fusion.MarkerDetection{Corners: imageCorners(t, k, testModel, geom.NewTransform3d(r3.Vector{Z: 2}, geom.IdentityRotation()))}
	_, err = NewPlanarSolver(nil, testModel, DefaultSolverConfig()).SolveSingle(good)
	assert.Error(t, err)

	_, err = NewPlanarSolver(k, TagModel{}, DefaultSolverConfig()).SolveSingle(good)
	assert.Error(t, err)
}

func TestMirroredTilt(t *testing.T) {
	t.Parallel()
	_, ok := mirroredTilt(geom.IdentityRotation(), r3.Vector{Z: 2})
	assert.False(t, ok, "head-on marker has no distinct mirror")

	r := geom.NewRotationRPY(0, 0.4, 0)
	tr := r3.Vector{Z: 2}
	alt, ok := mirroredTilt(r, tr)
	require.True(t, ok)
	n := r.Rotate(r3.Vector{Z: 1})
	m := alt.Rotate(r3.Vector{Z: 1})
	assert.InDelta(t, -n.X, m.X, 1e-9)
	assert.InDelta(t, n.Z, m.Z, 1e-9)
}

func TestSolverConfigFromTuning(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 40*evaluationsPerIteration, SolverConfigFromTuning(config.EmptyTuningConfig()).MaxEvaluations)

	zero := 0
	cfg := config.EmptyTuningConfig()
	cfg.NumIterations = &zero
	assert.Equal(t, DefaultMaxEvaluations, SolverConfigFromTuning(cfg).MaxEvaluations)
	assert.Equal(t, DefaultMaxEvaluations, NewPlanarSolver(nil, testModel, SolverConfig{}).cfg.MaxEvaluations)
}

// ----------------------------------------------------------------------------
// MultiTagSolver
// ----------------------------------------------------------------------------

func TestMultiTagSolver_RecoversCameraPose(t *testing.T) {
	t.Parallel()
	k := testutil.Intrinsics(t)
	layout := testLayout()
	cam := geom.NewPose3d(r3.Vector{X: 1, Y: 0.2, Z: 0.5}, geom.NewRotationRPY(0, 0.03, 0.08))

	var dets []l6fusion.MarkerDetection
	for _, id := range []int{2, 1} {
		pose, ok := layout.MarkerPose(id)
		require.True(t, ok)
		dets = append(dets, l6fusion.MarkerDetection{ID: id, DecisionMargin: 50, Corners: fieldImageCorners(t, k, testModel, cam, pose)})
	}
	dets = append(dets, l6fusion.MarkerDetection{ID: 42, Corners: dets[0].Corners})

	s := NewMultiTagSolver(k, testModel, layout, DefaultSolverConfig())
	res, ok := s.SolveMulti(dets)
	require.True(t, ok)

	assert.Equal(t, []int{1, 2}, res.UsedIDs)
	got := geom.Pose3d(res.FieldToCamera.Best)
	assert.True(t, got.ApproxEqual(cam, 1e-3, 1e-3), "got %v want %v", got, cam)
	assert.Less(t, res.FieldToCamera.BestError, 1e-2)
	assert.Equal(t, res.FieldToCamera.Best, res.FieldToCamera.Alt)
	assert.Zero(t, res.FieldToCamera.Ambiguity())
}

func TestMultiTagSolver_NeedsTwoMappedTags(t *testing.T) {
	t.Parallel()
	k := testutil.Intrinsics(t)
	layout := testLayout()
	cam := geom.NewPose3d(r3.Vector{X: 1}, geom.IdentityRotation())
	pose, _ := layout.MarkerPose(1)
	corners := fieldImageCorners(t, k, testModel, cam, pose)

	s := NewMultiTagSolver(k, testModel, layout, DefaultSolverConfig())

	_, ok := s.SolveMulti([]l6fusion.MarkerDetection{{ID: 1, Corners: corners}, {ID: 99, Corners: corners}})
	assert.False(t, ok, "unmapped markers do not count")

	_, ok = s.SolveMulti([]l6fusion.MarkerDetection{{ID: 1, Corners: corners}, {ID: 1, Corners: corners}})
	assert.False(t, ok, "duplicate IDs count once")

	_, ok = NewMultiTagSolver(k, testModel, nil, DefaultSolverConfig()).SolveMulti([]l6fusion.MarkerDetection{{ID: 1, Corners: corners}})
	assert.False(t, ok)
}

// ----------------------------------------------------------------------------
// Fusion with real solvers
// ----------------------------------------------------------------------------

func TestFuser_WithSolvers(t *testing.T) {
	t.Parallel()
	k := testutil.Intrinsics(t)
	layout := testLayout()
	cam := geom.NewPose3d(r3.Vector{X: 1.2, Y: -0.1, Z: 0.55}, geom.NewRotationRPY(0, 0, -0.05))

	var dets []l6fusion.MarkerDetection
	for _, id := range []int{1, 2} {
		pose, _ := layout.MarkerPose(id)
		dets = append(dets, l6fusion.MarkerDetection{ID: id, DecisionMargin: 60, Corners: fieldImageCorners(t, k, testModel, cam, pose)})
	}

	cfg := l6fusion.ConfigFromTuning(config.EmptyTuningConfig(), layout)
	cfg.DoMultiTarget = true
	f := l6fusion.NewFuser(cfg,
		NewPlanarSolver(k, testModel, DefaultSolverConfig()),
		NewMultiTagSolver(k, testModel, layout, DefaultSolverConfig()))

	targets, joint := f.FuseWithJoint(dets)
	require.NotNil(t, joint)
	require.Len(t, targets, 2)
	for _, tg := range targets {
		require.NotNil(t, tg.Candidate)
		assert.Equal(t, l6fusion.SourceMapDerived, tg.Candidate.Source)

		pose, _ := layout.MarkerPose(tg.Detection.ID)
		want := geom.TransformBetween(cam, pose).Translation
		got := tg.Candidate.Best.Translation
		assert.InDelta(t, want.X, got.X, 1e-2, "marker %d", tg.Detection.ID)
		assert.InDelta(t, want.Y, got.Y, 1e-2, "marker %d", tg.Detection.ID)
		assert.InDelta(t, want.Z, got.Z, 1e-2, "marker %d", tg.Detection.ID)
	}
}
