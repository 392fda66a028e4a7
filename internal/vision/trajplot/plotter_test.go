package trajplot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/pose.report/internal/vision/geom"
	"github.com/banshee-data/pose.report/internal/vision/l4motion"
	"github.com/banshee-data/pose.report/internal/vision/l5odometry"
	"github.com/banshee-data/pose.report/internal/vision/l6fusion"
	"github.com/banshee-data/pose.report/internal/vision/pipeline"
)

func TestSampleFromResult(t *testing.T) {
	t.Parallel()
	res := &pipeline.Result{
		SequenceID:     12,
		Trajectory:     geom.NewPose3d(r3.Vector{X: 1, Y: 2, Z: 3}, geom.IdentityRotation()),
		Odometry:       &l4motion.MotionEstimate{},
		OdometryReport: l5odometry.Report{Confidence: 220},
		Targets: []l6fusion.FusedTarget{
			{Detection: l6fusion.MarkerDetection{ID: 4}, Candidate: &l6fusion.PoseCandidate{
				PoseEstimate: l6fusion.PoseEstimate{Best: geom.NewTransform3d(r3.Vector{X: 3, Y: 4}, geom.IdentityRotation())},
			}},
			{Detection: l6fusion.MarkerDetection{ID: 8}},
		},
	}
	s := SampleFromResult(res)
	assert.Equal(t, int64(12), s.Seq)
	assert.Equal(t, 3.0, s.Z)
	assert.True(t, s.HasEstimate)
	assert.Equal(t, 220.0, s.Confidence)
	assert.Equal(t, map[int]float64{4: 5}, s.MarkerRange)
}

func TestPlotter_Generate(t *testing.T) {
	t.Parallel()
	dir := filepath.Join(t.TempDir(), "plots")
	p := NewPlotter(dir, "bench")

	_, err := p.Generate()
	assert.ErrorIs(t, err, ErrNoSamples)

	for i := 0; i < 20; i++ {
		s := Sample{Seq: int64(i), X: 0.1 * float64(i), Z: float64(i), Confidence: float64(100 + i*10), HasEstimate: i%2 == 0}
		if i > 10 {
			s.MarkerRange = map[int]float64{1: 4 - 0.1*float64(i), 2: 5}
		}
		require.NoError(t, p.Record(&pipeline.Result{SequenceID: s.Seq}))
		p.Add(s)
	}
	assert.Equal(t, 40, p.Len())

	paths, err := p.Generate()
	require.NoError(t, err)
	require.Len(t, paths, 3)
	for _, name := range []string{"trajectory.png", "confidence.png", "markers.png"} {
		info, err := os.Stat(filepath.Join(dir, name))
		require.NoError(t, err, name)
		assert.Positive(t, info.Size(), name)
	}
}

func TestPlotter_NoMarkers(t *testing.T) {
	t.Parallel()
	p := NewPlotter(t.TempDir(), "")
	p.Add(Sample{Seq: 1})
	p.Add(Sample{Seq: 2, Z: 1})
	paths, err := p.Generate()
	require.NoError(t, err)
	assert.Len(t, paths, 2)
}

func TestPalette(t *testing.T) {
	t.Parallel()
	assert.Nil(t, Palette(0))
	cs := Palette(6)
	require.Len(t, cs, 6)
	seen := map[[3]uint32]bool{}
	for _, c := range cs {
		r, g, b, a := c.RGBA()
		assert.Equal(t, uint32(0xffff), a)
		seen[[3]uint32{r, g, b}] = true
	}
	assert.Len(t, seen, 6)
}
