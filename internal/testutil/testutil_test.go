package testutil

import (
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/pose.report/internal/vision/geom"
)

func TestBlockTexture_Deterministic(t *testing.T) {
	t.Parallel()
	a := BlockTexture(64, 48, 6, 1)
	b := BlockTexture(64, 48, 6, 1)
	c := BlockTexture(64, 48, 6, 2)
	assert.Equal(t, a.Pix, b.Pix)
	assert.NotEqual(t, a.Pix, c.Pix)
	// Pixels inside one block share a value.
	assert.Equal(t, a.GrayAt(0, 0), a.GrayAt(5, 5))
}

func TestSmoothTexture_Shift(t *testing.T) {
	t.Parallel()
	base := SmoothTexture(80, 60, 0, 0)
	shifted := SmoothTexture(80, 60, 3, 2)
	assert.Equal(t, base.GrayAt(10, 10), shifted.GrayAt(13, 12))
}

func TestUniform(t *testing.T) {
	t.Parallel()
	img := Uniform(8, 8, 42)
	for _, v := range img.Pix {
		require.Equal(t, uint8(42), v)
	}
}

func TestProjectAndCorrespondences(t *testing.T) {
	t.Parallel()
	k := Intrinsics(t)
	world := []r3.Vector{{X: 0, Y: 0, Z: 5}, {X: 0, Y: 0, Z: -5}}

	px, ok := Project(k, geom.Pose3d{}, world)
	require.True(t, ok[0])
	assert.False(t, ok[1])
	assert.InDelta(t, 320, px[0].X, 1e-9)
	assert.InDelta(t, 240, px[0].Y, 1e-9)

	scene := RandomScene(50, 2, 4, 8, 7)
	moved := geom.NewPose3d(r3.Vector{X: 0.2}, geom.IdentityRotation())
	prev, curr := Correspondences(k, geom.Pose3d{}, moved, scene)
	require.Equal(t, len(prev), len(curr))
	require.NotEmpty(t, prev)
	// Moving the camera right moves the image left.
	for i := range prev {
		assert.Less(t, curr[i].X, prev[i].X)
	}
}
