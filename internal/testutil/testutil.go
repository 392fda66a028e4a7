// Package testutil provides shared test utilities and fixtures.
//
// This package centralises the synthetic images, scenes and camera models
// used across the vision layer tests.
package testutil

import (
	"image"
	"math"
	"math/rand"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"

	"github.com/banshee-data/pose.report/internal/vision/geom"
	"github.com/banshee-data/pose.report/internal/vision/l1frames"
)

// Intrinsics returns a 640x480 pinhole camera with a 500 px focal length.
func Intrinsics(t testing.TB) *l1frames.CameraIntrinsics {
	t.Helper()
	k, err := l1frames.NewPinholeIntrinsics(500, 500, 320, 240, 640, 480)
	if err != nil {
		t.Fatalf("intrinsics: %v", err)
	}
	return k
}

// BlockTexture fills a w x h image with block x block squares of random
// intensity. Junctions between squares are strong FAST corners.
func BlockTexture(w, h, block int, seed int64) *image.Gray {
	rng := rand.New(rand.NewSource(seed))
	cols := (w + block - 1) / block
	rows := (h + block - 1) / block
	vals := make([]uint8, cols*rows)
	for i := range vals {
		vals[i] = uint8(rng.Intn(256))
	}
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Pix[y*img.Stride+x] = vals[(y/block)*cols+x/block]
		}
	}
	return img
}

// SmoothTexture renders a band-limited sinusoidal pattern shifted by
// (dx, dy) pixels, so SmoothTexture(w, h, dx, dy) at p equals
// SmoothTexture(w, h, 0, 0) at p - (dx, dy).
func SmoothTexture(w, h int, dx, dy float64) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			u, v := float64(x)-dx, float64(y)-dy
			val := 128 +
				50*math.Sin(u/4.5)*math.Cos(v/5) +
				35*math.Sin((u+v)/8) +
				25*math.Cos((u-2*v)/7)
			img.Pix[y*img.Stride+x] = uint8(math.Max(0, math.Min(255, math.Round(val))))
		}
	}
	return img
}

// Uniform returns a featureless image.
func Uniform(w, h int, v uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return img
}

// RandomScene returns n points in the optical (EDN) world frame inside a
// box in front of the origin: |x| <= spread, |y| <= spread, z in
// [near, far].
func RandomScene(n int, spread, near, far float64, seed int64) []r3.Vector {
	rng := rand.New(rand.NewSource(seed))
	pts := make([]r3.Vector, n)
	for i := range pts {
		pts[i] = r3.Vector{
			X: (rng.Float64()*2 - 1) * spread,
			Y: (rng.Float64()*2 - 1) * spread,
			Z: near + rng.Float64()*(far-near),
		}
	}
	return pts
}

// Project images world points through a camera whose pose in the world is
// camera (optical convention). Points behind the camera are reported with
// ok[i] == false.
func Project(k *l1frames.CameraIntrinsics, camera geom.Pose3d, world []r3.Vector) ([]r2.Point, []bool) {
	out := make([]r2.Point, len(world))
	ok := make([]bool, len(world))
	inv := camera.Rotation.Inverse()
	for i, p := range world {
		out[i], ok[i] = k.Project(inv.Rotate(p.Sub(camera.Translation)))
	}
	return out, ok
}

// Correspondences projects a scene through two camera poses and returns the
// index-aligned pixel pairs visible in both views.
func Correspondences(k *l1frames.CameraIntrinsics, prevCam, currCam geom.Pose3d, world []r3.Vector) (prev, curr []r2.Point) {
	p, okP := Project(k, prevCam, world)
	c, okC := Project(k, currCam, world)
	for i := range world {
		if okP[i] && okC[i] && k.InBounds(p[i]) && k.InBounds(c[i]) {
			prev = append(prev, p[i])
			curr = append(curr, c[i])
		}
	}
	return prev, curr
}
