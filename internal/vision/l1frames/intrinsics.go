package l1frames

import (
	"errors"
	"fmt"
	"image"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// ErrInvalidIntrinsics is returned when a camera matrix or image size cannot
// describe a pinhole camera.
var ErrInvalidIntrinsics = errors.New("invalid camera intrinsics")

// CameraIntrinsics is the pinhole model of the calibrated camera. It is
// immutable once built; reconfiguration replaces it wholesale.
type CameraIntrinsics struct {
	k      [9]float64 // row-major
	width  int
	height int
}

// NewCameraIntrinsics validates a row-major 3x3 camera matrix and the image
// size it was calibrated at.
func NewCameraIntrinsics(k [9]float64, width, height int) (*CameraIntrinsics, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: image size %dx%d", ErrInvalidIntrinsics, width, height)
	}
	if k[0] <= 0 || k[4] <= 0 {
		return nil, fmt.Errorf("%w: focal lengths fx=%f fy=%f", ErrInvalidIntrinsics, k[0], k[4])
	}
	if k[6] != 0 || k[7] != 0 || k[8] == 0 {
		return nil, fmt.Errorf("%w: last row must be [0 0 s], got %v", ErrInvalidIntrinsics, k[6:])
	}
	if k[8] != 1 {
		for i := range k {
			k[i] /= k[8]
		}
	}
	return &CameraIntrinsics{k: k, width: width, height: height}, nil
}

// NewPinholeIntrinsics is a convenience constructor for a skew-free camera.
func NewPinholeIntrinsics(fx, fy, cx, cy float64, width, height int) (*CameraIntrinsics, error) {
	return NewCameraIntrinsics([9]float64{fx, 0, cx, 0, fy, cy, 0, 0, 1}, width, height)
}

func (c *CameraIntrinsics) Fx() float64   { return c.k[0] }
func (c *CameraIntrinsics) Fy() float64   { return c.k[4] }
func (c *CameraIntrinsics) Cx() float64   { return c.k[2] }
func (c *CameraIntrinsics) Cy() float64   { return c.k[5] }
func (c *CameraIntrinsics) Skew() float64 { return c.k[1] }
func (c *CameraIntrinsics) Width() int    { return c.width }
func (c *CameraIntrinsics) Height() int   { return c.height }

// K returns a copy of the row-major camera matrix.
func (c *CameraIntrinsics) K() [9]float64 { return c.k }

// Matrix returns the camera matrix as a gonum matrix.
func (c *CameraIntrinsics) Matrix() *mat.Dense {
	k := c.k
	return mat.NewDense(3, 3, k[:])
}

// FocalMean is the mean of the two focal lengths, used to convert pixel
// thresholds into normalised image units.
func (c *CameraIntrinsics) FocalMean() float64 {
	return 0.5 * (c.k[0] + c.k[4])
}

// Normalize maps a pixel to normalised image coordinates (K⁻¹ applied).
func (c *CameraIntrinsics) Normalize(p r2.Point) r2.Point {
	y := (p.Y - c.k[5]) / c.k[4]
	x := (p.X - c.k[2] - c.k[1]*y) / c.k[0]
	return r2.Point{X: x, Y: y}
}

// Denormalize maps normalised image coordinates back to pixels.
func (c *CameraIntrinsics) Denormalize(p r2.Point) r2.Point {
	return r2.Point{
		X: c.k[0]*p.X + c.k[1]*p.Y + c.k[2],
		Y: c.k[4]*p.Y + c.k[5],
	}
}

// Project maps a point in the optical (EDN) camera frame to a pixel. It
// returns false for points at or behind the image plane.
func (c *CameraIntrinsics) Project(v r3.Vector) (r2.Point, bool) {
	if v.Z <= 1e-12 {
		return r2.Point{}, false
	}
	return c.Denormalize(r2.Point{X: v.X / v.Z, Y: v.Y / v.Z}), true
}

// InBounds reports whether p lies inside the calibrated image.
func (c *CameraIntrinsics) InBounds(p r2.Point) bool {
	return p.X >= 0 && p.Y >= 0 && p.X <= float64(c.width-1) && p.Y <= float64(c.height-1)
}

// Matches reports whether an image has the calibrated size.
func (c *CameraIntrinsics) Matches(b image.Rectangle) bool {
	return b.Dx() == c.width && b.Dy() == c.height
}
