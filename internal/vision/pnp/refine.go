package pnp

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/optimize"

	"github.com/banshee-data/pose.report/internal/vision/geom"
	"github.com/banshee-data/pose.report/internal/vision/l1frames"
)

var (
	// ErrDegenerateHomography means the corner quadrilateral does not
	// determine a plane-to-image mapping.
	ErrDegenerateHomography = errors.New("degenerate homography")
	// ErrNotConverged means the reprojection refinement failed.
	ErrNotConverged = errors.New("pose refinement did not converge")
)

// DefaultMaxEvaluations caps cost evaluations per refinement.
const DefaultMaxEvaluations = 20000

// behindCamera is the per-point penalty for points at or behind the image
// plane, large enough that the simplex moves away from them.
const behindCamera = 1e12

// reprojection sums squared pixel residuals of camera-frame (EDN) points.
func reprojection(k *l1frames.CameraIntrinsics, cam []r3.Vector, img []r2.Point) float64 {
	var sum float64
	for i, p := range cam {
		px, ok := k.Project(p)
		if !ok {
			sum += behindCamera
			continue
		}
		d := px.Sub(img[i])
		sum += d.X*d.X + d.Y*d.Y
	}
	return sum
}

// rms converts a residual sum over n points to an RMS pixel error.
func rms(sum float64, n int) float64 {
	if n == 0 {
		return 0
	}
	return math.Sqrt(sum / float64(n))
}

// minimizePose refines a rigid pose, parameterised as a rotation vector
// and a translation, with Nelder-Mead. cost receives the candidate pose and
// returns the residual sum.
func minimizePose(r geom.Rotation3d, t r3.Vector, maxEvals int, cost func(geom.Rotation3d, r3.Vector) float64) (geom.Rotation3d, r3.Vector, float64, error) {
	unpack := func(x []float64) (geom.Rotation3d, r3.Vector) {
		return geom.NewRotationFromVector(r3.Vector{X: x[0], Y: x[1], Z: x[2]}), r3.Vector{X: x[3], Y: x[4], Z: x[5]}
	}
	rv := r.Vector()
	x0 := []float64{rv.X, rv.Y, rv.Z, t.X, t.Y, t.Z}

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			return cost(unpack(x))
		},
	}
	settings := &optimize.Settings{
		FuncEvaluations: maxEvals,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-12,
			Relative:   1e-10,
			Iterations: 100,
		},
	}

	result, err := optimize.Minimize(problem, x0, settings, &optimize.NelderMead{})
	if err != nil {
		return r, t, math.Inf(1), fmt.Errorf("%w: %v", ErrNotConverged, err)
	}
	if result.Status == optimize.Failure || math.IsNaN(result.F) || math.IsInf(result.F, 0) {
		return r, t, math.Inf(1), fmt.Errorf("%w: status %v", ErrNotConverged, result.Status)
	}
	rr, tt := unpack(result.X)
	return rr, tt, result.F, nil
}
