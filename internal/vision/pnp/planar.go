package pnp

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/pose.report/internal/config"
	"github.com/banshee-data/pose.report/internal/vision/geom"
	"github.com/banshee-data/pose.report/internal/vision/l1frames"
	"github.com/banshee-data/pose.report/internal/vision/l6fusion"
)

// evaluationsPerIteration converts the tuning iteration budget into cost
// evaluations for the simplex search.
const evaluationsPerIteration = 500

// SolverConfig controls pose refinement.
type SolverConfig struct {
	MaxEvaluations int
}

// DefaultSolverConfig returns the built-in refinement budget.
func DefaultSolverConfig() SolverConfig {
	return SolverConfig{MaxEvaluations: DefaultMaxEvaluations}
}

// SolverConfigFromTuning derives the refinement budget from num_iterations.
func SolverConfigFromTuning(cfg *config.TuningConfig) SolverConfig {
	n := cfg.GetNumIterations()
	if n <= 0 {
		return DefaultSolverConfig()
	}
	return SolverConfig{MaxEvaluations: n * evaluationsPerIteration}
}

// PlanarSolver estimates a single marker's pose from its four corners. It
// seeds from the plane-to-image homography, refines by minimising pixel
// reprojection error and reports the mirrored-tilt alternative that planar
// targets always admit.
type PlanarSolver struct {
	k     *l1frames.CameraIntrinsics
	model TagModel
	cfg   SolverConfig
}

var _ l6fusion.SingleMarkerSolver = (*PlanarSolver)(nil)

// NewPlanarSolver returns a solver for markers of the given model.
func NewPlanarSolver(k *l1frames.CameraIntrinsics, model TagModel, cfg SolverConfig) *PlanarSolver {
	if cfg.MaxEvaluations <= 0 {
		cfg.MaxEvaluations = DefaultMaxEvaluations
	}
	return &PlanarSolver{k: k, model: model, cfg: cfg}
}

// Model returns the marker model the solver was built with.
func (s *PlanarSolver) Model() TagModel { return s.model }

// SolveSingle implements l6fusion.SingleMarkerSolver. Transforms are
// camera-to-marker in the optical (EDN) convention.
func (s *PlanarSolver) SolveSingle(det l6fusion.MarkerDetection) (l6fusion.PoseEstimate, error) {
	if s.k == nil {
		return l6fusion.PoseEstimate{}, errors.New("no camera intrinsics")
	}
	if s.model.Size <= 0 {
		return l6fusion.PoseEstimate{}, fmt.Errorf("invalid tag size %v", s.model.Size)
	}

	obj := s.model.Corners()
	img := det.Corners[:]

	r, t, err := s.homographyPose(obj, det.Corners)
	if err != nil {
		return l6fusion.PoseEstimate{}, err
	}

	cost := func(r geom.Rotation3d, t r3.Vector) float64 {
		var cam [4]r3.Vector
		for i, c := range obj {
			cam[i] = r.Rotate(c).Add(t)
		}
		return reprojection(s.k, cam[:], img)
	}

	bestR, bestT, bestF, err := minimizePose(r, t, s.cfg.MaxEvaluations, cost)
	if err != nil {
		return l6fusion.PoseEstimate{}, err
	}
	best := geom.NewTransform3d(bestT, bestR)
	bestErr := rms(bestF, len(obj))

	alt, altErr := best, bestErr
	if altR, ok := mirroredTilt(bestR, bestT); ok {
		ar, at, af, aerr := minimizePose(altR, bestT, s.cfg.MaxEvaluations, cost)
		if aerr == nil {
			alt, altErr = geom.NewTransform3d(at, ar), rms(af, len(obj))
		}
	}
	if altErr < bestErr {
		best, alt = alt, best
		bestErr, altErr = altErr, bestErr
	}

	return l6fusion.PoseEstimate{Best: best, Alt: alt, BestError: bestErr, AltError: altErr}, nil
}

// homographyPose decomposes the homography between the marker plane and the
// normalised image into an initial rotation and translation.
func (s *PlanarSolver) homographyPose(obj [4]r3.Vector, px [4]r2.Point) (geom.Rotation3d, r3.Vector, error) {
	half := s.model.Size / 2
	a := mat.NewDense(8, 9, nil)
	for i := 0; i < 4; i++ {
		x, y := obj[i].X/half, obj[i].Y/half
		p := s.k.Normalize(px[i])
		a.SetRow(2*i, []float64{x, y, 1, 0, 0, 0, -p.X * x, -p.X * y, -p.X})
		a.SetRow(2*i+1, []float64{0, 0, 0, x, y, 1, -p.Y * x, -p.Y * y, -p.Y})
	}

	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDFull) {
		return geom.Rotation3d{}, r3.Vector{}, ErrDegenerateHomography
	}
	vals := svd.Values(nil)
	if vals[7] <= 1e-10*vals[0] {
		return geom.Rotation3d{}, r3.Vector{}, ErrDegenerateHomography
	}
	var v mat.Dense
	svd.VTo(&v)
	h := mat.Col(nil, 8, &v)

	h1 := r3.Vector{X: h[0], Y: h[3], Z: h[6]}.Mul(1 / half)
	h2 := r3.Vector{X: h[1], Y: h[4], Z: h[7]}.Mul(1 / half)
	h3 := r3.Vector{X: h[2], Y: h[5], Z: h[8]}

	norm := h1.Norm() + h2.Norm()
	if norm < 1e-12 {
		return geom.Rotation3d{}, r3.Vector{}, ErrDegenerateHomography
	}
	lambda := 2 / norm
	if h3.Z < 0 {
		lambda = -lambda
	}
	r1, r2, t := h1.Mul(lambda), h2.Mul(lambda), h3.Mul(lambda)
	r3v := r1.Cross(r2)

	rot, err := geom.NearestRotation([3][3]float64{
		{r1.X, r2.X, r3v.X},
		{r1.Y, r2.Y, r3v.Y},
		{r1.Z, r2.Z, r3v.Z},
	})
	if err != nil {
		return geom.Rotation3d{}, r3.Vector{}, fmt.Errorf("%w: %v", ErrDegenerateHomography, err)
	}
	return rot, t, nil
}

// mirroredTilt returns the rotation whose marker normal is the reflection
// of r's about the line of sight to t. It reports false when the marker
// faces the camera head on and the two coincide.
func mirroredTilt(r geom.Rotation3d, t r3.Vector) (geom.Rotation3d, bool) {
	if t.Norm() < 1e-12 {
		return r, false
	}
	v := t.Normalize()
	n := r.Rotate(r3.Vector{Z: 1})
	m := v.Mul(2 * n.Dot(v)).Sub(n)
	axis := n.Cross(m)
	if axis.Norm() < 1e-9 {
		return r, false
	}
	angle := math.Atan2(axis.Norm(), n.Dot(m))
	return r.Plus(geom.NewRotationAxisAngle(axis, angle)), true
}
