package l4motion

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/pose.report/internal/config"
	"github.com/banshee-data/pose.report/internal/vision/geom"
	"github.com/banshee-data/pose.report/internal/vision/l1frames"
)

// MinEightPoint is the minimal sample of the linear essential matrix solver.
const MinEightPoint = 8

// RANSACConfig controls the robust essential matrix fit.
type RANSACConfig struct {
	// Probability is the required confidence that at least one sample is
	// outlier-free.
	Probability float64
	// Threshold is the Sampson distance, in pixels, below which a pair is an
	// inlier.
	Threshold     float64
	MaxIterations int
	Seed          int64
}

// DefaultRANSACConfig returns the solver defaults.
func DefaultRANSACConfig() RANSACConfig {
	return RANSACConfigFromTuning(config.EmptyTuningConfig())
}

// RANSACConfigFromTuning builds a RANSACConfig from tuning values.
func RANSACConfigFromTuning(cfg *config.TuningConfig) RANSACConfig {
	return RANSACConfig{
		Probability:   cfg.GetEssentialMatProb(),
		Threshold:     cfg.GetEssentialMatThreshold(),
		MaxIterations: 1000,
		Seed:          1,
	}
}

// Solution is the full output of one essential matrix solve.
type Solution struct {
	E        [3][3]float64
	Rotation geom.Rotation3d
	// Translation is unit length.
	Translation r3.Vector
	Inliers     []bool
	InlierCount int
	// Cheiral is the number of inliers triangulated in front of both cameras
	// for the chosen decomposition.
	Cheiral int
}

// EightPointSolver implements PoseSolver with a RANSAC normalised
// eight-point essential matrix fit followed by the four-fold decomposition
// and a cheirality vote. Every Solve starts from the configured seed, so the
// same input always yields the same answer.
type EightPointSolver struct {
	cfg RANSACConfig
}

// NewEightPointSolver creates a solver.
func NewEightPointSolver(cfg RANSACConfig) *EightPointSolver {
	if cfg.Probability <= 0 || cfg.Probability >= 1 {
		cfg.Probability = 0.999
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = 1
	}
	if cfg.MaxIterations < 1 {
		cfg.MaxIterations = 1000
	}
	return &EightPointSolver{cfg: cfg}
}

// MinPoints implements the minimal sample size query used by Estimator.
func (s *EightPointSolver) MinPoints() int { return MinEightPoint }

// Solve implements PoseSolver.
func (s *EightPointSolver) Solve(prev, curr []r2.Point, k *l1frames.CameraIntrinsics) (geom.Rotation3d, r3.Vector, error) {
	sol, err := s.SolveDetailed(prev, curr, k)
	if err != nil {
		return geom.Rotation3d{}, r3.Vector{}, err
	}
	return sol.Rotation, sol.Translation, nil
}

// SolveDetailed is Solve that also reports the essential matrix and the
// inlier set.
func (s *EightPointSolver) SolveDetailed(prev, curr []r2.Point, k *l1frames.CameraIntrinsics) (*Solution, error) {
	n := len(prev)
	if n != len(curr) {
		return nil, fmt.Errorf("%w: %d previous vs %d current points", ErrSolver, n, len(curr))
	}
	if n < MinEightPoint {
		return nil, fmt.Errorf("%w: %d < %d", ErrTooFewPoints, n, MinEightPoint)
	}

	// x1 is the current view and x2 the previous one: x2ᵀ·E·x1 = 0.
	x1 := make([]r2.Point, n)
	x2 := make([]r2.Point, n)
	for i := range prev {
		x1[i] = k.Normalize(curr[i])
		x2[i] = k.Normalize(prev[i])
	}
	thr := s.cfg.Threshold / k.FocalMean()
	thr2 := thr * thr

	rng := rand.New(rand.NewSource(s.cfg.Seed))
	sample := make([]int, MinEightPoint)
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}

	var (
		bestE     [3][3]float64
		bestMask  []bool
		bestCount int
	)
	iters := s.cfg.MaxIterations
	for it := 0; it < iters; it++ {
		// Partial Fisher-Yates draws MinEightPoint distinct indices.
		for j := 0; j < MinEightPoint; j++ {
			r := j + rng.Intn(n-j)
			perm[j], perm[r] = perm[r], perm[j]
			sample[j] = perm[j]
		}
		E, err := eightPoint(x1, x2, sample)
		if err != nil {
			continue
		}
		mask, count := sampsonInliers(E, x1, x2, thr2)
		if count > bestCount {
			bestE, bestMask, bestCount = E, mask, count
			if need := ransacIterations(s.cfg.Probability, float64(count)/float64(n), MinEightPoint); need < iters {
				iters = need
			}
		}
	}
	if bestMask == nil || bestCount < MinEightPoint {
		return nil, fmt.Errorf("%w: no consistent essential matrix", ErrDegenerate)
	}

	// Refit on every inlier and keep the refit when it does not lose support.
	idx := make([]int, 0, bestCount)
	for i, in := range bestMask {
		if in {
			idx = append(idx, i)
		}
	}
	if E, err := eightPoint(x1, x2, idx); err == nil {
		if mask, count := sampsonInliers(E, x1, x2, thr2); count >= bestCount {
			bestE, bestMask, bestCount = E, mask, count
		}
	}

	rot, t, cheiral, err := recoverPose(bestE, x1, x2, bestMask)
	if err != nil {
		return nil, err
	}
	return &Solution{
		E:           bestE,
		Rotation:    rot,
		Translation: t,
		Inliers:     bestMask,
		InlierCount: bestCount,
		Cheiral:     cheiral,
	}, nil
}

// ransacIterations is the number of samples needed to draw one clean
// sample with the given confidence when a fraction w of the data is good.
func ransacIterations(p, w float64, m int) int {
	if w >= 1 {
		return 1
	}
	if w <= 0 {
		return math.MaxInt32
	}
	denom := math.Log(1 - math.Pow(w, float64(m)))
	if denom >= 0 {
		return math.MaxInt32
	}
	n := math.Ceil(math.Log(1-p) / denom)
	if n > math.MaxInt32 {
		return math.MaxInt32
	}
	if n < 1 {
		return 1
	}
	return int(n)
}

// hartley returns the similarity taking pts[idx] to zero mean and mean
// distance √2 from the origin.
func hartley(pts []r2.Point, idx []int) (scale, cx, cy float64) {
	xs := make([]float64, len(idx))
	ys := make([]float64, len(idx))
	for j, i := range idx {
		xs[j], ys[j] = pts[i].X, pts[i].Y
	}
	cx = floats.Sum(xs) / float64(len(idx))
	cy = floats.Sum(ys) / float64(len(idx))
	var mean float64
	for j := range xs {
		mean += math.Hypot(xs[j]-cx, ys[j]-cy)
	}
	mean /= float64(len(idx))
	if mean < 1e-15 {
		return 1, cx, cy
	}
	return math.Sqrt2 / mean, cx, cy
}

// eightPoint fits an essential matrix to the pairs listed in idx and
// projects it onto the essential manifold.
func eightPoint(x1, x2 []r2.Point, idx []int) ([3][3]float64, error) {
	var E [3][3]float64
	s1, c1x, c1y := hartley(x1, idx)
	s2, c2x, c2y := hartley(x2, idx)

	// Accumulate AᵀA directly; A itself is never needed.
	acc := make([]float64, 81)
	for _, i := range idx {
		u1, v1 := s1*(x1[i].X-c1x), s1*(x1[i].Y-c1y)
		u2, v2 := s2*(x2[i].X-c2x), s2*(x2[i].Y-c2y)
		row := [9]float64{u2 * u1, u2 * v1, u2, v2 * u1, v2 * v1, v2, u1, v1, 1}
		for a := 0; a < 9; a++ {
			for b := a; b < 9; b++ {
				acc[a*9+b] += row[a] * row[b]
			}
		}
	}
	ata := mat.NewSymDense(9, acc)

	var es mat.EigenSym
	if !es.Factorize(ata, true) {
		return E, fmt.Errorf("%w: eigendecomposition failed", ErrSolver)
	}
	vals := es.Values(nil)
	var vecs mat.Dense
	es.VectorsTo(&vecs)

	lo, second := 0, -1
	for i := 1; i < len(vals); i++ {
		if vals[i] < vals[lo] {
			lo = i
		}
	}
	maxVal := floats.Max(vals)
	for i := range vals {
		if i != lo && (second < 0 || vals[i] < vals[second]) {
			second = i
		}
	}
	if maxVal <= 0 || vals[second] <= 1e-12*maxVal {
		return E, ErrDegenerate
	}

	var f [3][3]float64
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			f[r][c] = vecs.At(r*3+c, lo)
		}
	}

	// Undo the normalisation: E = T2ᵀ·F·T1.
	t1 := [3][3]float64{{s1, 0, -s1 * c1x}, {0, s1, -s1 * c1y}, {0, 0, 1}}
	t2 := [3][3]float64{{s2, 0, -s2 * c2x}, {0, s2, -s2 * c2y}, {0, 0, 1}}
	E = geom.Mul3(geom.Transpose3(t2), f, t1)

	// Project onto the essential manifold: equal singular values, rank two.
	u, v, ok := svd3(E)
	if !ok {
		return E, fmt.Errorf("%w: SVD failed", ErrSolver)
	}
	E = geom.Mul3(u, [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 0}}, geom.Transpose3(v))
	return E, nil
}

// sampsonInliers marks the pairs whose squared Sampson distance is below
// thr2.
func sampsonInliers(E [3][3]float64, x1, x2 []r2.Point, thr2 float64) ([]bool, int) {
	mask := make([]bool, len(x1))
	count := 0
	for i := range x1 {
		if sampson(E, x1[i], x2[i]) < thr2 {
			mask[i] = true
			count++
		}
	}
	return mask, count
}

func sampson(E [3][3]float64, p1, p2 r2.Point) float64 {
	a := [3]float64{p1.X, p1.Y, 1}
	b := [3]float64{p2.X, p2.Y, 1}
	var ea, etb [3]float64
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			ea[r] += E[r][c] * a[c]
			etb[r] += E[c][r] * b[c]
		}
	}
	num := b[0]*ea[0] + b[1]*ea[1] + b[2]*ea[2]
	den := ea[0]*ea[0] + ea[1]*ea[1] + etb[0]*etb[0] + etb[1]*etb[1]
	if den < 1e-300 {
		return math.Inf(1)
	}
	return num * num / den
}

// recoverPose decomposes E into its four (R, t) candidates and keeps the
// one that places the most inliers in front of both cameras.
func recoverPose(E [3][3]float64, x1, x2 []r2.Point, mask []bool) (geom.Rotation3d, r3.Vector, int, error) {
	u, v, ok := svd3(E)
	if !ok {
		return geom.Rotation3d{}, r3.Vector{}, 0, fmt.Errorf("%w: SVD failed", ErrSolver)
	}
	if geom.Det3(u) < 0 {
		u = geom.Scale3(-1, u)
	}
	if geom.Det3(v) < 0 {
		v = geom.Scale3(-1, v)
	}
	w := [3][3]float64{{0, -1, 0}, {1, 0, 0}, {0, 0, 1}}
	vt := geom.Transpose3(v)
	r1 := geom.Mul3(u, w, vt)
	r2m := geom.Mul3(u, geom.Transpose3(w), vt)
	t := r3.Vector{X: u[0][2], Y: u[1][2], Z: u[2][2]}

	type candidate struct {
		r [3][3]float64
		t r3.Vector
	}
	cands := []candidate{{r1, t}, {r1, t.Mul(-1)}, {r2m, t}, {r2m, t.Mul(-1)}}
	best, bestCount := -1, 0
	for ci, c := range cands {
		n := 0
		for i := range x1 {
			if mask != nil && !mask[i] {
				continue
			}
			if inFront(c.r, c.t, x1[i], x2[i]) {
				n++
			}
		}
		if n > bestCount {
			best, bestCount = ci, n
		}
	}
	if best < 0 {
		return geom.Rotation3d{}, r3.Vector{}, 0, fmt.Errorf("%w: no decomposition passes cheirality", ErrDegenerate)
	}

	rot, err := geom.NewRotationFromMatrix(cands[best].r)
	if err != nil {
		return geom.Rotation3d{}, r3.Vector{}, 0, fmt.Errorf("%w: %v", ErrSolver, err)
	}
	return rot, cands[best].t.Normalize(), bestCount, nil
}

// inFront triangulates one pair with P1 = [I|0] and P2 = [R|t] and reports
// whether the point has positive depth in both cameras.
func inFront(R [3][3]float64, t r3.Vector, p1, p2 r2.Point) bool {
	p2m := [3][4]float64{
		{R[0][0], R[0][1], R[0][2], t.X},
		{R[1][0], R[1][1], R[1][2], t.Y},
		{R[2][0], R[2][1], R[2][2], t.Z},
	}
	a := mat.NewDense(4, 4, []float64{
		-1, 0, p1.X, 0,
		0, -1, p1.Y, 0,
		p2.X*p2m[2][0] - p2m[0][0], p2.X*p2m[2][1] - p2m[0][1], p2.X*p2m[2][2] - p2m[0][2], p2.X*p2m[2][3] - p2m[0][3],
		p2.Y*p2m[2][0] - p2m[1][0], p2.Y*p2m[2][1] - p2m[1][1], p2.Y*p2m[2][2] - p2m[1][2], p2.Y*p2m[2][3] - p2m[1][3],
	})
	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDFull) {
		return false
	}
	var v mat.Dense
	svd.VTo(&v)
	w := v.At(3, 3)
	if math.Abs(w) < 1e-12 {
		return false
	}
	X := r3.Vector{X: v.At(0, 3) / w, Y: v.At(1, 3) / w, Z: v.At(2, 3) / w}
	z2 := R[2][0]*X.X + R[2][1]*X.Y + R[2][2]*X.Z + t.Z
	return X.Z > 0 && z2 > 0
}

func svd3(m [3][3]float64) (u, v [3][3]float64, ok bool) {
	var svd mat.SVD
	if !svd.Factorize(geom.Dense3(m), mat.SVDFull) {
		return u, v, false
	}
	var um, vm mat.Dense
	svd.UTo(&um)
	svd.VTo(&vm)
	return geom.Array3(&um), geom.Array3(&vm), true
}
