package geom

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// NearestRotation returns the rotation closest to m in the Frobenius norm
// (the orthogonal polar factor U·Vᵀ of m's SVD, with the sign of the last
// singular direction flipped when needed to keep det = +1).
func NearestRotation(m [3][3]float64) (Rotation3d, error) {
	var svd mat.SVD
	if !svd.Factorize(Dense3(m), mat.SVDFull) {
		return Rotation3d{}, fmt.Errorf("%w: SVD failed", ErrNotRotation)
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	var r mat.Dense
	r.Mul(&u, v.T())
	if mat.Det(&r) < 0 {
		for i := 0; i < 3; i++ {
			u.Set(i, 2, -u.At(i, 2))
		}
		r.Mul(&u, v.T())
	}

	return NewRotationFromMatrix(Array3(&r))
}
