package geom

import "gonum.org/v1/gonum/mat"

// Dense3 returns m as a row-major gonum matrix.
func Dense3(m [3][3]float64) *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		m[0][0], m[0][1], m[0][2],
		m[1][0], m[1][1], m[1][2],
		m[2][0], m[2][1], m[2][2],
	})
}

// Array3 copies the top-left 3x3 block of a.
func Array3(a mat.Matrix) [3][3]float64 {
	var out [3][3]float64
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			out[r][c] = a.At(r, c)
		}
	}
	return out
}

// Mul3 returns the product of the given matrices, left to right.
func Mul3(first [3][3]float64, rest ...[3][3]float64) [3][3]float64 {
	acc := Dense3(first)
	for _, m := range rest {
		var p mat.Dense
		p.Mul(acc, Dense3(m))
		acc = &p
	}
	return Array3(acc)
}

// Transpose3 returns mᵀ.
func Transpose3(m [3][3]float64) [3][3]float64 {
	return Array3(Dense3(m).T())
}

// Scale3 returns s·m.
func Scale3(s float64, m [3][3]float64) [3][3]float64 {
	var d mat.Dense
	d.Scale(s, Dense3(m))
	return Array3(&d)
}

// Det3 returns the determinant of m.
func Det3(m [3][3]float64) float64 {
	return mat.Det(Dense3(m))
}
