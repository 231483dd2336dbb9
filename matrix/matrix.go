package matrix

import (
	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/mat"
)

// Eye returns n x n identity matrix.
// It panics if n is negative.
func Eye(n int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1.0)
	}

	return m
}

// Symmetrize overwrites m with (m + m')/2.
// It panics if m is not square.
func Symmetrize(m *mat.Dense) {
	r, c := m.Dims()
	if r != c {
		panic("matrix: symmetrize of non-square matrix")
	}

	for i := 0; i < r; i++ {
		for j := i + 1; j < c; j++ {
			v := 0.5 * (m.At(i, j) + m.At(j, i))
			m.Set(i, j, v)
			m.Set(j, i, v)
		}
	}
}

// IsConsistent reports whether m is symmetric within tol and has a
// non-negative diagonal.
func IsConsistent(m *mat.Dense, tol float64) bool {
	r, c := m.Dims()
	if r != c {
		return false
	}

	for i := 0; i < r; i++ {
		if m.At(i, i) < -tol {
			return false
		}
		for j := i + 1; j < c; j++ {
			if !scalar.EqualWithinAbs(m.At(i, j), m.At(j, i), tol) {
				return false
			}
		}
	}

	return true
}

// ToSym returns a symmetric copy of m, averaging mismatched off-diagonal
// entries. It panics if m is not square.
func ToSym(m *mat.Dense) *mat.SymDense {
	r, c := m.Dims()
	if r != c {
		panic("matrix: ToSym of non-square matrix")
	}

	s := mat.NewSymDense(r, nil)
	for i := 0; i < r; i++ {
		for j := i; j < c; j++ {
			s.SetSym(i, j, 0.5*(m.At(i, j)+m.At(j, i)))
		}
	}

	return s
}
