package matrix

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func TestEye(t *testing.T) {
	assert := assert.New(t)

	m := Eye(3)
	r, c := m.Dims()
	assert.Equal(3, r)
	assert.Equal(3, c)

	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if i == j {
				assert.Equal(1.0, m.At(i, j))
				continue
			}
			assert.Equal(0.0, m.At(i, j))
		}
	}
}

func TestSymmetrize(t *testing.T) {
	assert := assert.New(t)

	m := mat.NewDense(2, 2, []float64{1.0, 2.0, 4.0, 3.0})
	Symmetrize(m)

	assert.Equal(3.0, m.At(0, 1))
	assert.Equal(3.0, m.At(1, 0))
	assert.Equal(1.0, m.At(0, 0))

	assert.Panics(func() { Symmetrize(mat.NewDense(2, 3, nil)) })
}

func TestIsConsistent(t *testing.T) {
	assert := assert.New(t)

	ok := mat.NewDense(2, 2, []float64{1.0, 0.5, 0.5, 2.0})
	assert.True(IsConsistent(ok, 1e-10))

	asym := mat.NewDense(2, 2, []float64{1.0, 0.5, -0.5, 2.0})
	assert.False(IsConsistent(asym, 1e-10))

	negDiag := mat.NewDense(2, 2, []float64{-1.0, 0.0, 0.0, 2.0})
	assert.False(IsConsistent(negDiag, 1e-10))

	rect := mat.NewDense(2, 3, nil)
	assert.False(IsConsistent(rect, 1e-10))
}

func TestToSym(t *testing.T) {
	assert := assert.New(t)

	m := mat.NewDense(2, 2, []float64{1.0, 2.0, 4.0, 3.0})
	s := ToSym(m)

	assert.Equal(2, s.SymmetricDim())
	assert.Equal(3.0, s.At(0, 1))
	assert.Equal(3.0, s.At(1, 0))

	assert.Panics(func() { ToSym(mat.NewDense(2, 3, nil)) })
}
