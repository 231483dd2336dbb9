package estimate

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	slam "github.com/milosgajdos/go-slam"
)

// Base is a state estimate with covariance
type Base struct {
	// val is estimated value
	val *mat.VecDense
	// cov is estimate covariance
	cov *mat.SymDense
}

// New returns an estimate of val with covariance cov.
// It returns error if val and cov dimensions do not match.
func New(val mat.Vector, cov mat.Symmetric) (*Base, error) {
	if val == nil || cov == nil || val.Len() != cov.SymmetricDim() {
		return nil, errors.Wrap(slam.ErrDimensionMismatch, "estimate value and covariance")
	}

	v := &mat.VecDense{}
	v.CloneFromVec(val)

	c := mat.NewSymDense(cov.SymmetricDim(), nil)
	c.CopySym(cov)

	return &Base{
		val: v,
		cov: c,
	}, nil
}

// Val returns estimated value
func (b *Base) Val() mat.Vector {
	v := &mat.VecDense{}
	v.CloneFromVec(b.val)

	return v
}

// Cov returns covariance estimate
func (b *Base) Cov() mat.Symmetric {
	cov := mat.NewSymDense(b.cov.SymmetricDim(), nil)
	cov.CopySym(b.cov)

	return cov
}

// Landmark is a landmark position estimate bound to its stable identifier.
type Landmark struct {
	*Base
	// ID is the landmark identifier
	ID int
}

// NewLandmark returns a landmark estimate for id.
func NewLandmark(id int, val mat.Vector, cov mat.Symmetric) (*Landmark, error) {
	b, err := New(val, cov)
	if err != nil {
		return nil, err
	}

	return &Landmark{
		Base: b,
		ID:   id,
	}, nil
}
