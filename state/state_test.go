package state

import (
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"

	slam "github.com/milosgajdos/go-slam"
)

var (
	pose    *mat.VecDense
	poseCov *mat.SymDense
)

func setup() {
	pose = mat.NewVecDense(slam.PoseDim, []float64{1.0, 2.0, 0.5, 0.0, 0.0, 0.1})
	poseCov = mat.NewSymDense(slam.PoseDim, nil)
	for i := 0; i < slam.PoseDim; i++ {
		poseCov.SetSym(i, i, 0.1)
	}
}

func TestMain(m *testing.M) {
	setup()
	os.Exit(m.Run())
}

func newLandmarkBlocks(j *Joint) (mat.Vector, *mat.Dense, *mat.Dense) {
	mean := mat.NewVecDense(slam.LandmarkDim, []float64{5.0, 6.0, 7.0})
	lmCov := mat.NewDense(slam.LandmarkDim, slam.LandmarkDim, nil)
	for i := 0; i < slam.LandmarkDim; i++ {
		lmCov.Set(i, i, 0.5)
	}
	cross := mat.NewDense(slam.LandmarkDim, j.Dim(), nil)

	return mean, lmCov, cross
}

func TestNew(t *testing.T) {
	assert := assert.New(t)

	j, err := New(pose, poseCov)
	assert.NotNil(j)
	assert.NoError(err)
	assert.Equal(slam.PoseDim, j.Dim())
	assert.Equal(slam.PoseDim, j.PoseDim())
	assert.Equal(0, j.NumLandmarks())

	// mismatched covariance dimension
	j, err = New(pose, mat.NewSymDense(3, nil))
	assert.Nil(j)
	assert.ErrorIs(err, slam.ErrDimensionMismatch)

	j, err = New(nil, poseCov)
	assert.Nil(j)
	assert.ErrorIs(err, slam.ErrDimensionMismatch)
}

func TestAugment(t *testing.T) {
	assert := assert.New(t)

	j, err := New(pose, poseCov)
	assert.NoError(err)

	mean, lmCov, cross := newLandmarkBlocks(j)
	id, err := j.Augment(mean, lmCov, cross)
	assert.NoError(err)
	assert.Equal(0, id)
	assert.Equal(slam.PoseDim+slam.LandmarkDim, j.Dim())
	assert.Equal(1, j.NumLandmarks())
	assert.NoError(j.Check())

	got, err := j.LandmarkMean(id)
	assert.NoError(err)
	assert.InDelta(5.0, got.AtVec(0), 1e-12)
	assert.InDelta(7.0, got.AtVec(2), 1e-12)

	lc, err := j.LandmarkCov(id)
	assert.NoError(err)
	assert.InDelta(0.5, lc.At(0, 0), 1e-12)

	// ids increase monotonically
	mean2, lmCov2, cross2 := newLandmarkBlocks(j)
	id2, err := j.Augment(mean2, lmCov2, cross2)
	assert.NoError(err)
	assert.Equal(1, id2)
	assert.Equal([]int{0, 1}, j.IDs())

	// wrong cross covariance width is a dimension fault
	badCross := mat.NewDense(slam.LandmarkDim, 2, nil)
	_, err = j.Augment(mean, lmCov, badCross)
	assert.ErrorIs(err, slam.ErrDimensionMismatch)

	_, err = j.Augment(mat.NewVecDense(2, nil), lmCov, cross)
	assert.ErrorIs(err, slam.ErrDimensionMismatch)
}

func TestRemove(t *testing.T) {
	assert := assert.New(t)

	j, err := New(pose, poseCov)
	assert.NoError(err)

	var ids []int
	for i := 0; i < 3; i++ {
		mean, lmCov, cross := newLandmarkBlocks(j)
		mean.(*mat.VecDense).SetVec(0, float64(10+i))
		id, err := j.Augment(mean, lmCov, cross)
		assert.NoError(err)
		ids = append(ids, id)
	}
	assert.Equal(slam.PoseDim+3*slam.LandmarkDim, j.Dim())

	// remove the middle landmark: the one behind it shifts down
	assert.NoError(j.Remove(ids[1]))
	assert.Equal(slam.PoseDim+2*slam.LandmarkDim, j.Dim())
	assert.Equal([]int{ids[0], ids[2]}, j.IDs())
	assert.NoError(j.Check())

	off, err := j.Offset(ids[2])
	assert.NoError(err)
	assert.Equal(slam.PoseDim+slam.LandmarkDim, off)

	m, err := j.LandmarkMean(ids[2])
	assert.NoError(err)
	assert.InDelta(12.0, m.AtVec(0), 1e-12)

	// removal is terminal
	assert.ErrorIs(j.Remove(ids[1]), slam.ErrUnknownLandmark)

	// new ids are never reused
	mean, lmCov, cross := newLandmarkBlocks(j)
	id, err := j.Augment(mean, lmCov, cross)
	assert.NoError(err)
	assert.Equal(3, id)
}

func TestBookkeeping(t *testing.T) {
	assert := assert.New(t)

	j, err := New(pose, poseCov)
	assert.NoError(err)

	mean, lmCov, cross := newLandmarkBlocks(j)
	id, err := j.Augment(mean, lmCov, cross)
	assert.NoError(err)

	l, err := j.Landmark(id)
	assert.NoError(err)
	assert.Equal(Tracked, l.Status())
	assert.Equal(0, l.Misses())

	n, err := j.Missed(id)
	assert.NoError(err)
	assert.Equal(1, n)

	assert.NoError(j.MarkStale(id))
	l, err = j.Landmark(id)
	assert.NoError(err)
	assert.Equal(Stale, l.Status())

	assert.NoError(j.Observed(id))
	l, err = j.Landmark(id)
	assert.NoError(err)
	assert.Equal(Tracked, l.Status())
	assert.Equal(0, l.Misses())

	_, err = j.Missed(42)
	assert.ErrorIs(err, slam.ErrUnknownLandmark)
}

func TestCheck(t *testing.T) {
	assert := assert.New(t)

	j, err := New(pose, poseCov)
	assert.NoError(err)
	assert.NoError(j.Check())

	// symmetry violation is a consistency fault
	j.Cov().Set(0, 1, 1.0)
	assert.ErrorIs(j.Check(), slam.ErrCovarianceFault)

	// symmetrizing restores consistency
	j.Symmetrize()
	assert.NoError(j.Check())

	// negative diagonal is a consistency fault
	j.Cov().Set(0, 0, -1.0)
	assert.ErrorIs(j.Check(), slam.ErrCovarianceFault)
}

func TestClone(t *testing.T) {
	assert := assert.New(t)

	j, err := New(pose, poseCov)
	assert.NoError(err)

	mean, lmCov, cross := newLandmarkBlocks(j)
	id, err := j.Augment(mean, lmCov, cross)
	assert.NoError(err)

	c := j.Clone()
	assert.Equal(j.Dim(), c.Dim())
	assert.True(cmp.Equal(j.IDs(), c.IDs()))

	// mutating the clone leaves the original untouched
	c.Mean().SetVec(0, 99.0)
	c.Cov().Set(0, 0, 99.0)
	_, err = c.Missed(id)
	assert.NoError(err)
	assert.NoError(c.Remove(id))

	assert.InDelta(1.0, j.Mean().AtVec(0), 1e-12)
	assert.InDelta(0.1, j.Cov().At(0, 0), 1e-12)
	l, err := j.Landmark(id)
	assert.NoError(err)
	assert.Equal(0, l.Misses())
	assert.Equal(1, j.NumLandmarks())
}
