package ekf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"

	slam "github.com/milosgajdos/go-slam"
	"github.com/milosgajdos/go-slam/state"
)

// newJointWithLandmark builds a joint state with one landmark at lm and small
// diagonal uncertainty everywhere.
func newJointWithLandmark(t *testing.T, lm []float64) *state.Joint {
	t.Helper()

	pose := mat.NewVecDense(slam.PoseDim, nil)
	poseCov := mat.NewSymDense(slam.PoseDim, nil)
	for i := 0; i < slam.PoseDim; i++ {
		poseCov.SetSym(i, i, 1e-4)
	}

	j, err := state.New(pose, poseCov)
	assert.NoError(t, err)

	lmCov := mat.NewDense(slam.LandmarkDim, slam.LandmarkDim, nil)
	for i := 0; i < slam.LandmarkDim; i++ {
		lmCov.Set(i, i, 1e-4)
	}
	cross := mat.NewDense(slam.LandmarkDim, j.Dim(), nil)

	_, err = j.Augment(mat.NewVecDense(slam.LandmarkDim, lm), lmCov, cross)
	assert.NoError(t, err)

	return j
}

func TestNewAssociator(t *testing.T) {
	assert := assert.New(t)

	a, err := NewAssociator(om, r, 7.8, 1e-3, 0, nil)
	assert.NotNil(a)
	assert.NoError(err)

	a, err = NewAssociator(nil, r, 7.8, 1e-3, 0, nil)
	assert.Nil(a)
	assert.Error(err)

	a, err = NewAssociator(om, r, -1.0, 1e-3, 0, nil)
	assert.Nil(a)
	assert.Error(err)
}

func TestAssociateMatchesTrackedLandmark(t *testing.T) {
	assert := assert.New(t)

	j := newJointWithLandmark(t, []float64{3.0, 1.0, 0.5})
	a, err := NewAssociator(om, r, 7.8, 1e-3, 0, nil)
	assert.NoError(err)

	z, err := om.Observe(j.Pose(), mat.NewVecDense(slam.LandmarkDim, []float64{3.0, 1.0, 0.5}))
	assert.NoError(err)

	assocs, singular, err := a.Associate(j, []slam.Measurement{{Z: z}})
	assert.NoError(err)
	assert.Zero(singular)
	assert.Len(assocs, 1)
	assert.False(assocs[0].New)
	assert.Equal(0, assocs[0].LandmarkID)
	assert.InDelta(0.0, assocs[0].Distance, 1e-9)
}

func TestAssociateCoarseGateExcludesFarLandmarks(t *testing.T) {
	assert := assert.New(t)

	j := newJointWithLandmark(t, []float64{50.0, 50.0, 0.0})

	// coarse pre-gate of 1m: the tracked landmark is far outside it, so the
	// measurement never reaches Mahalanobis scoring and comes back new
	a, err := NewAssociator(om, r, 7.8, 1e-3, 1.0, nil)
	assert.NoError(err)

	z, err := om.Observe(j.Pose(), mat.NewVecDense(slam.LandmarkDim, []float64{2.0, 0.0, 0.0}))
	assert.NoError(err)

	assocs, _, err := a.Associate(j, []slam.Measurement{{Z: z}})
	assert.NoError(err)
	assert.Len(assocs, 1)
	assert.True(assocs[0].New)
}

func TestAssociateSingularInnovation(t *testing.T) {
	assert := assert.New(t)

	// zero joint covariance and no measurement noise make S exactly singular
	pose := mat.NewVecDense(slam.PoseDim, nil)
	j, err := state.New(pose, mat.NewSymDense(slam.PoseDim, nil))
	assert.NoError(err)
	_, err = j.Augment(
		mat.NewVecDense(slam.LandmarkDim, []float64{2.0, 0.0, 0.0}),
		mat.NewDense(slam.LandmarkDim, slam.LandmarkDim, nil),
		mat.NewDense(slam.LandmarkDim, j.Dim(), nil),
	)
	assert.NoError(err)

	a, err := NewAssociator(om, nil, 7.8, 1e-3, 0, nil)
	assert.NoError(err)

	z, err := om.Observe(j.Pose(), mat.NewVecDense(slam.LandmarkDim, []float64{2.0, 0.0, 0.0}))
	assert.NoError(err)

	assocs, singular, err := a.Associate(j, []slam.Measurement{{Z: z}})
	assert.NoError(err)
	assert.Equal(1, singular)
	// the only candidate was excluded, so the measurement is flagged new
	assert.Len(assocs, 1)
	assert.True(assocs[0].New)
}

func TestAssociateEmptyMap(t *testing.T) {
	assert := assert.New(t)

	pose := mat.NewVecDense(slam.PoseDim, nil)
	j, err := state.New(pose, mat.NewSymDense(slam.PoseDim, nil))
	assert.NoError(err)

	a, err := NewAssociator(om, r, 7.8, 1e-3, 0, nil)
	assert.NoError(err)

	z, err := om.Observe(j.Pose(), mat.NewVecDense(slam.LandmarkDim, []float64{1.0, 1.0, 0.0}))
	assert.NoError(err)

	assocs, _, err := a.Associate(j, []slam.Measurement{{Z: z}})
	assert.NoError(err)
	assert.Len(assocs, 1)
	assert.True(assocs[0].New)
}
