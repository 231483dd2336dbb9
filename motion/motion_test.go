package motion

import (
	"math"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"

	slam "github.com/milosgajdos/go-slam"
)

var (
	pose *mat.VecDense
	dt   float64
)

func setup() {
	pose = mat.NewVecDense(slam.PoseDim, []float64{1.0, -2.0, 0.5, 0.1, -0.2, 0.7})
	dt = 0.1
}

func TestMain(m *testing.M) {
	setup()
	os.Exit(m.Run())
}

// numJacobian computes the numerical Jacobian of model propagation with
// respect to the pose at the given linearization point.
func numPoseJacobian(m slam.MotionModel, u mat.Vector) *mat.Dense {
	j := mat.NewDense(slam.PoseDim, slam.PoseDim, nil)
	fd.Jacobian(j, func(y, x []float64) {
		next, err := m.Propagate(mat.NewVecDense(len(x), x), u, dt)
		if err != nil {
			panic(err)
		}
		for i := range y {
			y[i] = next.AtVec(i)
		}
	}, mat.Col(nil, 0, pose), &fd.JacobianSettings{
		Formula:    fd.Central,
		Concurrent: true,
	})

	return j
}

func numCtrlJacobian(m slam.MotionModel, u mat.Vector) *mat.Dense {
	j := mat.NewDense(slam.PoseDim, u.Len(), nil)
	fd.Jacobian(j, func(y, x []float64) {
		next, err := m.Propagate(pose, mat.NewVecDense(len(x), x), dt)
		if err != nil {
			panic(err)
		}
		for i := range y {
			y[i] = next.AtVec(i)
		}
	}, mat.Col(nil, 0, u), &fd.JacobianSettings{
		Formula:    fd.Central,
		Concurrent: true,
	})

	return j
}

func TestVelocityPropagate(t *testing.T) {
	assert := assert.New(t)

	m := NewVelocity()
	u := mat.NewVecDense(VelocityCtrlDim, []float64{2.0, 0.5})

	next, err := m.Propagate(pose, u, dt)
	assert.NoError(err)

	yaw := pose.AtVec(5)
	assert.InDelta(pose.AtVec(0)+2.0*math.Cos(yaw)*dt, next.AtVec(0), 1e-12)
	assert.InDelta(pose.AtVec(1)+2.0*math.Sin(yaw)*dt, next.AtVec(1), 1e-12)
	assert.InDelta(pose.AtVec(2), next.AtVec(2), 1e-12)
	assert.InDelta(yaw+0.5*dt, next.AtVec(5), 1e-12)

	// yaw wraps back onto (-pi, pi]
	spun := mat.NewVecDense(slam.PoseDim, nil)
	spun.CopyVec(pose)
	spun.SetVec(5, math.Pi-0.01)
	next, err = m.Propagate(spun, mat.NewVecDense(2, []float64{0.0, 1.0}), 0.1)
	assert.NoError(err)
	assert.InDelta(-math.Pi+0.09, next.AtVec(5), 1e-9)

	// dimension checks
	_, err = m.Propagate(mat.NewVecDense(3, nil), u, dt)
	assert.ErrorIs(err, slam.ErrDimensionMismatch)
	_, err = m.Propagate(pose, mat.NewVecDense(3, nil), dt)
	assert.ErrorIs(err, slam.ErrDimensionMismatch)
}

func TestVelocityJacobians(t *testing.T) {
	assert := assert.New(t)

	m := NewVelocity()
	u := mat.NewVecDense(VelocityCtrlDim, []float64{2.0, 0.5})

	f, err := m.PoseJacobian(pose, u, dt)
	assert.NoError(err)
	assert.True(mat.EqualApprox(f, numPoseJacobian(m, u), 1e-6))

	g, err := m.ControlJacobian(pose, u, dt)
	assert.NoError(err)
	assert.True(mat.EqualApprox(g, numCtrlJacobian(m, u), 1e-6))
}

func TestOdometryPropagate(t *testing.T) {
	assert := assert.New(t)

	m := NewOdometry()

	// pure forward motion from identity orientation moves along world x
	origin := mat.NewVecDense(slam.PoseDim, nil)
	u := mat.NewVecDense(OdometryCtrlDim, []float64{1.0, 0, 0, 0, 0, 0})
	next, err := m.Propagate(origin, u, 1.0)
	assert.NoError(err)
	assert.InDelta(1.0, next.AtVec(0), 1e-12)
	assert.InDelta(0.0, next.AtVec(1), 1e-12)

	// forward motion rotated 90 degrees in yaw moves along world y
	turned := mat.NewVecDense(slam.PoseDim, nil)
	turned.SetVec(5, math.Pi/2)
	next, err = m.Propagate(turned, u, 1.0)
	assert.NoError(err)
	assert.InDelta(0.0, next.AtVec(0), 1e-12)
	assert.InDelta(1.0, next.AtVec(1), 1e-12)

	_, err = m.Propagate(pose, mat.NewVecDense(2, nil), dt)
	assert.ErrorIs(err, slam.ErrDimensionMismatch)
}

func TestOdometryJacobians(t *testing.T) {
	assert := assert.New(t)

	m := NewOdometry()
	u := mat.NewVecDense(OdometryCtrlDim, []float64{1.0, -0.5, 0.2, 0.05, -0.1, 0.3})

	f, err := m.PoseJacobian(pose, u, dt)
	assert.NoError(err)
	assert.True(mat.EqualApprox(f, numPoseJacobian(m, u), 1e-6))

	g, err := m.ControlJacobian(pose, u, dt)
	assert.NoError(err)
	assert.True(mat.EqualApprox(g, numCtrlJacobian(m, u), 1e-6))
}

func TestDims(t *testing.T) {
	assert := assert.New(t)

	p, c := NewVelocity().Dims()
	assert.Equal(slam.PoseDim, p)
	assert.Equal(VelocityCtrlDim, c)

	p, c = NewOdometry().Dims()
	assert.Equal(slam.PoseDim, p)
	assert.Equal(OdometryCtrlDim, c)
}
