package motion

import (
	"gonum.org/v1/gonum/mat"

	slam "github.com/milosgajdos/go-slam"
	"github.com/milosgajdos/go-slam/matrix"
)

// OdometryCtrlDim is the Odometry model control dimension: a body-frame twist.
const OdometryCtrlDim = 6

// Odometry is a full 6-DOF motion model driven by a body-frame twist
// u = (vx, vy, vz, wx, wy, wz). Linear velocity is rotated into the world
// frame through the current orientation; angular rates integrate the Euler
// angles directly, which holds for the small per-step rotations odometry
// feeds deliver.
type Odometry struct{}

// NewOdometry creates a new Odometry model and returns it.
func NewOdometry() *Odometry {
	return &Odometry{}
}

// Propagate integrates the body twist over dt and returns the predicted pose.
func (o *Odometry) Propagate(pose, u mat.Vector, dt float64) (mat.Vector, error) {
	if err := checkDims(pose, u, OdometryCtrlDim); err != nil {
		return nil, err
	}

	r := slam.Rotation(pose.AtVec(3), pose.AtVec(4), pose.AtVec(5))

	vel := mat.NewVecDense(3, []float64{u.AtVec(0), u.AtVec(1), u.AtVec(2)})
	world := mat.NewVecDense(3, nil)
	world.MulVec(r, vel)

	next := mat.NewVecDense(slam.PoseDim, nil)
	for i := 0; i < 3; i++ {
		next.SetVec(i, pose.AtVec(i)+world.AtVec(i)*dt)
		next.SetVec(3+i, pose.AtVec(3+i)+u.AtVec(3+i)*dt)
	}
	slam.WrapPoseAngles(next)

	return next, nil
}

// PoseJacobian returns the Jacobian of Propagate with respect to pose.
func (o *Odometry) PoseJacobian(pose, u mat.Vector, dt float64) (*mat.Dense, error) {
	if err := checkDims(pose, u, OdometryCtrlDim); err != nil {
		return nil, err
	}

	f := matrix.Eye(slam.PoseDim)

	vel := mat.NewVecDense(3, []float64{u.AtVec(0), u.AtVec(1), u.AtVec(2)})
	partials := slam.RotationPartials(pose.AtVec(3), pose.AtVec(4), pose.AtVec(5))
	for a, dr := range partials {
		col := mat.NewVecDense(3, nil)
		col.MulVec(dr, vel)
		for i := 0; i < 3; i++ {
			f.Set(i, 3+a, col.AtVec(i)*dt)
		}
	}

	return f, nil
}

// ControlJacobian returns the Jacobian of Propagate with respect to the twist.
func (o *Odometry) ControlJacobian(pose, u mat.Vector, dt float64) (*mat.Dense, error) {
	if err := checkDims(pose, u, OdometryCtrlDim); err != nil {
		return nil, err
	}

	r := slam.Rotation(pose.AtVec(3), pose.AtVec(4), pose.AtVec(5))

	g := mat.NewDense(slam.PoseDim, OdometryCtrlDim, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			g.Set(i, j, r.At(i, j)*dt)
		}
		g.Set(3+i, 3+i, dt)
	}

	return g, nil
}

// Dims returns pose and control input dimensions of the model.
func (o *Odometry) Dims() (pose, ctrl int) {
	return slam.PoseDim, OdometryCtrlDim
}
