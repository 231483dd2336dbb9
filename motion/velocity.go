// Package motion provides nonlinear agent motion models with analytic
// Jacobians for EKF linearization.
package motion

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	slam "github.com/milosgajdos/go-slam"
	"github.com/milosgajdos/go-slam/matrix"
)

// VelocityCtrlDim is the Velocity model control dimension: forward speed and yaw rate.
const VelocityCtrlDim = 2

// Velocity is a planar unicycle motion model embedded in 3D: the agent moves
// along its yaw heading with forward speed u[0] and turns with yaw rate u[1].
// Altitude, roll and pitch are carried through unchanged.
type Velocity struct{}

// NewVelocity creates a new Velocity model and returns it.
func NewVelocity() *Velocity {
	return &Velocity{}
}

// Propagate integrates the control input over dt and returns the predicted pose.
func (v *Velocity) Propagate(pose, u mat.Vector, dt float64) (mat.Vector, error) {
	if err := checkDims(pose, u, VelocityCtrlDim); err != nil {
		return nil, err
	}

	speed, rate := u.AtVec(0), u.AtVec(1)
	yaw := pose.AtVec(5)

	next := mat.NewVecDense(slam.PoseDim, nil)
	next.CopyVec(pose)
	next.SetVec(0, pose.AtVec(0)+speed*math.Cos(yaw)*dt)
	next.SetVec(1, pose.AtVec(1)+speed*math.Sin(yaw)*dt)
	next.SetVec(5, pose.AtVec(5)+rate*dt)
	slam.WrapPoseAngles(next)

	return next, nil
}

// PoseJacobian returns the Jacobian of Propagate with respect to pose.
func (v *Velocity) PoseJacobian(pose, u mat.Vector, dt float64) (*mat.Dense, error) {
	if err := checkDims(pose, u, VelocityCtrlDim); err != nil {
		return nil, err
	}

	speed := u.AtVec(0)
	yaw := pose.AtVec(5)

	f := matrix.Eye(slam.PoseDim)
	f.Set(0, 5, -speed*math.Sin(yaw)*dt)
	f.Set(1, 5, speed*math.Cos(yaw)*dt)

	return f, nil
}

// ControlJacobian returns the Jacobian of Propagate with respect to the control input.
func (v *Velocity) ControlJacobian(pose, u mat.Vector, dt float64) (*mat.Dense, error) {
	if err := checkDims(pose, u, VelocityCtrlDim); err != nil {
		return nil, err
	}

	yaw := pose.AtVec(5)

	g := mat.NewDense(slam.PoseDim, VelocityCtrlDim, nil)
	g.Set(0, 0, math.Cos(yaw)*dt)
	g.Set(1, 0, math.Sin(yaw)*dt)
	g.Set(5, 1, dt)

	return g, nil
}

// Dims returns pose and control input dimensions of the model.
func (v *Velocity) Dims() (pose, ctrl int) {
	return slam.PoseDim, VelocityCtrlDim
}

func checkDims(pose, u mat.Vector, ctrl int) error {
	if pose == nil || pose.Len() != slam.PoseDim {
		return errors.Wrap(slam.ErrDimensionMismatch, "invalid pose vector")
	}
	if u == nil || u.Len() != ctrl {
		return errors.Wrap(slam.ErrDimensionMismatch, "invalid control vector")
	}

	return nil
}
