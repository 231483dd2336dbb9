package slam

import (
	"time"

	"gonum.org/v1/gonum/mat"
)

const (
	// PoseDim is the dimension of the agent pose block: x, y, z, roll, pitch, yaw.
	PoseDim = 6
	// LandmarkDim is the dimension of a single landmark block.
	LandmarkDim = 3
)

// MotionModel propagates agent pose to the next step given a control input.
type MotionModel interface {
	// Propagate integrates control input u over dt and returns the predicted pose
	Propagate(pose, u mat.Vector, dt float64) (mat.Vector, error)
	// PoseJacobian returns the Jacobian of Propagate with respect to pose,
	// evaluated at the given linearization point
	PoseJacobian(pose, u mat.Vector, dt float64) (*mat.Dense, error)
	// ControlJacobian returns the Jacobian of Propagate with respect to u
	ControlJacobian(pose, u mat.Vector, dt float64) (*mat.Dense, error)
	// Dims returns pose and control input dimensions of the model
	Dims() (pose, ctrl int)
}

// ObservationModel predicts sensor measurements of landmarks.
type ObservationModel interface {
	// Observe returns the predicted measurement of landmark lm from the given pose
	Observe(pose, lm mat.Vector) (mat.Vector, error)
	// PoseJacobian returns the Jacobian of Observe with respect to pose
	PoseJacobian(pose, lm mat.Vector) (*mat.Dense, error)
	// LandmarkJacobian returns the Jacobian of Observe with respect to lm
	LandmarkJacobian(pose, lm mat.Vector) (*mat.Dense, error)
	// Innovation returns the residual between measurement z and prediction
	// zHat, wrapping any angular components onto (-pi, pi]
	Innovation(z, zHat mat.Vector) (mat.Vector, error)
	// Invert maps measurement z observed from the given pose to a world point
	Invert(pose, z mat.Vector) (mat.Vector, error)
	// InvertPoseJacobian returns the Jacobian of Invert with respect to pose
	InvertPoseJacobian(pose, z mat.Vector) (*mat.Dense, error)
	// InvertMeasurementJacobian returns the Jacobian of Invert with respect to z
	InvertMeasurementJacobian(pose, z mat.Vector) (*mat.Dense, error)
	// Dims returns pose and measurement dimensions of the model
	Dims() (pose, measurement int)
}

// Noise is dynamical system noise
type Noise interface {
	// Mean returns noise mean
	Mean() []float64
	// Cov returns covariance matrix of the noise
	Cov() mat.Symmetric
	// Sample returns a sample of the noise
	Sample() mat.Vector
	// Reset resets the noise
	Reset()
}

// Estimate is a state estimate with covariance
type Estimate interface {
	// Val returns estimate value
	Val() mat.Vector
	// Cov returns estimate covariance
	Cov() mat.Symmetric
}

// Measurement is a single raw sensor detection.
type Measurement struct {
	// Z is the raw measurement vector
	Z mat.Vector
	// Time is the sensor timestamp
	Time time.Time
	// Cov overrides the filter measurement noise covariance when non-nil
	Cov mat.Symmetric
}
