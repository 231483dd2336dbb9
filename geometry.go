package slam

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// NormalizeAngle wraps a into (-pi, pi].
func NormalizeAngle(a float64) float64 {
	a = math.Mod(a, 2*math.Pi)
	if a > math.Pi {
		a -= 2 * math.Pi
	}
	if a <= -math.Pi {
		a += 2 * math.Pi
	}
	return a
}

// WrapPoseAngles wraps the orientation block of pose back onto (-pi, pi].
// A naive linear angle update drifts off the manifold without this.
func WrapPoseAngles(pose *mat.VecDense) {
	for i := 3; i < PoseDim && i < pose.Len(); i++ {
		pose.SetVec(i, NormalizeAngle(pose.AtVec(i)))
	}
}

// Rotation returns the body-to-world rotation matrix Rz(yaw)*Ry(pitch)*Rx(roll).
func Rotation(roll, pitch, yaw float64) *mat.Dense {
	r := &mat.Dense{}
	r.Mul(rotZ(yaw), rotY(pitch))
	r.Mul(r, rotX(roll))

	return r
}

// RotationPartials returns the partial derivatives of Rotation with respect
// to roll, pitch and yaw, in that order.
func RotationPartials(roll, pitch, yaw float64) [3]*mat.Dense {
	var out [3]*mat.Dense

	dr := &mat.Dense{}
	dr.Mul(rotZ(yaw), rotY(pitch))
	dr.Mul(dr, rotXPrime(roll))
	out[0] = dr

	dp := &mat.Dense{}
	dp.Mul(rotZ(yaw), rotYPrime(pitch))
	dp.Mul(dp, rotX(roll))
	out[1] = dp

	dy := &mat.Dense{}
	dy.Mul(rotZPrime(yaw), rotY(pitch))
	dy.Mul(dy, rotX(roll))
	out[2] = dy

	return out
}

func rotX(a float64) *mat.Dense {
	c, s := math.Cos(a), math.Sin(a)
	return mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, c, -s,
		0, s, c,
	})
}

func rotY(a float64) *mat.Dense {
	c, s := math.Cos(a), math.Sin(a)
	return mat.NewDense(3, 3, []float64{
		c, 0, s,
		0, 1, 0,
		-s, 0, c,
	})
}

func rotZ(a float64) *mat.Dense {
	c, s := math.Cos(a), math.Sin(a)
	return mat.NewDense(3, 3, []float64{
		c, -s, 0,
		s, c, 0,
		0, 0, 1,
	})
}

func rotXPrime(a float64) *mat.Dense {
	c, s := math.Cos(a), math.Sin(a)
	return mat.NewDense(3, 3, []float64{
		0, 0, 0,
		0, -s, -c,
		0, c, -s,
	})
}

func rotYPrime(a float64) *mat.Dense {
	c, s := math.Cos(a), math.Sin(a)
	return mat.NewDense(3, 3, []float64{
		-s, 0, c,
		0, 0, 0,
		-c, 0, -s,
	})
}

func rotZPrime(a float64) *mat.Dense {
	c, s := math.Cos(a), math.Sin(a)
	return mat.NewDense(3, 3, []float64{
		-s, -c, 0,
		c, -s, 0,
		0, 0, 0,
	})
}
