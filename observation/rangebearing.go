// Package observation provides nonlinear sensor models mapping agent pose and
// landmark position to raw measurements, with analytic Jacobians and the
// inverse mapping used for landmark initialization.
package observation

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	slam "github.com/milosgajdos/go-slam"
)

// MeasurementDim is the RangeBearing measurement dimension: range, bearing, elevation.
const MeasurementDim = 3

// DefaultMinRange is the default range under which the observation geometry
// is considered degenerate.
const DefaultMinRange = 1e-6

// RangeBearing is a range/bearing/elevation sensor model. Measurements are
// expressed in the agent body frame: range to the landmark, bearing around
// the body z axis and elevation from the body xy plane.
type RangeBearing struct {
	// minRange is the degeneracy cutoff for range and its xy projection
	minRange float64
}

// NewRangeBearing creates a new RangeBearing sensor model.
// Non-positive minRange falls back to DefaultMinRange.
func NewRangeBearing(minRange float64) *RangeBearing {
	if minRange <= 0 {
		minRange = DefaultMinRange
	}

	return &RangeBearing{minRange: minRange}
}

// body returns the landmark position expressed in the agent body frame.
func (rb *RangeBearing) body(pose, lm mat.Vector) (*mat.VecDense, *mat.Dense) {
	r := slam.Rotation(pose.AtVec(3), pose.AtVec(4), pose.AtVec(5))

	d := mat.NewVecDense(3, []float64{
		lm.AtVec(0) - pose.AtVec(0),
		lm.AtVec(1) - pose.AtVec(1),
		lm.AtVec(2) - pose.AtVec(2),
	})

	b := mat.NewVecDense(3, nil)
	b.MulVec(r.T(), d)

	return b, r
}

// Observe returns the predicted measurement of landmark lm from the given pose.
// It returns slam.ErrDegenerateGeometry when the landmark is too close for
// bearing and elevation to be defined.
func (rb *RangeBearing) Observe(pose, lm mat.Vector) (mat.Vector, error) {
	if err := rb.checkDims(pose, lm); err != nil {
		return nil, err
	}

	b, _ := rb.body(pose, lm)
	rng := math.Hypot(math.Hypot(b.AtVec(0), b.AtVec(1)), b.AtVec(2))
	flat := math.Hypot(b.AtVec(0), b.AtVec(1))

	if rng < rb.minRange || flat < rb.minRange {
		return nil, errors.Wrapf(slam.ErrDegenerateGeometry, "range %g", rng)
	}

	return mat.NewVecDense(MeasurementDim, []float64{
		rng,
		math.Atan2(b.AtVec(1), b.AtVec(0)),
		math.Atan2(b.AtVec(2), flat),
	}), nil
}

// measurementJacobian returns the Jacobian of the range/bearing/elevation map
// with respect to the body frame point b.
func (rb *RangeBearing) measurementJacobian(b *mat.VecDense) (*mat.Dense, error) {
	bx, by, bz := b.AtVec(0), b.AtVec(1), b.AtVec(2)
	rng := math.Hypot(math.Hypot(bx, by), bz)
	flat := math.Hypot(bx, by)

	if rng < rb.minRange || flat < rb.minRange {
		return nil, errors.Wrapf(slam.ErrDegenerateGeometry, "range %g", rng)
	}

	r2 := rng * rng

	return mat.NewDense(MeasurementDim, 3, []float64{
		bx / rng, by / rng, bz / rng,
		-by / (flat * flat), bx / (flat * flat), 0.0,
		-bx * bz / (r2 * flat), -by * bz / (r2 * flat), flat / r2,
	}), nil
}

// PoseJacobian returns the Jacobian of Observe with respect to pose.
func (rb *RangeBearing) PoseJacobian(pose, lm mat.Vector) (*mat.Dense, error) {
	if err := rb.checkDims(pose, lm); err != nil {
		return nil, err
	}

	b, r := rb.body(pose, lm)
	jh, err := rb.measurementJacobian(b)
	if err != nil {
		return nil, err
	}

	d := mat.NewVecDense(3, []float64{
		lm.AtVec(0) - pose.AtVec(0),
		lm.AtVec(1) - pose.AtVec(1),
		lm.AtVec(2) - pose.AtVec(2),
	})

	// db/dposition = -R', db/dangle_i = dR_i' * d
	db := mat.NewDense(3, slam.PoseDim, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			db.Set(i, j, -r.At(j, i))
		}
	}
	partials := slam.RotationPartials(pose.AtVec(3), pose.AtVec(4), pose.AtVec(5))
	for a, dr := range partials {
		col := mat.NewVecDense(3, nil)
		col.MulVec(dr.T(), d)
		for i := 0; i < 3; i++ {
			db.Set(i, 3+a, col.AtVec(i))
		}
	}

	h := mat.NewDense(MeasurementDim, slam.PoseDim, nil)
	h.Mul(jh, db)

	return h, nil
}

// LandmarkJacobian returns the Jacobian of Observe with respect to the landmark position.
func (rb *RangeBearing) LandmarkJacobian(pose, lm mat.Vector) (*mat.Dense, error) {
	if err := rb.checkDims(pose, lm); err != nil {
		return nil, err
	}

	b, r := rb.body(pose, lm)
	jh, err := rb.measurementJacobian(b)
	if err != nil {
		return nil, err
	}

	h := mat.NewDense(MeasurementDim, slam.LandmarkDim, nil)
	h.Mul(jh, r.T())

	return h, nil
}

// Innovation returns the residual z - zHat with the bearing and elevation
// components wrapped onto (-pi, pi]. Differencing raw angles without wrapping
// produces spurious full-turn residuals around the cut.
func (rb *RangeBearing) Innovation(z, zHat mat.Vector) (mat.Vector, error) {
	if z == nil || zHat == nil || z.Len() != MeasurementDim || zHat.Len() != MeasurementDim {
		return nil, errors.Wrap(slam.ErrDimensionMismatch, "invalid innovation operands")
	}

	return mat.NewVecDense(MeasurementDim, []float64{
		z.AtVec(0) - zHat.AtVec(0),
		slam.NormalizeAngle(z.AtVec(1) - zHat.AtVec(1)),
		slam.NormalizeAngle(z.AtVec(2) - zHat.AtVec(2)),
	}), nil
}

// Invert maps measurement z observed from the given pose back to a world point.
func (rb *RangeBearing) Invert(pose, z mat.Vector) (mat.Vector, error) {
	if err := rb.checkMeasurement(pose, z); err != nil {
		return nil, err
	}

	b := bodyPoint(z)
	r := slam.Rotation(pose.AtVec(3), pose.AtVec(4), pose.AtVec(5))

	world := mat.NewVecDense(3, nil)
	world.MulVec(r, b)
	for i := 0; i < 3; i++ {
		world.SetVec(i, world.AtVec(i)+pose.AtVec(i))
	}

	return world, nil
}

// InvertPoseJacobian returns the Jacobian of Invert with respect to pose.
func (rb *RangeBearing) InvertPoseJacobian(pose, z mat.Vector) (*mat.Dense, error) {
	if err := rb.checkMeasurement(pose, z); err != nil {
		return nil, err
	}

	b := bodyPoint(z)

	g := mat.NewDense(slam.LandmarkDim, slam.PoseDim, nil)
	for i := 0; i < 3; i++ {
		g.Set(i, i, 1.0)
	}
	partials := slam.RotationPartials(pose.AtVec(3), pose.AtVec(4), pose.AtVec(5))
	for a, dr := range partials {
		col := mat.NewVecDense(3, nil)
		col.MulVec(dr, b)
		for i := 0; i < 3; i++ {
			g.Set(i, 3+a, col.AtVec(i))
		}
	}

	return g, nil
}

// InvertMeasurementJacobian returns the Jacobian of Invert with respect to z.
func (rb *RangeBearing) InvertMeasurementJacobian(pose, z mat.Vector) (*mat.Dense, error) {
	if err := rb.checkMeasurement(pose, z); err != nil {
		return nil, err
	}

	rng, bear, elev := z.AtVec(0), z.AtVec(1), z.AtVec(2)
	ce, se := math.Cos(elev), math.Sin(elev)
	cb, sb := math.Cos(bear), math.Sin(bear)

	// db/dz columns: range, bearing, elevation
	db := mat.NewDense(3, MeasurementDim, []float64{
		ce * cb, -rng * ce * sb, -rng * se * cb,
		ce * sb, rng * ce * cb, -rng * se * sb,
		se, 0.0, rng * ce,
	})

	r := slam.Rotation(pose.AtVec(3), pose.AtVec(4), pose.AtVec(5))

	g := mat.NewDense(slam.LandmarkDim, MeasurementDim, nil)
	g.Mul(r, db)

	return g, nil
}

// Dims returns pose and measurement dimensions of the model.
func (rb *RangeBearing) Dims() (pose, measurement int) {
	return slam.PoseDim, MeasurementDim
}

// bodyPoint maps a range/bearing/elevation measurement to a body frame point.
func bodyPoint(z mat.Vector) *mat.VecDense {
	rng, bear, elev := z.AtVec(0), z.AtVec(1), z.AtVec(2)
	ce := math.Cos(elev)

	return mat.NewVecDense(3, []float64{
		rng * ce * math.Cos(bear),
		rng * ce * math.Sin(bear),
		rng * math.Sin(elev),
	})
}

func (rb *RangeBearing) checkDims(pose, lm mat.Vector) error {
	if pose == nil || pose.Len() != slam.PoseDim {
		return errors.Wrap(slam.ErrDimensionMismatch, "invalid pose vector")
	}
	if lm == nil || lm.Len() != slam.LandmarkDim {
		return errors.Wrap(slam.ErrDimensionMismatch, "invalid landmark vector")
	}

	return nil
}

func (rb *RangeBearing) checkMeasurement(pose, z mat.Vector) error {
	if pose == nil || pose.Len() != slam.PoseDim {
		return errors.Wrap(slam.ErrDimensionMismatch, "invalid pose vector")
	}
	if z == nil || z.Len() != MeasurementDim {
		return errors.Wrap(slam.ErrDimensionMismatch, "invalid measurement vector")
	}
	if z.AtVec(0) < rb.minRange {
		return errors.Wrapf(slam.ErrDegenerateGeometry, "range %g", z.AtVec(0))
	}

	return nil
}
