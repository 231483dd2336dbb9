package ekf

import (
	"sort"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	slam "github.com/milosgajdos/go-slam"
	"github.com/milosgajdos/go-slam/matrix"
	"github.com/milosgajdos/go-slam/state"
)

// Updater applies the Kalman correction for associated measurements.
type Updater struct {
	// om is the sensor observation model
	om slam.ObservationModel
	// r is measurement noise
	r slam.Noise
	log logrus.FieldLogger
}

// NewUpdater creates a new Updater with observation model om and measurement noise r.
func NewUpdater(om slam.ObservationModel, r slam.Noise, log logrus.FieldLogger) (*Updater, error) {
	if om == nil {
		return nil, errors.New("invalid observation model: nil")
	}
	if log == nil {
		log = discardLogger()
	}

	return &Updater{om: om, r: r, log: log}, nil
}

// Update applies the Kalman correction for every association bound to an
// existing landmark, in ascending landmark id order. The order is part of the
// contract: each correction moves the linearization point of the next one, so
// a stable order keeps results reproducible for identical inputs.
// Measurements whose geometry degenerates or whose innovation covariance is
// singular at update time are skipped and logged; such skips are recoverable.
func (u *Updater) Update(j *state.Joint, assocs []Association, zs []slam.Measurement) error {
	ordered := make([]Association, 0, len(assocs))
	for _, a := range assocs {
		if a.New {
			continue
		}
		ordered = append(ordered, a)
	}
	sort.Slice(ordered, func(i, k int) bool { return ordered[i].LandmarkID < ordered[k].LandmarkID })

	for _, a := range ordered {
		if a.Measurement < 0 || a.Measurement >= len(zs) {
			return errors.Wrapf(slam.ErrDimensionMismatch, "association measurement index %d", a.Measurement)
		}

		if err := u.apply(j, a, zs[a.Measurement]); err != nil {
			switch {
			case errors.Is(err, slam.ErrDegenerateGeometry), errors.Is(err, slam.ErrSingularInnovation):
				u.log.WithFields(logrus.Fields{"landmark": a.LandmarkID, "measurement": a.Measurement}).Warnf("update skipped: %v", err)
				continue
			default:
				return err
			}
		}

		if err := j.Observed(a.LandmarkID); err != nil {
			return err
		}
	}

	return nil
}

// apply corrects the joint state with a single associated measurement.
func (u *Updater) apply(j *state.Joint, a Association, z slam.Measurement) error {
	pd := j.PoseDim()
	n := j.Dim()
	pose := j.Mean().SliceVec(0, pd)

	lm, err := j.LandmarkMean(a.LandmarkID)
	if err != nil {
		return err
	}

	zHat, err := u.om.Observe(pose, lm)
	if err != nil {
		return err
	}

	h, err := observationJacobian(j, u.om, pose, lm, a.LandmarkID)
	if err != nil {
		return err
	}

	r := u.noiseCov(z)
	s, err := innovationCov(j, h, r)
	if err != nil {
		return err
	}

	sInv := &mat.Dense{}
	if err := sInv.Inverse(s); err != nil {
		return errors.Wrapf(slam.ErrSingularInnovation, "landmark %d", a.LandmarkID)
	}

	// Kalman gain: Cov*H'*S^-1
	md, _ := h.Dims()
	ph := mat.NewDense(n, md, nil)
	ph.Mul(j.Cov(), h.T())
	gain := mat.NewDense(n, md, nil)
	gain.Mul(ph, sInv)

	inn, err := u.om.Innovation(z.Z, zHat)
	if err != nil {
		return err
	}

	// state correction
	corr := mat.NewVecDense(n, nil)
	corr.MulVec(gain, inn)
	j.Mean().AddVec(j.Mean(), corr)
	slam.WrapPoseAngles(j.Mean())

	// Joseph form covariance update: (I-KH)*Cov*(I-KH)' + K*R*K'
	ikh := matrix.Eye(n)
	kh := mat.NewDense(n, n, nil)
	kh.Mul(gain, h)
	ikh.Sub(ikh, kh)

	cov := mat.NewDense(n, n, nil)
	cov.Mul(ikh, j.Cov())
	cov.Mul(cov, ikh.T())

	if r != nil {
		kr := mat.NewDense(n, md, nil)
		kr.Mul(gain, r)
		krk := mat.NewDense(n, n, nil)
		krk.Mul(kr, gain.T())
		cov.Add(cov, krk)
	}

	j.Cov().Copy(cov)
	j.Symmetrize()

	return nil
}

// noiseCov picks the per-measurement noise override or the configured noise.
func (u *Updater) noiseCov(z slam.Measurement) mat.Symmetric {
	if z.Cov != nil {
		return z.Cov
	}
	if u.r != nil {
		return u.r.Cov()
	}

	return nil
}
