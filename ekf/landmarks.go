package ekf

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	slam "github.com/milosgajdos/go-slam"
	"github.com/milosgajdos/go-slam/state"
)

// Manager initializes new landmarks from unassociated measurements and prunes
// landmarks that went stale.
type Manager struct {
	// om is the sensor observation model
	om slam.ObservationModel
	// r is measurement noise
	r slam.Noise
	// horizon is the miss count after which a landmark goes stale;
	// 0 disables pruning
	horizon int
	log     logrus.FieldLogger
}

// NewManager creates a new landmark Manager.
func NewManager(om slam.ObservationModel, r slam.Noise, horizon int, log logrus.FieldLogger) (*Manager, error) {
	if om == nil {
		return nil, errors.New("invalid observation model: nil")
	}
	if horizon < 0 {
		return nil, errors.Errorf("invalid prune horizon: %d", horizon)
	}
	if log == nil {
		log = discardLogger()
	}

	return &Manager{om: om, r: r, horizon: horizon, log: log}, nil
}

// Add initializes a landmark from measurement z: the mean comes from the
// inverse observation at the current pose estimate, the covariance from
// first order propagation of pose uncertainty and measurement noise through
// the inversion Jacobians. It returns the assigned landmark id.
func (m *Manager) Add(j *state.Joint, z slam.Measurement) (int, error) {
	pd := j.PoseDim()
	n := j.Dim()
	pose := j.Mean().SliceVec(0, pd)

	mean, err := m.om.Invert(pose, z.Z)
	if err != nil {
		return 0, err
	}

	gp, err := m.om.InvertPoseJacobian(pose, z.Z)
	if err != nil {
		return 0, err
	}
	gz, err := m.om.InvertMeasurementJacobian(pose, z.Z)
	if err != nil {
		return 0, err
	}

	// cross covariance with the whole joint state: G_p * Cov[0:pd, 0:n]
	cross := mat.NewDense(slam.LandmarkDim, n, nil)
	cross.Mul(gp, j.Cov().Slice(0, pd, 0, n))

	// landmark block: G_p*Cov_pp*G_p' + G_z*R*G_z'
	lmCov := mat.NewDense(slam.LandmarkDim, slam.LandmarkDim, nil)
	lmCov.Mul(cross.Slice(0, slam.LandmarkDim, 0, pd), gp.T())

	if r := m.noiseCov(z); r != nil {
		_, md := m.om.Dims()
		if r.SymmetricDim() != md {
			return 0, errors.Wrapf(slam.ErrDimensionMismatch, "measurement noise dimension %d", r.SymmetricDim())
		}
		gzr := mat.NewDense(slam.LandmarkDim, md, nil)
		gzr.Mul(gz, r)
		grg := mat.NewDense(slam.LandmarkDim, slam.LandmarkDim, nil)
		grg.Mul(gzr, gz.T())
		lmCov.Add(lmCov, grg)
	}

	id, err := j.Augment(mean, lmCov, cross)
	if err != nil {
		return 0, err
	}
	m.log.WithField("landmark", id).Info("added landmark")

	return id, nil
}

// Prune bumps the miss counter of every tracked landmark that was not
// observed this cycle and walks stale landmarks through removal: a landmark
// goes Stale when its misses reach the horizon and is removed once they
// exceed it. It returns the removed landmark ids.
func (m *Manager) Prune(j *state.Joint, observed map[int]bool) ([]int, error) {
	if m.horizon == 0 {
		return nil, nil
	}

	var removed []int
	for _, id := range j.IDs() {
		if observed[id] {
			continue
		}

		misses, err := j.Missed(id)
		if err != nil {
			return nil, err
		}

		switch {
		case misses > m.horizon:
			if err := j.Remove(id); err != nil {
				return nil, err
			}
			removed = append(removed, id)
			m.log.WithField("landmark", id).Info("removed stale landmark")
		case misses == m.horizon:
			if err := j.MarkStale(id); err != nil {
				return nil, err
			}
			m.log.WithFields(logrus.Fields{"landmark": id, "misses": misses}).Debug("landmark went stale")
		}
	}

	return removed, nil
}

// noiseCov picks the per-measurement noise override or the configured noise.
func (m *Manager) noiseCov(z slam.Measurement) mat.Symmetric {
	if z.Cov != nil {
		return z.Cov
	}
	if m.r != nil {
		return m.r.Cov()
	}

	return nil
}
