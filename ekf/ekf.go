// Package ekf implements the EKF-SLAM filter core: covariance prediction,
// Mahalanobis gated data association, Kalman correction and landmark map
// management over a joint agent and landmark state.
package ekf

import (
	"io"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	slam "github.com/milosgajdos/go-slam"
	"github.com/milosgajdos/go-slam/estimate"
	"github.com/milosgajdos/go-slam/state"
)

const (
	// DefaultGateProbability is the default chi-squared gate probability.
	DefaultGateProbability = 0.95
	// DefaultAmbiguityMargin is the default tie-break epsilon on squared
	// Mahalanobis distances.
	DefaultAmbiguityMargin = 1e-3
	// singularStreakLimit is the number of consecutive cycles with singular
	// innovation covariances tolerated before the fault surfaces as fatal.
	singularStreakLimit = 3
)

// Config configures the SLAM filter.
type Config struct {
	// ProcessNoise is process noise sized to the pose block or to the
	// motion model control input. Nil disables process noise injection.
	ProcessNoise slam.Noise
	// MeasurementNoise is sensor noise sized to the measurement dimension.
	MeasurementNoise slam.Noise
	// GateProbability is the chi-squared association gate probability;
	// the squared distance cutoff is its quantile at the measurement
	// dimension degrees of freedom. Defaults to DefaultGateProbability.
	GateProbability float64
	// GateThreshold overrides the derived cutoff when positive.
	GateThreshold float64
	// AmbiguityMargin is the tie-break epsilon: two candidates closer than
	// this have the measurement skipped. Defaults to DefaultAmbiguityMargin.
	AmbiguityMargin float64
	// CoarseGate is a Euclidean pre-gate radius bounding association cost;
	// 0 disables the pre-gate.
	CoarseGate float64
	// PruneHorizon is the number of missed cycles before a landmark is
	// pruned; 0 disables pruning.
	PruneHorizon int
	// Logger receives landmark lifecycle and skip events. Nil discards them.
	Logger logrus.FieldLogger
}

// Filter is an EKF-SLAM filter session. It exclusively owns the joint state
// and covariance for its lifetime; every cycle either commits in full or
// leaves the last known-good state untouched.
type Filter struct {
	pred  *Predictor
	assoc *Associator
	upd   *Updater
	mgr   *Manager
	joint *state.Joint
	log   logrus.FieldLogger
	// singularStreak counts consecutive update cycles that saw singular
	// innovation covariances
	singularStreak int
}

// New creates a new EKF-SLAM filter session.
// It accepts the following parameters:
// - m:       agent motion model
// - om:      sensor observation model
// - pose:    initial pose estimate
// - poseCov: initial pose covariance
// - c:       filter configuration
// It returns error if model or noise dimensions are inconsistent.
func New(m slam.MotionModel, om slam.ObservationModel, pose mat.Vector, poseCov mat.Symmetric, c Config) (*Filter, error) {
	if m == nil || om == nil {
		return nil, errors.New("invalid model: nil")
	}

	mp, _ := m.Dims()
	op, md := om.Dims()
	if mp != op {
		return nil, errors.Wrapf(slam.ErrDimensionMismatch, "motion pose %d, observation pose %d", mp, op)
	}

	if c.MeasurementNoise != nil {
		if d := c.MeasurementNoise.Cov().SymmetricDim(); d != md {
			return nil, errors.Wrapf(slam.ErrDimensionMismatch, "measurement noise dimension %d", d)
		}
	}

	log := c.Logger
	if log == nil {
		log = discardLogger()
	}

	joint, err := state.New(pose, poseCov)
	if err != nil {
		return nil, err
	}
	if joint.PoseDim() != mp {
		return nil, errors.Wrapf(slam.ErrDimensionMismatch, "initial pose %d, model pose %d", joint.PoseDim(), mp)
	}

	pred, err := NewPredictor(m, c.ProcessNoise)
	if err != nil {
		return nil, err
	}

	assoc, err := NewAssociator(om, c.MeasurementNoise, gateThreshold(c, md), ambiguityMargin(c), c.CoarseGate, log)
	if err != nil {
		return nil, err
	}

	upd, err := NewUpdater(om, c.MeasurementNoise, log)
	if err != nil {
		return nil, err
	}

	mgr, err := NewManager(om, c.MeasurementNoise, c.PruneHorizon, log)
	if err != nil {
		return nil, err
	}

	return &Filter{
		pred:  pred,
		assoc: assoc,
		upd:   upd,
		mgr:   mgr,
		joint: joint,
		log:   log,
	}, nil
}

// Predict advances the filter state by one prediction step with control
// input u integrated over dt. A nil u is a no-op. On error the previous
// state is left untouched.
func (f *Filter) Predict(u mat.Vector, dt float64) error {
	if u == nil {
		return nil
	}

	work := f.joint.Clone()
	if err := f.pred.Predict(work, u, dt); err != nil {
		return err
	}
	if err := work.Check(); err != nil {
		return err
	}

	f.joint = work

	return nil
}

// Update processes a measurement batch: measurements are associated to
// tracked landmarks, associated ones correct the estimate, unassociated ones
// initialize new landmarks and landmarks missing for longer than the prune
// horizon are removed. An empty batch is a no-op. On a fatal fault the
// previous state is left untouched.
func (f *Filter) Update(zs []slam.Measurement) error {
	if len(zs) == 0 {
		return nil
	}

	work := f.joint.Clone()

	assocs, singular, err := f.assoc.Associate(work, zs)
	if err != nil {
		return err
	}
	if singular > 0 {
		f.singularStreak++
		if f.singularStreak >= singularStreakLimit {
			return errors.Wrapf(slam.ErrSingularInnovation, "%d consecutive cycles", f.singularStreak)
		}
	} else {
		f.singularStreak = 0
	}

	if err := f.upd.Update(work, assocs, zs); err != nil {
		return err
	}

	observed := make(map[int]bool)
	for _, a := range assocs {
		if a.New {
			continue
		}
		observed[a.LandmarkID] = true
	}

	for _, a := range assocs {
		if !a.New {
			continue
		}
		id, err := f.mgr.Add(work, zs[a.Measurement])
		if err != nil {
			if errors.Is(err, slam.ErrDegenerateGeometry) {
				f.log.WithField("measurement", a.Measurement).Warn("landmark initialization skipped")
				continue
			}
			return err
		}
		observed[id] = true
	}

	if _, err := f.mgr.Prune(work, observed); err != nil {
		return err
	}

	if err := work.Check(); err != nil {
		return err
	}

	f.joint = work

	return nil
}

// Step runs one full estimation cycle: prediction with control input u over
// dt followed by measurement batch processing.
func (f *Filter) Step(u mat.Vector, dt float64, zs []slam.Measurement) error {
	if err := f.Predict(u, dt); err != nil {
		return err
	}

	return f.Update(zs)
}

// Pose returns the current pose estimate with covariance.
func (f *Filter) Pose() (slam.Estimate, error) {
	return estimate.New(f.joint.Pose(), f.joint.PoseCov())
}

// Landmarks returns the current landmark estimates in ascending id order.
func (f *Filter) Landmarks() ([]*estimate.Landmark, error) {
	ids := f.joint.IDs()

	out := make([]*estimate.Landmark, 0, len(ids))
	for _, id := range ids {
		mean, err := f.joint.LandmarkMean(id)
		if err != nil {
			return nil, err
		}
		cov, err := f.joint.LandmarkCov(id)
		if err != nil {
			return nil, err
		}
		l, err := estimate.NewLandmark(id, mean, cov)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}

	return out, nil
}

// State returns a deep copy of the joint filter state.
func (f *Filter) State() *state.Joint {
	return f.joint.Clone()
}

// gateThreshold resolves the squared Mahalanobis distance cutoff.
func gateThreshold(c Config, measDim int) float64 {
	if c.GateThreshold > 0 {
		return c.GateThreshold
	}

	p := c.GateProbability
	if p <= 0 || p >= 1 {
		p = DefaultGateProbability
	}

	return distuv.ChiSquared{K: float64(measDim)}.Quantile(p)
}

// ambiguityMargin resolves the tie-break epsilon.
func ambiguityMargin(c Config) float64 {
	if c.AmbiguityMargin > 0 {
		return c.AmbiguityMargin
	}

	return DefaultAmbiguityMargin
}

// discardLogger returns a logger that drops everything it is given.
func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)

	return l
}
