package ekf

import (
	"math"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	slam "github.com/milosgajdos/go-slam"
	"github.com/milosgajdos/go-slam/state"
)

// Association binds a measurement of a batch to an existing landmark or flags
// it as a new landmark candidate. Associations are produced fresh each cycle
// and never persisted.
type Association struct {
	// Measurement is the index of the measurement in the batch
	Measurement int
	// LandmarkID is the associated landmark; valid only when New is false
	LandmarkID int
	// Distance is the squared Mahalanobis distance to the associated landmark
	Distance float64
	// New flags a measurement that gated no tracked landmark
	New bool
}

// Associator matches raw measurements to tracked landmarks with a
// chi-squared Mahalanobis gate.
type Associator struct {
	// om is the sensor observation model
	om slam.ObservationModel
	// r is measurement noise
	r slam.Noise
	// gate is the squared Mahalanobis distance cutoff
	gate float64
	// margin is the ambiguity tie-break epsilon
	margin float64
	// coarse is the Euclidean pre-gate radius; 0 disables it
	coarse float64
	log    logrus.FieldLogger
}

// NewAssociator creates a new Associator.
// It returns error if the observation model is nil or the gate is not positive.
func NewAssociator(om slam.ObservationModel, r slam.Noise, gate, margin, coarse float64, log logrus.FieldLogger) (*Associator, error) {
	if om == nil {
		return nil, errors.New("invalid observation model: nil")
	}
	if gate <= 0 {
		return nil, errors.Errorf("invalid association gate: %f", gate)
	}
	if log == nil {
		log = discardLogger()
	}

	return &Associator{
		om:     om,
		r:      r,
		gate:   gate,
		margin: margin,
		coarse: coarse,
		log:    log,
	}, nil
}

// candidate is the outcome of gating one measurement against the map.
type candidate struct {
	assoc    Association
	skip     bool
	singular bool
	err      error
}

// Associate partitions the measurement batch into associations to existing
// landmarks and new-landmark candidates. Measurements are gated concurrently:
// gating only reads the joint state, mutation happens later in the update
// phase. Ambiguous measurements and measurements whose geometry cannot be
// linearized are skipped for the cycle. It returns the number of candidates
// excluded for singular innovation covariance alongside the associations.
func (a *Associator) Associate(j *state.Joint, zs []slam.Measurement) ([]Association, int, error) {
	ids := j.IDs()

	results := make([]candidate, len(zs))

	var wg sync.WaitGroup
	for i := range zs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = a.gateOne(j, ids, i, zs[i])
		}(i)
	}
	wg.Wait()

	var out []Association
	singular := 0
	for i, res := range results {
		if res.err != nil {
			return nil, 0, res.err
		}
		if res.singular {
			singular++
		}
		if res.skip {
			a.log.WithField("measurement", i).Debug("measurement skipped for this cycle")
			continue
		}
		out = append(out, res.assoc)
	}

	return out, singular, nil
}

// gateOne gates measurement z against every tracked landmark inside the
// coarse spatial gate and picks the minimum Mahalanobis distance candidate.
func (a *Associator) gateOne(j *state.Joint, ids []int, idx int, z slam.Measurement) candidate {
	pd := j.PoseDim()
	pose := j.Mean().SliceVec(0, pd)

	if z.Z == nil {
		return candidate{err: errors.Wrapf(slam.ErrDimensionMismatch, "measurement %d", idx)}
	}

	// world point of the raw measurement, used only for the coarse gate
	var world mat.Vector
	if a.coarse > 0 {
		w, err := a.om.Invert(pose, z.Z)
		if err != nil {
			if errors.Is(err, slam.ErrDegenerateGeometry) {
				a.log.WithField("measurement", idx).Warn("degenerate measurement geometry")
				return candidate{skip: true}
			}
			return candidate{err: err}
		}
		world = w
	}

	best, second := math.Inf(1), math.Inf(1)
	bestID := -1
	sawSingular := false

	for _, id := range ids {
		lm, err := j.LandmarkMean(id)
		if err != nil {
			return candidate{err: err}
		}

		if world != nil && euclidean(world, lm) > a.coarse {
			continue
		}

		d2, err := a.distance(j, pose, lm, id, z)
		if err != nil {
			switch {
			case errors.Is(err, slam.ErrSingularInnovation):
				sawSingular = true
				a.log.WithFields(logrus.Fields{"measurement": idx, "landmark": id}).Warn("singular innovation covariance, candidate excluded")
				continue
			case errors.Is(err, slam.ErrDegenerateGeometry):
				continue
			default:
				return candidate{err: err}
			}
		}

		if d2 < best {
			best, second = d2, best
			bestID = id
			continue
		}
		if d2 < second {
			second = d2
		}
	}

	if bestID >= 0 && best < a.gate {
		if second-best < a.margin {
			// two equally likely candidates: do not guess
			a.log.WithFields(logrus.Fields{"measurement": idx, "landmark": bestID}).Warnf("measurement skipped: %v", slam.ErrAmbiguousAssociation)
			return candidate{skip: true, singular: sawSingular}
		}
		return candidate{
			assoc:    Association{Measurement: idx, LandmarkID: bestID, Distance: best},
			singular: sawSingular,
		}
	}

	return candidate{
		assoc:    Association{Measurement: idx, New: true},
		singular: sawSingular,
	}
}

// distance returns the squared Mahalanobis distance of measurement z to the
// predicted observation of landmark id.
func (a *Associator) distance(j *state.Joint, pose, lm mat.Vector, id int, z slam.Measurement) (float64, error) {
	zHat, err := a.om.Observe(pose, lm)
	if err != nil {
		return 0, err
	}

	h, err := observationJacobian(j, a.om, pose, lm, id)
	if err != nil {
		return 0, err
	}

	s, err := innovationCov(j, h, a.noiseCov(z))
	if err != nil {
		return 0, err
	}

	sInv := &mat.Dense{}
	if err := sInv.Inverse(s); err != nil {
		return 0, errors.Wrapf(slam.ErrSingularInnovation, "landmark %d", id)
	}

	inn, err := a.om.Innovation(z.Z, zHat)
	if err != nil {
		return 0, err
	}

	tmp := mat.NewVecDense(inn.Len(), nil)
	tmp.MulVec(sInv, inn)

	return mat.Dot(inn, tmp), nil
}

// noiseCov picks the per-measurement noise override or the configured noise.
func (a *Associator) noiseCov(z slam.Measurement) mat.Symmetric {
	if z.Cov != nil {
		return z.Cov
	}
	if a.r != nil {
		return a.r.Cov()
	}

	return nil
}

// observationJacobian assembles the full-state observation Jacobian: pose
// block columns first, landmark block columns at the landmark offset, zeros
// elsewhere.
func observationJacobian(j *state.Joint, om slam.ObservationModel, pose, lm mat.Vector, id int) (*mat.Dense, error) {
	_, md := om.Dims()
	pd := j.PoseDim()

	hp, err := om.PoseJacobian(pose, lm)
	if err != nil {
		return nil, err
	}
	hl, err := om.LandmarkJacobian(pose, lm)
	if err != nil {
		return nil, err
	}

	off, err := j.Offset(id)
	if err != nil {
		return nil, err
	}

	h := mat.NewDense(md, j.Dim(), nil)
	h.Slice(0, md, 0, pd).(*mat.Dense).Copy(hp)
	h.Slice(0, md, off, off+slam.LandmarkDim).(*mat.Dense).Copy(hl)

	return h, nil
}

// innovationCov returns S = H*Cov*H' + R.
func innovationCov(j *state.Joint, h *mat.Dense, r mat.Symmetric) (*mat.Dense, error) {
	md, n := h.Dims()
	if n != j.Dim() {
		return nil, errors.Wrapf(slam.ErrDimensionMismatch, "observation Jacobian [%d x %d]", md, n)
	}

	hp := mat.NewDense(md, n, nil)
	hp.Mul(h, j.Cov())

	s := mat.NewDense(md, md, nil)
	s.Mul(hp, h.T())

	if r != nil {
		if r.SymmetricDim() != md {
			return nil, errors.Wrapf(slam.ErrDimensionMismatch, "measurement noise dimension %d", r.SymmetricDim())
		}
		s.Add(s, r)
	}

	return s, nil
}

// euclidean returns the Euclidean distance between two position vectors.
func euclidean(a, b mat.Vector) float64 {
	var sum float64
	for i := 0; i < a.Len(); i++ {
		d := a.AtVec(i) - b.AtVec(i)
		sum += d * d
	}

	return math.Sqrt(sum)
}
