package ekf

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	slam "github.com/milosgajdos/go-slam"
	"github.com/milosgajdos/go-slam/state"
)

// Predictor advances the pose block of the joint state through the motion
// model and propagates the joint covariance. Landmark means never move during
// prediction; their correlation with the pose does, through the pose-landmark
// cross blocks.
type Predictor struct {
	// m is the agent motion model
	m slam.MotionModel
	// q is process noise
	q slam.Noise
}

// NewPredictor creates a new Predictor with motion model m and process noise q.
// The process noise covariance must be sized either to the pose block or to
// the model control input: control space noise is mapped into the pose block
// through the control Jacobian. When the model's pose and control dimensions
// coincide the covariance is taken as pose space noise. A nil q disables
// noise injection.
func NewPredictor(m slam.MotionModel, q slam.Noise) (*Predictor, error) {
	if m == nil {
		return nil, errors.New("invalid motion model: nil")
	}

	pd, cd := m.Dims()
	if q != nil {
		if d := q.Cov().SymmetricDim(); d != pd && d != cd {
			return nil, errors.Wrapf(slam.ErrDimensionMismatch, "process noise dimension %d", d)
		}
	}

	return &Predictor{m: m, q: q}, nil
}

// Predict overwrites the pose block of j with the propagated pose and updates
// the joint covariance as F*Cov*F' + Q, with Q injected into the pose block
// only. A nil control input is a no-op: mean and covariance stay untouched.
func (p *Predictor) Predict(j *state.Joint, u mat.Vector, dt float64) error {
	if u == nil {
		return nil
	}

	pd := j.PoseDim()
	n := j.Dim()
	pose := j.Mean().SliceVec(0, pd)

	next, err := p.m.Propagate(pose, u, dt)
	if err != nil {
		return errors.Wrap(err, "pose propagation failed")
	}

	f, err := p.m.PoseJacobian(pose, u, dt)
	if err != nil {
		return errors.Wrap(err, "pose Jacobian failed")
	}

	q, err := p.processCov(pose, u, dt, pd)
	if err != nil {
		return err
	}

	cov := j.Cov()

	// top block rows: F * Cov[0:pd, 0:n]
	top := mat.NewDense(pd, n, nil)
	top.Mul(f, cov.Slice(0, pd, 0, n))

	// pose-pose block: F * Cov_pp * F' + Q
	pp := mat.NewDense(pd, pd, nil)
	pp.Mul(top.Slice(0, pd, 0, pd), f.T())
	pp.Add(pp, q)

	cov.Slice(0, pd, 0, pd).(*mat.Dense).Copy(pp)
	if n > pd {
		cross := top.Slice(0, pd, pd, n)
		cov.Slice(0, pd, pd, n).(*mat.Dense).Copy(cross)
		cov.Slice(pd, n, 0, pd).(*mat.Dense).Copy(cross.T())
	}

	for i := 0; i < pd; i++ {
		j.Mean().SetVec(i, next.AtVec(i))
	}
	j.Symmetrize()

	return nil
}

// processCov resolves the process noise covariance into the pose block.
func (p *Predictor) processCov(pose, u mat.Vector, dt float64, pd int) (*mat.Dense, error) {
	q := mat.NewDense(pd, pd, nil)
	if p.q == nil {
		return q, nil
	}

	qc := p.q.Cov()
	_, cd := p.m.Dims()

	switch qc.SymmetricDim() {
	case pd:
		for i := 0; i < pd; i++ {
			for k := 0; k < pd; k++ {
				q.Set(i, k, qc.At(i, k))
			}
		}
	case cd:
		g, err := p.m.ControlJacobian(pose, u, dt)
		if err != nil {
			return nil, errors.Wrap(err, "control Jacobian failed")
		}
		gq := mat.NewDense(pd, cd, nil)
		gq.Mul(g, qc)
		q.Mul(gq, g.T())
	default:
		return nil, errors.Wrapf(slam.ErrDimensionMismatch, "process noise dimension %d", qc.SymmetricDim())
	}

	return q, nil
}
