package sim

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	slam "github.com/milosgajdos/go-slam"
)

// Simulator steps a ground truth agent through a feature world and
// synthesizes noisy sensor measurements for the filter under test.
type Simulator struct {
	// m is the agent motion model
	m slam.MotionModel
	// om is the sensor observation model
	om slam.ObservationModel
	// q is process noise injected into ground truth motion
	q slam.Noise
	// r is measurement noise injected into synthesized measurements
	r slam.Noise
	// world holds the ground truth features
	world *Map
	// pose is the ground truth agent pose
	pose *mat.VecDense
	// maxRange bounds sensor visibility; 0 means unbounded
	maxRange float64
	// track is the ground truth trajectory, one row per step
	track [][]float64
}

// NewSimulator creates a new Simulator and returns it.
// It returns error if either model or the world map is nil or the initial
// pose has the wrong dimension.
func NewSimulator(m slam.MotionModel, om slam.ObservationModel, q, r slam.Noise, world *Map, initPose mat.Vector, maxRange float64) (*Simulator, error) {
	if m == nil || om == nil {
		return nil, fmt.Errorf("invalid model: nil")
	}
	if world == nil {
		return nil, fmt.Errorf("invalid world map: nil")
	}

	pd, _ := m.Dims()
	if initPose == nil || initPose.Len() != pd {
		return nil, fmt.Errorf("invalid initial pose")
	}

	pose := mat.NewVecDense(pd, nil)
	pose.CopyVec(initPose)

	s := &Simulator{
		m:        m,
		om:       om,
		q:        q,
		r:        r,
		world:    world,
		pose:     pose,
		maxRange: maxRange,
	}
	s.record()

	return s, nil
}

// Step advances ground truth by integrating control input u over dt and
// perturbing the result with a process noise sample.
func (s *Simulator) Step(u mat.Vector, dt float64) error {
	next, err := s.m.Propagate(s.pose, u, dt)
	if err != nil {
		return err
	}
	s.pose.CopyVec(next)

	if s.q != nil {
		s.pose.AddVec(s.pose, s.q.Sample())
		slam.WrapPoseAngles(s.pose)
	}
	s.record()

	return nil
}

// Pose returns a copy of the ground truth pose.
func (s *Simulator) Pose() mat.Vector {
	p := mat.NewVecDense(s.pose.Len(), nil)
	p.CopyVec(s.pose)

	return p
}

// Observe synthesizes one noisy measurement per visible feature. Features
// out of sensor range or in degenerate geometry are silently invisible,
// which is what a real sensor frame looks like.
func (s *Simulator) Observe() ([]slam.Measurement, error) {
	var out []slam.Measurement

	for _, f := range s.world.Features {
		z, err := s.om.Observe(s.pose, f.Position())
		if err != nil {
			continue
		}
		if s.maxRange > 0 && z.AtVec(0) > s.maxRange {
			continue
		}

		zv := mat.NewVecDense(z.Len(), nil)
		zv.CopyVec(z)
		if s.r != nil {
			zv.AddVec(zv, s.r.Sample())
			// angular components stay wrapped after noise injection
			zv.SetVec(1, slam.NormalizeAngle(zv.AtVec(1)))
			zv.SetVec(2, slam.NormalizeAngle(zv.AtVec(2)))
			// noise can push range negative for close features
			zv.SetVec(0, math.Max(zv.AtVec(0), 0))
		}

		out = append(out, slam.Measurement{Z: zv})
	}

	return out, nil
}

// Track returns the ground truth trajectory so far: one row of x, y per step.
func (s *Simulator) Track() *mat.Dense {
	t := mat.NewDense(len(s.track), 2, nil)
	for i, row := range s.track {
		t.Set(i, 0, row[0])
		t.Set(i, 1, row[1])
	}

	return t
}

func (s *Simulator) record() {
	s.track = append(s.track, []float64{s.pose.AtVec(0), s.pose.AtVec(1)})
}
