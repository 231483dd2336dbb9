package state

import (
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	slam "github.com/milosgajdos/go-slam"
	"github.com/milosgajdos/go-slam/matrix"
)

// symTol is the tolerance used by covariance consistency checks.
const symTol = 1e-9

// Status is landmark tracking status.
type Status int

const (
	// Tracked landmarks are part of the joint state.
	Tracked Status = iota
	// Stale landmarks exceeded the miss horizon and await removal.
	Stale
	// Removed is terminal: a removed landmark never comes back.
	Removed
)

// String implements the Stringer interface.
func (s Status) String() string {
	switch s {
	case Tracked:
		return "Tracked"
	case Stale:
		return "Stale"
	case Removed:
		return "Removed"
	}
	return "Unknown"
}

// Landmark is landmark bookkeeping: identity, covariance offset and staleness.
type Landmark struct {
	id     int
	offset int
	misses int
	status Status
}

// ID returns the landmark identifier.
func (l *Landmark) ID() int { return l.id }

// Misses returns the number of consecutive cycles the landmark was not associated.
func (l *Landmark) Misses() int { return l.misses }

// Status returns landmark tracking status.
func (l *Landmark) Status() Status { return l.status }

// Joint is the joint SLAM state: agent pose followed by landmark positions,
// with the full dense cross-correlated covariance. Landmark blocks are
// addressed through an id to offset index so the covariance can stay a single
// dense matrix as it grows and shrinks.
//
// Joint is not safe for concurrent mutation: all writes must come from a
// single writer, which is how the filter engine drives it.
type Joint struct {
	poseDim int
	lmDim   int
	x       *mat.VecDense
	cov     *mat.Dense
	// landmarks are ordered by their offset into x
	landmarks []*Landmark
	index     map[int]*Landmark
	nextID    int
}

// New creates a Joint state from the initial pose and pose covariance.
// It returns error if pose and covariance dimensions do not match.
func New(pose mat.Vector, poseCov mat.Symmetric) (*Joint, error) {
	if pose == nil || poseCov == nil {
		return nil, errors.Wrap(slam.ErrDimensionMismatch, "nil initial condition")
	}

	n := pose.Len()
	if n == 0 || poseCov.SymmetricDim() != n {
		return nil, errors.Wrapf(slam.ErrDimensionMismatch, "pose %d, covariance %d", n, poseCov.SymmetricDim())
	}

	x := mat.NewVecDense(n, nil)
	x.CopyVec(pose)

	cov := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			cov.Set(i, j, poseCov.At(i, j))
		}
	}

	return &Joint{
		poseDim: n,
		lmDim:   slam.LandmarkDim,
		x:       x,
		cov:     cov,
		index:   make(map[int]*Landmark),
	}, nil
}

// Dim returns the current joint state dimension.
func (j *Joint) Dim() int { return j.x.Len() }

// PoseDim returns the pose block dimension.
func (j *Joint) PoseDim() int { return j.poseDim }

// NumLandmarks returns the number of tracked landmarks.
func (j *Joint) NumLandmarks() int { return len(j.landmarks) }

// Mean returns the live joint mean vector. The caller owns mutation ordering.
func (j *Joint) Mean() *mat.VecDense { return j.x }

// Cov returns the live joint covariance matrix. The caller owns mutation ordering.
func (j *Joint) Cov() *mat.Dense { return j.cov }

// Pose returns a copy of the pose block.
func (j *Joint) Pose() mat.Vector {
	p := mat.NewVecDense(j.poseDim, nil)
	p.CopyVec(j.x.SliceVec(0, j.poseDim))

	return p
}

// PoseCov returns a copy of the pose covariance block.
func (j *Joint) PoseCov() mat.Symmetric {
	return matrix.ToSym(mat.DenseCopyOf(j.cov.Slice(0, j.poseDim, 0, j.poseDim)))
}

// IDs returns the tracked landmark ids in ascending order.
func (j *Joint) IDs() []int {
	ids := make([]int, 0, len(j.landmarks))
	for _, l := range j.landmarks {
		ids = append(ids, l.id)
	}
	sort.Ints(ids)

	return ids
}

// Landmark returns landmark bookkeeping for id.
func (j *Joint) Landmark(id int) (*Landmark, error) {
	l, ok := j.index[id]
	if !ok {
		return nil, errors.Wrapf(slam.ErrUnknownLandmark, "id %d", id)
	}

	return l, nil
}

// Offset returns the offset of the landmark block of id in the joint state.
func (j *Joint) Offset(id int) (int, error) {
	l, ok := j.index[id]
	if !ok {
		return 0, errors.Wrapf(slam.ErrUnknownLandmark, "id %d", id)
	}

	return l.offset, nil
}

// LandmarkMean returns a copy of the position estimate of landmark id.
func (j *Joint) LandmarkMean(id int) (mat.Vector, error) {
	l, ok := j.index[id]
	if !ok {
		return nil, errors.Wrapf(slam.ErrUnknownLandmark, "id %d", id)
	}

	m := mat.NewVecDense(j.lmDim, nil)
	m.CopyVec(j.x.SliceVec(l.offset, l.offset+j.lmDim))

	return m, nil
}

// LandmarkCov returns a copy of the covariance block of landmark id.
func (j *Joint) LandmarkCov(id int) (mat.Symmetric, error) {
	l, ok := j.index[id]
	if !ok {
		return nil, errors.Wrapf(slam.ErrUnknownLandmark, "id %d", id)
	}

	s := matrix.ToSym(mat.DenseCopyOf(j.cov.Slice(l.offset, l.offset+j.lmDim, l.offset, l.offset+j.lmDim)))

	return s, nil
}

// Augment grows the joint state with a new landmark: mean is the initial
// landmark position, lmCov its covariance block and cross the cross-covariance
// between the landmark and the existing joint state (lmDim x Dim). Mean and
// covariance grow in one atomic operation. It returns the assigned landmark
// id: ids increase monotonically and are never reused.
func (j *Joint) Augment(mean mat.Vector, lmCov, cross *mat.Dense) (int, error) {
	n := j.Dim()

	if mean == nil || mean.Len() != j.lmDim {
		return 0, errors.Wrapf(slam.ErrDimensionMismatch, "landmark mean dimension")
	}
	if r, c := lmCov.Dims(); r != j.lmDim || c != j.lmDim {
		return 0, errors.Wrapf(slam.ErrDimensionMismatch, "landmark covariance block [%d x %d]", r, c)
	}
	if r, c := cross.Dims(); r != j.lmDim || c != n {
		return 0, errors.Wrapf(slam.ErrDimensionMismatch, "cross covariance block [%d x %d]", r, c)
	}

	grown := j.Dim() + j.lmDim

	x := mat.NewVecDense(grown, nil)
	x.CopyVec(j.x.SliceVec(0, n))
	for i := 0; i < j.lmDim; i++ {
		x.SetVec(n+i, mean.AtVec(i))
	}

	cov := mat.NewDense(grown, grown, nil)
	cov.Slice(0, n, 0, n).(*mat.Dense).Copy(j.cov)
	cov.Slice(n, grown, 0, n).(*mat.Dense).Copy(cross)
	cov.Slice(0, n, n, grown).(*mat.Dense).Copy(cross.T())
	cov.Slice(n, grown, n, grown).(*mat.Dense).Copy(lmCov)
	matrix.Symmetrize(cov)

	l := &Landmark{
		id:     j.nextID,
		offset: n,
		status: Tracked,
	}
	j.nextID++

	j.x = x
	j.cov = cov
	j.landmarks = append(j.landmarks, l)
	j.index[l.id] = l

	return l.id, nil
}

// Remove shrinks the joint state by removing the landmark block of id,
// stripping its covariance rows and columns and renumbering the offsets of
// the landmarks behind it. Removal is terminal.
func (j *Joint) Remove(id int) error {
	l, ok := j.index[id]
	if !ok {
		return errors.Wrapf(slam.ErrUnknownLandmark, "id %d", id)
	}

	n := j.Dim()
	shrunk := n - j.lmDim
	lo, hi := l.offset, l.offset+j.lmDim

	x := mat.NewVecDense(shrunk, nil)
	for i := 0; i < lo; i++ {
		x.SetVec(i, j.x.AtVec(i))
	}
	for i := hi; i < n; i++ {
		x.SetVec(i-j.lmDim, j.x.AtVec(i))
	}

	cov := mat.NewDense(shrunk, shrunk, nil)
	for r := 0; r < n; r++ {
		if r >= lo && r < hi {
			continue
		}
		rr := r
		if r >= hi {
			rr -= j.lmDim
		}
		for c := 0; c < n; c++ {
			if c >= lo && c < hi {
				continue
			}
			cc := c
			if c >= hi {
				cc -= j.lmDim
			}
			cov.Set(rr, cc, j.cov.At(r, c))
		}
	}

	kept := j.landmarks[:0]
	for _, m := range j.landmarks {
		if m.id == id {
			continue
		}
		if m.offset > l.offset {
			m.offset -= j.lmDim
		}
		kept = append(kept, m)
	}

	l.status = Removed
	delete(j.index, id)

	j.x = x
	j.cov = cov
	j.landmarks = kept

	return nil
}

// Observed resets the miss counter of landmark id and marks it Tracked.
func (j *Joint) Observed(id int) error {
	l, ok := j.index[id]
	if !ok {
		return errors.Wrapf(slam.ErrUnknownLandmark, "id %d", id)
	}
	l.misses = 0
	l.status = Tracked

	return nil
}

// Missed bumps the miss counter of landmark id and returns the new count.
func (j *Joint) Missed(id int) (int, error) {
	l, ok := j.index[id]
	if !ok {
		return 0, errors.Wrapf(slam.ErrUnknownLandmark, "id %d", id)
	}
	l.misses++

	return l.misses, nil
}

// MarkStale flags landmark id for removal.
func (j *Joint) MarkStale(id int) error {
	l, ok := j.index[id]
	if !ok {
		return errors.Wrapf(slam.ErrUnknownLandmark, "id %d", id)
	}
	l.status = Stale

	return nil
}

// Symmetrize enforces covariance symmetry by averaging with its transpose.
func (j *Joint) Symmetrize() {
	matrix.Symmetrize(j.cov)
}

// Check verifies the joint covariance is symmetric with a non-negative
// diagonal and that mean and covariance dimensions agree. It returns
// slam.ErrCovarianceFault or slam.ErrDimensionMismatch on violation.
func (j *Joint) Check() error {
	r, c := j.cov.Dims()
	if r != j.x.Len() || c != j.x.Len() {
		return errors.Wrapf(slam.ErrDimensionMismatch, "mean %d, covariance [%d x %d]", j.x.Len(), r, c)
	}

	if !matrix.IsConsistent(j.cov, symTol) {
		return errors.Wrap(slam.ErrCovarianceFault, "joint covariance")
	}

	return nil
}

// Clone returns a deep copy of the joint state, bookkeeping included.
// The filter engine mutates a clone and commits it only when a full cycle
// succeeds, keeping the last known-good state intact on fatal faults.
func (j *Joint) Clone() *Joint {
	x := mat.NewVecDense(j.x.Len(), nil)
	x.CopyVec(j.x)

	cov := mat.NewDense(j.x.Len(), j.x.Len(), nil)
	cov.Copy(j.cov)

	landmarks := make([]*Landmark, 0, len(j.landmarks))
	index := make(map[int]*Landmark, len(j.index))
	for _, l := range j.landmarks {
		cp := *l
		landmarks = append(landmarks, &cp)
		index[cp.id] = &cp
	}

	return &Joint{
		poseDim:   j.poseDim,
		lmDim:     j.lmDim,
		x:         x,
		cov:       cov,
		landmarks: landmarks,
		index:     index,
		nextID:    j.nextID,
	}
}
