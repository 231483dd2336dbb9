package slam

import "github.com/pkg/errors"

var (
	// ErrDimensionMismatch is returned when a state, covariance or block
	// dimension does not match the filter dimensions. It is fatal for the
	// cycle: the previous consistent state is left untouched.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrDegenerateGeometry is returned when the observation model cannot
	// be linearized at the current estimate, e.g. when predicted range is
	// near zero and bearing is undefined. The measurement is skipped.
	ErrDegenerateGeometry = errors.New("degenerate observation geometry")

	// ErrSingularInnovation is returned when the innovation covariance of
	// an association candidate is not invertible. The candidate is excluded
	// from association.
	ErrSingularInnovation = errors.New("singular innovation covariance")

	// ErrAmbiguousAssociation is returned when two landmarks gate a
	// measurement at statistically indistinguishable distances. The
	// measurement is skipped for the cycle rather than guessed.
	ErrAmbiguousAssociation = errors.New("ambiguous association")

	// ErrCovarianceFault is returned when the covariance fails its symmetry
	// or non-negative diagonal check after an update. It is fatal: the
	// estimate is already corrupted and must not be propagated further.
	ErrCovarianceFault = errors.New("covariance consistency fault")

	// ErrUnknownLandmark is returned when a landmark id is not tracked.
	ErrUnknownLandmark = errors.New("unknown landmark")
)
