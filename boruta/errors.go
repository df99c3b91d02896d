package boruta

import "errors"

var (
	// ErrInsufficientSamples reports a dataset with fewer rows than the
	// configured minimum.
	ErrInsufficientSamples = errors.New("boruta: not enough samples")

	// ErrDegenerateOutcome reports an outcome in which every subject is
	// censored, so no importance signal is learnable.
	ErrDegenerateOutcome = errors.New("boruta: all outcomes are censored")

	// ErrNonConvergent reports a failure of the underlying importance
	// model.  The iterations completed so far are returned together with
	// the error.
	ErrNonConvergent = errors.New("boruta: importance model failed to fit")
)
