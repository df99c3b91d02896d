package forest

import "errors"

var (
	// ErrNoEvents reports data in which every subject is censored, so no
	// split criterion can be evaluated.
	ErrNoEvents = errors.New("forest: no events in data")

	// ErrNoSplits reports a forest in which every tree is a stump.  The
	// grown forest is returned along with the error so the caller can
	// inspect it.
	ErrNoSplits = errors.New("forest: no tree found an admissible split")
)
