package statmodel

import "errors"

var (
	// ErrMisalignedInput reports columns of unequal length, or a name list
	// that does not match the column list.
	ErrMisalignedInput = errors.New("statmodel: misaligned input")

	// ErrUnknownVariable reports a variable name that is not in the dataset.
	ErrUnknownVariable = errors.New("statmodel: unknown variable")

	// ErrDuplicateVariable reports a variable name used more than once.
	ErrDuplicateVariable = errors.New("statmodel: duplicate variable")
)
