package cohort

import "errors"

var (
	// ErrBadHeader reports a table header missing a required column, or
	// one carrying a duplicate column.
	ErrBadHeader = errors.New("cohort: bad table header")

	// ErrBadValue reports a cell that cannot be parsed, a negative
	// follow-up time, or a status that is not 0/1.
	ErrBadValue = errors.New("cohort: bad value")

	// ErrAbundanceRange reports a relative abundance outside 0-100.
	ErrAbundanceRange = errors.New("cohort: abundance must be a percentage in [0, 100]")

	// ErrUnknownRiskGroup reports a risk group label outside the ordered
	// Low/Intermediate/High/Advanced scale.
	ErrUnknownRiskGroup = errors.New("cohort: unknown risk group")

	// ErrDuplicateSample reports a sample identifier appearing twice in
	// one table.
	ErrDuplicateSample = errors.New("cohort: duplicate sample id")

	// ErrSampleMismatch reports clinical and community tables whose
	// sample identifiers do not pair one to one.
	ErrSampleMismatch = errors.New("cohort: clinical and community samples do not match")
)
