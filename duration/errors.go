package duration

import "errors"

var (
	// ErrNoEvents reports data in which every subject is censored.
	ErrNoEvents = errors.New("duration: no events in data")

	// ErrInvalidStatus reports a status variable that is not coded 0/1.
	ErrInvalidStatus = errors.New("duration: status variable must be coded 0/1")

	// ErrInvalidEntry reports an entry time at or after the event or
	// censoring time, or a negative entry time.
	ErrInvalidEntry = errors.New("duration: invalid entry time")

	// ErrInvalidTime reports a negative event or censoring time.
	ErrInvalidTime = errors.New("duration: times cannot be negative")

	// ErrInvalidWeight reports a case weight that is not positive.
	ErrInvalidWeight = errors.New("duration: case weights must be positive")

	// ErrDegenerateGroups reports a log-rank comparison with fewer than
	// two groups.
	ErrDegenerateGroups = errors.New("duration: fewer than two groups to compare")

	// ErrFitFailed reports an optimizer failure.  Results computed at the
	// last parameter value are returned along with the error.
	ErrFitFailed = errors.New("duration: fitting did not succeed")
)
