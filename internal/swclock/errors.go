package swclock

import "errors"

// Error kinds from the core's error taxonomy. None of these are raised as
// panics; every operation that can fail returns one of these wrapped with
// context via fmt.Errorf("...: %w", ...).
var (
	// ErrInvalidArgument marks a malformed adjust request.
	ErrInvalidArgument = errors.New("swclock: invalid argument")
	// ErrInvalidClock marks a gettime/settime call against an unsupported
	// clock id.
	ErrInvalidClock = errors.New("swclock: invalid clock")
	// ErrResourceUnavailable marks an allocation or file-open failure during
	// subsystem attach.
	ErrResourceUnavailable = errors.New("swclock: resource unavailable")
)
