package models

import "errors"

// Error taxonomy shared by all services. Handlers map these onto HTTP
// status codes; everything else wraps them with fmt.Errorf("%w").
var (
	// ErrInvalidArgument marks malformed or out-of-range input
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotAuthorized marks an action the actor does not own
	ErrNotAuthorized = errors.New("not authorized")

	// ErrInvalidState marks an action against a record whose current
	// status does not permit it
	ErrInvalidState = errors.New("invalid state")

	// ErrConflictRetryable marks a lost atomic claim or a concurrent
	// update race; callers re-read and retry instead of failing
	ErrConflictRetryable = errors.New("conflict, retry")

	// ErrDependencyUnavailable marks a transient store failure that is
	// safe to retry
	ErrDependencyUnavailable = errors.New("dependency unavailable")
)
