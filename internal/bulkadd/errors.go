package bulkadd

import "errors"

// Sentinel errors wrapped by the service; the API layer maps them to HTTP
// status codes with errors.Is.
var (
	// ErrInvalidRequest marks a malformed or contradictory selector. Rejected
	// before any job is created, with no side effects.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrNotFound marks an unknown collection, company or job id.
	ErrNotFound = errors.New("not found")
)
