package artifact

import "errors"

var (
	// ErrNotFound is returned when no report exists for the session id.
	ErrNotFound = errors.New("report not found")
)
