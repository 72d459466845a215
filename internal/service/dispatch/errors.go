package dispatch

import "errors"

// Sentinel errors for the dispatch service layer.
var (
	ErrNotFound          = errors.New("dispatch job not found")
	ErrInvalidTransition = errors.New("invalid job status transition")
	ErrNoItems           = errors.New("job has no line items")
	ErrJobDone           = errors.New("job is done and immutable")
)
