package health

import "errors"

// Sentinel errors for the health ledger.
var (
	// ErrUnknownEventType is returned for event types callers may not
	// submit (score_drop/score_rise are ledger-internal) or that don't
	// exist at all.
	ErrUnknownEventType = errors.New("unknown health event type")

	// ErrInvalidDelta is returned for a manual adjustment with a zero
	// delta. Only the resulting score is clamped silently; malformed
	// input never is.
	ErrInvalidDelta = errors.New("invalid score delta")
)
