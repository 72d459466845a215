package domain

import "time"

// HealthEventType enumerates the scoring-relevant occurrences recorded in
// the health event log.
type HealthEventType string

const (
	EventReport           HealthEventType = "report"
	EventBlock            HealthEventType = "block"
	EventNoReply          HealthEventType = "no_reply"
	EventScoreDrop        HealthEventType = "score_drop"
	EventScoreRise        HealthEventType = "score_rise"
	EventManualAdjustment HealthEventType = "manual_adjustment"
)

// ValidIncidentType reports whether t is an externally reportable incident
// (the subset of event types callers may submit; score_drop/score_rise are
// only emitted by the ledger itself).
func ValidIncidentType(t HealthEventType) bool {
	switch t {
	case EventReport, EventBlock, EventNoReply, EventManualAdjustment:
		return true
	}
	return false
}

// HealthEvent is an immutable, append-only record of one scoring-relevant
// occurrence. The event log is the audit trail justifying the current
// score: every score mutation appends exactly one event.
type HealthEvent struct {
	ID          string          `json:"id" db:"id"`
	AccountID   string          `json:"account_id" db:"account_id"`
	Type        HealthEventType `json:"event_type" db:"event_type"`
	ScoreBefore int             `json:"score_before" db:"score_before"`
	ScoreAfter  int             `json:"score_after" db:"score_after"`
	Description string          `json:"description" db:"description"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}
