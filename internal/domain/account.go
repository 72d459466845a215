package domain

import (
	"time"
)

// HealthStatus is the traffic-light classification of a sender account.
// It is always derived from the score via StatusFromScore and never
// stored independently, so score and status cannot drift apart.
type HealthStatus string

const (
	StatusSafe    HealthStatus = "safe"
	StatusWatch   HealthStatus = "watch"
	StatusWarning HealthStatus = "warning"
	StatusDanger  HealthStatus = "danger"
)

// StatusThresholds maps score bands to statuses. A score >= Safe is safe,
// >= Watch is watch, >= Warning is warning, anything below is danger.
type StatusThresholds struct {
	Safe    int `yaml:"safe" json:"safe"`
	Watch   int `yaml:"watch" json:"watch"`
	Warning int `yaml:"warning" json:"warning"`
}

// DefaultStatusThresholds are conservative bands for new deployments.
var DefaultStatusThresholds = StatusThresholds{Safe: 80, Watch: 60, Warning: 35}

// StatusFromScore derives a health status from a 0-100 score.
func StatusFromScore(score int, t StatusThresholds) HealthStatus {
	switch {
	case score >= t.Safe:
		return StatusSafe
	case score >= t.Watch:
		return StatusWatch
	case score >= t.Warning:
		return StatusWarning
	default:
		return StatusDanger
	}
}

// ClampScore bounds a score to the valid [0,100] range.
func ClampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// SenderAccount is one messaging identity under the engine's control.
// DailySentCount, LastSentAt and HealthScore are the contended fields;
// they are only mutated through the throttle gate and the health ledger.
type SenderAccount struct {
	ID          string `json:"id" db:"id"`
	Label       string `json:"label" db:"label"`
	PhoneNumber string `json:"phone_number" db:"phone_number"`

	// Quota config, operator-mutable
	MaxDailyMessages   int `json:"max_daily_messages" db:"max_daily_messages"`
	MinIntervalSeconds int `json:"min_interval_seconds" db:"min_interval_seconds"`

	// Counters
	DailySentCount     int        `json:"daily_sent_count" db:"daily_sent_count"`
	LastSentAt         *time.Time `json:"last_sent_at" db:"last_sent_at"`
	TotalSentCount     int        `json:"total_sent_count" db:"total_sent_count"`
	TotalReceivedCount int        `json:"total_received_count" db:"total_received_count"`

	// Health
	HealthScore     int        `json:"health_score" db:"health_score"`
	LastScoreUpdate *time.Time `json:"last_score_update" db:"last_score_update"`

	// Incident counters, monotonically informative
	ReportCount   int `json:"report_count" db:"report_count"`
	BlockCount    int `json:"block_count" db:"block_count"`
	NoReplyCount  int `json:"no_reply_count" db:"no_reply_count"`
	NoReplyStreak int `json:"no_reply_streak" db:"no_reply_streak"`

	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
	ArchivedAt *time.Time `json:"archived_at" db:"archived_at"`
}

// Status derives the account's health status from its current score.
func (a *SenderAccount) Status(t StatusThresholds) HealthStatus {
	return StatusFromScore(a.HealthScore, t)
}

// Archived reports whether the account has been soft-deleted.
func (a *SenderAccount) Archived() bool { return a.ArchivedAt != nil }

// MinInterval returns the minimum inter-message interval as a duration.
func (a *SenderAccount) MinInterval() time.Duration {
	return time.Duration(a.MinIntervalSeconds) * time.Second
}
