package domain

import "time"

// MessageStyle selects which canned pool the activation composer draws from.
type MessageStyle string

const (
	StyleCasual   MessageStyle = "casual"
	StyleBusiness MessageStyle = "business"
	StyleMixed    MessageStyle = "mixed"
)

// ValidMessageStyle reports whether s is a known style.
func ValidMessageStyle(s MessageStyle) bool {
	return s == StyleCasual || s == StyleBusiness || s == StyleMixed
}

// ActivationConfig is the process-wide singleton controlling the filler
// traffic loop. Read on every tick so operator changes apply without a
// restart.
type ActivationConfig struct {
	IsActive                 bool         `json:"is_active" db:"is_active"`
	MinDelaySeconds          int          `json:"min_delay_seconds" db:"min_delay_seconds"`
	MaxDelaySeconds          int          `json:"max_delay_seconds" db:"max_delay_seconds"`
	MessagesPerDayPerAccount int          `json:"messages_per_day_per_account" db:"messages_per_day_per_account"`
	StartHour                int          `json:"start_hour" db:"start_hour"`
	EndHour                  int          `json:"end_hour" db:"end_hour"`
	MessageStyle             MessageStyle `json:"message_style" db:"message_style"`
	UpdatedAt                time.Time    `json:"updated_at" db:"updated_at"`
}

// InWindow reports whether the given local time falls inside the
// configured [StartHour, EndHour) sending window.
func (c *ActivationConfig) InWindow(t time.Time) bool {
	h := t.Hour()
	return h >= c.StartHour && h < c.EndHour
}

// ActivationLogEntry records one filler message attempt, successful or
// not. Append-only; the clear-log operation truncates the whole table.
type ActivationLogEntry struct {
	ID            int64     `json:"id" db:"id"`
	FromAccountID string    `json:"from_account_id" db:"from_account_id"`
	ToAccountID   string    `json:"to_account_id" db:"to_account_id"`
	Message       string    `json:"message" db:"message"`
	Status        string    `json:"status" db:"status"` // sent|failed
	Error         string    `json:"error" db:"error"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// ActivationStats summarizes the activation log for the dashboard.
type ActivationStats struct {
	Total     int  `json:"total"`
	Today     int  `json:"today"`
	Succeeded int  `json:"succeeded"`
	IsRunning bool `json:"is_running"`
}
