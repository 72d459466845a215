package domain

import "time"

// JobStatus enumerates the lifecycle states of a dispatch job.
type JobStatus string

const (
	JobConfig     JobStatus = "config"
	JobPreviewing JobStatus = "previewing"
	JobRunning    JobStatus = "running"
	JobPaused     JobStatus = "paused"
	JobDone       JobStatus = "done"
)

// Terminal reports whether the job can no longer change.
func (s JobStatus) Terminal() bool { return s == JobDone }

// ItemStatus enumerates the lifecycle of a single message in a job.
// Transitions are monotonic: pending → sending → {sent, failed}.
// skipped is only assigned before sending begins.
type ItemStatus string

const (
	ItemPending ItemStatus = "pending"
	ItemSending ItemStatus = "sending"
	ItemSent    ItemStatus = "sent"
	ItemFailed  ItemStatus = "failed"
	ItemSkipped ItemStatus = "skipped"
)

// DispatchJob is one bulk-campaign run. The config (sender account, delay,
// item list) is a snapshot taken at creation time; only statuses mutate
// afterwards, and nothing mutates once the job is done.
type DispatchJob struct {
	ID        string `json:"id" db:"id"`
	CreatedBy string `json:"created_by" db:"created_by"`
	AccountID string `json:"account_id" db:"account_id"`

	// BodyTemplate is the message template the items were rendered from.
	BodyTemplate string `json:"body_template" db:"body_template"`

	// DelaySeconds overrides the inter-message delay; nil means use the
	// account's min_interval_seconds.
	DelaySeconds *int `json:"delay_seconds" db:"delay_seconds"`

	Status JobStatus `json:"status" db:"status"`

	// PauseReason records why the engine paused the job on its own
	// (e.g. the sender account went unhealthy), so the operator can
	// decide whether to switch accounts or wait.
	PauseReason string `json:"pause_reason" db:"pause_reason"`

	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
	CompletedAt *time.Time `json:"completed_at" db:"completed_at"`
}

// DispatchItem is one (recipient, message) pair inside a job. Position
// fixes the strict FIFO processing order.
type DispatchItem struct {
	ID            string     `json:"id" db:"id"`
	JobID         string     `json:"job_id" db:"job_id"`
	Position      int        `json:"position" db:"position"`
	Recipient     string     `json:"recipient" db:"recipient"`
	RecipientName string     `json:"recipient_name" db:"recipient_name"`
	Body          string     `json:"body" db:"body"`
	Status        ItemStatus `json:"status" db:"status"`
	Error         string     `json:"error" db:"error"`
	SentAt        *time.Time `json:"sent_at" db:"sent_at"`
}

// JobProgress summarizes a job by scanning item statuses. There are no
// separate counters to keep in sync with the items.
type JobProgress struct {
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Pending int `json:"pending"`
	Sending int `json:"sending"`
	Skipped int `json:"skipped"`
	Total   int `json:"total"`
}

// ProgressOf derives job progress from the item list.
func ProgressOf(items []DispatchItem) JobProgress {
	p := JobProgress{Total: len(items)}
	for _, it := range items {
		switch it.Status {
		case ItemSent:
			p.Sent++
		case ItemFailed:
			p.Failed++
		case ItemPending:
			p.Pending++
		case ItemSending:
			p.Sending++
		case ItemSkipped:
			p.Skipped++
		}
	}
	return p
}

// Finished reports whether every item has reached a final status.
func (p JobProgress) Finished() bool { return p.Pending == 0 && p.Sending == 0 }
