package dispatch

import (
	"context"
	"time"

	"github.com/atlasleads/sendguard/internal/domain"
)

// Repository defines the data access contract for dispatch jobs.
// Implementations must be safe for concurrent use.
type Repository interface {
	// CreateJob inserts a job and its items in one transaction.
	CreateJob(ctx context.Context, job *domain.DispatchJob, items []domain.DispatchItem) error

	// Job returns one job. Returns ErrNotFound if it doesn't exist.
	Job(ctx context.Context, id string) (*domain.DispatchJob, error)

	// Jobs returns the newest jobs first.
	Jobs(ctx context.Context, limit int) ([]domain.DispatchJob, error)

	// JobsInStatus returns jobs currently in the given status.
	JobsInStatus(ctx context.Context, status domain.JobStatus) ([]domain.DispatchJob, error)

	// Items returns a job's items in position order.
	Items(ctx context.Context, jobID string) ([]domain.DispatchItem, error)

	// NextPending returns the first pending item in position order, or
	// nil when none remain.
	NextPending(ctx context.Context, jobID string) (*domain.DispatchItem, error)

	// UpdateItem sets an item's status, error string, and sent time.
	UpdateItem(ctx context.Context, itemID string, status domain.ItemStatus, errMsg string, sentAt *time.Time) error

	// UpdateJobStatus transitions a job, recording an engine-initiated
	// pause reason and a completion time where applicable.
	UpdateJobStatus(ctx context.Context, jobID string, status domain.JobStatus, pauseReason string, completedAt *time.Time) error

	// RequeueFailed flips failed items back to pending, preserving
	// positions. Returns the number of items requeued.
	RequeueFailed(ctx context.Context, jobID string) (int, error)

	// SkipPending marks all pending items skipped (cancel path).
	// Returns the number of items skipped.
	SkipPending(ctx context.Context, jobID string) (int, error)

	// RequeueSending flips items stuck in sending back to pending, for
	// crash recovery at startup. Returns the number requeued.
	RequeueSending(ctx context.Context, jobID string) (int, error)
}
