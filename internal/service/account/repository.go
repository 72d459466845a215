package account

import (
	"context"
	"time"

	"github.com/atlasleads/sendguard/internal/domain"
)

// Repository defines the data access contract for sender accounts.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Create inserts a new account.
	Create(ctx context.Context, a *domain.SenderAccount) error

	// Get returns one account, archived or not. Returns ErrNotFound if
	// it doesn't exist.
	Get(ctx context.Context, id string) (*domain.SenderAccount, error)

	// List returns accounts ordered by health score ascending (worst
	// first, matching the operator dashboard). Archived accounts are
	// included only when includeArchived is set.
	List(ctx context.Context, includeArchived bool) ([]domain.SenderAccount, error)

	// UpdateQuota sets the operator-tunable quota fields.
	UpdateQuota(ctx context.Context, id string, maxDaily, minIntervalSeconds int) error

	// Archive soft-deletes the account. History referencing it stays.
	Archive(ctx context.Context, id string, at time.Time) error
}
