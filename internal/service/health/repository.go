package health

import (
	"context"
	"time"

	"github.com/atlasleads/sendguard/internal/domain"
)

// Repository defines the ledger's data access contract. Unknown account
// ids map to the registry's account.ErrNotFound.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Account returns an active account's current state.
	Account(ctx context.Context, id string) (*domain.SenderAccount, error)

	// Accounts returns all active accounts.
	Accounts(ctx context.Context) ([]domain.SenderAccount, error)

	// UpdateScore persists a new score and stamps last_score_update.
	UpdateScore(ctx context.Context, id string, score int, at time.Time) error

	// IncrementIncident bumps the counter for the given incident type.
	// no_reply also advances the consecutive streak; other types leave
	// the streak untouched.
	IncrementIncident(ctx context.Context, id string, t domain.HealthEventType) error

	// RecordReply bumps total_received_count and clears the no-reply
	// streak.
	RecordReply(ctx context.Context, id string) error

	// AppendEvent inserts one immutable health event.
	AppendEvent(ctx context.Context, e *domain.HealthEvent) error

	// Events returns the newest events for an account, newest first.
	Events(ctx context.Context, id string, limit int) ([]domain.HealthEvent, error)

	// EventsSince returns events at or after the given time, oldest
	// first, for the recompute decay pass.
	EventsSince(ctx context.Context, id string, since time.Time) ([]domain.HealthEvent, error)
}

// DailyResetter serializes a counter reset against in-flight sends on the
// same account. The throttle gate implements it.
type DailyResetter interface {
	ResetDailyCount(ctx context.Context, accountID string) error
}
