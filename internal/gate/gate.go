// Package gate answers "may this account send right now?" and enforces
// the answer. It owns the per-account serialization discipline: the
// check-then-act pair (CanSendNow + RecordSend) must never interleave for
// one account, or two workflows could both pass the check and race past
// the interval. Every send path in the engine goes through Dispatch,
// which holds the account's lock across check → deliver → record.
package gate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/atlasleads/sendguard/internal/domain"
)

// ErrSendNotRecorded reports that deliver succeeded but the follow-up
// counter write failed. The message is out; the account's quota state is
// stale until the next successful record.
var ErrSendNotRecorded = errors.New("send delivered but not recorded")

// Reason explains a gate decision. These are routine outcomes the caller
// branches on, not errors.
type Reason string

const (
	ReasonAllowed            Reason = "allowed"
	ReasonDailyQuotaExceeded Reason = "daily_quota_exceeded"
	ReasonIntervalNotElapsed Reason = "interval_not_elapsed"
	ReasonAccountUnhealthy   Reason = "account_unhealthy"
)

// Decision is the gate's answer for one account at one instant.
type Decision struct {
	Allowed bool `json:"allowed"`

	// RetryAfter is the wait until the answer could flip to allowed:
	// the remaining interval, or the time to the next daily reset for
	// an exhausted quota. Zero for AccountUnhealthy, which only clears
	// when the ledger raises the score again.
	RetryAfter time.Duration `json:"retry_after"`

	Reason Reason `json:"reason"`
}

// Store is the gate's view of per-account quota state. Implementations
// must be fast reads/writes; the per-account lock is held while they run.
type Store interface {
	// SendState returns the account's current quota and health state.
	// Unknown or archived accounts return the registry's not-found error.
	SendState(ctx context.Context, accountID string) (*domain.SenderAccount, error)

	// ApplySend increments daily and total sent counters and sets
	// last_sent_at, as a single atomic update.
	ApplySend(ctx context.Context, accountID string, at time.Time) error

	// ResetDailyCount zeroes daily_sent_count for one account.
	ResetDailyCount(ctx context.Context, accountID string) error
}

// Gate enforces quota, interval, and health stop per account.
type Gate struct {
	store      Store
	thresholds domain.StatusThresholds
	loc        *time.Location
	now        func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a gate. loc is the zone daily quotas reset in; nil means
// the system local zone.
func New(store Store, thresholds domain.StatusThresholds, loc *time.Location) *Gate {
	if loc == nil {
		loc = time.Local
	}
	return &Gate{
		store:      store,
		thresholds: thresholds,
		loc:        loc,
		now:        time.Now,
		locks:      make(map[string]*sync.Mutex),
	}
}

// SetNow overrides the clock, for tests.
func (g *Gate) SetNow(now func() time.Time) { g.now = now }

func (g *Gate) accountLock(accountID string) *sync.Mutex {
	g.mu.Lock()
	defer g.mu.Unlock()
	l, ok := g.locks[accountID]
	if !ok {
		l = &sync.Mutex{}
		g.locks[accountID] = l
	}
	return l
}

// WithAccountLock runs fn while holding the account's lock, serializing
// fn against every in-flight send on that account. The daily reset uses
// this so a send straddling midnight is fully accounted against the
// pre-reset day.
func (g *Gate) WithAccountLock(accountID string, fn func() error) error {
	l := g.accountLock(accountID)
	l.Lock()
	defer l.Unlock()
	return fn()
}

// CanSendNow reports whether the account may send at this instant.
// The answer is advisory the moment the lock is released; senders that
// need the answer to hold must use Dispatch.
func (g *Gate) CanSendNow(ctx context.Context, accountID string) (Decision, error) {
	l := g.accountLock(accountID)
	l.Lock()
	defer l.Unlock()
	return g.evaluate(ctx, accountID)
}

// RecordSend accounts a successful send: increments the daily counter and
// stamps last_sent_at. Call only after the underlying send succeeded.
func (g *Gate) RecordSend(ctx context.Context, accountID string) error {
	l := g.accountLock(accountID)
	l.Lock()
	defer l.Unlock()
	return g.store.ApplySend(ctx, accountID, g.now())
}

// Dispatch executes one gated send as an atomic unit: it holds the
// account's lock across the quota check, the deliver call, and the send
// record. deliver should return nil only when the message was actually
// delivered; the send is recorded exactly in that case.
//
// The returned Decision reports why the send was refused when
// Allowed=false; deliver is not called then. A non-nil error with an
// allowed Decision means delivery failed and nothing was recorded —
// unless the error matches ErrSendNotRecorded, in which case the message
// was delivered but the counter write failed.
func (g *Gate) Dispatch(ctx context.Context, accountID string, deliver func(ctx context.Context) error) (Decision, error) {
	l := g.accountLock(accountID)
	l.Lock()
	defer l.Unlock()

	d, err := g.evaluate(ctx, accountID)
	if err != nil || !d.Allowed {
		return d, err
	}

	if err := deliver(ctx); err != nil {
		return d, err
	}
	if err := g.store.ApplySend(ctx, accountID, g.now()); err != nil {
		return d, fmt.Errorf("%w: %v", ErrSendNotRecorded, err)
	}
	return d, nil
}

// ResetDailyCount zeroes one account's daily counter under its lock.
func (g *Gate) ResetDailyCount(ctx context.Context, accountID string) error {
	return g.WithAccountLock(accountID, func() error {
		return g.store.ResetDailyCount(ctx, accountID)
	})
}

// evaluate must run with the account lock held.
func (g *Gate) evaluate(ctx context.Context, accountID string) (Decision, error) {
	acc, err := g.store.SendState(ctx, accountID)
	if err != nil {
		return Decision{}, err
	}

	now := g.now()

	// Unhealthy is a hard stop regardless of remaining quota.
	if acc.Status(g.thresholds) == domain.StatusDanger {
		return Decision{Allowed: false, Reason: ReasonAccountUnhealthy}, nil
	}

	if acc.DailySentCount >= acc.MaxDailyMessages {
		return Decision{
			Allowed:    false,
			RetryAfter: g.untilNextMidnight(now),
			Reason:     ReasonDailyQuotaExceeded,
		}, nil
	}

	if acc.LastSentAt != nil && acc.MinIntervalSeconds > 0 {
		elapsed := now.Sub(*acc.LastSentAt)
		if elapsed < acc.MinInterval() {
			return Decision{
				Allowed:    false,
				RetryAfter: acc.MinInterval() - elapsed,
				Reason:     ReasonIntervalNotElapsed,
			}, nil
		}
	}

	return Decision{Allowed: true, Reason: ReasonAllowed}, nil
}

func (g *Gate) untilNextMidnight(now time.Time) time.Duration {
	local := now.In(g.loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, g.loc).AddDate(0, 0, 1)
	return next.Sub(local)
}
