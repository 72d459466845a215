package gate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlasleads/sendguard/internal/domain"
)

var errNotFound = errors.New("account not found")

// memStore is an in-memory Store for gate tests.
type memStore struct {
	mu           sync.Mutex
	accounts     map[string]*domain.SenderAccount
	applySendErr error
}

func newMemStore(accounts ...*domain.SenderAccount) *memStore {
	s := &memStore{accounts: make(map[string]*domain.SenderAccount)}
	for _, a := range accounts {
		s.accounts[a.ID] = a
	}
	return s
}

func (s *memStore) SendState(_ context.Context, id string) (*domain.SenderAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok || a.Archived() {
		return nil, errNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *memStore) ApplySend(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.applySendErr != nil {
		return s.applySendErr
	}
	a, ok := s.accounts[id]
	if !ok {
		return errNotFound
	}
	a.DailySentCount++
	a.TotalSentCount++
	t := at
	a.LastSentAt = &t
	return nil
}

func (s *memStore) ResetDailyCount(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return errNotFound
	}
	a.DailySentCount = 0
	return nil
}

func testAccount(id string) *domain.SenderAccount {
	return &domain.SenderAccount{
		ID:                 id,
		Label:              "test",
		MaxDailyMessages:   100,
		MinIntervalSeconds: 30,
		HealthScore:        100,
	}
}

func newTestGate(store Store) *Gate {
	return New(store, domain.DefaultStatusThresholds, time.UTC)
}

func TestCanSendNowAllowed(t *testing.T) {
	g := newTestGate(newMemStore(testAccount("a1")))

	d, err := g.CanSendNow(context.Background(), "a1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, ReasonAllowed, d.Reason)
}

func TestCanSendNowUnknownAccount(t *testing.T) {
	g := newTestGate(newMemStore())

	_, err := g.CanSendNow(context.Background(), "ghost")
	assert.ErrorIs(t, err, errNotFound)
}

func TestIntervalNotElapsed(t *testing.T) {
	acc := testAccount("a1")
	g := newTestGate(newMemStore(acc))

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	g.SetNow(func() time.Time { return base })

	require.NoError(t, g.RecordSend(context.Background(), "a1"))

	// Immediately after a send the interval has not elapsed.
	d, err := g.CanSendNow(context.Background(), "a1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonIntervalNotElapsed, d.Reason)
	assert.Equal(t, 30*time.Second, d.RetryAfter)

	// 10s later the exact remaining wait is reported.
	g.SetNow(func() time.Time { return base.Add(10 * time.Second) })
	d, _ = g.CanSendNow(context.Background(), "a1")
	assert.False(t, d.Allowed)
	assert.Equal(t, 20*time.Second, d.RetryAfter)

	// After the interval the account may send again.
	g.SetNow(func() time.Time { return base.Add(31 * time.Second) })
	d, _ = g.CanSendNow(context.Background(), "a1")
	assert.True(t, d.Allowed)
}

func TestDailyQuotaExceeded(t *testing.T) {
	acc := testAccount("a1")
	acc.MaxDailyMessages = 3
	acc.DailySentCount = 3
	g := newTestGate(newMemStore(acc))

	now := time.Date(2025, 6, 1, 20, 0, 0, 0, time.UTC)
	g.SetNow(func() time.Time { return now })

	d, err := g.CanSendNow(context.Background(), "a1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonDailyQuotaExceeded, d.Reason)
	// retry after the next local midnight
	assert.Equal(t, 4*time.Hour, d.RetryAfter)
}

func TestUnhealthyIsHardStop(t *testing.T) {
	acc := testAccount("a1")
	acc.HealthScore = 25 // danger, full quota remaining
	g := newTestGate(newMemStore(acc))

	d, err := g.CanSendNow(context.Background(), "a1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonAccountUnhealthy, d.Reason)
}

func TestDispatchRecordsOnlyOnSuccess(t *testing.T) {
	acc := testAccount("a1")
	acc.MinIntervalSeconds = 0
	store := newMemStore(acc)
	g := newTestGate(store)

	// failed delivery records nothing
	sendErr := errors.New("delivery failed")
	d, err := g.Dispatch(context.Background(), "a1", func(context.Context) error { return sendErr })
	assert.True(t, d.Allowed)
	assert.ErrorIs(t, err, sendErr)

	state, _ := store.SendState(context.Background(), "a1")
	assert.Equal(t, 0, state.DailySentCount)
	assert.Nil(t, state.LastSentAt)

	// successful delivery records exactly one send
	d, err = g.Dispatch(context.Background(), "a1", func(context.Context) error { return nil })
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	state, _ = store.SendState(context.Background(), "a1")
	assert.Equal(t, 1, state.DailySentCount)
	assert.NotNil(t, state.LastSentAt)
}

func TestDispatchFlagsUnrecordedDelivery(t *testing.T) {
	acc := testAccount("a1")
	acc.MinIntervalSeconds = 0
	store := newMemStore(acc)
	store.applySendErr = errors.New("connection reset")
	g := newTestGate(store)

	delivered := false
	d, err := g.Dispatch(context.Background(), "a1", func(context.Context) error {
		delivered = true
		return nil
	})
	assert.True(t, delivered)
	assert.True(t, d.Allowed)
	// The caller can tell a lost counter write from a lost message.
	assert.ErrorIs(t, err, ErrSendNotRecorded)
}

func TestDispatchSkipsDeliverWhenRefused(t *testing.T) {
	acc := testAccount("a1")
	acc.HealthScore = 10
	g := newTestGate(newMemStore(acc))

	called := false
	d, err := g.Dispatch(context.Background(), "a1", func(context.Context) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.False(t, called, "deliver must not run when the gate refuses")
}

// TestConcurrentSendsNeverExceedQuota fires N+5 concurrent dispatch
// attempts at an account with quota N and asserts exactly N succeed.
func TestConcurrentSendsNeverExceedQuota(t *testing.T) {
	const quota = 20

	acc := testAccount("a1")
	acc.MaxDailyMessages = quota
	acc.MinIntervalSeconds = 0
	store := newMemStore(acc)
	g := newTestGate(store)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0

	for i := 0; i < quota+5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := g.Dispatch(context.Background(), "a1", func(context.Context) error { return nil })
			if err == nil && d.Allowed {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, quota, succeeded)

	state, _ := store.SendState(context.Background(), "a1")
	assert.Equal(t, quota, state.DailySentCount)
}

// TestConcurrentSendsRespectInterval verifies that two workflows sharing
// an account cannot both pass the gate inside one interval window.
func TestConcurrentSendsRespectInterval(t *testing.T) {
	acc := testAccount("a1")
	store := newMemStore(acc)
	g := newTestGate(store)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	g.SetNow(func() time.Time { return base })

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := g.Dispatch(context.Background(), "a1", func(context.Context) error { return nil })
			if err == nil && d.Allowed {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// With a frozen clock only the first dispatch can fit in the window.
	assert.Equal(t, 1, succeeded)
}

func TestResetDailyCount(t *testing.T) {
	acc := testAccount("a1")
	acc.DailySentCount = 42
	store := newMemStore(acc)
	g := newTestGate(store)

	require.NoError(t, g.ResetDailyCount(context.Background(), "a1"))

	state, _ := store.SendState(context.Background(), "a1")
	assert.Equal(t, 0, state.DailySentCount)
}
