package account

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlasleads/sendguard/internal/domain"
)

type memRepo struct {
	mu       sync.Mutex
	accounts map[string]*domain.SenderAccount
}

func newMemRepo() *memRepo {
	return &memRepo{accounts: make(map[string]*domain.SenderAccount)}
}

func (r *memRepo) Create(_ context.Context, a *domain.SenderAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *a
	r.accounts[a.ID] = &cp
	return nil
}

func (r *memRepo) Get(_ context.Context, id string) (*domain.SenderAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *memRepo) List(_ context.Context, includeArchived bool) ([]domain.SenderAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.SenderAccount
	for _, a := range r.accounts {
		if a.Archived() && !includeArchived {
			continue
		}
		out = append(out, *a)
	}
	return out, nil
}

func (r *memRepo) UpdateQuota(_ context.Context, id string, maxDaily, minInterval int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return ErrNotFound
	}
	a.MaxDailyMessages = maxDaily
	a.MinIntervalSeconds = minInterval
	return nil
}

func (r *memRepo) Archive(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return ErrNotFound
	}
	t := at
	a.ArchivedAt = &t
	return nil
}

func newTestService(repo Repository) *Service {
	return NewService(repo, Defaults{MaxDailyMessages: 150, MinIntervalSeconds: 45}, domain.DefaultStatusThresholds)
}

func TestConnectAppliesDefaults(t *testing.T) {
	svc := newTestService(newMemRepo())

	v, err := svc.Connect(context.Background(), "Sales #1", "+15551234567")
	require.NoError(t, err)

	assert.NotEmpty(t, v.ID)
	assert.Equal(t, 150, v.MaxDailyMessages)
	assert.Equal(t, 45, v.MinIntervalSeconds)
	assert.Equal(t, 100, v.HealthScore)
	assert.Equal(t, domain.StatusSafe, v.HealthStatus)
}

func TestConnectRequiresLabel(t *testing.T) {
	svc := newTestService(newMemRepo())
	_, err := svc.Connect(context.Background(), "", "+15551234567")
	assert.Error(t, err)
}

func TestUpdateQuotaValidation(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	v, err := svc.Connect(context.Background(), "acc", "")
	require.NoError(t, err)

	assert.ErrorIs(t, svc.UpdateQuota(context.Background(), v.ID, 0, 30), ErrInvalidQuota)
	assert.ErrorIs(t, svc.UpdateQuota(context.Background(), v.ID, 100, -1), ErrInvalidQuota)
	assert.ErrorIs(t, svc.UpdateQuota(context.Background(), "ghost", 100, 30), ErrNotFound)

	require.NoError(t, svc.UpdateQuota(context.Background(), v.ID, 200, 0))
	got, err := svc.Get(context.Background(), v.ID)
	require.NoError(t, err)
	assert.Equal(t, 200, got.MaxDailyMessages)
	assert.Equal(t, 0, got.MinIntervalSeconds)
}

func TestArchiveIsIdempotentAndBlocksQuotaUpdates(t *testing.T) {
	svc := newTestService(newMemRepo())
	v, err := svc.Connect(context.Background(), "acc", "")
	require.NoError(t, err)

	require.NoError(t, svc.Archive(context.Background(), v.ID))
	require.NoError(t, svc.Archive(context.Background(), v.ID))

	assert.ErrorIs(t, svc.UpdateQuota(context.Background(), v.ID, 100, 30), ErrArchived)

	views, err := svc.List(context.Background(), false)
	require.NoError(t, err)
	assert.Empty(t, views)

	views, err = svc.List(context.Background(), true)
	require.NoError(t, err)
	assert.Len(t, views, 1)
}
