package dispatch

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlasleads/sendguard/internal/domain"
	"github.com/atlasleads/sendguard/internal/service/account"
)

// memRepo is an in-memory Repository for service tests.
type memRepo struct {
	mu    sync.Mutex
	jobs  map[string]*domain.DispatchJob
	items map[string][]*domain.DispatchItem
}

func newMemRepo() *memRepo {
	return &memRepo{
		jobs:  make(map[string]*domain.DispatchJob),
		items: make(map[string][]*domain.DispatchItem),
	}
}

func (r *memRepo) CreateJob(_ context.Context, job *domain.DispatchJob, items []domain.DispatchItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *job
	r.jobs[job.ID] = &cp
	for i := range items {
		it := items[i]
		r.items[job.ID] = append(r.items[job.ID], &it)
	}
	return nil
}

func (r *memRepo) Job(_ context.Context, id string) (*domain.DispatchJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (r *memRepo) Jobs(_ context.Context, limit int) ([]domain.DispatchJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.DispatchJob
	for _, j := range r.jobs {
		out = append(out, *j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.After(out[k].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memRepo) JobsInStatus(_ context.Context, status domain.JobStatus) ([]domain.DispatchJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.DispatchJob
	for _, j := range r.jobs {
		if j.Status == status {
			out = append(out, *j)
		}
	}
	return out, nil
}

func (r *memRepo) Items(_ context.Context, jobID string) ([]domain.DispatchItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	items := r.items[jobID]
	out := make([]domain.DispatchItem, len(items))
	for i, it := range items {
		out[i] = *it
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Position < out[k].Position })
	return out, nil
}

func (r *memRepo) NextPending(_ context.Context, jobID string) (*domain.DispatchItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var next *domain.DispatchItem
	for _, it := range r.items[jobID] {
		if it.Status != domain.ItemPending {
			continue
		}
		if next == nil || it.Position < next.Position {
			next = it
		}
	}
	if next == nil {
		return nil, nil
	}
	cp := *next
	return &cp, nil
}

func (r *memRepo) UpdateItem(_ context.Context, itemID string, status domain.ItemStatus, errMsg string, sentAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, items := range r.items {
		for _, it := range items {
			if it.ID == itemID {
				it.Status = status
				it.Error = errMsg
				it.SentAt = sentAt
				return nil
			}
		}
	}
	return ErrNotFound
}

func (r *memRepo) UpdateJobStatus(_ context.Context, jobID string, status domain.JobStatus, pauseReason string, completedAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	j.Status = status
	j.PauseReason = pauseReason
	j.CompletedAt = completedAt
	return nil
}

func (r *memRepo) RequeueFailed(_ context.Context, jobID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, it := range r.items[jobID] {
		if it.Status == domain.ItemFailed {
			it.Status = domain.ItemPending
			it.Error = ""
			n++
		}
	}
	return n, nil
}

func (r *memRepo) SkipPending(_ context.Context, jobID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, it := range r.items[jobID] {
		if it.Status == domain.ItemPending {
			it.Status = domain.ItemSkipped
			n++
		}
	}
	return n, nil
}

func (r *memRepo) RequeueSending(_ context.Context, jobID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, it := range r.items[jobID] {
		if it.Status == domain.ItemSending {
			it.Status = domain.ItemPending
			n++
		}
	}
	return n, nil
}

type stubAccounts struct{ known map[string]bool }

func (s stubAccounts) Get(_ context.Context, id string) (*domain.SenderAccount, error) {
	if !s.known[id] {
		return nil, account.ErrNotFound
	}
	return &domain.SenderAccount{ID: id, MaxDailyMessages: 100, HealthScore: 100}, nil
}

func newTestService(repo Repository) *Service {
	return NewService(repo, stubAccounts{known: map[string]bool{"acc-1": true}})
}

func TestCreateRendersBodiesAndSkipsInvalidRecipients(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)

	job, err := svc.Create(context.Background(), CreateInput{
		AccountID:    "acc-1",
		CreatedBy:    "op-1",
		BodyTemplate: "Hi {{ name }}, your zone is {{ zone }}",
		Recipients: []RecipientInput{
			{Phone: "+15551234567", Name: "Dana", Fields: map[string]interface{}{"zone": "North"}},
			{Phone: "not-a-phone", Name: "Bad"},
			{Phone: "+15559876543", Name: "Sam", Fields: map[string]interface{}{"zone": "South"}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.JobConfig, job.Status)

	items, err := svc.Items(context.Background(), job.ID)
	require.NoError(t, err)
	require.Len(t, items, 3)

	assert.Equal(t, "Hi Dana, your zone is North", items[0].Body)
	assert.Equal(t, domain.ItemPending, items[0].Status)

	assert.Equal(t, domain.ItemSkipped, items[1].Status)
	assert.Equal(t, "recipient has no valid address", items[1].Error)

	assert.Equal(t, "Hi Sam, your zone is South", items[2].Body)
}

func TestCreateValidation(t *testing.T) {
	svc := newTestService(newMemRepo())
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{AccountID: "ghost", BodyTemplate: "x", Recipients: []RecipientInput{{Phone: "+15551234567"}}})
	assert.ErrorIs(t, err, account.ErrNotFound)

	_, err = svc.Create(ctx, CreateInput{AccountID: "acc-1", BodyTemplate: "x"})
	assert.ErrorIs(t, err, ErrNoItems)

	neg := -5
	_, err = svc.Create(ctx, CreateInput{AccountID: "acc-1", BodyTemplate: "x", DelaySeconds: &neg, Recipients: []RecipientInput{{Phone: "+15551234567"}}})
	assert.Error(t, err)
}

func createRunningJob(t *testing.T, svc *Service, n int) *domain.DispatchJob {
	t.Helper()
	recipients := make([]RecipientInput, n)
	for i := range recipients {
		recipients[i] = RecipientInput{Phone: "+1555123456" + string(rune('0'+i)), Name: "r"}
	}
	job, err := svc.Create(context.Background(), CreateInput{
		AccountID: "acc-1", BodyTemplate: "hello {{ name }}", Recipients: recipients,
	})
	require.NoError(t, err)
	_, err = svc.Transition(context.Background(), job.ID, domain.JobRunning, "")
	require.NoError(t, err)
	return job
}

func TestStateMachine(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	job := createRunningJob(t, svc, 2)

	// running → paused → running
	j, err := svc.Pause(ctx, job.ID, "operator pause")
	require.NoError(t, err)
	assert.Equal(t, domain.JobPaused, j.Status)
	assert.Equal(t, "operator pause", j.PauseReason)

	j, err = svc.Transition(ctx, job.ID, domain.JobRunning, "")
	require.NoError(t, err)
	assert.Equal(t, domain.JobRunning, j.Status)
	assert.Empty(t, j.PauseReason)

	// running → previewing is not a thing
	_, err = svc.Transition(ctx, job.ID, domain.JobPreviewing, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	// done is terminal
	_, err = svc.Transition(ctx, job.ID, domain.JobDone, "")
	require.NoError(t, err)
	_, err = svc.Transition(ctx, job.ID, domain.JobRunning, "")
	assert.ErrorIs(t, err, ErrJobDone)
}

func TestCancelSkipsRemainingPending(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	job := createRunningJob(t, svc, 4)

	// Simulate two items already handled.
	items, _ := svc.Items(ctx, job.ID)
	require.NoError(t, repo.UpdateItem(ctx, items[0].ID, domain.ItemSent, "", nil))
	require.NoError(t, repo.UpdateItem(ctx, items[1].ID, domain.ItemFailed, "boom", nil))

	j, err := svc.Cancel(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobDone, j.Status)
	require.NotNil(t, j.CompletedAt)

	p, err := svc.Progress(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Sent)
	assert.Equal(t, 1, p.Failed)
	assert.Equal(t, 2, p.Skipped)
	assert.Equal(t, 0, p.Pending)

	// Cancel on a done job fails.
	_, err = svc.Cancel(ctx, job.ID)
	assert.ErrorIs(t, err, ErrJobDone)
}

func TestRetryFailedRequeuesAndReopens(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	job := createRunningJob(t, svc, 3)
	items, _ := svc.Items(ctx, job.ID)
	repo.UpdateItem(ctx, items[0].ID, domain.ItemSent, "", nil)
	repo.UpdateItem(ctx, items[1].ID, domain.ItemFailed, "nope", nil)
	repo.UpdateItem(ctx, items[2].ID, domain.ItemFailed, "nope", nil)

	// Running jobs refuse retry.
	_, err := svc.RetryFailed(ctx, job.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = svc.Transition(ctx, job.ID, domain.JobDone, "")
	require.NoError(t, err)

	n, err := svc.RetryFailed(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	j, _ := svc.Get(ctx, job.ID)
	assert.Equal(t, domain.JobPaused, j.Status)
	assert.Equal(t, 2, j.Progress.Pending)
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in  string
		out string
	}{
		{"+1 (555) 123-4567", "+15551234567"},
		{"15551234567", "15551234567"},
		{"123", ""},
		{"", ""},
		{"++15551234567", "+15551234567"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.out, normalizePhone(tt.in), "input %q", tt.in)
	}
}
