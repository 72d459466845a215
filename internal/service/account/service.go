package account

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/atlasleads/sendguard/internal/domain"
)

// Defaults are the quota values assigned to newly connected accounts.
// Chosen conservatively; operators can raise them per account once the
// account has history.
type Defaults struct {
	MaxDailyMessages   int
	MinIntervalSeconds int
}

// Service implements the account registry: connecting, quota updates, and
// archival. Score mutation lives in the health ledger, not here.
type Service struct {
	repo       Repository
	defaults   Defaults
	thresholds domain.StatusThresholds
	now        func() time.Time
}

// NewService creates an account service backed by the given repository.
func NewService(repo Repository, defaults Defaults, thresholds domain.StatusThresholds) *Service {
	return &Service{
		repo:       repo,
		defaults:   defaults,
		thresholds: thresholds,
		now:        time.Now,
	}
}

// View is an account snapshot with its derived status attached, the shape
// the API layer returns.
type View struct {
	domain.SenderAccount
	HealthStatus domain.HealthStatus `json:"health_status"`
}

func (s *Service) view(a domain.SenderAccount) View {
	return View{SenderAccount: a, HealthStatus: a.Status(s.thresholds)}
}

// Connect registers a newly connected channel account with conservative
// default quotas and a fresh score of 100.
func (s *Service) Connect(ctx context.Context, label, phoneNumber string) (*View, error) {
	if label == "" {
		return nil, fmt.Errorf("label is required")
	}

	now := s.now()
	a := &domain.SenderAccount{
		ID:                 uuid.New().String(),
		Label:              label,
		PhoneNumber:        phoneNumber,
		MaxDailyMessages:   s.defaults.MaxDailyMessages,
		MinIntervalSeconds: s.defaults.MinIntervalSeconds,
		HealthScore:        100,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}

	v := s.view(*a)
	return &v, nil
}

// Get returns one account with its derived status.
func (s *Service) Get(ctx context.Context, id string) (*View, error) {
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	v := s.view(*a)
	return &v, nil
}

// List returns active accounts ordered worst score first.
func (s *Service) List(ctx context.Context, includeArchived bool) ([]View, error) {
	accounts, err := s.repo.List(ctx, includeArchived)
	if err != nil {
		return nil, err
	}
	views := make([]View, 0, len(accounts))
	for _, a := range accounts {
		views = append(views, s.view(a))
	}
	return views, nil
}

// UpdateQuota sets the account's daily cap and minimum interval.
// maxDaily must be positive and minIntervalSeconds non-negative;
// malformed input is rejected, never silently clamped.
func (s *Service) UpdateQuota(ctx context.Context, id string, maxDaily, minIntervalSeconds int) error {
	if maxDaily <= 0 {
		return fmt.Errorf("%w: max_daily_messages must be > 0", ErrInvalidQuota)
	}
	if minIntervalSeconds < 0 {
		return fmt.Errorf("%w: min_interval_seconds must be >= 0", ErrInvalidQuota)
	}

	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if a.Archived() {
		return ErrArchived
	}
	return s.repo.UpdateQuota(ctx, id, maxDaily, minIntervalSeconds)
}

// Archive soft-deletes a disconnected account. Idempotent: archiving an
// already archived account is a no-op.
func (s *Service) Archive(ctx context.Context, id string) error {
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if a.Archived() {
		return nil
	}
	return s.repo.Archive(ctx, id, s.now())
}
