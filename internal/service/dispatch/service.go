package dispatch

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/atlasleads/sendguard/internal/domain"
)

// AccountGetter is the slice of the account registry the dispatch service
// needs: existence checks at job creation.
type AccountGetter interface {
	Get(ctx context.Context, id string) (*domain.SenderAccount, error)
}

// Service implements dispatch job lifecycle and the job state machine.
// The run loop itself lives in the worker package; this service owns
// every status transition so the machine has one authority.
type Service struct {
	repo     Repository
	accounts AccountGetter
	renderer *Renderer
	now      func() time.Time
}

// NewService creates a dispatch service.
func NewService(repo Repository, accounts AccountGetter) *Service {
	return &Service{
		repo:     repo,
		accounts: accounts,
		renderer: NewRenderer(),
		now:      time.Now,
	}
}

// RecipientInput is one target row of a new job.
type RecipientInput struct {
	Phone  string                 `json:"phone"`
	Name   string                 `json:"name"`
	Fields map[string]interface{} `json:"fields,omitempty"`
}

// CreateInput is the config snapshot for a new job.
type CreateInput struct {
	AccountID    string           `json:"account_id"`
	CreatedBy    string           `json:"created_by"`
	BodyTemplate string           `json:"body_template"`
	DelaySeconds *int             `json:"delay_seconds,omitempty"`
	Recipients   []RecipientInput `json:"recipients"`
}

// Create validates input, renders every recipient's message body from the
// template, and persists the job in config status. Recipients without a
// usable address become skipped items immediately, before any sending
// begins.
func (s *Service) Create(ctx context.Context, input CreateInput) (*domain.DispatchJob, error) {
	if input.AccountID == "" {
		return nil, fmt.Errorf("account_id is required")
	}
	if input.BodyTemplate == "" {
		return nil, fmt.Errorf("body_template is required")
	}
	if len(input.Recipients) == 0 {
		return nil, ErrNoItems
	}
	if input.DelaySeconds != nil && *input.DelaySeconds < 0 {
		return nil, fmt.Errorf("delay_seconds must be >= 0")
	}

	if _, err := s.accounts.Get(ctx, input.AccountID); err != nil {
		return nil, err
	}

	now := s.now()
	job := &domain.DispatchJob{
		ID:           uuid.New().String(),
		CreatedBy:    input.CreatedBy,
		AccountID:    input.AccountID,
		BodyTemplate: input.BodyTemplate,
		DelaySeconds: input.DelaySeconds,
		Status:       domain.JobConfig,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	items := make([]domain.DispatchItem, 0, len(input.Recipients))
	for i, r := range input.Recipients {
		item := domain.DispatchItem{
			ID:            uuid.New().String(),
			JobID:         job.ID,
			Position:      i,
			Recipient:     normalizePhone(r.Phone),
			RecipientName: r.Name,
			Status:        domain.ItemPending,
		}

		if item.Recipient == "" {
			item.Status = domain.ItemSkipped
			item.Error = "recipient has no valid address"
		} else {
			body, err := s.renderer.Render(input.BodyTemplate, r)
			if err != nil {
				return nil, fmt.Errorf("render message for recipient %d: %w", i+1, err)
			}
			item.Body = body
		}
		items = append(items, item)
	}

	if err := s.repo.CreateJob(ctx, job, items); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	return job, nil
}

// JobView is a job with its derived progress attached.
type JobView struct {
	domain.DispatchJob
	Progress domain.JobProgress `json:"progress"`
}

// Get returns one job with progress.
func (s *Service) Get(ctx context.Context, id string) (*JobView, error) {
	job, err := s.repo.Job(ctx, id)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.Items(ctx, id)
	if err != nil {
		return nil, err
	}
	return &JobView{DispatchJob: *job, Progress: domain.ProgressOf(items)}, nil
}

// Items returns a job's items in position order.
func (s *Service) Items(ctx context.Context, id string) ([]domain.DispatchItem, error) {
	if _, err := s.repo.Job(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.Items(ctx, id)
}

// List returns the newest jobs with progress.
func (s *Service) List(ctx context.Context, limit int) ([]JobView, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	jobs, err := s.repo.Jobs(ctx, limit)
	if err != nil {
		return nil, err
	}
	views := make([]JobView, 0, len(jobs))
	for _, j := range jobs {
		items, err := s.repo.Items(ctx, j.ID)
		if err != nil {
			return nil, err
		}
		views = append(views, JobView{DispatchJob: j, Progress: domain.ProgressOf(items)})
	}
	return views, nil
}

// Progress derives the counts for one job by scanning item statuses.
func (s *Service) Progress(ctx context.Context, id string) (domain.JobProgress, error) {
	if _, err := s.repo.Job(ctx, id); err != nil {
		return domain.JobProgress{}, err
	}
	items, err := s.repo.Items(ctx, id)
	if err != nil {
		return domain.JobProgress{}, err
	}
	return domain.ProgressOf(items), nil
}

// allowedTransitions is the job state machine:
// config → previewing → running ⇄ paused → done.
var allowedTransitions = map[domain.JobStatus][]domain.JobStatus{
	domain.JobConfig:     {domain.JobPreviewing, domain.JobRunning},
	domain.JobPreviewing: {domain.JobConfig, domain.JobRunning},
	domain.JobRunning:    {domain.JobPaused, domain.JobDone},
	domain.JobPaused:     {domain.JobRunning, domain.JobDone},
	domain.JobDone:       {},
}

func transitionAllowed(from, to domain.JobStatus) bool {
	for _, t := range allowedTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// Transition moves a job to a new status, enforcing the state machine.
// pauseReason is recorded for engine-initiated pauses and cleared on any
// other transition.
func (s *Service) Transition(ctx context.Context, jobID string, to domain.JobStatus, pauseReason string) (*domain.DispatchJob, error) {
	job, err := s.repo.Job(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status.Terminal() {
		return nil, fmt.Errorf("%w: cannot move to %s", ErrJobDone, to)
	}
	if !transitionAllowed(job.Status, to) {
		return nil, fmt.Errorf("%w: %s → %s", ErrInvalidTransition, job.Status, to)
	}

	var completedAt *time.Time
	if to == domain.JobDone {
		t := s.now()
		completedAt = &t
	}
	if to != domain.JobPaused {
		pauseReason = ""
	}

	if err := s.repo.UpdateJobStatus(ctx, jobID, to, pauseReason, completedAt); err != nil {
		return nil, err
	}
	job.Status = to
	job.PauseReason = pauseReason
	job.CompletedAt = completedAt
	return job, nil
}

// Preview moves a job from config to the preview step.
func (s *Service) Preview(ctx context.Context, jobID string) (*domain.DispatchJob, error) {
	return s.Transition(ctx, jobID, domain.JobPreviewing, "")
}

// Pause halts a running job at its next safe boundary.
func (s *Service) Pause(ctx context.Context, jobID, reason string) (*domain.DispatchJob, error) {
	return s.Transition(ctx, jobID, domain.JobPaused, reason)
}

// Cancel forces a job to done from any non-terminal state and skips all
// remaining pending items.
func (s *Service) Cancel(ctx context.Context, jobID string) (*domain.DispatchJob, error) {
	job, err := s.repo.Job(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status.Terminal() {
		return nil, ErrJobDone
	}

	skipped, err := s.repo.SkipPending(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("skip pending items: %w", err)
	}
	t := s.now()
	if err := s.repo.UpdateJobStatus(ctx, jobID, domain.JobDone, "", &t); err != nil {
		return nil, err
	}

	job.Status = domain.JobDone
	job.PauseReason = ""
	job.CompletedAt = &t
	log.Printf("[Dispatch] job %s cancelled, %d pending items skipped", jobID, skipped)
	return job, nil
}

// RetryFailed re-queues failed items as pending. The job must be paused
// or done-with-failures; a done job re-opens as paused so the operator
// resumes it explicitly.
func (s *Service) RetryFailed(ctx context.Context, jobID string) (int, error) {
	job, err := s.repo.Job(ctx, jobID)
	if err != nil {
		return 0, err
	}
	if job.Status == domain.JobRunning {
		return 0, fmt.Errorf("%w: pause the job before retrying failures", ErrInvalidTransition)
	}

	n, err := s.repo.RequeueFailed(ctx, jobID)
	if err != nil {
		return 0, err
	}
	if n > 0 && job.Status == domain.JobDone {
		if err := s.repo.UpdateJobStatus(ctx, jobID, domain.JobPaused, "", nil); err != nil {
			return n, err
		}
	}
	return n, nil
}

func normalizePhone(phone string) string {
	out := make([]rune, 0, len(phone))
	for _, r := range phone {
		if (r >= '0' && r <= '9') || (r == '+' && len(out) == 0) {
			out = append(out, r)
		}
	}
	digits := len(out)
	if digits > 0 && out[0] == '+' {
		digits--
	}
	if digits < 8 || digits > 15 {
		return ""
	}
	return string(out)
}
