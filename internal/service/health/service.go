package health

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/atlasleads/sendguard/internal/domain"
)

// Deltas are the per-event score penalties. They are product-tuning
// values loaded from configuration, not constants.
type Deltas struct {
	Report  int
	Block   int
	NoReply int

	// NoReplyStreakCap stops no_reply penalties once the consecutive
	// streak reaches this length; the event is still logged.
	NoReplyStreakCap int
}

// Config holds the ledger's tuning knobs.
type Config struct {
	Deltas     Deltas
	Thresholds domain.StatusThresholds

	// DecayHalfLife controls incident recency decay during recompute:
	// an incident this old counts half, twice this old a quarter.
	DecayHalfLife time.Duration

	// MinEventDelta is the smallest recompute movement that gets its own
	// score_drop/score_rise audit event.
	MinEventDelta int
}

// Service is the health ledger: the only write path to an account's
// health score. Every mutation appends a HealthEvent, so the event log
// always explains the current score.
type Service struct {
	repo     Repository
	resetter DailyResetter
	cfg      Config
	now      func() time.Time
}

// NewService creates the ledger. resetter serializes daily resets against
// in-flight sends; pass the throttle gate.
func NewService(repo Repository, resetter DailyResetter, cfg Config) *Service {
	return &Service{repo: repo, resetter: resetter, cfg: cfg, now: time.Now}
}

// SetNow overrides the clock, for tests.
func (s *Service) SetNow(now func() time.Time) { s.now = now }

// RecordEvent applies one scoring event to an account: computes the
// delta, clamps the new score to [0,100], persists it, and appends the
// audit event. manualDelta is only consulted for manual_adjustment and
// must be non-zero there.
func (s *Service) RecordEvent(ctx context.Context, accountID string, eventType domain.HealthEventType, description string, manualDelta int) (*domain.HealthEvent, error) {
	if !domain.ValidIncidentType(eventType) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, eventType)
	}

	acc, err := s.repo.Account(ctx, accountID)
	if err != nil {
		return nil, err
	}

	var delta int
	switch eventType {
	case domain.EventReport:
		delta = s.cfg.Deltas.Report
	case domain.EventBlock:
		delta = s.cfg.Deltas.Block
	case domain.EventNoReply:
		// The penalty stops accruing once the consecutive streak hits
		// the cap; the incident is still counted and logged.
		if acc.NoReplyStreak < s.cfg.Deltas.NoReplyStreakCap {
			delta = s.cfg.Deltas.NoReply
		}
	case domain.EventManualAdjustment:
		if manualDelta == 0 {
			return nil, fmt.Errorf("%w: manual adjustment requires a non-zero delta", ErrInvalidDelta)
		}
		delta = manualDelta
	}

	before := acc.HealthScore
	after := domain.ClampScore(before + delta)

	if eventType != domain.EventManualAdjustment {
		if err := s.repo.IncrementIncident(ctx, accountID, eventType); err != nil {
			return nil, fmt.Errorf("increment incident: %w", err)
		}
	}
	if err := s.repo.UpdateScore(ctx, accountID, after, s.now()); err != nil {
		return nil, fmt.Errorf("update score: %w", err)
	}

	if description == "" {
		description = defaultDescription(eventType, delta)
	}
	event := &domain.HealthEvent{
		ID:          uuid.New().String(),
		AccountID:   accountID,
		Type:        eventType,
		ScoreBefore: before,
		ScoreAfter:  after,
		Description: description,
		CreatedAt:   s.now(),
	}
	if err := s.repo.AppendEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("append event: %w", err)
	}

	status := domain.StatusFromScore(after, s.cfg.Thresholds)
	if status == domain.StatusDanger || status == domain.StatusWarning {
		log.Printf("[HealthLedger] account %s dropped to %d (%s) after %s", accountID, after, status, eventType)
	}
	return event, nil
}

func defaultDescription(t domain.HealthEventType, delta int) string {
	switch t {
	case domain.EventReport:
		return "recipient reported the account"
	case domain.EventBlock:
		return "recipient blocked the account"
	case domain.EventNoReply:
		if delta == 0 {
			return "message went unanswered (streak capped, no further penalty)"
		}
		return "message went unanswered"
	default:
		return fmt.Sprintf("manual score adjustment (%+d)", delta)
	}
}

// ReportIncident is the external signal entry point (delivery failure
// feedback, operator-observed report or block).
func (s *Service) ReportIncident(ctx context.Context, accountID string, eventType domain.HealthEventType, description string) (*domain.HealthEvent, error) {
	if eventType == domain.EventManualAdjustment {
		return nil, fmt.Errorf("%w: manual adjustments go through RecordEvent with a delta", ErrUnknownEventType)
	}
	return s.RecordEvent(ctx, accountID, eventType, description, 0)
}

// RecordReply notes that an account received a reply, which clears its
// no-reply streak and improves its reply rate for the next recompute.
func (s *Service) RecordReply(ctx context.Context, accountID string) error {
	if _, err := s.repo.Account(ctx, accountID); err != nil {
		return err
	}
	return s.repo.RecordReply(ctx, accountID)
}

// Events returns the newest audit events for an account.
func (s *Service) Events(ctx context.Context, accountID string, limit int) ([]domain.HealthEvent, error) {
	if _, err := s.repo.Account(ctx, accountID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	return s.repo.Events(ctx, accountID, limit)
}

// Summary aggregates account health for the dashboard.
type Summary struct {
	Total    int `json:"total"`
	Safe     int `json:"safe"`
	Watch    int `json:"watch"`
	Warning  int `json:"warning"`
	Danger   int `json:"danger"`
	AvgScore int `json:"avg_score"`
}

// Summarize counts accounts per status band.
func (s *Service) Summarize(ctx context.Context) (*Summary, error) {
	accounts, err := s.repo.Accounts(ctx)
	if err != nil {
		return nil, err
	}

	sum := &Summary{Total: len(accounts), AvgScore: 100}
	if len(accounts) == 0 {
		return sum, nil
	}

	scoreTotal := 0
	for _, a := range accounts {
		scoreTotal += a.HealthScore
		switch a.Status(s.cfg.Thresholds) {
		case domain.StatusSafe:
			sum.Safe++
		case domain.StatusWatch:
			sum.Watch++
		case domain.StatusWarning:
			sum.Warning++
		case domain.StatusDanger:
			sum.Danger++
		}
	}
	sum.AvgScore = scoreTotal / len(accounts)
	return sum, nil
}

// ResetDailyCounters zeroes every account's daily sent counter. Each
// reset is serialized against in-flight sends on that account, so a send
// straddling the boundary lands on the pre-reset day. Health scores are
// untouched. Returns how many accounts were reset.
func (s *Service) ResetDailyCounters(ctx context.Context) (int, error) {
	accounts, err := s.repo.Accounts(ctx)
	if err != nil {
		return 0, err
	}

	reset := 0
	for _, a := range accounts {
		if err := s.resetter.ResetDailyCount(ctx, a.ID); err != nil {
			log.Printf("[HealthLedger] daily reset failed for %s: %v", a.ID, err)
			continue
		}
		reset++
	}
	log.Printf("[HealthLedger] daily counters reset for %d/%d accounts", reset, len(accounts))
	return reset, nil
}
