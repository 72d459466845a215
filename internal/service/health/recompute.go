package health

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/atlasleads/sendguard/internal/domain"
)

// RecomputeResult is the outcome of a re-derivation pass for one account.
type RecomputeResult struct {
	AccountID string              `json:"account_id"`
	Label     string              `json:"label"`
	Score     int                 `json:"score"`
	Status    domain.HealthStatus `json:"status"`
	Reasons   []string            `json:"reasons"`
}

// RecomputeScore re-derives an account's score from first principles:
// quota pressure, reply rate, decayed incident history, and no-reply
// ratio. Unlike RecordEvent's incremental deltas, this pass lets old
// incidents fade, so a quiet account slowly recovers.
func (s *Service) RecomputeScore(ctx context.Context, accountID string) (*RecomputeResult, error) {
	acc, err := s.repo.Account(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return s.recompute(ctx, acc)
}

// RecomputeAll runs the re-derivation pass over every active account.
func (s *Service) RecomputeAll(ctx context.Context) ([]RecomputeResult, error) {
	accounts, err := s.repo.Accounts(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]RecomputeResult, 0, len(accounts))
	for i := range accounts {
		r, err := s.recompute(ctx, &accounts[i])
		if err != nil {
			return nil, fmt.Errorf("recompute %s: %w", accounts[i].ID, err)
		}
		results = append(results, *r)
	}
	return results, nil
}

func (s *Service) recompute(ctx context.Context, acc *domain.SenderAccount) (*RecomputeResult, error) {
	now := s.now()
	score := 100
	var reasons []string

	// 1. Daily quota pressure: sustained sending near the cap is itself
	// a flag signal, even before any incident arrives.
	if acc.MaxDailyMessages > 0 {
		ratio := float64(acc.DailySentCount) / float64(acc.MaxDailyMessages)
		switch {
		case ratio > 0.9:
			score -= 25
			reasons = append(reasons, "above 90% of daily quota")
		case ratio > 0.75:
			score -= 15
			reasons = append(reasons, "above 75% of daily quota")
		case ratio > 0.5:
			score -= 5
			reasons = append(reasons, "above 50% of daily quota")
		}
	}

	// 2. Reply rate: one-way traffic looks like broadcast spam.
	if acc.TotalSentCount > 0 {
		replyRate := float64(acc.TotalReceivedCount) / float64(acc.TotalSentCount)
		switch {
		case replyRate < 0.05:
			score -= 20
			reasons = append(reasons, "reply rate below 5%")
		case replyRate < 0.1:
			score -= 10
			reasons = append(reasons, "reply rate below 10%")
		}
	}

	// 3-4. Reports and blocks, decayed by age so that old incidents
	// matter less. Each event contributes 0.5^(age/halfLife).
	window := now.Add(-4 * s.cfg.DecayHalfLife)
	events, err := s.repo.EventsSince(ctx, acc.ID, window)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}

	var effReports, effBlocks float64
	for _, e := range events {
		w := s.decayWeight(now.Sub(e.CreatedAt))
		switch e.Type {
		case domain.EventReport:
			effReports += w
		case domain.EventBlock:
			effBlocks += w
		}
	}

	switch {
	case effReports >= 5:
		score -= 30
		reasons = append(reasons, fmt.Sprintf("%.1f weighted reports", effReports))
	case effReports >= 2:
		score -= 15
		reasons = append(reasons, fmt.Sprintf("%.1f weighted reports", effReports))
	case effReports >= 1:
		score -= 8
		reasons = append(reasons, "recent report on record")
	}

	switch {
	case effBlocks >= 10:
		score -= 25
		reasons = append(reasons, fmt.Sprintf("%.1f weighted blocks", effBlocks))
	case effBlocks >= 5:
		score -= 15
		reasons = append(reasons, fmt.Sprintf("%.1f weighted blocks", effBlocks))
	case effBlocks >= 1:
		score -= 5
		reasons = append(reasons, "recent block on record")
	}

	// 5. No-reply ratio over lifetime traffic.
	if acc.TotalSentCount > 0 {
		noReplyRatio := float64(acc.NoReplyCount) / float64(acc.TotalSentCount)
		switch {
		case noReplyRatio > 0.7:
			score -= 15
			reasons = append(reasons, "over 70% of messages unanswered")
		case noReplyRatio > 0.5:
			score -= 8
			reasons = append(reasons, "over 50% of messages unanswered")
		}
	}

	score = domain.ClampScore(score)
	before := acc.HealthScore

	if err := s.repo.UpdateScore(ctx, acc.ID, score, now); err != nil {
		return nil, fmt.Errorf("update score: %w", err)
	}

	// A notable move gets its own audit event so the log explains it.
	if abs(score-before) >= s.cfg.MinEventDelta {
		t := domain.EventScoreRise
		if score < before {
			t = domain.EventScoreDrop
		}
		desc := strings.Join(reasons, " | ")
		if desc == "" {
			desc = "periodic recompute"
		}
		event := &domain.HealthEvent{
			ID:          uuid.New().String(),
			AccountID:   acc.ID,
			Type:        t,
			ScoreBefore: before,
			ScoreAfter:  score,
			Description: desc,
			CreatedAt:   now,
		}
		if err := s.repo.AppendEvent(ctx, event); err != nil {
			return nil, fmt.Errorf("append event: %w", err)
		}
	}

	return &RecomputeResult{
		AccountID: acc.ID,
		Label:     acc.Label,
		Score:     score,
		Status:    domain.StatusFromScore(score, s.cfg.Thresholds),
		Reasons:   reasons,
	}, nil
}

func (s *Service) decayWeight(age time.Duration) float64 {
	if s.cfg.DecayHalfLife <= 0 {
		return 1
	}
	if age < 0 {
		age = 0
	}
	return math.Pow(0.5, float64(age)/float64(s.cfg.DecayHalfLife))
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
