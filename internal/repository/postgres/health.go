package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/atlasleads/sendguard/internal/domain"
	"github.com/atlasleads/sendguard/internal/service/account"
)

// HealthRepo implements health.Repository against PostgreSQL. It shares
// the sender_accounts table with AccountRepo and owns health_events.
type HealthRepo struct{ db *sql.DB }

// NewHealthRepo creates a Postgres-backed health ledger repository.
func NewHealthRepo(db *sql.DB) *HealthRepo { return &HealthRepo{db: db} }

func (r *HealthRepo) Account(ctx context.Context, id string) (*domain.SenderAccount, error) {
	a, err := scanAccount(r.db.QueryRowContext(ctx, `
		SELECT `+accountColumns+`
		FROM sender_accounts
		WHERE id = $1 AND archived_at IS NULL
	`, id))
	if err == sql.ErrNoRows {
		return nil, account.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

func (r *HealthRepo) Accounts(ctx context.Context) ([]domain.SenderAccount, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+accountColumns+`
		FROM sender_accounts
		WHERE archived_at IS NULL
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var out []domain.SenderAccount
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (r *HealthRepo) UpdateScore(ctx context.Context, id string, score int, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sender_accounts
		SET health_score = $2, last_score_update = $3, updated_at = NOW()
		WHERE id = $1 AND archived_at IS NULL
	`, id, score, at)
	if err != nil {
		return fmt.Errorf("update score: %w", err)
	}
	return requireRow(res, account.ErrNotFound)
}

func (r *HealthRepo) IncrementIncident(ctx context.Context, id string, t domain.HealthEventType) error {
	var set string
	switch t {
	case domain.EventReport:
		set = `report_count = report_count + 1`
	case domain.EventBlock:
		set = `block_count = block_count + 1`
	case domain.EventNoReply:
		set = `no_reply_count = no_reply_count + 1, no_reply_streak = no_reply_streak + 1`
	default:
		return fmt.Errorf("increment incident: no counter for %q", t)
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE sender_accounts
		SET `+set+`, updated_at = NOW()
		WHERE id = $1 AND archived_at IS NULL
	`, id)
	if err != nil {
		return fmt.Errorf("increment incident: %w", err)
	}
	return requireRow(res, account.ErrNotFound)
}

func (r *HealthRepo) RecordReply(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sender_accounts
		SET total_received_count = total_received_count + 1,
		    no_reply_streak = 0,
		    updated_at = NOW()
		WHERE id = $1 AND archived_at IS NULL
	`, id)
	if err != nil {
		return fmt.Errorf("record reply: %w", err)
	}
	return requireRow(res, account.ErrNotFound)
}

func (r *HealthRepo) AppendEvent(ctx context.Context, e *domain.HealthEvent) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO health_events (id, account_id, event_type, score_before, score_after, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, e.ID, e.AccountID, e.Type, e.ScoreBefore, e.ScoreAfter, e.Description, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("append health event: %w", err)
	}
	return nil
}

func (r *HealthRepo) Events(ctx context.Context, id string, limit int) ([]domain.HealthEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, account_id, event_type, score_before, score_after, COALESCE(description,''), created_at
		FROM health_events
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, id, limit)
	if err != nil {
		return nil, fmt.Errorf("list health events: %w", err)
	}
	defer rows.Close()
	return collectEvents(rows)
}

func (r *HealthRepo) EventsSince(ctx context.Context, id string, since time.Time) ([]domain.HealthEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, account_id, event_type, score_before, score_after, COALESCE(description,''), created_at
		FROM health_events
		WHERE account_id = $1 AND created_at >= $2
		ORDER BY created_at ASC
	`, id, since)
	if err != nil {
		return nil, fmt.Errorf("list health events since: %w", err)
	}
	defer rows.Close()
	return collectEvents(rows)
}

func collectEvents(rows *sql.Rows) ([]domain.HealthEvent, error) {
	var out []domain.HealthEvent
	for rows.Next() {
		var e domain.HealthEvent
		if err := rows.Scan(&e.ID, &e.AccountID, &e.Type, &e.ScoreBefore, &e.ScoreAfter, &e.Description, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan health event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
