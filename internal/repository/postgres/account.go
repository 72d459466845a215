package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/atlasleads/sendguard/internal/domain"
	"github.com/atlasleads/sendguard/internal/service/account"
)

// AccountRepo implements account.Repository and the throttle gate's
// store against PostgreSQL.
type AccountRepo struct{ db *sql.DB }

// NewAccountRepo creates a Postgres-backed account repository.
func NewAccountRepo(db *sql.DB) *AccountRepo { return &AccountRepo{db: db} }

const accountColumns = `
	id, label, COALESCE(phone_number,''), max_daily_messages, min_interval_seconds,
	daily_sent_count, last_sent_at, total_sent_count, total_received_count,
	health_score, last_score_update,
	report_count, block_count, no_reply_count, no_reply_streak,
	created_at, updated_at, archived_at`

func scanAccount(row interface{ Scan(...interface{}) error }) (*domain.SenderAccount, error) {
	a := &domain.SenderAccount{}
	err := row.Scan(
		&a.ID, &a.Label, &a.PhoneNumber, &a.MaxDailyMessages, &a.MinIntervalSeconds,
		&a.DailySentCount, &a.LastSentAt, &a.TotalSentCount, &a.TotalReceivedCount,
		&a.HealthScore, &a.LastScoreUpdate,
		&a.ReportCount, &a.BlockCount, &a.NoReplyCount, &a.NoReplyStreak,
		&a.CreatedAt, &a.UpdatedAt, &a.ArchivedAt,
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (r *AccountRepo) Create(ctx context.Context, a *domain.SenderAccount) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sender_accounts (
			id, label, phone_number, max_daily_messages, min_interval_seconds,
			health_score, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
	`, a.ID, a.Label, a.PhoneNumber, a.MaxDailyMessages, a.MinIntervalSeconds,
		a.HealthScore, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

func (r *AccountRepo) Get(ctx context.Context, id string) (*domain.SenderAccount, error) {
	a, err := scanAccount(r.db.QueryRowContext(ctx, `
		SELECT `+accountColumns+`
		FROM sender_accounts
		WHERE id = $1
	`, id))
	if err == sql.ErrNoRows {
		return nil, account.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

func (r *AccountRepo) List(ctx context.Context, includeArchived bool) ([]domain.SenderAccount, error) {
	q := `
		SELECT ` + accountColumns + `
		FROM sender_accounts`
	if !includeArchived {
		q += `
		WHERE archived_at IS NULL`
	}
	q += `
		ORDER BY health_score ASC, created_at ASC`

	rows, err := r.db.QueryContext(ctx, q)
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

func (r *AccountRepo) UpdateQuota(ctx context.Context, id string, maxDaily, minIntervalSeconds int) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sender_accounts
		SET max_daily_messages = $2, min_interval_seconds = $3, updated_at = NOW()
		WHERE id = $1 AND archived_at IS NULL
	`, id, maxDaily, minIntervalSeconds)
	if err != nil {
		return fmt.Errorf("update quota: %w", err)
	}
	return requireRow(res, account.ErrNotFound)
}

func (r *AccountRepo) Archive(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sender_accounts
		SET archived_at = COALESCE(archived_at, $2), updated_at = NOW()
		WHERE id = $1
	`, id, at)
	if err != nil {
		return fmt.Errorf("archive account: %w", err)
	}
	return requireRow(res, account.ErrNotFound)
}

// --- throttle gate store -----------------------------------------------

// SendState serves the gate's quota check. Archived accounts are
// invisible here so nothing can send through them.
func (r *AccountRepo) SendState(ctx context.Context, id string) (*domain.SenderAccount, error) {
	a, err := scanAccount(r.db.QueryRowContext(ctx, `
		SELECT `+accountColumns+`
		FROM sender_accounts
		WHERE id = $1 AND archived_at IS NULL
	`, id))
	if err == sql.ErrNoRows {
		return nil, account.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("send state: %w", err)
	}
	return a, nil
}

func (r *AccountRepo) ApplySend(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sender_accounts
		SET daily_sent_count = daily_sent_count + 1,
		    total_sent_count = total_sent_count + 1,
		    last_sent_at = $2,
		    updated_at = NOW()
		WHERE id = $1 AND archived_at IS NULL
	`, id, at)
	if err != nil {
		return fmt.Errorf("apply send: %w", err)
	}
	return requireRow(res, account.ErrNotFound)
}

func (r *AccountRepo) ResetDailyCount(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sender_accounts
		SET daily_sent_count = 0, updated_at = NOW()
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("reset daily count: %w", err)
	}
	return nil
}

// requireRow maps a zero-row UPDATE to the caller's not-found sentinel.
func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
