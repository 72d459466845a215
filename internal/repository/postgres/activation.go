package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/atlasleads/sendguard/internal/domain"
)

// ActivationRepo persists the activation config singleton and the
// activation log.
type ActivationRepo struct {
	db  *sql.DB
	loc *time.Location
}

// NewActivationRepo creates a Postgres-backed activation repository.
// loc is the zone "today" is computed in for stats.
func NewActivationRepo(db *sql.DB, loc *time.Location) *ActivationRepo {
	if loc == nil {
		loc = time.Local
	}
	return &ActivationRepo{db: db, loc: loc}
}

// ActivationConfig returns the singleton config row, inserting defaults
// on first read so callers never see a missing row.
func (r *ActivationRepo) ActivationConfig(ctx context.Context) (*domain.ActivationConfig, error) {
	cfg := &domain.ActivationConfig{}
	err := r.db.QueryRowContext(ctx, `
		SELECT is_active, min_delay_seconds, max_delay_seconds,
		       messages_per_day_per_account, start_hour, end_hour,
		       message_style, updated_at
		FROM activation_config
		WHERE id = 1
	`).Scan(&cfg.IsActive, &cfg.MinDelaySeconds, &cfg.MaxDelaySeconds,
		&cfg.MessagesPerDayPerAccount, &cfg.StartHour, &cfg.EndHour,
		&cfg.MessageStyle, &cfg.UpdatedAt)
	if err == sql.ErrNoRows {
		return r.insertDefaults(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("get activation config: %w", err)
	}
	return cfg, nil
}

func (r *ActivationRepo) insertDefaults(ctx context.Context) (*domain.ActivationConfig, error) {
	cfg := &domain.ActivationConfig{
		IsActive:                 false,
		MinDelaySeconds:          120,
		MaxDelaySeconds:          900,
		MessagesPerDayPerAccount: 10,
		StartHour:                9,
		EndHour:                  22,
		MessageStyle:             domain.StyleMixed,
		UpdatedAt:                time.Now(),
	}
	if err := r.SaveActivationConfig(ctx, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (r *ActivationRepo) SaveActivationConfig(ctx context.Context, cfg *domain.ActivationConfig) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO activation_config (
			id, is_active, min_delay_seconds, max_delay_seconds,
			messages_per_day_per_account, start_hour, end_hour,
			message_style, updated_at
		) VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			is_active = EXCLUDED.is_active,
			min_delay_seconds = EXCLUDED.min_delay_seconds,
			max_delay_seconds = EXCLUDED.max_delay_seconds,
			messages_per_day_per_account = EXCLUDED.messages_per_day_per_account,
			start_hour = EXCLUDED.start_hour,
			end_hour = EXCLUDED.end_hour,
			message_style = EXCLUDED.message_style,
			updated_at = EXCLUDED.updated_at
	`, cfg.IsActive, cfg.MinDelaySeconds, cfg.MaxDelaySeconds,
		cfg.MessagesPerDayPerAccount, cfg.StartHour, cfg.EndHour,
		cfg.MessageStyle, cfg.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save activation config: %w", err)
	}
	return nil
}

func (r *ActivationRepo) AppendActivationLog(ctx context.Context, e *domain.ActivationLogEntry) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO activation_log (from_account_id, to_account_id, message, status, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, e.FromAccountID, e.ToAccountID, e.Message, e.Status, e.Error, e.CreatedAt).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("append activation log: %w", err)
	}
	return nil
}

// Log returns the newest entries first.
func (r *ActivationRepo) Log(ctx context.Context, limit int) ([]domain.ActivationLogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, from_account_id, to_account_id, message, status, COALESCE(error,''), created_at
		FROM activation_log
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list activation log: %w", err)
	}
	defer rows.Close()

	var out []domain.ActivationLogEntry
	for rows.Next() {
		var e domain.ActivationLogEntry
		if err := rows.Scan(&e.ID, &e.FromAccountID, &e.ToAccountID, &e.Message, &e.Status, &e.Error, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan activation log entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ClearLog truncates the activation log. Returns the number of entries
// removed.
func (r *ActivationRepo) ClearLog(ctx context.Context) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM activation_log`)
	if err != nil {
		return 0, fmt.Errorf("clear activation log: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// Stats summarizes the log for the dashboard. "Today" is measured in
// the repo's configured zone, matching the quota day boundary.
func (r *ActivationRepo) Stats(ctx context.Context) (*domain.ActivationStats, error) {
	now := time.Now().In(r.loc)
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, r.loc)

	stats := &domain.ActivationStats{}
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE created_at >= $1),
		       COUNT(*) FILTER (WHERE status = 'sent')
		FROM activation_log
	`, dayStart).Scan(&stats.Total, &stats.Today, &stats.Succeeded)
	if err != nil {
		return nil, fmt.Errorf("activation stats: %w", err)
	}
	return stats, nil
}
