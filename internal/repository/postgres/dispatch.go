package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/atlasleads/sendguard/internal/domain"
	"github.com/atlasleads/sendguard/internal/service/dispatch"
)

// DispatchRepo implements dispatch.Repository against PostgreSQL.
type DispatchRepo struct{ db *sql.DB }

// NewDispatchRepo creates a Postgres-backed dispatch repository.
func NewDispatchRepo(db *sql.DB) *DispatchRepo { return &DispatchRepo{db: db} }

const jobColumns = `
	id, COALESCE(created_by,''), account_id, body_template, delay_seconds,
	status, COALESCE(pause_reason,''), created_at, updated_at, completed_at`

func scanJob(row interface{ Scan(...interface{}) error }) (*domain.DispatchJob, error) {
	j := &domain.DispatchJob{}
	err := row.Scan(
		&j.ID, &j.CreatedBy, &j.AccountID, &j.BodyTemplate, &j.DelaySeconds,
		&j.Status, &j.PauseReason, &j.CreatedAt, &j.UpdatedAt, &j.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return j, nil
}

// CreateJob inserts the job and all of its items in one transaction so a
// half-created campaign can never be dispatched.
func (r *DispatchRepo) CreateJob(ctx context.Context, job *domain.DispatchJob, items []domain.DispatchItem) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create job: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO dispatch_jobs (id, created_by, account_id, body_template, delay_seconds, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
	`, job.ID, job.CreatedBy, job.AccountID, job.BodyTemplate, job.DelaySeconds, job.Status, job.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO dispatch_items (id, job_id, position, recipient, recipient_name, body, status, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`)
	if err != nil {
		return fmt.Errorf("prepare item insert: %w", err)
	}
	defer stmt.Close()

	for _, it := range items {
		if _, err := stmt.ExecContext(ctx, it.ID, it.JobID, it.Position, it.Recipient, it.RecipientName, it.Body, it.Status, it.Error); err != nil {
			return fmt.Errorf("insert item %d: %w", it.Position, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create job: %w", err)
	}
	return nil
}

func (r *DispatchRepo) Job(ctx context.Context, id string) (*domain.DispatchJob, error) {
	j, err := scanJob(r.db.QueryRowContext(ctx, `
		SELECT `+jobColumns+`
		FROM dispatch_jobs
		WHERE id = $1
	`, id))
	if err == sql.ErrNoRows {
		return nil, dispatch.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

func (r *DispatchRepo) Jobs(ctx context.Context, limit int) ([]domain.DispatchJob, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+jobColumns+`
		FROM dispatch_jobs
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

func (r *DispatchRepo) JobsInStatus(ctx context.Context, status domain.JobStatus) ([]domain.DispatchJob, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+jobColumns+`
		FROM dispatch_jobs
		WHERE status = $1
		ORDER BY created_at ASC
	`, status)
	if err != nil {
		return nil, fmt.Errorf("list jobs in status: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

func collectJobs(rows *sql.Rows) ([]domain.DispatchJob, error) {
	var out []domain.DispatchJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, *j)
	}
	return out, rows.Err()
}

func (r *DispatchRepo) Items(ctx context.Context, jobID string) ([]domain.DispatchItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, job_id, position, recipient, COALESCE(recipient_name,''), body, status, COALESCE(error,''), sent_at
		FROM dispatch_items
		WHERE job_id = $1
		ORDER BY position ASC
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var out []domain.DispatchItem
	for rows.Next() {
		var it domain.DispatchItem
		if err := rows.Scan(&it.ID, &it.JobID, &it.Position, &it.Recipient, &it.RecipientName, &it.Body, &it.Status, &it.Error, &it.SentAt); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (r *DispatchRepo) NextPending(ctx context.Context, jobID string) (*domain.DispatchItem, error) {
	it := &domain.DispatchItem{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, job_id, position, recipient, COALESCE(recipient_name,''), body, status, COALESCE(error,''), sent_at
		FROM dispatch_items
		WHERE job_id = $1 AND status = $2
		ORDER BY position ASC
		LIMIT 1
	`, jobID, domain.ItemPending).Scan(&it.ID, &it.JobID, &it.Position, &it.Recipient, &it.RecipientName, &it.Body, &it.Status, &it.Error, &it.SentAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next pending item: %w", err)
	}
	return it, nil
}

func (r *DispatchRepo) UpdateItem(ctx context.Context, itemID string, status domain.ItemStatus, errMsg string, sentAt *time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE dispatch_items
		SET status = $2, error = $3, sent_at = $4
		WHERE id = $1
	`, itemID, status, errMsg, sentAt)
	if err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	return requireRow(res, dispatch.ErrNotFound)
}

func (r *DispatchRepo) UpdateJobStatus(ctx context.Context, jobID string, status domain.JobStatus, pauseReason string, completedAt *time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE dispatch_jobs
		SET status = $2, pause_reason = $3, completed_at = $4, updated_at = NOW()
		WHERE id = $1
	`, jobID, status, pauseReason, completedAt)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	return requireRow(res, dispatch.ErrNotFound)
}

func (r *DispatchRepo) RequeueFailed(ctx context.Context, jobID string) (int, error) {
	return r.requeue(ctx, jobID, domain.ItemFailed)
}

func (r *DispatchRepo) RequeueSending(ctx context.Context, jobID string) (int, error) {
	return r.requeue(ctx, jobID, domain.ItemSending)
}

func (r *DispatchRepo) requeue(ctx context.Context, jobID string, from domain.ItemStatus) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE dispatch_items
		SET status = $3, error = ''
		WHERE job_id = $1 AND status = $2
	`, jobID, from, domain.ItemPending)
	if err != nil {
		return 0, fmt.Errorf("requeue %s items: %w", from, err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r *DispatchRepo) SkipPending(ctx context.Context, jobID string) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE dispatch_items
		SET status = $3
		WHERE job_id = $1 AND status = $2
	`, jobID, domain.ItemPending, domain.ItemSkipped)
	if err != nil {
		return 0, fmt.Errorf("skip pending items: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}
