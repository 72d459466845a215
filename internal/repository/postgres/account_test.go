package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlasleads/sendguard/internal/domain"
	"github.com/atlasleads/sendguard/internal/service/account"
	"github.com/atlasleads/sendguard/internal/service/dispatch"
)

func setupTestDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func accountRows(id string, score, dailySent int) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "label", "phone_number", "max_daily_messages", "min_interval_seconds",
		"daily_sent_count", "last_sent_at", "total_sent_count", "total_received_count",
		"health_score", "last_score_update",
		"report_count", "block_count", "no_reply_count", "no_reply_streak",
		"created_at", "updated_at", "archived_at",
	}).AddRow(
		id, "test account", "+15551230000", 150, 45,
		dailySent, nil, dailySent, 0,
		score, nil,
		0, 0, 0, 0,
		now, now, nil,
	)
}

func TestAccountRepoGet(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewAccountRepo(db)

	mock.ExpectQuery("SELECT(.+)FROM sender_accounts").
		WithArgs("acc-1").
		WillReturnRows(accountRows("acc-1", 85, 3))

	a, err := repo.Get(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.Equal(t, "acc-1", a.ID)
	assert.Equal(t, 85, a.HealthScore)
	assert.Equal(t, 3, a.DailySentCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepoGetNotFound(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewAccountRepo(db)

	mock.ExpectQuery("SELECT(.+)FROM sender_accounts").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, account.ErrNotFound)
}

func TestAccountRepoApplySend(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewAccountRepo(db)
	at := time.Now()

	mock.ExpectExec("UPDATE sender_accounts").
		WithArgs("acc-1", at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.ApplySend(context.Background(), "acc-1", at))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepoApplySendArchivedAccount(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewAccountRepo(db)

	// Archived rows match no UPDATE, which must surface as not-found
	// rather than a silent no-op.
	mock.ExpectExec("UPDATE sender_accounts").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.ApplySend(context.Background(), "acc-1", time.Now())
	assert.ErrorIs(t, err, account.ErrNotFound)
}

func TestAccountRepoUpdateQuota(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewAccountRepo(db)

	mock.ExpectExec("UPDATE sender_accounts").
		WithArgs("acc-1", 200, 30).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateQuota(context.Background(), "acc-1", 200, 30))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDispatchRepoCreateJobTransactional(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewDispatchRepo(db)

	job := &domain.DispatchJob{
		ID:        "job-1",
		AccountID: "acc-1",
		Status:    domain.JobConfig,
		CreatedAt: time.Now(),
	}
	items := []domain.DispatchItem{
		{ID: "item-1", JobID: "job-1", Position: 0, Recipient: "+15551230001", Body: "hi", Status: domain.ItemPending},
		{ID: "item-2", JobID: "job-1", Position: 1, Recipient: "+15551230002", Body: "hi", Status: domain.ItemPending},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO dispatch_jobs").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectPrepare("INSERT INTO dispatch_items")
	mock.ExpectExec("INSERT INTO dispatch_items").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO dispatch_items").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.CreateJob(context.Background(), job, items))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDispatchRepoNextPendingEmpty(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewDispatchRepo(db)

	mock.ExpectQuery("SELECT(.+)FROM dispatch_items").
		WillReturnError(sql.ErrNoRows)

	it, err := repo.NextPending(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Nil(t, it)
}

func TestDispatchRepoUpdateJobStatusNotFound(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewDispatchRepo(db)

	mock.ExpectExec("UPDATE dispatch_jobs").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateJobStatus(context.Background(), "missing", domain.JobPaused, "", nil)
	assert.ErrorIs(t, err, dispatch.ErrNotFound)
}

func TestHealthRepoIncrementIncident(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewHealthRepo(db)

	mock.ExpectExec("UPDATE sender_accounts").
		WithArgs("acc-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.IncrementIncident(context.Background(), "acc-1", domain.EventNoReply))
	assert.NoError(t, mock.ExpectationsWereMet())

	// score_drop is an audit marker, not a counter.
	err := repo.IncrementIncident(context.Background(), "acc-1", domain.EventScoreDrop)
	assert.Error(t, err)
}

func TestActivationRepoSaveAndLoadConfig(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewActivationRepo(db, time.UTC)

	cfg := &domain.ActivationConfig{
		IsActive:                 true,
		MinDelaySeconds:          120,
		MaxDelaySeconds:          900,
		MessagesPerDayPerAccount: 10,
		StartHour:                9,
		EndHour:                  22,
		MessageStyle:             domain.StyleMixed,
		UpdatedAt:                time.Now(),
	}

	mock.ExpectExec("INSERT INTO activation_config").
		WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, repo.SaveActivationConfig(context.Background(), cfg))

	mock.ExpectQuery("SELECT(.+)FROM activation_config").
		WillReturnRows(sqlmock.NewRows([]string{
			"is_active", "min_delay_seconds", "max_delay_seconds",
			"messages_per_day_per_account", "start_hour", "end_hour",
			"message_style", "updated_at",
		}).AddRow(true, 120, 900, 10, 9, 22, "mixed", cfg.UpdatedAt))

	got, err := repo.ActivationConfig(context.Background())
	require.NoError(t, err)
	assert.True(t, got.IsActive)
	assert.Equal(t, domain.StyleMixed, got.MessageStyle)
	assert.NoError(t, mock.ExpectationsWereMet())
}
