package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keiracom/agencyos-dispatch/internal/domain"
)

func setupTestDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock, func() { db.Close() }
}

func TestTenantRepo_GetTenant(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "display_name", "tier", "subscription_state", "credits_remaining",
		"permission_mode", "icp", "webhook_url", "webhook_failures", "webhook_degraded", "onboarded_at",
		"send_window_start_hour", "send_window_end_hour", "timezone", "created_at", "updated_at", "deleted_at",
	}).AddRow(
		"tenant-1", "Acme Outbound", domain.TierGrowth, domain.SubscriptionActive, 42,
		domain.PermissionAutopilot, []byte(`{"industries":["saas"]}`), "https://acme.example/hook", 0, false, now,
		8, 18, "UTC", now, now, nil,
	)
	mock.ExpectQuery("SELECT (.+) FROM tenants WHERE id = \\$1 AND deleted_at IS NULL").
		WithArgs("tenant-1").
		WillReturnRows(rows)

	repo := NewTenantRepo(db)
	tenant, err := repo.GetTenant(context.Background(), "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, "tenant-1", tenant.ID)
	assert.Equal(t, domain.SubscriptionActive, tenant.Subscription)
	assert.Equal(t, 42, tenant.CreditsRemaining)
	assert.Equal(t, []string{"saas"}, tenant.ICP.Industries)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTenantRepo_GetTenant_NotFound(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery("SELECT (.+) FROM tenants WHERE id = \\$1 AND deleted_at IS NULL").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	repo := NewTenantRepo(db)
	_, err := repo.GetTenant(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrTenantNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTenantRepo_SetSubscription(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec("UPDATE tenants SET subscription_state = \\$2, updated_at = NOW\\(\\) WHERE id = \\$1 AND deleted_at IS NULL").
		WithArgs("tenant-1", domain.SubscriptionPaused).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewTenantRepo(db)
	err := repo.SetSubscription(context.Background(), "tenant-1", domain.SubscriptionPaused)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTenantRepo_SetSubscription_NotFound(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec("UPDATE tenants SET subscription_state = \\$2, updated_at = NOW\\(\\) WHERE id = \\$1 AND deleted_at IS NULL").
		WithArgs("missing", domain.SubscriptionActive).
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewTenantRepo(db)
	err := repo.SetSubscription(context.Background(), "missing", domain.SubscriptionActive)
	assert.ErrorIs(t, err, ErrTenantNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTenantRepo_AdjustCredits(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec("UPDATE tenants SET credits_remaining = GREATEST\\(0, credits_remaining \\+ \\$2\\), updated_at = NOW\\(\\) WHERE id = \\$1 AND deleted_at IS NULL").
		WithArgs("tenant-1", -1).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewTenantRepo(db)
	err := repo.AdjustCredits(context.Background(), "tenant-1", -1)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTenantRepo_ActiveTenantIDs(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	rows := sqlmock.NewRows([]string{"id"}).AddRow("tenant-1").AddRow("tenant-2")
	mock.ExpectQuery("SELECT id FROM tenants WHERE deleted_at IS NULL AND subscription_state IN \\('trialing', 'active'\\)").
		WillReturnRows(rows)

	repo := NewTenantRepo(db)
	ids, err := repo.ActiveTenantIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"tenant-1", "tenant-2"}, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}
