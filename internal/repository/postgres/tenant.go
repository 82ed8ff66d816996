package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/keiracom/agencyos-dispatch/internal/domain"
)

// ErrTenantNotFound is returned when a lookup finds no matching row.
var ErrTenantNotFound = errors.New("postgres: tenant not found")

// TenantRepo implements scheduler.TenantReader, jit's tenant lookup, and
// replyrouter.TenantReader against PostgreSQL, plus the subset of CRUD
// the operator surface (spec §6.5) and monthly replenishment (spec §4.6)
// need.
type TenantRepo struct{ db *sql.DB }

// NewTenantRepo creates a Postgres-backed tenant repository.
func NewTenantRepo(db *sql.DB) *TenantRepo { return &TenantRepo{db: db} }

func scanTenant(scan func(dest ...interface{}) error) (domain.Tenant, error) {
	var t domain.Tenant
	var icp []byte
	err := scan(&t.ID, &t.DisplayName, &t.Tier, &t.Subscription, &t.CreditsRemaining,
		&t.PermissionMode, &icp, &t.WebhookURL, &t.WebhookFailures, &t.WebhookDegraded, &t.OnboardedAt,
		&t.SendWindowStart, &t.SendWindowEnd, &t.Timezone, &t.CreatedAt, &t.UpdatedAt, &t.DeletedAt)
	if err != nil {
		return domain.Tenant{}, err
	}
	if len(icp) > 0 {
		if err := json.Unmarshal(icp, &t.ICP); err != nil {
			return domain.Tenant{}, fmt.Errorf("decode icp: %w", err)
		}
	}
	return t, nil
}

const tenantColumns = `id, display_name, tier, subscription_state, credits_remaining,
	permission_mode, icp, webhook_url, webhook_failures, webhook_degraded, onboarded_at,
	send_window_start_hour, send_window_end_hour, timezone, created_at, updated_at, deleted_at`

// GetTenant satisfies scheduler.TenantReader / replyrouter.TenantReader.
func (r *TenantRepo) GetTenant(ctx context.Context, id string) (domain.Tenant, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = $1 AND deleted_at IS NULL`, id)
	t, err := scanTenant(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Tenant{}, ErrTenantNotFound
	}
	if err != nil {
		return domain.Tenant{}, fmt.Errorf("get tenant %s: %w", id, err)
	}
	return t, nil
}

// ActiveTenantIDs satisfies patterns.TenantLister: every tenant whose
// subscription is currently send-eligible.
func (r *TenantRepo) ActiveTenantIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id FROM tenants
		WHERE deleted_at IS NULL AND subscription_state IN ('trialing', 'active')
	`)
	if err != nil {
		return nil, fmt.Errorf("list active tenant ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan tenant id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Create inserts a new tenant, assigning it an id if one isn't set.
func (r *TenantRepo) Create(ctx context.Context, t *domain.Tenant) error {
	if t.ID == "" {
		t.ID = domain.NewID()
	}
	icp, err := json.Marshal(t.ICP)
	if err != nil {
		return fmt.Errorf("encode icp: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO tenants (id, display_name, tier, subscription_state, credits_remaining,
		                      permission_mode, icp, webhook_url, webhook_failures, webhook_degraded, onboarded_at,
		                      send_window_start_hour, send_window_end_hour, timezone, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW(), NOW())
	`, t.ID, t.DisplayName, t.Tier, t.Subscription, t.CreditsRemaining, t.PermissionMode, icp,
		t.WebhookURL, t.WebhookFailures, t.WebhookDegraded, t.OnboardedAt, t.SendWindowStart, t.SendWindowEnd, t.Timezone)
	if err != nil {
		return fmt.Errorf("create tenant: %w", err)
	}
	return nil
}

// SetSubscription updates a tenant's billing state, the gate JIT step 2
// reads (spec §4.9).
func (r *TenantRepo) SetSubscription(ctx context.Context, id string, state domain.SubscriptionState) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE tenants SET subscription_state = $2, updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL
	`, id, state)
	if err != nil {
		return fmt.Errorf("set tenant subscription: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrTenantNotFound
	}
	return nil
}

// AdjustCredits applies a signed delta to a tenant's remaining credits,
// never letting the balance go negative.
func (r *TenantRepo) AdjustCredits(ctx context.Context, id string, delta int) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE tenants SET credits_remaining = GREATEST(0, credits_remaining + $2), updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`, id, delta)
	if err != nil {
		return fmt.Errorf("adjust tenant credits: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrTenantNotFound
	}
	return nil
}

// IncrementWebhookFailures tracks consecutive outbound webhook failures
// for a tenant (spec §6.3); cmd/server's operator surface uses this to
// flag tenants whose webhook endpoint has gone dark.
func (r *TenantRepo) IncrementWebhookFailures(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE tenants SET webhook_failures = webhook_failures + 1, updated_at = NOW() WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("increment webhook failures: %w", err)
	}
	return nil
}

// ResetWebhookFailures clears the failure counter and any degraded mark
// after a successful push.
func (r *TenantRepo) ResetWebhookFailures(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE tenants SET webhook_failures = 0, webhook_degraded = false, updated_at = NOW() WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("reset webhook failures: %w", err)
	}
	return nil
}

// SetHealthDegraded satisfies webhook.FailureTracker: marks a tenant's
// outbound webhook endpoint degraded after too many consecutive failures
// (spec §6.3).
func (r *TenantRepo) SetHealthDegraded(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE tenants SET webhook_degraded = true, updated_at = NOW() WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("mark webhook degraded: %w", err)
	}
	return nil
}
