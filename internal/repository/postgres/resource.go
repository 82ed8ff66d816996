package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/keiracom/agencyos-dispatch/internal/domain"
)

// ResourceRepo implements respool.Repository against PostgreSQL.
type ResourceRepo struct{ db *sql.DB }

// NewResourceRepo creates a Postgres-backed resource repository.
func NewResourceRepo(db *sql.DB) *ResourceRepo { return &ResourceRepo{db: db} }

const resourceColumns = `id, type, provider_id, health, last_used_at, usage_count, daily_cap,
	warming_started_at, leased_to_tenant, consecutive_fails, last_failure_at,
	created_at, updated_at, deleted_at`

func scanResource(scan func(dest ...interface{}) error) (domain.Resource, error) {
	var r domain.Resource
	err := scan(&r.ID, &r.Type, &r.ProviderID, &r.Health, &r.LastUsedAt, &r.UsageCount, &r.DailyCap,
		&r.WarmingStartedAt, &r.LeasedToTenant, &r.ConsecutiveFails, &r.LastFailureAt,
		&r.CreatedAt, &r.UpdatedAt, &r.DeletedAt)
	return r, err
}

// ListByType satisfies respool.Repository.
func (r *ResourceRepo) ListByType(ctx context.Context, t domain.ResourceType) ([]domain.Resource, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+resourceColumns+` FROM resources WHERE type = $1 AND deleted_at IS NULL
	`, t)
	if err != nil {
		return nil, fmt.Errorf("list resources by type: %w", err)
	}
	defer rows.Close()

	var out []domain.Resource
	for rows.Next() {
		res, err := scanResource(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan resource: %w", err)
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

// MarkUsed satisfies respool.Repository.
func (r *ResourceRepo) MarkUsed(ctx context.Context, id string, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE resources SET last_used_at = $2, usage_count = usage_count + 1, updated_at = NOW()
		WHERE id = $1
	`, id, now)
	if err != nil {
		return fmt.Errorf("mark resource used: %w", err)
	}
	return nil
}

// SetHealth satisfies respool.Repository.
func (r *ResourceRepo) SetHealth(ctx context.Context, id string, h domain.HealthState) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE resources SET health = $2, updated_at = NOW() WHERE id = $1
	`, id, h)
	if err != nil {
		return fmt.Errorf("set resource health: %w", err)
	}
	return nil
}

// RecordFailure satisfies respool.Repository.
func (r *ResourceRepo) RecordFailure(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE resources SET consecutive_fails = consecutive_fails + 1, last_failure_at = $2, updated_at = NOW()
		WHERE id = $1
	`, id, at)
	if err != nil {
		return fmt.Errorf("record resource failure: %w", err)
	}
	return nil
}

// RecordSuccess satisfies respool.Repository.
func (r *ResourceRepo) RecordSuccess(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE resources SET consecutive_fails = 0, updated_at = NOW() WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("record resource success: %w", err)
	}
	return nil
}

// Create inserts a new resource into the shared fleet, assigning it an
// id if one isn't set. New resources always start in the warming state
// (spec §4.4's ramp applies from day one).
func (r *ResourceRepo) Create(ctx context.Context, res *domain.Resource) error {
	if res.ID == "" {
		res.ID = domain.NewID()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO resources (id, type, provider_id, health, daily_cap, warming_started_at,
		                        leased_to_tenant, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
	`, res.ID, res.Type, res.ProviderID, res.Health, res.DailyCap, res.WarmingStartedAt, res.LeasedToTenant)
	if err != nil {
		return fmt.Errorf("create resource: %w", err)
	}
	return nil
}
