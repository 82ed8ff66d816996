package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/keiracom/agencyos-dispatch/internal/domain"
	"github.com/keiracom/agencyos-dispatch/internal/suppressionindex"
)

// SuppressionRepo implements suppressionindex.Repository against PostgreSQL.
// tenant_id is stored as "" (never NULL) for global/domain-scope rows so the
// natural key (scope, tenant_id, key_kind, key) can back a plain unique
// index without expression trickery.
type SuppressionRepo struct{ db *sql.DB }

// NewSuppressionRepo creates a Postgres-backed suppression repository.
func NewSuppressionRepo(db *sql.DB) *SuppressionRepo { return &SuppressionRepo{db: db} }

func (r *SuppressionRepo) Insert(ctx context.Context, e *domain.SuppressionEntry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO suppression_entries (id, scope, tenant_id, key_kind, key, reason, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (scope, tenant_id, key_kind, key) DO NOTHING
	`, e.ID, e.Scope, e.TenantID, e.KeyKind, e.Key, e.Reason, e.ExpiresAt, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert suppression entry: %w", err)
	}
	return nil
}

func (r *SuppressionRepo) Remove(ctx context.Context, scope domain.SuppressionScope, tenantID string, kind domain.SuppressionKeyKind, key string) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM suppression_entries
		WHERE scope = $1 AND tenant_id = $2 AND key_kind = $3 AND key = $4
	`, scope, tenantID, kind, key)
	if err != nil {
		return fmt.Errorf("remove suppression entry: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return suppressionindex.ErrNotFound
	}
	return nil
}

func (r *SuppressionRepo) Lookup(ctx context.Context, scope domain.SuppressionScope, tenantID string, kind domain.SuppressionKeyKind, key string) (*domain.SuppressionEntry, error) {
	var e domain.SuppressionEntry
	err := r.db.QueryRowContext(ctx, `
		SELECT id, scope, tenant_id, key_kind, key, reason, expires_at, created_at
		FROM suppression_entries
		WHERE scope = $1 AND tenant_id = $2 AND key_kind = $3 AND key = $4
	`, scope, tenantID, kind, key).Scan(&e.ID, &e.Scope, &e.TenantID, &e.KeyKind, &e.Key, &e.Reason, &e.ExpiresAt, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, suppressionindex.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup suppression entry: %w", err)
	}
	return &e, nil
}

func (r *SuppressionRepo) ListActive(ctx context.Context, scope domain.SuppressionScope) ([]domain.SuppressionEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, scope, tenant_id, key_kind, key, reason, expires_at, created_at
		FROM suppression_entries
		WHERE scope = $1 AND (expires_at IS NULL OR expires_at > NOW())
	`, scope)
	if err != nil {
		return nil, fmt.Errorf("list active suppression entries: %w", err)
	}
	defer rows.Close()

	var out []domain.SuppressionEntry
	for rows.Next() {
		var e domain.SuppressionEntry
		if err := rows.Scan(&e.ID, &e.Scope, &e.TenantID, &e.KeyKind, &e.Key, &e.Reason, &e.ExpiresAt, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan suppression entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *SuppressionRepo) Count(ctx context.Context, scope domain.SuppressionScope) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM suppression_entries
		WHERE scope = $1 AND (expires_at IS NULL OR expires_at > NOW())
	`, scope).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count suppression entries: %w", err)
	}
	return n, nil
}
