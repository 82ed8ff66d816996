package suppressionindex

import (
	"context"

	"github.com/keiracom/agencyos-dispatch/internal/domain"
)

// Repository is the persistence contract for the suppression index. The
// Service layer holds no sql.DB reference directly.
type Repository interface {
	// Insert writes a new entry, idempotent on (scope, tenant_id, key_kind, key).
	Insert(ctx context.Context, e *domain.SuppressionEntry) error

	// Remove deletes the entry matching scope/tenant/kind/key. Returns
	// ErrNotFound if no row matched.
	Remove(ctx context.Context, scope domain.SuppressionScope, tenantID string, kind domain.SuppressionKeyKind, key string) error

	// Lookup performs the authoritative, uncached check against Postgres.
	// Used as the fallback path when the in-memory index cannot answer
	// confidently (bloom positive) or during its periodic refresh.
	Lookup(ctx context.Context, scope domain.SuppressionScope, tenantID string, kind domain.SuppressionKeyKind, key string) (*domain.SuppressionEntry, error)

	// ListActive returns every non-expired entry for a scope, used to
	// rebuild the in-memory bloom/sorted-set pair on refresh.
	ListActive(ctx context.Context, scope domain.SuppressionScope) ([]domain.SuppressionEntry, error)

	// Count returns the number of active entries in a scope.
	Count(ctx context.Context, scope domain.SuppressionScope) (int, error)
}
