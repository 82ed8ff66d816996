package leadpool

import (
	"context"

	"github.com/keiracom/agencyos-dispatch/internal/domain"
)

// Repository is the persistence contract for the Lead Pool & Allocator.
type Repository interface {
	// UpsertSkipConflict inserts rec if none of its natural keys already
	// exist in the pool, and reports whether the insert happened. A
	// conflict is never an overwrite (spec §4.6: "skip on conflict").
	UpsertSkipConflict(ctx context.Context, rec *domain.LeadPoolRecord) (inserted bool, err error)

	// CandidatesForAllocation returns up to limit pool records that: have
	// no active (non-deleted) Assignment to any tenant, match icp, are not
	// globally bounced/unsubscribed, and are not tenant/domain-suppressed
	// for tenantID. Suppression filtering against the Suppression Index
	// happens in the caller (Allocator), since the repository has no
	// reason to depend on that subsystem; this method only applies the
	// ICP and exclusivity filters a plain SQL WHERE clause can express.
	CandidatesForAllocation(ctx context.Context, tenantID string, icp domain.ICPVector, limit int) ([]domain.LeadPoolRecord, error)

	// CreateAssignments inserts every assignment in one transaction. The
	// exclusivity unique constraint (lead_id, where deleted_at is null)
	// means a concurrent allocator racing for the same lead fails this
	// call rather than producing two live assignments; CreateAssignments
	// reports which of the input leads were actually claimed.
	CreateAssignments(ctx context.Context, assignments []domain.Assignment) (claimed []domain.Assignment, err error)

	// ActivePipelineCount counts tenantID's assignments in the active
	// pipeline statuses {new, enriched, in_sequence, replied}, the
	// numerator spec §4.6's replenishment gap is computed against.
	ActivePipelineCount(ctx context.Context, tenantID string) (int, error)
}

// ExternalProvider is the outside-world ICP-match source consulted by
// SourceAndPopulate. The core dispatch subsystem treats it as a black box;
// provider selection and cost are out of scope (spec Non-goals).
type ExternalProvider interface {
	FindMatches(ctx context.Context, icp domain.ICPVector, budget int) ([]domain.LeadPoolRecord, error)
}

// SuppressionChecker is the subset of suppressionindex.Service consulted
// during sourcing. Declared locally so leadpool doesn't import the
// suppressionindex package's alert/bloom wiring, only its contract.
type SuppressionChecker interface {
	IsSuppressed(ctx context.Context, tenantID string, kind domain.SuppressionKeyKind, rawKey string) (domain.SuppressionResult, error)
}
