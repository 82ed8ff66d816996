package scheduler

import (
	"context"
	"time"

	"github.com/keiracom/agencyos-dispatch/internal/domain"
)

// AssignmentClaimer claims due assignments for dispatch. Claim must use
// `FOR UPDATE SKIP LOCKED` (or the caller's equivalent) so concurrent
// scheduler processes never double-claim the same row.
type AssignmentClaimer interface {
	ClaimDue(ctx context.Context, batchSize int, now time.Time) ([]domain.Assignment, error)
	// Advance persists the outcome of one dispatch attempt: a successful
	// send moves the assignment to its next sequence step and stamps
	// LastTouchedAt/LastChannel; a permanent failure or sequence
	// exhaustion moves it to a terminal status.
	Advance(ctx context.Context, assignment domain.Assignment) error
}

// TenantReader, CampaignReader, and LeadReader fetch the records an
// Input needs to run JIT validation against one claimed assignment.
type TenantReader interface {
	GetTenant(ctx context.Context, id string) (domain.Tenant, error)
}

type CampaignReader interface {
	GetCampaign(ctx context.Context, id string) (domain.Campaign, error)
}

type LeadReader interface {
	GetLead(ctx context.Context, id string) (domain.LeadPoolRecord, error)
}

// ActivityWriter appends the append-only activity record spec §4.1
// requires for every dispatch attempt, allowed or rejected.
type ActivityWriter interface {
	Append(ctx context.Context, activity domain.Activity) error
}
