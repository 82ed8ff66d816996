package leadpool

import (
	"context"
	"fmt"
	"time"

	"github.com/keiracom/agencyos-dispatch/internal/domain"
	"github.com/keiracom/agencyos-dispatch/internal/pkg/logger"
)

// SourceResult tallies one SourceAndPopulate run, per spec §4.6's "returns
// counts (inserted, suppressed, duplicate)".
type SourceResult struct {
	Inserted   int
	Suppressed int
	Duplicate  int
}

// Allocator owns Lead Pool Records and their exclusive assignment to
// tenants.
type Allocator struct {
	repo        Repository
	provider    ExternalProvider
	suppression SuppressionChecker
}

// New creates an Allocator.
func New(repo Repository, provider ExternalProvider, suppression SuppressionChecker) *Allocator {
	return &Allocator{repo: repo, provider: provider, suppression: suppression}
}

// SourceAndPopulate queries the external provider for ICP matches under
// tenant's targeting vector, bounded by budget candidates, tests each
// against the Suppression Index (global, tenant, domain), and upserts
// survivors into the pool by natural key, skipping duplicates rather than
// overwriting (spec §4.6).
func (a *Allocator) SourceAndPopulate(ctx context.Context, tenantID string, icp domain.ICPVector, budget int) (SourceResult, error) {
	var res SourceResult

	candidates, err := a.provider.FindMatches(ctx, icp, budget)
	if err != nil {
		return res, fmt.Errorf("source and populate: find matches: %w", err)
	}

	for i := range candidates {
		rec := candidates[i]

		if rec.Email != "" {
			sr, err := a.suppression.IsSuppressed(ctx, tenantID, domain.KeyEmail, rec.Email)
			if err != nil {
				logger.Warn("leadpool: suppression check failed during sourcing, skipping candidate", "error", err.Error())
				res.Suppressed++
				continue
			}
			if sr.Blocked {
				res.Suppressed++
				continue
			}
		}
		if rec.Phone != "" {
			sr, err := a.suppression.IsSuppressed(ctx, tenantID, domain.KeyPhone, rec.Phone)
			if err != nil {
				logger.Warn("leadpool: suppression check failed during sourcing, skipping candidate", "error", err.Error())
				res.Suppressed++
				continue
			}
			if sr.Blocked {
				res.Suppressed++
				continue
			}
		}

		if rec.ID == "" {
			rec.ID = domain.NewID()
		}
		rec.Status = "new"

		inserted, err := a.repo.UpsertSkipConflict(ctx, &rec)
		if err != nil {
			return res, fmt.Errorf("source and populate: upsert: %w", err)
		}
		if inserted {
			res.Inserted++
		} else {
			res.Duplicate++
		}
	}

	return res, nil
}

// Allocate selects up to n pool records matching icp with no active
// assignment, not suppressed for tenantID, not globally bounced or
// unsubscribed, and creates Assignments for them under campaignID in a
// single transaction. The repository's exclusivity constraint is the
// correctness guarantee under concurrent allocators; Allocate returns only
// the assignments that were actually claimed (spec §4.6).
func (a *Allocator) Allocate(ctx context.Context, tenantID, campaignID string, icp domain.ICPVector, n int, now time.Time) ([]domain.Assignment, error) {
	if n <= 0 {
		return nil, nil
	}

	candidates, err := a.repo.CandidatesForAllocation(ctx, tenantID, icp, n)
	if err != nil {
		return nil, fmt.Errorf("allocate: candidates: %w", err)
	}

	assignments := make([]domain.Assignment, 0, len(candidates))
	for _, rec := range candidates {
		if rec.GloballyBlocked() {
			continue
		}

		if rec.Email != "" {
			sr, err := a.suppression.IsSuppressed(ctx, tenantID, domain.KeyEmail, rec.Email)
			if err != nil || sr.Blocked {
				continue
			}
		}

		assignments = append(assignments, domain.Assignment{
			ID:           domain.NewID(),
			TenantID:     tenantID,
			LeadID:       rec.ID,
			CampaignID:   campaignID,
			SequenceStep: 0,
			Status:       domain.AssignmentNew,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	}

	if len(assignments) == 0 {
		return nil, nil
	}

	claimed, err := a.repo.CreateAssignments(ctx, assignments)
	if err != nil {
		return nil, fmt.Errorf("allocate: create assignments: %w", err)
	}
	return claimed, nil
}

// MonthlyReplenishment computes gap = campaign.LeadQuota - active_pipeline_count
// for tenantID under campaign and, when gap > 0, sources and allocates
// enough leads to close it. Only an active campaign receives new leads;
// leads sourced for an inactive campaign are left in MonthlyReplenishment's
// caller's hands (spec §4.6: "sourced leads without an active campaign
// remain unassigned until one is activated").
func (a *Allocator) MonthlyReplenishment(ctx context.Context, tenant domain.Tenant, campaign domain.Campaign, now time.Time) (SourceResult, []domain.Assignment, error) {
	if !campaign.IsActive() {
		return SourceResult{}, nil, nil
	}

	active, err := a.repo.ActivePipelineCount(ctx, tenant.ID)
	if err != nil {
		return SourceResult{}, nil, fmt.Errorf("monthly replenishment: active pipeline count: %w", err)
	}

	gap := campaign.LeadQuota - active
	if gap <= 0 {
		return SourceResult{}, nil, nil
	}

	sourceRes, err := a.SourceAndPopulate(ctx, tenant.ID, tenant.ICP, gap)
	if err != nil {
		return sourceRes, nil, fmt.Errorf("monthly replenishment: source: %w", err)
	}

	claimed, err := a.Allocate(ctx, tenant.ID, campaign.ID, tenant.ICP, gap, now)
	if err != nil {
		return sourceRes, nil, fmt.Errorf("monthly replenishment: allocate: %w", err)
	}

	return sourceRes, claimed, nil
}
