package enrichment

import (
	"context"

	"github.com/keiracom/agencyos-dispatch/internal/domain"
)

// Query is the partial identity a provider is asked to resolve. Fields not
// yet known are left zero-valued.
type Query struct {
	Email         string
	LinkedInURL   string
	FirstName     string
	LastName      string
	CompanyDomain string
}

// Result is one provider's contribution to a Lead Pool record: a sparse
// set of fields plus the provider's confidence in them.
type Result struct {
	Fields     domain.LeadPoolRecord
	Confidence float64
}

// CacheProvider looks up a previously-computed result by fingerprint.
// Implemented over internal/cache.
type CacheProvider interface {
	Get(ctx context.Context, fingerprint string) (Result, bool, error)
	Put(ctx context.Context, fingerprint string, r Result) error
}

// PrimaryProvider is the first external data provider, queried by email,
// then LinkedIn URL, then (name, company domain), in that order.
type PrimaryProvider interface {
	LookupByEmail(ctx context.Context, email string) (Result, error)
	LookupByLinkedIn(ctx context.Context, url string) (Result, error)
	LookupByNameAndDomain(ctx context.Context, firstName, lastName, domain string) (Result, error)
}

// SupplementProvider fills specific missing sub-domains (e.g. LinkedIn
// profile & recent posts) that the primary provider didn't resolve.
type SupplementProvider interface {
	// Supplement returns only the fields it can add; callers merge
	// idempotently, never overwriting a higher-confidence existing value.
	Supplement(ctx context.Context, q Query, missing []string) (Result, error)
}

// PremiumProvider is the fallback tier invoked only when tiers 2+3 land
// below the acceptance threshold, subject to the per-batch budget cap.
type PremiumProvider interface {
	Lookup(ctx context.Context, q Query) (Result, error)
}

// MissingSubdomains reports which critical sub-domains are absent from a
// record, used to decide whether the supplement tier should run at all
// (spec §4.5: "for records where a critical sub-domain ... is missing").
func MissingSubdomains(r *domain.LeadPoolRecord) []string {
	var missing []string
	if r.Firmographics.LinkedInURL == "" {
		missing = append(missing, "linkedin_profile")
	}
	if len(r.Firmographics.LinkedInPosts) == 0 {
		missing = append(missing, "linkedin_posts")
	}
	return missing
}
