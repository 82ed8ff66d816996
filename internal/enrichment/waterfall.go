package enrichment

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/keiracom/agencyos-dispatch/internal/domain"
	"github.com/keiracom/agencyos-dispatch/internal/pkg/logger"
)

// Config carries the waterfall's tunables (spec §4.5, §6.1).
type Config struct {
	ConfidenceThreshold float64
	PremiumMaxBudgetPct float64
	PerLeadTimeout      time.Duration
}

// Waterfall runs a Lead Pool record through the tiered enrichment
// pipeline: cache → primary → supplement → premium.
type Waterfall struct {
	cache      CacheProvider
	primary    PrimaryProvider
	supplement SupplementProvider
	premium    PremiumProvider
	budget     *BatchBudget
	cfg        Config
}

// New creates a Waterfall. Any provider may be nil; a nil tier is treated
// as "unavailable" and the lead falls through to the next one.
func New(cache CacheProvider, primary PrimaryProvider, supplement SupplementProvider, premium PremiumProvider, budget *BatchBudget, cfg Config) *Waterfall {
	if cfg.ConfidenceThreshold == 0 {
		cfg.ConfidenceThreshold = 0.70
	}
	if cfg.PremiumMaxBudgetPct == 0 {
		cfg.PremiumMaxBudgetPct = 0.15
	}
	if cfg.PerLeadTimeout == 0 {
		cfg.PerLeadTimeout = 60 * time.Second
	}
	return &Waterfall{cache: cache, primary: primary, supplement: supplement, premium: premium, budget: budget, cfg: cfg}
}

// Fingerprint derives the cache key for a partial identity, preferring
// email, then LinkedIn URL, then name+domain — the same precedence order
// the primary tier itself uses to look a lead up.
func Fingerprint(q Query) string {
	basis := q.Email
	if basis == "" {
		basis = q.LinkedInURL
	}
	if basis == "" {
		basis = strings.ToLower(q.FirstName + "|" + q.LastName + "|" + q.CompanyDomain)
	}
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(basis))))
	return hex.EncodeToString(sum[:])
}

// Outcome is the result of running one lead through the waterfall.
type Outcome struct {
	Record    domain.LeadPoolRecord
	Accepted  bool
	Tier      domain.EnrichmentTier
	Provenance string
}

// Enrich runs lead through the waterfall tiers in order and returns the
// merged outcome. batchID scopes the premium-tier budget cap; pass the
// same batchID for every lead processed in one enrichment run.
func (w *Waterfall) Enrich(ctx context.Context, batchID string, lead domain.LeadPoolRecord) Outcome {
	ctx, cancel := context.WithTimeout(ctx, w.cfg.PerLeadTimeout)
	defer cancel()

	q := Query{
		Email:         lead.Email,
		LinkedInURL:   lead.LinkedInURL,
		FirstName:     lead.FirstName,
		LastName:      lead.LastName,
		CompanyDomain: lead.Firmographics.CompanyDomain,
	}

	merged := lead
	reached := domain.TierUnenriched
	confidence := lead.Confidence

	if w.budget != nil {
		if err := w.budget.RecordAttempt(ctx, batchID); err != nil {
			logger.Warn("enrichment: record attempt failed", "error", err.Error())
		}
	}

	fp := Fingerprint(q)
	merged.FingerprintHash = fp

	// Tier 1: cache.
	if w.cache != nil {
		if res, hit, err := w.cache.Get(ctx, fp); err != nil {
			logger.Warn("enrichment: cache tier failed, falling through", "error", err.Error())
		} else if hit {
			merged = mergeResult(merged, res)
			reached = domain.TierCache
			confidence = maxFloat(confidence, res.Confidence)
		}
	}

	merged.Confidence = confidence
	if merged.IsAccepted(w.cfg.ConfidenceThreshold) {
		return w.accept(merged, reached, confidence)
	}

	// Tier 2: primary, by email, then LinkedIn, then name+domain.
	if w.primary != nil {
		res, err := w.queryPrimary(ctx, q)
		if err != nil {
			logger.Warn("enrichment: primary tier failed, falling through", "error", err.Error())
		} else {
			merged = mergeResult(merged, res)
			reached = domain.TierPrimary
			confidence = maxFloat(confidence, res.Confidence)
		}
	}

	// Tier 3: supplement, only for missing critical sub-domains.
	if w.supplement != nil {
		if missing := MissingSubdomains(&merged); len(missing) > 0 {
			res, err := w.supplement.Supplement(ctx, q, missing)
			if err != nil {
				logger.Warn("enrichment: supplement tier failed, falling through", "error", err.Error())
			} else {
				merged = mergeResult(merged, res)
				if reached == domain.TierUnenriched {
					reached = domain.TierSupplement
				}
				confidence = maxFloat(confidence, res.Confidence)
			}
		}
	}

	merged.Confidence = confidence
	if merged.IsAccepted(w.cfg.ConfidenceThreshold) {
		if w.cache != nil {
			_ = w.cache.Put(ctx, fp, Result{Fields: merged, Confidence: confidence})
		}
		return w.accept(merged, reached, confidence)
	}

	// Tier 4: premium, only if still below gate and batch budget allows.
	if w.premium != nil {
		allowed := true
		if w.budget != nil {
			var err error
			allowed, err = w.budget.TryReservePremium(ctx, batchID, w.cfg.PremiumMaxBudgetPct)
			if err != nil {
				logger.Warn("enrichment: premium budget check failed", "error", err.Error())
				allowed = false
			}
		}
		if !allowed {
			merged.Status = "new"
			merged.EnrichmentTier = reached
			merged.Confidence = confidence
			merged.ProvenanceNote = "premium_budget_exceeded"
			return Outcome{Record: merged, Accepted: false, Tier: reached, Provenance: merged.ProvenanceNote}
		}

		res, err := w.premium.Lookup(ctx, q)
		if err != nil {
			logger.Warn("enrichment: premium tier failed", "error", err.Error())
		} else {
			merged = mergeResult(merged, res)
			reached = domain.TierPremium
			confidence = maxFloat(confidence, res.Confidence)
		}
	}

	merged.Confidence = confidence
	if merged.IsAccepted(w.cfg.ConfidenceThreshold) {
		if w.cache != nil {
			_ = w.cache.Put(ctx, fp, Result{Fields: merged, Confidence: confidence})
		}
		return w.accept(merged, reached, confidence)
	}

	merged.Status = "new"
	merged.EnrichmentTier = reached
	merged.Confidence = confidence
	merged.ProvenanceNote = "below_confidence_threshold"
	return Outcome{Record: merged, Accepted: false, Tier: reached, Provenance: merged.ProvenanceNote}
}

func (w *Waterfall) accept(rec domain.LeadPoolRecord, tier domain.EnrichmentTier, confidence float64) Outcome {
	rec.EnrichmentTier = tier
	rec.Confidence = confidence
	rec.ProvenanceNote = "accepted:" + string(tier)
	return Outcome{Record: rec, Accepted: true, Tier: tier, Provenance: rec.ProvenanceNote}
}

func (w *Waterfall) queryPrimary(ctx context.Context, q Query) (Result, error) {
	if q.Email != "" {
		return w.primary.LookupByEmail(ctx, q.Email)
	}
	if q.LinkedInURL != "" {
		return w.primary.LookupByLinkedIn(ctx, q.LinkedInURL)
	}
	return w.primary.LookupByNameAndDomain(ctx, q.FirstName, q.LastName, q.CompanyDomain)
}

// mergeResult folds a tier's result into the accumulator, never
// overwriting a field the accumulator already has with a non-empty value
// (spec §4.5: supplement "never overwrites a higher-confidence value" —
// generalized here to every tier, since cache/primary results are always
// applied before a lower-confidence later tier could stomp them).
func mergeResult(acc domain.LeadPoolRecord, res Result) domain.LeadPoolRecord {
	if acc.Email == "" {
		acc.Email = res.Fields.Email
	}
	if acc.EmailStatus == "" {
		acc.EmailStatus = res.Fields.EmailStatus
	}
	if acc.Phone == "" {
		acc.Phone = res.Fields.Phone
	}
	if acc.LinkedInURL == "" {
		acc.LinkedInURL = res.Fields.LinkedInURL
	}
	if acc.FirstName == "" {
		acc.FirstName = res.Fields.FirstName
	}
	if acc.LastName == "" {
		acc.LastName = res.Fields.LastName
	}
	if acc.Title == "" {
		acc.Title = res.Fields.Title
	}
	if acc.Firmographics.CompanyName == "" {
		acc.Firmographics.CompanyName = res.Fields.Firmographics.CompanyName
	}
	if acc.Firmographics.CompanyDomain == "" {
		acc.Firmographics.CompanyDomain = res.Fields.Firmographics.CompanyDomain
	}
	if acc.Firmographics.SizeBand == "" {
		acc.Firmographics.SizeBand = res.Fields.Firmographics.SizeBand
	}
	if acc.Firmographics.Industry == "" {
		acc.Firmographics.Industry = res.Fields.Firmographics.Industry
	}
	if len(acc.Firmographics.FundingSignals) == 0 {
		acc.Firmographics.FundingSignals = res.Fields.Firmographics.FundingSignals
	}
	if len(acc.Firmographics.TechSignals) == 0 {
		acc.Firmographics.TechSignals = res.Fields.Firmographics.TechSignals
	}
	if acc.Firmographics.LinkedInURL == "" {
		acc.Firmographics.LinkedInURL = res.Fields.Firmographics.LinkedInURL
	}
	if len(acc.Firmographics.LinkedInPosts) == 0 {
		acc.Firmographics.LinkedInPosts = res.Fields.Firmographics.LinkedInPosts
	}
	return acc
}

func maxFloat(a, b float64) float64 {
	if b > a {
		return b
	}
	return a
}
