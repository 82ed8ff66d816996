package scorer

import (
	"strings"
	"time"

	"github.com/keiracom/agencyos-dispatch/internal/domain"
)

// Features is the named input vector the scorer's weighted combination
// runs over. Every value is normalized to [0, 1] so a single weight map
// can be shared across tenants with differently-shaped ICPs.
type Features struct {
	TitleSeniorityMatch float64
	IndustryMatch       float64
	CompanySizeMatch    float64
	FundingRecency      float64
	TechStackOverlap    float64
	EngagementSignal    float64
}

// featureOrder fixes iteration order for the weighted sum so Compute is
// deterministic regardless of map iteration order.
var featureOrder = []string{
	"title_seniority_match",
	"industry_match",
	"company_size_match",
	"funding_recency",
	"tech_stack_overlap",
	"engagement_signal",
}

func (f Features) byName(name string) float64 {
	switch name {
	case "title_seniority_match":
		return f.TitleSeniorityMatch
	case "industry_match":
		return f.IndustryMatch
	case "company_size_match":
		return f.CompanySizeMatch
	case "funding_recency":
		return f.FundingRecency
	case "tech_stack_overlap":
		return f.TechStackOverlap
	case "engagement_signal":
		return f.EngagementSignal
	default:
		return 0
	}
}

// seniorTitles is the closed set of seniority markers the title-match
// feature scans for, ordered most to least senior; the first match wins.
var seniorTitles = []struct {
	marker string
	weight float64
}{
	{"chief", 1.0}, {"founder", 1.0}, {"president", 0.95},
	{"vp", 0.85}, {"vice president", 0.85},
	{"head of", 0.75}, {"director", 0.7},
	{"senior", 0.5}, {"manager", 0.45},
	{"lead", 0.4},
}

// ExtractFeatures derives a Features vector from a Lead Pool Record's
// enriched firmographics against a tenant's ICP, plus the assignment's
// accumulated engagement signal (e.g. a reply or meeting raises it).
func ExtractFeatures(rec domain.LeadPoolRecord, icp domain.ICPVector, engagementSignal float64, now time.Time) Features {
	return Features{
		TitleSeniorityMatch: titleSeniority(rec.Title),
		IndustryMatch:       membershipMatch(rec.Firmographics.Industry, icp.Industries),
		CompanySizeMatch:    membershipMatch(rec.Firmographics.SizeBand, icp.CompanySizes),
		FundingRecency:      fundingRecency(rec.Firmographics.FundingAt, now),
		TechStackOverlap:    overlapRatio(rec.Firmographics.TechSignals, icp.PainPoints),
		EngagementSignal:    clamp01(engagementSignal),
	}
}

func titleSeniority(title string) float64 {
	t := strings.ToLower(title)
	for _, s := range seniorTitles {
		if strings.Contains(t, s.marker) {
			return s.weight
		}
	}
	if t == "" {
		return 0
	}
	return 0.2
}

func membershipMatch(value string, set []string) float64 {
	if value == "" || len(set) == 0 {
		return 0
	}
	v := strings.ToLower(value)
	for _, s := range set {
		if strings.ToLower(s) == v {
			return 1
		}
	}
	return 0
}

// fundingRecency decays linearly from 1.0 (funded today) to 0.0 at and
// beyond 18 months, the horizon past which a funding signal is treated as
// stale for outbound timing purposes.
func fundingRecency(fundedAt *time.Time, now time.Time) float64 {
	if fundedAt == nil {
		return 0
	}
	const horizonDays = 18 * 30
	days := now.Sub(*fundedAt).Hours() / 24
	if days < 0 {
		days = 0
	}
	if days >= horizonDays {
		return 0
	}
	return 1 - (days / horizonDays)
}

func overlapRatio(techSignals, painPoints []string) float64 {
	if len(techSignals) == 0 || len(painPoints) == 0 {
		return 0
	}
	want := make(map[string]bool, len(painPoints))
	for _, p := range painPoints {
		want[strings.ToLower(p)] = true
	}
	hits := 0
	for _, t := range techSignals {
		if want[strings.ToLower(t)] {
			hits++
		}
	}
	return clamp01(float64(hits) / float64(len(painPoints)))
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
