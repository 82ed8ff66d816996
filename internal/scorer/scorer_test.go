package scorer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/keiracom/agencyos-dispatch/internal/domain"
)

func TestCompute_PerfectMatchScoresHot(t *testing.T) {
	rec := domain.LeadPoolRecord{
		Title: "VP of Engineering",
		Firmographics: domain.Firmographics{
			Industry:    "SaaS",
			SizeBand:    "51-200",
			TechSignals: []string{"kubernetes"},
		},
	}
	icp := domain.ICPVector{
		Industries:   []string{"saas"},
		CompanySizes: []string{"51-200"},
		PainPoints:   []string{"kubernetes"},
	}
	fundedAt := time.Now().Add(-24 * time.Hour)
	rec.Firmographics.FundingAt = &fundedAt

	features := ExtractFeatures(rec, icp, 1.0, time.Now())
	score, band := Compute(features, DefaultWeights())

	assert.Equalf(t, domain.BandHot, band, "expected hot band for near-perfect match, got score %d", score)
}

func TestCompute_NoSignalScoresDead(t *testing.T) {
	features := ExtractFeatures(domain.LeadPoolRecord{}, domain.ICPVector{}, 0, time.Now())
	score, band := Compute(features, DefaultWeights())
	assert.Equal(t, 0, score)
	assert.Equal(t, domain.BandDead, band)
}

func TestResolveWeights_TenantOverrideWinsOverLearned(t *testing.T) {
	platformPatterns := []domain.PatternRecord{{
		Features: []domain.FeatureLift{{Feature: "industry_match", Lift: 0.5, Confidence: 0.9, Conversions: 50}},
	}}
	overrides := map[string]float64{"industry_match": 0.9}

	weights := ResolveWeights(nil, platformPatterns, overrides, 0.7, 20)
	assert.Equal(t, 0.9, weights["industry_match"], "explicit override should win over learned pattern")
}

func TestResolveWeights_IneligiblePatternIgnored(t *testing.T) {
	platformPatterns := []domain.PatternRecord{{
		Features: []domain.FeatureLift{{Feature: "industry_match", Lift: 0.99, Confidence: 0.5, Conversions: 50}},
	}}
	weights := ResolveWeights(nil, platformPatterns, nil, 0.7, 20)
	assert.Equal(t, DefaultWeights()["industry_match"], weights["industry_match"], "low-confidence pattern should be ignored")
}
