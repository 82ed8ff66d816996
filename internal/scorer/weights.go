package scorer

import "github.com/keiracom/agencyos-dispatch/internal/domain"

// DefaultWeights is the platform's hardcoded fallback, used until enough
// Pattern Record history exists to supersede it (spec §4.7).
func DefaultWeights() map[string]float64 {
	return map[string]float64{
		"title_seniority_match": 0.30,
		"industry_match":        0.20,
		"company_size_match":    0.15,
		"funding_recency":       0.10,
		"tech_stack_overlap":    0.10,
		"engagement_signal":     0.15,
	}
}

// ResolveWeights builds the weight vector a score is computed against,
// falling back tenant learned -> platform learned -> defaults (spec
// §4.7: "the Tenant's learned weight vector ... falling back to platform
// priors then defaults"). Within "learned", only patterns eligible per
// §4.11's confidence/sample-size gate may override a feature's weight;
// an explicit tenant WeightOverride always wins over any learned value,
// since it represents a deliberate operator choice.
func ResolveWeights(tenantPatterns, platformPatterns []domain.PatternRecord, tenantOverrides map[string]float64, minConfidence float64, minConversions int) map[string]float64 {
	weights := DefaultWeights()

	applyEligibleLifts(weights, platformPatterns, minConfidence, minConversions)
	applyEligibleLifts(weights, tenantPatterns, minConfidence, minConversions)

	for feature, w := range tenantOverrides {
		weights[feature] = w
	}

	return weights
}

func applyEligibleLifts(weights map[string]float64, patterns []domain.PatternRecord, minConfidence float64, minConversions int) {
	for _, p := range patterns {
		for _, f := range p.Features {
			if !f.Eligible(minConfidence, minConversions) {
				continue
			}
			if _, known := weights[f.Feature]; !known {
				continue
			}
			weights[f.Feature] = f.Lift
		}
	}
}
