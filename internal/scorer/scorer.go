package scorer

import (
	"math"

	"github.com/keiracom/agencyos-dispatch/internal/domain"
)

// Compute runs the weighted linear combination of spec §4.7 over
// features using weights (as returned by ResolveWeights) and returns the
// 0-100 integer score and its band. Compute is a pure function: identical
// inputs always produce an identical score.
func Compute(features Features, weights map[string]float64) (int, domain.ScoreBand) {
	var weightedSum, totalWeight float64
	for _, name := range featureOrder {
		w := weights[name]
		if w <= 0 {
			continue
		}
		weightedSum += w * features.byName(name)
		totalWeight += w
	}

	var normalized float64
	if totalWeight > 0 {
		normalized = weightedSum / totalWeight
	}

	score := int(math.Round(clamp01(normalized) * 100))
	return score, domain.BandFor(score)
}
