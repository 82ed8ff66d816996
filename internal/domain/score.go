package domain

// ScoreBand is the categorical tier over a 0-100 Automated Lead Score.
type ScoreBand string

const (
	BandHot  ScoreBand = "hot"
	BandWarm ScoreBand = "warm"
	BandCool ScoreBand = "cool"
	BandCold ScoreBand = "cold"
	BandDead ScoreBand = "dead"
)

// BandFor maps a 0-100 integer score to its band per spec §4.7. The
// boundaries are contractual: Hot 85-100, Warm 60-84, Cool 35-59,
// Cold 20-34, Dead <20. Scores outside 0-100 are clamped.
func BandFor(score int) ScoreBand {
	switch {
	case score < 0:
		score = 0
	case score > 100:
		score = 100
	}
	switch {
	case score >= 85:
		return BandHot
	case score >= 60:
		return BandWarm
	case score >= 35:
		return BandCool
	case score >= 20:
		return BandCold
	default:
		return BandDead
	}
}
