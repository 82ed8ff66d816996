package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestBandForMonotonicity exercises the testable property from spec §8:
// "score → tier mapping matches §4.7 table exactly for all integer scores
// 0..100."
func TestBandForMonotonicity(t *testing.T) {
	for score := 0; score <= 100; score++ {
		band := BandFor(score)
		var want ScoreBand
		switch {
		case score >= 85:
			want = BandHot
		case score >= 60:
			want = BandWarm
		case score >= 35:
			want = BandCool
		case score >= 20:
			want = BandCold
		default:
			want = BandDead
		}
		assert.Equalf(t, want, band, "BandFor(%d)", score)
	}
}

func TestBandForClamps(t *testing.T) {
	assert.Equal(t, BandDead, BandFor(-5), "negative scores should clamp to dead")
	assert.Equal(t, BandHot, BandFor(200), "scores above 100 should clamp to hot")
}
