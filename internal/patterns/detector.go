package patterns

import (
	"strconv"
	"strings"
	"time"

	"github.com/keiracom/agencyos-dispatch/internal/domain"
	"github.com/keiracom/agencyos-dispatch/internal/scorer"
)

// ConversionSample is one closed Assignment's outcome, flattened for the
// detectors: the lead/tenant state at the time of the deciding touch,
// plus whether the assignment ultimately converted.
type ConversionSample struct {
	TenantID     string
	Lead         domain.LeadPoolRecord
	ICP          domain.ICPVector
	Channel      domain.Channel
	SequenceStep int
	TouchCount   int
	SentAt       time.Time
	Converted    bool
}

// detectorFunc derives a set of named FeatureLift observations from a
// batch of samples. A detector never needs to know its own PatternKind;
// the caller labels the output.
type detectorFunc func(samples []ConversionSample) []domain.FeatureLift

// detectors is the closed set of pattern families spec §4.11 names. It is
// a map, so the order in which Run emits their Pattern Records is not
// defined.
var detectors = map[domain.PatternKind]detectorFunc{
	domain.PatternWho:  detectWho,
	domain.PatternWhat: detectWhat,
	domain.PatternWhen: detectWhen,
	domain.PatternHow:  detectHow,
}

// detectWho correlates lead-attribute features — the same named
// dimensions the scorer already weights — with conversion, so an
// eligible lift here substitutes directly for a scorer.DefaultWeights
// entry via scorer.ResolveWeights.
func detectWho(samples []ConversionSample) []domain.FeatureLift {
	sums := map[string]float64{}
	counts := map[string]int{}
	conversions := map[string]int{}

	for _, s := range samples {
		f := scorer.ExtractFeatures(s.Lead, s.ICP, 0, s.SentAt)
		for name, value := range map[string]float64{
			"title_seniority_match": f.TitleSeniorityMatch,
			"industry_match":        f.IndustryMatch,
			"company_size_match":    f.CompanySizeMatch,
			"funding_recency":       f.FundingRecency,
			"tech_stack_overlap":    f.TechStackOverlap,
		} {
			counts[name]++
			if s.Converted {
				conversions[name]++
				sums[name] += value
			}
		}
	}

	var out []domain.FeatureLift
	for name, total := range counts {
		conv := conversions[name]
		lift := 0.0
		if conv > 0 {
			lift = sums[name] / float64(conv) // average feature value among conversions
		}
		out = append(out, domain.FeatureLift{
			Feature:     name,
			Lift:        lift,
			SampleSize:  total,
			Confidence:  confidenceFor(total),
			Conversions: conv,
		})
	}
	return out
}

// detectWhat correlates channel choice with conversion, feeding back into
// the Allocator/Scheduler's channel preference rather than the scorer.
func detectWhat(samples []ConversionSample) []domain.FeatureLift {
	return groupLift(samples, func(s ConversionSample) string {
		return "channel:" + string(s.Channel)
	})
}

// detectWhen correlates send hour-of-day and day-of-week with conversion,
// the signal the scheduler's send-window selection can prioritize.
func detectWhen(samples []ConversionSample) []domain.FeatureLift {
	byHour := groupLift(samples, func(s ConversionSample) string {
		return "hour:" + weekdayHourKey(s.SentAt)
	})
	byDay := groupLift(samples, func(s ConversionSample) string {
		return "weekday:" + strings.ToLower(s.SentAt.Weekday().String())
	})
	return append(byHour, byDay...)
}

// detectHow correlates sequence position (SequenceStep) with conversion,
// informing whether a tenant's sequence is too long, too short, or
// front-loaded on the wrong channel.
func detectHow(samples []ConversionSample) []domain.FeatureLift {
	return groupLift(samples, func(s ConversionSample) string {
		return "sequence_step:" + strconv.Itoa(s.SequenceStep)
	})
}

// groupLift buckets samples by keyFunc and reports each bucket's
// conversion rate as a lift relative to the overall population rate: 1.0
// means "no effect", >1 means this bucket converts better than baseline.
func groupLift(samples []ConversionSample, keyFunc func(ConversionSample) string) []domain.FeatureLift {
	if len(samples) == 0 {
		return nil
	}
	totalConverted := 0
	for _, s := range samples {
		if s.Converted {
			totalConverted++
		}
	}
	overallRate := float64(totalConverted) / float64(len(samples))
	if overallRate == 0 {
		return nil
	}

	counts := map[string]int{}
	conversions := map[string]int{}
	for _, s := range samples {
		key := keyFunc(s)
		counts[key]++
		if s.Converted {
			conversions[key]++
		}
	}

	var out []domain.FeatureLift
	for key, total := range counts {
		rate := float64(conversions[key]) / float64(total)
		out = append(out, domain.FeatureLift{
			Feature:     key,
			Lift:        rate / overallRate,
			SampleSize:  total,
			Confidence:  confidenceFor(total),
			Conversions: conversions[key],
		})
	}
	return out
}

// confidenceFor scales confidence by sample size using the same banding
// this repository's earlier learning engine used for its insights.
func confidenceFor(sampleSize int) float64 {
	switch {
	case sampleSize >= 100:
		return 0.95
	case sampleSize >= 50:
		return 0.85
	case sampleSize >= 30:
		return 0.75
	case sampleSize >= 20:
		return 0.7
	case sampleSize >= 10:
		return 0.5
	default:
		return 0.3
	}
}

func weekdayHourKey(t time.Time) string {
	return strconv.Itoa(t.Hour())
}
