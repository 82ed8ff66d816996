package replyrouter

import (
	"context"
	"regexp"
	"strings"
)

// Intent is the closed set of inbound-message classifications spec §4.10
// recognizes.
type Intent string

const (
	IntentMeetingInterest    Intent = "meeting_interest"
	IntentQuestion           Intent = "question"
	IntentPositiveEngagement Intent = "positive_engagement"
	IntentNotInterested      Intent = "not_interested"
	IntentOutOfOffice        Intent = "out_of_office"
	IntentWrongPerson        Intent = "wrong_person"
	IntentReferral           Intent = "referral"
	IntentAngryOrComplaint   Intent = "angry_or_complaint"
)

// Classification is the output of a Classifier: the intent, a confidence
// in [0,1], and any data the intent action needs (an OOO return date, a
// referral contact).
type Classification struct {
	Intent      Intent
	Confidence  float64
	ReturnDate  string // set for out_of_office: the return date as written in the message, if found
	ReferralRef string // set for referral: a name/email fragment extracted from the body
}

// Classifier assigns an Intent to an inbound message body. The default
// KeywordClassifier is a deterministic, explainable stand-in; production
// deployments may swap in an ML-backed implementation (e.g. the staged
// score-and-fallback pipeline idiom other example services in this
// ecosystem use for inbox classification) without changing the Router.
type Classifier interface {
	Classify(ctx context.Context, subject, body string) (Classification, error)
}

// KeywordClassifier is a deterministic rule-based Classifier: ordered
// keyword/regex stages, first match wins, confidence scaled by how
// specific the matched signal was. It never calls an external model,
// keeping intent classification — a closed-set decision gate, not
// generated content — inside the Non-goals' "no rich content
// generation" boundary.
type KeywordClassifier struct{}

var (
	oooRegex      = regexp.MustCompile(`(?i)\b(out of (the )?office|on vacation|on leave|away until|back (on|in))\b`)
	oooDateRegex  = regexp.MustCompile(`(?i)(back|return(ing)?)\s+(on\s+)?([A-Za-z]+\s+\d{1,2}(st|nd|rd|th)?|\d{1,2}/\d{1,2}(/\d{2,4})?)`)
	meetingRegex  = regexp.MustCompile(`(?i)\b(how'?s|how about|works for me|calendar|schedule a (call|meeting|chat)|book(ing)? (a )?(time|call|meeting)|happy to (chat|talk|connect))\b`)
	negativeRegex = regexp.MustCompile(`(?i)\b(not interested|no thanks|remove me|unsubscribe|stop (emailing|contacting|messaging) me|take me off)\b`)
	wrongRegex    = regexp.MustCompile(`(?i)\b(wrong person|not (the )?right (person|contact)|no longer (work|with)|left the company|try \w+ instead)\b`)
	referralRegex = regexp.MustCompile(`(?i)\b(reach out to|talk to|contact) ([A-Z][a-z]+(?: [A-Z][a-z]+)?)\b`)
	angryRegex    = regexp.MustCompile(`(?i)\b(spam|harassment|legal action|report (you|this)|furious|unacceptable|stop immediately|lawsuit)\b`)
	questionRegex = regexp.MustCompile(`\?`)
	positiveRegex = regexp.MustCompile(`(?i)\b(sounds good|interested|tell me more|love to|great|thanks for reaching out)\b`)
)

// Classify runs the ordered stage pipeline; the first stage whose regex
// matches wins, mirroring a rule-matching stage ahead of any model call.
func (KeywordClassifier) Classify(ctx context.Context, subject, body string) (Classification, error) {
	text := subject + "\n" + body

	switch {
	case angryRegex.MatchString(text):
		return Classification{Intent: IntentAngryOrComplaint, Confidence: 0.9}, nil
	case negativeRegex.MatchString(text):
		return Classification{Intent: IntentNotInterested, Confidence: 0.9}, nil
	case wrongRegex.MatchString(text):
		return Classification{Intent: IntentWrongPerson, Confidence: 0.85}, nil
	case oooRegex.MatchString(text):
		c := Classification{Intent: IntentOutOfOffice, Confidence: 0.85}
		if m := oooDateRegex.FindStringSubmatch(text); len(m) > 0 {
			c.ReturnDate = strings.TrimSpace(m[4])
		}
		return c, nil
	case referralRegex.MatchString(text):
		m := referralRegex.FindStringSubmatch(text)
		ref := ""
		if len(m) > 2 {
			ref = m[2]
		}
		return Classification{Intent: IntentReferral, Confidence: 0.75, ReferralRef: ref}, nil
	case meetingRegex.MatchString(text):
		return Classification{Intent: IntentMeetingInterest, Confidence: 0.85}, nil
	case questionRegex.MatchString(text):
		return Classification{Intent: IntentQuestion, Confidence: 0.7}, nil
	case positiveRegex.MatchString(text):
		return Classification{Intent: IntentPositiveEngagement, Confidence: 0.65}, nil
	default:
		return Classification{Intent: IntentPositiveEngagement, Confidence: 0.4}, nil
	}
}
