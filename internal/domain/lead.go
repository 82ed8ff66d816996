package domain

import "time"

// EmailStatus is the verification state of a lead's email address,
// consulted directly by the JIT validator (step 8).
type EmailStatus string

const (
	EmailVerified EmailStatus = "verified"
	EmailGuessed  EmailStatus = "guessed"
	EmailInvalid  EmailStatus = "invalid"
	EmailCatchAll EmailStatus = "catch_all"
)

// EnrichmentTier records how far a record traveled through the waterfall.
type EnrichmentTier string

const (
	TierCache      EnrichmentTier = "cache"
	TierPrimary    EnrichmentTier = "primary"
	TierSupplement EnrichmentTier = "supplement"
	TierPremium    EnrichmentTier = "premium"
	TierUnenriched EnrichmentTier = "unenriched"
)

// Firmographics is the sparse set of company-level facts collected during
// enrichment. Every field is optional; zero values mean "not yet known",
// not "known to be empty" — callers must not treat "" as a negative
// assertion about the company.
type Firmographics struct {
	CompanyName    string   `json:"company_name,omitempty"`
	CompanyDomain  string   `json:"company_domain,omitempty"`
	SizeBand       string   `json:"size_band,omitempty"` // e.g. "11-50"
	Industry       string   `json:"industry,omitempty"`
	FundingSignals []string `json:"funding_signals,omitempty"`
	FundingAt      *time.Time `json:"funding_at,omitempty"`
	TechSignals    []string `json:"tech_signals,omitempty"`
	LinkedInURL    string   `json:"linkedin_url,omitempty"`
	LinkedInPosts  []string `json:"linkedin_posts,omitempty"`
}

// LeadPoolRecord is the master, platform-owned lead record. It persists
// beyond any single tenant Assignment.
type LeadPoolRecord struct {
	ID                 string         `json:"id" db:"id"`
	Email              string         `json:"email,omitempty" db:"email"`
	EmailStatus        EmailStatus    `json:"email_status,omitempty" db:"email_status"`
	Phone              string         `json:"phone,omitempty" db:"phone"`
	LinkedInURL        string         `json:"linkedin_url,omitempty" db:"linkedin_url"`
	MailAddressRef     string         `json:"mail_address_ref,omitempty" db:"mail_address_ref"`
	ProviderExternalID string         `json:"provider_external_id,omitempty" db:"provider_external_id"`
	FirstName          string         `json:"first_name,omitempty" db:"first_name"`
	LastName           string         `json:"last_name,omitempty" db:"last_name"`
	Title              string         `json:"title,omitempty" db:"title"`
	Firmographics      Firmographics  `json:"firmographics" db:"firmographics"`

	EnrichmentTier  EnrichmentTier `json:"enrichment_tier" db:"enrichment_tier"`
	Confidence      float64        `json:"confidence" db:"confidence"`
	FingerprintHash string         `json:"fingerprint_hash,omitempty" db:"fingerprint_hash"`
	ProvenanceNote  string         `json:"provenance_note,omitempty" db:"provenance_note"`

	Status       string `json:"status" db:"status"` // "new" until enrichment acceptance gate passes
	Bounced      bool   `json:"bounced" db:"bounced"`
	Unsubscribed bool   `json:"unsubscribed" db:"unsubscribed"`

	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

// GloballyBlocked reports the "never reset automatically" global flags
// consulted by JIT step 6 and by the Allocator during sourcing.
func (l *LeadPoolRecord) GloballyBlocked() bool {
	return l.Bounced || l.Unsubscribed
}

// IsAccepted reports whether the record passed the enrichment acceptance
// gate of spec §4.5: non-empty email/first/last/company and confidence at
// or above the configured threshold.
func (l *LeadPoolRecord) IsAccepted(confidenceThreshold float64) bool {
	return l.Email != "" &&
		l.FirstName != "" &&
		l.LastName != "" &&
		l.Firmographics.CompanyName != "" &&
		l.Confidence >= confidenceThreshold
}

// NaturalKeys returns the non-empty natural-key values that must each be
// unique across the pool (email, provider external id, LinkedIn URL).
func (l *LeadPoolRecord) NaturalKeys() []string {
	var keys []string
	if l.Email != "" {
		keys = append(keys, "email:"+l.Email)
	}
	if l.ProviderExternalID != "" {
		keys = append(keys, "provider_external_id:"+l.ProviderExternalID)
	}
	if l.LinkedInURL != "" {
		keys = append(keys, "linkedin_url:"+l.LinkedInURL)
	}
	return keys
}
