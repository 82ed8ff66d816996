package domain

import "time"

// SuppressionScope is one of the three namespaces checked, in order, by
// the Suppression Index (spec §4.1).
type SuppressionScope string

const (
	ScopeGlobal SuppressionScope = "global"
	ScopeTenant SuppressionScope = "tenant"
	ScopeDomain SuppressionScope = "domain"
)

// SuppressionKeyKind is the kind of value a suppression entry matches.
type SuppressionKeyKind string

const (
	KeyEmail  SuppressionKeyKind = "email"
	KeyDomain SuppressionKeyKind = "domain"
	KeyPhone  SuppressionKeyKind = "phone"
)

// SuppressionReason is the closed set of reasons a key may be suppressed.
type SuppressionReason string

const (
	ReasonExistingCustomer SuppressionReason = "existing_customer"
	ReasonPastCustomer     SuppressionReason = "past_customer"
	ReasonCompetitor       SuppressionReason = "competitor"
	ReasonPartner          SuppressionReason = "partner"
	ReasonDoNotContact     SuppressionReason = "do_not_contact"
	ReasonBounced          SuppressionReason = "bounced"
	ReasonUnsubscribed     SuppressionReason = "unsubscribed"
	ReasonSpamComplaint    SuppressionReason = "spam_complaint"
)

// SuppressionEntry is one row of the suppression list.
type SuppressionEntry struct {
	ID        string             `json:"id" db:"id"`
	Scope     SuppressionScope   `json:"scope" db:"scope"`
	TenantID  string             `json:"tenant_id,omitempty" db:"tenant_id"` // set iff scope=tenant
	KeyKind   SuppressionKeyKind `json:"key_kind" db:"key_kind"`
	Key       string             `json:"key" db:"key"`
	Reason    SuppressionReason  `json:"reason" db:"reason"`
	ExpiresAt *time.Time         `json:"expires_at,omitempty" db:"expires_at"`
	CreatedAt time.Time          `json:"created_at" db:"created_at"`
}

// Expired reports whether this entry should be skipped as per spec §4.1
// ("expired entries are skipped").
func (e *SuppressionEntry) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && now.After(*e.ExpiresAt)
}

// SuppressionResult is the outcome of an is_suppressed lookup.
type SuppressionResult struct {
	Blocked bool
	Scope   SuppressionScope
	Reason  SuppressionReason
}
