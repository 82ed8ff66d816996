package jit

// RejectReason is the closed enumeration of §7's rejected_jit sub-reasons.
type RejectReason string

const (
	ReasonSubscriptionInactive   RejectReason = "subscription_inactive"
	ReasonNoCredits              RejectReason = "no_credits"
	ReasonCampaignInactive       RejectReason = "campaign_inactive"
	ReasonManualMode             RejectReason = "manual_mode"
	ReasonBouncedGlobally        RejectReason = "bounced_globally"
	ReasonUnsubscribedGlobally   RejectReason = "unsubscribed_globally"
	ReasonSuppressedGlobal       RejectReason = "suppressed_global"
	ReasonSuppressedTenant       RejectReason = "suppressed_tenant"
	ReasonSuppressedDomain       RejectReason = "suppressed_domain"
	ReasonEmailInvalid           RejectReason = "email_invalid"
	ReasonTooRecent              RejectReason = "too_recent"
	ReasonChannelCooldown        RejectReason = "channel_cooldown"
	ReasonWarmupNotReady         RejectReason = "warmup_not_ready"
	ReasonRateLimitChannel       RejectReason = "rate_limit_channel"
	ReasonALSTooLow              RejectReason = "als_too_low"
	// ReasonLocalStatus isn't part of §7's enumeration verbatim (the table
	// lists channel/tenant/lead gates, not the local-pipeline-status gate)
	// but the same Activity(rejected, reason=...) shape applies, so it's
	// modeled the same way.
	ReasonLocalStatus RejectReason = "local_status"
)
