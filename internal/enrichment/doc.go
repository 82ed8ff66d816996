// Package enrichment implements the Enrichment Waterfall: a tiered
// external-provider fallback (cache → primary → supplement → premium)
// bounded by a per-batch budget cap on the premium tier, per spec §4.5.
//
// Each tier is tried in strict order; a tier failure (timeout, provider
// error) falls through to the next tier rather than aborting the lead.
// The merge across tiers is additive and confidence-ordered: a later tier
// never overwrites a field populated by an earlier, higher-confidence
// tier. Acceptance is gated on the merged record presenting a non-empty
// email/first name/last name/company and an aggregate confidence at or
// above the configured threshold; records that don't clear the gate stay
// `status=new` with a provenance note recording how far they got.
package enrichment
