// Package observability exposes the Prometheus metrics this repository's
// ambient stack carries regardless of which core modules a deployment
// runs (spec Non-goals exclude a dashboard surface, not instrumentation
// itself). Every subsystem records through the package-level Metrics
// value, whose collectors all live in the default registry that Handler
// exposes.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the process-wide instrument set. It is safe for concurrent
// use; every field is a Prometheus collector already registered against
// the default registry at package init.
var Metrics = newMetrics()

type metrics struct {
	// Scheduler / dispatch
	DispatchAttempts  *prometheus.CounterVec
	DispatchSent      *prometheus.CounterVec
	DispatchRejected  *prometheus.CounterVec
	DispatchFailed    *prometheus.CounterVec
	DispatchDuration  *prometheus.HistogramVec
	SchedulerRunGauge prometheus.Gauge

	// JIT validator
	JITRejections *prometheus.CounterVec

	// Resource pool
	ResourceHealthGauge *prometheus.GaugeVec
	ResourcePoolEmpty   *prometheus.CounterVec

	// Rate ledger
	RateLedgerReservations *prometheus.CounterVec
	RateLedgerRejections   *prometheus.CounterVec

	// Enrichment waterfall
	EnrichmentTierHits   *prometheus.CounterVec
	EnrichmentSpendTotal *prometheus.CounterVec

	// Lead pool / allocator
	AllocatorAssigned  *prometheus.CounterVec
	AllocatorSkipped   *prometheus.CounterVec
	AllocatorPoolGauge *prometheus.GaugeVec

	// Reply router
	ReplyIntentTotal   *prometheus.CounterVec
	ReplyDuplicateSkip prometheus.Counter
	ReplySpendTotal    *prometheus.CounterVec

	// Pattern detectors
	PatternRunsTotal   *prometheus.CounterVec
	PatternRecordsSize *prometheus.GaugeVec
}

func newMetrics() *metrics {
	const ns = "agencyos"
	return &metrics{
		DispatchAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "scheduler", Name: "dispatch_attempts_total",
			Help: "Assignments the scheduler attempted to dispatch, by channel.",
		}, []string{"channel"}),
		DispatchSent: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "scheduler", Name: "dispatch_sent_total",
			Help: "Assignments successfully dispatched, by channel.",
		}, []string{"channel"}),
		DispatchRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "scheduler", Name: "dispatch_rejected_total",
			Help: "Assignments rejected by the JIT validator, by channel and reject reason.",
		}, []string{"channel", "reason"}),
		DispatchFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "scheduler", Name: "dispatch_failed_total",
			Help: "Assignments that failed at the driver after passing validation, by channel.",
		}, []string{"channel"}),
		DispatchDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns, Subsystem: "scheduler", Name: "dispatch_duration_seconds",
			Help:    "Wall-clock time to process one claimed assignment, end to end.",
			Buckets: prometheus.DefBuckets,
		}, []string{"channel"}),
		SchedulerRunGauge: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: "scheduler", Name: "run_in_progress",
			Help: "1 while a scheduler Run is executing, 0 otherwise.",
		}),

		JITRejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "jit", Name: "rejections_total",
			Help: "JIT validator rejections by reason code.",
		}, []string{"reason"}),

		ResourceHealthGauge: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: "respool", Name: "resource_healthy",
			Help: "1 if the resource is healthy, 0 if degraded/cooling, by resource id and type.",
		}, []string{"resource_id", "type"}),
		ResourcePoolEmpty: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "respool", Name: "pool_exhausted_total",
			Help: "Times Select found no eligible resource, by type.",
		}, []string{"type"}),

		RateLedgerReservations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "ratelimit", Name: "reservations_total",
			Help: "Rolling-24h ledger reservations granted, by resource id.",
		}, []string{"resource_id"}),
		RateLedgerRejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "ratelimit", Name: "rejections_total",
			Help: "Rolling-24h ledger reservations denied for being over cap, by resource id.",
		}, []string{"resource_id"}),

		EnrichmentTierHits: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "enrichment", Name: "tier_hits_total",
			Help: "Waterfall completions by the tier that produced the accepted record.",
		}, []string{"tier"}),
		EnrichmentSpendTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "enrichment", Name: "spend_usd_total",
			Help: "Enrichment spend in USD, by tier.",
		}, []string{"tier"}),

		AllocatorAssigned: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "leadpool", Name: "assigned_total",
			Help: "Lead Pool Records assigned to a tenant, by tenant id.",
		}, []string{"tenant_id"}),
		AllocatorSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "leadpool", Name: "skipped_total",
			Help: "Candidate records skipped during sourcing, by skip reason.",
		}, []string{"reason"}),
		AllocatorPoolGauge: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: "leadpool", Name: "available_records",
			Help: "Unassigned pool records currently eligible for sourcing, by tier.",
		}, []string{"tier"}),

		ReplyIntentTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "replyrouter", Name: "intent_total",
			Help: "Classified inbound replies, by intent.",
		}, []string{"intent"}),
		ReplyDuplicateSkip: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "replyrouter", Name: "duplicate_skipped_total",
			Help: "Inbound webhooks deduplicated by provider_msg_id.",
		}),
		ReplySpendTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "replyrouter", Name: "reply_spend_usd_total",
			Help: "Automated reply generation spend in USD, by tier.",
		}, []string{"tier"}),

		PatternRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "patterns", Name: "runs_total",
			Help: "Pattern detector cycles run, by scope (tenant id, or \"platform\").",
		}, []string{"scope"}),
		PatternRecordsSize: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: "patterns", Name: "eligible_features",
			Help: "Eligible FeatureLift observations in the most recent run, by kind.",
		}, []string{"kind"}),
	}
}
