package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/keiracom/agencyos-dispatch/internal/channels"
	"github.com/keiracom/agencyos-dispatch/internal/config"
	"github.com/keiracom/agencyos-dispatch/internal/domain"
	"github.com/keiracom/agencyos-dispatch/internal/jit"
	"github.com/keiracom/agencyos-dispatch/internal/observability"
	"github.com/keiracom/agencyos-dispatch/internal/pkg/alert"
	"github.com/keiracom/agencyos-dispatch/internal/pkg/distlock"
	"github.com/keiracom/agencyos-dispatch/internal/pkg/logger"
)

// LockFactory mints the per-assignment advisory lock the Scheduler holds
// for the duration of JIT + dispatch + activity append, closing the small
// window described in spec §4.8's concurrency note. The activity log
// itself remains the ground truth; the lock is best-effort hygiene.
type LockFactory func(key string, ttl time.Duration) distlock.DistLock

// ResourceTracker is the subset of respool.Pool's contract the Scheduler
// needs after a dispatch attempt resolves: record success/failure against
// the chosen resource, or release a reservation that was never consumed.
type ResourceTracker interface {
	MarkDispatched(ctx context.Context, resourceID string, now time.Time)
	MarkFailed(ctx context.Context, resourceID string, now time.Time)
	Release(ctx context.Context, resourceID string, now time.Time) error
}

// SuppressionWriter is the write side of the Suppression Index the
// Scheduler needs for the one rejection it discovers itself rather than
// through the JIT Validator: an SMS driver's do-not-call registry hit
// (spec §7: "rejected_dncr ... mark lead phone-suppressed").
type SuppressionWriter interface {
	Suppress(ctx context.Context, scope domain.SuppressionScope, tenantID string, kind domain.SuppressionKeyKind, rawKey string, reason domain.SuppressionReason, expiresAt *time.Time) (*domain.SuppressionEntry, error)
}

// ContentResolver selects the outbound content for one (assignment, step)
// pair — template + personalization, or an SDK-enhanced generation for
// tier=Hot assignments bounded by cost caps (spec §4.9 step 3b). Content
// generation itself is delegated to an external collaborator per the
// Non-goals; the Scheduler only calls through this contract and stores
// the returned reference.
type ContentResolver interface {
	Resolve(ctx context.Context, lead domain.LeadPoolRecord, assignment domain.Assignment, step domain.SequenceStepDef, tier string) (channels.Content, error)
}

// AddressResolver picks the channel-specific destination address off a
// Lead Pool record (email, E.164 phone, LinkedIn URL, mail address ref).
type AddressResolver func(lead domain.LeadPoolRecord, channel domain.Channel) (channels.Address, bool)

// RunResult summarizes one scheduler pass, returned to the orchestrator
// (spec §4.9 step 4).
type RunResult struct {
	Claimed  int
	Sent     map[domain.Channel]int
	Rejected map[domain.Channel]int
	Failed   map[domain.Channel]int
}

func newRunResult() RunResult {
	return RunResult{
		Sent:     make(map[domain.Channel]int),
		Rejected: make(map[domain.Channel]int),
		Failed:   make(map[domain.Channel]int),
	}
}

// Scheduler is the periodic Outreach Scheduler of spec §4.9: it claims
// due assignments, runs each through the JIT Validator, hands allowed
// sends to the matching channel driver, and records the outcome.
type Scheduler struct {
	claimer    AssignmentClaimer
	tenants    TenantReader
	campaigns  CampaignReader
	leads      LeadReader
	activities ActivityWriter
	validator  *jit.Validator
	pool       ResourceTracker
	drivers    map[domain.Channel]channels.Driver
	content     ContentResolver
	addresses   AddressResolver
	locks       LockFactory
	alerts      alert.Sink
	suppression SuppressionWriter
	cfg         config.SchedulerConfig
}

// New assembles a Scheduler. drivers must carry an entry for every
// channel a campaign sequence may reference; a missing driver is a fatal
// configuration error surfaced per-assignment as spec §7's `fatal` kind.
func New(
	claimer AssignmentClaimer,
	tenants TenantReader,
	campaigns CampaignReader,
	leads LeadReader,
	activities ActivityWriter,
	validator *jit.Validator,
	pool ResourceTracker,
	drivers map[domain.Channel]channels.Driver,
	content ContentResolver,
	addresses AddressResolver,
	locks LockFactory,
	alerts alert.Sink,
	suppression SuppressionWriter,
	cfg config.SchedulerConfig,
) *Scheduler {
	return &Scheduler{
		claimer:     claimer,
		tenants:     tenants,
		campaigns:   campaigns,
		leads:       leads,
		activities:  activities,
		validator:   validator,
		pool:        pool,
		drivers:     drivers,
		content:     content,
		addresses:   addresses,
		locks:       locks,
		alerts:      alerts,
		suppression: suppression,
		cfg:         cfg,
	}
}

// Run executes one scheduler pass: claim up to cfg.BatchSize due
// assignments, dispatch each with bounded parallelism (cfg.MaxParallel),
// and return the per-channel counts. Run is interruptible between
// assignments — on ctx cancellation, in-flight driver calls are allowed
// to finish (their Activities still persist) but no further assignments
// are claimed (spec §4.9 "Cancellation").
func (s *Scheduler) Run(ctx context.Context, now time.Time) (RunResult, error) {
	observability.Metrics.SchedulerRunGauge.Set(1)
	defer observability.Metrics.SchedulerRunGauge.Set(0)

	result := newRunResult()

	batchSize := s.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 50
	}
	claimed, err := s.claimer.ClaimDue(ctx, batchSize, now)
	if err != nil {
		return result, fmt.Errorf("claim due assignments: %w", err)
	}
	result.Claimed = len(claimed)
	if len(claimed) == 0 {
		return result, nil
	}

	maxParallel := s.cfg.MaxParallel
	if maxParallel <= 0 {
		maxParallel = 10
	}
	sem := make(chan struct{}, maxParallel)
	lockTTL := time.Duration(s.cfg.AssignmentLockTTLSeconds) * time.Second
	if lockTTL <= 0 {
		lockTTL = 90 * time.Second
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	for _, assignment := range claimed {
		if ctx.Err() != nil {
			break // deadline/shutdown: stop claiming new work, let in-flight finish
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(a domain.Assignment) {
			defer wg.Done()
			defer func() { <-sem }()

			channel, outcome, dispatchErr := s.dispatchOne(ctx, a, now, lockTTL)

			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case outcomeSent:
				result.Sent[channel]++
				observability.Metrics.DispatchSent.WithLabelValues(string(channel)).Inc()
			case outcomeRejected:
				result.Rejected[channel]++
			case outcomeFailed:
				result.Failed[channel]++
				observability.Metrics.DispatchFailed.WithLabelValues(string(channel)).Inc()
			}
			if dispatchErr != nil {
				s.alerts.Send(alert.Alert{
					Severity: alert.SeverityWarning,
					Subject:  "scheduler: dispatch error",
					Body:     dispatchErr.Error(),
					Fields:   map[string]string{"assignment_id": a.ID},
				})
			}
		}(assignment)
	}

	wg.Wait()
	return result, nil
}

type dispatchOutcome int

const (
	outcomeNone dispatchOutcome = iota
	outcomeSent
	outcomeRejected
	outcomeFailed
)

// dispatchOne runs the full per-assignment pipeline of spec §4.9 step 3
// under a brief advisory lock on the assignment id.
func (s *Scheduler) dispatchOne(ctx context.Context, a domain.Assignment, now time.Time, lockTTL time.Duration) (domain.Channel, dispatchOutcome, error) {
	lock := s.locks(fmt.Sprintf("scheduler:assignment:%s", a.ID), lockTTL)
	acquired, err := lock.Acquire(ctx)
	if err != nil {
		return "", outcomeNone, fmt.Errorf("acquire assignment lock %s: %w", a.ID, err)
	}
	if !acquired {
		// Another worker is mid-dispatch for this assignment; skip this run,
		// pick it up next pass.
		return "", outcomeNone, nil
	}
	defer lock.Release(ctx)

	tenant, err := s.tenants.GetTenant(ctx, a.TenantID)
	if err != nil {
		return "", outcomeNone, fmt.Errorf("load tenant %s: %w", a.TenantID, err)
	}
	campaign, err := s.campaigns.GetCampaign(ctx, a.CampaignID)
	if err != nil {
		return "", outcomeNone, fmt.Errorf("load campaign %s: %w", a.CampaignID, err)
	}
	lead, err := s.leads.GetLead(ctx, a.LeadID)
	if err != nil {
		return "", outcomeNone, fmt.Errorf("load lead %s: %w", a.LeadID, err)
	}

	if !withinSendWindow(tenant, now) {
		return "", outcomeNone, nil // dispatches nothing for this tenant outside its window
	}

	step, ok := campaign.StepFor(a.SequenceStep)
	if !ok {
		// Sequence exhausted: archive rather than leave it claimable forever.
		a.Status = domain.AssignmentArchived
		if aerr := s.claimer.Advance(ctx, a); aerr != nil {
			return "", outcomeNone, fmt.Errorf("archive exhausted assignment %s: %w", a.ID, aerr)
		}
		return "", outcomeNone, nil
	}
	channel := step.Channel

	driver, ok := s.drivers[channel]
	if !ok {
		return channel, outcomeNone, fmt.Errorf("fatal: no driver registered for channel %s", channel)
	}

	observability.Metrics.DispatchAttempts.WithLabelValues(string(channel)).Inc()

	outcome, err := s.validator.Validate(ctx, jit.Input{
		Tenant:     tenant,
		Campaign:   campaign,
		Lead:       lead,
		Assignment: a,
		Channel:    channel,
		Score:      a.Score,
		Now:        now,
	})
	if err != nil {
		return channel, outcomeNone, fmt.Errorf("jit validate %s: %w", a.ID, err)
	}
	if !outcome.Allow {
		observability.Metrics.JITRejections.WithLabelValues(string(outcome.Reason)).Inc()
		if aerr := s.activities.Append(ctx, domain.Activity{
			TenantID:     a.TenantID,
			LeadID:       a.LeadID,
			AssignmentID: a.ID,
			CampaignID:   a.CampaignID,
			Channel:      channel,
			Action:       domain.ActionRejected,
			RejectReason: string(outcome.Reason),
			SequenceStep: a.SequenceStep,
			CreatedAt:    now,
		}); aerr != nil {
			return channel, outcomeRejected, fmt.Errorf("append rejected activity %s: %w", a.ID, aerr)
		}
		return channel, outcomeRejected, nil
	}

	resource := outcome.Resource
	addr, ok := s.addresses(lead, channel)
	if !ok {
		_ = s.pool.Release(ctx, resource.ID, now)
		return channel, outcomeFailed, fmt.Errorf("no address for channel %s on lead %s", channel, a.LeadID)
	}

	content, err := s.content.Resolve(ctx, lead, a, step, a.Tier)
	if err != nil {
		_ = s.pool.Release(ctx, resource.ID, now)
		return channel, outcomeFailed, fmt.Errorf("resolve content %s: %w", a.ID, err)
	}

	dispatchCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	dispatchResult, sendErr := driver.Send(dispatchCtx, *resource, addr, content)
	cancel()

	if sendErr != nil {
		_ = s.pool.Release(ctx, resource.ID, now)

		action := domain.ActionFailed
		reason := "permanent_provider_error"
		outcome := outcomeFailed
		reportErr := sendErr
		switch {
		case errors.Is(sendErr, channels.ErrRejectedDNCR):
			action = domain.ActionRejected
			reason = "rejected_dncr"
			outcome = outcomeRejected
			reportErr = nil // expected compliance rejection, not an alert-worthy failure
			if lead.Phone != "" && s.suppression != nil {
				if _, serr := s.suppression.Suppress(ctx, domain.ScopeGlobal, "", domain.KeyPhone, lead.Phone, domain.ReasonDoNotContact, nil); serr != nil {
					logger.Error("scheduler: suppress dncr phone failed", "lead_id", a.LeadID, "error", serr.Error())
				}
			}
		case errors.Is(sendErr, channels.ErrTransient):
			reason = "transient_provider_error"
			s.pool.MarkFailed(ctx, resource.ID, now)
		default:
			s.pool.MarkFailed(ctx, resource.ID, now)
		}
		if aerr := s.activities.Append(ctx, domain.Activity{
			TenantID:     a.TenantID,
			LeadID:       a.LeadID,
			AssignmentID: a.ID,
			CampaignID:   a.CampaignID,
			Channel:      channel,
			Action:       action,
			RejectReason: reason,
			ResourceID:   resource.ID,
			SequenceStep: a.SequenceStep,
			CreatedAt:    now,
		}); aerr != nil {
			logger.Error("scheduler: append failed-activity error", "assignment_id", a.ID, "error", aerr.Error())
		}
		return channel, outcome, reportErr
	}

	s.pool.MarkDispatched(ctx, resource.ID, now)

	if aerr := s.activities.Append(ctx, domain.Activity{
		TenantID:     a.TenantID,
		LeadID:       a.LeadID,
		AssignmentID: a.ID,
		CampaignID:   a.CampaignID,
		Channel:      channel,
		Action:       domain.ActionSent,
		ProviderMsgID: dispatchResult.ProviderMsgID,
		ResourceID:   resource.ID,
		Content: domain.ContentSnapshot{
			Subject:     content.Subject,
			BodyPreview: previewOf(content.Body),
			TemplateRef: content.TemplateRef,
			ABArmRef:    content.ABArmRef,
			AIModelRef:  content.AIModelRef,
		},
		SequenceStep: a.SequenceStep,
		CreatedAt:    now,
	}); aerr != nil {
		return channel, outcomeSent, fmt.Errorf("append sent activity %s: %w", a.ID, aerr)
	}

	a.Status = domain.AssignmentInSequence
	a.SequenceStep++
	a.LastTouchedAt = &now
	a.LastChannel = channel
	if _, hasNext := campaign.StepFor(a.SequenceStep); !hasNext {
		a.Status = domain.AssignmentArchived // sequence exhausted with no terminal reply or meeting
	}
	if aerr := s.claimer.Advance(ctx, a); aerr != nil {
		return channel, outcomeSent, fmt.Errorf("advance assignment %s: %w", a.ID, aerr)
	}

	return channel, outcomeSent, nil
}

// withinSendWindow reports whether now, converted to the tenant's local
// timezone, falls inside its configured business-hours window on a
// weekday (spec §4.9: "08:00-18:00 tenant-local, Mon-Fri" default).
func withinSendWindow(t domain.Tenant, now time.Time) bool {
	loc, err := time.LoadLocation(t.Timezone)
	if err != nil {
		loc = time.UTC
	}
	local := now.In(loc)
	if local.Weekday() == time.Saturday || local.Weekday() == time.Sunday {
		return false
	}
	start, end := t.SendWindowStart, t.SendWindowEnd
	if start == 0 && end == 0 {
		start, end = 8, 18
	}
	hour := local.Hour()
	return hour >= start && hour < end
}

func previewOf(body string) string {
	const maxLen = 280
	if len(body) <= maxLen {
		return body
	}
	return body[:maxLen]
}
