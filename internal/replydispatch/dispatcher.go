// Package replydispatch sends the automated replies the Reply Router
// scheduled once their randomized anti-bot delay (spec §4.9/§4.10) has
// elapsed. It is deliberately separate from internal/scheduler: a
// scheduled reply isn't a sequence step claim, it carries its own tier
// and has no campaign step to advance, but it dispatches through the
// same resource pool and channel drivers.
package replydispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/keiracom/agencyos-dispatch/internal/channels"
	"github.com/keiracom/agencyos-dispatch/internal/domain"
	"github.com/keiracom/agencyos-dispatch/internal/pkg/logger"
)

// Repository is the durable scheduled-reply queue.
type Repository interface {
	DueReplies(ctx context.Context, now time.Time, limit int) ([]domain.ScheduledReply, error)
	MarkSent(ctx context.Context, id string) error
}

// AssignmentReader looks up the assignment a scheduled reply belongs to.
type AssignmentReader interface {
	GetByID(ctx context.Context, id string) (domain.Assignment, error)
}

// LeadReader looks up the lead a reply goes out to.
type LeadReader interface {
	GetLead(ctx context.Context, id string) (domain.LeadPoolRecord, error)
}

// TenantReader supplies the resource-pool scope for a reply's dispatch.
type TenantReader interface {
	GetTenant(ctx context.Context, id string) (domain.Tenant, error)
}

// ResourcePool is the subset of respool.Pool's contract the dispatcher
// needs: select a sender identity, then report the outcome.
type ResourcePool interface {
	Select(ctx context.Context, resourceType domain.ResourceType, tenantID string, now time.Time) (*domain.Resource, error)
	MarkDispatched(ctx context.Context, resourceID string, now time.Time)
	MarkFailed(ctx context.Context, resourceID string, now time.Time)
	Release(ctx context.Context, resourceID string, now time.Time) error
}

// ContentResolver generates the actual reply body for a (lead,
// assignment, tier) triple. Generation itself is delegated to an
// external collaborator per the Non-goals; the dispatcher only calls
// through this contract.
type ContentResolver interface {
	ResolveReply(ctx context.Context, lead domain.LeadPoolRecord, assignment domain.Assignment, tier string) (channels.Content, error)
}

// AddressResolver picks the channel-specific destination address off a
// Lead Pool record, the same shape scheduler.AddressResolver uses.
type AddressResolver func(lead domain.LeadPoolRecord, channel domain.Channel) (channels.Address, bool)

// ActivityWriter appends the append-only Activity record for the send.
type ActivityWriter interface {
	Append(ctx context.Context, a domain.Activity) error
}

// Dispatcher polls for due scheduled replies and sends each through the
// matching channel driver.
type Dispatcher struct {
	repo        Repository
	assignments AssignmentReader
	leads       LeadReader
	tenants     TenantReader
	pool        ResourcePool
	drivers     map[domain.Channel]channels.Driver
	content     ContentResolver
	addresses   AddressResolver
	activities  ActivityWriter
	batchSize   int
}

// New assembles a Dispatcher. batchSize defaults to 50 per poll.
func New(
	repo Repository,
	assignments AssignmentReader,
	leads LeadReader,
	tenants TenantReader,
	pool ResourcePool,
	drivers map[domain.Channel]channels.Driver,
	content ContentResolver,
	addresses AddressResolver,
	activities ActivityWriter,
	batchSize int,
) *Dispatcher {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Dispatcher{
		repo: repo, assignments: assignments, leads: leads, tenants: tenants,
		pool: pool, drivers: drivers, content: content, addresses: addresses,
		activities: activities, batchSize: batchSize,
	}
}

// Run sends every scheduled reply due at or before now, logging (not
// failing the whole pass on) any single reply's error so one bad
// assignment never blocks the rest of the queue.
func (d *Dispatcher) Run(ctx context.Context, now time.Time) (int, error) {
	due, err := d.repo.DueReplies(ctx, now, d.batchSize)
	if err != nil {
		return 0, fmt.Errorf("load due replies: %w", err)
	}

	sent := 0
	for _, sr := range due {
		if err := d.dispatchOne(ctx, sr, now); err != nil {
			logger.Error("replydispatch: send failed", "scheduled_reply_id", sr.ID, "error", err.Error())
			continue
		}
		sent++
	}
	return sent, nil
}

func (d *Dispatcher) dispatchOne(ctx context.Context, sr domain.ScheduledReply, now time.Time) error {
	assignment, err := d.assignments.GetByID(ctx, sr.AssignmentID)
	if err != nil {
		return fmt.Errorf("load assignment %s: %w", sr.AssignmentID, err)
	}
	lead, err := d.leads.GetLead(ctx, assignment.LeadID)
	if err != nil {
		return fmt.Errorf("load lead %s: %w", assignment.LeadID, err)
	}

	driver, ok := d.drivers[sr.Channel]
	if !ok {
		return fmt.Errorf("fatal: no driver registered for channel %s", sr.Channel)
	}

	resourceType := domain.ResourceTypeForChannel(sr.Channel)
	resource, err := d.pool.Select(ctx, resourceType, assignment.TenantID, now)
	if err != nil {
		return fmt.Errorf("select resource for reply %s: %w", sr.ID, err)
	}

	addr, ok := d.addresses(lead, sr.Channel)
	if !ok {
		_ = d.pool.Release(ctx, resource.ID, now)
		return fmt.Errorf("no address for channel %s on lead %s", sr.Channel, lead.ID)
	}

	content, err := d.content.ResolveReply(ctx, lead, assignment, sr.Tier)
	if err != nil {
		_ = d.pool.Release(ctx, resource.ID, now)
		return fmt.Errorf("resolve reply content %s: %w", sr.ID, err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	result, sendErr := driver.Send(sendCtx, *resource, addr, content)
	cancel()

	if sendErr != nil {
		_ = d.pool.Release(ctx, resource.ID, now)
		d.pool.MarkFailed(ctx, resource.ID, now)
		return fmt.Errorf("send reply %s: %w", sr.ID, sendErr)
	}
	d.pool.MarkDispatched(ctx, resource.ID, now)

	if err := d.activities.Append(ctx, domain.Activity{
		TenantID:      assignment.TenantID,
		LeadID:        assignment.LeadID,
		AssignmentID:  assignment.ID,
		CampaignID:    assignment.CampaignID,
		Channel:       sr.Channel,
		Action:        domain.ActionSent,
		ProviderMsgID: result.ProviderMsgID,
		ResourceID:    resource.ID,
		SequenceStep:  assignment.SequenceStep,
		CreatedAt:     now,
	}); err != nil {
		return fmt.Errorf("append reply-sent activity %s: %w", sr.ID, err)
	}

	if err := d.repo.MarkSent(ctx, sr.ID); err != nil {
		return fmt.Errorf("mark reply %s sent: %w", sr.ID, err)
	}
	return nil
}
