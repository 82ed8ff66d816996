// Package webhook delivers the outbound meeting_booked notification of
// spec §6.3 to a tenant's configured endpoint, logging every attempt and
// tracking consecutive failures so a dead endpoint gets marked degraded
// instead of retried forever.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/keiracom/agencyos-dispatch/internal/domain"
	"github.com/keiracom/agencyos-dispatch/internal/pkg/httpretry"
)

// degradedThreshold is the number of consecutive push failures after
// which a tenant's webhook endpoint is marked degraded (spec §6.3 "after
// N consecutive failures"; N is left to the implementation — mirrors
// respool's consecutive-failure threshold for the same kind of decision).
const degradedThreshold = 5

// FailureTracker records and clears a tenant's consecutive outbound
// webhook failure count.
type FailureTracker interface {
	IncrementWebhookFailures(ctx context.Context, tenantID string) error
	ResetWebhookFailures(ctx context.Context, tenantID string) error
	SetHealthDegraded(ctx context.Context, tenantID string) error
}

// PushLog persists every push attempt for audit and retry accounting.
type PushLog interface {
	LogPush(ctx context.Context, tenantID, event string, payload []byte, statusCode int, pushErr string) error
}

// meetingBookedPayload mirrors spec §6.3's body exactly.
type meetingBookedPayload struct {
	Event     string       `json:"event"`
	Timestamp string       `json:"timestamp"`
	Lead      leadBlock    `json:"lead"`
	Meeting   meetingBlock `json:"meeting"`
	Campaign  campaignBlock `json:"campaign"`
}

type leadBlock struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Company     string `json:"company"`
	Title       string `json:"title"`
	LinkedInURL string `json:"linkedin_url"`
}

type meetingBlock struct {
	ID              string `json:"id"`
	ScheduledAt     string `json:"scheduled_at"`
	DurationMinutes int    `json:"duration_minutes"`
	MeetingType     string `json:"meeting_type"`
	MeetingLink     string `json:"meeting_link"`
}

type campaignBlock struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Pusher implements replyrouter.WebhookPusher.
type Pusher struct {
	client  *httpretry.RetryClient
	tenants FailureTracker
	log     PushLog
}

// New constructs a Pusher. client may be nil, in which case a default
// retrying client is used.
func New(client *httpretry.RetryClient, tenants FailureTracker, log PushLog) *Pusher {
	if client == nil {
		client = httpretry.NewRetryClient(nil, 3)
	}
	return &Pusher{client: client, tenants: tenants, log: log}
}

// PushMeetingBooked satisfies replyrouter.WebhookPusher.
func (p *Pusher) PushMeetingBooked(ctx context.Context, tenant domain.Tenant, lead domain.LeadPoolRecord, meeting domain.Meeting, campaign domain.Campaign) error {
	body := meetingBookedPayload{
		Event:     "meeting_booked",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Lead: leadBlock{
			Name:        lead.FirstName + " " + lead.LastName,
			Email:       lead.Email,
			Phone:       lead.Phone,
			Company:     lead.Firmographics.CompanyName,
			Title:       lead.Title,
			LinkedInURL: lead.LinkedInURL,
		},
		Meeting: meetingBlock{
			ID:              meeting.ID,
			ScheduledAt:     meeting.ScheduledAt.Format(time.RFC3339),
			DurationMinutes: meeting.DurationMinutes,
			MeetingType:     string(meeting.Type),
			MeetingLink:     meeting.MeetingLink,
		},
		Campaign: campaignBlock{ID: campaign.ID, Name: campaign.Name},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode meeting_booked payload: %w", err)
	}

	statusCode, pushErr := p.deliver(ctx, tenant.WebhookURL, payload)

	logErr := ""
	if pushErr != nil {
		logErr = pushErr.Error()
	}
	if err := p.log.LogPush(ctx, tenant.ID, "meeting_booked", payload, statusCode, logErr); err != nil {
		return fmt.Errorf("log webhook push for tenant %s: %w", tenant.ID, err)
	}

	if pushErr != nil {
		if err := p.tenants.IncrementWebhookFailures(ctx, tenant.ID); err != nil {
			return fmt.Errorf("increment webhook failures for tenant %s: %w", tenant.ID, err)
		}
		if tenant.WebhookFailures+1 >= degradedThreshold {
			if err := p.tenants.SetHealthDegraded(ctx, tenant.ID); err != nil {
				return fmt.Errorf("mark webhook degraded for tenant %s: %w", tenant.ID, err)
			}
		}
		return fmt.Errorf("push meeting_booked webhook to tenant %s: %w", tenant.ID, pushErr)
	}

	if err := p.tenants.ResetWebhookFailures(ctx, tenant.ID); err != nil {
		return fmt.Errorf("reset webhook failures for tenant %s: %w", tenant.ID, err)
	}
	return nil
}

func (p *Pusher) deliver(ctx context.Context, url string, payload []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("deliver webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return resp.StatusCode, fmt.Errorf("webhook endpoint returned %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}
