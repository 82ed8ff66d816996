// Package content resolves the outbound message content the Outreach
// Scheduler and the reply dispatcher hand to a channel driver. Rich
// content generation itself is delegated to an external collaborator
// (spec §1 Non-goals: "the core delegates to a content generator; it
// only stores and dispatches the resulting artifact") — this package is
// the thin client boundary, the same REST-over-httpretry shape as
// internal/enrichment/providers and internal/leadpool's source provider.
package content

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/keiracom/agencyos-dispatch/internal/channels"
	"github.com/keiracom/agencyos-dispatch/internal/domain"
	"github.com/keiracom/agencyos-dispatch/internal/pkg/httpretry"
)

type generateRequest struct {
	TenantID      string `json:"tenant_id"`
	LeadID        string `json:"lead_id"`
	AssignmentID  string `json:"assignment_id"`
	Channel       string `json:"channel"`
	TemplateRef   string `json:"template_ref"`
	Step          int    `json:"step"`
	Tier          string `json:"tier"`
	SDKEnhanced   bool   `json:"sdk_enhanced"`
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	CompanyName   string `json:"company_name"`
	Title         string `json:"title"`
}

type generateResponse struct {
	Subject     string `json:"subject"`
	Body        string `json:"body"`
	ABArmRef    string `json:"ab_arm_ref"`
	AIModelRef  string `json:"ai_model_ref"`
}

// Resolver implements scheduler.ContentResolver and replydispatch.ContentResolver
// against an external content-generation service.
type Resolver struct {
	httpClient *httpretry.RetryClient
	baseURL    string
	apiKey     string
}

// New creates a content Resolver. httpClient may be nil, in which case a
// default retrying client (3 retries after the first attempt) is used.
func New(httpClient *httpretry.RetryClient, baseURL, apiKey string) *Resolver {
	if httpClient == nil {
		httpClient = httpretry.NewRetryClient(nil, 3)
	}
	return &Resolver{httpClient: httpClient, baseURL: baseURL, apiKey: apiKey}
}

// Resolve satisfies scheduler.ContentResolver. Hot-tier assignments are
// flagged sdk_enhanced so the generator can route to its more expensive
// model; the cost cap on that routing lives entirely on the generator
// side, out of this module's scope.
func (r *Resolver) Resolve(ctx context.Context, lead domain.LeadPoolRecord, assignment domain.Assignment, step domain.SequenceStepDef, tier string) (channels.Content, error) {
	payload, err := json.Marshal(generateRequest{
		TenantID:     assignment.TenantID,
		LeadID:       lead.ID,
		AssignmentID: assignment.ID,
		Channel:      string(step.Channel),
		TemplateRef:  step.TemplateRef,
		Step:         step.Step,
		Tier:         tier,
		SDKEnhanced:  tier == string(domain.BandHot),
		FirstName:    lead.FirstName,
		LastName:     lead.LastName,
		CompanyName:  lead.Firmographics.CompanyName,
		Title:        lead.Title,
	})
	if err != nil {
		return channels.Content{}, fmt.Errorf("content resolver: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/v1/content/generate", bytes.NewReader(payload))
	if err != nil {
		return channels.Content{}, fmt.Errorf("content resolver: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+r.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return channels.Content{}, fmt.Errorf("content resolver: call: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return channels.Content{}, fmt.Errorf("content resolver: status %d: %s", resp.StatusCode, string(raw))
	}

	var gr generateResponse
	if err := json.Unmarshal(raw, &gr); err != nil {
		return channels.Content{}, fmt.Errorf("content resolver: decode response: %w", err)
	}

	return channels.Content{
		Subject:     gr.Subject,
		Body:        gr.Body,
		TemplateRef: step.TemplateRef,
		ABArmRef:    gr.ABArmRef,
		AIModelRef:  gr.AIModelRef,
	}, nil
}

// ResolveReply satisfies replydispatch.ContentResolver, generating an
// automated reply body instead of a sequence step's content. tier
// distinguishes the cheap-generator path from the budget-gated expensive
// path (replyrouter.ReplyTier's string values), mirrored here as a plain
// string so this package doesn't need to import replyrouter.
func (r *Resolver) ResolveReply(ctx context.Context, lead domain.LeadPoolRecord, assignment domain.Assignment, tier string) (channels.Content, error) {
	payload, err := json.Marshal(generateRequest{
		TenantID:     assignment.TenantID,
		LeadID:       lead.ID,
		AssignmentID: assignment.ID,
		Channel:      string(assignment.LastChannel),
		Step:         assignment.SequenceStep,
		Tier:         tier,
		SDKEnhanced:  tier == "expensive",
		FirstName:    lead.FirstName,
		LastName:     lead.LastName,
		CompanyName:  lead.Firmographics.CompanyName,
		Title:        lead.Title,
	})
	if err != nil {
		return channels.Content{}, fmt.Errorf("content resolver: encode reply request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/v1/content/reply", bytes.NewReader(payload))
	if err != nil {
		return channels.Content{}, fmt.Errorf("content resolver: build reply request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+r.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return channels.Content{}, fmt.Errorf("content resolver: reply call: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return channels.Content{}, fmt.Errorf("content resolver: reply status %d: %s", resp.StatusCode, string(raw))
	}

	var gr generateResponse
	if err := json.Unmarshal(raw, &gr); err != nil {
		return channels.Content{}, fmt.Errorf("content resolver: decode reply response: %w", err)
	}

	return channels.Content{
		Subject:    gr.Subject,
		Body:       gr.Body,
		ABArmRef:   gr.ABArmRef,
		AIModelRef: gr.AIModelRef,
	}, nil
}
