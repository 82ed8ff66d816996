// Package linkedin implements the LinkedIn channel driver: an outbound
// connection request or InMail sent through a seat's OAuth2-authorized
// session, refreshed with golang.org/x/oauth2 the same way the rest of
// this codebase refreshes third-party API tokens.
package linkedin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/keiracom/agencyos-dispatch/internal/channels"
	"github.com/keiracom/agencyos-dispatch/internal/domain"
)

// SeatTokenSource resolves the oauth2.TokenSource for a given LinkedIn
// seat (resource.ProviderID), so one driver instance can dispatch on
// behalf of many seats without holding a fixed credential.
type SeatTokenSource interface {
	TokenSourceFor(ctx context.Context, seatID string) (oauth2.TokenSource, error)
}

// Driver dispatches LinkedIn outreach (connection request or InMail)
// through a seat's authorized session.
type Driver struct {
	seats   SeatTokenSource
	baseURL string
}

// New creates a LinkedIn driver. baseURL is the LinkedIn API root.
func New(seats SeatTokenSource, baseURL string) *Driver {
	return &Driver{seats: seats, baseURL: baseURL}
}

type messageRequest struct {
	RecipientProfileURL string `json:"recipient_profile_url"`
	Body                string `json:"body"`
	Kind                string `json:"kind"` // "connection_request" or "inmail"
}

type messageResponse struct {
	MessageID string `json:"message_id"`
}

// Send implements channels.Driver. addr is the recipient's LinkedIn
// profile URL. content.TemplateRef == "connection_request" sends a
// connection note instead of an InMail; any other value (including
// empty) sends an InMail.
func (d *Driver) Send(ctx context.Context, resource domain.Resource, addr channels.Address, content channels.Content) (channels.DispatchResult, error) {
	ts, err := d.seats.TokenSourceFor(ctx, resource.ProviderID)
	if err != nil {
		return channels.DispatchResult{}, fmt.Errorf("%w: linkedin seat auth: %v", channels.ErrTransient, err)
	}
	httpClient := oauth2.NewClient(ctx, ts)

	kind := "inmail"
	if content.TemplateRef == "connection_request" {
		kind = "connection_request"
	}
	payload, _ := json.Marshal(messageRequest{RecipientProfileURL: string(addr), Body: content.Body, Kind: kind})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/messages", bytes.NewReader(payload))
	if err != nil {
		return channels.DispatchResult{}, fmt.Errorf("%w: %v", channels.ErrPermanent, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return channels.DispatchResult{}, fmt.Errorf("%w: %v", channels.ErrTransient, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	switch {
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		return channels.DispatchResult{}, fmt.Errorf("%w: linkedin provider status %d", channels.ErrTransient, resp.StatusCode)
	case resp.StatusCode >= 400:
		return channels.DispatchResult{}, fmt.Errorf("%w: linkedin provider status %d: %s", channels.ErrPermanent, resp.StatusCode, string(body))
	}

	var out messageResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return channels.DispatchResult{}, fmt.Errorf("%w: decode linkedin response: %v", channels.ErrTransient, err)
	}
	return channels.DispatchResult{ProviderMsgID: out.MessageID}, nil
}

// inboundPayload is the seat webhook's shape for an accepted connection
// or an inbound direct message.
type inboundPayload struct {
	MessageID         string `json:"message_id"`
	FromProfileURL    string `json:"from_profile_url"`
	Body              string `json:"body"`
	Kind              string `json:"kind"` // "message", "connection_accepted"
	Timestamp         int64  `json:"timestamp"`
}

// Ingest implements channels.InboundAdapter. A bare connection-accepted
// notification carries no reply text and is ignored here; it is recorded
// directly as an Activity by the caller instead.
func (d *Driver) Ingest(payload []byte) (channels.InboundEvent, bool, error) {
	var p inboundPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return channels.InboundEvent{}, false, fmt.Errorf("decode linkedin webhook: %w", err)
	}
	if p.Kind != "message" || p.Body == "" {
		return channels.InboundEvent{}, false, nil
	}
	return channels.InboundEvent{
		ProviderMsgID: p.MessageID,
		LeadRef:       p.FromProfileURL,
		Channel:       domain.ChannelLinkedIn,
		Kind:          "reply",
		Body:          p.Body,
		OccurredAt:    p.Timestamp,
	}, true, nil
}
