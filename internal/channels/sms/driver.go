// Package sms implements the SMS channel driver: a generic REST provider
// call (carrier-agnostic — the resource's ProviderID carries the
// provider-specific sender number) wrapped in the retrying HTTP client
// used throughout this codebase for outbound provider calls.
package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/keiracom/agencyos-dispatch/internal/channels"
	"github.com/keiracom/agencyos-dispatch/internal/domain"
	"github.com/keiracom/agencyos-dispatch/internal/pkg/httpretry"
)

// Driver dispatches SMS sends through a REST-based provider.
type Driver struct {
	httpClient *httpretry.RetryClient
	baseURL    string
	apiKey     string
	dncrURL    string // empty disables the do-not-call registry check
}

// New creates an SMS driver against baseURL, authenticating with apiKey.
// dncrURL is the do-not-call registry lookup endpoint (spec §4.12: "SMS:
// compliance check against do-not-call registry before dispatch"); an
// empty value skips the check, for environments with no registry
// provider configured yet.
func New(httpClient *httpretry.RetryClient, baseURL, apiKey, dncrURL string) *Driver {
	if httpClient == nil {
		httpClient = httpretry.NewRetryClient(nil, 3)
	}
	return &Driver{httpClient: httpClient, baseURL: baseURL, apiKey: apiKey, dncrURL: dncrURL}
}

type sendRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
	Body string `json:"body"`
}

type sendResponse struct {
	MessageID string `json:"message_id"`
}

type dncrResponse struct {
	Registered bool `json:"registered"`
}

// checkDNCR looks the destination number up against the configured
// do-not-call registry. It happens inside the driver, not the JIT
// Validator, because it requires a provider round trip the Validator has
// no access to (spec §4.12).
func (d *Driver) checkDNCR(ctx context.Context, phone string) error {
	if d.dncrURL == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.dncrURL+"/check?phone="+url.QueryEscape(phone), nil)
	if err != nil {
		return fmt.Errorf("%w: %v", channels.ErrPermanent, err)
	}
	req.Header.Set("Authorization", "Bearer "+d.apiKey)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: dncr lookup: %v", channels.ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: dncr provider status %d", channels.ErrTransient, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: dncr provider status %d", channels.ErrPermanent, resp.StatusCode)
	}

	var out dncrResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("%w: decode dncr response: %v", channels.ErrTransient, err)
	}
	if out.Registered {
		return fmt.Errorf("%w: %s", channels.ErrRejectedDNCR, phone)
	}
	return nil
}

// Send implements channels.Driver.
func (d *Driver) Send(ctx context.Context, resource domain.Resource, addr channels.Address, content channels.Content) (channels.DispatchResult, error) {
	if err := d.checkDNCR(ctx, string(addr)); err != nil {
		return channels.DispatchResult{}, err
	}

	payload, _ := json.Marshal(sendRequest{From: resource.ProviderID, To: string(addr), Body: content.Body})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/messages", bytes.NewReader(payload))
	if err != nil {
		return channels.DispatchResult{}, fmt.Errorf("%w: %v", channels.ErrPermanent, err)
	}
	req.Header.Set("Authorization", "Bearer "+d.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return channels.DispatchResult{}, fmt.Errorf("%w: %v", channels.ErrTransient, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return channels.DispatchResult{}, fmt.Errorf("%w: sms provider status %d", channels.ErrTransient, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return channels.DispatchResult{}, fmt.Errorf("%w: sms provider status %d: %s", channels.ErrPermanent, resp.StatusCode, string(body))
	}

	var out sendResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return channels.DispatchResult{}, fmt.Errorf("%w: decode sms response: %v", channels.ErrTransient, err)
	}
	return channels.DispatchResult{ProviderMsgID: out.MessageID}, nil
}

// inboundPayload is a Twilio-shaped inbound webhook: a "Body" present
// means an inbound reply; its absence with a MessageStatus means a
// delivery-status callback.
type inboundPayload struct {
	MessageSid    string `json:"MessageSid"`
	From          string `json:"From"`
	Body          string `json:"Body"`
	MessageStatus string `json:"MessageStatus"`
	Timestamp     int64  `json:"timestamp"`
}

// Ingest implements channels.InboundAdapter.
func (d *Driver) Ingest(payload []byte) (channels.InboundEvent, bool, error) {
	var p inboundPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return channels.InboundEvent{}, false, fmt.Errorf("decode sms webhook: %w", err)
	}

	var kind string
	switch {
	case p.Body != "":
		kind = "reply"
	case p.MessageStatus == "failed" || p.MessageStatus == "undelivered":
		kind = "bounce"
	default:
		return channels.InboundEvent{}, false, nil // delivered/sent/queued: no Reply Router action
	}

	return channels.InboundEvent{
		ProviderMsgID: p.MessageSid,
		LeadRef:       p.From,
		Channel:       domain.ChannelSMS,
		Kind:          kind,
		Body:          p.Body,
		OccurredAt:    p.Timestamp,
	}, true, nil
}

// PollEvents implements channels.EventPoller: a reconciliation sweep over
// the provider's message log, for the recovery job to re-ingest anything
// a dropped webhook delivery missed.
func (d *Driver) PollEvents(ctx context.Context, since time.Time) ([][]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		d.baseURL+"/messages?since="+strconv.FormatInt(since.Unix(), 10), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", channels.ErrPermanent, err)
	}
	req.Header.Set("Authorization", "Bearer "+d.apiKey)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: poll sms events: %v", channels.ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: sms poll status %d", channels.ErrTransient, resp.StatusCode)
	}

	var out struct {
		Messages []json.RawMessage `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode sms poll response: %v", channels.ErrTransient, err)
	}
	events := make([][]byte, len(out.Messages))
	for i, raw := range out.Messages {
		events[i] = raw
	}
	return events, nil
}
