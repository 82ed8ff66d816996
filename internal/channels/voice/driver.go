// Package voice implements the voice channel driver: a REST call to a
// voice-broadcast provider that places an outbound call and plays a
// recorded or synthesized script, wrapped in the same retrying HTTP
// client used by the other REST-based channel drivers.
package voice

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

// Driver dispatches voice calls through a REST-based provider.
type Driver struct {
	httpClient *httpretry.RetryClient
	baseURL    string
	apiKey     string
}

// New creates a voice driver against baseURL, authenticating with apiKey.
func New(httpClient *httpretry.RetryClient, baseURL, apiKey string) *Driver {
	if httpClient == nil {
		httpClient = httpretry.NewRetryClient(nil, 3)
	}
	return &Driver{httpClient: httpClient, baseURL: baseURL, apiKey: apiKey}
}

type callRequest struct {
	From       string `json:"from"`
	To         string `json:"to"`
	ScriptRef  string `json:"script_ref"`
	VoicemailOK bool  `json:"voicemail_ok"`
}

type callResponse struct {
	CallID string `json:"call_id"`
}

// Send implements channels.Driver. content.TemplateRef names the voice
// script the provider should play; content.Body carries a fallback TTS
// script when no recorded template exists.
func (d *Driver) Send(ctx context.Context, resource domain.Resource, addr channels.Address, content channels.Content) (channels.DispatchResult, error) {
	scriptRef := content.TemplateRef
	if scriptRef == "" {
		scriptRef = content.Body
	}
	payload, _ := json.Marshal(callRequest{From: resource.ProviderID, To: string(addr), ScriptRef: scriptRef, VoicemailOK: true})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/calls", bytes.NewReader(payload))
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
		return channels.DispatchResult{}, fmt.Errorf("%w: voice provider status %d", channels.ErrTransient, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return channels.DispatchResult{}, fmt.Errorf("%w: voice provider status %d: %s", channels.ErrPermanent, resp.StatusCode, string(body))
	}

	var out callResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return channels.DispatchResult{}, fmt.Errorf("%w: decode voice response: %v", channels.ErrTransient, err)
	}
	return channels.DispatchResult{ProviderMsgID: out.CallID}, nil
}

// callbackPayload is the provider's post-call webhook: outcome and
// duration always arrive; a callback transcript is present only when the
// lead spoke back to the IVR (treated as an inbound reply).
type callbackPayload struct {
	CallID     string `json:"call_id"`
	From       string `json:"from"`
	Status     string `json:"status"` // "completed", "no_answer", "voicemail", "failed"
	Transcript string `json:"transcript"`
	Timestamp  int64  `json:"timestamp"`
}

// Ingest implements channels.InboundAdapter. Only a call with a
// transcript is surfaced to the Reply Router; bare outcome/duration data
// is recorded directly as an Activity by the caller and never reaches
// Ingest as a payload worth normalizing further.
func (d *Driver) Ingest(payload []byte) (channels.InboundEvent, bool, error) {
	var p callbackPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return channels.InboundEvent{}, false, fmt.Errorf("decode voice callback: %w", err)
	}
	if p.Transcript == "" {
		return channels.InboundEvent{}, false, nil
	}
	return channels.InboundEvent{
		ProviderMsgID: p.CallID,
		LeadRef:       p.From,
		Channel:       domain.ChannelVoice,
		Kind:          "reply",
		Body:          p.Transcript,
		OccurredAt:    p.Timestamp,
	}, true, nil
}
