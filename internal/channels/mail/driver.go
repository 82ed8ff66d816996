// Package mail implements the physical direct-mail channel driver: a
// REST call to a print-and-mail fulfillment provider, wrapped in the
// same retrying HTTP client used by the other REST-based channel
// drivers. The destination address is a mailing-address record
// reference rather than an email or phone number.
package mail

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

// Driver dispatches direct-mail sends through a REST-based fulfillment
// provider.
type Driver struct {
	httpClient *httpretry.RetryClient
	baseURL    string
	apiKey     string
}

// New creates a mail driver against baseURL, authenticating with apiKey.
func New(httpClient *httpretry.RetryClient, baseURL, apiKey string) *Driver {
	if httpClient == nil {
		httpClient = httpretry.NewRetryClient(nil, 3)
	}
	return &Driver{httpClient: httpClient, baseURL: baseURL, apiKey: apiKey}
}

type mailRequest struct {
	SenderRef  string `json:"sender_ref"`
	AddressRef string `json:"address_ref"`
	TemplateRef string `json:"template_ref"`
}

type mailResponse struct {
	JobID string `json:"job_id"`
}

// Send implements channels.Driver. addr is the mailing-address record
// reference; content.TemplateRef names the letter/postcard layout.
func (d *Driver) Send(ctx context.Context, resource domain.Resource, addr channels.Address, content channels.Content) (channels.DispatchResult, error) {
	payload, _ := json.Marshal(mailRequest{SenderRef: resource.ProviderID, AddressRef: string(addr), TemplateRef: content.TemplateRef})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/mailings", bytes.NewReader(payload))
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
		return channels.DispatchResult{}, fmt.Errorf("%w: mail provider status %d", channels.ErrTransient, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return channels.DispatchResult{}, fmt.Errorf("%w: mail provider status %d: %s", channels.ErrPermanent, resp.StatusCode, string(body))
	}

	var out mailResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return channels.DispatchResult{}, fmt.Errorf("%w: decode mail response: %v", channels.ErrTransient, err)
	}
	return channels.DispatchResult{ProviderMsgID: out.JobID}, nil
}

// Ingest implements channels.InboundAdapter. Direct mail has no delivery
// events (spec §4.12); every payload is ignored.
func (d *Driver) Ingest(payload []byte) (channels.InboundEvent, bool, error) {
	return channels.InboundEvent{}, false, nil
}
