// Package providers implements the enrichment Waterfall's external-data
// tiers (primary, supplement, premium) as generic REST clients over the
// retrying HTTP client used throughout this codebase, the same shape as
// the outreach channel drivers in internal/channels.
package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/keiracom/agencyos-dispatch/internal/domain"
	"github.com/keiracom/agencyos-dispatch/internal/enrichment"
	"github.com/keiracom/agencyos-dispatch/internal/pkg/httpretry"
)

// personRecord is the wire shape every tier's provider returns; fields
// absent from a given response simply decode to their zero value.
type personRecord struct {
	Email          string   `json:"email"`
	EmailStatus    string   `json:"email_status"`
	Phone          string   `json:"phone"`
	LinkedInURL    string   `json:"linkedin_url"`
	FirstName      string   `json:"first_name"`
	LastName       string   `json:"last_name"`
	Title          string   `json:"title"`
	CompanyName    string   `json:"company_name"`
	CompanyDomain  string   `json:"company_domain"`
	SizeBand       string   `json:"size_band"`
	Industry       string   `json:"industry"`
	FundingSignals []string `json:"funding_signals"`
	TechSignals    []string `json:"tech_signals"`
	LinkedInPosts  []string `json:"linkedin_posts"`
	Confidence     float64  `json:"confidence"`
}

func (p personRecord) toResult() enrichment.Result {
	return enrichment.Result{
		Confidence: p.Confidence,
		Fields: domain.LeadPoolRecord{
			Email:       p.Email,
			EmailStatus: domain.EmailStatus(p.EmailStatus),
			Phone:       p.Phone,
			LinkedInURL: p.LinkedInURL,
			FirstName:   p.FirstName,
			LastName:    p.LastName,
			Title:       p.Title,
			Firmographics: domain.Firmographics{
				CompanyName:    p.CompanyName,
				CompanyDomain:  p.CompanyDomain,
				SizeBand:       p.SizeBand,
				Industry:       p.Industry,
				FundingSignals: p.FundingSignals,
				TechSignals:    p.TechSignals,
				LinkedInPosts:  p.LinkedInPosts,
			},
		},
	}
}

// restClient is the shared plumbing: POST a JSON request, decode a
// personRecord response, classify non-2xx the same way the channel
// drivers do.
type restClient struct {
	httpClient *httpretry.RetryClient
	baseURL    string
	apiKey     string
}

func newRESTClient(httpClient *httpretry.RetryClient, baseURL, apiKey string) restClient {
	if httpClient == nil {
		httpClient = httpretry.NewRetryClient(nil, 3)
	}
	return restClient{httpClient: httpClient, baseURL: baseURL, apiKey: apiKey}
}

func (c restClient) lookup(ctx context.Context, path string, body interface{}) (enrichment.Result, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return enrichment.Result{}, fmt.Errorf("encode enrichment request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return enrichment.Result{}, fmt.Errorf("build enrichment request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return enrichment.Result{}, fmt.Errorf("call enrichment provider: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusNotFound {
		return enrichment.Result{}, nil // no match; zero-confidence result falls through the waterfall
	}
	if resp.StatusCode >= 400 {
		return enrichment.Result{}, fmt.Errorf("enrichment provider status %d: %s", resp.StatusCode, string(raw))
	}

	var rec personRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return enrichment.Result{}, fmt.Errorf("decode enrichment response: %w", err)
	}
	return rec.toResult(), nil
}

// PrimaryClient implements enrichment.PrimaryProvider.
type PrimaryClient struct{ c restClient }

// NewPrimaryClient creates the first-tier external data provider client.
func NewPrimaryClient(httpClient *httpretry.RetryClient, baseURL, apiKey string) *PrimaryClient {
	return &PrimaryClient{c: newRESTClient(httpClient, baseURL, apiKey)}
}

func (p *PrimaryClient) LookupByEmail(ctx context.Context, email string) (enrichment.Result, error) {
	return p.c.lookup(ctx, "/v1/lookup/email", map[string]string{"email": email})
}

func (p *PrimaryClient) LookupByLinkedIn(ctx context.Context, url string) (enrichment.Result, error) {
	return p.c.lookup(ctx, "/v1/lookup/linkedin", map[string]string{"linkedin_url": url})
}

func (p *PrimaryClient) LookupByNameAndDomain(ctx context.Context, firstName, lastName, domain string) (enrichment.Result, error) {
	return p.c.lookup(ctx, "/v1/lookup/name", map[string]string{
		"first_name":     firstName,
		"last_name":      lastName,
		"company_domain": domain,
	})
}

// SupplementClient implements enrichment.SupplementProvider, filling
// specific missing sub-domains (spec §4.5) off a second specialized
// provider rather than re-running the primary lookup.
type SupplementClient struct{ c restClient }

// NewSupplementClient creates the supplement-tier provider client.
func NewSupplementClient(httpClient *httpretry.RetryClient, baseURL, apiKey string) *SupplementClient {
	return &SupplementClient{c: newRESTClient(httpClient, baseURL, apiKey)}
}

func (s *SupplementClient) Supplement(ctx context.Context, q enrichment.Query, missing []string) (enrichment.Result, error) {
	return s.c.lookup(ctx, "/v1/supplement", map[string]interface{}{
		"email":          q.Email,
		"linkedin_url":   q.LinkedInURL,
		"first_name":     q.FirstName,
		"last_name":      q.LastName,
		"company_domain": q.CompanyDomain,
		"fields":         missing,
	})
}

// PremiumClient implements enrichment.PremiumProvider: the highest-cost,
// highest-accuracy fallback tier, subject to the waterfall's per-batch
// budget cap.
type PremiumClient struct{ c restClient }

// NewPremiumClient creates the premium-tier provider client.
func NewPremiumClient(httpClient *httpretry.RetryClient, baseURL, apiKey string) *PremiumClient {
	return &PremiumClient{c: newRESTClient(httpClient, baseURL, apiKey)}
}

func (p *PremiumClient) Lookup(ctx context.Context, q enrichment.Query) (enrichment.Result, error) {
	return p.c.lookup(ctx, "/v1/premium/lookup", map[string]string{
		"email":          q.Email,
		"linkedin_url":   q.LinkedInURL,
		"first_name":     q.FirstName,
		"last_name":      q.LastName,
		"company_domain": q.CompanyDomain,
	})
}
