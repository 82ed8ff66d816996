package leadpool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/keiracom/agencyos-dispatch/internal/domain"
	"github.com/keiracom/agencyos-dispatch/internal/pkg/httpretry"
)

// icpMatchRequest is the wire shape SourceAndPopulate sends to the
// external ICP-matching collaborator (spec §1: "ICP extraction ... ICP
// extraction (website scraping pipeline)" is explicitly out of core
// scope; this is the thin client boundary, not the pipeline itself).
type icpMatchRequest struct {
	Industries   []string `json:"industries"`
	Titles       []string `json:"titles"`
	CompanySizes []string `json:"company_sizes"`
	Locations    []string `json:"locations"`
	PainPoints   []string `json:"pain_points"`
	Limit        int      `json:"limit"`
}

type icpMatchResult struct {
	Email         string   `json:"email"`
	Phone         string   `json:"phone"`
	LinkedInURL   string   `json:"linkedin_url"`
	FirstName     string   `json:"first_name"`
	LastName      string   `json:"last_name"`
	Title         string   `json:"title"`
	CompanyName   string   `json:"company_name"`
	CompanyDomain string   `json:"company_domain"`
	SizeBand      string   `json:"size_band"`
	Industry      string   `json:"industry"`
	ExternalID    string   `json:"external_id"`
	TechSignals   []string `json:"tech_signals"`
}

// RESTSourceProvider implements ExternalProvider over the retrying HTTP
// client this codebase uses for every outbound provider call (the same
// shape as internal/enrichment/providers' primary/supplement/premium
// tiers and the outreach channel drivers in internal/channels).
type RESTSourceProvider struct {
	httpClient *httpretry.RetryClient
	baseURL    string
	apiKey     string
}

// NewRESTSourceProvider creates an ICP-matching client. httpClient may be
// nil, in which case a default retrying client (3 retries after the first
// attempt) is used.
func NewRESTSourceProvider(httpClient *httpretry.RetryClient, baseURL, apiKey string) *RESTSourceProvider {
	if httpClient == nil {
		httpClient = httpretry.NewRetryClient(nil, 3)
	}
	return &RESTSourceProvider{httpClient: httpClient, baseURL: baseURL, apiKey: apiKey}
}

// FindMatches satisfies ExternalProvider.
func (p *RESTSourceProvider) FindMatches(ctx context.Context, icp domain.ICPVector, budget int) ([]domain.LeadPoolRecord, error) {
	payload, err := json.Marshal(icpMatchRequest{
		Industries:   icp.Industries,
		Titles:       icp.Titles,
		CompanySizes: icp.CompanySizes,
		Locations:    icp.Locations,
		PainPoints:   icp.PainPoints,
		Limit:        budget,
	})
	if err != nil {
		return nil, fmt.Errorf("source provider: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/icp/match", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("source provider: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("source provider: call: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("source provider: status %d: %s", resp.StatusCode, string(raw))
	}

	var results []icpMatchResult
	if err := json.Unmarshal(raw, &results); err != nil {
		return nil, fmt.Errorf("source provider: decode response: %w", err)
	}

	records := make([]domain.LeadPoolRecord, 0, len(results))
	for _, r := range results {
		records = append(records, domain.LeadPoolRecord{
			Email:             r.Email,
			Phone:             r.Phone,
			LinkedInURL:       r.LinkedInURL,
			FirstName:         r.FirstName,
			LastName:          r.LastName,
			Title:             r.Title,
			ProviderExternalID: r.ExternalID,
			Firmographics: domain.Firmographics{
				CompanyName:   r.CompanyName,
				CompanyDomain: r.CompanyDomain,
				SizeBand:      r.SizeBand,
				Industry:      r.Industry,
				TechSignals:   r.TechSignals,
			},
		})
	}
	return records, nil
}
