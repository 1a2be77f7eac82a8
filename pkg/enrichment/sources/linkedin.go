package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/bussola-ai/bussola/pkg/breaker"
)

// LinkedInSource resolves the company's LinkedIn profile through a
// third-party scraping API. Optional: most runs work without it, so it is
// only registered when a key is configured.
type LinkedInSource struct {
	client  *http.Client
	baseURL string
	apiKey  string
	brk     *breaker.Breaker
	timeout time.Duration
}

// NewLinkedInSource creates the LinkedIn-profile adapter.
func NewLinkedInSource(breakers *breaker.Registry, client *http.Client, baseURL, apiKey string) *LinkedInSource {
	if client == nil {
		client = defaultHTTPClient()
	}
	if baseURL == "" {
		baseURL = "https://api.proxycurl.com/api/linkedin/company"
	}
	return &LinkedInSource{
		client:  client,
		baseURL: baseURL,
		apiKey:  apiKey,
		timeout: 5 * time.Second,
		brk:     breakers.GetOrCreate(NameLinkedIn, breaker.ProfileExpensive, nil),
	}
}

func (s *LinkedInSource) Name() string              { return NameLinkedIn }
func (s *LinkedInSource) Layer() int                { return 2 }
func (s *LinkedInSource) Confidence() int           { return 75 }
func (s *LinkedInSource) CostEstimate() float64     { return 0.05 }
func (s *LinkedInSource) Timeout() time.Duration    { return s.timeout }
func (s *LinkedInSource) Breaker() *breaker.Breaker { return s.brk }

// Enrich resolves the company profile by website domain.
func (s *LinkedInSource) Enrich(ctx context.Context, domain string, _ Hints) (*SourceResult, error) {
	start := time.Now()

	u := fmt.Sprintf("%s/resolve?domain=%s", s.baseURL, url.QueryEscape(domain))
	body, kind, err := getJSON(ctx, s.client, u, map[string]string{
		"Authorization": "Bearer " + s.apiKey,
	})
	if err != nil {
		return Failed(kind, err.Error(), s.CostEstimate(), time.Since(start)), nil
	}

	data := make(map[string]any)
	if v, ok := body["url"].(string); ok && v != "" {
		data["linkedin_url"] = v
	}
	if profile, ok := body["company"].(map[string]any); ok {
		if v, ok := profile["name"].(string); ok && v != "" {
			data["company_name"] = v
		}
		if v, ok := profile["company_size_on_linkedin"].(float64); ok && v > 0 {
			data["employee_count"] = int(v)
		}
		if v, ok := profile["description"].(string); ok && v != "" {
			data["description"] = v
		}
	}
	if len(data) == 0 {
		return Failed(ErrNotFound, fmt.Sprintf("no LinkedIn profile for %s", domain), s.CostEstimate(), time.Since(start)), nil
	}

	return &SourceResult{
		Success:  true,
		Data:     data,
		CostUSD:  s.CostEstimate(),
		Duration: time.Since(start),
	}, nil
}
