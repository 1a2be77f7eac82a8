package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/bussola-ai/bussola/pkg/breaker"
)

// PeopleAPISource queries a people/domain intelligence API for firmographic
// data: employee count, founding year, email patterns. Requires an API key.
type PeopleAPISource struct {
	client  *http.Client
	baseURL string
	apiKey  string
	brk     *breaker.Breaker
	timeout time.Duration
}

// NewPeopleAPISource creates the people/domain adapter.
func NewPeopleAPISource(breakers *breaker.Registry, client *http.Client, baseURL, apiKey string) *PeopleAPISource {
	if client == nil {
		client = defaultHTTPClient()
	}
	if baseURL == "" {
		baseURL = "https://api.hunter.io/v2"
	}
	return &PeopleAPISource{
		client:  client,
		baseURL: baseURL,
		apiKey:  apiKey,
		timeout: 5 * time.Second,
		brk:     breakers.GetOrCreate(NamePeopleAPI, breaker.ProfileExpensive, nil),
	}
}

func (s *PeopleAPISource) Name() string              { return NamePeopleAPI }
func (s *PeopleAPISource) Layer() int                { return 2 }
func (s *PeopleAPISource) Confidence() int           { return 75 }
func (s *PeopleAPISource) CostEstimate() float64     { return 0.01 }
func (s *PeopleAPISource) Timeout() time.Duration    { return s.timeout }
func (s *PeopleAPISource) Breaker() *breaker.Breaker { return s.brk }

// Enrich runs a domain search.
func (s *PeopleAPISource) Enrich(ctx context.Context, domain string, _ Hints) (*SourceResult, error) {
	start := time.Now()

	u := fmt.Sprintf("%s/domain-search?domain=%s&api_key=%s",
		s.baseURL, url.QueryEscape(domain), url.QueryEscape(s.apiKey))
	body, kind, err := getJSON(ctx, s.client, u, nil)
	if err != nil {
		return Failed(kind, err.Error(), s.CostEstimate(), time.Since(start)), nil
	}

	payload, ok := body["data"].(map[string]any)
	if !ok {
		return Failed(ErrParse, "missing data envelope", s.CostEstimate(), time.Since(start)), nil
	}

	data := make(map[string]any)
	if v, ok := payload["organization"].(string); ok && v != "" {
		data["company_name"] = v
	}
	if v, ok := payload["headcount"].(string); ok && v != "" {
		data["employee_count"] = v
	}
	if v, ok := payload["company_founded"].(float64); ok && v > 1800 {
		data["founded_year"] = int(v)
	}
	if v, ok := payload["pattern"].(string); ok && v != "" {
		data["email_pattern"] = v
	}
	if v, ok := payload["description"].(string); ok && v != "" {
		data["description"] = v
	}
	if len(data) == 0 {
		return Failed(ErrNotFound, fmt.Sprintf("no domain intelligence for %s", domain), s.CostEstimate(), time.Since(start)), nil
	}

	return &SourceResult{
		Success:  true,
		Data:     data,
		CostUSD:  s.CostEstimate(),
		Duration: time.Since(start),
	}, nil
}
