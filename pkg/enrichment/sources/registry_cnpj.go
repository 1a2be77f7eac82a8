package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/bussola-ai/bussola/pkg/breaker"
)

// RegistrySource queries a Brazilian corporate-registry (CNPJ) API by
// company name and returns the legal name, registration region and
// founding year. Requires an API key; absence disables the source.
type RegistrySource struct {
	client  *http.Client
	baseURL string
	apiKey  string
	brk     *breaker.Breaker
	timeout time.Duration
}

// NewRegistrySource creates the corporate-registry adapter.
func NewRegistrySource(breakers *breaker.Registry, client *http.Client, baseURL, apiKey string) *RegistrySource {
	if client == nil {
		client = defaultHTTPClient()
	}
	if baseURL == "" {
		baseURL = "https://api.cnpja.com"
	}
	return &RegistrySource{
		client:  client,
		baseURL: baseURL,
		apiKey:  apiKey,
		timeout: 5 * time.Second,
		brk:     breakers.GetOrCreate(NameRegistry, breaker.ProfileExpensive, nil),
	}
}

func (s *RegistrySource) Name() string              { return NameRegistry }
func (s *RegistrySource) Layer() int                { return 2 }
func (s *RegistrySource) Confidence() int           { return 90 }
func (s *RegistrySource) CostEstimate() float64     { return 0.012 }
func (s *RegistrySource) Timeout() time.Duration    { return s.timeout }
func (s *RegistrySource) Breaker() *breaker.Breaker { return s.brk }

// Enrich searches the registry by the company name hint, falling back to
// the bare domain label when no hint is available yet.
func (s *RegistrySource) Enrich(ctx context.Context, domain string, hints Hints) (*SourceResult, error) {
	start := time.Now()

	query := hints["company_name"]
	if query == "" {
		query = domainLabel(domain)
	}

	u := fmt.Sprintf("%s/office?names.in=%s&limit=1", s.baseURL, url.QueryEscape(query))
	body, kind, err := getJSON(ctx, s.client, u, map[string]string{"Authorization": s.apiKey})
	if err != nil {
		return Failed(kind, err.Error(), s.CostEstimate(), time.Since(start)), nil
	}

	records, _ := body["records"].([]any)
	if len(records) == 0 {
		return Failed(ErrNotFound, fmt.Sprintf("no registry match for %q", query), s.CostEstimate(), time.Since(start)), nil
	}
	record, ok := records[0].(map[string]any)
	if !ok {
		return Failed(ErrParse, "unexpected registry record shape", s.CostEstimate(), time.Since(start)), nil
	}

	data := make(map[string]any)
	if company, ok := record["company"].(map[string]any); ok {
		if v, ok := company["name"].(string); ok && v != "" {
			data["legal_name"] = v
		}
	}
	if addr, ok := record["address"].(map[string]any); ok {
		if v, ok := addr["state"].(string); ok && v != "" {
			data["region"] = v
		}
		data["country"] = "BR"
	}
	if founded, ok := record["founded"].(string); ok && len(founded) >= 4 {
		var year int
		if _, err := fmt.Sscanf(founded[:4], "%d", &year); err == nil && year > 1800 {
			data["founded_year"] = year
		}
	}
	if len(data) == 0 {
		return Failed(ErrParse, "registry record had no usable fields", s.CostEstimate(), time.Since(start)), nil
	}

	return &SourceResult{
		Success:  true,
		Data:     data,
		CostUSD:  s.CostEstimate(),
		Duration: time.Since(start),
	}, nil
}

// domainLabel returns the registrable label of a domain ("acme" from
// "acme.com.br") as a crude search term.
func domainLabel(domain string) string {
	for i := 0; i < len(domain); i++ {
		if domain[i] == '.' {
			return domain[:i]
		}
	}
	return domain
}
