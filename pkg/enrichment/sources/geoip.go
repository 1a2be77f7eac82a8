package sources

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/bussola-ai/bussola/pkg/breaker"
)

// GeoIPSource resolves the domain's A record and probes an IP-geolocation
// service for country, region and timezone. Free tier, no API key.
type GeoIPSource struct {
	client  *http.Client
	baseURL string
	brk     *breaker.Breaker
	timeout time.Duration

	// resolve is swappable in tests; defaults to net.DefaultResolver.
	resolve func(ctx context.Context, host string) ([]string, error)
}

// NewGeoIPSource creates the IP-geolocation adapter. baseURL defaults to
// the public ip-api.com endpoint when empty.
func NewGeoIPSource(breakers *breaker.Registry, client *http.Client, baseURL string) *GeoIPSource {
	if client == nil {
		client = defaultHTTPClient()
	}
	if baseURL == "" {
		baseURL = "http://ip-api.com/json"
	}
	return &GeoIPSource{
		client:  client,
		baseURL: baseURL,
		timeout: 1800 * time.Millisecond,
		brk:     breakers.GetOrCreate(NameGeoIP, breaker.ProfileDefault, nil),
		resolve: func(ctx context.Context, host string) ([]string, error) {
			return net.DefaultResolver.LookupHost(ctx, host)
		},
	}
}

func (s *GeoIPSource) Name() string              { return NameGeoIP }
func (s *GeoIPSource) Layer() int                { return 1 }
func (s *GeoIPSource) Confidence() int           { return 60 }
func (s *GeoIPSource) CostEstimate() float64     { return 0 }
func (s *GeoIPSource) Timeout() time.Duration    { return s.timeout }
func (s *GeoIPSource) Breaker() *breaker.Breaker { return s.brk }

// Enrich resolves the domain and geolocates its first address.
func (s *GeoIPSource) Enrich(ctx context.Context, domain string, _ Hints) (*SourceResult, error) {
	start := time.Now()

	addrs, err := s.resolve(ctx, domain)
	if err != nil || len(addrs) == 0 {
		return Failed(ErrNotFound, fmt.Sprintf("no A record for %s", domain), 0, time.Since(start)), nil
	}

	u := fmt.Sprintf("%s/%s?fields=status,country,countryCode,regionName,city,timezone",
		s.baseURL, url.PathEscape(addrs[0]))
	body, kind, err := getJSON(ctx, s.client, u, nil)
	if err != nil {
		return Failed(kind, err.Error(), 0, time.Since(start)), nil
	}
	if status, _ := body["status"].(string); status == "fail" {
		return Failed(ErrNotFound, "geolocation lookup failed", 0, time.Since(start)), nil
	}

	data := make(map[string]any)
	if v, ok := body["countryCode"].(string); ok && v != "" {
		data["country"] = v
	}
	if v, ok := body["regionName"].(string); ok && v != "" {
		data["region"] = v
	}
	if v, ok := body["city"].(string); ok && v != "" {
		data["city"] = v
	}
	if v, ok := body["timezone"].(string); ok && v != "" {
		data["timezone"] = v
	}
	if len(data) == 0 {
		return Failed(ErrParse, "empty geolocation response", 0, time.Since(start)), nil
	}

	return &SourceResult{Success: true, Data: data, Duration: time.Since(start)}, nil
}
