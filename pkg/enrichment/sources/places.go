package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/bussola-ai/bussola/pkg/breaker"
)

// PlacesSource looks up the business in a places directory (address,
// rating, review count, phone). Requires an API key.
type PlacesSource struct {
	client  *http.Client
	baseURL string
	apiKey  string
	brk     *breaker.Breaker
	timeout time.Duration
}

// NewPlacesSource creates the places-directory adapter.
func NewPlacesSource(breakers *breaker.Registry, client *http.Client, baseURL, apiKey string) *PlacesSource {
	if client == nil {
		client = defaultHTTPClient()
	}
	if baseURL == "" {
		baseURL = "https://places.googleapis.com/v1"
	}
	return &PlacesSource{
		client:  client,
		baseURL: baseURL,
		apiKey:  apiKey,
		timeout: 5 * time.Second,
		brk:     breakers.GetOrCreate(NamePlaces, breaker.ProfileExpensive, nil),
	}
}

func (s *PlacesSource) Name() string              { return NamePlaces }
func (s *PlacesSource) Layer() int                { return 2 }
func (s *PlacesSource) Confidence() int           { return 80 }
func (s *PlacesSource) CostEstimate() float64     { return 0.017 }
func (s *PlacesSource) Timeout() time.Duration    { return s.timeout }
func (s *PlacesSource) Breaker() *breaker.Breaker { return s.brk }

// Enrich runs a text search for the company. The company-name hint (when
// an earlier layer found one) gives far better matches than the domain.
func (s *PlacesSource) Enrich(ctx context.Context, domain string, hints Hints) (*SourceResult, error) {
	start := time.Now()

	query := hints["company_name"]
	if query == "" {
		query = domainLabel(domain)
	}

	u := fmt.Sprintf("%s/places:searchText?textQuery=%s&key=%s",
		s.baseURL, url.QueryEscape(query), url.QueryEscape(s.apiKey))
	body, kind, err := getJSON(ctx, s.client, u, nil)
	if err != nil {
		return Failed(kind, err.Error(), s.CostEstimate(), time.Since(start)), nil
	}

	placesList, _ := body["places"].([]any)
	if len(placesList) == 0 {
		return Failed(ErrNotFound, fmt.Sprintf("no place match for %q", query), s.CostEstimate(), time.Since(start)), nil
	}
	place, ok := placesList[0].(map[string]any)
	if !ok {
		return Failed(ErrParse, "unexpected place shape", s.CostEstimate(), time.Since(start)), nil
	}

	data := make(map[string]any)
	if name, ok := place["displayName"].(map[string]any); ok {
		if v, ok := name["text"].(string); ok && v != "" {
			data["business_name"] = v
		}
	}
	if v, ok := place["formattedAddress"].(string); ok && v != "" {
		data["address"] = v
	}
	if v, ok := place["rating"].(float64); ok && v > 0 {
		data["rating"] = v
	}
	if v, ok := place["userRatingCount"].(float64); ok && v > 0 {
		data["reviews_count"] = int(v)
	}
	if v, ok := place["internationalPhoneNumber"].(string); ok && v != "" {
		data["phone"] = v
	}
	// Address components carry the administrative region and municipality.
	if comps, ok := place["addressComponents"].([]any); ok {
		for _, c := range comps {
			comp, ok := c.(map[string]any)
			if !ok {
				continue
			}
			types, _ := comp["types"].([]any)
			text, _ := comp["shortText"].(string)
			for _, t := range types {
				switch t {
				case "administrative_area_level_1":
					data["state"] = text
				case "administrative_area_level_2", "locality":
					data["city"] = text
				}
			}
		}
	}
	if len(data) == 0 {
		return Failed(ErrParse, "place record had no usable fields", s.CostEstimate(), time.Since(start)), nil
	}

	return &SourceResult{
		Success:  true,
		Data:     data,
		CostUSD:  s.CostEstimate(),
		Duration: time.Since(start),
	}, nil
}
