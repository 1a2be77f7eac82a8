// Package sources contains the enrichment source adapters. Each adapter
// wraps one external data provider behind a uniform contract: a timeout,
// a cost estimate, a circuit breaker, and an Enrich call that never
// panics and never throws — failures come back inside the SourceResult.
package sources

import (
	"context"
	"time"

	"github.com/bussola-ai/bussola/pkg/breaker"
)

// ErrorKind classifies adapter failures. not_found is deliberately benign:
// it does not count toward breaker accounting.
type ErrorKind string

const (
	ErrTimeout     ErrorKind = "timeout"
	ErrRateLimited ErrorKind = "rate_limited"
	ErrAuth        ErrorKind = "auth"
	ErrNotFound    ErrorKind = "not_found"
	ErrParse       ErrorKind = "parse"
	ErrNetwork     ErrorKind = "network"
	ErrUpstream5xx ErrorKind = "upstream_5xx"
	ErrBreakerOpen ErrorKind = "breaker_open"
)

// Source names. These appear in attribution records and logs.
const (
	NameMetadata  = "metadata"
	NameGeoIP     = "geoip"
	NameRegistry  = "registry"
	NameLinkedIn  = "linkedin"
	NamePlaces    = "places"
	NamePeopleAPI = "people_api"
	NameLLM       = "llm"
)

// SourceResult is the outcome of one adapter call. Data holds source-native
// keys; normalization to the canonical vocabulary happens in the
// orchestrator via the field translator.
type SourceResult struct {
	Success   bool
	Data      map[string]any
	CostUSD   float64
	Duration  time.Duration
	ErrorKind ErrorKind
	ErrorMsg  string
}

// Failed builds a failure result for the given kind.
func Failed(kind ErrorKind, msg string, cost float64, dur time.Duration) *SourceResult {
	return &SourceResult{
		Success:   false,
		Data:      map[string]any{},
		CostUSD:   cost,
		Duration:  dur,
		ErrorKind: kind,
		ErrorMsg:  msg,
	}
}

// Hints carries already-known facts into an adapter call, e.g. the company
// name once an earlier layer discovered it.
type Hints map[string]string

// Source is the uniform contract for one external data provider.
type Source interface {
	// Name returns the stable identifier used in attribution.
	Name() string

	// Layer returns which enrichment layer (1..3) this source runs in.
	Layer() int

	// Confidence returns the source's prior confidence in [0,100].
	Confidence() int

	// CostEstimate returns the expected cost of one call in USD.
	CostEstimate() float64

	// Timeout returns the per-call timeout, bounded by the layer budget.
	Timeout() time.Duration

	// Breaker returns the circuit breaker guarding this source.
	Breaker() *breaker.Breaker

	// Enrich fetches data for the domain. Implementations return a
	// SourceResult even on failure; an error return is reserved for
	// breaker accounting and context cancellation.
	Enrich(ctx context.Context, domain string, hints Hints) (*SourceResult, error)
}

// IsBreakerFailure decides whether a result counts against the breaker.
// not_found means the provider answered correctly about an unknown
// domain; it must not trip the breaker.
func IsBreakerFailure(res *SourceResult) bool {
	if res == nil {
		return true
	}
	if res.Success {
		return false
	}
	return res.ErrorKind != ErrNotFound
}
