package models

import (
	"time"
)

// SessionStatus is the lifecycle of an enrichment session.
type SessionStatus string

const (
	SessionPending  SessionStatus = "pending"
	SessionActive   SessionStatus = "active"
	SessionComplete SessionStatus = "complete"
	SessionAborted  SessionStatus = "aborted"
)

// DefaultSessionTTL is how long a cached enrichment session stays valid.
const DefaultSessionTTL = 30 * 24 * time.Hour

// SourceAttribution records the provenance of one enriched field.
// Prior is the source's declared confidence before penalties, kept so
// agreement boosts stay anchored to declared priors.
type SourceAttribution struct {
	Source      string  `json:"source"`
	Layer       int     `json:"layer"`
	RawValue    any     `json:"raw_value,omitempty"`
	Normalized  any     `json:"normalized_value,omitempty"`
	Prior       int     `json:"prior,omitempty"`
	CostUSD     float64 `json:"cost_usd"`
	ExtractedAt string  `json:"extracted_at"` // RFC3339
	Success     bool    `json:"success"`
	ErrorKind   string  `json:"error_kind,omitempty"`
}

// DiscardedValue is a losing merge candidate kept for audit.
type DiscardedValue struct {
	Field      string `json:"field"`
	Source     string `json:"source"`
	Layer      int    `json:"layer"`
	Value      any    `json:"value"`
	Confidence int    `json:"confidence"`
	Reason     string `json:"reason"`
}

// EnrichmentSession is one pass through the enrichment engine for a
// (domain, requester email) pair. Fields hold canonical keys only; the
// translator is applied before any value lands here.
type EnrichmentSession struct {
	ID           string                       `json:"session_id"`
	CacheKey     string                       `json:"cache_key"`
	Domain       string                       `json:"domain"`
	WebsiteURL   string                       `json:"website_url"`
	UserEmail    string                       `json:"user_email"`
	Status       SessionStatus                `json:"status"`
	Fields       map[string]any               `json:"fields"`
	Confidences  map[string]int               `json:"confidences"`
	Attribution  map[string]SourceAttribution `json:"source_attribution"`
	SourceErrors map[string]SourceAttribution `json:"source_errors,omitempty"`
	Discarded    []DiscardedValue             `json:"discarded,omitempty"`
	UserEdited   map[string]bool              `json:"user_edited,omitempty"`
	TotalCost    float64                      `json:"total_cost_usd"`
	StartedAt    time.Time                    `json:"started_at"`
	EndedAt      *time.Time                   `json:"ended_at,omitempty"`
	ExpiresAt    time.Time                    `json:"expires_at"`
	CreatedAt    time.Time                    `json:"created_at"`
}

// NewEnrichmentSession creates a fresh session for a run.
func NewEnrichmentSession(id, cacheKey, domain, websiteURL, email string, now time.Time, ttl time.Duration) *EnrichmentSession {
	return &EnrichmentSession{
		ID:          id,
		CacheKey:    cacheKey,
		Domain:      domain,
		WebsiteURL:  websiteURL,
		UserEmail:   email,
		Status:      SessionPending,
		Fields:      make(map[string]any),
		Confidences: make(map[string]int),
		Attribution: make(map[string]SourceAttribution),
		UserEdited:  make(map[string]bool),
		StartedAt:   now,
		ExpiresAt:   now.Add(ttl),
		CreatedAt:   now,
	}
}

// Expired reports whether the session is past its TTL.
func (s *EnrichmentSession) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Clone returns a deep copy. The enrichment engine keeps mutating a
// session between layer boundaries, so anything handed across task
// boundaries must be a private copy.
func (s *EnrichmentSession) Clone() *EnrichmentSession {
	out := *s
	out.Fields = make(map[string]any, len(s.Fields))
	for k, v := range s.Fields {
		out.Fields[k] = v
	}
	out.Confidences = make(map[string]int, len(s.Confidences))
	for k, v := range s.Confidences {
		out.Confidences[k] = v
	}
	out.Attribution = make(map[string]SourceAttribution, len(s.Attribution))
	for k, v := range s.Attribution {
		out.Attribution[k] = v
	}
	if s.SourceErrors != nil {
		out.SourceErrors = make(map[string]SourceAttribution, len(s.SourceErrors))
		for k, v := range s.SourceErrors {
			out.SourceErrors[k] = v
		}
	}
	out.UserEdited = make(map[string]bool, len(s.UserEdited))
	for k, v := range s.UserEdited {
		out.UserEdited[k] = v
	}
	out.Discarded = append([]DiscardedValue(nil), s.Discarded...)
	if s.EndedAt != nil {
		ended := *s.EndedAt
		out.EndedAt = &ended
	}
	return &out
}

// FieldEdit is one row of the user-edit ledger: the user replaced a
// source-provided value on the submission form.
type FieldEdit struct {
	ID          int64     `db:"id" json:"id"`
	SessionID   string    `db:"session_id" json:"session_id"`
	FieldName   string    `db:"field_name" json:"field_name"`
	SourceValue string    `db:"source_value" json:"source_value"`
	UserValue   string    `db:"user_value" json:"user_value"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
