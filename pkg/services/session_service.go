package services

import (
	"context"
	"time"

	"github.com/bussola-ai/bussola/pkg/cache"
	"github.com/bussola-ai/bussola/pkg/enrichment"
	"github.com/bussola-ai/bussola/pkg/models"
)

// SessionView is the externally visible shape of an enrichment
// session: canonical field names only.
type SessionView struct {
	SessionID    string                              `json:"session_id"`
	Domain       string                              `json:"domain"`
	Status       models.SessionStatus                `json:"status"`
	Fields       map[string]any                      `json:"fields"`
	Confidences  map[string]int                      `json:"confidences"`
	Attribution  map[string]models.SourceAttribution `json:"source_attribution"`
	SourceErrors map[string]models.SourceAttribution `json:"source_errors,omitempty"`
	TotalCost    float64                             `json:"total_cost_usd"`
	ExpiresAt    string                              `json:"expires_at"`
}

// SessionService reads enrichment sessions for the HTTP surface.
type SessionService struct {
	cache *cache.EnrichmentCache
}

// NewSessionService wires the service.
func NewSessionService(sessionCache *cache.EnrichmentCache) *SessionService {
	return &SessionService{cache: sessionCache}
}

// Get returns the translated session view, or ErrNotFound when the
// session is absent or expired.
func (s *SessionService) Get(ctx context.Context, sessionID string) (*SessionView, error) {
	session, err := s.cache.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrNotFound
	}
	return viewOf(session), nil
}

// viewOf applies the field translator on the read path. Session fields
// are canonical by construction; translating again guards against
// legacy rows written before a vocabulary change.
func viewOf(session *models.EnrichmentSession) *SessionView {
	confidences := make(map[string]int, len(session.Confidences))
	for field, c := range session.Confidences {
		confidences[enrichment.CanonicalKey(field)] = c
	}
	attribution := make(map[string]models.SourceAttribution, len(session.Attribution))
	for field, a := range session.Attribution {
		attribution[enrichment.CanonicalKey(field)] = a
	}
	return &SessionView{
		SessionID:    session.ID,
		Domain:       session.Domain,
		Status:       session.Status,
		Fields:       enrichment.Translate(session.Fields),
		Confidences:  confidences,
		Attribution:  attribution,
		SourceErrors: session.SourceErrors,
		TotalCost:    session.TotalCost,
		ExpiresAt:    session.ExpiresAt.UTC().Format(time.RFC3339),
	}
}
