// Package session hydrates cached enrichment sessions for the analysis
// pipeline and maintains the user-edit ledger that feeds confidence
// scoring.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bussola-ai/bussola/pkg/cache"
	"github.com/bussola-ai/bussola/pkg/enrichment"
	"github.com/bussola-ai/bussola/pkg/models"
)

// EditLedger is the durable user-edit log. Implemented by
// database.EditStore.
type EditLedger interface {
	Append(ctx context.Context, edit *models.FieldEdit) error
	CountsByField(ctx context.Context) (map[string]int, error)
}

// Loader resolves a submission's enrichment context. An expired or
// absent session degrades to empty; the pipeline then runs on the form
// data alone.
type Loader struct {
	cache  *cache.EnrichmentCache
	ledger EditLedger
}

// NewLoader wires the loader.
func NewLoader(sessionCache *cache.EnrichmentCache, ledger EditLedger) *Loader {
	return &Loader{cache: sessionCache, ledger: ledger}
}

// Load returns the session's canonical field map overlaid with the
// user's form values. User values win unconditionally; every override
// of a differing cached value is appended to the edit ledger.
// A missing or expired session yields the form fields alone.
func (l *Loader) Load(ctx context.Context, sessionID string, formFields map[string]string) (map[string]any, *models.EnrichmentSession) {
	merged := make(map[string]any, len(formFields))

	var session *models.EnrichmentSession
	if sessionID != "" {
		var err error
		session, err = l.cache.GetByID(ctx, sessionID)
		if err != nil {
			slog.Warn("Session load failed, proceeding without enrichment",
				"session_id", sessionID, "error", err)
		}
	}

	if session != nil {
		for field, value := range enrichment.Translate(session.Fields) {
			merged[field] = value
		}
	}

	for field, userValue := range formFields {
		if userValue == "" {
			continue
		}
		canonical := enrichment.CanonicalKey(field)
		if session != nil {
			if cached, ok := merged[canonical]; ok && !sameValue(cached, userValue) {
				l.record(ctx, session.ID, canonical, cached, userValue)
			}
		}
		merged[canonical] = userValue
	}

	return merged, session
}

// Penalties builds the confidence-penalty lookup from the ledger. A
// ledger failure degrades to zero penalties.
func (l *Loader) Penalties(ctx context.Context) enrichment.PenaltyFunc {
	counts, err := l.ledger.CountsByField(ctx)
	if err != nil {
		slog.Warn("Edit ledger unavailable, scoring without penalties", "error", err)
		return func(string) int { return 0 }
	}
	return func(field string) int { return counts[field] }
}

// CachedPenalties returns a PenaltyFunc that refreshes its counts from
// the ledger at most once per interval, so long-lived callers see new
// edits without a query per field.
func (l *Loader) CachedPenalties(interval time.Duration) enrichment.PenaltyFunc {
	var mu sync.Mutex
	var cached enrichment.PenaltyFunc
	var fetched time.Time

	return func(field string) int {
		mu.Lock()
		if cached == nil || time.Since(fetched) > interval {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			cached = l.Penalties(ctx)
			cancel()
			fetched = time.Now()
		}
		f := cached
		mu.Unlock()
		return f(field)
	}
}

func (l *Loader) record(ctx context.Context, sessionID, field string, sourceValue any, userValue string) {
	err := l.ledger.Append(ctx, &models.FieldEdit{
		SessionID:   sessionID,
		FieldName:   field,
		SourceValue: fmt.Sprint(sourceValue),
		UserValue:   userValue,
	})
	if err != nil {
		slog.Warn("Failed to record field edit",
			"session_id", sessionID, "field", field, "error", err)
	}
}

func sameValue(a any, b string) bool {
	return strings.EqualFold(strings.TrimSpace(fmt.Sprint(a)), strings.TrimSpace(b))
}
