package enrichment

import (
	"fmt"
	"strings"
	"time"

	"github.com/bussola-ai/bussola/pkg/enrichment/sources"
	"github.com/bussola-ai/bussola/pkg/models"
)

const (
	editPenaltyStep = 5
	agreementBonus  = 5
)

// PenaltyFunc reports how many user edits have been observed for a
// canonical field across the edit ledger. Zero when unknown.
type PenaltyFunc func(field string) int

// Merger folds adapter results into a session under the merge rules:
// user-supplied values always win, then higher confidence, then the
// earlier layer, then first received. Losing candidates are kept in the
// session's discard history.
type Merger struct {
	penalties PenaltyFunc
	now       func() time.Time
}

// NewMerger builds a merger. penalties may be nil.
func NewMerger(penalties PenaltyFunc) *Merger {
	if penalties == nil {
		penalties = func(string) int { return 0 }
	}
	return &Merger{penalties: penalties, now: time.Now}
}

// Merge applies one successful adapter result to the session. Keys are
// translated to canonical form before any comparison.
func (m *Merger) Merge(session *models.EnrichmentSession, sourceName string, layer int, prior int, res *sources.SourceResult) {
	if res == nil || !res.Success {
		return
	}
	extractedAt := m.now().UTC().Format(time.RFC3339)

	for rawKey, value := range res.Data {
		field := CanonicalKey(rawKey)
		confidence := clampConfidence(prior - editPenaltyStep*m.penalties(field))

		if session.UserEdited[field] {
			m.discard(session, field, sourceName, layer, value, confidence, "user_edited")
			continue
		}

		existing, present := session.Fields[field]
		if !present {
			m.accept(session, field, sourceName, layer, value, confidence, prior, res.CostUSD, extractedAt)
			continue
		}

		if sameNormalized(existing, value) {
			// Independent agreement is worth one bonus over the strongest
			// declared prior, however many sources agree.
			attr := session.Attribution[field]
			attr.Prior = maxInt(attr.Prior, prior)
			session.Attribution[field] = attr
			session.Confidences[field] = clampConfidence(attr.Prior + agreementBonus)
			m.discard(session, field, sourceName, layer, value, confidence, "agreement")
			continue
		}

		current := session.Confidences[field]
		currentLayer := session.Attribution[field].Layer
		switch {
		case confidence > current:
			m.discard(session, field, session.Attribution[field].Source, currentLayer, existing, current, "outranked")
			m.accept(session, field, sourceName, layer, value, confidence, prior, res.CostUSD, extractedAt)
		case confidence == current && layer < currentLayer:
			m.discard(session, field, session.Attribution[field].Source, currentLayer, existing, current, "later_layer")
			m.accept(session, field, sourceName, layer, value, confidence, prior, res.CostUSD, extractedAt)
		default:
			m.discard(session, field, sourceName, layer, value, confidence, "lower_confidence")
		}
	}
}

func (m *Merger) accept(session *models.EnrichmentSession, field, source string, layer int, value any, confidence, prior int, cost float64, extractedAt string) {
	session.Fields[field] = value
	session.Confidences[field] = confidence
	session.Attribution[field] = models.SourceAttribution{
		Source:      source,
		Layer:       layer,
		RawValue:    value,
		Normalized:  value,
		Prior:       prior,
		CostUSD:     cost,
		ExtractedAt: extractedAt,
		Success:     true,
	}
}

func (m *Merger) discard(session *models.EnrichmentSession, field, source string, layer int, value any, confidence int, reason string) {
	session.Discarded = append(session.Discarded, models.DiscardedValue{
		Field:      field,
		Source:     source,
		Layer:      layer,
		Value:      value,
		Confidence: confidence,
		Reason:     reason,
	})
}

// sameNormalized compares two values after case and whitespace folding.
func sameNormalized(a, b any) bool {
	return foldValue(a) == foldValue(b)
}

func foldValue(v any) string {
	return strings.ToLower(strings.TrimSpace(fmt.Sprint(v)))
}

func clampConfidence(c int) int {
	if c < 0 {
		return 0
	}
	if c > 100 {
		return 100
	}
	return c
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
