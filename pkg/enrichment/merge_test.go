package enrichment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bussola-ai/bussola/pkg/enrichment/sources"
	"github.com/bussola-ai/bussola/pkg/models"
)

func newTestSession() *models.EnrichmentSession {
	return models.NewEnrichmentSession(
		"sess-1", SessionCacheKey("example.com"), "example.com",
		"https://example.com", "user@example.com", time.Now().UTC(), models.DefaultSessionTTL)
}

func okResult(data map[string]any) *sources.SourceResult {
	return &sources.SourceResult{Success: true, Data: data, CostUSD: 0.001}
}

func TestMerge_AcceptsAbsentField(t *testing.T) {
	session := newTestSession()
	m := NewMerger(nil)

	m.Merge(session, "metadata", 1, 70, okResult(map[string]any{"page_title": "Acme"}))

	assert.Equal(t, "Acme", session.Fields["pageTitle"])
	assert.Equal(t, 70, session.Confidences["pageTitle"])
	attr := session.Attribution["pageTitle"]
	assert.Equal(t, "metadata", attr.Source)
	assert.Equal(t, 1, attr.Layer)
	assert.True(t, attr.Success)
}

func TestMerge_HigherConfidenceWins(t *testing.T) {
	session := newTestSession()
	m := NewMerger(nil)

	m.Merge(session, "metadata", 1, 70, okResult(map[string]any{"company_name": "Acme"}))
	m.Merge(session, "registry", 2, 90, okResult(map[string]any{"company_name": "Acme Comercio Ltda"}))

	assert.Equal(t, "Acme Comercio Ltda", session.Fields["name"])
	assert.Equal(t, 90, session.Confidences["name"])
	assert.Equal(t, "registry", session.Attribution["name"].Source)

	require.Len(t, session.Discarded, 1)
	assert.Equal(t, "outranked", session.Discarded[0].Reason)
	assert.Equal(t, "metadata", session.Discarded[0].Source)
	assert.Equal(t, "Acme", session.Discarded[0].Value)
}

func TestMerge_LowerConfidenceDiscarded(t *testing.T) {
	session := newTestSession()
	m := NewMerger(nil)

	m.Merge(session, "registry", 2, 90, okResult(map[string]any{"company_name": "Acme Ltda"}))
	m.Merge(session, "llm", 3, 65, okResult(map[string]any{"company_name": "Acme Corporation"}))

	assert.Equal(t, "Acme Ltda", session.Fields["name"])
	require.Len(t, session.Discarded, 1)
	assert.Equal(t, "lower_confidence", session.Discarded[0].Reason)
	assert.Equal(t, "llm", session.Discarded[0].Source)
}

func TestMerge_EqualConfidenceEarlierLayerWins(t *testing.T) {
	session := newTestSession()
	m := NewMerger(nil)

	m.Merge(session, "places", 2, 80, okResult(map[string]any{"city": "Campinas"}))
	m.Merge(session, "metadata", 1, 80, okResult(map[string]any{"city": "Sorocaba"}))

	assert.Equal(t, "Sorocaba", session.Fields["city"])
	assert.Equal(t, 1, session.Attribution["city"].Layer)
	require.Len(t, session.Discarded, 1)
	assert.Equal(t, "later_layer", session.Discarded[0].Reason)
}

func TestMerge_EqualConfidenceLaterLayerLoses(t *testing.T) {
	session := newTestSession()
	m := NewMerger(nil)

	m.Merge(session, "metadata", 1, 80, okResult(map[string]any{"city": "Sorocaba"}))
	m.Merge(session, "places", 2, 80, okResult(map[string]any{"city": "Campinas"}))

	assert.Equal(t, "Sorocaba", session.Fields["city"])
	require.Len(t, session.Discarded, 1)
	assert.Equal(t, "lower_confidence", session.Discarded[0].Reason)
}

func TestMerge_AgreementBoostsConfidence(t *testing.T) {
	session := newTestSession()
	m := NewMerger(nil)

	m.Merge(session, "metadata", 1, 70, okResult(map[string]any{"company_name": "Acme Ltda"}))
	m.Merge(session, "registry", 2, 90, okResult(map[string]any{"company_name": "  acme ltda "}))

	// Value stays from the first source; confidence takes the higher
	// prior plus the agreement bonus.
	assert.Equal(t, "Acme Ltda", session.Fields["name"])
	assert.Equal(t, 95, session.Confidences["name"])
	assert.Equal(t, "metadata", session.Attribution["name"].Source)
	require.Len(t, session.Discarded, 1)
	assert.Equal(t, "agreement", session.Discarded[0].Reason)
}

func TestMerge_AgreementBonusDoesNotStack(t *testing.T) {
	session := newTestSession()
	m := NewMerger(nil)

	m.Merge(session, "metadata", 1, 70, okResult(map[string]any{"company_name": "Acme"}))
	m.Merge(session, "registry", 2, 90, okResult(map[string]any{"company_name": "acme"}))
	m.Merge(session, "places", 2, 60, okResult(map[string]any{"company_name": "ACME"}))

	// One bonus over the strongest declared prior, however many sources
	// agree. Order of agreement is irrelevant.
	assert.Equal(t, 95, session.Confidences["name"])
	assert.Equal(t, 90, session.Attribution["name"].Prior)
	assert.Len(t, session.Discarded, 2)
}

func TestMerge_AgreementClampsAt100(t *testing.T) {
	session := newTestSession()
	m := NewMerger(nil)

	m.Merge(session, "registry", 2, 98, okResult(map[string]any{"company_name": "Acme"}))
	m.Merge(session, "places", 2, 80, okResult(map[string]any{"company_name": "acme"}))

	assert.Equal(t, 100, session.Confidences["name"])
}

func TestMerge_UserEditedFieldNeverOverwritten(t *testing.T) {
	session := newTestSession()
	session.Fields["name"] = "Nome Corrigido"
	session.Confidences["name"] = 100
	session.UserEdited["name"] = true
	m := NewMerger(nil)

	m.Merge(session, "registry", 2, 90, okResult(map[string]any{"company_name": "Acme Ltda"}))

	assert.Equal(t, "Nome Corrigido", session.Fields["name"])
	assert.Equal(t, 100, session.Confidences["name"])
	require.Len(t, session.Discarded, 1)
	assert.Equal(t, "user_edited", session.Discarded[0].Reason)
}

func TestMerge_EditPenaltyLowersConfidence(t *testing.T) {
	penalties := func(field string) int {
		if field == "industry" {
			return 3
		}
		return 0
	}
	session := newTestSession()
	m := NewMerger(penalties)

	m.Merge(session, "llm", 3, 80, okResult(map[string]any{"ai_industry": "varejo"}))

	assert.Equal(t, 65, session.Confidences["industry"])
}

func TestMerge_PenaltyClampsAtZero(t *testing.T) {
	session := newTestSession()
	m := NewMerger(func(string) int { return 30 })

	m.Merge(session, "metadata", 1, 70, okResult(map[string]any{"page_title": "Acme"}))

	assert.Equal(t, 0, session.Confidences["pageTitle"])
}

func TestMerge_IgnoresFailedResult(t *testing.T) {
	session := newTestSession()
	m := NewMerger(nil)

	m.Merge(session, "registry", 2, 90, sources.Failed(sources.ErrNotFound, "no such company", 0, 0))
	m.Merge(session, "registry", 2, 90, nil)

	assert.Empty(t, session.Fields)
	assert.Empty(t, session.Discarded)
}
