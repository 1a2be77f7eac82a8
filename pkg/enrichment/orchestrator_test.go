package enrichment

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bussola-ai/bussola/pkg/breaker"
	"github.com/bussola-ai/bussola/pkg/cache"
	"github.com/bussola-ai/bussola/pkg/enrichment/sources"
	"github.com/bussola-ai/bussola/pkg/events"
	"github.com/bussola-ai/bussola/pkg/models"
)

// memSessionStore is an in-memory cache.SessionStore.
type memSessionStore struct {
	mu    sync.Mutex
	byKey map[string]*models.EnrichmentSession
	byID  map[string]*models.EnrichmentSession
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{
		byKey: make(map[string]*models.EnrichmentSession),
		byID:  make(map[string]*models.EnrichmentSession),
	}
}

func (s *memSessionStore) GetByCacheKey(_ context.Context, cacheKey string) (*models.EnrichmentSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byKey[cacheKey], nil
}

func (s *memSessionStore) GetByID(_ context.Context, sessionID string) (*models.EnrichmentSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byID[sessionID], nil
}

func (s *memSessionStore) Upsert(_ context.Context, session *models.EnrichmentSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byKey[session.CacheKey] = session
	s.byID[session.ID] = session
	return nil
}

func (s *memSessionStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for key, session := range s.byKey {
		if session.Expired(now) {
			delete(s.byKey, key)
			delete(s.byID, session.ID)
			n++
		}
	}
	return n, nil
}

// recordingSink captures published events.
type recordingSink struct {
	mu      sync.Mutex
	started []string
	layers  []int
	errors  []string
}

func (r *recordingSink) EnrichmentStarted(_ context.Context, sessionID, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, sessionID)
	return nil
}

func (r *recordingSink) LayerComplete(_ context.Context, _ string, payload events.LayerCompletePayload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.layers = append(r.layers, payload.Layer)
	return nil
}

func (r *recordingSink) Error(_ context.Context, _, _, kind, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, kind)
	return nil
}

// fakeSource is a canned-response adapter.
type fakeSource struct {
	name  string
	layer int
	conf  int
	brk   *breaker.Breaker
	data  map[string]any
}

func (f *fakeSource) Name() string            { return f.name }
func (f *fakeSource) Layer() int              { return f.layer }
func (f *fakeSource) Confidence() int         { return f.conf }
func (f *fakeSource) CostEstimate() float64   { return 0.001 }
func (f *fakeSource) Timeout() time.Duration  { return 200 * time.Millisecond }
func (f *fakeSource) Breaker() *breaker.Breaker { return f.brk }

func (f *fakeSource) Enrich(context.Context, string, sources.Hints) (*sources.SourceResult, error) {
	return &sources.SourceResult{Success: true, Data: f.data, CostUSD: 0.001}, nil
}

func newTestOrchestrator(t *testing.T, srcs ...sources.Source) (*Orchestrator, *memSessionStore, *recordingSink) {
	t.Helper()
	registry := sources.NewRegistry()
	for _, src := range srcs {
		registry.Register(src)
	}
	store := newMemSessionStore()
	sink := &recordingSink{}
	o := NewOrchestrator(registry, cache.NewEnrichmentCache(store), sink, nil, time.Hour)
	return o, store, sink
}

func newFakeSource(t *testing.T, name string, layer, conf int, data map[string]any) *fakeSource {
	t.Helper()
	breakers := breaker.NewRegistry()
	return &fakeSource{
		name:  name,
		layer: layer,
		conf:  conf,
		brk:   breakers.GetOrCreate(name, breaker.ProfileDefault, nil),
		data:  data,
	}
}

func TestRun_FreshEnrichment(t *testing.T) {
	meta := newFakeSource(t, "metadata", 1, 70, map[string]any{"page_title": "Acme", "company_name": "Acme"})
	reg := newFakeSource(t, "registry", 2, 90, map[string]any{"legal_name": "Acme Ltda", "city": "Campinas"})
	o, store, sink := newTestOrchestrator(t, meta, reg)

	session, err := o.Run(context.Background(), "Example.com", "user@example.com")
	require.NoError(t, err)

	assert.Equal(t, models.SessionComplete, session.Status)
	assert.Equal(t, "example.com", session.Domain)
	assert.Equal(t, "Acme", session.Fields["name"])
	assert.Equal(t, "Acme Ltda", session.Fields["legalName"])
	assert.Equal(t, "Campinas", session.Fields["city"])
	assert.NotNil(t, session.EndedAt)
	assert.InDelta(t, 0.002, session.TotalCost, 1e-9)

	assert.Equal(t, []string{session.ID}, sink.started)
	assert.Equal(t, []int{1, 2, 3}, sink.layers)

	persisted, err := store.GetByCacheKey(context.Background(), SessionCacheKey("example.com"))
	require.NoError(t, err)
	require.NotNil(t, persisted)
	assert.Equal(t, session.ID, persisted.ID)
}

func TestRun_CacheHitEmitsSyntheticLayer(t *testing.T) {
	src := newFakeSource(t, "metadata", 1, 70, map[string]any{"page_title": "Acme"})
	o, store, sink := newTestOrchestrator(t, src)

	first, err := o.Run(context.Background(), "example.com", "a@example.com")
	require.NoError(t, err)

	sink.mu.Lock()
	sink.started = nil
	sink.layers = nil
	sink.mu.Unlock()

	second, err := o.Run(context.Background(), "https://example.com/", "b@example.com")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Empty(t, sink.started, "cache hit must not restart enrichment")
	assert.Equal(t, []int{3}, sink.layers)

	store.mu.Lock()
	stored := len(store.byKey)
	store.mu.Unlock()
	assert.Equal(t, 1, stored)
}

func TestRun_ExpiredSessionRunsFresh(t *testing.T) {
	src := newFakeSource(t, "metadata", 1, 70, map[string]any{"page_title": "Acme"})
	o, store, sink := newTestOrchestrator(t, src)

	expired := models.NewEnrichmentSession(
		"old", SessionCacheKey("example.com"), "example.com",
		"https://example.com", "a@example.com", time.Now().Add(-2*time.Hour), time.Hour)
	expired.Status = models.SessionComplete
	require.NoError(t, store.Upsert(context.Background(), expired))

	session, err := o.Run(context.Background(), "example.com", "b@example.com")
	require.NoError(t, err)

	assert.NotEqual(t, "old", session.ID)
	assert.Equal(t, []string{session.ID}, sink.started)
}

// timeoutSource is an adapter whose calls always time out.
type timeoutSource struct {
	fakeSource
}

func (s *timeoutSource) Enrich(context.Context, string, sources.Hints) (*sources.SourceResult, error) {
	return sources.Failed(sources.ErrTimeout, "context deadline exceeded", 0.001, 0), nil
}

func TestEnrich_ActiveSessionNotRestarted(t *testing.T) {
	src := newFakeSource(t, "metadata", 1, 70, map[string]any{"page_title": "Acme"})
	o, store, sink := newTestOrchestrator(t, src)

	inFlight := models.NewEnrichmentSession(
		"live", SessionCacheKey("example.com"), "example.com",
		"https://example.com", "a@example.com", time.Now().UTC(), time.Hour)
	inFlight.Status = models.SessionActive
	require.NoError(t, store.Upsert(context.Background(), inFlight))

	session, cached, err := o.Prepare(context.Background(), "www.example.com", "b@example.com")
	require.NoError(t, err)
	require.True(t, cached, "an in-flight session must resolve from the cache")
	assert.Equal(t, "live", session.ID)

	require.NoError(t, o.Enrich(context.Background(), session))
	assert.Empty(t, sink.started, "a second caller must attach to the running stream, not restart")
	assert.Empty(t, sink.layers)
}

func TestEnrich_FailedSourceRecordedInAudit(t *testing.T) {
	meta := newFakeSource(t, "metadata", 1, 70, map[string]any{"page_title": "Acme"})
	flaky := &timeoutSource{fakeSource: *newFakeSource(t, "places", 2, 80, nil)}
	o, _, _ := newTestOrchestrator(t, meta, flaky)

	session, err := o.Run(context.Background(), "example.com", "a@example.com")
	require.NoError(t, err)

	require.Contains(t, session.SourceErrors, "places")
	attr := session.SourceErrors["places"]
	assert.False(t, attr.Success)
	assert.Equal(t, string(sources.ErrTimeout), attr.ErrorKind)
	assert.Equal(t, 2, attr.Layer)
	assert.NotContains(t, session.SourceErrors, "metadata")
}

func TestRun_CancelledSessionNotCached(t *testing.T) {
	src := newFakeSource(t, "metadata", 1, 70, map[string]any{"page_title": "Acme"})
	o, store, _ := newTestOrchestrator(t, src)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	session, cached, err := o.Prepare(context.Background(), "example.com", "a@example.com")
	require.NoError(t, err)
	require.False(t, cached)

	err = o.Enrich(ctx, session)
	require.Error(t, err)
	assert.Equal(t, models.SessionAborted, session.Status)

	store.mu.Lock()
	stored := len(store.byKey)
	store.mu.Unlock()
	assert.Zero(t, stored, "aborted sessions must never be cached")
}

func TestPrepare_RejectsInvalidURL(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	_, _, err := o.Prepare(context.Background(), "ftp://example.com", "a@example.com")
	assert.Error(t, err)
}
