package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bussola-ai/bussola/pkg/models"
)

// memSessions is an in-memory SessionStore.
type memSessions struct {
	mu      sync.Mutex
	byKey   map[string]*models.EnrichmentSession
	byID    map[string]*models.EnrichmentSession
	fetches int
	err     error
}

func newMemSessions() *memSessions {
	return &memSessions{
		byKey: make(map[string]*models.EnrichmentSession),
		byID:  make(map[string]*models.EnrichmentSession),
	}
}

func (m *memSessions) GetByCacheKey(_ context.Context, key string) (*models.EnrichmentSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetches++
	return m.byKey[key], m.err
}

func (m *memSessions) GetByID(_ context.Context, id string) (*models.EnrichmentSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetches++
	return m.byID[id], m.err
}

func (m *memSessions) Upsert(_ context.Context, s *models.EnrichmentSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.byKey[s.CacheKey] = s
	m.byID[s.ID] = s
	return nil
}

func (m *memSessions) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for key, s := range m.byKey {
		if s.Expired(now) {
			delete(m.byKey, key)
			delete(m.byID, s.ID)
			n++
		}
	}
	return n, nil
}

func liveSession(id string) *models.EnrichmentSession {
	return models.NewEnrichmentSession(
		id, "key-"+id, "example.com", "https://example.com",
		"user@example.com", time.Now().UTC(), time.Hour)
}

func TestEnrichmentCache_PutAndGet(t *testing.T) {
	store := newMemSessions()
	c := NewEnrichmentCache(store)
	session := liveSession("s1")

	require.NoError(t, c.Put(context.Background(), session))

	got, err := c.GetByCacheKey(context.Background(), session.CacheKey)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "s1", got.ID)

	byID, err := c.GetByID(context.Background(), "s1")
	require.NoError(t, err)
	require.NotNil(t, byID)
}

func TestEnrichmentCache_HotLayerSkipsStore(t *testing.T) {
	store := newMemSessions()
	c := NewEnrichmentCache(store)
	require.NoError(t, c.Put(context.Background(), liveSession("s1")))

	for i := 0; i < 3; i++ {
		_, err := c.GetByID(context.Background(), "s1")
		require.NoError(t, err)
	}

	store.mu.Lock()
	fetches := store.fetches
	store.mu.Unlock()
	assert.Zero(t, fetches, "hot layer should serve repeated reads")
}

func TestEnrichmentCache_ReadsReturnPrivateCopies(t *testing.T) {
	store := newMemSessions()
	c := NewEnrichmentCache(store)
	session := liveSession("s1")
	session.Fields["name"] = "Acme"
	require.NoError(t, c.Put(context.Background(), session))

	// The writer keeps mutating its live session after the Put.
	session.Fields["industry"] = "varejo"
	session.Confidences["industry"] = 80

	got, err := c.GetByID(context.Background(), "s1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Acme", got.Fields["name"])
	assert.NotContains(t, got.Fields, "industry", "reads must see the stored snapshot, not the live session")

	// Mutating a read copy never leaks into later reads.
	got.Fields["name"] = "Changed"
	again, err := c.GetByID(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "Acme", again.Fields["name"])
}

func TestEnrichmentCache_ConcurrentWriterAndReaders(t *testing.T) {
	store := newMemSessions()
	c := NewEnrichmentCache(store)
	session := liveSession("s1")
	require.NoError(t, c.Put(context.Background(), session))

	// One writer mutating and re-putting its live session while readers
	// range the returned field maps. Run with -race.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			session.Fields[fmt.Sprintf("field_%d", i)] = i
			_ = c.Put(context.Background(), session)
		}
	}()

	for i := 0; i < 200; i++ {
		got, err := c.GetByID(context.Background(), "s1")
		require.NoError(t, err)
		require.NotNil(t, got)
		for range got.Fields {
		}
	}
	<-done
}

func TestEnrichmentCache_ExpiredTreatedAsAbsent(t *testing.T) {
	store := newMemSessions()
	c := NewEnrichmentCache(store)

	expired := liveSession("s1")
	expired.ExpiresAt = time.Now().Add(-time.Minute)
	store.byKey[expired.CacheKey] = expired
	store.byID[expired.ID] = expired

	got, err := c.GetByCacheKey(context.Background(), expired.CacheKey)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestEnrichmentCache_AbortedNeverCached(t *testing.T) {
	store := newMemSessions()
	c := NewEnrichmentCache(store)

	session := liveSession("s1")
	session.Status = models.SessionAborted

	require.NoError(t, c.Put(context.Background(), session))
	assert.Empty(t, store.byKey)
}

func TestEnrichmentCache_RejectsUnserializableFields(t *testing.T) {
	store := newMemSessions()
	c := NewEnrichmentCache(store)

	session := liveSession("s1")
	session.Fields["bad"] = func() {}

	assert.Error(t, c.Put(context.Background(), session))
	assert.Empty(t, store.byKey)
}

func TestEnrichmentCache_Sweep(t *testing.T) {
	store := newMemSessions()
	c := NewEnrichmentCache(store)

	expired := liveSession("old")
	expired.ExpiresAt = time.Now().Add(-time.Minute)
	store.byKey[expired.CacheKey] = expired
	store.byID[expired.ID] = expired
	require.NoError(t, c.Put(context.Background(), liveSession("fresh")))

	deleted, err := c.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}

// memStages is an in-memory StageStore.
type memStages struct {
	mu      sync.Mutex
	entries map[string]*models.StageCacheEntry
	hits    int
	err     error
}

func newMemStages() *memStages {
	return &memStages{entries: make(map[string]*models.StageCacheEntry)}
}

func (m *memStages) Get(_ context.Context, key string) (*models.StageCacheEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[key], m.err
}

func (m *memStages) Put(_ context.Context, e *models.StageCacheEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.entries[e.CacheKey] = e
	return nil
}

func (m *memStages) RecordHit(_ context.Context, _ string, _ float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hits++
	return nil
}

func (m *memStages) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for key, e := range m.entries {
		if now.After(e.ExpiresAt) {
			delete(m.entries, key)
			n++
		}
	}
	return n, nil
}

func TestStageCache_RoundTrip(t *testing.T) {
	store := newMemStages()
	c := NewStageCache(store)

	result := &models.AnalysisStageResult{
		StageID:   1,
		StageName: "extraction",
		Output:    json.RawMessage(`{"extracted_data": {}}`),
		CostUSD:   0.002,
	}
	c.Put(context.Background(), "key-1", result)

	got := c.Get(context.Background(), "extraction", "key-1", 0.002)
	require.NotNil(t, got)
	assert.True(t, got.Cached)
	assert.Equal(t, "extraction", got.StageName)
	assert.Equal(t, 1, store.hits)
}

func TestStageCache_MissOnAbsentAndExpired(t *testing.T) {
	store := newMemStages()
	c := NewStageCache(store)

	assert.Nil(t, c.Get(context.Background(), "extraction", "missing", 0))

	store.entries["old"] = &models.StageCacheEntry{
		StageName: "extraction",
		CacheKey:  "old",
		Result:    json.RawMessage(`{}`),
		ExpiresAt: time.Now().Add(-time.Minute),
	}
	assert.Nil(t, c.Get(context.Background(), "extraction", "old", 0))
}

func TestStageCache_StoreFailureIsMiss(t *testing.T) {
	store := newMemStages()
	store.err = errors.New("connection refused")
	c := NewStageCache(store)

	assert.Nil(t, c.Get(context.Background(), "extraction", "key-1", 0))

	// Writes are best-effort too; no panic, no error surfaced.
	c.Put(context.Background(), "key-1", &models.AnalysisStageResult{StageName: "extraction"})
}

func TestStageCache_CorruptEntryIsMiss(t *testing.T) {
	store := newMemStages()
	store.entries["bad"] = &models.StageCacheEntry{
		StageName: "extraction",
		CacheKey:  "bad",
		Result:    json.RawMessage(`not json`),
		ExpiresAt: time.Now().Add(time.Hour),
	}
	c := NewStageCache(store)

	assert.Nil(t, c.Get(context.Background(), "extraction", "bad", 0))
}
