package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/bussola-ai/bussola/pkg/models"
)

// StageStore is the durable backing of the stage cache.
type StageStore interface {
	Get(ctx context.Context, cacheKey string) (*models.StageCacheEntry, error)
	Put(ctx context.Context, entry *models.StageCacheEntry) error
	RecordHit(ctx context.Context, cacheKey string, costSaved float64) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// StageCache stores per-stage analysis results keyed by input
// fingerprint. Reads and writes are best-effort: a cache problem is
// logged and the pipeline proceeds as if it were a miss.
type StageCache struct {
	store StageStore
	ttl   time.Duration
	now   func() time.Time
}

// NewStageCache builds the cache with the standard TTL.
func NewStageCache(store StageStore) *StageCache {
	return &StageCache{store: store, ttl: models.StageCacheTTL, now: time.Now}
}

// StageKey fingerprints one stage invocation.
func StageKey(stageName string, inputs any) (string, error) {
	return Fingerprint(stageName, inputs)
}

// Get returns the cached stage result, or nil on miss, expiry or store
// failure.
func (c *StageCache) Get(ctx context.Context, stageName, cacheKey string, costEstimate float64) *models.AnalysisStageResult {
	entry, err := c.store.Get(ctx, cacheKey)
	if err != nil {
		slog.Warn("Stage cache read failed, treating as miss",
			"stage", stageName, "error", err)
		return nil
	}
	if entry == nil || c.now().After(entry.ExpiresAt) {
		return nil
	}

	var result models.AnalysisStageResult
	if err := json.Unmarshal(entry.Result, &result); err != nil {
		slog.Warn("Stage cache entry corrupt, treating as miss",
			"stage", stageName, "error", err)
		return nil
	}
	result.Cached = true

	if err := c.store.RecordHit(ctx, cacheKey, costEstimate); err != nil {
		slog.Warn("Stage cache hit accounting failed", "stage", stageName, "error", err)
	}
	return &result
}

// Put persists a fresh stage result. Failures are logged and swallowed.
func (c *StageCache) Put(ctx context.Context, cacheKey string, result *models.AnalysisStageResult) {
	payload, err := MarshalSafe(result)
	if err != nil {
		slog.Warn("Stage result not serializable, skipping cache write",
			"stage", result.StageName, "error", err)
		return
	}
	entry := &models.StageCacheEntry{
		StageName: result.StageName,
		CacheKey:  cacheKey,
		Result:    payload,
		ExpiresAt: c.now().Add(c.ttl),
		CreatedAt: c.now(),
	}
	if err := c.store.Put(ctx, entry); err != nil {
		slog.Warn("Stage cache write failed", "stage", result.StageName, "error", err)
	}
}

// Sweep deletes expired stage entries.
func (c *StageCache) Sweep(ctx context.Context) (int64, error) {
	return c.store.DeleteExpired(ctx, c.now())
}
