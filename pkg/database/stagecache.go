package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/bussola-ai/bussola/pkg/models"
)

// StageCacheStore persists analysis stage results keyed by
// (stage_name, input fingerprint).
type StageCacheStore struct {
	db *sqlx.DB
}

// NewStageCacheStore creates the store.
func NewStageCacheStore(db *sqlx.DB) *StageCacheStore {
	return &StageCacheStore{db: db}
}

// Get returns the entry for a cache key, nil on miss.
func (s *StageCacheStore) Get(ctx context.Context, cacheKey string) (*models.StageCacheEntry, error) {
	var entry models.StageCacheEntry
	err := s.db.GetContext(ctx, &entry,
		`SELECT stage_name, cache_key, result, cost_saved_usd, hit_count, expires_at, created_at
		 FROM stage_cache WHERE cache_key = $1`, cacheKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query stage cache: %w", err)
	}
	return &entry, nil
}

// Put upserts an entry; a rerun with the same inputs refreshes the TTL.
func (s *StageCacheStore) Put(ctx context.Context, entry *models.StageCacheEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO stage_cache (stage_name, cache_key, result, cost_saved_usd, hit_count, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (stage_name, cache_key) DO UPDATE SET
		   result = EXCLUDED.result,
		   expires_at = EXCLUDED.expires_at`,
		entry.StageName, entry.CacheKey, []byte(entry.Result),
		entry.CostSavedUSD, entry.HitCount, entry.ExpiresAt, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert stage cache entry: %w", err)
	}
	return nil
}

// RecordHit bumps the hit counter and the saved-cost accumulator.
func (s *StageCacheStore) RecordHit(ctx context.Context, cacheKey string, costSaved float64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE stage_cache SET hit_count = hit_count + 1, cost_saved_usd = cost_saved_usd + $2
		 WHERE cache_key = $1`, cacheKey, costSaved)
	if err != nil {
		return fmt.Errorf("record stage cache hit: %w", err)
	}
	return nil
}

// DeleteExpired removes entries past their TTL.
func (s *StageCacheStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM stage_cache WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired stage cache entries: %w", err)
	}
	return res.RowsAffected()
}
