package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/bussola-ai/bussola/pkg/models"
)

// SessionStore is the durable backing of the enrichment cache.
type SessionStore interface {
	GetByCacheKey(ctx context.Context, cacheKey string) (*models.EnrichmentSession, error)
	GetByID(ctx context.Context, sessionID string) (*models.EnrichmentSession, error)
	Upsert(ctx context.Context, session *models.EnrichmentSession) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// hotTTL bounds the in-process layer; the durable store remains the
// authority on the 30-day TTL.
const hotTTL = 5 * time.Minute

// EnrichmentCache fronts the session store with an in-process hot layer.
// Expired entries are treated as absent on read; physical deletion is
// left to the retention sweep.
type EnrichmentCache struct {
	store SessionStore
	hot   *gocache.Cache
	now   func() time.Time
}

// NewEnrichmentCache builds the two-layer cache.
func NewEnrichmentCache(store SessionStore) *EnrichmentCache {
	return &EnrichmentCache{
		store: store,
		hot:   gocache.New(hotTTL, 2*hotTTL),
		now:   time.Now,
	}
}

// GetByCacheKey returns the live session for a cache key, or nil on
// miss or expiry.
func (c *EnrichmentCache) GetByCacheKey(ctx context.Context, cacheKey string) (*models.EnrichmentSession, error) {
	return c.lookup(ctx, "key:"+cacheKey, func() (*models.EnrichmentSession, error) {
		return c.store.GetByCacheKey(ctx, cacheKey)
	})
}

// GetByID returns the live session by id, or nil on miss or expiry.
func (c *EnrichmentCache) GetByID(ctx context.Context, sessionID string) (*models.EnrichmentSession, error) {
	return c.lookup(ctx, "id:"+sessionID, func() (*models.EnrichmentSession, error) {
		return c.store.GetByID(ctx, sessionID)
	})
}

// lookup serves the hot layer first, then the store. Every caller gets
// a private copy: the orchestrator mutates its session between layer
// boundaries while readers range the same maps, so the hot copy must
// never escape.
func (c *EnrichmentCache) lookup(ctx context.Context, hotKey string, fetch func() (*models.EnrichmentSession, error)) (*models.EnrichmentSession, error) {
	if cached, ok := c.hot.Get(hotKey); ok {
		session := cached.(*models.EnrichmentSession)
		if session.Expired(c.now()) {
			c.hot.Delete(hotKey)
			return nil, nil
		}
		return session.Clone(), nil
	}

	session, err := fetch()
	if err != nil {
		return nil, err
	}
	if session == nil || session.Expired(c.now()) {
		return nil, nil
	}
	c.hot.SetDefault(hotKey, session.Clone())
	return session, nil
}

// Put upserts a session. Serialization problems surface here, before
// anything reaches the store. Aborted sessions are never cached.
func (c *EnrichmentCache) Put(ctx context.Context, session *models.EnrichmentSession) error {
	if session.Status == models.SessionAborted {
		return nil
	}
	if _, err := MarshalSafe(session.Fields); err != nil {
		return fmt.Errorf("session %s fields: %w", session.ID, err)
	}
	if err := c.store.Upsert(ctx, session); err != nil {
		return fmt.Errorf("persist session %s: %w", session.ID, err)
	}
	snapshot := session.Clone()
	c.hot.SetDefault("key:"+session.CacheKey, snapshot)
	c.hot.SetDefault("id:"+session.ID, snapshot)
	return nil
}

// Sweep deletes expired sessions from the durable store.
func (c *EnrichmentCache) Sweep(ctx context.Context) (int64, error) {
	deleted, err := c.store.DeleteExpired(ctx, c.now())
	if err != nil {
		return 0, fmt.Errorf("sweep expired sessions: %w", err)
	}
	if deleted > 0 {
		slog.Info("Swept expired enrichment sessions", "deleted", deleted)
	}
	return deleted, nil
}
