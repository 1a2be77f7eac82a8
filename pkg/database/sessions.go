package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/bussola-ai/bussola/pkg/models"
)

// SessionStore persists enrichment sessions. The full session document
// lives in the session_data JSONB column; the remaining columns exist
// for lookups and retention.
type SessionStore struct {
	db *sqlx.DB
}

// NewSessionStore creates the store.
func NewSessionStore(db *sqlx.DB) *SessionStore {
	return &SessionStore{db: db}
}

type sessionRow struct {
	SessionID    string    `db:"session_id"`
	CacheKey     string    `db:"cache_key"`
	WebsiteURL   string    `db:"website_url"`
	UserEmail    string    `db:"user_email"`
	SessionData  []byte    `db:"session_data"`
	Status       string    `db:"status"`
	TotalCostUSD float64   `db:"total_cost_usd"`
	ExpiresAt    time.Time `db:"expires_at"`
	CreatedAt    time.Time `db:"created_at"`
}

// GetByCacheKey returns the most recent session for a cache key, nil on miss.
func (s *SessionStore) GetByCacheKey(ctx context.Context, cacheKey string) (*models.EnrichmentSession, error) {
	var row sessionRow
	err := s.db.GetContext(ctx, &row,
		`SELECT session_id, cache_key, website_url, user_email, session_data, status, total_cost_usd, expires_at, created_at
		 FROM enrichment_sessions WHERE cache_key = $1 ORDER BY created_at DESC LIMIT 1`, cacheKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query session by cache key: %w", err)
	}
	return row.toSession()
}

// GetByID returns the session by id, nil on miss.
func (s *SessionStore) GetByID(ctx context.Context, sessionID string) (*models.EnrichmentSession, error) {
	var row sessionRow
	err := s.db.GetContext(ctx, &row,
		`SELECT session_id, cache_key, website_url, user_email, session_data, status, total_cost_usd, expires_at, created_at
		 FROM enrichment_sessions WHERE session_id = $1`, sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query session by id: %w", err)
	}
	return row.toSession()
}

// Upsert writes the session document keyed by session id.
func (s *SessionStore) Upsert(ctx context.Context, session *models.EnrichmentSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", session.ID, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO enrichment_sessions (session_id, cache_key, website_url, user_email, session_data, status, total_cost_usd, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (session_id) DO UPDATE SET
		   session_data = EXCLUDED.session_data,
		   status = EXCLUDED.status,
		   total_cost_usd = EXCLUDED.total_cost_usd,
		   expires_at = EXCLUDED.expires_at`,
		session.ID, session.CacheKey, session.WebsiteURL, session.UserEmail,
		data, string(session.Status), session.TotalCost, session.ExpiresAt, session.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert session %s: %w", session.ID, err)
	}
	return nil
}

// DeleteExpired removes sessions past their TTL.
func (s *SessionStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM enrichment_sessions WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return res.RowsAffected()
}

func (r *sessionRow) toSession() (*models.EnrichmentSession, error) {
	var session models.EnrichmentSession
	if err := json.Unmarshal(r.SessionData, &session); err != nil {
		return nil, fmt.Errorf("unmarshal session %s: %w", r.SessionID, err)
	}
	// Columns are authoritative for the fields they index.
	session.ID = r.SessionID
	session.CacheKey = r.CacheKey
	session.Status = models.SessionStatus(r.Status)
	session.ExpiresAt = r.ExpiresAt
	return &session, nil
}
