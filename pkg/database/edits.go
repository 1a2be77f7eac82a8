package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/bussola-ai/bussola/pkg/models"
)

// EditStore persists the user-edit ledger. Every time a user overrides
// an enriched value on the form, one row lands here; confidence scoring
// reads the per-field counts back as penalties.
type EditStore struct {
	db *sqlx.DB
}

// NewEditStore creates the store.
func NewEditStore(db *sqlx.DB) *EditStore {
	return &EditStore{db: db}
}

// Append records one user override.
func (s *EditStore) Append(ctx context.Context, edit *models.FieldEdit) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_field_edits (session_id, field_name, source_value, user_value, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		edit.SessionID, edit.FieldName, edit.SourceValue, edit.UserValue, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("append field edit: %w", err)
	}
	return nil
}

// CountsByField returns how many times each field has been edited,
// across all sessions.
func (s *EditStore) CountsByField(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryxContext(ctx,
		`SELECT field_name, count(*) FROM user_field_edits GROUP BY field_name`)
	if err != nil {
		return nil, fmt.Errorf("count field edits: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var field string
		var n int
		if err := rows.Scan(&field, &n); err != nil {
			return nil, fmt.Errorf("scan field edit count: %w", err)
		}
		counts[field] = n
	}
	return counts, rows.Err()
}

// BySession returns the ledger rows for one session, oldest first.
func (s *EditStore) BySession(ctx context.Context, sessionID string) ([]models.FieldEdit, error) {
	edits := []models.FieldEdit{}
	err := s.db.SelectContext(ctx, &edits,
		`SELECT id, session_id, field_name, source_value, user_value, created_at
		 FROM user_field_edits WHERE session_id = $1 ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query edits for session %s: %w", sessionID, err)
	}
	return edits, nil
}
