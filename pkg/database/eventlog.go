package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/bussola-ai/bussola/pkg/events"
)

// EventLog reads the durable event table for subscriber catchup and
// handles retention of old rows.
type EventLog struct {
	db *sqlx.DB
}

// NewEventLog creates the reader.
func NewEventLog(db *sqlx.DB) *EventLog {
	return &EventLog{db: db}
}

// EventsSince returns events on a channel with id > sinceID, in id order.
func (l *EventLog) EventsSince(ctx context.Context, channel string, sinceID int64, limit int) ([]events.CatchupEvent, error) {
	rows, err := l.db.QueryxContext(ctx,
		`SELECT id, payload FROM events WHERE channel = $1 AND id > $2 ORDER BY id LIMIT $3`,
		channel, sinceID, limit)
	if err != nil {
		return nil, fmt.Errorf("query catchup events: %w", err)
	}
	defer rows.Close()

	var out []events.CatchupEvent
	for rows.Next() {
		var id int64
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		var payload map[string]any
		if err := json.Unmarshal(raw, &payload); err != nil {
			continue
		}
		out = append(out, events.CatchupEvent{ID: id, Payload: payload})
	}
	return out, rows.Err()
}

// DeleteBefore removes events older than the cutoff.
func (l *EventLog) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := l.db.ExecContext(ctx,
		`DELETE FROM events WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old events: %w", err)
	}
	return res.RowsAffected()
}
