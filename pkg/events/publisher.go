package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// notifyLimit is PostgreSQL's NOTIFY payload ceiling, minus headroom.
const notifyLimit = 7900

// Publisher persists events and broadcasts them via NOTIFY. The INSERT
// and the pg_notify run in a single transaction so the notification
// fires exactly when the row becomes visible; catchup by event id can
// therefore never miss an event a notification was sent for.
type Publisher struct {
	db *sql.DB
}

// NewPublisher creates a publisher over the shared database handle.
func NewPublisher(db *sql.DB) *Publisher {
	return &Publisher{db: db}
}

// EnrichmentStarted publishes the run-opening event.
func (p *Publisher) EnrichmentStarted(ctx context.Context, sessionID, domain string) error {
	return p.publish(ctx, sessionID, EnrichmentChannel(sessionID), EnrichmentStartedPayload{
		Type:      KindEnrichmentStarted,
		SessionID: sessionID,
		Domain:    domain,
	})
}

// LayerComplete publishes a layer boundary with the current field map.
func (p *Publisher) LayerComplete(ctx context.Context, sessionID string, payload LayerCompletePayload) error {
	payload.Type = LayerKind(payload.Layer)
	payload.SessionID = sessionID
	return p.publish(ctx, sessionID, EnrichmentChannel(sessionID), payload)
}

// StageStarted publishes a stage-start marker.
func (p *Publisher) StageStarted(ctx context.Context, submissionID int64, payload StageStartedPayload) error {
	payload.Type = KindStageStarted
	payload.SubmissionID = submissionID
	return p.publish(ctx, SubmissionChannel(submissionID), SubmissionChannel(submissionID), payload)
}

// StageComplete publishes a stage-completion marker.
func (p *Publisher) StageComplete(ctx context.Context, submissionID int64, payload StageCompletePayload) error {
	payload.Type = KindStageComplete
	payload.SubmissionID = submissionID
	return p.publish(ctx, SubmissionChannel(submissionID), SubmissionChannel(submissionID), payload)
}

// PipelineComplete publishes the terminal event of a submission run.
func (p *Publisher) PipelineComplete(ctx context.Context, submissionID int64, payload PipelineCompletePayload) error {
	payload.Type = KindPipelineComplete
	payload.SubmissionID = submissionID
	return p.publish(ctx, SubmissionChannel(submissionID), SubmissionChannel(submissionID), payload)
}

// Error publishes a non-terminal error event to the given channel.
func (p *Publisher) Error(ctx context.Context, channel, where, kind, message string) error {
	return p.publish(ctx, channel, channel, ErrorPayload{
		Type:    KindError,
		Where:   where,
		Kind:    kind,
		Message: message,
	})
}

// publish persists the payload and notifies the channel atomically.
func (p *Publisher) publish(ctx context.Context, sessionID, channel string, payload any) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin event transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var eventID int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO events (session_id, channel, payload, created_at) VALUES ($1, $2, $3, $4) RETURNING id`,
		sessionID, channel, payloadJSON, time.Now().UTC(),
	).Scan(&eventID)
	if err != nil {
		return fmt.Errorf("persist event: %w", err)
	}

	notifyPayload, err := withEventID(payloadJSON, eventID)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "SELECT pg_notify($1, $2)", channel, notifyPayload); err != nil {
		return fmt.Errorf("pg_notify: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit event transaction: %w", err)
	}
	return nil
}

// withEventID injects db_event_id for catchup tracking and shrinks the
// payload to a routing stub when it would exceed the NOTIFY limit. The
// durable events row always carries the full payload, so a client that
// receives truncated=true recovers it by reconnecting with a
// Last-Event-ID below db_event_id, which replays the row in full.
func withEventID(payloadJSON []byte, eventID int64) (string, error) {
	var m map[string]any
	if err := json.Unmarshal(payloadJSON, &m); err != nil {
		return "", fmt.Errorf("unmarshal payload for event id injection: %w", err)
	}
	m["db_event_id"] = eventID

	enriched, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("marshal notify payload: %w", err)
	}
	if len(enriched) <= notifyLimit {
		return string(enriched), nil
	}

	stub, err := json.Marshal(map[string]any{
		"type":        m["type"],
		"db_event_id": eventID,
		"truncated":   true,
	})
	if err != nil {
		return "", fmt.Errorf("marshal truncated payload: %w", err)
	}
	return string(stub), nil
}
