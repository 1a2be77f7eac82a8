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

// SubmissionStore persists submissions and implements the work-queue
// claim protocol the worker pool runs on.
type SubmissionStore struct {
	db *sqlx.DB
}

// NewSubmissionStore creates the store.
func NewSubmissionStore(db *sqlx.DB) *SubmissionStore {
	return &SubmissionStore{db: db}
}

const submissionColumns = `id, name, email, company, website, industry, challenge, session_id,
	processing_state, user_status, error_message, report_json, total_cost_usd, reprocess_from,
	claimed_by, claimed_at, heartbeat_at, created_at, updated_at`

// Create inserts a new submission in the queued state and returns its id.
func (s *SubmissionStore) Create(ctx context.Context, sub *models.Submission) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO submissions (name, email, company, website, industry, challenge, session_id, processing_state, user_status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		sub.Name, sub.Email, sub.Company, sub.Website, sub.Industry, sub.Challenge,
		sub.SessionID, string(models.ProcessingQueued), string(models.UserStatusSubmitted),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert submission: %w", err)
	}
	return id, nil
}

// Get returns a submission by id, nil on miss.
func (s *SubmissionStore) Get(ctx context.Context, id int64) (*models.Submission, error) {
	var sub models.Submission
	err := s.db.GetContext(ctx, &sub,
		`SELECT `+submissionColumns+` FROM submissions WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query submission %d: %w", id, err)
	}
	return &sub, nil
}

// List returns submissions newest-first.
func (s *SubmissionStore) List(ctx context.Context, limit, offset int) ([]models.Submission, error) {
	subs := []models.Submission{}
	err := s.db.SelectContext(ctx, &subs,
		`SELECT `+submissionColumns+` FROM submissions ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	return subs, nil
}

// Claim atomically takes the oldest queued submission for a worker.
// FOR UPDATE SKIP LOCKED lets multiple workers poll without contention.
// Returns nil when the queue is empty.
func (s *SubmissionStore) Claim(ctx context.Context, workerID string, now time.Time) (*models.Submission, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var sub models.Submission
	err = tx.GetContext(ctx, &sub,
		`SELECT `+submissionColumns+` FROM submissions
		 WHERE processing_state = 'queued'
		 ORDER BY created_at
		 FOR UPDATE SKIP LOCKED
		 LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select queued submission: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE submissions
		 SET processing_state = 'data_gathering', claimed_by = $2, claimed_at = $3, heartbeat_at = $3, updated_at = $3
		 WHERE id = $1`,
		sub.ID, workerID, now)
	if err != nil {
		return nil, fmt.Errorf("claim submission %d: %w", sub.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}

	sub.ProcessingState = models.ProcessingGathering
	sub.ClaimedBy = &workerID
	return &sub, nil
}

// Heartbeat refreshes the worker's liveness mark on a claimed submission.
func (s *SubmissionStore) Heartbeat(ctx context.Context, id int64, workerID string, now time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE submissions SET heartbeat_at = $3 WHERE id = $1 AND claimed_by = $2`,
		id, workerID, now)
	if err != nil {
		return fmt.Errorf("heartbeat submission %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("submission %d no longer claimed by %s", id, workerID)
	}
	return nil
}

// RecoverOrphans requeues submissions whose worker stopped heartbeating.
func (s *SubmissionStore) RecoverOrphans(ctx context.Context, staleBefore time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE submissions
		 SET processing_state = 'queued', claimed_by = NULL, claimed_at = NULL, heartbeat_at = NULL, updated_at = now()
		 WHERE processing_state IN ('data_gathering', 'ai_analyzing', 'finalizing')
		   AND heartbeat_at < $1`, staleBefore)
	if err != nil {
		return 0, fmt.Errorf("recover orphaned submissions: %w", err)
	}
	return res.RowsAffected()
}

// Requeue puts a terminal submission back in the queue. fromStage > 0
// forces stages >= fromStage to run fresh on the next pass.
func (s *SubmissionStore) Requeue(ctx context.Context, id int64, fromStage int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE submissions
		 SET processing_state = 'queued', reprocess_from = $2,
		     claimed_by = NULL, claimed_at = NULL, heartbeat_at = NULL, updated_at = now()
		 WHERE id = $1`, id, fromStage)
	if err != nil {
		return fmt.Errorf("requeue submission %d: %w", id, err)
	}
	return nil
}

// SetProcessingState advances the system-owned lifecycle column.
func (s *SubmissionStore) SetProcessingState(ctx context.Context, id int64, state models.ProcessingState) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE submissions SET processing_state = $2, updated_at = now() WHERE id = $1`,
		id, string(state))
	if err != nil {
		return fmt.Errorf("set submission %d state %s: %w", id, state, err)
	}
	return nil
}

// SetUserStatus advances the human-owned review column.
func (s *SubmissionStore) SetUserStatus(ctx context.Context, id int64, status models.UserStatus) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE submissions SET user_status = $2, updated_at = now() WHERE id = $1`,
		id, string(status))
	if err != nil {
		return fmt.Errorf("set submission %d user status %s: %w", id, status, err)
	}
	return nil
}

// Complete stores the finished report and marks the submission done.
func (s *SubmissionStore) Complete(ctx context.Context, id int64, report json.RawMessage, totalCost float64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE submissions
		 SET processing_state = 'completed', user_status = 'ready', report_json = $2,
		     total_cost_usd = $3, error_message = NULL, reprocess_from = 0, updated_at = now()
		 WHERE id = $1`,
		id, []byte(report), totalCost)
	if err != nil {
		return fmt.Errorf("complete submission %d: %w", id, err)
	}
	return nil
}

// Fail marks the submission failed with a mandatory error message.
func (s *SubmissionStore) Fail(ctx context.Context, id int64, message string, totalCost float64) error {
	if message == "" {
		message = "unknown failure"
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE submissions
		 SET processing_state = 'failed', error_message = $2, total_cost_usd = $3, updated_at = now()
		 WHERE id = $1`,
		id, message, totalCost)
	if err != nil {
		return fmt.Errorf("fail submission %d: %w", id, err)
	}
	return nil
}

// CountSince counts submissions from one email address in a window,
// for quota enforcement.
func (s *SubmissionStore) CountSince(ctx context.Context, email string, since time.Time) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n,
		`SELECT count(*) FROM submissions WHERE email = $1 AND created_at >= $2`, email, since)
	if err != nil {
		return 0, fmt.Errorf("count submissions for %s: %w", email, err)
	}
	return n, nil
}
