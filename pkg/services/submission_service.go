package services

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/bussola-ai/bussola/pkg/database"
	"github.com/bussola-ai/bussola/pkg/enrichment"
	"github.com/bussola-ai/bussola/pkg/models"
)

// SubmitRequest is the validated intake payload.
type SubmitRequest struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Company   string `json:"company"`
	Website   string `json:"website"`
	Industry  string `json:"industry"`
	Challenge string `json:"challenge"`
	SessionID string `json:"enrichment_session_id"`
}

// SubmissionService owns submission intake and lifecycle reads.
type SubmissionService struct {
	store      *database.SubmissionStore
	dailyQuota int
	now        func() time.Time
}

// NewSubmissionService wires the service. dailyQuota <= 0 disables the
// quota check.
func NewSubmissionService(store *database.SubmissionStore, dailyQuota int) *SubmissionService {
	return &SubmissionService{store: store, dailyQuota: dailyQuota, now: time.Now}
}

// Create validates and persists a new queued submission.
func (s *SubmissionService) Create(ctx context.Context, req SubmitRequest) (*models.Submission, error) {
	if err := validateSubmit(&req); err != nil {
		return nil, err
	}

	if s.dailyQuota > 0 {
		since := s.now().Add(-24 * time.Hour)
		n, err := s.store.CountSince(ctx, req.Email, since)
		if err != nil {
			return nil, fmt.Errorf("quota check: %w", err)
		}
		if n >= s.dailyQuota {
			return nil, ErrQuotaExceeded
		}
	}

	sub := &models.Submission{
		Name:      req.Name,
		Email:     req.Email,
		Company:   req.Company,
		Website:   req.Website,
		Industry:  req.Industry,
		Challenge: req.Challenge,
	}
	if req.SessionID != "" {
		sub.SessionID = &req.SessionID
	}

	id, err := s.store.Create(ctx, sub)
	if err != nil {
		return nil, err
	}
	sub.ID = id
	sub.ProcessingState = models.ProcessingQueued
	sub.UserStatus = models.UserStatusSubmitted
	return sub, nil
}

// Get returns a submission or ErrNotFound.
func (s *SubmissionService) Get(ctx context.Context, id int64) (*models.Submission, error) {
	sub, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, ErrNotFound
	}
	return sub, nil
}

// List returns submissions newest-first.
func (s *SubmissionService) List(ctx context.Context, limit, offset int) ([]models.Submission, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.List(ctx, limit, offset)
}

// SetUserStatus advances the human-owned review lifecycle.
func (s *SubmissionService) SetUserStatus(ctx context.Context, id int64, status models.UserStatus) error {
	valid := false
	for _, v := range models.ValidUserStatuses {
		if v == status {
			valid = true
			break
		}
	}
	if !valid {
		return NewValidationError("user_status", fmt.Sprintf("unknown status %q", status))
	}
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return s.store.SetUserStatus(ctx, id, status)
}

// Reprocess requeues a terminal submission so the pipeline runs again.
// fromStage selects which stages are forced fresh; stages before it may
// reuse their cached results.
func (s *SubmissionService) Reprocess(ctx context.Context, id int64, fromStage int) error {
	if fromStage < 0 || fromStage > 6 {
		return NewValidationError("from", "stage must be between 1 and 6")
	}
	sub, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if sub.ProcessingState != models.ProcessingCompleted && sub.ProcessingState != models.ProcessingFailed {
		return NewValidationError("processing_state", "only completed or failed submissions can be reprocessed")
	}
	return s.store.Requeue(ctx, id, fromStage)
}

func validateSubmit(req *SubmitRequest) error {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	req.Company = strings.TrimSpace(req.Company)
	req.Challenge = strings.TrimSpace(req.Challenge)

	if req.Name == "" {
		return NewValidationError("name", "is required")
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return NewValidationError("email", "is not a valid address")
	}
	if req.Company == "" {
		return NewValidationError("company", "is required")
	}
	if req.Challenge == "" {
		return NewValidationError("challenge", "is required")
	}
	if len(req.Challenge) > models.MaxChallengeLength {
		return NewValidationError("challenge",
			fmt.Sprintf("must be at most %d characters", models.MaxChallengeLength))
	}
	if req.Website != "" {
		normalized, err := enrichment.NormalizeURL(req.Website)
		if err != nil {
			return NewValidationError("website", "is not a valid URL")
		}
		req.Website = normalized
	}
	return nil
}
