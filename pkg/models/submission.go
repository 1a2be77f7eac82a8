package models

import (
	"encoding/json"
	"time"
)

// ProcessingState is the system-owned lifecycle of a submission.
type ProcessingState string

const (
	ProcessingQueued     ProcessingState = "queued"
	ProcessingGathering  ProcessingState = "data_gathering"
	ProcessingAnalyzing  ProcessingState = "ai_analyzing"
	ProcessingFinalizing ProcessingState = "finalizing"
	ProcessingCompleted  ProcessingState = "completed"
	ProcessingFailed     ProcessingState = "failed"
)

// UserStatus is the human-owned review lifecycle of a submission.
// It advances independently of ProcessingState.
type UserStatus string

const (
	UserStatusSubmitted    UserStatus = "submitted"
	UserStatusAnalyzing    UserStatus = "analyzing"
	UserStatusReady        UserStatus = "ready"
	UserStatusReviewed     UserStatus = "reviewed"
	UserStatusSentToClient UserStatus = "sent_to_client"
	UserStatusArchived     UserStatus = "archived"
)

// ValidProcessingStates lists every allowed processing_state value,
// mirrored by the CHECK constraint on the submissions table.
var ValidProcessingStates = []ProcessingState{
	ProcessingQueued, ProcessingGathering, ProcessingAnalyzing,
	ProcessingFinalizing, ProcessingCompleted, ProcessingFailed,
}

// ValidUserStatuses lists every allowed user_status value.
var ValidUserStatuses = []UserStatus{
	UserStatusSubmitted, UserStatusAnalyzing, UserStatusReady,
	UserStatusReviewed, UserStatusSentToClient, UserStatusArchived,
}

// MaxChallengeLength bounds the free-text challenge statement.
const MaxChallengeLength = 2000

// Submission is a user-supplied business lead.
type Submission struct {
	ID              int64           `db:"id" json:"id"`
	Name            string          `db:"name" json:"name"`
	Email           string          `db:"email" json:"email"`
	Company         string          `db:"company" json:"company"`
	Website         string          `db:"website" json:"website"`
	Industry        string          `db:"industry" json:"industry"`
	Challenge       string          `db:"challenge" json:"challenge"`
	SessionID       *string         `db:"session_id" json:"session_id,omitempty"`
	ProcessingState ProcessingState `db:"processing_state" json:"processing_state"`
	UserStatus      UserStatus      `db:"user_status" json:"user_status"`
	ErrorMessage    *string         `db:"error_message" json:"error_message,omitempty"`
	ReportJSON      json.RawMessage `db:"report_json" json:"report_json,omitempty"`
	TotalCostUSD    float64         `db:"total_cost_usd" json:"total_cost_usd"`
	ReprocessFrom   int             `db:"reprocess_from" json:"-"`
	ClaimedBy       *string         `db:"claimed_by" json:"-"`
	ClaimedAt       *time.Time      `db:"claimed_at" json:"-"`
	HeartbeatAt     *time.Time      `db:"heartbeat_at" json:"-"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// Completed reports whether the submission reached a terminal state with a report.
func (s *Submission) Completed() bool {
	return s.ProcessingState == ProcessingCompleted && len(s.ReportJSON) > 0
}
