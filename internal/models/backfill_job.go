package models

import (
	"time"

	"github.com/contact-ranker/internal/types"
)

// BackfillJob represents a row in the backfill_jobs table (one per enqueue attempt)
type BackfillJob struct {
	JobID         string              `json:"jobId" db:"job_id"`
	UserID        string              `json:"userId" db:"user_id"`
	Status        types.JobStatus     `json:"status" db:"status"`
	TriggerReason types.TriggerReason `json:"triggerReason" db:"trigger_reason"`
	RetryCount    int                 `json:"retryCount" db:"retry_count"`
	CreatedAt     time.Time           `json:"createdAt" db:"created_at"`
	StartedAt     *time.Time          `json:"startedAt,omitempty" db:"started_at"`
	CompletedAt   *time.Time          `json:"completedAt,omitempty" db:"completed_at"`
	ErrorMessage  *string             `json:"errorMessage,omitempty" db:"error_message"`
}

// IsActive reports whether the job occupies the user's single in-flight slot
func (j *BackfillJob) IsActive() bool {
	return j.Status == types.JobStatusPending || j.Status == types.JobStatusRunning
}
