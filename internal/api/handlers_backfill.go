package api

import (
	"net/http"
	"time"

	"github.com/contact-ranker/internal/types"
)

// TriggerBackfillRequest is the body of POST /api/backfill
type TriggerBackfillRequest struct {
	UserID string `json:"userId"`
	Force  bool   `json:"force"`
}

// handleTriggerBackfill handles POST /api/backfill. The OAuth callback service
// hits this after a user connects their account.
func (s *Server) handleTriggerBackfill(w http.ResponseWriter, r *http.Request) {
	var req TriggerBackfillRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}
	if req.UserID == "" {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "userId is required", nil)
		return
	}

	result, err := s.scheduler.EnqueueBackfill(r.Context(), req.UserID, types.TriggerOAuthConnect, req.Force)
	if err != nil {
		respondCategorizedError(w, err)
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"jobId":    result.Job.JobID,
		"status":   string(result.Job.Status),
		"enqueued": result.Enqueued,
	})
}

// handleRetryBackfill handles POST /api/onboarding/vips/retry-backfill
func (s *Server) handleRetryBackfill(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	result, err := s.scheduler.EnqueueBackfill(r.Context(), userID, types.TriggerManualRetry, false)
	if err != nil {
		respondCategorizedError(w, err)
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"jobId":    result.Job.JobID,
		"status":   string(result.Job.Status),
		"enqueued": result.Enqueued,
	})
}

// OnboardingStatusResponse is the wire representation of backfill progress
type OnboardingStatusResponse struct {
	Status        string     `json:"status"`
	JobID         string     `json:"jobId,omitempty"`
	TriggerReason string     `json:"triggerReason,omitempty"`
	CreatedAt     *time.Time `json:"createdAt,omitempty"`
	StartedAt     *time.Time `json:"startedAt,omitempty"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
	ErrorCategory string     `json:"errorCategory,omitempty"`
	CanRetry      bool       `json:"canRetry"`
	BackfillReady bool       `json:"backfillReady"`
}

// handleOnboardingStatus handles GET /api/onboarding/vips/status. backfillReady
// distinguishes "no data yet" from an empty candidate list: it is true as
// soon as any aggregated contact rows exist, even if the latest job failed.
func (s *Server) handleOnboardingStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	latest, err := s.jobs.GetLatestForUser(r.Context(), userID)
	if err != nil {
		respondCategorizedError(w, err)
		return
	}

	contactCount, err := s.contacts.CountByUser(r.Context(), userID)
	if err != nil {
		respondCategorizedError(w, err)
		return
	}

	if latest == nil {
		respondJSON(w, http.StatusOK, OnboardingStatusResponse{
			Status:        "none",
			BackfillReady: contactCount > 0,
		})
		return
	}

	resp := OnboardingStatusResponse{
		Status:        string(latest.Status),
		JobID:         latest.JobID,
		TriggerReason: string(latest.TriggerReason),
		CreatedAt:     &latest.CreatedAt,
		StartedAt:     latest.StartedAt,
		CompletedAt:   latest.CompletedAt,
		BackfillReady: contactCount > 0,
	}
	if latest.ErrorMessage != nil {
		resp.ErrorCategory = *latest.ErrorMessage
	}
	if latest.Status == types.JobStatusFailed {
		// RetryCount holds the failed-attempt count at schedule time, so this
		// job's own failure brings the total to RetryCount+1
		resp.CanRetry = latest.RetryCount+1 < s.config.BackfillMaxRetries
	}

	respondJSON(w, http.StatusOK, resp)
}
