// Package types provides common type definitions for the contact ranking system.
package types

import "time"

// JobStatus represents the lifecycle status of a backfill job
type JobStatus string

const (
	// JobStatusPending represents a job waiting to be processed
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning represents a job currently being processed
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted represents a successfully completed job
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed represents a failed job
	JobStatusFailed JobStatus = "failed"
)

// IsTerminal reports whether the status is a terminal state
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Direction represents whether an email was received or sent by the user
type Direction string

const (
	// DirectionIn represents an inbound email (contact is the sender)
	DirectionIn Direction = "in"
	// DirectionOut represents an outbound email (contact is the recipient)
	DirectionOut Direction = "out"
)

// Source identifies which metadata source produced a record
type Source string

const (
	// SourceEmail represents the email metadata source
	SourceEmail Source = "email"
	// SourceCalendar represents the calendar metadata source
	SourceCalendar Source = "calendar"
)

// TriggerReason records why a backfill job was enqueued
type TriggerReason string

const (
	// TriggerOAuthConnect represents a job enqueued after a successful OAuth connection
	TriggerOAuthConnect TriggerReason = "oauth_connect"
	// TriggerManualRetry represents a job enqueued by an explicit user retry
	TriggerManualRetry TriggerReason = "manual_retry"
	// TriggerScheduled represents a job enqueued by a periodic refresh
	TriggerScheduled TriggerReason = "scheduled"
)

// Window represents a half-open time range [Start, End) used for metadata collection
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls within the window
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}
