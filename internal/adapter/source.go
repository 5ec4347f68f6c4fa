// Package adapter defines the metadata source boundary of the backfill
// pipeline. The Gmail/Calendar API clients themselves live outside this
// repository; implementations of MetadataSource return normalized records
// with raw counterpart addresses that the backfill service hashes and
// discards immediately.
package adapter

import (
	"context"

	"github.com/contact-ranker/internal/types"
)

// EmailRecord is a normalized email metadata record as returned by the email
// source. Address is the raw counterpart address and exists only until the
// backfill service hashes it within the same call scope.
type EmailRecord struct {
	MessageID   string          `json:"messageId"`
	ThreadID    string          `json:"threadId"`
	Address     string          `json:"address"`
	Direction   types.Direction `json:"direction"`
	OccurredAt  int64           `json:"occurredAt"` // unix seconds
	IsReply     bool            `json:"isReply"`
	IsStarred   bool            `json:"isStarred"`
	IsImportant bool            `json:"isImportant"`
}

// EventRecord is a normalized calendar event/attendee record. AttendeeEmails
// holds raw counterpart addresses, the user's own address excluded, with the
// same lifetime contract as EmailRecord.Address.
type EventRecord struct {
	EventID         string   `json:"eventId"`
	StartAt         int64    `json:"startAt"` // unix seconds
	DurationMinutes int      `json:"durationMinutes"`
	IsRecurring     bool     `json:"isRecurring"`
	AttendeeEmails  []string `json:"attendeeEmails"`
	OrganizerEmail  string   `json:"organizerEmail"`
	UserIsOrganizer bool     `json:"userIsOrganizer"`
}

// EmailSource produces email metadata for a user within a time window
type EmailSource interface {
	// FetchEmail returns email metadata records within the window.
	// Returns a scope-missing error when the user's token lacks email access;
	// any other error is a hard source failure.
	FetchEmail(ctx context.Context, userID string, window types.Window) ([]EmailRecord, error)
}

// CalendarSource produces calendar event metadata for a user within a time window
type CalendarSource interface {
	// FetchEvents returns event metadata records whose start time falls
	// within the window. Error semantics match EmailSource.FetchEmail.
	FetchEvents(ctx context.Context, userID string, window types.Window) ([]EventRecord, error)
}
