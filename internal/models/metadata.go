// Package models provides data models for the contact ranker system.
package models

import (
	"time"

	"github.com/contact-ranker/internal/types"
)

// EmailMetadataRow represents one observed message/counterpart pair inside the
// active lookback window. Only the salted hash of the counterpart address is
// stored; no subject or body ever reaches this struct.
type EmailMetadataRow struct {
	UserID      string          `json:"userId" db:"user_id"`
	MessageID   string          `json:"messageId" db:"message_id"`
	ContactHash string          `json:"contactHash" db:"contact_hash"`
	EmailDomain string          `json:"emailDomain" db:"email_domain"`
	SharedInbox bool            `json:"sharedInbox" db:"shared_inbox"`
	Direction   types.Direction `json:"direction" db:"direction"`
	OccurredAt  time.Time       `json:"occurredAt" db:"occurred_at"`
	ThreadHash  string          `json:"threadHash" db:"thread_hash"`
	IsReply     bool            `json:"isReply" db:"is_reply"`
	IsStarred   bool            `json:"isStarred" db:"is_starred"`
	IsImportant bool            `json:"isImportant" db:"is_important"`
}

// EventMetadataRow represents one event/attendee pair inside the active
// calendar window (trailing plus a short lookahead for upcoming meetings).
type EventMetadataRow struct {
	UserID             string    `json:"userId" db:"user_id"`
	EventID            string    `json:"eventId" db:"event_id"`
	ContactHash        string    `json:"contactHash" db:"contact_hash"`
	EmailDomain        string    `json:"emailDomain" db:"email_domain"`
	SharedInbox        bool      `json:"sharedInbox" db:"shared_inbox"`
	OccurredAt         time.Time `json:"occurredAt" db:"occurred_at"`
	DurationMinutes    int       `json:"durationMinutes" db:"duration_minutes"`
	IsRecurring        bool      `json:"isRecurring" db:"is_recurring"`
	AttendeeCount      int       `json:"attendeeCount" db:"attendee_count"`
	OrganizedByContact bool      `json:"organizedByContact" db:"organized_by_contact"`
}
