package models

import "time"

// Contact represents aggregated per-contact statistics for one
// (user_id, contact_hash) pair. Stats columns are recomputed wholesale by the
// aggregation service on every run; VipScore and ConfidenceScore are the only
// fields written by the scoring service.
type Contact struct {
	UserID                string     `json:"userId" db:"user_id"`
	ContactHash           string     `json:"contactHash" db:"contact_hash"`
	EmailDomain           string     `json:"emailDomain" db:"email_domain"`
	IsSharedInbox         bool       `json:"isSharedInbox" db:"is_shared_inbox"`
	EmailCount7d          int        `json:"emailCount7d" db:"email_count_7d"`
	EmailCount8To30       int        `json:"emailCount8To30d" db:"email_count_8_30d"`
	EmailCount31To90      int        `json:"emailCount31To90d" db:"email_count_31_90d"`
	InboundCount          int        `json:"inboundCount" db:"inbound_count"`
	OutboundCount         int        `json:"outboundCount" db:"outbound_count"`
	ThreadCount           int        `json:"threadCount" db:"thread_count"`
	ReplyRate             float64    `json:"replyRate" db:"reply_rate"`
	MeetingCount          int        `json:"meetingCount" db:"meeting_count"`
	WeightedMeetingScore  float64    `json:"weightedMeetingScore" db:"weighted_meeting_score"`
	RecurringMeetingCount int        `json:"recurringMeetingCount" db:"recurring_meeting_count"`
	LastContactAt         *time.Time `json:"lastContactAt,omitempty" db:"last_contact_at"`
	VipScore              *float64   `json:"vipScore,omitempty" db:"vip_score"`
	ConfidenceScore       float64    `json:"confidenceScore" db:"confidence_score"`
	ManualAdded           bool       `json:"manualAdded" db:"manual_added"`
	UpdatedAt             time.Time  `json:"updatedAt" db:"updated_at"`
}

// TotalEmailCount returns the sum of the recency buckets
func (c *Contact) TotalEmailCount() int {
	return c.EmailCount7d + c.EmailCount8To30 + c.EmailCount31To90
}

// MostRecentBucket returns a rank for deterministic tie-breaking: lower is
// more recent activity (0 = 7d bucket non-zero, 3 = no email activity at all).
func (c *Contact) MostRecentBucket() int {
	switch {
	case c.EmailCount7d > 0:
		return 0
	case c.EmailCount8To30 > 0:
		return 1
	case c.EmailCount31To90 > 0:
		return 2
	default:
		return 3
	}
}
