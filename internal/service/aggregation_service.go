package service

import (
	"context"
	"sort"
	"time"

	"github.com/contact-ranker/internal/logging"
	"github.com/contact-ranker/internal/models"
	"github.com/contact-ranker/internal/types"
)

// replyWindow bounds how long after an outbound message an inbound reply in
// the same thread still counts as a response.
const replyWindow = 48 * time.Hour

// MetadataReader is the metadata read surface the aggregation service needs
type MetadataReader interface {
	GetEmailRows(ctx context.Context, userID string) ([]models.EmailMetadataRow, error)
	GetEventRows(ctx context.Context, userID string) ([]models.EventMetadataRow, error)
}

// ContactWriter is the contact persistence surface the aggregation service needs
type ContactWriter interface {
	UpsertAggregates(ctx context.Context, contacts []*models.Contact) error
}

// AggregationService folds stored metadata rows into per-contact statistics.
// It reads only hashed rows, so no raw address ever enters this stage.
type AggregationService struct {
	metadata MetadataReader
	contacts ContactWriter
	logger   *logging.Logger
	now      func() time.Time
}

// NewAggregationService creates an aggregation service
func NewAggregationService(metadata MetadataReader, contacts ContactWriter, logger *logging.Logger) *AggregationService {
	return &AggregationService{
		metadata: metadata,
		contacts: contacts,
		logger:   logger,
		now:      time.Now,
	}
}

// Aggregate recomputes contact statistics for a user from the stored metadata
// windows and upserts them wholesale. Returns the number of contacts written.
func (s *AggregationService) Aggregate(ctx context.Context, userID string) (int, error) {
	emailRows, err := s.metadata.GetEmailRows(ctx, userID)
	if err != nil {
		return 0, err
	}
	eventRows, err := s.metadata.GetEventRows(ctx, userID)
	if err != nil {
		return 0, err
	}

	contacts := BuildAggregates(userID, emailRows, eventRows, s.now().UTC())
	if len(contacts) == 0 {
		s.logger.WithField("user_id", userID).Info("No metadata to aggregate")
		return 0, nil
	}

	if err := s.contacts.UpsertAggregates(ctx, contacts); err != nil {
		return 0, err
	}

	s.logger.WithFields(map[string]interface{}{
		"user_id":  userID,
		"contacts": len(contacts),
	}).Info("Contact aggregates updated")

	return len(contacts), nil
}

// BuildAggregates folds metadata rows into per-contact stats relative to now.
// It is a pure function: same rows and same now produce the same output, in a
// deterministic order.
func BuildAggregates(userID string, emailRows []models.EmailMetadataRow, eventRows []models.EventMetadataRow, now time.Time) []*models.Contact {
	byHash := make(map[string]*models.Contact)
	threads := make(map[string]map[string]bool)

	get := func(hash, domain string, shared bool) *models.Contact {
		contact, ok := byHash[hash]
		if !ok {
			contact = &models.Contact{
				UserID:      userID,
				ContactHash: hash,
				EmailDomain: domain,
				IsSharedInbox: shared,
			}
			byHash[hash] = contact
		}
		return contact
	}

	for _, row := range emailRows {
		contact := get(row.ContactHash, row.EmailDomain, row.SharedInbox)

		age := now.Sub(row.OccurredAt)
		switch {
		case age <= 7*24*time.Hour:
			contact.EmailCount7d++
		case age <= 30*24*time.Hour:
			contact.EmailCount8To30++
		case age <= 90*24*time.Hour:
			contact.EmailCount31To90++
		}

		if row.Direction == types.DirectionIn {
			contact.InboundCount++
		} else {
			contact.OutboundCount++
		}

		if row.ThreadHash != "" {
			if threads[row.ContactHash] == nil {
				threads[row.ContactHash] = make(map[string]bool)
			}
			threads[row.ContactHash][row.ThreadHash] = true
		}

		if contact.LastContactAt == nil || row.OccurredAt.After(*contact.LastContactAt) {
			t := row.OccurredAt
			contact.LastContactAt = &t
		}
	}

	for hash, set := range threads {
		byHash[hash].ThreadCount = len(set)
	}

	replyRates := computeReplyRates(emailRows)
	for hash, rate := range replyRates {
		if contact, ok := byHash[hash]; ok {
			contact.ReplyRate = rate
		}
	}

	for _, row := range eventRows {
		contact := get(row.ContactHash, row.EmailDomain, row.SharedInbox)

		contact.MeetingCount++
		if row.IsRecurring {
			contact.RecurringMeetingCount++
		}
		contact.WeightedMeetingScore += meetingWeight(row)

		if !row.OccurredAt.After(now) {
			if contact.LastContactAt == nil || row.OccurredAt.After(*contact.LastContactAt) {
				t := row.OccurredAt
				contact.LastContactAt = &t
			}
		}
	}

	contacts := make([]*models.Contact, 0, len(byHash))
	for _, contact := range byHash {
		contacts = append(contacts, contact)
	}
	sort.Slice(contacts, func(i, j int) bool {
		return contacts[i].ContactHash < contacts[j].ContactHash
	})

	return contacts
}

// computeReplyRates returns, per contact, the fraction of the user's outbound
// messages that drew an inbound reply in the same thread within the reply
// window. Contacts with no outbound traffic from the user get rate 0.
func computeReplyRates(rows []models.EmailMetadataRow) map[string]float64 {
	// Thread rows sorted by time, per contact
	type threadKey struct {
		hash   string
		thread string
	}
	byThread := make(map[threadKey][]models.EmailMetadataRow)
	for _, row := range rows {
		if row.ThreadHash == "" {
			continue
		}
		key := threadKey{hash: row.ContactHash, thread: row.ThreadHash}
		byThread[key] = append(byThread[key], row)
	}

	outbound := make(map[string]int)
	replied := make(map[string]int)
	for key, threadRows := range byThread {
		sort.Slice(threadRows, func(i, j int) bool {
			return threadRows[i].OccurredAt.Before(threadRows[j].OccurredAt)
		})
		for i, row := range threadRows {
			if row.Direction != types.DirectionOut {
				continue
			}
			outbound[key.hash]++
			for _, later := range threadRows[i+1:] {
				if later.OccurredAt.Sub(row.OccurredAt) > replyWindow {
					break
				}
				if later.Direction == types.DirectionIn && later.IsReply {
					replied[key.hash]++
					break
				}
			}
		}
	}

	rates := make(map[string]float64, len(outbound))
	for hash, out := range outbound {
		rates[hash] = float64(replied[hash]) / float64(out)
	}
	return rates
}

// meetingWeight scores one event/attendee row. Small meetings signal a closer
// relationship than large ones, longer meetings more than short ones, and a
// recurring series more than a one-off.
func meetingWeight(row models.EventMetadataRow) float64 {
	var base float64
	switch {
	case row.AttendeeCount <= 2:
		base = 1.0
	case row.AttendeeCount == 3:
		base = 0.7
	case row.AttendeeCount <= 5:
		base = 0.4
	case row.AttendeeCount <= 10:
		base = 0.2
	default:
		base = 0.05
	}

	var duration float64
	switch {
	case row.DurationMinutes < 15:
		duration = 0.5
	case row.DurationMinutes <= 45:
		duration = 1.0
	case row.DurationMinutes <= 90:
		duration = 1.25
	default:
		duration = 1.5
	}

	weight := base * duration
	if row.IsRecurring {
		weight *= 1.1
	}
	return weight
}
