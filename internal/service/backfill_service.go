// Package service implements the backfill, aggregation, and scoring stages of
// the contact ranking pipeline.
package service

import (
	"context"
	"time"

	"github.com/contact-ranker/internal/adapter"
	"github.com/contact-ranker/internal/config"
	apperrors "github.com/contact-ranker/internal/errors"
	"github.com/contact-ranker/internal/hashing"
	"github.com/contact-ranker/internal/logging"
	"github.com/contact-ranker/internal/models"
	"github.com/contact-ranker/internal/retry"
	"github.com/contact-ranker/internal/types"
)

// MetadataStore is the metadata persistence surface the backfill service needs
type MetadataStore interface {
	ReplaceEmailWindow(ctx context.Context, userID string, rows []models.EmailMetadataRow) error
	ReplaceEventWindow(ctx context.Context, userID string, rows []models.EventMetadataRow) error
	CountUniqueEmailContacts(ctx context.Context, userID string) (int, error)
}

// BackfillResult summarizes one collection run
type BackfillResult struct {
	EmailRows        int
	EventRows        int
	UniqueContacts   int
	ExtendedLookback bool
	// SkippedSources lists sources the user's token could not reach. A run
	// with skipped sources still succeeds on whatever was reachable.
	SkippedSources []types.Source
}

// BackfillService collects email and calendar metadata for a user. Raw
// counterpart addresses are hashed in the same scope that receives them and
// never cross the storage boundary.
type BackfillService struct {
	emails   adapter.EmailSource
	calendar adapter.CalendarSource
	store    MetadataStore
	hasher   *hashing.Hasher
	cfg      *config.BackfillConfig
	logger   *logging.Logger
	now      func() time.Time
	retryCfg *retry.Config
}

// NewBackfillService creates a backfill service
func NewBackfillService(
	emails adapter.EmailSource,
	calendar adapter.CalendarSource,
	store MetadataStore,
	hasher *hashing.Hasher,
	cfg *config.BackfillConfig,
	logger *logging.Logger,
) *BackfillService {
	return &BackfillService{
		emails:   emails,
		calendar: calendar,
		store:    store,
		hasher:   hasher,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		retryCfg: retry.DefaultConfig(),
	}
}

// Run collects metadata for a user and replaces the stored windows. A source
// the token cannot reach is skipped and reported in the result; any other
// source failure aborts the run.
func (s *BackfillService) Run(ctx context.Context, userID string) (*BackfillResult, error) {
	now := s.now().UTC()
	result := &BackfillResult{}
	log := s.logger.WithField("user_id", userID)

	emailWindow := types.Window{
		Start: now.AddDate(0, 0, -s.cfg.EmailLookbackDays),
		End:   now,
	}

	emailRows, skipped, err := s.collectEmail(ctx, userID, emailWindow)
	if err != nil {
		return nil, err
	}
	if skipped {
		result.SkippedSources = append(result.SkippedSources, types.SourceEmail)
		log.Warn("Email scope missing, skipping email collection")
	} else {
		if err := s.store.ReplaceEmailWindow(ctx, userID, emailRows); err != nil {
			return nil, err
		}
		result.EmailRows = len(emailRows)

		unique, err := s.store.CountUniqueEmailContacts(ctx, userID)
		if err != nil {
			return nil, err
		}
		if unique < s.cfg.MinContactThreshold {
			log.WithFields(map[string]interface{}{
				"unique_contacts": unique,
				"threshold":       s.cfg.MinContactThreshold,
			}).Info("Sparse inbox, extending email lookback")

			extendedWindow := types.Window{
				Start: now.AddDate(0, 0, -s.cfg.ExtendedLookbackDays),
				End:   now,
			}
			extendedRows, extendedSkipped, err := s.collectEmail(ctx, userID, extendedWindow)
			if err != nil {
				return nil, err
			}
			if !extendedSkipped {
				if err := s.store.ReplaceEmailWindow(ctx, userID, extendedRows); err != nil {
					return nil, err
				}
				result.EmailRows = len(extendedRows)
				result.ExtendedLookback = true
			}
		}

		unique, err = s.store.CountUniqueEmailContacts(ctx, userID)
		if err != nil {
			return nil, err
		}
		result.UniqueContacts = unique
	}

	// The calendar lookback tracks the email expansion so both sources cover
	// the same history for a sparse inbox
	calendarLookback := s.cfg.EmailLookbackDays
	if result.ExtendedLookback {
		calendarLookback = s.cfg.ExtendedLookbackDays
	}
	calendarWindow := types.Window{
		Start: now.AddDate(0, 0, -calendarLookback),
		End:   now.AddDate(0, 0, s.cfg.CalendarLookaheadDays),
	}

	eventRows, skipped, err := s.collectEvents(ctx, userID, calendarWindow)
	if err != nil {
		return nil, err
	}
	if skipped {
		result.SkippedSources = append(result.SkippedSources, types.SourceCalendar)
		log.Warn("Calendar scope missing, skipping calendar collection")
	} else {
		if err := s.store.ReplaceEventWindow(ctx, userID, eventRows); err != nil {
			return nil, err
		}
		result.EventRows = len(eventRows)
	}

	log.WithFields(map[string]interface{}{
		"email_rows":        result.EmailRows,
		"event_rows":        result.EventRows,
		"unique_contacts":   result.UniqueContacts,
		"extended_lookback": result.ExtendedLookback,
		"skipped_sources":   len(result.SkippedSources),
	}).Info("Backfill collection finished")

	return result, nil
}

// collectEmail fetches and normalizes email metadata. The raw counterpart
// address in each record is hashed here and goes no further.
func (s *BackfillService) collectEmail(ctx context.Context, userID string, window types.Window) ([]models.EmailMetadataRow, bool, error) {
	var records []adapter.EmailRecord
	err := retry.Do(ctx, s.retryCfg, func(ctx context.Context, attempt int) error {
		var fetchErr error
		records, fetchErr = s.emails.FetchEmail(ctx, userID, window)
		return fetchErr
	})
	if err != nil {
		if apperrors.IsScopeMissing(err) {
			return nil, true, nil
		}
		return nil, false, err
	}

	rows := make([]models.EmailMetadataRow, 0, len(records))
	for _, rec := range records {
		address := hashing.NormalizeEmail(rec.Address)
		if address == "" {
			continue
		}
		rows = append(rows, models.EmailMetadataRow{
			UserID:      userID,
			MessageID:   s.hasher.HashMessage(rec.MessageID),
			ContactHash: s.hasher.HashEmail(address),
			EmailDomain: hashing.EmailDomain(address),
			SharedInbox: hashing.IsSharedInbox(address),
			Direction:   rec.Direction,
			OccurredAt:  time.Unix(rec.OccurredAt, 0).UTC(),
			ThreadHash:  s.hasher.HashThread(rec.ThreadID),
			IsReply:     rec.IsReply,
			IsStarred:   rec.IsStarred,
			IsImportant: rec.IsImportant,
		})
	}

	return rows, false, nil
}

// collectEvents fetches and normalizes calendar metadata, expanding each event
// into one row per attendee.
func (s *BackfillService) collectEvents(ctx context.Context, userID string, window types.Window) ([]models.EventMetadataRow, bool, error) {
	var records []adapter.EventRecord
	err := retry.Do(ctx, s.retryCfg, func(ctx context.Context, attempt int) error {
		var fetchErr error
		records, fetchErr = s.calendar.FetchEvents(ctx, userID, window)
		return fetchErr
	})
	if err != nil {
		if apperrors.IsScopeMissing(err) {
			return nil, true, nil
		}
		return nil, false, err
	}

	var rows []models.EventMetadataRow
	for _, rec := range records {
		organizer := hashing.NormalizeEmail(rec.OrganizerEmail)
		attendeeCount := len(rec.AttendeeEmails)
		for _, raw := range rec.AttendeeEmails {
			address := hashing.NormalizeEmail(raw)
			if address == "" {
				continue
			}
			rows = append(rows, models.EventMetadataRow{
				UserID:             userID,
				EventID:            s.hasher.HashMessage(rec.EventID),
				ContactHash:        s.hasher.HashEmail(address),
				EmailDomain:        hashing.EmailDomain(address),
				SharedInbox:        hashing.IsSharedInbox(address),
				OccurredAt:         time.Unix(rec.StartAt, 0).UTC(),
				DurationMinutes:    rec.DurationMinutes,
				IsRecurring:        rec.IsRecurring,
				AttendeeCount:      attendeeCount,
				OrganizedByContact: !rec.UserIsOrganizer && address == organizer,
			})
		}
	}

	return rows, false, nil
}
