package service

import (
	"context"
	"math"
	"sort"

	"github.com/contact-ranker/internal/config"
	apperrors "github.com/contact-ranker/internal/errors"
	"github.com/contact-ranker/internal/hashing"
	"github.com/contact-ranker/internal/logging"
	"github.com/contact-ranker/internal/models"
	"github.com/contact-ranker/internal/storage"
)

// Composite score weights. The score is a pure function of stored contact
// stats, so ranking the same stats twice always yields the same order.
const (
	weightBucket7d     = 1.0
	weightBucket8To30  = 0.5
	weightBucket31To90 = 0.2

	weightMeetings  = 2.0
	weightReplyRate = 5.0
	weightThreads   = 0.5
	weightRecurring = 1.0

	sharedInboxPenalty = 0.85
	manualAddedBoost   = 1.25
)

// ContactStore is the contact persistence surface the scoring service needs
type ContactStore interface {
	ListByUser(ctx context.Context, userID string) ([]*models.Contact, error)
	UpdateScores(ctx context.Context, userID string, updates []storage.ScoreUpdate) error
	EnsureManualContact(ctx context.Context, userID string, contactHash string, emailDomain string, sharedInbox bool) error
	FilterExistingHashes(ctx context.Context, userID string, hashes []string) (map[string]bool, error)
}

// VipListStore is the VIP selection persistence surface
type VipListStore interface {
	ReplaceSelection(ctx context.Context, userID string, contactHashes []string) error
	ListByUser(ctx context.Context, userID string) ([]models.VipListEntry, error)
}

// RankedContact pairs a contact with its computed score for presentation
type RankedContact struct {
	Contact *models.Contact
	Score   float64
	Rank    int
}

// ScoringService ranks contacts and manages the user's VIP selection
type ScoringService struct {
	contacts ContactStore
	vipList  VipListStore
	hasher   *hashing.Hasher
	cfg      *config.ScoringConfig
	logger   *logging.Logger
}

// NewScoringService creates a scoring service
func NewScoringService(contacts ContactStore, vipList VipListStore, hasher *hashing.Hasher, cfg *config.ScoringConfig, logger *logging.Logger) *ScoringService {
	return &ScoringService{
		contacts: contacts,
		vipList:  vipList,
		hasher:   hasher,
		cfg:      cfg,
		logger:   logger,
	}
}

// Score computes a contact's composite score from its stored stats alone.
// Contacts with no signal at all score 0.
func Score(c *models.Contact) float64 {
	emailScore := weightBucket7d*float64(c.EmailCount7d) +
		weightBucket8To30*float64(c.EmailCount8To30) +
		weightBucket31To90*float64(c.EmailCount31To90)

	score := emailScore +
		weightMeetings*c.WeightedMeetingScore +
		weightReplyRate*c.ReplyRate +
		weightThreads*float64(c.ThreadCount) +
		weightRecurring*float64(c.RecurringMeetingCount)

	if c.IsSharedInbox {
		score *= sharedInboxPenalty
	}
	if c.ManualAdded {
		score *= manualAddedBoost
	}

	// Round to keep persisted scores stable across float formatting
	return math.Round(score*10000) / 10000
}

// Confidence grades how many independent signal types back a contact's score
func Confidence(c *models.Contact) float64 {
	signals := 0
	if c.TotalEmailCount() > 0 {
		signals++
	}
	if c.MeetingCount > 0 {
		signals++
	}
	if c.ReplyRate > 0 {
		signals++
	}
	if c.ThreadCount > 1 {
		signals++
	}
	return float64(signals) * 0.25
}

// ListVips recomputes scores for all of a user's contacts, persists them, and
// returns the top candidates. limit falls back to the configured default and
// is rejected above the configured maximum. Contacts with zero score are
// excluded unless manually added.
func (s *ScoringService) ListVips(ctx context.Context, userID string, limit int) ([]RankedContact, error) {
	if limit == 0 {
		limit = s.cfg.DefaultLimit
	}
	if limit < 0 || limit > s.cfg.MaxLimit {
		return nil, apperrors.NewInvalidParameterError("limit", "must be between 1 and 100")
	}

	contacts, err := s.contacts.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	ranked := RankContacts(contacts)

	updates := make([]storage.ScoreUpdate, 0, len(ranked))
	for _, rc := range ranked {
		updates = append(updates, storage.ScoreUpdate{
			ContactHash:     rc.Contact.ContactHash,
			VipScore:        rc.Score,
			ConfidenceScore: Confidence(rc.Contact),
		})
	}
	if err := s.contacts.UpdateScores(ctx, userID, updates); err != nil {
		return nil, err
	}

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	return ranked, nil
}

// Excluded reports whether a contact is filtered out of ranking entirely.
// Single-touch contacts and one-way senders (newsletters, notification
// addresses) never surface as candidates; a manual add overrides both rules.
func Excluded(c *models.Contact) bool {
	if c.ManualAdded {
		return false
	}
	if c.TotalEmailCount()+c.MeetingCount < 2 {
		return true
	}
	if c.InboundCount >= 5 && c.OutboundCount == 0 && c.MeetingCount == 0 {
		return true
	}
	if c.InboundCount >= 10 && c.ReplyRate < 0.1 &&
		float64(c.OutboundCount)/float64(c.InboundCount) < 0.1 {
		return true
	}
	return false
}

// RankContacts scores and orders contacts deterministically: score descending,
// then most recent activity bucket, then contact hash. Excluded and zero-score
// contacts are dropped unless manually added.
func RankContacts(contacts []*models.Contact) []RankedContact {
	ranked := make([]RankedContact, 0, len(contacts))
	for _, c := range contacts {
		if Excluded(c) {
			continue
		}
		score := Score(c)
		if score == 0 && !c.ManualAdded {
			continue
		}
		ranked = append(ranked, RankedContact{Contact: c, Score: score})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		bi, bj := ranked[i].Contact.MostRecentBucket(), ranked[j].Contact.MostRecentBucket()
		if bi != bj {
			return bi < bj
		}
		return ranked[i].Contact.ContactHash < ranked[j].Contact.ContactHash
	})

	for i := range ranked {
		ranked[i].Rank = i + 1
	}

	return ranked
}

// SaveSelection replaces the user's VIP list with the given contact hashes,
// ranked in submission order. The whole batch is rejected when any hash is
// unknown, duplicated, or the count falls outside 1..MaxSelection.
func (s *ScoringService) SaveSelection(ctx context.Context, userID string, contactHashes []string) error {
	if len(contactHashes) == 0 {
		return apperrors.NewValidationError("selection must contain at least one contact")
	}
	if len(contactHashes) > s.cfg.MaxSelection {
		return apperrors.NewValidationError("selection exceeds the maximum of 20 contacts")
	}

	seen := make(map[string]bool, len(contactHashes))
	for _, hash := range contactHashes {
		if hash == "" {
			return apperrors.NewValidationError("selection contains an empty contact hash")
		}
		if seen[hash] {
			return apperrors.NewValidationError("selection contains duplicate contact hashes")
		}
		seen[hash] = true
	}

	existing, err := s.contacts.FilterExistingHashes(ctx, userID, contactHashes)
	if err != nil {
		return err
	}
	for _, hash := range contactHashes {
		if !existing[hash] {
			return apperrors.NewValidationError("selection references an unknown contact")
		}
	}

	if err := s.vipList.ReplaceSelection(ctx, userID, contactHashes); err != nil {
		return err
	}

	s.logger.WithFields(map[string]interface{}{
		"user_id": userID,
		"count":   len(contactHashes),
	}).Info("VIP selection saved")

	return nil
}

// GetSelection returns the user's confirmed VIP list ordered by rank
func (s *ScoringService) GetSelection(ctx context.Context, userID string) ([]models.VipListEntry, error) {
	return s.vipList.ListByUser(ctx, userID)
}

// AddManualContact registers an address the user typed in by hand. The raw
// address is hashed here and discarded; only the hash is returned.
func (s *ScoringService) AddManualContact(ctx context.Context, userID string, email string) (string, error) {
	address := hashing.NormalizeEmail(email)
	if address == "" || !hashing.LooksLikeEmail(address) {
		return "", apperrors.NewValidationError("a valid email address is required")
	}

	contactHash := s.hasher.HashEmail(address)
	emailDomain := hashing.EmailDomain(address)
	sharedInbox := hashing.IsSharedInbox(address)

	if err := s.contacts.EnsureManualContact(ctx, userID, contactHash, emailDomain, sharedInbox); err != nil {
		return "", err
	}

	s.logger.WithField("user_id", userID).Info("Manual contact added")
	return contactHash, nil
}
