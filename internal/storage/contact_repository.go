package storage

import (
	"context"
	"fmt"

	apperrors "github.com/contact-ranker/internal/errors"
	"github.com/contact-ranker/internal/models"
	"github.com/jackc/pgx/v5"
)

// ContactRepository handles aggregated contact statistics persistence
type ContactRepository struct {
	db *PostgresDB
}

// NewContactRepository creates a new contact repository
func NewContactRepository(db *PostgresDB) *ContactRepository {
	return &ContactRepository{db: db}
}

const contactColumns = `
	user_id, contact_hash, email_domain, is_shared_inbox,
	email_count_7d, email_count_8_30d, email_count_31_90d,
	inbound_count, outbound_count, thread_count, reply_rate,
	meeting_count, weighted_meeting_score, recurring_meeting_count,
	last_contact_at, vip_score, confidence_score, manual_added, updated_at
`

func scanContact(row pgx.Row) (*models.Contact, error) {
	var c models.Contact
	err := row.Scan(
		&c.UserID,
		&c.ContactHash,
		&c.EmailDomain,
		&c.IsSharedInbox,
		&c.EmailCount7d,
		&c.EmailCount8To30,
		&c.EmailCount31To90,
		&c.InboundCount,
		&c.OutboundCount,
		&c.ThreadCount,
		&c.ReplyRate,
		&c.MeetingCount,
		&c.WeightedMeetingScore,
		&c.RecurringMeetingCount,
		&c.LastContactAt,
		&c.VipScore,
		&c.ConfidenceScore,
		&c.ManualAdded,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// UpsertAggregates writes recomputed stats for a batch of contacts. Existing
// manual_added flags and scores survive the upsert: aggregation owns the stat
// columns, scoring owns vip_score and confidence_score.
func (r *ContactRepository) UpsertAggregates(ctx context.Context, contacts []*models.Contact) error {
	if len(contacts) == 0 {
		return nil
	}

	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return apperrors.NewDatabaseError("begin contact upsert", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	query := `
		INSERT INTO contacts (
			user_id, contact_hash, email_domain, is_shared_inbox,
			email_count_7d, email_count_8_30d, email_count_31_90d,
			inbound_count, outbound_count, thread_count, reply_rate,
			meeting_count, weighted_meeting_score, recurring_meeting_count,
			last_contact_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, NOW())
		ON CONFLICT (user_id, contact_hash) DO UPDATE SET
			email_domain = EXCLUDED.email_domain,
			is_shared_inbox = EXCLUDED.is_shared_inbox,
			email_count_7d = EXCLUDED.email_count_7d,
			email_count_8_30d = EXCLUDED.email_count_8_30d,
			email_count_31_90d = EXCLUDED.email_count_31_90d,
			inbound_count = EXCLUDED.inbound_count,
			outbound_count = EXCLUDED.outbound_count,
			thread_count = EXCLUDED.thread_count,
			reply_rate = EXCLUDED.reply_rate,
			meeting_count = EXCLUDED.meeting_count,
			weighted_meeting_score = EXCLUDED.weighted_meeting_score,
			recurring_meeting_count = EXCLUDED.recurring_meeting_count,
			last_contact_at = EXCLUDED.last_contact_at,
			updated_at = NOW()
	`
	for _, c := range contacts {
		batch.Queue(query,
			c.UserID,
			c.ContactHash,
			c.EmailDomain,
			c.IsSharedInbox,
			c.EmailCount7d,
			c.EmailCount8To30,
			c.EmailCount31To90,
			c.InboundCount,
			c.OutboundCount,
			c.ThreadCount,
			c.ReplyRate,
			c.MeetingCount,
			c.WeightedMeetingScore,
			c.RecurringMeetingCount,
			c.LastContactAt,
		)
	}

	results := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return apperrors.NewDatabaseError("upsert contact aggregates", err)
		}
	}
	if err := results.Close(); err != nil {
		return apperrors.NewDatabaseError("flush contact upsert batch", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return apperrors.NewDatabaseError("commit contact upsert", err)
	}

	return nil
}

// ListByUser retrieves all contacts for a user
func (r *ContactRepository) ListByUser(ctx context.Context, userID string) ([]*models.Contact, error) {
	query := fmt.Sprintf(`SELECT %s FROM contacts WHERE user_id = $1 ORDER BY contact_hash ASC`, contactColumns)

	rows, err := r.db.Pool().Query(ctx, query, userID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list contacts", err)
	}
	defer rows.Close()

	var contacts []*models.Contact
	for rows.Next() {
		contact, err := scanContact(rows)
		if err != nil {
			return nil, apperrors.NewDatabaseError("scan contact", err)
		}
		contacts = append(contacts, contact)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate contacts: %w", err)
	}

	return contacts, nil
}

// GetByHash retrieves a single contact, or nil when absent
func (r *ContactRepository) GetByHash(ctx context.Context, userID string, contactHash string) (*models.Contact, error) {
	query := fmt.Sprintf(`SELECT %s FROM contacts WHERE user_id = $1 AND contact_hash = $2`, contactColumns)

	contact, err := scanContact(r.db.Pool().QueryRow(ctx, query, userID, contactHash))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, apperrors.NewDatabaseError("get contact", err)
	}

	return contact, nil
}

// CountByUser counts a user's contacts
func (r *ContactRepository) CountByUser(ctx context.Context, userID string) (int, error) {
	query := `SELECT COUNT(*) FROM contacts WHERE user_id = $1`

	var count int
	if err := r.db.Pool().QueryRow(ctx, query, userID).Scan(&count); err != nil {
		return 0, apperrors.NewDatabaseError("count contacts", err)
	}

	return count, nil
}

// ScoreUpdate carries one contact's recomputed scores
type ScoreUpdate struct {
	ContactHash     string
	VipScore        float64
	ConfidenceScore float64
}

// UpdateScores persists scoring results for a user in one transaction
func (r *ContactRepository) UpdateScores(ctx context.Context, userID string, updates []ScoreUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return apperrors.NewDatabaseError("begin score update", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	query := `
		UPDATE contacts
		SET vip_score = $3, confidence_score = $4, updated_at = NOW()
		WHERE user_id = $1 AND contact_hash = $2
	`
	for _, u := range updates {
		batch.Queue(query, userID, u.ContactHash, u.VipScore, u.ConfidenceScore)
	}

	results := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return apperrors.NewDatabaseError("update contact scores", err)
		}
	}
	if err := results.Close(); err != nil {
		return apperrors.NewDatabaseError("flush score update batch", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return apperrors.NewDatabaseError("commit score update", err)
	}

	return nil
}

// EnsureManualContact inserts a manually-added contact or flags an existing
// one as manual. Stat columns stay untouched for existing rows.
func (r *ContactRepository) EnsureManualContact(ctx context.Context, userID string, contactHash string, emailDomain string, sharedInbox bool) error {
	query := `
		INSERT INTO contacts (user_id, contact_hash, email_domain, is_shared_inbox, manual_added, updated_at)
		VALUES ($1, $2, $3, $4, TRUE, NOW())
		ON CONFLICT (user_id, contact_hash) DO UPDATE SET
			manual_added = TRUE,
			updated_at = NOW()
	`

	if _, err := r.db.Pool().Exec(ctx, query, userID, contactHash, emailDomain, sharedInbox); err != nil {
		return apperrors.NewDatabaseError("ensure manual contact", err)
	}

	return nil
}

// FilterExistingHashes returns the subset of hashes that exist as contacts for
// the user. The selection endpoint uses this to reject unknown hashes.
func (r *ContactRepository) FilterExistingHashes(ctx context.Context, userID string, hashes []string) (map[string]bool, error) {
	query := `SELECT contact_hash FROM contacts WHERE user_id = $1 AND contact_hash = ANY($2)`

	rows, err := r.db.Pool().Query(ctx, query, userID, hashes)
	if err != nil {
		return nil, apperrors.NewDatabaseError("filter contact hashes", err)
	}
	defer rows.Close()

	existing := make(map[string]bool, len(hashes))
	for rows.Next() {
		var hash string
		if err := rows.Scan(&hash); err != nil {
			return nil, apperrors.NewDatabaseError("scan contact hash", err)
		}
		existing[hash] = true
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate contact hashes: %w", err)
	}

	return existing, nil
}
