package storage

import (
	"context"
	"fmt"

	apperrors "github.com/contact-ranker/internal/errors"
	"github.com/contact-ranker/internal/models"
	"github.com/jackc/pgx/v5"
)

// MetadataRepository handles email and calendar metadata persistence.
// Rows never carry message bodies, subjects, or raw addresses.
type MetadataRepository struct {
	db *PostgresDB
}

// NewMetadataRepository creates a new metadata repository
func NewMetadataRepository(db *PostgresDB) *MetadataRepository {
	return &MetadataRepository{db: db}
}

// ReplaceEmailWindow atomically replaces a user's email metadata with a fresh
// collection. Pruning and inserting in one transaction keeps re-runs of the
// same backfill idempotent.
func (r *MetadataRepository) ReplaceEmailWindow(ctx context.Context, userID string, rows []models.EmailMetadataRow) error {
	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return apperrors.NewDatabaseError("begin email metadata transaction", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM email_metadata WHERE user_id = $1`, userID); err != nil {
		return apperrors.NewDatabaseError("prune email metadata", err)
	}

	if len(rows) > 0 {
		batch := &pgx.Batch{}
		query := `
			INSERT INTO email_metadata (
				user_id, message_id, contact_hash, email_domain, shared_inbox,
				direction, occurred_at, thread_hash, is_reply, is_starred, is_important
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (user_id, message_id, contact_hash) DO NOTHING
		`
		for _, row := range rows {
			batch.Queue(query,
				row.UserID,
				row.MessageID,
				row.ContactHash,
				row.EmailDomain,
				row.SharedInbox,
				row.Direction,
				row.OccurredAt,
				row.ThreadHash,
				row.IsReply,
				row.IsStarred,
				row.IsImportant,
			)
		}

		results := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			if _, err := results.Exec(); err != nil {
				_ = results.Close()
				return apperrors.NewDatabaseError("insert email metadata", err)
			}
		}
		if err := results.Close(); err != nil {
			return apperrors.NewDatabaseError("flush email metadata batch", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return apperrors.NewDatabaseError("commit email metadata", err)
	}

	return nil
}

// ReplaceEventWindow atomically replaces a user's calendar metadata
func (r *MetadataRepository) ReplaceEventWindow(ctx context.Context, userID string, rows []models.EventMetadataRow) error {
	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return apperrors.NewDatabaseError("begin event metadata transaction", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM event_metadata WHERE user_id = $1`, userID); err != nil {
		return apperrors.NewDatabaseError("prune event metadata", err)
	}

	if len(rows) > 0 {
		batch := &pgx.Batch{}
		query := `
			INSERT INTO event_metadata (
				user_id, event_id, contact_hash, email_domain, shared_inbox,
				occurred_at, duration_minutes, is_recurring, attendee_count,
				organized_by_contact
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (user_id, event_id, contact_hash) DO NOTHING
		`
		for _, row := range rows {
			batch.Queue(query,
				row.UserID,
				row.EventID,
				row.ContactHash,
				row.EmailDomain,
				row.SharedInbox,
				row.OccurredAt,
				row.DurationMinutes,
				row.IsRecurring,
				row.AttendeeCount,
				row.OrganizedByContact,
			)
		}

		results := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			if _, err := results.Exec(); err != nil {
				_ = results.Close()
				return apperrors.NewDatabaseError("insert event metadata", err)
			}
		}
		if err := results.Close(); err != nil {
			return apperrors.NewDatabaseError("flush event metadata batch", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return apperrors.NewDatabaseError("commit event metadata", err)
	}

	return nil
}

// GetEmailRows retrieves all stored email metadata for a user
func (r *MetadataRepository) GetEmailRows(ctx context.Context, userID string) ([]models.EmailMetadataRow, error) {
	query := `
		SELECT user_id, message_id, contact_hash, email_domain, shared_inbox,
			   direction, occurred_at, thread_hash, is_reply, is_starred, is_important
		FROM email_metadata
		WHERE user_id = $1
		ORDER BY occurred_at ASC
	`

	rows, err := r.db.Pool().Query(ctx, query, userID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("get email metadata", err)
	}
	defer rows.Close()

	var result []models.EmailMetadataRow
	for rows.Next() {
		var row models.EmailMetadataRow
		if err := rows.Scan(
			&row.UserID,
			&row.MessageID,
			&row.ContactHash,
			&row.EmailDomain,
			&row.SharedInbox,
			&row.Direction,
			&row.OccurredAt,
			&row.ThreadHash,
			&row.IsReply,
			&row.IsStarred,
			&row.IsImportant,
		); err != nil {
			return nil, apperrors.NewDatabaseError("scan email metadata", err)
		}
		result = append(result, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate email metadata: %w", err)
	}

	return result, nil
}

// GetEventRows retrieves all stored calendar metadata for a user
func (r *MetadataRepository) GetEventRows(ctx context.Context, userID string) ([]models.EventMetadataRow, error) {
	query := `
		SELECT user_id, event_id, contact_hash, email_domain, shared_inbox,
			   occurred_at, duration_minutes, is_recurring, attendee_count,
			   organized_by_contact
		FROM event_metadata
		WHERE user_id = $1
		ORDER BY occurred_at ASC
	`

	rows, err := r.db.Pool().Query(ctx, query, userID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("get event metadata", err)
	}
	defer rows.Close()

	var result []models.EventMetadataRow
	for rows.Next() {
		var row models.EventMetadataRow
		if err := rows.Scan(
			&row.UserID,
			&row.EventID,
			&row.ContactHash,
			&row.EmailDomain,
			&row.SharedInbox,
			&row.OccurredAt,
			&row.DurationMinutes,
			&row.IsRecurring,
			&row.AttendeeCount,
			&row.OrganizedByContact,
		); err != nil {
			return nil, apperrors.NewDatabaseError("scan event metadata", err)
		}
		result = append(result, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate event metadata: %w", err)
	}

	return result, nil
}

// CountUniqueEmailContacts counts distinct contact hashes in a user's stored
// email metadata. The worker uses this to decide whether to extend the
// lookback window.
func (r *MetadataRepository) CountUniqueEmailContacts(ctx context.Context, userID string) (int, error) {
	query := `SELECT COUNT(DISTINCT contact_hash) FROM email_metadata WHERE user_id = $1`

	var count int
	if err := r.db.Pool().QueryRow(ctx, query, userID).Scan(&count); err != nil {
		return 0, apperrors.NewDatabaseError("count unique email contacts", err)
	}

	return count, nil
}
