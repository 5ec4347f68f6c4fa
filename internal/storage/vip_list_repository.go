package storage

import (
	"context"
	"fmt"

	apperrors "github.com/contact-ranker/internal/errors"
	"github.com/contact-ranker/internal/models"
)

// VipListRepository handles the user's confirmed VIP selection
type VipListRepository struct {
	db *PostgresDB
}

// NewVipListRepository creates a new VIP list repository
func NewVipListRepository(db *PostgresDB) *VipListRepository {
	return &VipListRepository{db: db}
}

// ReplaceSelection atomically replaces a user's VIP list with the given
// contact hashes, ranked in submission order starting at 1. A failed insert
// rolls back the delete, so readers never observe an empty list mid-save.
func (r *VipListRepository) ReplaceSelection(ctx context.Context, userID string, contactHashes []string) error {
	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return apperrors.NewDatabaseError("begin vip selection", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM vip_list WHERE user_id = $1`, userID); err != nil {
		return apperrors.NewDatabaseError("clear vip selection", err)
	}

	query := `
		INSERT INTO vip_list (user_id, contact_hash, rank, selected_at)
		VALUES ($1, $2, $3, NOW())
	`
	for i, hash := range contactHashes {
		if _, err := tx.Exec(ctx, query, userID, hash, i+1); err != nil {
			return apperrors.NewDatabaseError("insert vip selection", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return apperrors.NewDatabaseError("commit vip selection", err)
	}

	return nil
}

// ListByUser retrieves a user's VIP list ordered by rank
func (r *VipListRepository) ListByUser(ctx context.Context, userID string) ([]models.VipListEntry, error) {
	query := `
		SELECT user_id, contact_hash, rank, selected_at
		FROM vip_list
		WHERE user_id = $1
		ORDER BY rank ASC
	`

	rows, err := r.db.Pool().Query(ctx, query, userID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list vip selection", err)
	}
	defer rows.Close()

	var entries []models.VipListEntry
	for rows.Next() {
		var entry models.VipListEntry
		if err := rows.Scan(&entry.UserID, &entry.ContactHash, &entry.Rank, &entry.SelectedAt); err != nil {
			return nil, apperrors.NewDatabaseError("scan vip selection", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate vip selection: %w", err)
	}

	return entries, nil
}

// CountByUser counts a user's selected VIPs
func (r *VipListRepository) CountByUser(ctx context.Context, userID string) (int, error) {
	query := `SELECT COUNT(*) FROM vip_list WHERE user_id = $1`

	var count int
	if err := r.db.Pool().QueryRow(ctx, query, userID).Scan(&count); err != nil {
		return 0, apperrors.NewDatabaseError("count vip selection", err)
	}

	return count, nil
}
