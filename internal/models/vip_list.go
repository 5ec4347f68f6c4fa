package models

import "time"

// VipListEntry represents one row of the user's confirmed VIP selection.
// The full list for a user is replaced atomically; ranks run 1..n, n <= 20.
type VipListEntry struct {
	UserID      string    `json:"userId" db:"user_id"`
	ContactHash string    `json:"contactHash" db:"contact_hash"`
	Rank        int       `json:"rank" db:"rank"`
	SelectedAt  time.Time `json:"selectedAt" db:"selected_at"`
}
