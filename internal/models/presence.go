package models

import (
	"time"

	"github.com/google/uuid"
)

// Presence is the online/last-seen record for one user. last_seen only
// advances on a transition to offline.
type Presence struct {
	UserID   uuid.UUID `db:"user_id" json:"user_id"`
	IsOnline bool      `db:"is_online" json:"is_online"`
	LastSeen time.Time `db:"last_seen" json:"last_seen"`
}
