package models

import (
	"time"

	"github.com/google/uuid"
)

// Message is a persisted chat message. Identity and timestamp are assigned
// by the store at insert time and never mutated afterwards.
type Message struct {
	ID        uuid.UUID `db:"id" json:"id"`
	ThreadID  uuid.UUID `db:"thread_id" json:"thread_id"`
	UserID    uuid.UUID `db:"user_id" json:"user_id"`
	Message   string    `db:"message" json:"message"`
	Timestamp time.Time `db:"timestamp" json:"timestamp"`
}
