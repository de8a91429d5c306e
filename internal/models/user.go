package models

import (
	"time"

	"github.com/google/uuid"
)

// User is an account that can participate in threads. Bot accounts have
// their messages produced by the auto-reply worker instead of a human.
type User struct {
	ID           uuid.UUID `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	DisplayName  string    `db:"display_name" json:"display_name"`
	PasswordHash string    `db:"password_hash" json:"-"`
	IsBot        bool      `db:"is_bot" json:"is_bot"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// UserSummary is the sender shape embedded in outbound payloads.
type UserSummary struct {
	ID          uuid.UUID `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	IsBot       bool      `json:"is_bot"`
}

// Summary projects a User into its wire representation.
func (u User) Summary() UserSummary {
	return UserSummary{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		IsBot:       u.IsBot,
	}
}
