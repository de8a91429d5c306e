package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"chat-backend/internal/models"
)

var ErrPresenceNotFound = errors.New("presence not found")

// PresenceRepository abstracts presence persistence. Rows are mutated
// exclusively by the presence tracker.
type PresenceRepository interface {
	EnsurePresence(ctx context.Context, userID uuid.UUID) error
	SetOnline(ctx context.Context, userID uuid.UUID) error
	SetOffline(ctx context.Context, userID uuid.UUID, at time.Time) error
	GetPresence(ctx context.Context, userID uuid.UUID) (models.Presence, error)
}

// PresenceRepo is a sqlx implementation of PresenceRepository.
type PresenceRepo struct {
	db *sqlx.DB
}

// NewPresenceRepo constructs a PresenceRepo.
func NewPresenceRepo(db *sqlx.DB) *PresenceRepo {
	return &PresenceRepo{db: db}
}

// EnsurePresence creates the presence row for a new user if missing.
func (r *PresenceRepo) EnsurePresence(ctx context.Context, userID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO presence (user_id, is_online) VALUES ($1, FALSE)
         ON CONFLICT (user_id) DO NOTHING`, userID)
	return err
}

// SetOnline marks the user online. last_seen is untouched while online.
func (r *PresenceRepo) SetOnline(ctx context.Context, userID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO presence (user_id, is_online) VALUES ($1, TRUE)
         ON CONFLICT (user_id) DO UPDATE SET is_online = TRUE`, userID)
	return err
}

// SetOffline marks the user offline and records last_seen.
func (r *PresenceRepo) SetOffline(ctx context.Context, userID uuid.UUID, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO presence (user_id, is_online, last_seen) VALUES ($1, FALSE, $2)
         ON CONFLICT (user_id) DO UPDATE SET is_online = FALSE, last_seen = $2`, userID, at)
	return err
}

// GetPresence fetches the presence record for a user.
func (r *PresenceRepo) GetPresence(ctx context.Context, userID uuid.UUID) (models.Presence, error) {
	var p models.Presence
	err := r.db.GetContext(ctx, &p,
		`SELECT user_id, is_online, last_seen FROM presence WHERE user_id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Presence{}, ErrPresenceNotFound
	}
	return p, err
}
