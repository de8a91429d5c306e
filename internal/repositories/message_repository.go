package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"chat-backend/internal/models"
)

const messageColumns = `id, thread_id, user_id, message, timestamp`

// MessageRepository abstracts message persistence. Messages are create-only.
type MessageRepository interface {
	CreateMessage(ctx context.Context, threadID, userID uuid.UUID, text string) (models.Message, error)
	ListMessages(ctx context.Context, threadID uuid.UUID) ([]models.Message, error)
	ListRecentMessages(ctx context.Context, threadID uuid.UUID, n int) ([]models.Message, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// CreateMessage stores a message. Id and timestamp are assigned by the
// database, never by the caller.
func (r *MessageRepo) CreateMessage(ctx context.Context, threadID, userID uuid.UUID, text string) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO messages (thread_id, user_id, message) VALUES ($1, $2, $3)
         RETURNING `+messageColumns,
		threadID, userID, text).StructScan(&msg)
	return msg, err
}

// ListMessages returns all thread messages in chronological order.
func (r *MessageRepo) ListMessages(ctx context.Context, threadID uuid.UUID) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs,
		`SELECT `+messageColumns+` FROM messages WHERE thread_id=$1 ORDER BY timestamp ASC, id ASC`,
		threadID)
	return msgs, err
}

// ListRecentMessages returns the last n messages of a thread in
// chronological order.
func (r *MessageRepo) ListRecentMessages(ctx context.Context, threadID uuid.UUID, n int) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs,
		`SELECT id, thread_id, user_id, message, timestamp FROM (
             SELECT `+messageColumns+` FROM messages
             WHERE thread_id=$1
             ORDER BY timestamp DESC, id DESC
             LIMIT $2
         ) recent ORDER BY timestamp ASC, id ASC`,
		threadID, n)
	return msgs, err
}

