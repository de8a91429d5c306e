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

var ErrThreadNotFound = errors.New("thread not found")

const threadColumns = `id, first_person, second_person, updated`

// ThreadRepository abstracts thread persistence.
type ThreadRepository interface {
	CreateOrGetThread(ctx context.Context, userID, otherID uuid.UUID) (models.Thread, error)
	GetThread(ctx context.Context, threadID uuid.UUID) (models.Thread, error)
	ListThreadsForUser(ctx context.Context, userID uuid.UUID) ([]models.ThreadSummary, error)
	TouchThread(ctx context.Context, threadID uuid.UUID, at time.Time) error
	ListThreadPartners(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
}

// ThreadRepo is a sqlx implementation of ThreadRepository.
type ThreadRepo struct {
	db *sqlx.DB
}

// NewThreadRepo constructs a ThreadRepo.
func NewThreadRepo(db *sqlx.DB) *ThreadRepo {
	return &ThreadRepo{db: db}
}

// CreateOrGetThread returns the thread between two users, creating it if
// absent. The participant pair is unique regardless of order, so a racing
// insert falls back to re-reading the winner's row.
func (r *ThreadRepo) CreateOrGetThread(ctx context.Context, userID, otherID uuid.UUID) (models.Thread, error) {
	if userID == otherID {
		return models.Thread{}, errors.New("cannot create thread with self")
	}

	thread, err := r.getByPair(ctx, userID, otherID)
	if err == nil {
		return thread, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Thread{}, err
	}

	err = r.db.QueryRowxContext(ctx,
		`INSERT INTO threads (first_person, second_person) VALUES ($1, $2)
         ON CONFLICT (LEAST(first_person, second_person), GREATEST(first_person, second_person)) DO NOTHING
         RETURNING `+threadColumns,
		userID, otherID).StructScan(&thread)
	if errors.Is(err, sql.ErrNoRows) {
		// lost the race, the other insert won
		thread, err = r.getByPair(ctx, userID, otherID)
	}
	if err != nil {
		return models.Thread{}, err
	}
	return thread, nil
}

func (r *ThreadRepo) getByPair(ctx context.Context, a, b uuid.UUID) (models.Thread, error) {
	var thread models.Thread
	err := r.db.GetContext(ctx, &thread,
		`SELECT `+threadColumns+` FROM threads
         WHERE (first_person=$1 AND second_person=$2) OR (first_person=$2 AND second_person=$1)`,
		a, b)
	return thread, err
}

// GetThread fetches a thread by id.
func (r *ThreadRepo) GetThread(ctx context.Context, threadID uuid.UUID) (models.Thread, error) {
	var thread models.Thread
	err := r.db.GetContext(ctx, &thread,
		`SELECT `+threadColumns+` FROM threads WHERE id=$1`, threadID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Thread{}, ErrThreadNotFound
	}
	return thread, err
}

// ListThreadsForUser returns the user's threads, most recently updated first.
func (r *ThreadRepo) ListThreadsForUser(ctx context.Context, userID uuid.UUID) ([]models.ThreadSummary, error) {
	rows, err := r.db.QueryxContext(ctx,
		`SELECT `+threadColumns+` FROM threads
         WHERE first_person=$1 OR second_person=$1
         ORDER BY updated DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.ThreadSummary
	for rows.Next() {
		var thread models.Thread
		if err := rows.StructScan(&thread); err != nil {
			return nil, err
		}
		result = append(result, models.ThreadSummary{
			ThreadID:  thread.ID,
			PartnerID: thread.OtherParticipant(userID),
			Updated:   thread.Updated,
		})
	}
	return result, rows.Err()
}

// TouchThread advances the thread's updated timestamp. GREATEST keeps it
// monotonically non-decreasing under racing touches (last-writer-wins is
// acceptable, going backwards is not).
func (r *ThreadRepo) TouchThread(ctx context.Context, threadID uuid.UUID, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE threads SET updated = GREATEST(updated, $2) WHERE id=$1`, threadID, at)
	return err
}

// ListThreadPartners returns every user sharing a thread with userID.
func (r *ThreadRepo) ListThreadPartners(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	var partners []uuid.UUID
	err := r.db.SelectContext(ctx, &partners,
		`SELECT CASE WHEN first_person=$1 THEN second_person ELSE first_person END
         FROM threads WHERE first_person=$1 OR second_person=$1`, userID)
	return partners, err
}
