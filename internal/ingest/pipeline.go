package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"chat-backend/internal/models"
	"chat-backend/internal/observability"
	"chat-backend/internal/presence"
	"chat-backend/internal/queue"
	"chat-backend/internal/reply"
	"chat-backend/internal/repositories"
)

var (
	// ErrThreadNotFound re-exports the store sentinel so callers match on
	// one package.
	ErrThreadNotFound = repositories.ErrThreadNotFound

	ErrNotParticipant = errors.New("sender is not a thread participant")
	ErrEmptyMessage   = errors.New("message text is empty")
)

// Broadcaster fans a payload out to one user's live connections.
type Broadcaster interface {
	Broadcast(userID uuid.UUID, payload []byte)
}

// PresenceMarker re-affirms a sender online and dispatches transition
// notifications. Satisfied by the presence tracker.
type PresenceMarker interface {
	MarkOnline(ctx context.Context, userID uuid.UUID) (*presence.StatusChange, error)
	Notify(change *presence.StatusChange)
}

// Pipeline is the message ingestion path shared by the websocket endpoint,
// the HTTP send endpoint, and the bot auto-reply job.
//
// Ordering is the pipeline's core correctness property: the message is
// persisted first, and every later step (thread touch, presence, fan-out,
// reply scheduling) is best-effort. A failure after persistence never rolls
// the message back or surfaces to the caller.
type Pipeline struct {
	threads     repositories.ThreadRepository
	messages    repositories.MessageRepository
	users       repositories.UserRepository
	tracker     PresenceMarker
	broadcaster Broadcaster
	jobs        queue.Client
}

// NewPipeline constructs a Pipeline.
func NewPipeline(threads repositories.ThreadRepository, messages repositories.MessageRepository, users repositories.UserRepository, tracker PresenceMarker, broadcaster Broadcaster, jobs queue.Client) *Pipeline {
	return &Pipeline{
		threads:     threads,
		messages:    messages,
		users:       users,
		tracker:     tracker,
		broadcaster: broadcaster,
		jobs:        jobs,
	}
}

// Ingest validates, persists, and fans out one inbound message. The
// returned message carries the server-assigned id and timestamp.
func (p *Pipeline) Ingest(ctx context.Context, threadID, senderID uuid.UUID, text string) (models.Message, error) {
	thread, err := p.threads.GetThread(ctx, threadID)
	if err != nil {
		if errors.Is(err, repositories.ErrThreadNotFound) {
			return models.Message{}, ErrThreadNotFound
		}
		return models.Message{}, fmt.Errorf("resolve thread: %w", err)
	}
	if !thread.HasParticipant(senderID) {
		return models.Message{}, ErrNotParticipant
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Message{}, ErrEmptyMessage
	}

	msg, err := p.messages.CreateMessage(ctx, threadID, senderID, text)
	if err != nil {
		return models.Message{}, fmt.Errorf("persist message: %w", err)
	}
	observability.IncMessageIngested()

	// persisted: everything below is best-effort
	if err := p.threads.TouchThread(ctx, threadID, msg.Timestamp); err != nil {
		log.Printf("thread touch failed thread=%s: %v", threadID, err)
	}

	if change, err := p.tracker.MarkOnline(ctx, senderID); err != nil {
		log.Printf("presence re-affirm failed user=%s: %v", senderID, err)
	} else if change != nil {
		go p.tracker.Notify(change)
	}

	otherID := thread.OtherParticipant(senderID)
	p.fanOut(ctx, msg, senderID, otherID)
	p.scheduleReply(ctx, thread, otherID, text)

	return msg, nil
}

// fanOut serializes the event once and delivers the identical bytes to
// every live connection of both participants.
func (p *Pipeline) fanOut(ctx context.Context, msg models.Message, senderID, otherID uuid.UUID) {
	sender, err := p.users.GetUser(ctx, senderID)
	if err != nil {
		log.Printf("fan-out skipped, sender lookup failed user=%s: %v", senderID, err)
		return
	}

	payload, err := json.Marshal(models.NewMessagePayload(msg, sender))
	if err != nil {
		log.Printf("fan-out skipped, marshal failed message=%s: %v", msg.ID, err)
		return
	}

	p.broadcaster.Broadcast(senderID, payload)
	p.broadcaster.Broadcast(otherID, payload)
}

// scheduleReply enqueues exactly one auto-reply job when the other
// participant is a bot. Ingestion returns without waiting for the reply.
func (p *Pipeline) scheduleReply(ctx context.Context, thread models.Thread, otherID uuid.UUID, text string) {
	other, err := p.users.GetUser(ctx, otherID)
	if err != nil {
		log.Printf("reply check skipped, participant lookup failed user=%s: %v", otherID, err)
		return
	}
	if !other.IsBot {
		return
	}

	task, err := reply.NewTask(thread.ID, text)
	if err != nil {
		log.Printf("reply task build failed thread=%s: %v", thread.ID, err)
		return
	}
	if _, err := p.jobs.Enqueue(ctx, task); err != nil {
		log.Printf("reply task enqueue failed thread=%s: %v", thread.ID, err)
	}
}
