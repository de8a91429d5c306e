package reply

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"

	"chat-backend/internal/models"
	"chat-backend/internal/observability"
	"chat-backend/internal/queue"
	"chat-backend/internal/repositories"
)

// TaskTypeBotReply identifies the auto-reply job on the work queue.
const TaskTypeBotReply = "chat:bot_reply"

const historyLimit = 10

// Payload is the JSON body of an auto-reply task.
type Payload struct {
	ThreadID uuid.UUID `json:"thread_id"`
	Text     string    `json:"text"`
}

// NewTask builds the queue task for one qualifying inbound human message.
// MaxRetry is zero: a failed job is swallowed, never rerun.
func NewTask(threadID uuid.UUID, text string) (queue.Task, error) {
	body, err := json.Marshal(Payload{ThreadID: threadID, Text: text})
	if err != nil {
		return queue.Task{}, err
	}
	return queue.Task{
		Type:     TaskTypeBotReply,
		Payload:  body,
		Queue:    "chat",
		MaxRetry: 0,
	}, nil
}

// Ingestor re-enters the message ingestion pipeline with the bot as sender.
type Ingestor interface {
	Ingest(ctx context.Context, threadID, senderID uuid.UUID, text string) (models.Message, error)
}

// Job composes a bot reply for a thread and sends it through the normal
// ingestion path, so at the pipeline level the reply is indistinguishable
// from a human-sent message. Every failure inside the job is logged and
// swallowed; the job never crashes the process and is never retried.
type Job struct {
	threads   repositories.ThreadRepository
	users     repositories.UserRepository
	messages  repositories.MessageRepository
	generator Generator
	pipeline  Ingestor
}

// NewJob constructs the auto-reply job.
func NewJob(threads repositories.ThreadRepository, users repositories.UserRepository, messages repositories.MessageRepository, generator Generator, pipeline Ingestor) *Job {
	return &Job{
		threads:   threads,
		users:     users,
		messages:  messages,
		generator: generator,
		pipeline:  pipeline,
	}
}

// Register binds the job to its task type on the worker server.
func (j *Job) Register(srv queue.Server) {
	srv.Register(TaskTypeBotReply, j.Handle)
}

// Handle runs one auto-reply job. It always returns nil: the queue must
// never retry, and no error is surfaced to any user.
func (j *Job) Handle(ctx context.Context, task queue.Task) error {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("bot reply panic: %v", r)
			observability.IncReplyJob("panic")
		}
	}()

	var payload Payload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		log.Printf("bot reply malformed payload: %v", err)
		observability.IncReplyJob("malformed")
		return nil
	}

	// The job may run long after it was scheduled; re-resolve everything
	// instead of trusting enqueue-time state.
	thread, err := j.threads.GetThread(ctx, payload.ThreadID)
	if err != nil {
		log.Printf("bot reply abandoned thread=%s: %v", payload.ThreadID, err)
		observability.IncReplyJob("abandoned")
		return nil
	}

	first, err := j.users.GetUser(ctx, thread.FirstPerson)
	if err != nil {
		log.Printf("bot reply abandoned thread=%s: %v", thread.ID, err)
		observability.IncReplyJob("abandoned")
		return nil
	}
	second, err := j.users.GetUser(ctx, thread.SecondPerson)
	if err != nil {
		log.Printf("bot reply abandoned thread=%s: %v", thread.ID, err)
		observability.IncReplyJob("abandoned")
		return nil
	}

	var bot models.User
	switch {
	case first.IsBot:
		bot = first
	case second.IsBot:
		bot = second
	default:
		// the presumed bot lost its flag since the message arrived
		log.Printf("bot reply abandoned thread=%s: no bot participant", thread.ID)
		observability.IncReplyJob("abandoned")
		return nil
	}

	history := j.buildHistory(ctx, thread.ID, bot.ID, payload.Text)

	text, err := j.generator.Generate(ctx, history)
	if err != nil {
		// degraded but visible: the human message must not go unanswered
		log.Printf("bot reply generation failed thread=%s: %v", thread.ID, err)
		observability.IncReplyJob("generation_failed")
		text = fmt.Sprintf("Error generating response: %v", err)
	}

	if _, err := j.pipeline.Ingest(ctx, thread.ID, bot.ID, text); err != nil {
		log.Printf("bot reply ingest failed thread=%s: %v", thread.ID, err)
		observability.IncReplyJob("ingest_failed")
		return nil
	}
	observability.IncReplyJob("completed")
	return nil
}

// buildHistory fetches the last messages of the thread in chronological
// order and tags each turn relative to the resolved bot identity.
func (j *Job) buildHistory(ctx context.Context, threadID, botID uuid.UUID, inbound string) []Turn {
	msgs, err := j.messages.ListRecentMessages(ctx, threadID, historyLimit)
	if err != nil {
		log.Printf("bot reply history fetch failed thread=%s: %v", threadID, err)
		return []Turn{{Role: "user", Text: inbound}}
	}

	history := make([]Turn, 0, len(msgs))
	for _, m := range msgs {
		role := "user"
		if m.UserID == botID {
			role = "model"
		}
		history = append(history, Turn{Role: role, Text: m.Message})
	}
	if len(history) == 0 {
		history = append(history, Turn{Role: "user", Text: inbound})
	}
	return history
}
