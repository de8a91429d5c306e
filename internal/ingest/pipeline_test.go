package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-backend/internal/mocks"
	"chat-backend/internal/models"
	"chat-backend/internal/presence"
	"chat-backend/internal/queue"
	"chat-backend/internal/reply"
	"chat-backend/internal/repositories"
)

// fakeMarker avoids mock races: Notify runs on a goroutine.
type fakeMarker struct {
	change   *presence.StatusChange
	err      error
	notified chan *presence.StatusChange
}

func newFakeMarker(change *presence.StatusChange) *fakeMarker {
	return &fakeMarker{change: change, notified: make(chan *presence.StatusChange, 1)}
}

func (f *fakeMarker) MarkOnline(ctx context.Context, userID uuid.UUID) (*presence.StatusChange, error) {
	return f.change, f.err
}

func (f *fakeMarker) Notify(change *presence.StatusChange) {
	f.notified <- change
}

type pipelineFixture struct {
	threads     *mocks.ThreadRepositoryMock
	messages    *mocks.MessageRepositoryMock
	users       *mocks.UserRepositoryMock
	marker      *fakeMarker
	broadcaster *mocks.BroadcasterRecorder
	jobs        *mocks.QueueClientMock
	pipeline    *Pipeline
}

func newPipelineFixture(marker *fakeMarker) *pipelineFixture {
	f := &pipelineFixture{
		threads:     new(mocks.ThreadRepositoryMock),
		messages:    new(mocks.MessageRepositoryMock),
		users:       new(mocks.UserRepositoryMock),
		marker:      marker,
		broadcaster: &mocks.BroadcasterRecorder{},
		jobs:        new(mocks.QueueClientMock),
	}
	f.pipeline = NewPipeline(f.threads, f.messages, f.users, f.marker, f.broadcaster, f.jobs)
	return f
}

func TestIngestPersistsAndFansOutToBothParticipants(t *testing.T) {
	sender := models.User{ID: uuid.New(), Username: "alice", DisplayName: "Alice"}
	other := models.User{ID: uuid.New(), Username: "bob", DisplayName: "Bob"}
	thread := models.Thread{ID: uuid.New(), FirstPerson: sender.ID, SecondPerson: other.ID}
	stored := models.Message{ID: uuid.New(), ThreadID: thread.ID, UserID: sender.ID, Message: "hi", Timestamp: time.Now().UTC()}

	f := newPipelineFixture(newFakeMarker(nil))
	f.threads.On("GetThread", mock.Anything, thread.ID).Return(thread, nil).Once()
	f.messages.On("CreateMessage", mock.Anything, thread.ID, sender.ID, "hi").Return(stored, nil).Once()
	f.threads.On("TouchThread", mock.Anything, thread.ID, stored.Timestamp).Return(nil).Once()
	f.users.On("GetUser", mock.Anything, sender.ID).Return(sender, nil).Once()
	f.users.On("GetUser", mock.Anything, other.ID).Return(other, nil).Once()

	msg, err := f.pipeline.Ingest(context.Background(), thread.ID, sender.ID, "  hi  ")
	require.NoError(t, err)
	assert.Equal(t, stored, msg)

	calls := f.broadcaster.Snapshot()
	require.Len(t, calls, 2)
	assert.Equal(t, sender.ID, calls[0].UserID)
	assert.Equal(t, other.ID, calls[1].UserID)
	assert.Equal(t, calls[0].Payload, calls[1].Payload, "both participants must receive identical bytes")

	var event models.NewMessageEvent
	require.NoError(t, json.Unmarshal(calls[0].Payload, &event))
	assert.Equal(t, "new_message", event.Type)
	assert.Equal(t, stored.ID, event.Data.ID)
	assert.Equal(t, "hi", event.Data.Message)
	assert.Equal(t, sender.Username, event.Data.User.Username)

	f.jobs.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)
	f.threads.AssertExpectations(t)
	f.messages.AssertExpectations(t)
	f.users.AssertExpectations(t)
}

func TestIngestUnknownThread(t *testing.T) {
	f := newPipelineFixture(newFakeMarker(nil))
	threadID := uuid.New()
	f.threads.On("GetThread", mock.Anything, threadID).Return(nil, repositories.ErrThreadNotFound).Once()

	_, err := f.pipeline.Ingest(context.Background(), threadID, uuid.New(), "hi")
	require.ErrorIs(t, err, ErrThreadNotFound)
	f.messages.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestIngestRejectsNonParticipant(t *testing.T) {
	thread := models.Thread{ID: uuid.New(), FirstPerson: uuid.New(), SecondPerson: uuid.New()}
	f := newPipelineFixture(newFakeMarker(nil))
	f.threads.On("GetThread", mock.Anything, thread.ID).Return(thread, nil).Once()

	_, err := f.pipeline.Ingest(context.Background(), thread.ID, uuid.New(), "hi")
	require.ErrorIs(t, err, ErrNotParticipant)
	f.messages.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestIngestRejectsBlankMessage(t *testing.T) {
	sender := uuid.New()
	thread := models.Thread{ID: uuid.New(), FirstPerson: sender, SecondPerson: uuid.New()}
	f := newPipelineFixture(newFakeMarker(nil))
	f.threads.On("GetThread", mock.Anything, thread.ID).Return(thread, nil).Once()

	_, err := f.pipeline.Ingest(context.Background(), thread.ID, sender, "   \n\t ")
	require.ErrorIs(t, err, ErrEmptyMessage)
	f.messages.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestIngestSchedulesReplyForBotPartner(t *testing.T) {
	sender := models.User{ID: uuid.New(), Username: "alice"}
	bot := models.User{ID: uuid.New(), Username: "assistant", IsBot: true}
	thread := models.Thread{ID: uuid.New(), FirstPerson: sender.ID, SecondPerson: bot.ID}
	stored := models.Message{ID: uuid.New(), ThreadID: thread.ID, UserID: sender.ID, Message: "hello bot", Timestamp: time.Now().UTC()}

	f := newPipelineFixture(newFakeMarker(nil))
	f.threads.On("GetThread", mock.Anything, thread.ID).Return(thread, nil).Once()
	f.messages.On("CreateMessage", mock.Anything, thread.ID, sender.ID, "hello bot").Return(stored, nil).Once()
	f.threads.On("TouchThread", mock.Anything, thread.ID, stored.Timestamp).Return(nil).Once()
	f.users.On("GetUser", mock.Anything, sender.ID).Return(sender, nil).Once()
	f.users.On("GetUser", mock.Anything, bot.ID).Return(bot, nil).Once()
	f.jobs.On("Enqueue", mock.Anything, mock.MatchedBy(func(task queue.Task) bool {
		if task.Type != reply.TaskTypeBotReply {
			return false
		}
		var payload reply.Payload
		if err := json.Unmarshal(task.Payload, &payload); err != nil {
			return false
		}
		return payload.ThreadID == thread.ID && payload.Text == "hello bot"
	})).Return("task-1", nil).Once()

	_, err := f.pipeline.Ingest(context.Background(), thread.ID, sender.ID, "hello bot")
	require.NoError(t, err)
	f.jobs.AssertExpectations(t)
}

func TestIngestSurvivesBestEffortFailures(t *testing.T) {
	sender := models.User{ID: uuid.New(), Username: "alice"}
	other := models.User{ID: uuid.New(), Username: "bob"}
	thread := models.Thread{ID: uuid.New(), FirstPerson: sender.ID, SecondPerson: other.ID}
	stored := models.Message{ID: uuid.New(), ThreadID: thread.ID, UserID: sender.ID, Message: "hi", Timestamp: time.Now().UTC()}

	marker := newFakeMarker(nil)
	marker.err = errors.New("presence store down")
	f := newPipelineFixture(marker)
	f.threads.On("GetThread", mock.Anything, thread.ID).Return(thread, nil).Once()
	f.messages.On("CreateMessage", mock.Anything, thread.ID, sender.ID, "hi").Return(stored, nil).Once()
	f.threads.On("TouchThread", mock.Anything, thread.ID, stored.Timestamp).Return(errors.New("touch failed")).Once()
	f.users.On("GetUser", mock.Anything, sender.ID).Return(nil, errors.New("lookup failed")).Once()
	f.users.On("GetUser", mock.Anything, other.ID).Return(other, nil).Once()

	msg, err := f.pipeline.Ingest(context.Background(), thread.ID, sender.ID, "hi")
	require.NoError(t, err, "failures after persistence must not surface")
	assert.Equal(t, stored, msg)
	assert.Empty(t, f.broadcaster.Snapshot(), "fan-out is skipped when the sender lookup fails")
}

func TestIngestNotifiesPresenceTransition(t *testing.T) {
	sender := models.User{ID: uuid.New(), Username: "alice"}
	other := models.User{ID: uuid.New(), Username: "bob"}
	thread := models.Thread{ID: uuid.New(), FirstPerson: sender.ID, SecondPerson: other.ID}
	stored := models.Message{ID: uuid.New(), ThreadID: thread.ID, UserID: sender.ID, Message: "hi", Timestamp: time.Now().UTC()}

	change := &presence.StatusChange{UserID: sender.ID, IsOnline: true}
	f := newPipelineFixture(newFakeMarker(change))
	f.threads.On("GetThread", mock.Anything, thread.ID).Return(thread, nil).Once()
	f.messages.On("CreateMessage", mock.Anything, thread.ID, sender.ID, "hi").Return(stored, nil).Once()
	f.threads.On("TouchThread", mock.Anything, thread.ID, stored.Timestamp).Return(nil).Once()
	f.users.On("GetUser", mock.Anything, sender.ID).Return(sender, nil).Once()
	f.users.On("GetUser", mock.Anything, other.ID).Return(other, nil).Once()

	_, err := f.pipeline.Ingest(context.Background(), thread.ID, sender.ID, "hi")
	require.NoError(t, err)

	select {
	case got := <-f.marker.notified:
		assert.Equal(t, change, got)
	case <-time.After(time.Second):
		t.Fatalf("expected presence notification")
	}
}
