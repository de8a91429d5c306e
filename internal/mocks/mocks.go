package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"chat-backend/internal/models"
	"chat-backend/internal/queue"
	"chat-backend/internal/reply"
)

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) CreateUser(ctx context.Context, username, displayName, passwordHash string, isBot bool) (models.User, error) {
	args := m.Called(ctx, username, displayName, passwordHash, isBot)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) GetUser(ctx context.Context, id uuid.UUID) (models.User, error) {
	args := m.Called(ctx, id)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	args := m.Called(ctx, username)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) GetUsers(ctx context.Context, ids []uuid.UUID) ([]models.User, error) {
	args := m.Called(ctx, ids)
	var users []models.User
	if val := args.Get(0); val != nil {
		users = val.([]models.User)
	}
	return users, args.Error(1)
}

func (m *UserRepositoryMock) ListUsers(ctx context.Context, exclude uuid.UUID) ([]models.User, error) {
	args := m.Called(ctx, exclude)
	var users []models.User
	if val := args.Get(0); val != nil {
		users = val.([]models.User)
	}
	return users, args.Error(1)
}

func (m *UserRepositoryMock) GetBotUser(ctx context.Context) (models.User, error) {
	args := m.Called(ctx)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

type ThreadRepositoryMock struct {
	mock.Mock
}

func (m *ThreadRepositoryMock) CreateOrGetThread(ctx context.Context, userID, otherID uuid.UUID) (models.Thread, error) {
	args := m.Called(ctx, userID, otherID)
	var thread models.Thread
	if val := args.Get(0); val != nil {
		thread = val.(models.Thread)
	}
	return thread, args.Error(1)
}

func (m *ThreadRepositoryMock) GetThread(ctx context.Context, threadID uuid.UUID) (models.Thread, error) {
	args := m.Called(ctx, threadID)
	var thread models.Thread
	if val := args.Get(0); val != nil {
		thread = val.(models.Thread)
	}
	return thread, args.Error(1)
}

func (m *ThreadRepositoryMock) ListThreadsForUser(ctx context.Context, userID uuid.UUID) ([]models.ThreadSummary, error) {
	args := m.Called(ctx, userID)
	var list []models.ThreadSummary
	if val := args.Get(0); val != nil {
		list = val.([]models.ThreadSummary)
	}
	return list, args.Error(1)
}

func (m *ThreadRepositoryMock) TouchThread(ctx context.Context, threadID uuid.UUID, at time.Time) error {
	args := m.Called(ctx, threadID, at)
	return args.Error(0)
}

func (m *ThreadRepositoryMock) ListThreadPartners(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	args := m.Called(ctx, userID)
	var partners []uuid.UUID
	if val := args.Get(0); val != nil {
		partners = val.([]uuid.UUID)
	}
	return partners, args.Error(1)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, threadID, userID uuid.UUID, text string) (models.Message, error) {
	args := m.Called(ctx, threadID, userID, text)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) ListMessages(ctx context.Context, threadID uuid.UUID) ([]models.Message, error) {
	args := m.Called(ctx, threadID)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) ListRecentMessages(ctx context.Context, threadID uuid.UUID, n int) ([]models.Message, error) {
	args := m.Called(ctx, threadID, n)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

type PresenceRepositoryMock struct {
	mock.Mock
}

func (m *PresenceRepositoryMock) EnsurePresence(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *PresenceRepositoryMock) SetOnline(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *PresenceRepositoryMock) SetOffline(ctx context.Context, userID uuid.UUID, at time.Time) error {
	args := m.Called(ctx, userID, at)
	return args.Error(0)
}

func (m *PresenceRepositoryMock) GetPresence(ctx context.Context, userID uuid.UUID) (models.Presence, error) {
	args := m.Called(ctx, userID)
	var p models.Presence
	if val := args.Get(0); val != nil {
		p = val.(models.Presence)
	}
	return p, args.Error(1)
}

type QueueClientMock struct {
	mock.Mock
}

func (m *QueueClientMock) Enqueue(ctx context.Context, task queue.Task) (string, error) {
	args := m.Called(ctx, task)
	return args.String(0), args.Error(1)
}

func (m *QueueClientMock) Close() error {
	args := m.Called()
	return args.Error(0)
}

type GeneratorMock struct {
	mock.Mock
}

func (m *GeneratorMock) Generate(ctx context.Context, history []reply.Turn) (string, error) {
	args := m.Called(ctx, history)
	return args.String(0), args.Error(1)
}

type IngestorMock struct {
	mock.Mock
}

func (m *IngestorMock) Ingest(ctx context.Context, threadID, senderID uuid.UUID, text string) (models.Message, error) {
	args := m.Called(ctx, threadID, senderID, text)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

type TokenIssuerMock struct {
	mock.Mock
}

func (m *TokenIssuerMock) Sign(userID uuid.UUID) (string, error) {
	args := m.Called(userID)
	return args.String(0), args.Error(1)
}

// BroadcasterRecorder captures fan-out calls in order. It is concurrency
// safe because presence notifications run from goroutines.
type BroadcasterRecorder struct {
	mu    sync.Mutex
	Calls []BroadcastCall
}

type BroadcastCall struct {
	UserID  uuid.UUID
	Payload []byte
}

func (b *BroadcasterRecorder) Broadcast(userID uuid.UUID, payload []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Calls = append(b.Calls, BroadcastCall{UserID: userID, Payload: payload})
}

func (b *BroadcasterRecorder) Snapshot() []BroadcastCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]BroadcastCall, len(b.Calls))
	copy(out, b.Calls)
	return out
}
