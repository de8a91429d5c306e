package presence

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-backend/internal/models"
)

type fakeLiveness struct {
	live map[uuid.UUID]bool
}

func (f *fakeLiveness) IsLive(userID uuid.UUID) bool {
	return f.live[userID]
}

type fakeStore struct {
	mu          sync.Mutex
	onlineCalls []uuid.UUID
	offline     map[uuid.UUID]time.Time
	failOnline  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{offline: make(map[uuid.UUID]time.Time)}
}

func (f *fakeStore) SetOnline(ctx context.Context, userID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOnline != nil {
		return f.failOnline
	}
	f.onlineCalls = append(f.onlineCalls, userID)
	return nil
}

func (f *fakeStore) SetOffline(ctx context.Context, userID uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offline[userID] = at
	return nil
}

type fakePartners struct {
	partners []uuid.UUID
	err      error
}

func (f *fakePartners) ListThreadPartners(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	return f.partners, f.err
}

type fanOutRecorder struct {
	mu    sync.Mutex
	calls map[uuid.UUID][][]byte
}

func newFanOutRecorder() *fanOutRecorder {
	return &fanOutRecorder{calls: make(map[uuid.UUID][][]byte)}
}

func (f *fanOutRecorder) Broadcast(userID uuid.UUID, payload []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[userID] = append(f.calls[userID], payload)
}

func TestMarkOnlineReturnsChangeOnlyOnTransition(t *testing.T) {
	store := newFakeStore()
	tracker := NewTracker(&fakeLiveness{live: map[uuid.UUID]bool{}}, store, &fakePartners{}, newFanOutRecorder())
	userID := uuid.New()

	change, err := tracker.MarkOnline(context.Background(), userID)
	require.NoError(t, err)
	require.NotNil(t, change)
	assert.True(t, change.IsOnline)
	assert.Nil(t, change.LastSeen)

	change, err = tracker.MarkOnline(context.Background(), userID)
	require.NoError(t, err)
	assert.Nil(t, change, "re-affirming an online user must not produce a change")
	assert.Len(t, store.onlineCalls, 1)
}

func TestMarkOnlineStoreFailureKeepsUserOffline(t *testing.T) {
	store := newFakeStore()
	store.failOnline = errors.New("db down")
	tracker := NewTracker(&fakeLiveness{live: map[uuid.UUID]bool{}}, store, &fakePartners{}, newFanOutRecorder())
	userID := uuid.New()

	change, err := tracker.MarkOnline(context.Background(), userID)
	require.Error(t, err)
	assert.Nil(t, change)

	store.failOnline = nil
	change, err = tracker.MarkOnline(context.Background(), userID)
	require.NoError(t, err)
	require.NotNil(t, change, "user must still be considered offline after a failed write")
}

func TestMarkOfflineRecordsLastSeen(t *testing.T) {
	store := newFakeStore()
	liveness := &fakeLiveness{live: map[uuid.UUID]bool{}}
	tracker := NewTracker(liveness, store, &fakePartners{}, newFanOutRecorder())
	userID := uuid.New()

	_, err := tracker.MarkOnline(context.Background(), userID)
	require.NoError(t, err)

	before := time.Now().UTC()
	change, err := tracker.MarkOffline(context.Background(), userID)
	require.NoError(t, err)
	require.NotNil(t, change)
	assert.False(t, change.IsOnline)
	require.NotNil(t, change.LastSeen)
	assert.False(t, change.LastSeen.Before(before))
	assert.Equal(t, *change.LastSeen, store.offline[userID])
}

func TestMarkOfflineSkippedWhileAnotherDeviceIsLive(t *testing.T) {
	store := newFakeStore()
	userID := uuid.New()
	liveness := &fakeLiveness{live: map[uuid.UUID]bool{userID: true}}
	tracker := NewTracker(liveness, store, &fakePartners{}, newFanOutRecorder())

	_, err := tracker.MarkOnline(context.Background(), userID)
	require.NoError(t, err)

	change, err := tracker.MarkOffline(context.Background(), userID)
	require.NoError(t, err)
	assert.Nil(t, change, "a live registry entry means another device reconnected")
	assert.Empty(t, store.offline)
}

func TestMarkOfflineWithoutPriorOnlineIsNoop(t *testing.T) {
	store := newFakeStore()
	tracker := NewTracker(&fakeLiveness{live: map[uuid.UUID]bool{}}, store, &fakePartners{}, newFanOutRecorder())

	change, err := tracker.MarkOffline(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, change)
}

func TestNotifyFansOutToEveryPartner(t *testing.T) {
	userID := uuid.New()
	partnerA := uuid.New()
	partnerB := uuid.New()
	recorder := newFanOutRecorder()
	tracker := NewTracker(&fakeLiveness{live: map[uuid.UUID]bool{}}, newFakeStore(), &fakePartners{partners: []uuid.UUID{partnerA, partnerB}}, recorder)

	lastSeen := time.Now().UTC()
	tracker.Notify(&StatusChange{UserID: userID, IsOnline: false, LastSeen: &lastSeen})

	require.Len(t, recorder.calls[partnerA], 1)
	require.Len(t, recorder.calls[partnerB], 1)

	var event models.UserStatusEvent
	require.NoError(t, json.Unmarshal(recorder.calls[partnerA][0], &event))
	assert.Equal(t, "user_status", event.Type)
	assert.Equal(t, userID, event.Data.UserID)
	assert.False(t, event.Data.IsOnline)
	require.NotNil(t, event.Data.LastSeen)
}

func TestNotifyPartnerLookupFailureBroadcastsNothing(t *testing.T) {
	recorder := newFanOutRecorder()
	tracker := NewTracker(&fakeLiveness{live: map[uuid.UUID]bool{}}, newFakeStore(), &fakePartners{err: errors.New("db down")}, recorder)

	tracker.Notify(&StatusChange{UserID: uuid.New(), IsOnline: true})

	assert.Empty(t, recorder.calls)
}

func TestTrackerPrunesStateAfterOffline(t *testing.T) {
	store := newFakeStore()
	tracker := NewTracker(&fakeLiveness{live: map[uuid.UUID]bool{}}, store, &fakePartners{}, newFanOutRecorder())
	userID := uuid.New()

	_, err := tracker.MarkOnline(context.Background(), userID)
	require.NoError(t, err)
	change, err := tracker.MarkOffline(context.Background(), userID)
	require.NoError(t, err)
	require.NotNil(t, change)

	tracker.mu.Lock()
	remaining := len(tracker.states)
	tracker.mu.Unlock()
	assert.Zero(t, remaining, "offline users must not linger in memory")

	change, err = tracker.MarkOnline(context.Background(), userID)
	require.NoError(t, err)
	require.NotNil(t, change, "a fresh session after pruning is still a transition")
	assert.Len(t, store.onlineCalls, 2)
}

func TestMarkOfflineWithoutPriorOnlineLeavesNoState(t *testing.T) {
	tracker := NewTracker(&fakeLiveness{live: map[uuid.UUID]bool{}}, newFakeStore(), &fakePartners{}, newFanOutRecorder())

	_, err := tracker.MarkOffline(context.Background(), uuid.New())
	require.NoError(t, err)

	tracker.mu.Lock()
	remaining := len(tracker.states)
	tracker.mu.Unlock()
	assert.Zero(t, remaining)
}
