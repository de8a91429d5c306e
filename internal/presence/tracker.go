package presence

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"chat-backend/internal/models"
)

const notifyTimeout = 10 * time.Second

// Liveness reports whether a user still has a live connection. Satisfied by
// the ws registry.
type Liveness interface {
	IsLive(userID uuid.UUID) bool
}

// Broadcaster fans a payload out to one user's live connections.
type Broadcaster interface {
	Broadcast(userID uuid.UUID, payload []byte)
}

// PartnerLister returns every user sharing a thread with the given user.
type PartnerLister interface {
	ListThreadPartners(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
}

// Store persists presence records.
type Store interface {
	SetOnline(ctx context.Context, userID uuid.UUID) error
	SetOffline(ctx context.Context, userID uuid.UUID, at time.Time) error
}

// StatusChange is the broadcast obligation produced by an actual
// offline/online transition. LastSeen is nil while online.
type StatusChange struct {
	UserID   uuid.UUID
	IsOnline bool
	LastSeen *time.Time
}

// Tracker derives online/offline state from registry transitions and
// persists it. Transition detection and the store write are serialized per
// user, so concurrent connects and disconnects from the same user's devices
// cannot leave presence permanently wrong.
type Tracker struct {
	registry    Liveness
	store       Store
	threads     PartnerLister
	broadcaster Broadcaster

	mu     sync.Mutex
	states map[uuid.UUID]*userState
}

type userState struct {
	mu     sync.Mutex
	online bool
	// dead marks a state pruned from the map after its user went offline;
	// a racing transition must not resurrect it.
	dead bool
}

// NewTracker constructs a Tracker.
func NewTracker(registry Liveness, store Store, threads PartnerLister, broadcaster Broadcaster) *Tracker {
	return &Tracker{
		registry:    registry,
		store:       store,
		threads:     threads,
		broadcaster: broadcaster,
		states:      make(map[uuid.UUID]*userState),
	}
}

// MarkOnline records the user as online. It returns a StatusChange only
// when the user was actually offline before; re-affirming an online user
// (extra device, inbound activity) returns nil so chatty multi-device users
// do not cause broadcast storms.
func (t *Tracker) MarkOnline(ctx context.Context, userID uuid.UUID) (*StatusChange, error) {
	st := t.lockState(userID)
	defer st.mu.Unlock()

	if st.online {
		return nil, nil
	}
	if err := t.store.SetOnline(ctx, userID); err != nil {
		return nil, err
	}
	st.online = true
	return &StatusChange{UserID: userID, IsOnline: true}, nil
}

// MarkOffline records the user as offline after its last connection left.
// If the registry still reports a live connection, another device
// reconnected before this disconnect was processed and the user stays
// online.
func (t *Tracker) MarkOffline(ctx context.Context, userID uuid.UUID) (*StatusChange, error) {
	st := t.lockState(userID)

	if t.registry.IsLive(userID) {
		st.mu.Unlock()
		return nil, nil
	}
	if !st.online {
		st.mu.Unlock()
		t.prune(userID, st)
		return nil, nil
	}
	now := time.Now().UTC()
	if err := t.store.SetOffline(ctx, userID, now); err != nil {
		st.mu.Unlock()
		return nil, err
	}
	st.online = false
	st.mu.Unlock()

	// offline users carry no in-memory state; the map only holds users
	// with a live session, mirroring the registry's prune-on-empty
	t.prune(userID, st)
	return &StatusChange{UserID: userID, IsOnline: false, LastSeen: &now}, nil
}

// Notify broadcasts the status change to every thread partner of the user.
// The partner lookup hits the durable store and may be slow, so callers run
// Notify off the connect/close path (typically in a fresh goroutine).
func (t *Tracker) Notify(change *StatusChange) {
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	partners, err := t.threads.ListThreadPartners(ctx, change.UserID)
	if err != nil {
		log.Printf("presence notify: partner lookup failed user=%s: %v", change.UserID, err)
		return
	}
	if len(partners) == 0 {
		return
	}

	payload, err := json.Marshal(models.UserStatusPayload(change.UserID, change.IsOnline, change.LastSeen))
	if err != nil {
		log.Printf("presence notify: marshal failed user=%s: %v", change.UserID, err)
		return
	}
	for _, partner := range partners {
		t.broadcaster.Broadcast(partner, payload)
	}
}

// lockState returns the user's state with its mutex held, retrying past
// states pruned by a concurrent offline transition.
func (t *Tracker) lockState(userID uuid.UUID) *userState {
	for {
		t.mu.Lock()
		st, ok := t.states[userID]
		if !ok {
			st = &userState{}
			t.states[userID] = st
		}
		t.mu.Unlock()

		st.mu.Lock()
		if st.dead {
			st.mu.Unlock()
			continue
		}
		return st
	}
}

func (t *Tracker) prune(userID uuid.UUID, st *userState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st.mu.Lock()
	defer st.mu.Unlock()
	if !st.online && t.states[userID] == st {
		st.dead = true
		delete(t.states, userID)
	}
}
