package ws

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrConnClosed is returned by Register when the connection was closed
// before registration completed.
var ErrConnClosed = errors.New("connection already closed")

// Registry maps each user to the set of its live connections. The outer map
// and each per-user set are guarded separately so unrelated users never
// contend on one lock.
type Registry struct {
	mu    sync.RWMutex
	users map[uuid.UUID]*connSet
}

type connSet struct {
	mu    sync.Mutex
	conns map[*Conn]struct{}
	// dead marks a set that was pruned from the registry after its last
	// connection left; a racing Register must not resurrect it.
	dead bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{users: make(map[uuid.UUID]*connSet)}
}

// Register adds the connection to its user's set.
func (r *Registry) Register(userID uuid.UUID, conn *Conn) error {
	if conn.Closed() {
		return ErrConnClosed
	}
	for {
		r.mu.Lock()
		set, ok := r.users[userID]
		if !ok {
			set = &connSet{conns: make(map[*Conn]struct{})}
			r.users[userID] = set
		}
		r.mu.Unlock()

		set.mu.Lock()
		if set.dead {
			set.mu.Unlock()
			continue
		}
		set.conns[conn] = struct{}{}
		if conn.Closed() {
			// the disconnect won the race; undo the insert
			delete(set.conns, conn)
			empty := len(set.conns) == 0
			set.mu.Unlock()
			if empty {
				r.prune(userID, set)
			}
			return ErrConnClosed
		}
		set.mu.Unlock()
		return nil
	}
}

// Unregister removes the connection. Removing an absent connection is a
// no-op. The per-user entry is pruned once its last connection leaves.
func (r *Registry) Unregister(userID uuid.UUID, conn *Conn) {
	r.mu.RLock()
	set, ok := r.users[userID]
	r.mu.RUnlock()
	if !ok {
		return
	}

	set.mu.Lock()
	delete(set.conns, conn)
	empty := len(set.conns) == 0
	set.mu.Unlock()
	if empty {
		r.prune(userID, set)
	}
}

// IsLive reports whether the user has at least one live connection.
func (r *Registry) IsLive(userID uuid.UUID) bool {
	r.mu.RLock()
	set, ok := r.users[userID]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	set.mu.Lock()
	defer set.mu.Unlock()
	return len(set.conns) > 0
}

// ForEachLive invokes fn once per live connection as of a snapshot taken at
// call time. Connections registered during the iteration may be missed.
func (r *Registry) ForEachLive(userID uuid.UUID, fn func(*Conn)) {
	r.mu.RLock()
	set, ok := r.users[userID]
	r.mu.RUnlock()
	if !ok {
		return
	}

	set.mu.Lock()
	snapshot := make([]*Conn, 0, len(set.conns))
	for conn := range set.conns {
		snapshot = append(snapshot, conn)
	}
	set.mu.Unlock()

	for _, conn := range snapshot {
		fn(conn)
	}
}

func (r *Registry) prune(userID uuid.UUID, set *connSet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set.mu.Lock()
	defer set.mu.Unlock()
	if len(set.conns) == 0 && r.users[userID] == set {
		set.dead = true
		delete(r.users, userID)
	}
}
