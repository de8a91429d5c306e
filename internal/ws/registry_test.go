package ws

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

func newTestConn(userID uuid.UUID) *Conn {
	return NewConn(userID, nil, ConnMeta{})
}

func TestRegistryRegisterAndUnregister(t *testing.T) {
	registry := NewRegistry()
	userID := uuid.New()
	conn := newTestConn(userID)

	if err := registry.Register(userID, conn); err != nil {
		t.Fatalf("register: %v", err)
	}
	if !registry.IsLive(userID) {
		t.Fatalf("expected user to be live after register")
	}

	registry.Unregister(userID, conn)
	if registry.IsLive(userID) {
		t.Fatalf("expected user to be offline after unregister")
	}
	if len(registry.users) != 0 {
		t.Fatalf("expected empty entry to be pruned, have %d", len(registry.users))
	}
}

func TestRegistryUnregisterIsIdempotent(t *testing.T) {
	registry := NewRegistry()
	userID := uuid.New()
	conn := newTestConn(userID)

	registry.Unregister(userID, conn)

	if err := registry.Register(userID, conn); err != nil {
		t.Fatalf("register: %v", err)
	}
	registry.Unregister(userID, conn)
	registry.Unregister(userID, conn)

	if registry.IsLive(userID) {
		t.Fatalf("expected user to be offline")
	}
}

func TestRegistryMultipleConnectionsPerUser(t *testing.T) {
	registry := NewRegistry()
	userID := uuid.New()
	first := newTestConn(userID)
	second := newTestConn(userID)

	if err := registry.Register(userID, first); err != nil {
		t.Fatalf("register first: %v", err)
	}
	if err := registry.Register(userID, second); err != nil {
		t.Fatalf("register second: %v", err)
	}

	registry.Unregister(userID, first)
	if !registry.IsLive(userID) {
		t.Fatalf("expected user to stay live while second connection remains")
	}

	registry.Unregister(userID, second)
	if registry.IsLive(userID) {
		t.Fatalf("expected user offline after last connection leaves")
	}
}

func TestRegistryRejectsClosedConnection(t *testing.T) {
	registry := NewRegistry()
	userID := uuid.New()
	conn := newTestConn(userID)
	conn.Close(websocket.CloseNormalClosure, "bye")

	if err := registry.Register(userID, conn); err != ErrConnClosed {
		t.Fatalf("expected ErrConnClosed, got %v", err)
	}
	if registry.IsLive(userID) {
		t.Fatalf("closed connection must not make the user live")
	}
	if len(registry.users) != 0 {
		t.Fatalf("expected no leftover entry, have %d", len(registry.users))
	}
}

func TestRegistryForEachLiveVisitsEveryConnection(t *testing.T) {
	registry := NewRegistry()
	userID := uuid.New()
	first := newTestConn(userID)
	second := newTestConn(userID)

	if err := registry.Register(userID, first); err != nil {
		t.Fatalf("register first: %v", err)
	}
	if err := registry.Register(userID, second); err != nil {
		t.Fatalf("register second: %v", err)
	}

	seen := make(map[*Conn]bool)
	registry.ForEachLive(userID, func(conn *Conn) {
		seen[conn] = true
	})
	if !seen[first] || !seen[second] {
		t.Fatalf("expected both connections visited, got %d", len(seen))
	}

	registry.ForEachLive(uuid.New(), func(conn *Conn) {
		t.Fatalf("unexpected visit for unknown user")
	})
}

func TestRegistryConcurrentChurn(t *testing.T) {
	registry := NewRegistry()
	userID := uuid.New()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn := newTestConn(userID)
			if err := registry.Register(userID, conn); err != nil {
				return
			}
			registry.Unregister(userID, conn)
		}()
	}
	wg.Wait()

	if registry.IsLive(userID) {
		t.Fatalf("expected user offline after churn")
	}
	if len(registry.users) != 0 {
		t.Fatalf("expected registry empty after churn, have %d", len(registry.users))
	}
}
