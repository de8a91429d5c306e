package ws

import (
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

func drain(conn *Conn) [][]byte {
	var out [][]byte
	for {
		select {
		case payload := <-conn.send:
			out = append(out, payload)
		default:
			return out
		}
	}
}

func TestBroadcastDeliversToEveryLiveConnection(t *testing.T) {
	registry := NewRegistry()
	broadcaster := NewBroadcaster(registry)
	userID := uuid.New()

	first := newTestConn(userID)
	second := newTestConn(userID)
	if err := registry.Register(userID, first); err != nil {
		t.Fatalf("register first: %v", err)
	}
	if err := registry.Register(userID, second); err != nil {
		t.Fatalf("register second: %v", err)
	}

	payload := []byte(`{"type":"new_message"}`)
	broadcaster.Broadcast(userID, payload)

	for i, conn := range []*Conn{first, second} {
		got := drain(conn)
		if len(got) != 1 || string(got[0]) != string(payload) {
			t.Fatalf("connection %d: expected one payload, got %d", i, len(got))
		}
	}
}

func TestBroadcastSkipsFailedConnection(t *testing.T) {
	registry := NewRegistry()
	broadcaster := NewBroadcaster(registry)
	userID := uuid.New()

	first := newTestConn(userID)
	broken := newTestConn(userID)
	third := newTestConn(userID)
	for i, conn := range []*Conn{first, broken, third} {
		if err := registry.Register(userID, conn); err != nil {
			t.Fatalf("register %d: %v", i, err)
		}
	}
	broken.Close(websocket.CloseGoingAway, "gone")

	payload := []byte(`{"type":"new_message"}`)
	broadcaster.Broadcast(userID, payload)

	for i, conn := range []*Conn{first, third} {
		if got := drain(conn); len(got) != 1 {
			t.Fatalf("healthy connection %d: expected one payload, got %d", i, len(got))
		}
	}
	if got := drain(broken); len(got) != 0 {
		t.Fatalf("broken connection: expected nothing, got %d", len(got))
	}
}

func TestBroadcastToOfflineUserIsNoop(t *testing.T) {
	registry := NewRegistry()
	broadcaster := NewBroadcaster(registry)

	broadcaster.Broadcast(uuid.New(), []byte("x"))
}
