package ws

import (
	"log"

	"github.com/google/uuid"

	"chat-backend/internal/observability"
)

// Broadcaster fans a payload out to every live connection of a user. A
// failed send is dropped and counted; it never affects delivery to the
// remaining connections. A user with zero live connections is a no-op, the
// payload's message is already durable and readable through the HTTP API.
type Broadcaster struct {
	registry *Registry
}

// NewBroadcaster constructs a Broadcaster over the registry.
func NewBroadcaster(registry *Registry) *Broadcaster {
	return &Broadcaster{registry: registry}
}

// Broadcast delivers payload to every live connection of userID.
func (b *Broadcaster) Broadcast(userID uuid.UUID, payload []byte) {
	b.registry.ForEachLive(userID, func(conn *Conn) {
		if err := conn.Send(payload); err != nil {
			log.Printf("ws send dropped user=%s conn=%s: %v", userID, conn.ID, err)
			observability.IncBroadcastDropped()
		}
	})
}
