package models

import (
	"time"

	"github.com/google/uuid"
)

// InboundEvent is a message received on a live connection.
type InboundEvent struct {
	Type     string    `json:"type"`
	ThreadID uuid.UUID `json:"thread_id"`
	Message  string    `json:"message"`
}

// EventTypeChatMessage is the only inbound event type the socket accepts.
const EventTypeChatMessage = "chat_message"

// NewMessageEvent is pushed to every live connection of both thread
// participants when a message is persisted.
type NewMessageEvent struct {
	Type string         `json:"type"`
	Data NewMessageData `json:"data"`
}

type NewMessageData struct {
	ID        uuid.UUID   `json:"id"`
	ThreadID  uuid.UUID   `json:"thread_id"`
	User      UserSummary `json:"user"`
	Message   string      `json:"message"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewMessagePayload builds the wire event for a persisted message. Both
// participants receive the identical serialized form.
func NewMessagePayload(msg Message, sender User) NewMessageEvent {
	return NewMessageEvent{
		Type: "new_message",
		Data: NewMessageData{
			ID:        msg.ID,
			ThreadID:  msg.ThreadID,
			User:      sender.Summary(),
			Message:   msg.Message,
			Timestamp: msg.Timestamp,
		},
	}
}

// UserStatusEvent is pushed to thread partners on presence transitions.
type UserStatusEvent struct {
	Type string         `json:"type"`
	Data UserStatusData `json:"data"`
}

type UserStatusData struct {
	UserID   uuid.UUID  `json:"user_id"`
	IsOnline bool       `json:"is_online"`
	LastSeen *time.Time `json:"last_seen"`
}

// UserStatusPayload builds the presence wire event. LastSeen is null while
// the user is online.
func UserStatusPayload(userID uuid.UUID, isOnline bool, lastSeen *time.Time) UserStatusEvent {
	return UserStatusEvent{
		Type: "user_status",
		Data: UserStatusData{
			UserID:   userID,
			IsOnline: isOnline,
			LastSeen: lastSeen,
		},
	}
}
