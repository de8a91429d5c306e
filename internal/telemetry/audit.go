package telemetry

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
)

// Publisher is the broker surface the emitter needs.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

// AuditEmitter publishes operator-facing audit records about chat
// activity. Emission is fire-and-forget: a broker failure is logged and
// never surfaces to the request that triggered it.
type AuditEmitter struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
}

// AuditRecord is the wire shape of one audit entry.
type AuditRecord struct {
	SchemaVersion int         `json:"schema_version"`
	OccurredAt    time.Time   `json:"occurred_at"`
	Service       string      `json:"service"`
	Environment   string      `json:"environment"`
	RequestID     string      `json:"request_id"`
	Detail        AuditDetail `json:"detail"`
}

// AuditDetail carries the chat-specific context of the entry. UserID and
// ThreadID are optional; they scope the record to an account or a
// conversation when the caller has one in hand.
type AuditDetail struct {
	Level    string     `json:"level"`
	Text     string     `json:"text"`
	UserID   *uuid.UUID `json:"user_id,omitempty"`
	ThreadID *uuid.UUID `json:"thread_id,omitempty"`
}

// NewAuditEmitter constructs an emitter bound to one routing key.
func NewAuditEmitter(publisher Publisher, routingKey, service, environment string) *AuditEmitter {
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
	}
}

// Emit publishes one audit record. A nil emitter or publisher is a no-op
// so call sites need no broker-availability checks.
func (e *AuditEmitter) Emit(ctx context.Context, requestID string, detail AuditDetail) {
	if e == nil || e.publisher == nil {
		return
	}
	if detail.Level == "" {
		detail.Level = "info"
	}

	record := AuditRecord{
		SchemaVersion: 1,
		OccurredAt:    time.Now().UTC(),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     requestID,
		Detail:        detail,
	}

	if err := e.publisher.Publish(ctx, e.routingKey, record); err != nil {
		log.Printf("audit publish failed: %v", err)
	}
}
