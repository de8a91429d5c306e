package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"chat-backend/internal/models"
	"chat-backend/internal/observability"
	"chat-backend/internal/presence"
	"chat-backend/internal/repositories"
)

const (
	// closeUnauthenticated is sent when the socket cannot be attributed to
	// a user.
	closeUnauthenticated = 4001

	ingestTimeout = 10 * time.Second
)

// TokenVerifier resolves a bearer token to a user id.
type TokenVerifier interface {
	Verify(token string) (uuid.UUID, error)
}

// Ingestor is the message ingestion pipeline entry point.
type Ingestor interface {
	Ingest(ctx context.Context, threadID, senderID uuid.UUID, text string) (models.Message, error)
}

// Handler owns the websocket endpoint: it authenticates the socket,
// registers it, drives presence transitions, and feeds inbound chat
// messages into the ingestion pipeline.
type Handler struct {
	registry *Registry
	tracker  *presence.Tracker
	pipeline Ingestor
	users    repositories.UserRepository
	verifier TokenVerifier
}

// NewHandler constructs a websocket Handler.
func NewHandler(registry *Registry, tracker *presence.Tracker, pipeline Ingestor, users repositories.UserRepository, verifier TokenVerifier) *Handler {
	return &Handler{
		registry: registry,
		tracker:  tracker,
		pipeline: pipeline,
		users:    users,
		verifier: verifier,
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades the connection and runs it until close.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("chat-backend/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	socket, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	token := bearerToken(c)
	userID, err := h.authenticate(c.Request.Context(), token)
	if err != nil {
		msg := websocket.FormatCloseMessage(closeUnauthenticated, "unauthenticated")
		_ = socket.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		_ = socket.Close()
		return
	}

	meta := connMetaFromRequest(c.Request, span.SpanContext().TraceID().String())
	conn := NewConn(userID, socket, meta)
	conn.Start()

	if err := h.registry.Register(userID, conn); err != nil {
		return
	}

	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	h.publishLifecycle(context.Background(), conn, "ws_connect", "")

	if change, err := h.tracker.MarkOnline(context.Background(), userID); err != nil {
		log.Printf("presence mark online failed user=%s: %v", userID, err)
	} else if change != nil {
		go h.tracker.Notify(change)
	}

	go h.readLoop(conn)
}

func (h *Handler) readLoop(conn *Conn) {
	var closeReason string
	defer func() {
		h.registry.Unregister(conn.UserID, conn)
		conn.Close(websocket.CloseNormalClosure, "")

		observability.DecWSActive()
		observability.IncWSEvent("ws_disconnect")
		h.publishLifecycle(context.Background(), conn, "ws_disconnect", closeReason)

		ctx, cancel := context.WithTimeout(context.Background(), ingestTimeout)
		defer cancel()
		if change, err := h.tracker.MarkOffline(ctx, conn.UserID); err != nil {
			log.Printf("presence mark offline failed user=%s: %v", conn.UserID, err)
		} else if change != nil {
			go h.tracker.Notify(change)
		}
	}()

	for {
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("ws_error")
				h.publishLifecycle(context.Background(), conn, "ws_error", closeReason)
			}
			return
		}
		h.handleInbound(conn, data)
	}
}

func (h *Handler) handleInbound(conn *Conn, data []byte) {
	var event models.InboundEvent
	if err := json.Unmarshal(data, &event); err != nil {
		log.Printf("ws inbound malformed user=%s: %v", conn.UserID, err)
		return
	}
	if event.Type != models.EventTypeChatMessage {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), ingestTimeout)
	defer cancel()
	if _, err := h.pipeline.Ingest(ctx, event.ThreadID, conn.UserID, event.Message); err != nil {
		log.Printf("ws ingest rejected user=%s thread=%s: %v", conn.UserID, event.ThreadID, err)
	}
}

func (h *Handler) authenticate(ctx context.Context, token string) (uuid.UUID, error) {
	userID, err := h.verifier.Verify(token)
	if err != nil {
		return uuid.Nil, err
	}
	if _, err := h.users.GetUser(ctx, userID); err != nil {
		return uuid.Nil, err
	}
	return userID, nil
}

func (h *Handler) publishLifecycle(ctx context.Context, conn *Conn, event, reason string) {
	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"event":       event,
			"conn_id":     conn.ID,
			"duration_ms": time.Since(conn.Meta.ConnectedAt).Milliseconds(),
			"reason":      reason,
		},
		"identity": map[string]interface{}{
			"user_id":   conn.UserID.String(),
			"device_id": conn.Meta.DeviceID,
			"ip":        conn.Meta.IP,
		},
	}
	headers := observability.BuildHeaders(conn.Meta.RequestID, conn.Meta.TraceID)
	_ = observability.PublishEvent(ctx, "ws_events.chat", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload:   payload,
	}, headers)
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header != "" {
		const prefix = "Bearer "
		if len(header) > len(prefix) && header[:len(prefix)] == prefix {
			return header[len(prefix):]
		}
		return header
	}
	return c.Query("token")
}
