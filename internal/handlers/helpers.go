package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"chat-backend/internal/middleware"
	"chat-backend/internal/models"
)

const requestIDContextKey = "request_id"

// Ingestor is the message ingestion pipeline entry point, narrowed for
// handler use.
type Ingestor interface {
	Ingest(ctx context.Context, threadID, senderID uuid.UUID, text string) (models.Message, error)
}

// TokenIssuer signs session tokens.
type TokenIssuer interface {
	Sign(userID uuid.UUID) (string, error)
}

func requestIDFromContext(c *gin.Context) string {
	if val, ok := c.Get(requestIDContextKey); ok {
		if id, ok := val.(string); ok && id != "" {
			return id
		}
	}

	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(requestIDContextKey, requestID)
	return requestID
}

func userIDFromContext(c *gin.Context) uuid.UUID {
	if val, ok := c.Get(middleware.ContextUserID); ok {
		if id, ok := val.(uuid.UUID); ok {
			return id
		}
	}
	return uuid.Nil
}
