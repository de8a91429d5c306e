package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"chat-backend/internal/ingest"
	"chat-backend/internal/repositories"
)

// MessageHandler manages message endpoints. Sends go through the ingestion
// pipeline so HTTP-originated messages get the same persistence, fan-out,
// and bot-reply behavior as websocket-originated ones.
type MessageHandler struct {
	threads  repositories.ThreadRepository
	messages repositories.MessageRepository
	pipeline Ingestor
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(threads repositories.ThreadRepository, messages repositories.MessageRepository, pipeline Ingestor) *MessageHandler {
	return &MessageHandler{threads: threads, messages: messages, pipeline: pipeline}
}

// ListMessages returns all thread messages in chronological order.
func (h *MessageHandler) ListMessages(c *gin.Context) {
	threadID, err := uuid.Parse(c.Param("thread_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid thread id"})
		return
	}

	thread, err := h.threads.GetThread(c.Request.Context(), threadID)
	if err != nil {
		if errors.Is(err, repositories.ErrThreadNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "thread not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load thread"})
		return
	}
	if !thread.HasParticipant(userIDFromContext(c)) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a thread participant"})
		return
	}

	msgs, err := h.messages.ListMessages(c.Request.Context(), threadID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// PostMessage ingests a message sent over HTTP. Fan-out to both
// participants' live connections happens before the response returns.
func (h *MessageHandler) PostMessage(c *gin.Context) {
	threadID, err := uuid.Parse(c.Param("thread_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid thread id"})
		return
	}

	var req struct {
		Message string `json:"message" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.pipeline.Ingest(c.Request.Context(), threadID, userIDFromContext(c), req.Message)
	if err != nil {
		switch {
		case errors.Is(err, ingest.ErrThreadNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "thread not found"})
		case errors.Is(err, ingest.ErrNotParticipant):
			c.JSON(http.StatusForbidden, gin.H{"error": "not a thread participant"})
		case errors.Is(err, ingest.ErrEmptyMessage):
			c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store message"})
		}
		return
	}

	c.JSON(http.StatusCreated, msg)
}
