package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"chat-backend/internal/telemetry"
)

// RegisterDebugRoutes wires debug-only endpoints.
func RegisterDebugRoutes(router *gin.Engine, emitter *telemetry.AuditEmitter, enabled bool) {
	if !enabled {
		return
	}

	router.POST("/debug/audit", func(c *gin.Context) {
		var req struct {
			Level    string     `json:"level"`
			Text     string     `json:"text" binding:"required"`
			UserID   *uuid.UUID `json:"user_id"`
			ThreadID *uuid.UUID `json:"thread_id"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		emitter.Emit(c.Request.Context(), requestIDFromContext(c), telemetry.AuditDetail{
			Level:    req.Level,
			Text:     req.Text,
			UserID:   req.UserID,
			ThreadID: req.ThreadID,
		})
		c.Status(http.StatusAccepted)
	})
}
