package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"chat-backend/internal/models"
	"chat-backend/internal/repositories"
)

// ThreadHandler manages thread endpoints.
type ThreadHandler struct {
	threads repositories.ThreadRepository
	users   repositories.UserRepository
}

// NewThreadHandler builds a ThreadHandler.
func NewThreadHandler(threads repositories.ThreadRepository, users repositories.UserRepository) *ThreadHandler {
	return &ThreadHandler{threads: threads, users: users}
}

// ListThreads returns the caller's threads, most recently updated first.
func (h *ThreadHandler) ListThreads(c *gin.Context) {
	userID := userIDFromContext(c)

	threads, err := h.threads.ListThreadsForUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load threads"})
		return
	}

	partnerIDs := make([]uuid.UUID, 0, len(threads))
	for _, t := range threads {
		partnerIDs = append(partnerIDs, t.PartnerID)
	}

	partners, err := h.users.GetUsers(c.Request.Context(), partnerIDs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load partners"})
		return
	}
	partnerByID := make(map[uuid.UUID]models.UserSummary, len(partners))
	for _, p := range partners {
		partnerByID[p.ID] = p.Summary()
	}

	type threadResponse struct {
		ThreadID uuid.UUID          `json:"thread_id"`
		Partner  models.UserSummary `json:"partner"`
		Updated  time.Time          `json:"updated"`
	}

	responses := make([]threadResponse, 0, len(threads))
	for _, t := range threads {
		responses = append(responses, threadResponse{
			ThreadID: t.ThreadID,
			Partner:  partnerByID[t.PartnerID],
			Updated:  t.Updated,
		})
	}

	c.JSON(http.StatusOK, gin.H{"threads": responses})
}

// CreateThread creates or returns the existing thread with another user.
func (h *ThreadHandler) CreateThread(c *gin.Context) {
	var req struct {
		UserID uuid.UUID `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := userIDFromContext(c)
	if userID == req.UserID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot start a thread with yourself"})
		return
	}

	if _, err := h.users.GetUser(c.Request.Context(), req.UserID); err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load user"})
		return
	}

	thread, err := h.threads.CreateOrGetThread(c.Request.Context(), userID, req.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create thread"})
		return
	}

	c.JSON(http.StatusCreated, thread)
}
