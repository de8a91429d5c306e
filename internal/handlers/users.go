package handlers

import (
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"chat-backend/internal/models"
	"chat-backend/internal/repositories"
)

// UserHandler manages registration, login, and user lookups.
type UserHandler struct {
	users    repositories.UserRepository
	presence repositories.PresenceRepository
	threads  repositories.ThreadRepository
	pipeline Ingestor
	tokens   TokenIssuer
}

// NewUserHandler builds a UserHandler.
func NewUserHandler(users repositories.UserRepository, presence repositories.PresenceRepository, threads repositories.ThreadRepository, pipeline Ingestor, tokens TokenIssuer) *UserHandler {
	return &UserHandler{
		users:    users,
		presence: presence,
		threads:  threads,
		pipeline: pipeline,
		tokens:   tokens,
	}
}

// Register creates an account, its presence record, and the welcome thread
// with the bot.
func (h *UserHandler) Register(c *gin.Context) {
	var req struct {
		Username    string `json:"username" binding:"required"`
		DisplayName string `json:"display_name"`
		Password    string `json:"password" binding:"required,min=8"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not hash password"})
		return
	}

	user, err := h.users.CreateUser(c.Request.Context(), req.Username, req.DisplayName, string(hash), false)
	if err != nil {
		if errors.Is(err, repositories.ErrUsernameTaken) {
			c.JSON(http.StatusConflict, gin.H{"error": "username already taken"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create user"})
		return
	}

	if err := h.presence.EnsurePresence(c.Request.Context(), user.ID); err != nil {
		log.Printf("presence row creation failed user=%s: %v", user.ID, err)
	}

	h.createWelcomeThread(c, user)

	token, err := h.tokens.Sign(user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not issue token"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"user": user, "token": token})
}

// createWelcomeThread starts a thread between the bot and the new user and
// sends the welcome message through the ingestion pipeline, so it fans out
// like any other message. No bot account means no welcome thread.
func (h *UserHandler) createWelcomeThread(c *gin.Context, user models.User) {
	bot, err := h.users.GetBotUser(c.Request.Context())
	if err != nil {
		if !errors.Is(err, repositories.ErrUserNotFound) {
			log.Printf("welcome thread skipped, bot lookup failed: %v", err)
		}
		return
	}

	thread, err := h.threads.CreateOrGetThread(c.Request.Context(), bot.ID, user.ID)
	if err != nil {
		log.Printf("welcome thread creation failed user=%s: %v", user.ID, err)
		return
	}

	display := user.DisplayName
	if display == "" {
		display = user.Username
	}
	welcome := fmt.Sprintf(
		"Welcome, %s! 👋\nI'm your friendly assistant bot. Feel free to start chatting with anyone here. Enjoy!",
		display,
	)
	if _, err := h.pipeline.Ingest(c.Request.Context(), thread.ID, bot.ID, welcome); err != nil {
		log.Printf("welcome message failed thread=%s: %v", thread.ID, err)
	}
}

// Login verifies credentials and returns a session token.
func (h *UserHandler) Login(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.users.GetUserByUsername(c.Request.Context(), req.Username)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token, err := h.tokens.Sign(user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not issue token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user, "token": token})
}

// Me returns the authenticated user.
func (h *UserHandler) Me(c *gin.Context) {
	user, err := h.users.GetUser(c.Request.Context(), userIDFromContext(c))
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load user"})
		return
	}
	c.JSON(http.StatusOK, user)
}

// ListUsers returns accounts the caller can start a thread with.
func (h *UserHandler) ListUsers(c *gin.Context) {
	users, err := h.users.ListUsers(c.Request.Context(), userIDFromContext(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load users"})
		return
	}

	summaries := make([]models.UserSummary, 0, len(users))
	for _, u := range users {
		summaries = append(summaries, u.Summary())
	}
	c.JSON(http.StatusOK, gin.H{"users": summaries})
}

// GetPresence returns the presence record for a user.
func (h *UserHandler) GetPresence(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	record, err := h.presence.GetPresence(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, repositories.ErrPresenceNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "presence not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load presence"})
		return
	}
	c.JSON(http.StatusOK, record)
}
