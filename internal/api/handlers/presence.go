package handlers

import (
	"context"
	"net/http"

	"chat-relay/internal/models"
	"chat-relay/internal/websocket"
	"chat-relay/pkg/logger"
	"chat-relay/pkg/response"

	"github.com/gin-gonic/gin"
)

// PresenceSource is satisfied by *websocket.Hub.
type PresenceSource interface {
	ActiveUsers(ctx context.Context) []websocket.UserPresence
}

type UnreadLister interface {
	ListForUser(ctx context.Context, userID string) ([]models.UnreadCount, error)
}

type PresenceHandler struct {
	presence PresenceSource
	unread   UnreadLister
	logger   *logger.Logger
}

func NewPresenceHandler(presence PresenceSource, unread UnreadLister, log *logger.Logger) *PresenceHandler {
	return &PresenceHandler{presence: presence, unread: unread, logger: log}
}

// GetPresence returns the same snapshot as an `active_users` frame.
func (h *PresenceHandler) GetPresence(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"users": h.presence.ActiveUsers(c.Request.Context())})
}

// GetUnread lists a user's non-zero unread counters.
// GET /api/v1/users/:id/unread
func (h *PresenceHandler) GetUnread(c *gin.Context) {
	userID := c.Param("id")
	if err := websocket.ValidateIdentity(userID); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(response.CodeInvalidIdentity, err.Error()))
		return
	}

	counts, err := h.unread.ListForUser(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("Failed to list unread counts", "userID", userID, "error", err)
		c.JSON(http.StatusInternalServerError, response.Error(response.CodeInternal, "failed to get unread counts"))
		return
	}
	if counts == nil {
		counts = []models.UnreadCount{}
	}
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "items": counts})
}
