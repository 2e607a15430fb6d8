package handlers

import (
	"context"
	"net/http"
	"strconv"

	"chat-relay/internal/models"
	"chat-relay/internal/websocket"
	"chat-relay/pkg/logger"
	"chat-relay/pkg/response"

	"github.com/gin-gonic/gin"
)

const maxHistoryLimit = 200

// HistoryReader reads room history in chronological order.
type HistoryReader interface {
	ListByRoom(ctx context.Context, room string, limit int) ([]models.Message, error)
}

type MessageHandler struct {
	messages     HistoryReader
	defaultLimit int
	logger       *logger.Logger
}

func NewMessageHandler(messages HistoryReader, defaultLimit int, log *logger.Logger) *MessageHandler {
	if defaultLimit <= 0 {
		defaultLimit = 50
	}
	return &MessageHandler{messages: messages, defaultLimit: defaultLimit, logger: log}
}

// GetRoomMessages returns the latest messages of a room, oldest first.
// GET /api/v1/rooms/:room/messages?limit=
func (h *MessageHandler) GetRoomMessages(c *gin.Context) {
	room, err := websocket.ParseRoom(c.Param("room"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(response.CodeInvalidRoom, err.Error()))
		return
	}

	limit := h.defaultLimit
	if l := c.Query("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, response.Error(response.CodeInvalidLimit, ""))
			return
		}
		limit = min(parsed, maxHistoryLimit)
	}

	messages, err := h.messages.ListByRoom(c.Request.Context(), room.Token(), limit)
	if err != nil {
		h.logger.Error("Failed to load room history", "room", room.Token(), "error", err)
		c.JSON(http.StatusInternalServerError, response.Error(response.CodeInternal, "failed to get messages"))
		return
	}

	items := make([]models.MessageResponse, 0, len(messages))
	for i := range messages {
		items = append(items, messages[i].ToResponse())
	}
	c.JSON(http.StatusOK, gin.H{
		"room":  room.Token(),
		"items": items,
		"total": len(items),
	})
}
