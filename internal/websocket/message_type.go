package websocket

import (
	"encoding/json"
	"time"

	"chat-relay/internal/models"
	"chat-relay/pkg/response"
)

// FrameType is the `type` discriminator of every JSON frame.
type FrameType string

const (
	// Client to server
	FrameJoin           FrameType = "join"
	FrameGetActiveUsers FrameType = "get_active_users"

	// Both directions
	FrameMessage FrameType = "message"
	FrameStatus  FrameType = "status"
	FrameTyping  FrameType = "typing"

	// Server to client
	FrameHistory     FrameType = "history"
	FrameActiveUsers FrameType = "active_users"
	FrameAck         FrameType = "ack"
	FrameError       FrameType = "error"
)

func (ft FrameType) String() string {
	return string(ft)
}

// IsInbound reports whether clients may send this type.
func (ft FrameType) IsInbound() bool {
	switch ft {
	case FrameJoin, FrameMessage, FrameStatus, FrameGetActiveUsers, FrameTyping:
		return true
	default:
		return false
	}
}

// InboundFrame is the union of every client to server frame.
type InboundFrame struct {
	Type     FrameType `json:"type"`
	Name     string    `json:"name,omitempty"`
	Room     string    `json:"room,omitempty"`
	Text     string    `json:"text,omitempty"`
	ClientID string    `json:"client_id,omitempty"`
	Username string    `json:"username,omitempty"`
	Online   *bool     `json:"online,omitempty"`
}

// ChatFrame is used for both live `message` and replayed `history` frames.
type ChatFrame struct {
	Type       FrameType `json:"type"`
	ID         string    `json:"id"`
	Username   string    `json:"username"`
	Text       string    `json:"text"`
	InsertedAt time.Time `json:"inserted_at"`
	Room       string    `json:"room"`
}

type StatusFrame struct {
	Type     FrameType  `json:"type"`
	User     string     `json:"user"`
	Online   bool       `json:"online"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
}

type UserPresence struct {
	ID       string     `json:"id"`
	Online   bool       `json:"online"`
	LastSeen *time.Time `json:"last_seen"`
}

type ActiveUsersFrame struct {
	Type  FrameType      `json:"type"`
	Users []UserPresence `json:"users"`
}

type TypingFrame struct {
	Type     FrameType `json:"type"`
	Username string    `json:"username"`
	Room     string    `json:"room"`
}

type AckFrame struct {
	Type       FrameType `json:"type"`
	ID         string    `json:"id"`
	ClientID   string    `json:"client_id,omitempty"`
	Room       string    `json:"room"`
	InsertedAt time.Time `json:"inserted_at"`
}

type ErrorFrame struct {
	Type     FrameType `json:"type"`
	Code     string    `json:"code"`
	Message  string    `json:"message"`
	ClientID string    `json:"client_id,omitempty"`
}

// Frame constructors

func NewChatFrame(msg *models.Message) ChatFrame {
	return ChatFrame{
		Type:       FrameMessage,
		ID:         msg.ID,
		Username:   msg.Sender,
		Text:       msg.Text,
		InsertedAt: msg.InsertedAt,
		Room:       msg.Room,
	}
}

func NewHistoryFrame(msg *models.Message) ChatFrame {
	f := NewChatFrame(msg)
	f.Type = FrameHistory
	return f
}

func NewStatusFrame(user string, online bool, lastSeen *time.Time) StatusFrame {
	return StatusFrame{Type: FrameStatus, User: user, Online: online, LastSeen: lastSeen}
}

func NewAckFrame(msg *models.Message, clientID string) AckFrame {
	return AckFrame{
		Type:       FrameAck,
		ID:         msg.ID,
		ClientID:   clientID,
		Room:       msg.Room,
		InsertedAt: msg.InsertedAt,
	}
}

// NewErrorFrame uses the default text for code when message is empty.
func NewErrorFrame(code, message, clientID string) ErrorFrame {
	if message == "" {
		message = response.Message(code)
	}
	return ErrorFrame{Type: FrameError, Code: code, Message: message, ClientID: clientID}
}

func encodeFrame(frame any) ([]byte, error) {
	return json.Marshal(frame)
}

// chatMessageID returns the id of an encoded message frame, or "" for any
// other frame.
func chatMessageID(data []byte) string {
	var head struct {
		Type FrameType `json:"type"`
		ID   string    `json:"id"`
	}
	if err := json.Unmarshal(data, &head); err != nil || head.Type != FrameMessage {
		return ""
	}
	return head.ID
}
