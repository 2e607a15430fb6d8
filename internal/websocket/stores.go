package websocket

import (
	"context"
	"time"

	"chat-relay/internal/models"
)

// MessageStore persists chat messages and reads room history.
type MessageStore interface {
	Create(ctx context.Context, msg *models.Message) error
	ListByRoom(ctx context.Context, room string, limit int) ([]models.Message, error)
}

// MembershipStore lists the members of a group room.
type MembershipStore interface {
	ListMembers(ctx context.Context, groupID string) ([]string, error)
}

// UnreadStore keeps per user, per room unread counters.
type UnreadStore interface {
	Increment(ctx context.Context, room string, userIDs []string) error
	Reset(ctx context.Context, userID, room string) error
}

// PresenceTracker records online transitions and last-seen times outside
// the process. The registry stays the source of truth for "online".
type PresenceTracker interface {
	SetUserOnline(ctx context.Context, userID string) error
	SetUserOffline(ctx context.Context, userID string, at time.Time) error
	LastSeen(ctx context.Context) (map[string]time.Time, error)
}

// EventPublisher announces stored messages to downstream consumers.
type EventPublisher interface {
	PublishMessageCreated(ctx context.Context, msg *models.Message) error
}
