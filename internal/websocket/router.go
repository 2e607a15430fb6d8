package websocket

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"chat-relay/internal/models"
	"chat-relay/pkg/logger"

	"github.com/google/uuid"
)

// MaxTextLength is the largest chat text accepted, in bytes.
const MaxTextLength = 4096

var (
	ErrInvalidMessage = errors.New("sender, room and text are required")
	ErrTextTooLong    = fmt.Errorf("text exceeds %d bytes", MaxTextLength)
	ErrPersistFailed  = errors.New("failed to persist message")
)

// Router persists inbound chat messages and fans them out to the room's
// recipients.
type Router struct {
	messages MessageStore
	resolver *Resolver
	fanout   Fanout
	unread   UnreadStore
	events   EventPublisher
	timeout  time.Duration
	metrics  *Metrics
	logger   *logger.Logger
	now      func() time.Time
}

type RouterConfig struct {
	Messages MessageStore
	Resolver *Resolver
	Fanout   Fanout
	Unread   UnreadStore    // optional
	Events   EventPublisher // optional
	Timeout  time.Duration
	Metrics  *Metrics
	Logger   *logger.Logger
}

func NewRouter(cfg RouterConfig) *Router {
	return &Router{
		messages: cfg.Messages,
		resolver: cfg.Resolver,
		fanout:   cfg.Fanout,
		unread:   cfg.Unread,
		events:   cfg.Events,
		timeout:  cfg.Timeout,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
		now:      time.Now,
	}
}

// HandleInboundMessage stores the message and delivers it to every open
// connection of every recipient, the sender's own connections included.
// Nothing is delivered unless the message was stored. Delivery failures
// are logged and never returned.
func (r *Router) HandleInboundMessage(ctx context.Context, sender string, room Room, text string) (*models.Message, error) {
	if sender == "" || room == nil || strings.TrimSpace(text) == "" {
		return nil, ErrInvalidMessage
	}
	if len(text) > MaxTextLength {
		return nil, ErrTextTooLong
	}

	msg := &models.Message{
		ID:         uuid.New().String(),
		Sender:     sender,
		Room:       room.Token(),
		Text:       text,
		InsertedAt: r.now().UTC(),
	}

	if err := r.persist(ctx, msg); err != nil {
		r.metrics.PersistFailures.Inc()
		r.logger.Error("Failed to persist message", "sender", sender, "room", msg.Room, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrPersistFailed, err)
	}
	r.metrics.MessagesStored.Inc()

	recipients := r.resolver.ResolveRecipients(ctx, room)

	payload, err := encodeFrame(NewChatFrame(msg))
	if err != nil {
		// The message is stored; it will show up in history.
		r.logger.Error("Failed to encode message frame", "messageID", msg.ID, "error", err)
		return msg, nil
	}

	if err := r.fanout.Deliver(ctx, recipients, payload); err != nil {
		r.logger.Warn("Message fan-out incomplete", "messageID", msg.ID, "room", msg.Room, "error", err)
	}

	r.afterDelivery(ctx, msg, recipients)
	return msg, nil
}

func (r *Router) persist(ctx context.Context, msg *models.Message) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.messages.Create(ctx, msg)
}

// afterDelivery runs the best-effort side effects of a stored message.
func (r *Router) afterDelivery(ctx context.Context, msg *models.Message, recipients []string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	if r.unread != nil {
		others := make([]string, 0, len(recipients))
		for _, id := range recipients {
			if id != msg.Sender {
				others = append(others, id)
			}
		}
		if len(others) > 0 {
			if err := r.unread.Increment(ctx, msg.Room, others); err != nil {
				r.logger.Warn("Failed to update unread counts", "room", msg.Room, "error", err)
			}
		}
	}

	if r.events != nil {
		if err := r.events.PublishMessageCreated(ctx, msg); err != nil {
			r.logger.Warn("Failed to publish message event", "messageID", msg.ID, "error", err)
		}
	}
}
