package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"chat-relay/pkg/logger"
	"chat-relay/pkg/response"

	"github.com/gorilla/websocket"
)

// Dependencies are the hub's collaborators. Only Messages is required.
type Dependencies struct {
	Messages MessageStore
	Members  MembershipStore
	Unread   UnreadStore
	Presence PresenceTracker
	Events   EventPublisher
	Metrics  *Metrics
	Logger   *logger.Logger

	// WrapFanout replaces local delivery, e.g. with Redis pub/sub.
	WrapFanout func(*LocalFanout) Fanout
}

type Options struct {
	HistoryLimit   int
	StorageTimeout time.Duration
	SendBufferSize int
}

// Hub owns the connection lifecycle: join, frame dispatch, presence
// and disconnect. Each connection's read goroutine calls into the hub
// directly; the registry is the only shared mutable state.
type Hub struct {
	registry *Registry
	resolver *Resolver
	router   *Router
	local    *LocalFanout
	fanout   Fanout

	messages MessageStore
	unread   UnreadStore
	presence PresenceTracker

	metrics *Metrics
	logger  *logger.Logger
	opts    Options
	now     func() time.Time

	mu      sync.Mutex
	clients map[*Client]struct{}
	closing bool
}

func NewHub(deps Dependencies, opts Options) *Hub {
	if opts.StorageTimeout <= 0 {
		opts.StorageTimeout = 5 * time.Second
	}
	if opts.SendBufferSize <= 0 {
		opts.SendBufferSize = 256
	}
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics(nil)
	}
	if deps.Logger == nil {
		deps.Logger = logger.NewNop()
	}

	h := &Hub{
		registry: NewRegistry(),
		messages: deps.Messages,
		unread:   deps.Unread,
		presence: deps.Presence,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
		opts:     opts,
		now:      time.Now,
		clients:  make(map[*Client]struct{}),
	}

	h.local = NewLocalFanout(h.registry, h.Drop, h.metrics, h.logger)
	h.fanout = h.local
	if deps.WrapFanout != nil {
		h.fanout = deps.WrapFanout(h.local)
	}
	h.resolver = NewResolver(deps.Members, opts.StorageTimeout, h.metrics, h.logger)
	h.router = NewRouter(RouterConfig{
		Messages: deps.Messages,
		Resolver: h.resolver,
		Fanout:   h.fanout,
		Unread:   deps.Unread,
		Events:   deps.Events,
		Timeout:  opts.StorageTimeout,
		Metrics:  h.metrics,
		Logger:   h.logger,
	})
	return h
}

func (h *Hub) Registry() *Registry {
	return h.registry
}

func (h *Hub) Router() *Router {
	return h.router
}

// LocalFanout is the in-process delivery path, used by the Redis
// subscriber.
func (h *Hub) LocalFanout() *LocalFanout {
	return h.local
}

// Attach tracks a freshly upgraded connection.
func (h *Hub) Attach(c *Client) {
	h.mu.Lock()
	closing := h.closing
	if !closing {
		h.clients[c] = struct{}{}
		h.metrics.ConnectionsActive.Inc()
	}
	h.mu.Unlock()

	if closing {
		c.Close(websocket.CloseGoingAway, "server shutting down")
	}
}

// HandleFrame decodes and dispatches one inbound frame. Bad frames are
// answered with an error frame and never close the connection.
func (h *Hub) HandleFrame(ctx context.Context, c *Client, data []byte) {
	var f InboundFrame
	if err := json.Unmarshal(data, &f); err != nil {
		h.logger.Warn("Discarding malformed frame", "clientID", c.id, "error", err)
		h.reject(c, response.CodeInvalidFrame, "", "")
		return
	}
	if !f.Type.IsInbound() {
		h.logger.Warn("Discarding frame of unknown type", "clientID", c.id, "type", f.Type)
		h.reject(c, response.CodeUnknownType, "", f.ClientID)
		return
	}
	h.metrics.FramesReceived.WithLabelValues(f.Type.String()).Inc()

	if f.Type != FrameJoin && c.State() != StateJoined {
		h.reject(c, response.CodeNotJoined, "", f.ClientID)
		return
	}

	switch f.Type {
	case FrameJoin:
		h.handleJoin(ctx, c, &f)
	case FrameMessage:
		h.handleMessage(ctx, c, &f)
	case FrameTyping:
		h.handleTyping(ctx, c, &f)
	case FrameStatus:
		h.handleStatus(ctx, c, &f)
	case FrameGetActiveUsers:
		c.sendFrame(ActiveUsersFrame{Type: FrameActiveUsers, Users: h.ActiveUsers(ctx)})
	}
}

func (h *Hub) handleJoin(ctx context.Context, c *Client, f *InboundFrame) {
	identity := f.Name
	if err := ValidateIdentity(identity); err != nil {
		h.reject(c, response.CodeInvalidIdentity, "", f.ClientID)
		return
	}

	var room Room
	if f.Room != "" {
		r, err := ParseRoom(f.Room)
		if err != nil {
			h.reject(c, response.CodeInvalidRoom, "", f.ClientID)
			return
		}
		room = r
	}

	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	prevIdentity, prevRoom := c.identity, c.room
	prevLast := false
	if prevIdentity != "" && prevIdentity != identity {
		prevLast = h.registry.Unregister(prevIdentity, c)
	}
	c.identity = identity
	c.room = room
	c.state = StateJoined
	replay := room != nil && h.opts.HistoryLimit > 0 && h.messages != nil
	if replay {
		c.hold()
	}
	first := h.registry.Register(identity, c)
	c.mu.Unlock()

	h.metrics.UsersOnline.Set(float64(h.registry.UserCount()))
	h.logger.Info("Client joined", "clientID", c.id, "identity", identity, "room", tokenOf(room))

	if prevLast {
		h.markOffline(ctx, prevIdentity, prevRoom)
	}
	if first {
		h.markOnline(ctx, identity, room)
	}
	if replay {
		replayed := h.replayHistory(ctx, c, room)
		if err := c.release(replayed); err != nil {
			h.Drop(c, err)
		}
	}
	if room != nil {
		h.resetUnread(ctx, identity, room)
	}
}

func (h *Hub) handleMessage(ctx context.Context, c *Client, f *InboundFrame) {
	identity := c.Identity()
	room, ok := h.targetRoom(c, f)
	if !ok {
		return
	}
	if direct, isDirect := room.(DirectRoom); isDirect && !direct.Has(identity) {
		h.reject(c, response.CodeInvalidRoom, "sender is not a participant of this direct room", f.ClientID)
		return
	}
	if strings.TrimSpace(f.Text) == "" {
		h.reject(c, response.CodeInvalidMessage, "", f.ClientID)
		return
	}
	if len(f.Text) > MaxTextLength {
		h.reject(c, response.CodeInvalidMessage, ErrTextTooLong.Error(), f.ClientID)
		return
	}

	msg, err := h.router.HandleInboundMessage(ctx, identity, room, f.Text)
	if err != nil {
		switch {
		case errors.Is(err, ErrPersistFailed):
			h.reject(c, response.CodePersistFailed, "", f.ClientID)
		case errors.Is(err, ErrInvalidMessage), errors.Is(err, ErrTextTooLong):
			h.reject(c, response.CodeInvalidMessage, "", f.ClientID)
		default:
			h.reject(c, response.CodeInternal, "", f.ClientID)
		}
		return
	}
	c.sendFrame(NewAckFrame(msg, f.ClientID))
}

// handleTyping relays a typing notice to the room's other members.
func (h *Hub) handleTyping(ctx context.Context, c *Client, f *InboundFrame) {
	identity := c.Identity()
	room, ok := h.targetRoom(c, f)
	if !ok {
		return
	}

	payload, err := encodeFrame(TypingFrame{Type: FrameTyping, Username: identity, Room: room.Token()})
	if err != nil {
		h.logger.Error("Failed to encode typing frame", "error", err)
		return
	}
	recipients := without(h.resolver.ResolveRecipients(ctx, room), identity)
	if err := h.fanout.Deliver(ctx, recipients, payload); err != nil {
		h.logger.Debug("Typing notice fan-out incomplete", "room", room.Token(), "error", err)
	}
}

// handleStatus relays a client declared presence change, e.g. "away". It
// does not touch the registry.
func (h *Hub) handleStatus(ctx context.Context, c *Client, f *InboundFrame) {
	online := true
	if f.Online != nil {
		online = *f.Online
	}
	var lastSeen *time.Time
	if !online {
		at := h.now().UTC()
		lastSeen = &at
	}
	h.announce(ctx, c.Identity(), c.Room(), NewStatusFrame(c.Identity(), online, lastSeen))
}

// targetRoom picks the frame's room, falling back to the joined room.
func (h *Hub) targetRoom(c *Client, f *InboundFrame) (Room, bool) {
	if f.Room != "" {
		room, err := ParseRoom(f.Room)
		if err != nil {
			h.reject(c, response.CodeInvalidRoom, "", f.ClientID)
			return nil, false
		}
		return room, true
	}
	if room := c.Room(); room != nil {
		return room, true
	}
	h.reject(c, response.CodeRoomRequired, "", f.ClientID)
	return nil, false
}

// replayHistory queues the room's recent messages straight onto c, ahead
// of any held live frames, and returns the ids it replayed.
func (h *Hub) replayHistory(ctx context.Context, c *Client, room Room) map[string]struct{} {
	qctx, cancel := context.WithTimeout(ctx, h.opts.StorageTimeout)
	defer cancel()
	history, err := h.messages.ListByRoom(qctx, room.Token(), h.opts.HistoryLimit)
	if err != nil {
		h.logger.Error("Failed to load room history", "room", room.Token(), "error", err)
		return nil
	}

	replayed := make(map[string]struct{}, len(history))
	for i := range history {
		data, err := encodeFrame(NewHistoryFrame(&history[i]))
		if err != nil {
			h.logger.Error("Failed to encode history frame", "messageID", history[i].ID, "error", err)
			continue
		}
		if err := c.enqueue(data); err != nil {
			h.Drop(c, err)
			return replayed
		}
		replayed[history[i].ID] = struct{}{}
	}
	return replayed
}

func (h *Hub) resetUnread(ctx context.Context, identity string, room Room) {
	if h.unread == nil {
		return
	}
	qctx, cancel := context.WithTimeout(ctx, h.opts.StorageTimeout)
	defer cancel()
	if err := h.unread.Reset(qctx, identity, room.Token()); err != nil {
		h.logger.Warn("Failed to reset unread count", "identity", identity, "room", room.Token(), "error", err)
	}
}

func (h *Hub) markOnline(ctx context.Context, identity string, room Room) {
	if h.presence != nil {
		pctx, cancel := context.WithTimeout(ctx, h.opts.StorageTimeout)
		if err := h.presence.SetUserOnline(pctx, identity); err != nil {
			h.logger.Warn("Failed to set user online", "identity", identity, "error", err)
		}
		cancel()
	}
	h.announce(ctx, identity, room, NewStatusFrame(identity, true, nil))
}

func (h *Hub) markOffline(ctx context.Context, identity string, room Room) {
	at := h.now().UTC()
	if h.presence != nil {
		pctx, cancel := context.WithTimeout(ctx, h.opts.StorageTimeout)
		if err := h.presence.SetUserOffline(pctx, identity, at); err != nil {
			h.logger.Warn("Failed to set user offline", "identity", identity, "error", err)
		}
		cancel()
	}
	h.announce(ctx, identity, room, NewStatusFrame(identity, false, &at))
}

// announce sends a status frame about identity to its audience: the
// recipients of room, or every connected identity when room is nil. The
// subject itself is skipped. Best effort.
func (h *Hub) announce(ctx context.Context, identity string, room Room, frame StatusFrame) {
	var audience []string
	if room != nil {
		audience = h.resolver.ResolveRecipients(ctx, room)
	} else {
		audience = h.registry.OnlineUsers()
	}
	audience = without(audience, identity)
	if len(audience) == 0 {
		return
	}

	payload, err := encodeFrame(frame)
	if err != nil {
		h.logger.Error("Failed to encode status frame", "error", err)
		return
	}
	if err := h.fanout.Deliver(ctx, audience, payload); err != nil {
		h.logger.Debug("Presence fan-out incomplete", "identity", identity, "error", err)
	}
}

// ActiveUsers merges live registry occupancy with recorded last-seen
// times. Online identities carry no last_seen.
func (h *Hub) ActiveUsers(ctx context.Context) []UserPresence {
	online := h.registry.OnlineUsers()
	users := make([]UserPresence, 0, len(online))
	seen := make(map[string]struct{}, len(online))
	for _, id := range online {
		users = append(users, UserPresence{ID: id, Online: true})
		seen[id] = struct{}{}
	}

	if h.presence != nil {
		pctx, cancel := context.WithTimeout(ctx, h.opts.StorageTimeout)
		lastSeen, err := h.presence.LastSeen(pctx)
		cancel()
		if err != nil {
			h.logger.Warn("Failed to load last seen times", "error", err)
		}
		for id, at := range lastSeen {
			if _, ok := seen[id]; ok {
				continue
			}
			at := at.UTC()
			users = append(users, UserPresence{ID: id, Online: false, LastSeen: &at})
		}
	}

	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users
}

// Disconnect moves c to CLOSED and unregisters it. When that removed the
// identity's last connection the identity is announced offline. Safe to
// call more than once.
func (h *Hub) Disconnect(c *Client) {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	identity, room := c.identity, c.room
	c.state = StateClosed
	last := false
	if identity != "" {
		last = h.registry.Unregister(identity, c)
	}
	c.mu.Unlock()

	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		h.metrics.ConnectionsActive.Dec()
	}
	h.mu.Unlock()
	h.metrics.UsersOnline.Set(float64(h.registry.UserCount()))

	h.logger.Info("Client disconnected", "clientID", c.id, "identity", identity)
	if last {
		h.markOffline(context.Background(), identity, room)
	}
}

// Drop closes a connection whose send failed and removes it from the
// registry.
func (h *Hub) Drop(c *Client, err error) {
	if !c.isClosed() {
		h.metrics.ConnectionsDrops.Inc()
		h.logger.Warn("Dropping connection after failed send", "clientID", c.id, "identity", c.Identity(), "error", err)
		c.Close(websocket.CloseTryAgainLater, "send failed")
	}
	h.Disconnect(c)
}

// Shutdown closes every connection with 1001 (going away) and refuses new
// ones.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	h.closing = true
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	h.logger.Info("WebSocket hub shutting down", "connections", len(clients))
	for _, c := range clients {
		c.Close(websocket.CloseGoingAway, "server shutting down")
	}
	for _, c := range clients {
		h.Disconnect(c)
	}
}

func (h *Hub) reject(c *Client, code, message, clientID string) {
	h.metrics.FramesRejected.WithLabelValues(code).Inc()
	c.sendFrame(NewErrorFrame(code, message, clientID))
}

func without(ids []string, skip string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != skip {
			out = append(out, id)
		}
	}
	return out
}

func tokenOf(room Room) string {
	if room == nil {
		return ""
	}
	return room.Token()
}
