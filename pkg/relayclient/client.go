package relayclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"chat-relay/pkg/logger"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

var ErrNotConnected = errors.New("not connected")

// Frame is the union of every frame the relay sends or accepts.
type Frame struct {
	Type       string     `json:"type"`
	Name       string     `json:"name,omitempty"`
	ID         string     `json:"id,omitempty"`
	ClientID   string     `json:"client_id,omitempty"`
	Username   string     `json:"username,omitempty"`
	User       string     `json:"user,omitempty"`
	Room       string     `json:"room,omitempty"`
	Text       string     `json:"text,omitempty"`
	InsertedAt *time.Time `json:"inserted_at,omitempty"`
	Online     *bool      `json:"online,omitempty"`
	LastSeen   *time.Time `json:"last_seen,omitempty"`
	Users      []Presence `json:"users,omitempty"`
	Code       string     `json:"code,omitempty"`
	Message    string     `json:"message,omitempty"`
}

type Presence struct {
	ID       string     `json:"id"`
	Online   bool       `json:"online"`
	LastSeen *time.Time `json:"last_seen"`
}

type Config struct {
	URL  string
	Name string
	Room string // optional

	Dialer  *websocket.Dialer
	Clock   clock.Clock
	Backoff *Backoff
	Logger  *logger.Logger

	OnConnect   func()
	OnFrame     func(Frame)
	OnReconnect func(attempt int, delay time.Duration)
}

// Client keeps one relay connection alive, rejoining after every
// reconnect.
type Client struct {
	cfg Config

	writeMu sync.Mutex
	mu      sync.Mutex
	conn    *websocket.Conn
	closed  bool
	done    chan struct{}
}

func New(cfg Config) *Client {
	if cfg.Dialer == nil {
		cfg.Dialer = &websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Backoff == nil {
		cfg.Backoff = NewBackoff()
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	return &Client{cfg: cfg, done: make(chan struct{})}
}

// Run connects and reconnects until ctx is done, Close is called, or the
// server closes with 1000. The last two return nil.
func (c *Client) Run(ctx context.Context) error {
	for {
		err := c.session(ctx)
		if c.isClosed() {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !ShouldReconnect(err) {
			c.cfg.Logger.Info("Relay closed the connection normally", "url", c.cfg.URL)
			return nil
		}

		delay := c.cfg.Backoff.Next()
		timer := c.cfg.Clock.Timer(delay)
		c.cfg.Logger.Warn("Relay connection lost, reconnecting",
			"attempt", c.cfg.Backoff.Attempt(), "delay", delay, "error", err)
		if c.cfg.OnReconnect != nil {
			c.cfg.OnReconnect(c.cfg.Backoff.Attempt(), delay)
		}

		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-c.done:
			timer.Stop()
			return nil
		}
	}
}

// session runs one connection from dial to read failure.
func (c *Client) session(ctx context.Context) error {
	conn, _, err := c.cfg.Dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.cfg.URL, err)
	}
	defer conn.Close()
	c.cfg.Backoff.Reset()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.conn = conn
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
	}()

	if err := c.Send(Frame{Type: "join", Name: c.cfg.Name, Room: c.cfg.Room}); err != nil {
		return err
	}
	c.cfg.Logger.Info("Connected to relay", "url", c.cfg.URL, "name", c.cfg.Name)
	if c.cfg.OnConnect != nil {
		c.cfg.OnConnect()
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.cfg.Logger.Warn("Ignoring malformed frame from relay", "error", err)
			continue
		}
		if c.cfg.OnFrame != nil {
			c.cfg.OnFrame(f)
		}
	}
}

// Send writes one frame on the current connection.
func (c *Client) Send(f Frame) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(f)
}

// SendMessage sends a chat message. An empty room means the joined room.
func (c *Client) SendMessage(room, text, clientID string) error {
	return c.Send(Frame{Type: "message", Room: room, Text: text, ClientID: clientID})
}

// Close ends Run without reconnecting. The relay sees a normal closure.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
		return conn.Close()
	}
	return nil
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
