package websocket

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum frame size allowed from peer. Larger frames end the
	// connection with 1009; chat text is capped separately by maxTextLength.
	maxMessageSize = 64 * 1024
)

var (
	ErrClientDisconnected = errors.New("client disconnected")
	ErrSendBufferFull     = errors.New("send buffer full")
)

// ConnState is the lifecycle state of a connection.
type ConnState int32

const (
	StateConnected ConnState = iota
	StateJoined
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateConnected:
		return "CONNECTED"
	case StateJoined:
		return "JOINED"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Conn is the part of *websocket.Conn the pumps use.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

type Client struct {
	id   string
	hub  *Hub
	conn Conn
	send chan []byte

	// Guarded by mu. Written only from the read goroutine and Disconnect.
	mu       sync.RWMutex
	identity string
	room     Room
	state    ConnState

	// While holding, live frames wait in held so a replayed history is
	// queued ahead of them.
	holdMu  sync.Mutex
	holding bool
	held    [][]byte

	ctx         context.Context
	cancel      context.CancelFunc
	closed      int32
	closeOnce   sync.Once
	closeCode   int
	closeReason string
}

func NewClient(hub *Hub, conn Conn, bufferSize int) *Client {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Client{
		id:        uuid.New().String(),
		hub:       hub,
		conn:      conn,
		send:      make(chan []byte, bufferSize),
		state:     StateConnected,
		ctx:       ctx,
		cancel:    cancel,
		closeCode: websocket.CloseNormalClosure,
	}
}

func (c *Client) GetID() string {
	return c.id
}

// Identity returns the bound identity, empty before join.
func (c *Client) Identity() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.identity
}

// Room returns the joined room or nil.
func (c *Client) Room() Room {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.room
}

func (c *Client) State() ConnState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Client) isClosed() bool {
	return atomic.LoadInt32(&c.closed) == 1
}

// Send queues data for the write pump without blocking. The send channel
// is never closed, so a late Send after Close is safe.
func (c *Client) Send(data []byte) error {
	if c.isClosed() {
		return ErrClientDisconnected
	}
	c.holdMu.Lock()
	if c.holding {
		defer c.holdMu.Unlock()
		if len(c.held) >= cap(c.send) {
			return ErrSendBufferFull
		}
		c.held = append(c.held, data)
		return nil
	}
	c.holdMu.Unlock()
	return c.enqueue(data)
}

func (c *Client) enqueue(data []byte) error {
	select {
	case c.send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// hold starts holding back frames passed to Send.
func (c *Client) hold() {
	c.holdMu.Lock()
	c.holding = true
	c.holdMu.Unlock()
}

// release queues the held frames in arrival order and stops holding. Chat
// messages whose id is in skip were already replayed and are dropped.
func (c *Client) release(skip map[string]struct{}) error {
	c.holdMu.Lock()
	defer c.holdMu.Unlock()

	held := c.held
	c.held, c.holding = nil, false
	for _, data := range held {
		if id := chatMessageID(data); id != "" {
			if _, dup := skip[id]; dup {
				continue
			}
		}
		if err := c.enqueue(data); err != nil {
			return err
		}
	}
	return nil
}

// Close asks the write pump to send a close frame with code and shut the
// transport. Only the first call has an effect.
func (c *Client) Close(code int, reason string) {
	c.closeOnce.Do(func() {
		c.closeCode = code
		c.closeReason = reason
		atomic.StoreInt32(&c.closed, 1)
		c.cancel()
	})
}

func (c *Client) sendFrame(frame any) {
	data, err := encodeFrame(frame)
	if err != nil {
		c.hub.logger.Error("Failed to encode frame", "clientID", c.id, "error", err)
		return
	}
	if err := c.Send(data); err != nil {
		c.hub.Drop(c, err)
	}
}

func (c *Client) readPump() {
	var readErr error
	defer func() {
		c.hub.Disconnect(c)
		code, reason := closeCodeFor(readErr)
		c.Close(code, reason)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			readErr = err
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.hub.logger.Warn("WebSocket closed unexpectedly", "clientID", c.id, "identity", c.Identity(), "error", err)
			} else {
				c.hub.logger.Debug("WebSocket connection closed", "clientID", c.id, "identity", c.Identity(), "error", err)
			}
			return
		}
		if c.isClosed() {
			return
		}

		// Frames of one connection are handled strictly in arrival order.
		c.hub.HandleFrame(c.ctx, c, data)
	}
}

// closeCodeFor picks the close frame answering a read failure. 1000 is
// only echoed when the peer closed first; a stalled or misbehaving peer
// gets a code it may reconnect after. 1006 means no frame is written.
func closeCodeFor(err error) (int, string) {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		switch closeErr.Code {
		case websocket.CloseAbnormalClosure:
			return websocket.CloseAbnormalClosure, ""
		case websocket.CloseNoStatusReceived:
			return websocket.CloseNormalClosure, ""
		default:
			return closeErr.Code, ""
		}
	}

	if errors.Is(err, websocket.ErrReadLimit) {
		return websocket.CloseMessageTooBig, ""
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return websocket.CloseTryAgainLater, "read timeout"
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return websocket.CloseAbnormalClosure, ""
	}
	return websocket.CloseInternalServerErr, "read failed"
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.hub.logger.Debug("Error writing message", "clientID", c.id, "error", err)
				c.Close(websocket.CloseAbnormalClosure, "")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.hub.logger.Debug("Error sending ping", "clientID", c.id, "error", err)
				c.Close(websocket.CloseAbnormalClosure, "")
				return
			}

		case <-c.ctx.Done():
			c.flush()
			if c.closeCode != websocket.CloseAbnormalClosure {
				msg := websocket.FormatCloseMessage(c.closeCode, c.closeReason)
				_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
			}
			return
		}
	}
}

// flush writes frames that were queued before Close.
func (c *Client) flush() {
	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		default:
			return
		}
	}
}

// ServeWS upgrades the request and starts the connection's pumps.
func ServeWS(hub *Hub, upgrader *websocket.Upgrader, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Error("Failed to upgrade WebSocket connection", "remoteAddr", r.RemoteAddr, "error", err)
		return
	}

	client := NewClient(hub, conn, hub.opts.SendBufferSize)
	hub.Attach(client)
	hub.logger.Info("New WebSocket connection established", "clientID", client.id, "remoteAddr", r.RemoteAddr)

	go client.writePump()
	go client.readPump()
}
