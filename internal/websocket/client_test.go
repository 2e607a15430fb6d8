package websocket

import (
	"encoding/binary"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

// failingConn fails every read with readErr and records close frames.
type failingConn struct {
	readErr error

	mu       sync.Mutex
	closures [][]byte
	closed   chan struct{}
	once     sync.Once
}

func newFailingConn(readErr error) *failingConn {
	return &failingConn{readErr: readErr, closed: make(chan struct{})}
}

func (f *failingConn) ReadMessage() (int, []byte, error) { return 0, nil, f.readErr }
func (f *failingConn) WriteMessage(int, []byte) error    { return nil }
func (f *failingConn) SetReadLimit(int64)                {}
func (f *failingConn) SetReadDeadline(time.Time) error   { return nil }
func (f *failingConn) SetWriteDeadline(time.Time) error  { return nil }
func (f *failingConn) SetPongHandler(func(string) error) {}

func (f *failingConn) WriteControl(messageType int, data []byte, _ time.Time) error {
	if messageType == websocket.CloseMessage {
		f.mu.Lock()
		f.closures = append(f.closures, data)
		f.mu.Unlock()
	}
	return nil
}

func (f *failingConn) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

// runPumps runs both pumps until the transport is closed and returns the
// close frames written.
func runPumps(t *testing.T, conn *failingConn) [][]byte {
	t.Helper()
	env := newTestEnv(t, Options{})
	c := NewClient(env.hub, conn, 8)
	env.hub.Attach(c)

	go c.writePump()
	c.readPump()

	select {
	case <-conn.closed:
	case <-time.After(3 * time.Second):
		t.Fatal("transport was not closed")
	}
	assert.Equal(t, StateClosed, c.State())

	conn.mu.Lock()
	defer conn.mu.Unlock()
	return conn.closures
}

func closeCodeOf(t *testing.T, frame []byte) int {
	t.Helper()
	require.GreaterOrEqual(t, len(frame), 2)
	return int(binary.BigEndian.Uint16(frame))
}

func TestClient_ReadTimeoutIsNotANormalClose(t *testing.T) {
	closures := runPumps(t, newFailingConn(timeoutError{}))

	require.Len(t, closures, 1)
	code := closeCodeOf(t, closures[0])
	assert.NotEqual(t, websocket.CloseNormalClosure, code, "a stalled peer must be allowed to reconnect")
	assert.Equal(t, websocket.CloseTryAgainLater, code)
}

func TestClient_PeerNormalCloseIsEchoed(t *testing.T) {
	closures := runPumps(t, newFailingConn(&websocket.CloseError{Code: websocket.CloseNormalClosure}))

	require.Len(t, closures, 1)
	assert.Equal(t, websocket.CloseNormalClosure, closeCodeOf(t, closures[0]))
}

func TestClient_DeadTransportGetsNoCloseFrame(t *testing.T) {
	closures := runPumps(t, newFailingConn(&websocket.CloseError{Code: websocket.CloseAbnormalClosure, Text: io.ErrUnexpectedEOF.Error()}))
	assert.Empty(t, closures)
}

func TestCloseCodeFor(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"peer normal", &websocket.CloseError{Code: websocket.CloseNormalClosure}, websocket.CloseNormalClosure},
		{"peer going away", &websocket.CloseError{Code: websocket.CloseGoingAway}, websocket.CloseGoingAway},
		{"peer no status", &websocket.CloseError{Code: websocket.CloseNoStatusReceived}, websocket.CloseNormalClosure},
		{"abnormal", &websocket.CloseError{Code: websocket.CloseAbnormalClosure}, websocket.CloseAbnormalClosure},
		{"timeout", timeoutError{}, websocket.CloseTryAgainLater},
		{"read limit", websocket.ErrReadLimit, websocket.CloseMessageTooBig},
		{"eof", io.ErrUnexpectedEOF, websocket.CloseAbnormalClosure},
		{"protocol", io.ErrShortBuffer, websocket.CloseInternalServerErr},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, _ := closeCodeFor(tc.err)
			assert.Equal(t, tc.code, code)
		})
	}
}
