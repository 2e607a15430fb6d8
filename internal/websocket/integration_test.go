package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTestServer(t *testing.T, env *testEnv) string {
	t.Helper()
	upgrader := NewUpgrader(nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWS(env.hub, upgrader, w, r)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func writeFrame(t *testing.T, conn *websocket.Conn, f InboundFrame) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(f))
}

// readUntil skips frames until one of type ft arrives.
func readUntil(t *testing.T, conn *websocket.Conn, ft FrameType) testFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var f testFrame
		require.NoError(t, json.Unmarshal(data, &f))
		if f.Type == ft {
			return f
		}
	}
}

// joinAndSync joins and waits until the server has processed the join.
func joinAndSync(t *testing.T, conn *websocket.Conn, name, room string) {
	t.Helper()
	writeFrame(t, conn, InboundFrame{Type: FrameJoin, Name: name, Room: room})
	writeFrame(t, conn, InboundFrame{Type: FrameGetActiveUsers})
	readUntil(t, conn, FrameActiveUsers)
}

func TestIntegration_DirectMessageAcrossTabs(t *testing.T) {
	env := newTestEnv(t, Options{})
	url := startTestServer(t, env)

	aliceTab1, aliceTab2, bob := dial(t, url), dial(t, url), dial(t, url)
	joinAndSync(t, aliceTab1, "alice", "alice_bob")
	joinAndSync(t, aliceTab2, "alice", "alice_bob")
	joinAndSync(t, bob, "bob", "alice_bob")

	writeFrame(t, aliceTab1, InboundFrame{Type: FrameMessage, Text: "hi bob", ClientID: "c-1"})

	echo := readUntil(t, aliceTab1, FrameMessage)
	assert.Equal(t, "hi bob", echo.Text)
	ack := readUntil(t, aliceTab1, FrameAck)
	assert.Equal(t, "c-1", ack.ClientID)
	assert.Equal(t, echo.ID, ack.ID)

	got := readUntil(t, bob, FrameMessage)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, "alice_bob", got.Room)
	assert.Equal(t, echo.ID, got.ID)

	assert.Equal(t, echo.ID, readUntil(t, aliceTab2, FrameMessage).ID)
}

func TestIntegration_OfflineAnnouncedOnClose(t *testing.T) {
	env := newTestEnv(t, Options{})
	url := startTestServer(t, env)

	alice, bob := dial(t, url), dial(t, url)
	joinAndSync(t, alice, "alice", "alice_bob")
	joinAndSync(t, bob, "bob", "alice_bob")

	require.NoError(t, bob.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")))

	status := readUntil(t, alice, FrameStatus)
	for status.User != "bob" || status.Online {
		status = readUntil(t, alice, FrameStatus)
	}
	assert.NotNil(t, status.LastSeen)
	assert.Eventually(t, func() bool {
		return !env.hub.Registry().IsOnline("bob")
	}, time.Second, 10*time.Millisecond)
}

func TestIntegration_MalformedFrameKeepsConnection(t *testing.T) {
	env := newTestEnv(t, Options{})
	url := startTestServer(t, env)

	conn := dial(t, url)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("garbage")))
	errFrame := readUntil(t, conn, FrameError)
	assert.Equal(t, "INVALID_FRAME", errFrame.Code)

	joinAndSync(t, conn, "alice", "")
}

func TestIntegration_ShutdownClosesWithGoingAway(t *testing.T) {
	env := newTestEnv(t, Options{})
	url := startTestServer(t, env)

	conn := dial(t, url)
	joinAndSync(t, conn, "alice", "")

	env.hub.Shutdown()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var err error
	for err == nil {
		_, _, err = conn.ReadMessage()
	}
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}
