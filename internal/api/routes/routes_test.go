package routes

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"chat-relay/internal/models"
	"chat-relay/internal/websocket"
	"chat-relay/pkg/logger"
	"chat-relay/pkg/response"

	gorilla "github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHistory struct {
	msgs      []models.Message
	err       error
	lastRoom  string
	lastLimit int
}

func (f *fakeHistory) ListByRoom(_ context.Context, room string, limit int) ([]models.Message, error) {
	f.lastRoom, f.lastLimit = room, limit
	return f.msgs, f.err
}

func (f *fakeHistory) Create(context.Context, *models.Message) error { return nil }

type fakeUnread struct {
	counts []models.UnreadCount
}

func (f *fakeUnread) ListForUser(context.Context, string) ([]models.UnreadCount, error) {
	return f.counts, nil
}

type fakeLimiter struct {
	allowed bool
	err     error
	keys    []string
}

func (f *fakeLimiter) CheckRateLimit(_ context.Context, key string, _ int, _ time.Duration) (bool, error) {
	f.keys = append(f.keys, key)
	return f.allowed, f.err
}

func setupRouter(t *testing.T, history *fakeHistory, limiter *fakeLimiter) (*Router, *websocket.Hub) {
	t.Helper()
	reg := prometheus.NewRegistry()
	hub := websocket.NewHub(websocket.Dependencies{
		Messages: history,
		Metrics:  websocket.NewMetrics(reg),
	}, websocket.Options{})

	deps := Deps{
		Hub:          hub,
		Upgrader:     websocket.NewUpgrader(nil),
		Messages:     history,
		Unread:       &fakeUnread{counts: []models.UnreadCount{{UserID: "alice", Room: "general", Unread: 3}}},
		Gatherer:     reg,
		Logger:       logger.NewNop(),
		HistoryLimit: 25,
		WSRateLimit:  5,
		WSRateWindow: time.Minute,
	}
	if limiter != nil {
		deps.Limiter = limiter
	}
	r := NewRouter(deps)
	r.SetupRoutes()
	return r, hub
}

func doGet(r *Router, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	r.GetEngine().ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	r, _ := setupRouter(t, &fakeHistory{}, nil)
	w := doGet(r, "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestMetricsExposed(t *testing.T) {
	r, _ := setupRouter(t, &fakeHistory{}, nil)
	w := doGet(r, "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "relay_connections_active")
}

func TestRoomMessages(t *testing.T) {
	at := time.Date(2024, 2, 2, 9, 0, 0, 0, time.UTC)
	history := &fakeHistory{msgs: []models.Message{
		{ID: "m1", Sender: "bob", Room: "alice_bob", Text: "one", InsertedAt: at},
		{ID: "m2", Sender: "alice", Room: "alice_bob", Text: "two", InsertedAt: at.Add(time.Second)},
	}}
	r, _ := setupRouter(t, history, nil)

	w := doGet(r, "/api/v1/rooms/bob_alice/messages")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice_bob", history.lastRoom, "token is canonicalised")
	assert.Equal(t, 25, history.lastLimit)

	var body struct {
		Room  string                   `json:"room"`
		Items []models.MessageResponse `json:"items"`
		Total int                      `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Total)
	assert.Equal(t, "m1", body.Items[0].ID)
	assert.Equal(t, "bob", body.Items[0].Username)

	doGet(r, "/api/v1/rooms/general/messages?limit=1000")
	assert.Equal(t, "general", history.lastRoom)
	assert.Equal(t, 200, history.lastLimit)
}

func TestRoomMessages_BadInput(t *testing.T) {
	r, _ := setupRouter(t, &fakeHistory{}, nil)

	w := doGet(r, "/api/v1/rooms/a_b_c/messages")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), response.CodeInvalidRoom)

	w = doGet(r, "/api/v1/rooms/general/messages?limit=zero")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), response.CodeInvalidLimit)
}

func TestRoomMessages_StorageError(t *testing.T) {
	r, _ := setupRouter(t, &fakeHistory{err: errors.New("db down")}, nil)
	w := doGet(r, "/api/v1/rooms/general/messages")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "db down")
}

func TestPresenceAndUnread(t *testing.T) {
	r, _ := setupRouter(t, &fakeHistory{}, nil)

	w := doGet(r, "/api/v1/presence")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"users":[]}`, w.Body.String())

	w = doGet(r, "/api/v1/users/alice/unread")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"unread":3`)

	w = doGet(r, "/api/v1/users/a_b/unread")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebSocketRateLimited(t *testing.T) {
	limiter := &fakeLimiter{allowed: false}
	r, _ := setupRouter(t, &fakeHistory{}, limiter)

	w := doGet(r, "/api/v1/ws")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), response.CodeRateLimited)
	require.Len(t, limiter.keys, 1)
	assert.True(t, strings.HasPrefix(limiter.keys[0], "rate_limit_ip:"))
}

func TestWebSocketUpgradeThroughRouter(t *testing.T) {
	limiter := &fakeLimiter{err: errors.New("redis down")}
	r, hub := setupRouter(t, &fakeHistory{}, limiter)
	srv := httptest.NewServer(r.GetEngine())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws"
	conn, _, err := gorilla.DefaultDialer.Dial(url, nil)
	require.NoError(t, err, "limiter errors fail open")
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "join", "name": "alice"}))
	assert.Eventually(t, func() bool {
		return hub.Registry().IsOnline("alice")
	}, 2*time.Second, 10*time.Millisecond)

	w := doGet(r, "/api/v1/presence")
	assert.Contains(t, w.Body.String(), `"id":"alice"`)
}
