package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"chat-relay/internal/models"

	"github.com/stretchr/testify/require"
)

var errStorageDown = errors.New("storage unavailable")

type fakeMessageStore struct {
	mu        sync.Mutex
	msgs      []models.Message
	createErr error
	listErr   error

	// blockCreate makes Create hang until its context ends.
	blockCreate bool
	// beforeList runs at the start of ListByRoom, outside the lock.
	beforeList func()
}

func (s *fakeMessageStore) Create(ctx context.Context, msg *models.Message) error {
	s.mu.Lock()
	block := s.blockCreate
	s.mu.Unlock()
	if block {
		<-ctx.Done()
		return ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	s.msgs = append(s.msgs, *msg)
	return nil
}

func (s *fakeMessageStore) ListByRoom(_ context.Context, room string, limit int) ([]models.Message, error) {
	if s.beforeList != nil {
		s.beforeList()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []models.Message
	for _, m := range s.msgs {
		if m.Room == room {
			out = append(out, m)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *fakeMessageStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}

type fakeMembers struct {
	mu     sync.Mutex
	groups map[string][]string
	err    error
	block  bool
	calls  int
}

func (f *fakeMembers) ListMembers(ctx context.Context, groupID string) ([]string, error) {
	f.mu.Lock()
	f.calls++
	block, err, members := f.block, f.err, f.groups[groupID]
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	return members, nil
}

type fakeUnread struct {
	mu         sync.Mutex
	increments map[string][]string
	resets     []string
}

func (f *fakeUnread) Increment(_ context.Context, room string, userIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.increments == nil {
		f.increments = make(map[string][]string)
	}
	f.increments[room] = append(f.increments[room], userIDs...)
	return nil
}

func (f *fakeUnread) Reset(_ context.Context, userID, room string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets = append(f.resets, userID+"@"+room)
	return nil
}

type fakePresence struct {
	mu       sync.Mutex
	online   []string
	lastSeen map[string]time.Time
}

func (f *fakePresence) SetUserOnline(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.online = append(f.online, userID)
	return nil
}

func (f *fakePresence) SetUserOffline(_ context.Context, userID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lastSeen == nil {
		f.lastSeen = make(map[string]time.Time)
	}
	f.lastSeen[userID] = at
	return nil
}

func (f *fakePresence) LastSeen(context.Context) (map[string]time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]time.Time, len(f.lastSeen))
	for k, v := range f.lastSeen {
		out[k] = v
	}
	return out, nil
}

type fakeEvents struct {
	mu        sync.Mutex
	published []string
}

func (f *fakeEvents) PublishMessageCreated(_ context.Context, msg *models.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, msg.ID)
	return nil
}

// testFrame decodes any outbound frame.
type testFrame struct {
	Type       FrameType      `json:"type"`
	ID         string         `json:"id"`
	Username   string         `json:"username"`
	Text       string         `json:"text"`
	Room       string         `json:"room"`
	InsertedAt time.Time      `json:"inserted_at"`
	User       string         `json:"user"`
	Online     bool           `json:"online"`
	LastSeen   *time.Time     `json:"last_seen"`
	Users      []UserPresence `json:"users"`
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	ClientID   string         `json:"client_id"`
}

type testEnv struct {
	hub      *Hub
	messages *fakeMessageStore
	members  *fakeMembers
	unread   *fakeUnread
	presence *fakePresence
	events   *fakeEvents
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	env := &testEnv{
		messages: &fakeMessageStore{},
		members:  &fakeMembers{groups: map[string][]string{}},
		unread:   &fakeUnread{},
		presence: &fakePresence{},
		events:   &fakeEvents{},
	}
	if opts.StorageTimeout == 0 {
		opts.StorageTimeout = time.Second
	}
	env.hub = NewHub(Dependencies{
		Messages: env.messages,
		Members:  env.members,
		Unread:   env.unread,
		Presence: env.presence,
		Events:   env.events,
	}, opts)
	return env
}

// newClient attaches a connection without pumps. Outbound frames stay in
// its send queue.
func (e *testEnv) newClient() *Client {
	c := NewClient(e.hub, nil, 64)
	e.hub.Attach(c)
	return c
}

func (e *testEnv) send(t *testing.T, c *Client, f InboundFrame) {
	t.Helper()
	data, err := json.Marshal(f)
	require.NoError(t, err)
	e.hub.HandleFrame(context.Background(), c, data)
}

func (e *testEnv) join(t *testing.T, c *Client, name, room string) {
	t.Helper()
	e.send(t, c, InboundFrame{Type: FrameJoin, Name: name, Room: room})
	require.Equal(t, StateJoined, c.State())
}

// drain empties c's send queue.
func drain(t *testing.T, c *Client) []testFrame {
	t.Helper()
	var frames []testFrame
	for {
		select {
		case data := <-c.send:
			var f testFrame
			require.NoError(t, json.Unmarshal(data, &f))
			frames = append(frames, f)
		default:
			return frames
		}
	}
}

func ofType(frames []testFrame, ft FrameType) []testFrame {
	var out []testFrame
	for _, f := range frames {
		if f.Type == ft {
			out = append(out, f)
		}
	}
	return out
}

func sorted(ids []string) []string {
	out := append([]string(nil), ids...)
	sort.Strings(out)
	return out
}
