package chat

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"dmchat/internal/hub"
	"dmchat/internal/online"
)

type fakeConn struct {
	id     string
	sent   [][]byte
	closed bool
	mu     sync.Mutex
}

func (f *fakeConn) ID() string { return f.id }

func (f *fakeConn) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, data)
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// wireEvent is wide enough to decode every server event.
type wireEvent struct {
	Type     string        `json:"type"`
	User     string        `json:"user"`
	Rooms    []RoomView    `json:"rooms"`
	Messages []MessageView `json:"messages"`
	Action   string        `json:"action"`
	Code     string        `json:"code"`
	Error    string        `json:"error"`
}

func (f *fakeConn) events(t *testing.T) []wireEvent {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]wireEvent, 0, len(f.sent))
	for _, raw := range f.sent {
		var ev wireEvent
		require.NoError(t, json.Unmarshal(raw, &ev))
		out = append(out, ev)
	}
	return out
}

func (f *fakeConn) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testEnv struct {
	hub        *hub.Hub
	store      *MemoryStore
	tracker    *online.MemoryTracker
	presence   *Presence
	dispatcher *Dispatcher
}

func newTestEnv() *testEnv {
	return newTestEnvWith(NewMemoryStore(), nil)
}

// newTestEnvWith lets a test put a wrapper in front of the directory used
// by presence. dir defaults to store.
func newTestEnvWith(store *MemoryStore, dir Directory) *testEnv {
	if dir == nil {
		dir = store
	}
	log := discardLogger()
	h := hub.New(log)
	tracker := online.NewMemoryTracker()
	presence := NewPresence(h, dir, tracker, log)
	return &testEnv{
		hub:        h,
		store:      store,
		tracker:    tracker,
		presence:   presence,
		dispatcher: NewDispatcher(h, presence, store, TrustResolver{}, log),
	}
}

// peer is one client connection with its session.
type peer struct {
	conn *fakeConn
	sess *Session
	env  *testEnv
}

func (e *testEnv) connect(id string) *peer {
	c := &fakeConn{id: id}
	e.hub.Register(c)
	return &peer{conn: c, sess: &Session{}, env: e}
}

func (p *peer) do(t *testing.T, action any) {
	t.Helper()
	raw, err := json.Marshal(action)
	require.NoError(t, err)
	p.env.dispatcher.Handle(context.Background(), p.conn, p.sess, raw)
}

func (p *peer) login(t *testing.T, username string) {
	t.Helper()
	p.do(t, map[string]string{"type": ActionLogin, "user": username})
}

func (p *peer) disconnect() {
	p.env.presence.OnDisconnect(context.Background(), p.conn, p.sess)
	p.env.hub.Unregister(p.conn)
}

func (p *peer) lastEvent(t *testing.T) wireEvent {
	t.Helper()
	evs := p.conn.events(t)
	require.NotEmpty(t, evs)
	return evs[len(evs)-1]
}

func roomNames(rooms []RoomView) []string {
	out := make([]string, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, r.Name)
	}
	return out
}

func memberIDs(conns []hub.Conn) []string {
	out := make([]string, 0, len(conns))
	for _, c := range conns {
		out = append(out, c.ID())
	}
	return out
}
