package hub

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockConn struct {
	id       string
	received [][]byte
	closed   bool
	sendErr  error
	mu       sync.Mutex
}

func (m *mockConn) ID() string { return m.id }

func (m *mockConn) Send(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.received = append(m.received, data)
	return nil
}

func (m *mockConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockConn) getReceived() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.received
}

func newTestHub() *Hub {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func ids(conns []Conn) []string {
	out := make([]string, 0, len(conns))
	for _, c := range conns {
		out = append(out, c.ID())
	}
	return out
}

func TestHub_JoinLeave(t *testing.T) {
	tests := []struct {
		name    string
		run     func(h *Hub, c *mockConn)
		members []string
	}{
		{
			name:    "join then leave",
			run:     func(h *Hub, c *mockConn) { h.Join("room.1", c); h.Leave("room.1", c) },
			members: []string{},
		},
		{
			name:    "join is idempotent",
			run:     func(h *Hub, c *mockConn) { h.Join("room.1", c); h.Join("room.1", c) },
			members: []string{"c1"},
		},
		{
			name:    "leave without join",
			run:     func(h *Hub, c *mockConn) { h.Leave("room.1", c) },
			members: []string{},
		},
		{
			name:    "double leave",
			run:     func(h *Hub, c *mockConn) { h.Join("room.1", c); h.Leave("room.1", c); h.Leave("room.1", c) },
			members: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHub()
			c := &mockConn{id: "c1"}
			h.Register(c)

			tt.run(h, c)

			assert.Equal(t, tt.members, ids(h.Members("room.1")))
		})
	}
}

func TestHub_EmptyGroupDisappears(t *testing.T) {
	h := newTestHub()
	c := &mockConn{id: "c1"}
	h.Register(c)

	h.Join("control.alice", c)
	groups, conns := h.Stats()
	require.Equal(t, 1, groups)
	require.Equal(t, 1, conns)

	h.Leave("control.alice", c)
	groups, _ = h.Stats()
	assert.Equal(t, 0, groups)
}

func TestHub_JoinIgnoresDeadConnection(t *testing.T) {
	h := newTestHub()
	c := &mockConn{id: "c1"}

	h.Join("room.1", c)

	assert.Empty(t, h.Members("room.1"))
}

func TestHub_UnregisterPurgesGroups(t *testing.T) {
	h := newTestHub()
	c := &mockConn{id: "c1"}
	other := &mockConn{id: "c2"}
	h.Register(c)
	h.Register(other)
	h.Join("control.alice", c)
	h.Join("room.1", c)
	h.Join("room.1", other)

	h.Unregister(c)
	h.Unregister(c)

	assert.Empty(t, h.Members("control.alice"))
	assert.Equal(t, []string{"c2"}, ids(h.Members("room.1")))
	assert.False(t, h.Live(c))
	groups, conns := h.Stats()
	assert.Equal(t, 1, groups)
	assert.Equal(t, 1, conns)
}

func TestHub_SendToGroup(t *testing.T) {
	tests := []struct {
		name          string
		setup         func(*Hub) []*mockConn
		wantDelivered int
		wantReceived  map[string]int
	}{
		{
			name: "every member receives",
			setup: func(h *Hub) []*mockConn {
				a, b := &mockConn{id: "a"}, &mockConn{id: "b"}
				for _, c := range []*mockConn{a, b} {
					h.Register(c)
					h.Join("room.1", c)
				}
				return []*mockConn{a, b}
			},
			wantDelivered: 2,
			wantReceived:  map[string]int{"a": 1, "b": 1},
		},
		{
			name: "failing member does not block others",
			setup: func(h *Hub) []*mockConn {
				a := &mockConn{id: "a", sendErr: errors.New("buffer full")}
				b, c := &mockConn{id: "b"}, &mockConn{id: "c"}
				for _, m := range []*mockConn{a, b, c} {
					h.Register(m)
					h.Join("room.1", m)
				}
				return []*mockConn{a, b, c}
			},
			wantDelivered: 2,
			wantReceived:  map[string]int{"a": 0, "b": 1, "c": 1},
		},
		{
			name: "no cross-group delivery",
			setup: func(h *Hub) []*mockConn {
				a, b := &mockConn{id: "a"}, &mockConn{id: "b"}
				h.Register(a)
				h.Register(b)
				h.Join("room.1", a)
				h.Join("room.2", b)
				return []*mockConn{a, b}
			},
			wantDelivered: 1,
			wantReceived:  map[string]int{"a": 1, "b": 0},
		},
		{
			name:          "unknown group",
			setup:         func(h *Hub) []*mockConn { return nil },
			wantDelivered: 0,
			wantReceived:  map[string]int{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHub()
			conns := tt.setup(h)

			delivered := h.SendToGroup("room.1", []byte("payload"))

			assert.Equal(t, tt.wantDelivered, delivered)
			for _, c := range conns {
				assert.Len(t, c.getReceived(), tt.wantReceived[c.ID()], "conn %s", c.ID())
			}
		})
	}
}

func TestHub_SendToOne(t *testing.T) {
	h := newTestHub()
	live := &mockConn{id: "live"}
	broken := &mockConn{id: "broken", sendErr: errors.New("closed")}
	gone := &mockConn{id: "gone"}
	h.Register(live)
	h.Register(broken)

	require.NoError(t, h.SendToOne(live, []byte("hi")))
	assert.Len(t, live.getReceived(), 1)

	err := h.SendToOne(broken, []byte("hi"))
	assert.ErrorIs(t, err, ErrDelivery)

	err = h.SendToOne(gone, []byte("hi"))
	assert.ErrorIs(t, err, ErrDelivery)
	assert.Empty(t, gone.getReceived())
}

func TestHub_ConcurrentMembership(t *testing.T) {
	h := newTestHub()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := &mockConn{id: fmt.Sprintf("c%d", i)}
			h.Register(c)
			h.Join("room.1", c)
			h.SendToGroup("room.1", []byte("x"))
			if i%2 == 0 {
				h.Leave("room.1", c)
			}
		}(i)
	}
	wg.Wait()

	assert.Len(t, h.Members("room.1"), 25)
}

func TestHub_Shutdown(t *testing.T) {
	h := newTestHub()
	a, b := &mockConn{id: "a"}, &mockConn{id: "b"}
	h.Register(a)
	h.Register(b)

	h.Shutdown()

	assert.True(t, a.closed)
	assert.True(t, b.closed)
}
