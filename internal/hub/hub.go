package hub

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

type set map[string]struct{}

// Hub is the registry of live connections and the named groups they belong to.
// Every broadcast is addressed to a group; there is no "send to everyone".
type Hub struct {
	mu     sync.RWMutex
	conns  map[string]Conn            // live connections by id
	groups map[string]map[string]Conn // group name -> members
	joined map[string]set             // connection id -> group names
	log    *slog.Logger
}

func New(log *slog.Logger) *Hub {
	return &Hub{
		conns:  make(map[string]Conn),
		groups: make(map[string]map[string]Conn),
		joined: make(map[string]set),
		log:    log,
	}
}

func (h *Hub) Register(c Conn) {
	h.mu.Lock()
	h.conns[c.ID()] = c
	count := len(h.conns)
	h.mu.Unlock()

	h.log.Debug("connection registered", "conn", c.ID(), "conns", count)
}

// Unregister drops the connection from the registry and from every group it
// is still a member of. Safe to call more than once.
func (h *Hub) Unregister(c Conn) {
	h.mu.Lock()
	if _, ok := h.conns[c.ID()]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.conns, c.ID())
	purged := 0
	for name := range h.joined[c.ID()] {
		h.removeLocked(name, c.ID())
		purged++
	}
	delete(h.joined, c.ID())
	count := len(h.conns)
	h.mu.Unlock()

	h.log.Debug("connection unregistered", "conn", c.ID(), "purgedGroups", purged, "conns", count)
}

// Live reports whether the connection is still registered.
func (h *Hub) Live(c Conn) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.conns[c.ID()]
	return ok
}

// Join adds c to the named group. Joining twice is a no-op, and so is joining
// a connection that has already been unregistered.
func (h *Hub) Join(group string, c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[c.ID()]; !ok {
		h.log.Debug("join ignored for dead connection", "group", group, "conn", c.ID())
		return
	}
	members, ok := h.groups[group]
	if !ok {
		members = make(map[string]Conn)
		h.groups[group] = members
	}
	members[c.ID()] = c

	groups, ok := h.joined[c.ID()]
	if !ok {
		groups = make(set)
		h.joined[c.ID()] = groups
	}
	groups[group] = struct{}{}
}

// Leave removes c from the named group. Absent members and unknown groups are
// ignored.
func (h *Hub) Leave(group string, c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.removeLocked(group, c.ID())
	if groups, ok := h.joined[c.ID()]; ok {
		delete(groups, group)
		if len(groups) == 0 {
			delete(h.joined, c.ID())
		}
	}
}

func (h *Hub) removeLocked(group, id string) {
	members, ok := h.groups[group]
	if !ok {
		return
	}
	delete(members, id)
	if len(members) == 0 {
		delete(h.groups, group)
	}
}

// Members returns a snapshot of the group's connections ordered by id.
func (h *Hub) Members(group string) []Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()

	members := h.groups[group]
	out := make([]Conn, 0, len(members))
	for _, c := range members {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// SendToOne delivers payload to exactly one connection.
func (h *Hub) SendToOne(c Conn, payload []byte) error {
	if !h.Live(c) {
		return fmt.Errorf("%w: connection %s is gone", ErrDelivery, c.ID())
	}
	if err := c.Send(payload); err != nil {
		return fmt.Errorf("%w: connection %s: %v", ErrDelivery, c.ID(), err)
	}
	return nil
}

// SendToGroup delivers payload to every member of the group as of the moment
// of the call. Members are sent to independently, outside the lock; a failed
// delivery is logged and does not affect the others. It returns the number of
// successful deliveries.
func (h *Hub) SendToGroup(group string, payload []byte) int {
	members := h.Members(group)

	delivered := 0
	for _, c := range members {
		if err := c.Send(payload); err != nil {
			h.log.Warn("group delivery failed", "group", group, "conn", c.ID(), "error", err)
			continue
		}
		delivered++
	}
	h.log.Debug("group broadcast", "group", group, "members", len(members), "delivered", delivered)
	return delivered
}

func (h *Hub) Stats() (groups, conns int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups), len(h.conns)
}

// Shutdown closes every live connection. Their read pumps then run the normal
// disconnect path.
func (h *Hub) Shutdown() {
	h.mu.RLock()
	conns := make([]Conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		if err := c.Close(); err != nil {
			h.log.Debug("close on shutdown", "conn", c.ID(), "error", err)
		}
	}
	h.log.Info("closed client connections", "count", len(conns))
}
