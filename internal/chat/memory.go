package chat

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"
)

// MemoryStore is an in-process Store used by tests and by `serve --memory`.
type MemoryStore struct {
	mu       sync.RWMutex
	users    []User
	byName   map[string]User
	rooms    map[int64]Room
	messages []Message
	nextUser int64
	nextRoom int64
	nextMsg  int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byName: make(map[string]User),
		rooms:  make(map[int64]Room),
	}
}

func (s *MemoryStore) GetOrCreateUser(_ context.Context, username string) (User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u, ok := s.byName[username]; ok {
		return u, false, nil
	}
	s.nextUser++
	u := User{ID: s.nextUser, Username: username}
	s.users = append(s.users, u)
	s.byName[username] = u
	return u, true, nil
}

func (s *MemoryStore) UsersExcluding(_ context.Context, userID int64) ([]User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return lo.Filter(s.users, func(u User, _ int) bool { return u.ID != userID }), nil
}

func (s *MemoryStore) CreateRoom(_ context.Context, members ...User) (Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextRoom++
	room := Room{ID: s.nextRoom}
	for _, m := range members {
		room.Members = append(room.Members, m.Username)
	}
	sort.Strings(room.Members)
	s.rooms[room.ID] = room
	return room, nil
}

func (s *MemoryStore) RoomsForUser(_ context.Context, userID int64) ([]Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var username string
	for _, u := range s.users {
		if u.ID == userID {
			username = u.Username
		}
	}
	if username == "" {
		return nil, fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}

	var out []Room
	for _, r := range s.rooms {
		if r.HasMember(username) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) GetRoom(_ context.Context, roomID int64) (Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return Room{}, fmt.Errorf("room %d: %w", roomID, ErrNotFound)
	}
	return r, nil
}

func (s *MemoryStore) CreateMessage(_ context.Context, user User, room Room, content string, at time.Time) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[room.ID]; !ok {
		return Message{}, fmt.Errorf("room %d: %w", room.ID, ErrNotFound)
	}
	s.nextMsg++
	m := Message{
		ID:        s.nextMsg,
		RoomID:    room.ID,
		Username:  user.Username,
		Content:   content,
		CreatedAt: at,
	}
	s.messages = append(s.messages, m)
	return m, nil
}

func (s *MemoryStore) GetMessageByID(_ context.Context, id int64) (Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, m := range s.messages {
		if m.ID == id {
			return m, nil
		}
	}
	return Message{}, fmt.Errorf("message %d: %w", id, ErrNotFound)
}

func (s *MemoryStore) QueryMessages(_ context.Context, f MessageFilter) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Message
	for _, m := range s.messages {
		if f.RoomID != nil && m.RoomID != *f.RoomID {
			continue
		}
		if f.Member != nil && !s.rooms[m.RoomID].HasMember(*f.Member) {
			continue
		}
		if f.Since != nil && m.CreatedAt.Before(*f.Since) {
			continue
		}
		if f.Until != nil && m.CreatedAt.After(*f.Until) {
			continue
		}
		out = append(out, m)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}
