// Package online keeps a view of which usernames currently have at least one
// live connection.
package online

import (
	"context"
	"sort"
	"sync"
)

type Tracker interface {
	Connected(ctx context.Context, username string) error
	Disconnected(ctx context.Context, username string) error
	Online(ctx context.Context) ([]string, error)
}

// MemoryTracker counts connections per username in process.
type MemoryTracker struct {
	mu     sync.Mutex
	counts map[string]int
}

func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{counts: make(map[string]int)}
}

func (t *MemoryTracker) Connected(_ context.Context, username string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts[username]++
	return nil
}

func (t *MemoryTracker) Disconnected(_ context.Context, username string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.counts[username] <= 1 {
		delete(t.counts, username)
		return nil
	}
	t.counts[username]--
	return nil
}

func (t *MemoryTracker) Online(_ context.Context) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	users := make([]string, 0, len(t.counts))
	for u := range t.counts {
		users = append(users, u)
	}
	sort.Strings(users)
	return users, nil
}
