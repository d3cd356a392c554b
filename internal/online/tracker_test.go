package online

import (
	"context"
	"os"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func exerciseTracker(t *testing.T, tracker Tracker) {
	req := require.New(t)
	ctx := context.Background()

	// Given alice has two connections and bob one
	req.NoError(tracker.Connected(ctx, "alice"))
	req.NoError(tracker.Connected(ctx, "alice"))
	req.NoError(tracker.Connected(ctx, "bob"))

	users, err := tracker.Online(ctx)
	req.NoError(err)
	req.Equal([]string{"alice", "bob"}, users)

	// When one of alice's connections and bob's only one go away
	req.NoError(tracker.Disconnected(ctx, "alice"))
	req.NoError(tracker.Disconnected(ctx, "bob"))

	// Then only alice is still online
	users, err = tracker.Online(ctx)
	req.NoError(err)
	req.Equal([]string{"alice"}, users)

	// And an extra disconnect never goes negative
	req.NoError(tracker.Disconnected(ctx, "alice"))
	req.NoError(tracker.Disconnected(ctx, "alice"))
	users, err = tracker.Online(ctx)
	req.NoError(err)
	req.Empty(users)
}

func TestMemoryTracker(t *testing.T) {
	exerciseTracker(t, NewMemoryTracker())
}

func TestRedisTracker(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	tracker := NewRedisTracker(client, "dmchat:test:online")
	require.NoError(t, tracker.Reset(context.Background()))
	defer tracker.Reset(context.Background())

	exerciseTracker(t, tracker)
}
