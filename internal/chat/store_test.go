package chat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exerciseStore runs the behaviour every Store implementation must share.
// The store must be empty.
func exerciseStore(t *testing.T, store Store) {
	req := require.New(t)
	ctx := context.Background()

	// Users are created once
	alice, created, err := store.GetOrCreateUser(ctx, "alice")
	req.NoError(err)
	req.True(created)
	again, created, err := store.GetOrCreateUser(ctx, "alice")
	req.NoError(err)
	req.False(created)
	req.Equal(alice.ID, again.ID)

	bob, _, err := store.GetOrCreateUser(ctx, "bob")
	req.NoError(err)
	carol, _, err := store.GetOrCreateUser(ctx, "carol")
	req.NoError(err)

	others, err := store.UsersExcluding(ctx, alice.ID)
	req.NoError(err)
	req.ElementsMatch([]User{bob, carol}, others)

	// Rooms
	ab, err := store.CreateRoom(ctx, bob, alice)
	req.NoError(err)
	req.Equal([]string{"alice", "bob"}, ab.Members)
	bc, err := store.CreateRoom(ctx, bob, carol)
	req.NoError(err)

	got, err := store.GetRoom(ctx, ab.ID)
	req.NoError(err)
	req.Equal(ab, got)

	_, err = store.GetRoom(ctx, bc.ID+1000)
	req.ErrorIs(err, ErrNotFound)

	rooms, err := store.RoomsForUser(ctx, bob.ID)
	req.NoError(err)
	req.Equal([]Room{ab, bc}, rooms, "each room once, with every member")

	rooms, err = store.RoomsForUser(ctx, alice.ID)
	req.NoError(err)
	req.Equal([]Room{ab}, rooms)

	// Messages
	base := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	m1, err := store.CreateMessage(ctx, alice, ab, "hello", base)
	req.NoError(err)
	req.Equal("alice", m1.Username)
	m2, err := store.CreateMessage(ctx, bob, ab, "hi", base.Add(time.Second))
	req.NoError(err)
	m3, err := store.CreateMessage(ctx, carol, bc, "yo", base.Add(2*time.Second))
	req.NoError(err)

	byID, err := store.GetMessageByID(ctx, m2.ID)
	req.NoError(err)
	assert.Equal(t, m2.ID, byID.ID)
	assert.Equal(t, "hi", byID.Content)
	assert.Equal(t, "bob", byID.Username)
	assert.Equal(t, ab.ID, byID.RoomID)
	assert.True(t, m2.CreatedAt.Equal(byID.CreatedAt))

	_, err = store.GetMessageByID(ctx, m3.ID+1000)
	req.ErrorIs(err, ErrNotFound)

	// Newest first, limit applied after ordering
	msgs, err := store.QueryMessages(ctx, MessageFilter{Limit: 2})
	req.NoError(err)
	req.Len(msgs, 2)
	assert.Equal(t, m3.ID, msgs[0].ID)
	assert.Equal(t, m2.ID, msgs[1].ID)

	msgs, err = store.QueryMessages(ctx, MessageFilter{Member: &alice.Username})
	req.NoError(err)
	req.Len(msgs, 2)
	assert.Equal(t, m2.ID, msgs[0].ID)
	assert.Equal(t, m1.ID, msgs[1].ID)

	since := base.Add(time.Second)
	msgs, err = store.QueryMessages(ctx, MessageFilter{RoomID: &ab.ID, Since: &since, Until: &since})
	req.NoError(err)
	req.Len(msgs, 1)
	assert.Equal(t, m2.ID, msgs[0].ID)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryStore_CreateMessageUnknownRoom(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.CreateMessage(context.Background(), User{ID: 1, Username: "alice"}, Room{ID: 7}, "x", time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
}
