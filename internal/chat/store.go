package chat

import (
	"context"
	"time"
)

// HistoryLimit caps every history response.
const HistoryLimit = 50

// Directory is the persisted user/room store.
type Directory interface {
	// GetOrCreateUser reports created=true when the user did not exist before.
	GetOrCreateUser(ctx context.Context, username string) (User, bool, error)
	UsersExcluding(ctx context.Context, userID int64) ([]User, error)
	CreateRoom(ctx context.Context, members ...User) (Room, error)
	// RoomsForUser returns each room containing the user exactly once.
	RoomsForUser(ctx context.Context, userID int64) ([]Room, error)
	GetRoom(ctx context.Context, roomID int64) (Room, error)
}

// MessageFilter is a conjunction; nil fields impose no constraint.
type MessageFilter struct {
	RoomID *int64
	Member *string    // the message's room must contain this username
	Since  *time.Time // inclusive
	Until  *time.Time // inclusive
	Limit  int
}

// MessageStore persists messages. QueryMessages returns the newest matches
// first, ordered by (created_at desc, id desc), at most filter.Limit of them.
type MessageStore interface {
	CreateMessage(ctx context.Context, user User, room Room, content string, at time.Time) (Message, error)
	GetMessageByID(ctx context.Context, id int64) (Message, error)
	QueryMessages(ctx context.Context, filter MessageFilter) ([]Message, error)
}

// Store is everything the chat core needs from persistence.
type Store interface {
	Directory
	MessageStore
}
