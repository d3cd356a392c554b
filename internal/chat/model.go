package chat

import (
	"strconv"
	"time"

	"github.com/samber/lo"
)

// ---------------------------------------------
// 🗄️ Database Models
// ---------------------------------------------

type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// Room is a 1:1 conversation. Members holds the usernames of both participants.
type Room struct {
	ID      int64    `json:"id"`
	Members []string `json:"members"`
}

// Name is the room's display name for viewer: the other participant.
func (r Room) Name(viewer string) string {
	for _, m := range r.Members {
		if m != viewer {
			return m
		}
	}
	return viewer
}

func (r Room) HasMember(username string) bool {
	return lo.Contains(r.Members, username)
}

type Message struct {
	ID        int64     `json:"id"`
	RoomID    int64     `json:"room_id"`
	Username  string    `json:"username"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ---------------------------------------------
// ⚡ Group naming
// ---------------------------------------------

func ControlGroup(username string) string {
	return "control." + username
}

func RoomGroup(roomID int64) string {
	return "room." + strconv.FormatInt(roomID, 10)
}
