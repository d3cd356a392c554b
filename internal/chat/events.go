package chat

import (
	"encoding/json"

	"github.com/samber/lo"
)

// Action types sent by clients.
const (
	ActionLogin           = "LOGIN"
	ActionSendMessage     = "SEND_MESSAGE"
	ActionRequestMessages = "REQUEST_MESSAGES"
)

// Event types sent to clients.
const (
	EventLoginSuccess    = "LOGIN_SUCCESS"
	EventReceiveRooms    = "RECEIVE_ROOMS"
	EventReceiveMessages = "RECEIVE_MESSAGES"
	EventError           = "ERROR"
)

// envelope carries only the discriminator; the full payload is decoded again
// into the action-specific struct.
type envelope struct {
	Type string `json:"type"`
}

type LoginAction struct {
	User  string `json:"user"`
	Token string `json:"token,omitempty"`
}

type SendMessageAction struct {
	RoomID  int64  `json:"roomId"`
	Content string `json:"content"`
}

// RequestMessagesAction fields are all optional.
type RequestMessagesAction struct {
	RoomID         *int64  `json:"roomId,omitempty"`
	User           *string `json:"user,omitempty"`
	LastMessageID  *int64  `json:"lastMessageId,omitempty"`
	FirstMessageID *int64  `json:"firstMessageId,omitempty"`
}

type LoginSuccessEvent struct {
	Type string `json:"type"`
	User string `json:"user"`
}

type RoomView struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type ReceiveRoomsEvent struct {
	Type  string     `json:"type"`
	Rooms []RoomView `json:"rooms"`
}

type MessageView struct {
	ID        int64  `json:"id"`
	RoomID    int64  `json:"roomId"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"` // unix milliseconds
	User      string `json:"user"`
}

type ReceiveMessagesEvent struct {
	Type     string        `json:"type"`
	Messages []MessageView `json:"messages"`
}

type ErrorEvent struct {
	Type   string `json:"type"`
	Action string `json:"action,omitempty"`
	Code   string `json:"code"`
	Error  string `json:"error"`
}

func roomViews(rooms []Room, viewer string) []RoomView {
	return lo.Map(rooms, func(r Room, _ int) RoomView {
		return RoomView{ID: r.ID, Name: r.Name(viewer)}
	})
}

func messageView(m Message) MessageView {
	return MessageView{
		ID:        m.ID,
		RoomID:    m.RoomID,
		Content:   m.Content,
		Timestamp: m.CreatedAt.UnixMilli(),
		User:      m.Username,
	}
}

func messageViews(msgs []Message) []MessageView {
	return lo.Map(msgs, func(m Message, _ int) MessageView { return messageView(m) })
}

func newRoomsEvent(rooms []Room, viewer string) ReceiveRoomsEvent {
	return ReceiveRoomsEvent{Type: EventReceiveRooms, Rooms: roomViews(rooms, viewer)}
}

func newMessagesEvent(msgs []Message) ReceiveMessagesEvent {
	return ReceiveMessagesEvent{Type: EventReceiveMessages, Messages: messageViews(msgs)}
}

func encode(v any) ([]byte, error) {
	return json.Marshal(v)
}
