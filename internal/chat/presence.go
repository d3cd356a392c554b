package chat

import (
	"context"
	"fmt"
	"log/slog"

	"dmchat/internal/hub"
	"dmchat/internal/online"
)

// Presence turns persisted identity and room membership into live group
// membership in the hub.
type Presence struct {
	fabric Fabric
	dir    Directory
	online online.Tracker
	log    *slog.Logger
}

func NewPresence(fabric Fabric, dir Directory, tracker online.Tracker, log *slog.Logger) *Presence {
	return &Presence{fabric: fabric, dir: dir, online: tracker, log: log}
}

func (p *Presence) OnLogin(ctx context.Context, conn hub.Conn, sess *Session, username string) error {
	// 1. Get or create the user
	user, created, err := p.dir.GetOrCreateUser(ctx, username)
	if err != nil {
		return fmt.Errorf("resolve user %q: %w", username, err)
	}

	// A second LOGIN on the same connection switches identity.
	prev, bound := sess.User()
	switched := !bound || prev.Username != username
	if bound && switched {
		p.detach(ctx, conn, prev)
	}

	// 2. Bind to the session, 3. join the control group
	sess.Bind(user)
	p.fabric.Join(ControlGroup(username), conn)
	if switched {
		if err := p.online.Connected(ctx, username); err != nil {
			p.log.Warn("online tracker", "user", username, "error", err)
		}
	}

	// 4. Echo the login back
	p.reply(conn, LoginSuccessEvent{Type: EventLoginSuccess, User: username})

	// 5. Work out the room list
	var rooms []Room
	if created {
		rooms, err = p.provisionRooms(ctx, user)
	} else {
		rooms, err = p.dir.RoomsForUser(ctx, user.ID)
	}
	if err != nil {
		return fmt.Errorf("rooms for %q: %w", username, err)
	}

	// 6. Send the list, 7. join every room group
	p.reply(conn, newRoomsEvent(rooms, username))
	for _, room := range rooms {
		p.fabric.Join(RoomGroup(room.ID), conn)
	}

	// 8. Bring the other participants' live sessions into the new rooms
	if created {
		p.AnnounceRooms(ctx, user, rooms)
	}

	p.log.Info("user logged in", "user", username, "conn", conn.ID(), "created", created, "rooms", len(rooms))
	return nil
}

// provisionRooms creates one room between user and every other user.
// WARNING: this is O(users) rooms and writes per signup, the single biggest
// scaling cliff of the design. Rooms should eventually be created on demand.
func (p *Presence) provisionRooms(ctx context.Context, user User) ([]Room, error) {
	others, err := p.dir.UsersExcluding(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	rooms := make([]Room, 0, len(others))
	for _, other := range others {
		room, err := p.dir.CreateRoom(ctx, user, other)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, nil
}

// AnnounceRooms runs after a user is created. For every new room it joins the
// other participant's live connections into the room group and pushes them a
// RECEIVE_ROOMS update, so they see the room without reconnecting.
func (p *Presence) AnnounceRooms(ctx context.Context, creator User, rooms []Room) {
	for _, room := range rooms {
		for _, other := range room.Members {
			if other == creator.Username {
				continue
			}
			control := ControlGroup(other)
			live := p.fabric.Members(control)
			for _, c := range live {
				p.fabric.Join(RoomGroup(room.ID), c)
			}
			if len(live) == 0 {
				continue
			}

			payload, err := encode(newRoomsEvent([]Room{room}, other))
			if err != nil {
				p.log.Error("encode rooms update", "error", err)
				continue
			}
			p.fabric.SendToGroup(control, payload)
		}
	}
}

// OnDisconnect removes the connection from its control and room groups.
// It never fails: store errors are logged and the rest is left to the hub,
// which purges any remaining membership on unregister.
func (p *Presence) OnDisconnect(ctx context.Context, conn hub.Conn, sess *Session) {
	user, ok := sess.User()
	if !ok {
		return
	}
	p.detach(ctx, conn, user)
	p.log.Info("user disconnected", "user", user.Username, "conn", conn.ID())
}

func (p *Presence) detach(ctx context.Context, conn hub.Conn, user User) {
	p.fabric.Leave(ControlGroup(user.Username), conn)
	if err := p.online.Disconnected(ctx, user.Username); err != nil {
		p.log.Warn("online tracker", "user", user.Username, "error", err)
	}

	rooms, err := p.dir.RoomsForUser(ctx, user.ID)
	if err != nil {
		p.log.Warn("room lookup on disconnect", "user", user.Username, "error", err)
		return
	}
	for _, room := range rooms {
		p.fabric.Leave(RoomGroup(room.ID), conn)
	}
}

func (p *Presence) reply(conn hub.Conn, event any) {
	payload, err := encode(event)
	if err != nil {
		p.log.Error("encode event", "error", err)
		return
	}
	if err := p.fabric.SendToOne(conn, payload); err != nil {
		p.log.Warn("reply not delivered", "conn", conn.ID(), "error", err)
	}
}
