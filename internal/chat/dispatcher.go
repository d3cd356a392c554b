package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"dmchat/internal/hub"
)

// ActionError is a rejected client action.
type ActionError struct {
	Action string
	Err    error
}

func (e *ActionError) Error() string { return e.Action + ": " + e.Err.Error() }
func (e *ActionError) Unwrap() error { return e.Err }

// Dispatcher routes inbound actions to their handlers.
type Dispatcher struct {
	fabric   Fabric
	presence *Presence
	history  *History
	store    Store
	resolver IdentityResolver
	now      func() time.Time
	log      *slog.Logger
}

func NewDispatcher(fabric Fabric, presence *Presence, store Store, resolver IdentityResolver, log *slog.Logger) *Dispatcher {
	return &Dispatcher{
		fabric:   fabric,
		presence: presence,
		history:  NewHistory(store),
		store:    store,
		resolver: resolver,
		now:      time.Now,
		log:      log,
	}
}

func (d *Dispatcher) History() *History { return d.history }

// Handle dispatches one raw action and reports any rejection to the sender
// with an ERROR event. The connection stays open either way.
func (d *Dispatcher) Handle(ctx context.Context, conn hub.Conn, sess *Session, raw []byte) {
	err := d.Dispatch(ctx, conn, sess, raw)
	if err == nil {
		return
	}

	event := ErrorEvent{Type: EventError, Code: errorCode(err), Error: err.Error()}
	var actionErr *ActionError
	if errors.As(err, &actionErr) {
		event.Action = actionErr.Action
	}
	d.log.Warn("action rejected", "conn", conn.ID(), "action", event.Action, "code", event.Code, "error", err)

	payload, encErr := encode(event)
	if encErr != nil {
		d.log.Error("encode error event", "error", encErr)
		return
	}
	if sendErr := d.fabric.SendToOne(conn, payload); sendErr != nil {
		d.log.Warn("error event not delivered", "conn", conn.ID(), "error", sendErr)
	}
}

// Dispatch decodes the action type and runs its handler. Unknown types are
// ignored.
func (d *Dispatcher) Dispatch(ctx context.Context, conn hub.Conn, sess *Session, raw []byte) error {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return &ActionError{Action: "", Err: fmt.Errorf("%w: %v", ErrBadRequest, err)}
	}

	var err error
	switch env.Type {
	case ActionLogin:
		var a LoginAction
		if err = decodeAction(raw, &a); err == nil {
			err = d.login(ctx, conn, sess, a)
		}
	case ActionSendMessage:
		var a SendMessageAction
		if err = decodeAction(raw, &a); err == nil {
			err = d.sendMessage(ctx, sess, a)
		}
	case ActionRequestMessages:
		var a RequestMessagesAction
		if err = decodeAction(raw, &a); err == nil {
			err = d.requestMessages(ctx, conn, sess, a)
		}
	default:
		d.log.Debug("unknown action ignored", "conn", conn.ID(), "type", env.Type)
		return nil
	}

	if err != nil {
		return &ActionError{Action: env.Type, Err: err}
	}
	return nil
}

func decodeAction(raw []byte, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	return nil
}

// login performs no authentication of its own: identity comes from the
// configured resolver, which by default trusts the claimed username.
func (d *Dispatcher) login(ctx context.Context, conn hub.Conn, sess *Session, a LoginAction) error {
	username, err := d.resolver.ResolveIdentity(ctx, LoginClaim{User: a.User, Token: a.Token})
	if err != nil {
		return err
	}
	return d.presence.OnLogin(ctx, conn, sess, username)
}

// sendMessage does not check that the sender is a member of the room; any
// logged in user may post into a room id they know.
func (d *Dispatcher) sendMessage(ctx context.Context, sess *Session, a SendMessageAction) error {
	user, ok := sess.User()
	if !ok {
		return ErrUnauthenticated
	}

	room, err := d.store.GetRoom(ctx, a.RoomID)
	if err != nil {
		return err
	}

	msg, err := d.store.CreateMessage(ctx, user, room, a.Content, d.now())
	if err != nil {
		return err
	}

	payload, err := encode(newMessagesEvent([]Message{msg}))
	if err != nil {
		return err
	}
	d.fabric.SendToGroup(RoomGroup(room.ID), payload)
	return nil
}

func (d *Dispatcher) requestMessages(ctx context.Context, conn hub.Conn, sess *Session, a RequestMessagesAction) error {
	if _, ok := sess.User(); !ok {
		return ErrUnauthenticated
	}

	msgs, err := d.history.Fetch(ctx, a)
	if err != nil {
		return err
	}

	payload, err := encode(newMessagesEvent(msgs))
	if err != nil {
		return err
	}
	if err := d.fabric.SendToOne(conn, payload); err != nil {
		d.log.Warn("history not delivered", "conn", conn.ID(), "error", err)
	}
	return nil
}
