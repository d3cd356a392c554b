package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Repository is the Postgres-backed Store.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func storeErr(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return fmt.Errorf("%s: %w: %v", op, ErrStoreUnavailable, err)
}

func (r *Repository) GetOrCreateUser(ctx context.Context, username string) (User, bool, error) {
	u := User{Username: username}

	// ON CONFLICT DO NOTHING returns no row when the user already exists.
	query := `INSERT INTO users (username) VALUES ($1) ON CONFLICT (username) DO NOTHING RETURNING id`
	err := r.db.QueryRowContext(ctx, query, username).Scan(&u.ID)
	if err == nil {
		return u, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return User{}, false, storeErr("create user", err)
	}

	err = r.db.QueryRowContext(ctx, `SELECT id FROM users WHERE username = $1`, username).Scan(&u.ID)
	if err != nil {
		return User{}, false, storeErr("get user", err)
	}
	return u, false, nil
}

func (r *Repository) UsersExcluding(ctx context.Context, userID int64) ([]User, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, username FROM users WHERE id <> $1 ORDER BY id`, userID)
	if err != nil {
		return nil, storeErr("list users", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username); err != nil {
			return nil, storeErr("scan user", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list users", err)
	}
	return users, nil
}

func (r *Repository) CreateRoom(ctx context.Context, members ...User) (Room, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Room{}, storeErr("begin", err)
	}
	defer tx.Rollback()

	var room Room
	if err := tx.QueryRowContext(ctx, `INSERT INTO rooms DEFAULT VALUES RETURNING id`).Scan(&room.ID); err != nil {
		return Room{}, storeErr("create room", err)
	}
	for _, m := range members {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO room_users (room_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			room.ID, m.ID)
		if err != nil {
			return Room{}, storeErr("add room member", err)
		}
		room.Members = append(room.Members, m.Username)
	}
	if err := tx.Commit(); err != nil {
		return Room{}, storeErr("commit room", err)
	}
	sort.Strings(room.Members)
	return room, nil
}

func (r *Repository) RoomsForUser(ctx context.Context, userID int64) ([]Room, error) {
	query := `
		SELECT ru.room_id, u.username
		FROM room_users ru
		JOIN users u ON u.id = ru.user_id
		WHERE ru.room_id IN (SELECT room_id FROM room_users WHERE user_id = $1)
		ORDER BY ru.room_id, u.username
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, storeErr("rooms for user", err)
	}
	defer rows.Close()

	var rooms []Room
	for rows.Next() {
		var id int64
		var username string
		if err := rows.Scan(&id, &username); err != nil {
			return nil, storeErr("scan room", err)
		}
		// Rows are grouped by room id, so a new id starts a new room.
		if n := len(rooms); n == 0 || rooms[n-1].ID != id {
			rooms = append(rooms, Room{ID: id})
		}
		rooms[len(rooms)-1].Members = append(rooms[len(rooms)-1].Members, username)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("rooms for user", err)
	}
	return rooms, nil
}

func (r *Repository) GetRoom(ctx context.Context, roomID int64) (Room, error) {
	room := Room{}
	if err := r.db.QueryRowContext(ctx, `SELECT id FROM rooms WHERE id = $1`, roomID).Scan(&room.ID); err != nil {
		return Room{}, storeErr(fmt.Sprintf("room %d", roomID), err)
	}

	query := `
		SELECT u.username
		FROM room_users ru
		JOIN users u ON u.id = ru.user_id
		WHERE ru.room_id = $1
		ORDER BY u.username
	`
	rows, err := r.db.QueryContext(ctx, query, roomID)
	if err != nil {
		return Room{}, storeErr("room members", err)
	}
	defer rows.Close()

	for rows.Next() {
		var username string
		if err := rows.Scan(&username); err != nil {
			return Room{}, storeErr("scan member", err)
		}
		room.Members = append(room.Members, username)
	}
	if err := rows.Err(); err != nil {
		return Room{}, storeErr("room members", err)
	}
	return room, nil
}

func (r *Repository) CreateMessage(ctx context.Context, user User, room Room, content string, at time.Time) (Message, error) {
	// timestamptz keeps microseconds; match what a later read returns.
	at = at.Truncate(time.Microsecond)
	m := Message{
		RoomID:    room.ID,
		Username:  user.Username,
		Content:   content,
		CreatedAt: at,
	}
	query := "INSERT INTO messages (room_id, user_id, content, created_at) VALUES ($1, $2, $3, $4) RETURNING id"
	if err := r.db.QueryRowContext(ctx, query, room.ID, user.ID, content, at).Scan(&m.ID); err != nil {
		return Message{}, storeErr("create message", err)
	}
	return m, nil
}

const messageColumns = `m.id, m.room_id, u.username, m.content, m.created_at`

func (r *Repository) GetMessageByID(ctx context.Context, id int64) (Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages m JOIN users u ON u.id = m.user_id WHERE m.id = $1`
	var m Message
	err := r.db.QueryRowContext(ctx, query, id).Scan(&m.ID, &m.RoomID, &m.Username, &m.Content, &m.CreatedAt)
	if err != nil {
		return Message{}, storeErr(fmt.Sprintf("message %d", id), err)
	}
	return m, nil
}

func (r *Repository) QueryMessages(ctx context.Context, f MessageFilter) ([]Message, error) {
	var where []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.RoomID != nil {
		where = append(where, "m.room_id = "+arg(*f.RoomID))
	}
	if f.Member != nil {
		where = append(where, `m.room_id IN (
			SELECT ru.room_id FROM room_users ru JOIN users mu ON mu.id = ru.user_id
			WHERE mu.username = `+arg(*f.Member)+`)`)
	}
	if f.Since != nil {
		where = append(where, "m.created_at >= "+arg(*f.Since))
	}
	if f.Until != nil {
		where = append(where, "m.created_at <= "+arg(*f.Until))
	}

	var b strings.Builder
	b.WriteString(`SELECT ` + messageColumns + ` FROM messages m JOIN users u ON u.id = m.user_id`)
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY m.created_at DESC, m.id DESC")
	if f.Limit > 0 {
		b.WriteString(" LIMIT " + arg(f.Limit))
	}

	rows, err := r.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, storeErr("query messages", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.RoomID, &m.Username, &m.Content, &m.CreatedAt); err != nil {
			return nil, storeErr("scan message", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("query messages", err)
	}
	return msgs, nil
}
