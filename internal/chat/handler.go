package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"dmchat/internal/hub"
	myMiddleware "dmchat/internal/middleware"
	"dmchat/internal/online"
)

const (
	actionTimeout     = 10 * time.Second
	disconnectTimeout = 5 * time.Second
)

type HandlerOptions struct {
	MaxMessageSize int64
	SendBuffer     int
	AllowedOrigins []string // empty allows every origin
}

type Handler struct {
	ctx        context.Context
	hub        *hub.Hub
	dispatcher *Dispatcher
	presence   *Presence
	online     online.Tracker
	upgrader   websocket.Upgrader
	opts       HandlerOptions
	log        *slog.Logger
}

// NewHandler wires the websocket endpoint. ctx bounds every action handled
// on any connection; cancel it to stop in-flight store calls on shutdown.
func NewHandler(ctx context.Context, h *hub.Hub, dispatcher *Dispatcher, presence *Presence, tracker online.Tracker, opts HandlerOptions, log *slog.Logger) *Handler {
	handler := &Handler{
		ctx:        ctx,
		hub:        h,
		dispatcher: dispatcher,
		presence:   presence,
		online:     tracker,
		opts:       opts,
		log:        log,
	}
	handler.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     handler.checkOrigin,
	}
	return handler
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.opts.AllowedOrigins) == 0 {
		return true
	}
	origin, err := url.Parse(r.Header.Get("Origin"))
	if err != nil || origin.Host == "" {
		return false
	}
	got := strings.ToLower(origin.Scheme + "://" + origin.Host)
	for _, allowed := range h.opts.AllowedOrigins {
		if strings.EqualFold(strings.TrimRight(allowed, "/"), got) {
			return true
		}
	}
	h.log.Warn("blocked websocket origin", "origin", r.Header.Get("Origin"))
	return false
}

func (h *Handler) ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := newClient(uuid.NewString(), conn, h.opts.SendBuffer, h.log)
	h.hub.Register(client)
	h.log.Debug("client connected", "conn", client.ID(), "remote", r.RemoteAddr)

	// These run in new goroutines, ServeWs returns immediately.
	go client.writePump()
	go client.readPump(h.opts.MaxMessageSize,
		func(raw []byte) {
			ctx, cancel := context.WithTimeout(h.ctx, actionTimeout)
			defer cancel()
			h.dispatcher.Handle(ctx, client, client.session, raw)
		},
		func() { h.disconnect(client) },
	)
}

// disconnect is best effort and must never take the read pump down with it.
func (h *Handler) disconnect(client *Client) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("recovered during disconnect", "conn", client.ID(), "panic", r)
		}
		h.hub.Unregister(client)
	}()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(h.ctx), disconnectTimeout)
	defer cancel()
	h.presence.OnDisconnect(ctx, client, client.session)
}

// GetRoomMessages is the REST form of REQUEST_MESSAGES, limited to rooms the
// authenticated user belongs to.
func (h *Handler) GetRoomMessages(w http.ResponseWriter, r *http.Request) {
	username, ok := myMiddleware.UsernameFrom(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	roomID, err := strconv.ParseInt(chi.URLParam(r, "roomID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid room id", http.StatusBadRequest)
		return
	}
	q := RequestMessagesAction{RoomID: &roomID, User: &username}
	if q.LastMessageID, err = optionalID(r, "lastMessageId"); err != nil {
		http.Error(w, "invalid lastMessageId", http.StatusBadRequest)
		return
	}
	if q.FirstMessageID, err = optionalID(r, "firstMessageId"); err != nil {
		http.Error(w, "invalid firstMessageId", http.StatusBadRequest)
		return
	}

	msgs, err := h.dispatcher.History().Fetch(r.Context(), q)
	if err != nil {
		http.Error(w, err.Error(), httpStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, newMessagesEvent(msgs))
}

func (h *Handler) GetOnline(w http.ResponseWriter, r *http.Request) {
	users, err := h.online.Online(r.Context())
	if err != nil {
		h.log.Warn("online lookup", "error", err)
		http.Error(w, "online users unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"users": users})
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	groups, conns := h.hub.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"groups":      groups,
		"connections": conns,
	})
}

func optionalID(r *http.Request, key string) (*int64, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func httpStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthenticated), errors.Is(err, ErrAuth):
		return http.StatusUnauthorized
	case errors.Is(err, ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
