package chat

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second    // Time allowed to write a message to the peer.
	pongWait   = 60 * time.Second    // Time allowed to read the next pong message from the peer.
	pingPeriod = (pongWait * 9) / 10 // Must be less than pongWait.
)

var (
	errClientClosed   = errors.New("client closed")
	errSendBufferFull = errors.New("send buffer full")
)

// Client is a middleman between one websocket connection and the hub.
// It implements hub.Conn.
type Client struct {
	id        string
	conn      *websocket.Conn
	send      chan []byte // buffered outbound messages
	done      chan struct{}
	closeOnce sync.Once
	session   *Session
	log       *slog.Logger
}

func newClient(id string, conn *websocket.Conn, sendBuffer int, log *slog.Logger) *Client {
	return &Client{
		id:      id,
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		done:    make(chan struct{}),
		session: &Session{},
		log:     log,
	}
}

func (c *Client) ID() string { return c.id }

// Send enqueues payload without blocking. A client that cannot keep up is
// disconnected.
func (c *Client) Send(payload []byte) error {
	select {
	case <-c.done:
		return errClientClosed
	default:
	}

	select {
	case c.send <- payload:
		return nil
	default:
		c.log.Warn("slow client evicted", "conn", c.id)
		_ = c.Close()
		return errSendBufferFull
	}
}

func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

// readPump pumps actions from the websocket connection to handle. onClose
// runs exactly once, after the connection is gone.
func (c *Client) readPump(maxMessageSize int64, handle func([]byte), onClose func()) {
	defer func() {
		_ = c.Close()
		onClose()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn("read error", "conn", c.id, "error", err)
			}
			return
		}
		handle(message)
	}
}

// writePump pumps queued messages from the hub to the websocket connection.
// Each message goes out as its own frame so clients can JSON-decode frames
// one by one.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			// Heartbeat: keep the read deadline on the other side fresh
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
