package gateway

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"support-gateway/internal/auth"

	"github.com/gorilla/websocket"
)

var (
	ErrConnClosed   = errors.New("connection closed")
	ErrSlowConsumer = errors.New("slow consumer, frame dropped")
)

type outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Client is one authenticated duplex connection. All writes go through the
// buffered send channel and a single write pump; Send never blocks, so a
// stalled socket costs its own frames, never its peers' handlers.
type Client struct {
	conn     *websocket.Conn
	identity auth.Identity

	send chan outbound
	done chan struct{}
	once sync.Once

	// conversationID is only touched by the read loop.
	conversationID string

	log *slog.Logger
}

func newClient(conn *websocket.Conn, identity auth.Identity, buffer int, log *slog.Logger) *Client {
	if buffer <= 0 {
		buffer = 64
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		conn:     conn,
		identity: identity,
		send:     make(chan outbound, buffer),
		done:     make(chan struct{}),
		log:      log.With("identity", identity.ID, "role", identity.Role),
	}
}

func (c *Client) Identity() string { return c.identity.ID }
func (c *Client) Role() auth.Role  { return c.identity.Role }

// Send queues an event frame for the write pump.
func (c *Client) Send(event string, data any) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}
	select {
	case c.send <- outbound{Event: event, Data: data}:
		return nil
	default:
		c.log.Warn("frame dropped", "event", event)
		return ErrSlowConsumer
	}
}

func (c *Client) close() {
	c.once.Do(func() { close(c.done) })
}

// writePump owns the socket's write side: queued frames and keepalive
// pings. It exits on the first write error or when the client is closed.
func (c *Client) writePump(writeTimeout, pingPeriod time.Duration) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.log.Debug("write failed", "event", msg.Event, "err", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
