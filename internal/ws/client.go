package ws

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"community-chat/internal/models"
)

// ClientConfig holds the per-connection transport limits.
type ClientConfig struct {
	WriteTimeout    time.Duration
	PongTimeout     time.Duration
	SendBuffer      int
	MaxMessageBytes int64
}

func (c ClientConfig) pingPeriod() time.Duration {
	return c.PongTimeout * 9 / 10
}

// Client is one websocket connection. Frames are written only by the write
// pump; everyone else queues them on send.
type Client struct {
	id        string
	principal models.Principal
	info      ConnInfo
	conn      *websocket.Conn
	cfg       ClientConfig
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	state     atomic.Int32
	log       *slog.Logger

	// rooms is guarded by the hub's lock.
	rooms map[string]struct{}
}

func newClient(conn *websocket.Conn, principal models.Principal, info ConnInfo, cfg ClientConfig, log *slog.Logger) *Client {
	return &Client{
		id:        info.ConnID,
		principal: principal,
		info:      info,
		conn:      conn,
		cfg:       cfg,
		send:      make(chan []byte, cfg.SendBuffer),
		done:      make(chan struct{}),
		log:       log.With("conn_id", info.ConnID, "user_id", principal.UserID),
		rooms:     make(map[string]struct{}),
	}
}

// State returns the connection's lifecycle stage.
func (c *Client) State() State { return State(c.state.Load()) }

func (c *Client) setState(s State) { c.state.Store(int32(s)) }

// enqueue queues a frame without blocking. It returns false only when the
// send buffer is full; frames for a closing client are discarded.
func (c *Client) enqueue(payload []byte) bool {
	select {
	case <-c.done:
		return true
	default:
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// Close stops the write pump, which closes the underlying connection.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Client) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// readPump reads frames until the connection fails and hands every frame to
// inbound in arrival order. Frames that are not an envelope are forwarded
// with an empty event name.
func (c *Client) readPump(inbound chan<- models.Envelope) error {
	c.conn.SetReadLimit(c.cfg.MaxMessageBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return err
		}
		var env models.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			env = models.Envelope{}
		}
		select {
		case inbound <- env:
		case <-c.done:
			return websocket.ErrCloseSent
		}
	}
}

// writePump drains the send buffer and keeps the connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.cfg.pingPeriod())
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.log.Debug("websocket write failed", "error", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.flush()
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.cfg.WriteTimeout))
			return
		}
	}
}

// flush writes whatever is still queued when the client is closed.
func (c *Client) flush() {
	for {
		select {
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		default:
			return
		}
	}
}
