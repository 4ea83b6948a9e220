package ws

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"community-chat/internal/chat"
	"community-chat/internal/models"
	"community-chat/internal/observability"
	"community-chat/internal/presence"
)

// State is the lifecycle stage of a connection. A new Client starts in
// StateConnecting, which covers the handshake done by Handler.Handle; the
// manager moves it on once it takes the connection over.
type State int

const (
	StateConnecting State = iota
	StateAuthenticated
	StateActive
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateActive:
		return "active"
	default:
		return "disconnected"
	}
}

const inboundBuffer = 32

// ManagerConfig bounds every connection the manager serves.
type ManagerConfig struct {
	Client          ClientConfig
	EventsPerSecond float64
	EventBurst      int
}

// Manager runs the lifecycle of authenticated websocket connections:
// registration, in-order event dispatch and cleanup.
type Manager struct {
	hub      *Hub
	presence *presence.Registry
	gate     *chat.Gate
	engine   *chat.Engine
	tracker  *chat.ReadTracker
	cfg      ManagerConfig
	validate *validator.Validate
	log      *slog.Logger

	// presenceMu orders presence changes with the snapshots broadcast for them.
	presenceMu sync.Mutex
	sessions   sync.WaitGroup
}

// NewManager constructs a Manager.
func NewManager(
	hub *Hub,
	registry *presence.Registry,
	gate *chat.Gate,
	engine *chat.Engine,
	tracker *chat.ReadTracker,
	cfg ManagerConfig,
	log *slog.Logger,
) *Manager {
	return &Manager{
		hub:      hub,
		presence: registry,
		gate:     gate,
		engine:   engine,
		tracker:  tracker,
		cfg:      cfg,
		validate: validator.New(),
		log:      log,
	}
}

// Serve owns an upgraded connection until it closes. ctx bounds the
// connection's lifetime, not in-flight persistence.
func (m *Manager) Serve(ctx context.Context, conn *websocket.Conn, principal models.Principal, info ConnInfo) {
	m.sessions.Add(1)
	defer m.sessions.Done()

	c := newClient(conn, principal, info, m.cfg.Client, m.log)
	m.connect(ctx, c)

	connCtx, cancel := context.WithCancel(ctx)
	inbound := make(chan models.Envelope, inboundBuffer)
	dispatched := make(chan struct{})
	go c.writePump()
	go func() {
		defer close(dispatched)
		m.dispatchLoop(connCtx, c, inbound)
	}()

	stop := context.AfterFunc(ctx, c.Close)
	err := c.readPump(inbound)
	stop()
	cancel()
	close(inbound)
	<-dispatched

	m.disconnect(context.WithoutCancel(ctx), c, err)
}

// Shutdown closes every connection and waits for their cleanup.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.hub.CloseAll()
	done := make(chan struct{})
	go func() {
		m.sessions.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Connections returns the number of live websocket connections.
func (m *Manager) Connections() int {
	return m.hub.Len()
}

// OnlineUsers returns the current presence snapshot.
func (m *Manager) OnlineUsers() []string {
	return m.presence.Snapshot()
}

// IsOnline reports whether userID holds at least one live connection.
func (m *Manager) IsOnline(userID string) bool {
	return m.presence.IsOnline(userID)
}

func (m *Manager) connect(ctx context.Context, c *Client) {
	c.setState(StateAuthenticated)
	m.hub.Add(c)

	m.presenceMu.Lock()
	m.presence.Register(c.principal, c.id)
	m.broadcastPresenceLocked()
	m.presenceMu.Unlock()

	c.setState(StateActive)
	observability.IncWSActive()
	observability.IncWSEvent("ws_connect", "ok")
	c.log.Info("websocket connected", "state", c.State().String())
	if err := publishWSEvent(ctx, observability.RoutingWSConnect, "ws_connect", c.info, ""); err != nil {
		c.log.Warn("publish ws_connect failed", "error", err)
	}
}

func (m *Manager) disconnect(ctx context.Context, c *Client, cause error) {
	c.setState(StateDisconnected)
	m.hub.Remove(c)

	m.presenceMu.Lock()
	m.presence.Unregister(c.principal.UserID, c.id)
	m.broadcastPresenceLocked()
	m.presenceMu.Unlock()

	c.Close()
	observability.DecWSActive()
	observability.IncWSEvent("ws_disconnect", "ok")

	reason := ""
	if cause != nil {
		reason = cause.Error()
	}
	if cause != nil && isUnexpectedClose(cause) {
		c.log.Warn("websocket closed unexpectedly", "error", cause)
	} else {
		c.log.Info("websocket disconnected", "state", c.State().String())
	}
	if err := publishWSEvent(ctx, observability.RoutingWSDisconnect, "ws_disconnect", c.info, reason); err != nil {
		c.log.Warn("publish ws_disconnect failed", "error", err)
	}
}

func (m *Manager) broadcastPresenceLocked() {
	online := m.presence.Snapshot()
	observability.SetOnlineUsers(len(online))
	m.hub.BroadcastAll(models.OutboundEvent{
		Event: models.EventUserStatusUpdate,
		Data:  models.UserStatusPayload{OnlineUsers: online},
	})
}

// dispatchLoop handles a connection's events one at a time in arrival order.
// Events still queued once the connection is gone are discarded.
func (m *Manager) dispatchLoop(ctx context.Context, c *Client, inbound <-chan models.Envelope) {
	limiter := rate.NewLimiter(rate.Limit(m.cfg.EventsPerSecond), m.cfg.EventBurst)
	for env := range inbound {
		if ctx.Err() != nil || c.State() != StateActive {
			continue
		}
		m.dispatch(ctx, c, limiter, env)
	}
}

func (m *Manager) dispatch(ctx context.Context, c *Client, limiter *rate.Limiter, env models.Envelope) {
	label := metricLabel(env.Event)
	defer observability.ObserveWSEvent(label, time.Now())
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("websocket handler panicked", "event", label, "panic", fmt.Sprint(r))
			observability.IncWSEvent(label, string(chat.CodeInternal))
			m.hub.SendTo(c, models.NewErrorEvent(chat.MsgInternal))
		}
	}()

	if !limiter.Allow() {
		observability.IncWSEvent(label, "rate_limited")
		m.hub.SendTo(c, models.NewErrorEvent(chat.MsgRateLimited))
		return
	}

	var err error
	switch env.Event {
	case models.EventJoinRoom:
		err = m.handleJoinRoom(ctx, c, env)
	case models.EventLeaveRoom:
		err = m.handleLeaveRoom(c, env)
	case models.EventSendMessage:
		err = m.handleSendMessage(ctx, c, env)
	case models.EventTyping:
		err = m.handleTyping(c, env)
	case models.EventMarkAsRead:
		err = m.handleMarkAsRead(ctx, c, env)
	case "":
		err = chat.NewError(chat.CodeInvalid, chat.MsgInvalidPayload, nil)
	default:
		err = chat.NewError(chat.CodeInvalid, chat.MsgUnknownEvent, nil)
	}

	if err != nil {
		chatErr := chat.AsError(err)
		observability.IncWSEvent(label, string(chatErr.Code))
		if chatErr.Code == chat.CodeInternal {
			c.log.Error("websocket event failed", "event", label, "error", chatErr)
		} else {
			c.log.Debug("websocket event rejected", "event", label, "error", chatErr)
		}
		m.hub.SendTo(c, models.NewErrorEvent(chatErr.Message))
		return
	}
	observability.IncWSEvent(label, "ok")
}

func (m *Manager) handleJoinRoom(ctx context.Context, c *Client, env models.Envelope) error {
	var p models.JoinRoomPayload
	if err := decodePayload(m.validate, env.Data, &p); err != nil {
		return err
	}
	room, err := m.gate.Authorize(ctx, c.principal, p.RoomID, p.ChatType, chat.ActionJoin)
	if err != nil {
		return err
	}
	m.hub.Join(room.ID, c)
	m.hub.SendTo(c, models.OutboundEvent{Event: models.EventRoomJoined, Data: models.RoomAckPayload{RoomID: room.ID}})
	c.log.Debug("joined room", "room_id", room.ID)
	return nil
}

func (m *Manager) handleLeaveRoom(c *Client, env models.Envelope) error {
	var p models.LeaveRoomPayload
	if err := decodePayload(m.validate, env.Data, &p); err != nil {
		return err
	}
	m.hub.Leave(p.RoomID, c)
	m.hub.SendTo(c, models.OutboundEvent{Event: models.EventRoomLeft, Data: models.RoomAckPayload{RoomID: p.RoomID}})
	return nil
}

func (m *Manager) handleSendMessage(ctx context.Context, c *Client, env models.Envelope) error {
	var p models.SendMessagePayload
	if err := decodePayload(m.validate, env.Data, &p); err != nil {
		return err
	}
	_, err := m.engine.SendMessage(ctx, c.principal, chat.SendRequest{
		RoomID:      p.RoomID,
		ChatType:    p.ChatType,
		Content:     p.Content,
		Attachments: p.Attachments,
	})
	return err
}

// handleTyping relays the indicator to the room's other connections. It is
// best effort: nothing is persisted or checked against membership.
func (m *Manager) handleTyping(c *Client, env models.Envelope) error {
	var p models.TypingPayload
	if err := decodePayload(m.validate, env.Data, &p); err != nil {
		return err
	}
	m.hub.BroadcastToRoomExcept(p.RoomID, models.OutboundEvent{
		Event: models.EventUserTyping,
		Data: models.UserTypingPayload{
			UserID:   c.principal.UserID,
			UserName: c.principal.Name,
			IsTyping: p.IsTyping,
		},
	}, c.id)
	return nil
}

func (m *Manager) handleMarkAsRead(ctx context.Context, c *Client, env models.Envelope) error {
	var p models.MarkAsReadPayload
	if err := decodePayload(m.validate, env.Data, &p); err != nil {
		return err
	}
	_, _, err := m.tracker.MarkAsRead(ctx, c.principal, p.MessageID)
	return err
}

func metricLabel(event string) string {
	switch event {
	case models.EventJoinRoom, models.EventLeaveRoom, models.EventSendMessage, models.EventTyping, models.EventMarkAsRead:
		return event
	case "":
		return "invalid"
	default:
		return "unknown"
	}
}
