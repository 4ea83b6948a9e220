package ws

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"community-chat/internal/identity"
	"community-chat/internal/middleware"
	"community-chat/internal/observability"
)

// Handler authenticates websocket handshakes and hands upgraded connections
// to the Manager.
type Handler struct {
	baseCtx          context.Context
	auth             identity.Authenticator
	manager          *Manager
	upgrader         websocket.Upgrader
	handshakeTimeout time.Duration
	log              *slog.Logger
}

// NewHandler constructs a Handler. Connections live until baseCtx is done or
// the client goes away. An empty allowedOrigins accepts every origin.
func NewHandler(
	baseCtx context.Context,
	auth identity.Authenticator,
	manager *Manager,
	handshakeTimeout time.Duration,
	allowedOrigins []string,
	log *slog.Logger,
) *Handler {
	return &Handler{
		baseCtx:          baseCtx,
		auth:             auth,
		manager:          manager,
		handshakeTimeout: handshakeTimeout,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: handshakeTimeout,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
			CheckOrigin:      originChecker(allowedOrigins),
		},
		log: log,
	}
}

// Handle authenticates the bearer credential and upgrades the connection.
// This is the Connecting stage: rejected handshakes get a 401 before any
// upgrade and never reach the manager.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("community-chat/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()

	token := middleware.TokenFromRequest(c.Request)
	if token == "" {
		span.SetStatus(codes.Error, "missing token")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	authCtx, cancel := context.WithTimeout(ctx, h.handshakeTimeout)
	principal, err := h.auth.Authenticate(authCtx, token)
	cancel()
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		observability.IncWSEvent("ws_connect", "unauthorized")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	span.SetAttributes(attribute.String("user.id", principal.UserID))

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", "user_id", principal.UserID, "error", err)
		return
	}

	requestID := c.GetString(observability.RequestIDKey)
	if requestID == "" {
		requestID = observability.RequestIDFromRequest(c.Request)
	}
	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      principal.UserID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   requestID,
		TraceID:     observability.TraceIDFromContext(ctx),
		ConnectedAt: time.Now(),
	}
	go h.manager.Serve(h.baseCtx, conn, principal, info)
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || lo.Contains(allowed, origin)
	}
}
