package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"community-chat/internal/telemetry"
)

// ConnectionStats exposes live websocket counts for debugging.
type ConnectionStats interface {
	Connections() int
	OnlineUsers() []string
}

// RegisterDebugRoutes wires debug-only endpoints when enabled.
func RegisterDebugRoutes(router gin.IRouter, emitter *telemetry.AuditEmitter, stats ConnectionStats, enabled bool) {
	if !enabled {
		return
	}

	debug := router.Group("/debug")
	debug.GET("/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		emitAudit(c, emitter, telemetry.Entry{Action: telemetry.ActionDebug, Text: "audit test"})
		c.JSON(http.StatusOK, gin.H{"status": "ok", "request_id": requestIDFromContext(c)})
	})
	debug.GET("/connections", func(c *gin.Context) {
		online := stats.OnlineUsers()
		c.JSON(http.StatusOK, gin.H{
			"connections": stats.Connections(),
			"onlineUsers": online,
			"onlineCount": len(online),
		})
	})
}
