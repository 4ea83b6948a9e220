package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// OnlineUsers reports the current presence snapshot.
type OnlineUsers interface {
	OnlineUsers() []string
	IsOnline(userID string) bool
}

// PresenceHandler serves the presence snapshot.
type PresenceHandler struct {
	presence OnlineUsers
}

// NewPresenceHandler builds a PresenceHandler.
func NewPresenceHandler(presence OnlineUsers) *PresenceHandler {
	return &PresenceHandler{presence: presence}
}

// GetPresence returns the ids of every online user.
func (h *PresenceHandler) GetPresence(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"onlineUsers": h.presence.OnlineUsers()})
}

// GetUserPresence reports whether one user holds a live connection.
func (h *PresenceHandler) GetUserPresence(c *gin.Context) {
	userID := c.Param("user_id")
	c.JSON(http.StatusOK, gin.H{"userId": userID, "online": h.presence.IsOnline(userID)})
}
