package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"community-chat/internal/chat"
	"community-chat/internal/models"
	"community-chat/internal/telemetry"
)

// MessageHandler exposes history, send, read and delete over REST. Sends
// and reads take the same path as the websocket events, so connected
// clients see the same broadcasts.
type MessageHandler struct {
	engine  *chat.Engine
	tracker *chat.ReadTracker
	audit   *telemetry.AuditEmitter
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(engine *chat.Engine, tracker *chat.ReadTracker, audit *telemetry.AuditEmitter) *MessageHandler {
	return &MessageHandler{engine: engine, tracker: tracker, audit: audit}
}

// ListMessages returns the latest messages of a room, oldest first.
func (h *MessageHandler) ListMessages(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	msgs, err := h.engine.History(c.Request.Context(), principal, c.Param("kind"), c.Param("room_id"), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// PostMessage sends a message to the room.
func (h *MessageHandler) PostMessage(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	var req struct {
		Content     string              `json:"content"`
		Attachments []models.Attachment `json:"attachments"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": chat.MsgInvalidPayload})
		return
	}

	msg, err := h.engine.SendMessage(c.Request.Context(), principal, chat.SendRequest{
		RoomID:      c.Param("room_id"),
		ChatType:    c.Param("kind"),
		Content:     req.Content,
		Attachments: req.Attachments,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

// MarkAsRead records a read receipt for the caller.
func (h *MessageHandler) MarkAsRead(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}

	receipt, appended, err := h.tracker.MarkAsRead(c.Request.Context(), principal, c.Param("message_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"receipt": receipt, "appended": appended})
}

// DeleteMessage soft-deletes a message sent by the caller.
func (h *MessageHandler) DeleteMessage(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}

	messageID := c.Param("message_id")
	msg, err := h.engine.DeleteMessage(c.Request.Context(), principal, messageID)
	if err != nil {
		if isInternal(err) {
			emitAudit(c, h.audit, telemetry.Entry{Level: telemetry.LevelError, Action: telemetry.ActionMessageDelete, Text: "internal error", MessageID: messageID})
		}
		respondError(c, err)
		return
	}

	emitAudit(c, h.audit, telemetry.Entry{Action: telemetry.ActionMessageDelete, Text: "Message deleted", RoomID: msg.RoomID, MessageID: msg.ID})
	c.Status(http.StatusNoContent)
}
