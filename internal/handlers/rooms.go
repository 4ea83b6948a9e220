package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"community-chat/internal/repositories"
	"community-chat/internal/telemetry"
)

// RoomHandler lists and creates rooms for the authenticated user.
type RoomHandler struct {
	rooms repositories.RoomRepository
	users repositories.UserRepository
	audit *telemetry.AuditEmitter
	log   *slog.Logger
}

// NewRoomHandler builds a RoomHandler.
func NewRoomHandler(rooms repositories.RoomRepository, users repositories.UserRepository, audit *telemetry.AuditEmitter, log *slog.Logger) *RoomHandler {
	return &RoomHandler{rooms: rooms, users: users, audit: audit, log: log}
}

// ListRooms returns the direct rooms and groups the user belongs to.
func (h *RoomHandler) ListRooms(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}

	rooms, err := h.rooms.ListRoomsForUser(c.Request.Context(), principal.UserID)
	if err != nil {
		h.log.Error("list rooms failed", "user_id", principal.UserID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load rooms"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

// CreateDirectRoom creates or returns the direct room with another user.
func (h *RoomHandler) CreateDirectRoom(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	var req struct {
		ParticipantID string `json:"participantId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.ParticipantID == principal.UserID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot chat with yourself"})
		return
	}

	names, err := h.users.DisplayNames(c.Request.Context(), []string{req.ParticipantID})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load user info"})
		return
	}
	if _, ok := names[req.ParticipantID]; !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}

	room, err := h.rooms.CreateOrGetDirectRoom(c.Request.Context(), principal.UserID, req.ParticipantID)
	if err != nil {
		if errors.Is(err, repositories.ErrInvalidDirectRoom) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.log.Error("create direct room failed", "user_id", principal.UserID, "error", err)
		emitAudit(c, h.audit, telemetry.Entry{Level: telemetry.LevelError, Action: telemetry.ActionDirectRoomOpen, Text: "internal error"})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create chat"})
		return
	}

	emitAudit(c, h.audit, telemetry.Entry{Action: telemetry.ActionDirectRoomOpen, Text: "Direct room opened", RoomID: room.ID})
	c.JSON(http.StatusOK, gin.H{"room": room})
}

// CreateGroup creates a group with the caller as admin.
func (h *RoomHandler) CreateGroup(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	var req struct {
		Name      string   `json:"name" binding:"required,max=100"`
		MemberIDs []string `json:"memberIds" binding:"omitempty,max=256,dive,required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	memberIDs := lo.Without(lo.Uniq(req.MemberIDs), principal.UserID)
	if len(memberIDs) > 0 {
		names, err := h.users.DisplayNames(c.Request.Context(), memberIDs)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load user info"})
			return
		}
		unknown := lo.Filter(memberIDs, func(id string, _ int) bool {
			_, ok := names[id]
			return !ok
		})
		if len(unknown) > 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown members", "memberIds": unknown})
			return
		}
	}

	room, err := h.rooms.CreateGroup(c.Request.Context(), req.Name, principal.UserID, memberIDs)
	if err != nil {
		h.log.Error("create group failed", "user_id", principal.UserID, "error", err)
		emitAudit(c, h.audit, telemetry.Entry{Level: telemetry.LevelError, Action: telemetry.ActionGroupCreate, Text: "internal error"})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create group"})
		return
	}

	emitAudit(c, h.audit, telemetry.Entry{Action: telemetry.ActionGroupCreate, Text: "Group created", RoomID: room.ID})
	c.JSON(http.StatusCreated, gin.H{"room": room})
}
