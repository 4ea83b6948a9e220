package models

import (
	"encoding/json"
	"time"
)

// Inbound event names.
const (
	EventJoinRoom    = "join_room"
	EventLeaveRoom   = "leave_room"
	EventSendMessage = "send_message"
	EventTyping      = "typing"
	EventMarkAsRead  = "mark_as_read"
)

// Outbound event names.
const (
	EventNewMessage       = "new_message"
	EventMessageRead      = "message_read"
	EventMessageDeleted   = "message_deleted"
	EventUserTyping       = "user_typing"
	EventUserStatusUpdate = "user_status_update"
	EventRoomJoined       = "room_joined"
	EventRoomLeft         = "room_left"
	EventError            = "error"
)

// Envelope is the frame read from a websocket client.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// OutboundEvent is the frame written to websocket clients.
type OutboundEvent struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type JoinRoomPayload struct {
	RoomID   string `json:"roomId" validate:"required"`
	ChatType string `json:"chatType"`
}

type LeaveRoomPayload struct {
	RoomID string `json:"roomId" validate:"required"`
}

type SendMessagePayload struct {
	RoomID      string       `json:"roomId" validate:"required"`
	ChatType    string       `json:"chatType"`
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments" validate:"omitempty,dive"`
}

type TypingPayload struct {
	RoomID   string `json:"roomId" validate:"required"`
	IsTyping bool   `json:"isTyping"`
}

type MarkAsReadPayload struct {
	MessageID string `json:"messageId" validate:"required"`
}

type MessageReadPayload struct {
	MessageID string    `json:"messageId"`
	UserID    string    `json:"userId"`
	ReadAt    time.Time `json:"readAt"`
}

type MessageDeletedPayload struct {
	MessageID string `json:"messageId"`
	RoomID    string `json:"roomId"`
}

type UserTypingPayload struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	IsTyping bool   `json:"isTyping"`
}

type UserStatusPayload struct {
	OnlineUsers []string `json:"onlineUsers"`
}

type RoomAckPayload struct {
	RoomID string `json:"roomId"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// NewErrorEvent builds the scoped error frame.
func NewErrorEvent(message string) OutboundEvent {
	return OutboundEvent{Event: EventError, Data: ErrorPayload{Message: message}}
}
