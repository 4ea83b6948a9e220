package chat

import (
	"errors"
)

// Code classifies a failure for transport mapping.
type Code string

const (
	CodeNotFound     Code = "not_found"
	CodeUnauthorized Code = "unauthorized"
	CodeInvalid      Code = "invalid"
	CodeInternal     Code = "internal"
)

// Messages sent to clients in error events.
const (
	MsgChatNotFound        = "Chat not found"
	MsgGroupNotFound       = "Group not found"
	MsgNotAuthorizedChat   = "Not authorized to send message to this chat"
	MsgNotAuthorizedGroup  = "Not authorized to send message to this group"
	MsgNotAuthorizedJoin   = "Not authorized to join this chat/group"
	MsgNotAuthorizedRead   = "Not authorized to read this chat/group"
	MsgNotAuthorizedDelete = "Not authorized to delete this message"
	MsgInvalidChatType     = "Invalid chat type"
	MsgMessageNotFound     = "Message not found"
	MsgContentRequired     = "Message content is required"
	MsgInvalidAttachment   = "Invalid attachment"
	MsgSendFailed          = "Failed to send message"
	MsgMarkReadFailed      = "Failed to mark message as read"
	MsgDeleteFailed        = "Failed to delete message"
	MsgLoadFailed          = "Failed to load messages"
	MsgInvalidPayload      = "Invalid event payload"
	MsgUnknownEvent        = "Unknown event"
	MsgRateLimited         = "Rate limit exceeded"
	MsgInternal            = "Internal error"
)

// Error is a failure scoped to the caller. Message is safe to send to the
// client; Err is kept for logs.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func newError(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// NewError builds a scoped error for callers outside the package.
func NewError(code Code, message string, err error) *Error {
	return newError(code, message, err)
}

// AsError converts any error into a scoped error, treating unknown errors as
// internal.
func AsError(err error) *Error {
	var chatErr *Error
	if errors.As(err, &chatErr) {
		return chatErr
	}
	return newError(CodeInternal, MsgInternal, err)
}
