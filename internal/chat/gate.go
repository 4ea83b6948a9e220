package chat

import (
	"context"
	"errors"

	"community-chat/internal/models"
	"community-chat/internal/repositories"
)

// Action is what a principal wants to do in a room; it selects the error
// message returned on refusal.
type Action int

const (
	ActionJoin Action = iota
	ActionSend
	ActionRead
	ActionHistory
)

// Gate authorizes room operations against persisted membership.
type Gate struct {
	rooms repositories.RoomRepository
}

// NewGate constructs a Gate.
func NewGate(rooms repositories.RoomRepository) *Gate {
	return &Gate{rooms: rooms}
}

// Authorize resolves the room named by id and client supplied chat type and
// checks that the principal belongs to it. An empty chat type is accepted
// for joins only, trying a direct room first and then a group.
func (g *Gate) Authorize(ctx context.Context, principal models.Principal, roomID string, chatType string, action Action) (models.Room, error) {
	if chatType == "" && action == ActionJoin {
		room, err := g.Check(ctx, principal, models.DirectRoom(roomID), action)
		var chatErr *Error
		if !errors.As(err, &chatErr) || chatErr.Code != CodeNotFound {
			return room, err
		}
		room, err = g.Check(ctx, principal, models.GroupRoom(roomID), action)
		if errors.As(err, &chatErr) && chatErr.Code == CodeNotFound {
			return models.Room{}, newError(CodeNotFound, MsgChatNotFound, chatErr.Err)
		}
		return room, err
	}

	kind, err := models.ParseRoomKind(chatType)
	if err != nil {
		return models.Room{}, newError(CodeInvalid, MsgInvalidChatType, err)
	}
	return g.Check(ctx, principal, models.RoomRef{Kind: kind, ID: roomID}, action)
}

// Check authorizes the principal against an already typed room reference.
func (g *Gate) Check(ctx context.Context, principal models.Principal, ref models.RoomRef, action Action) (models.Room, error) {
	room, err := g.rooms.FindRoom(ctx, ref)
	switch {
	case errors.Is(err, repositories.ErrRoomNotFound):
		return models.Room{}, newError(CodeNotFound, notFoundMessage(ref.Kind), err)
	case errors.Is(err, models.ErrInvalidRoomKind):
		return models.Room{}, newError(CodeInvalid, MsgInvalidChatType, err)
	case err != nil:
		return models.Room{}, newError(CodeInternal, failureMessage(action), err)
	}

	if !room.HasMember(principal.UserID) {
		return models.Room{}, newError(CodeUnauthorized, unauthorizedMessage(ref.Kind, action), nil)
	}
	return room, nil
}

func notFoundMessage(kind models.RoomKind) string {
	if kind == models.RoomKindGroup {
		return MsgGroupNotFound
	}
	return MsgChatNotFound
}

func unauthorizedMessage(kind models.RoomKind, action Action) string {
	switch action {
	case ActionSend:
		if kind == models.RoomKindGroup {
			return MsgNotAuthorizedGroup
		}
		return MsgNotAuthorizedChat
	case ActionRead, ActionHistory:
		return MsgNotAuthorizedRead
	default:
		return MsgNotAuthorizedJoin
	}
}

func failureMessage(action Action) string {
	switch action {
	case ActionSend:
		return MsgSendFailed
	case ActionRead:
		return MsgMarkReadFailed
	case ActionHistory:
		return MsgLoadFailed
	default:
		return MsgInternal
	}
}
