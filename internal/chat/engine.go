// Package chat holds the room membership gate, the message broadcast engine
// and the read-receipt tracker. Transports call into it with an
// authenticated principal and deliver the returned errors to that caller only.
package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"community-chat/internal/models"
	"community-chat/internal/observability"
	"community-chat/internal/repositories"
)

// DefaultHistoryLimit bounds history reads when the caller gives no limit.
const DefaultHistoryLimit = 50

// MaxHistoryLimit is the largest page a history read may request.
const MaxHistoryLimit = 200

// Fanout delivers an event to every connection subscribed to a room.
type Fanout interface {
	BroadcastToRoom(roomID string, event models.OutboundEvent)
}

// SendRequest is a validated send_message input.
type SendRequest struct {
	RoomID      string              `validate:"required"`
	ChatType    string              `validate:"required"`
	Content     string              `validate:"max=10000"`
	Attachments []models.Attachment `validate:"omitempty,max=10,dive"`
}

// Engine persists messages and fans them out to room subscribers.
type Engine struct {
	gate           *Gate
	rooms          repositories.RoomRepository
	messages       repositories.MessageRepository
	users          repositories.UserRepository
	fanout         Fanout
	locks          *RoomLocks
	persistTimeout time.Duration
	validate       *validator.Validate
	tracer         trace.Tracer
	log            *slog.Logger
	now            func() time.Time
}

// NewEngine constructs an Engine. locks must be shared with the ReadTracker
// so that every broadcast of a room is ordered.
func NewEngine(
	gate *Gate,
	rooms repositories.RoomRepository,
	messages repositories.MessageRepository,
	users repositories.UserRepository,
	fanout Fanout,
	locks *RoomLocks,
	persistTimeout time.Duration,
	log *slog.Logger,
) *Engine {
	return &Engine{
		gate:           gate,
		rooms:          rooms,
		messages:       messages,
		users:          users,
		fanout:         fanout,
		locks:          locks,
		persistTimeout: persistTimeout,
		validate:       validator.New(),
		tracer:         otel.Tracer("community-chat/chat"),
		log:            log,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// SendMessage authorizes, persists and broadcasts a message. Nothing is
// broadcast unless every write succeeded.
func (e *Engine) SendMessage(ctx context.Context, principal models.Principal, req SendRequest) (models.Message, error) {
	ctx, span := e.tracer.Start(ctx, "chat.send_message", trace.WithAttributes(
		attribute.String("room.id", req.RoomID),
		attribute.String("room.kind", req.ChatType),
		attribute.String("user.id", principal.UserID),
	))
	defer span.End()

	msg, err := e.sendMessage(ctx, principal, req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return models.Message{}, err
	}
	return msg, nil
}

func (e *Engine) sendMessage(ctx context.Context, principal models.Principal, req SendRequest) (models.Message, error) {
	if err := e.validate.Struct(req); err != nil {
		return models.Message{}, validationError(err)
	}

	room, err := e.gate.Authorize(ctx, principal, req.RoomID, req.ChatType, ActionSend)
	if err != nil {
		return models.Message{}, err
	}
	if strings.TrimSpace(req.Content) == "" && len(req.Attachments) == 0 {
		return models.Message{}, newError(CodeInvalid, MsgContentRequired, nil)
	}

	now := e.now()
	msg := models.Message{
		ID:          uuid.NewString(),
		SenderID:    principal.UserID,
		RoomID:      room.ID,
		RoomKind:    room.Kind,
		Content:     req.Content,
		Attachments: req.Attachments,
		ReadBy:      []models.ReadReceipt{{UserID: principal.UserID, ReadAt: now}},
		CreatedAt:   now,
	}

	pctx, cancel := e.persistContext(ctx)
	defer cancel()

	err = e.locks.WithLock(room.ID, func() error {
		if _, err := e.messages.CreateMessage(pctx, msg); err != nil {
			e.log.Error("persist message failed", "room_id", room.ID, "user_id", principal.UserID, "error", err)
			return newError(CodeInternal, MsgSendFailed, err)
		}
		if room.Kind == models.RoomKindDirect {
			if err := e.rooms.UpdateLastMessage(pctx, room.ID, msg.ID); err != nil {
				e.log.Error("update last message failed", "room_id", room.ID, "message_id", msg.ID, "error", err)
				return newError(CodeInternal, MsgSendFailed, err)
			}
		}
		msg.Sender = e.senderSummary(pctx, principal)
		e.fanout.BroadcastToRoom(room.ID, models.OutboundEvent{Event: models.EventNewMessage, Data: msg})
		return nil
	})
	if err != nil {
		return models.Message{}, err
	}

	observability.IncMessageSent(string(room.Kind))
	e.log.Debug("message sent", "room_id", room.ID, "message_id", msg.ID, "user_id", principal.UserID)
	e.publish(pctx, observability.RoutingMessageCreated, "message_created", map[string]interface{}{
		"message_id": msg.ID,
		"room_id":    room.ID,
		"room_kind":  room.Kind,
		"sender_id":  principal.UserID,
		"created_at": msg.CreatedAt,
	})
	return msg, nil
}

// DeleteMessage soft-deletes a message on behalf of its sender and notifies
// the room.
func (e *Engine) DeleteMessage(ctx context.Context, principal models.Principal, messageID string) (models.Message, error) {
	pctx, cancel := e.persistContext(ctx)
	defer cancel()

	msg, err := e.messages.GetMessage(pctx, messageID)
	if errors.Is(err, repositories.ErrMessageNotFound) || (err == nil && msg.Deleted) {
		return models.Message{}, newError(CodeNotFound, MsgMessageNotFound, err)
	}
	if err != nil {
		return models.Message{}, newError(CodeInternal, MsgDeleteFailed, err)
	}
	if msg.SenderID != principal.UserID {
		return models.Message{}, newError(CodeUnauthorized, MsgNotAuthorizedDelete, nil)
	}

	err = e.locks.WithLock(msg.RoomID, func() error {
		if err := e.messages.SoftDelete(pctx, msg.ID, principal.UserID); err != nil {
			if errors.Is(err, repositories.ErrMessageNotFound) {
				return newError(CodeNotFound, MsgMessageNotFound, err)
			}
			return newError(CodeInternal, MsgDeleteFailed, err)
		}
		e.fanout.BroadcastToRoom(msg.RoomID, models.OutboundEvent{
			Event: models.EventMessageDeleted,
			Data:  models.MessageDeletedPayload{MessageID: msg.ID, RoomID: msg.RoomID},
		})
		return nil
	})
	if err != nil {
		return models.Message{}, err
	}

	msg.Deleted = true
	e.publish(pctx, observability.RoutingMessageDeleted, "message_deleted", map[string]interface{}{
		"message_id": msg.ID,
		"room_id":    msg.RoomID,
		"sender_id":  principal.UserID,
	})
	return msg, nil
}

// History returns the latest messages of a room the principal belongs to,
// oldest first, with sender names filled in.
func (e *Engine) History(ctx context.Context, principal models.Principal, chatType string, roomID string, limit int) ([]models.Message, error) {
	room, err := e.gate.Authorize(ctx, principal, roomID, chatType, ActionHistory)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	limit = min(limit, MaxHistoryLimit)

	msgs, err := e.messages.ListMessages(ctx, room.Ref(), limit)
	if err != nil {
		return nil, newError(CodeInternal, MsgLoadFailed, err)
	}

	senderIDs := lo.Uniq(lo.Map(msgs, func(m models.Message, _ int) string { return m.SenderID }))
	names, err := e.users.DisplayNames(ctx, senderIDs)
	if err != nil {
		e.log.Warn("resolve sender names failed", "room_id", room.ID, "error", err)
		names = map[string]string{}
	}
	for i := range msgs {
		msgs[i].Sender = &models.UserSummary{ID: msgs[i].SenderID, Name: lo.CoalesceOrEmpty(names[msgs[i].SenderID], msgs[i].SenderID)}
	}
	return msgs, nil
}

// senderSummary resolves the sender's current display name, falling back to
// the name carried by the principal.
func (e *Engine) senderSummary(ctx context.Context, principal models.Principal) *models.UserSummary {
	summary := &models.UserSummary{ID: principal.UserID, Name: principal.Name}
	names, err := e.users.DisplayNames(ctx, []string{principal.UserID})
	if err != nil {
		e.log.Warn("resolve sender name failed", "user_id", principal.UserID, "error", err)
		return summary
	}
	if name := names[principal.UserID]; name != "" {
		summary.Name = name
	}
	return summary
}

// persistContext detaches persistence from the caller's cancellation so an
// accepted write runs to completion, bounded by the persist timeout.
func (e *Engine) persistContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), e.persistTimeout)
}

func (e *Engine) publish(ctx context.Context, routingKey, name string, payload map[string]interface{}) {
	err := observability.PublishEvent(ctx, routingKey, observability.EventEnvelope{
		EventType: "chat_events",
		EventName: name,
		Payload:   payload,
	}, observability.BuildHeaders("", observability.TraceIDFromContext(ctx)))
	if err != nil {
		e.log.Warn("publish event failed", "routing_key", routingKey, "error", err)
	}
}

func validationError(err error) *Error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		for _, fe := range fieldErrs {
			switch {
			case fe.StructField() == "ChatType":
				return newError(CodeInvalid, MsgInvalidChatType, err)
			case strings.Contains(fe.Namespace(), "Attachments"):
				return newError(CodeInvalid, MsgInvalidAttachment, err)
			}
		}
	}
	return newError(CodeInvalid, MsgInvalidPayload, err)
}
