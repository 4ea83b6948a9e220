package chat

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"community-chat/internal/models"
	"community-chat/internal/observability"
	"community-chat/internal/repositories"
)

// ReadTracker records read receipts, at most one per reader and message.
type ReadTracker struct {
	gate           *Gate
	messages       repositories.MessageRepository
	fanout         Fanout
	locks          *RoomLocks
	persistTimeout time.Duration
	tracer         trace.Tracer
	log            *slog.Logger
	now            func() time.Time
}

// NewReadTracker constructs a ReadTracker.
func NewReadTracker(
	gate *Gate,
	messages repositories.MessageRepository,
	fanout Fanout,
	locks *RoomLocks,
	persistTimeout time.Duration,
	log *slog.Logger,
) *ReadTracker {
	return &ReadTracker{
		gate:           gate,
		messages:       messages,
		fanout:         fanout,
		locks:          locks,
		persistTimeout: persistTimeout,
		tracer:         otel.Tracer("community-chat/chat"),
		log:            log,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// MarkAsRead records that the principal read the message and broadcasts the
// receipt to the message's room. A repeated call is a silent no-op and
// reports appended=false.
func (t *ReadTracker) MarkAsRead(ctx context.Context, principal models.Principal, messageID string) (models.MessageReadPayload, bool, error) {
	ctx, span := t.tracer.Start(ctx, "chat.mark_as_read", trace.WithAttributes(
		attribute.String("message.id", messageID),
		attribute.String("user.id", principal.UserID),
	))
	defer span.End()

	receipt, appended, err := t.markAsRead(ctx, principal, messageID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.Bool("receipt.appended", appended))
	return receipt, appended, err
}

func (t *ReadTracker) markAsRead(ctx context.Context, principal models.Principal, messageID string) (models.MessageReadPayload, bool, error) {
	if messageID == "" {
		return models.MessageReadPayload{}, false, newError(CodeInvalid, MsgInvalidPayload, nil)
	}

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.persistTimeout)
	defer cancel()

	msg, err := t.messages.GetMessage(pctx, messageID)
	if errors.Is(err, repositories.ErrMessageNotFound) || (err == nil && msg.Deleted) {
		return models.MessageReadPayload{}, false, newError(CodeNotFound, MsgMessageNotFound, err)
	}
	if err != nil {
		return models.MessageReadPayload{}, false, newError(CodeInternal, MsgMarkReadFailed, err)
	}
	if _, err := t.gate.Check(pctx, principal, msg.Room(), ActionRead); err != nil {
		return models.MessageReadPayload{}, false, err
	}
	if msg.ReadByUser(principal.UserID) {
		return models.MessageReadPayload{}, false, nil
	}

	receipt := models.ReadReceipt{UserID: principal.UserID, ReadAt: t.now()}
	payload := models.MessageReadPayload{MessageID: msg.ID, UserID: principal.UserID, ReadAt: receipt.ReadAt}
	var appended bool
	err = t.locks.WithLock(msg.RoomID, func() error {
		var err error
		appended, err = t.messages.AppendReadReceipt(pctx, msg.ID, receipt)
		if errors.Is(err, repositories.ErrMessageNotFound) {
			return newError(CodeNotFound, MsgMessageNotFound, err)
		}
		if err != nil {
			t.log.Error("append read receipt failed", "message_id", msg.ID, "user_id", principal.UserID, "error", err)
			return newError(CodeInternal, MsgMarkReadFailed, err)
		}
		if appended {
			t.fanout.BroadcastToRoom(msg.RoomID, models.OutboundEvent{Event: models.EventMessageRead, Data: payload})
		}
		return nil
	})
	if err != nil {
		return models.MessageReadPayload{}, false, err
	}
	if !appended {
		return models.MessageReadPayload{}, false, nil
	}

	observability.IncReadReceipt()
	err = observability.PublishEvent(pctx, observability.RoutingMessageRead, observability.EventEnvelope{
		EventType: "chat_events",
		EventName: "message_read",
		Payload: map[string]interface{}{
			"message_id": msg.ID,
			"room_id":    msg.RoomID,
			"reader_id":  principal.UserID,
			"read_at":    receipt.ReadAt,
		},
	}, observability.BuildHeaders("", observability.TraceIDFromContext(ctx)))
	if err != nil {
		t.log.Warn("publish event failed", "routing_key", observability.RoutingMessageRead, "error", err)
	}
	return payload, true, nil
}
