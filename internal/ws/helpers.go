package ws

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"community-chat/internal/chat"
	"community-chat/internal/observability"
)

func newConnID() string {
	return uuid.NewString()
}

// publishWSEvent emits a ws_events envelope for the connection.
func publishWSEvent(ctx context.Context, routingKey, name string, info ConnInfo, reason string) error {
	return observability.PublishEvent(ctx, routingKey, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: name,
		Payload:   info.payload(name, reason),
	}, observability.BuildHeaders(info.RequestID, info.TraceID))
}

// decodePayload unmarshals and validates an inbound event body.
func decodePayload(validate *validator.Validate, data json.RawMessage, dst any) error {
	if len(data) == 0 {
		return chat.NewError(chat.CodeInvalid, chat.MsgInvalidPayload, errors.New("missing data"))
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return chat.NewError(chat.CodeInvalid, chat.MsgInvalidPayload, err)
	}
	if err := validate.Struct(dst); err != nil {
		return chat.NewError(chat.CodeInvalid, chat.MsgInvalidPayload, err)
	}
	return nil
}

func isUnexpectedClose(err error) bool {
	return websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived)
}
