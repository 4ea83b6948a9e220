package observability

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// Routing keys of the domain events.
const (
	RoutingWSConnect      = "ws_events.connect"
	RoutingWSDisconnect   = "ws_events.disconnect"
	RoutingMessageCreated = "chat.message.created"
	RoutingMessageRead    = "chat.message.read"
	RoutingMessageDeleted = "chat.message.deleted"
)

type EventEnvelope struct {
	EventType string      `json:"event_type"`
	EventName string      `json:"event_name"`
	Payload   interface{} `json:"payload"`
}

func BuildHeaders(requestID, traceID string) map[string]string {
	headers := map[string]string{}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	return headers
}

// TraceIDFromContext returns the active trace id or an empty string.
func TraceIDFromContext(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}
