// Package telemetry emits audit_log envelopes for state changes made
// through the REST surface.
package telemetry

import (
	"context"
	"log/slog"
	"time"
)

// Audit levels.
const (
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

// Audit actions.
const (
	ActionDirectRoomOpen = "room.direct.open"
	ActionGroupCreate    = "group.create"
	ActionMessageDelete  = "message.delete"
	ActionDebug          = "debug.audit_test"
)

// Publisher is the broker call the emitter needs.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error
}

// Entry is one audited change. RoomID and MessageID name the resource the
// action touched when there is one.
type Entry struct {
	Level     string
	Action    string
	Text      string
	RoomID    string
	MessageID string
}

// AuditEmitter publishes audit entries. Entries are routed to
// "<routingKey>.<action>" so consumers can bind per action.
type AuditEmitter struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
	log         *slog.Logger
	now         func() time.Time
}

type AuditEnvelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	OccurredAt    string       `json:"occurred_at"`
	Service       string       `json:"service"`
	Environment   string       `json:"environment"`
	RequestID     string       `json:"request_id"`
	UserID        *string      `json:"user_id,omitempty"`
	Payload       AuditPayload `json:"payload"`
}

type AuditPayload struct {
	Level     string `json:"level"`
	Action    string `json:"action"`
	Text      string `json:"text"`
	RoomID    string `json:"room_id,omitempty"`
	MessageID string `json:"message_id,omitempty"`
}

// NewAuditEmitter builds an emitter publishing under routingKey.
func NewAuditEmitter(publisher Publisher, routingKey, service, environment string, log *slog.Logger) *AuditEmitter {
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
		log:         log,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Record publishes one entry. Publish failures are logged, never returned,
// so auditing cannot fail the request it describes.
func (e *AuditEmitter) Record(ctx context.Context, entry Entry, requestID string, userID *string) {
	if e == nil || e.publisher == nil {
		return
	}
	if entry.Level == "" {
		entry.Level = LevelInfo
	}

	envelope := AuditEnvelope{
		SchemaVersion: 2,
		EventType:     "audit_log",
		OccurredAt:    e.now().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     requestID,
		UserID:        userID,
		Payload: AuditPayload{
			Level:     entry.Level,
			Action:    entry.Action,
			Text:      entry.Text,
			RoomID:    entry.RoomID,
			MessageID: entry.MessageID,
		},
	}

	routingKey := e.routingKey
	if entry.Action != "" {
		routingKey += "." + entry.Action
	}
	e.log.Debug("audit record", "action", entry.Action, "level", entry.Level, "request_id", requestID, "room_id", entry.RoomID)
	if err := e.publisher.Publish(ctx, routingKey, envelope, map[string]string{"x-request-id": requestID}); err != nil {
		e.log.Error("audit publish failed", "action", entry.Action, "error", err)
	}
}
