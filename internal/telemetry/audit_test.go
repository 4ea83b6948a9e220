package telemetry

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type publisherMock struct {
	mock.Mock
}

func (m *publisherMock) Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error {
	args := m.Called(ctx, routingKey, event, headers)
	return args.Error(0)
}

func newTestEmitter(pub Publisher) *AuditEmitter {
	e := NewAuditEmitter(pub, "audit.chat", "community-chat", "test", logs.GetLoggerFromLevel(slog.LevelDebug))
	e.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return e
}

func TestRecordRoutesByAction(t *testing.T) {
	pub := new(publisherMock)
	emitter := newTestEmitter(pub)
	userID := "u1"

	expected := AuditEnvelope{
		SchemaVersion: 2,
		EventType:     "audit_log",
		OccurredAt:    "2024-05-01T12:00:00Z",
		Service:       "community-chat",
		Environment:   "test",
		RequestID:     "req-1",
		UserID:        &userID,
		Payload: AuditPayload{
			Level:  LevelInfo,
			Action: ActionGroupCreate,
			Text:   "Group created",
			RoomID: "g1",
		},
	}
	pub.On("Publish", mock.Anything, "audit.chat.group.create", expected, map[string]string{"x-request-id": "req-1"}).Return(nil).Once()

	emitter.Record(context.Background(), Entry{Action: ActionGroupCreate, Text: "Group created", RoomID: "g1"}, "req-1", &userID)
	pub.AssertExpectations(t)
}

func TestRecordWithoutActionUsesBaseKey(t *testing.T) {
	pub := new(publisherMock)
	emitter := newTestEmitter(pub)
	pub.On("Publish", mock.Anything, "audit.chat", mock.MatchedBy(func(env AuditEnvelope) bool {
		return env.Payload.Level == LevelWarn && env.UserID == nil
	}), mock.Anything).Return(nil).Once()

	emitter.Record(context.Background(), Entry{Level: LevelWarn, Text: "x"}, "req-2", nil)
	pub.AssertExpectations(t)
}

func TestRecordSwallowsPublishError(t *testing.T) {
	pub := new(publisherMock)
	emitter := newTestEmitter(pub)
	pub.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(assert.AnError).Once()

	assert.NotPanics(t, func() {
		emitter.Record(context.Background(), Entry{Level: LevelError, Action: ActionMessageDelete}, "req-3", nil)
	})
	pub.AssertExpectations(t)
}

func TestNilEmitterIsNoop(t *testing.T) {
	var emitter *AuditEmitter
	assert.NotPanics(t, func() {
		emitter.Record(context.Background(), Entry{Text: "x"}, "req", nil)
	})
}
