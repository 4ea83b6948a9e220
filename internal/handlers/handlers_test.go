package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"community-chat/internal/chat"
	"community-chat/internal/middleware"
	"community-chat/internal/mocks"
	"community-chat/internal/models"
	"community-chat/internal/repositories"
	"community-chat/internal/telemetry"
)

type testEnv struct {
	store     *repositories.MemoryStore
	fanout    *mocks.FanoutRecorder
	publisher *mocks.PublisherMock
	router    *gin.Engine
}

func newTestEnv(t *testing.T, userID string) testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	store := repositories.NewMemoryStore()
	store.PutUser("A", "Alice")
	store.PutUser("B", "Bob")
	store.PutUser("C", "Charlie")
	store.PutRoom(models.Room{ID: "D1", Kind: models.RoomKindDirect, Participants: []string{"A", "B"}})
	store.PutRoom(models.Room{ID: "G1", Kind: models.RoomKindGroup, Members: []models.Member{
		{UserID: "A", Role: models.RoleAdmin},
		{UserID: "B", Role: models.RoleMember},
	}})

	fanout := &mocks.FanoutRecorder{}
	publisher := new(mocks.PublisherMock)
	audit := telemetry.NewAuditEmitter(publisher, "audit.chat", "community-chat", "test", log)

	locks := chat.NewRoomLocks()
	gate := chat.NewGate(store)
	engine := chat.NewEngine(gate, store, store, store, fanout, locks, time.Second, log)
	tracker := chat.NewReadTracker(gate, store, fanout, locks, time.Second, log)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.PrincipalKey, models.Principal{UserID: userID, Name: userID})
		c.Set(middleware.UserIDKey, userID)
		c.Next()
	})
	RegisterRoutes(r, NewRoomHandler(store, store, audit, log), NewMessageHandler(engine, tracker, audit), NewPresenceHandler(staticPresence{"A"}))
	return testEnv{store: store, fanout: fanout, publisher: publisher, router: r}
}

type staticPresence []string

func (s staticPresence) OnlineUsers() []string { return s }

func (s staticPresence) IsOnline(userID string) bool { return lo.Contains(s, userID) }

func (s staticPresence) Connections() int { return len(s) + 1 }

func do(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestListRooms(t *testing.T) {
	env := newTestEnv(t, "A")

	rec := do(t, env.router, http.MethodGet, "/rooms", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Rooms []models.Room `json:"rooms"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	ids := []string{}
	for _, room := range resp.Rooms {
		ids = append(ids, room.ID)
	}
	assert.ElementsMatch(t, []string{"D1", "G1"}, ids)
}

func TestListRoomsRepoError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rooms := new(mocks.RoomRepositoryMock)
	handler := NewRoomHandler(rooms, new(mocks.UserRepositoryMock), nil, logs.GetLoggerFromLevel(slog.LevelDebug))
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.PrincipalKey, models.Principal{UserID: "A"})
		c.Next()
	})
	r.GET("/rooms", handler.ListRooms)

	rooms.On("ListRoomsForUser", mock.Anything, "A").Return(([]models.Room)(nil), assert.AnError).Once()

	rec := do(t, r, http.MethodGet, "/rooms", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	rooms.AssertExpectations(t)
}

func TestRoutesRequirePrincipal(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewRoomHandler(new(mocks.RoomRepositoryMock), new(mocks.UserRepositoryMock), nil, logs.GetLoggerFromLevel(slog.LevelDebug))
	r := gin.New()
	r.GET("/rooms", handler.ListRooms)

	rec := do(t, r, http.MethodGet, "/rooms", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateDirectRoomReusesPair(t *testing.T) {
	env := newTestEnv(t, "A")
	env.publisher.On("Publish", mock.Anything, "audit.chat.room.direct.open", mock.Anything, mock.Anything).Return(nil).Times(2)

	rec := do(t, env.router, http.MethodPost, "/rooms/direct", `{"participantId":"C"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var first struct {
		Room models.Room `json:"room"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))
	assert.ElementsMatch(t, []string{"A", "C"}, first.Room.Participants)

	rec = do(t, env.router, http.MethodPost, "/rooms/direct", `{"participantId":"C"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var second struct {
		Room models.Room `json:"room"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
	assert.Equal(t, first.Room.ID, second.Room.ID)
	env.publisher.AssertExpectations(t)
}

func TestCreateDirectRoomRejects(t *testing.T) {
	env := newTestEnv(t, "A")

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{name: "missing participant", body: `{}`, status: http.StatusBadRequest},
		{name: "self", body: `{"participantId":"A"}`, status: http.StatusBadRequest},
		{name: "unknown user", body: `{"participantId":"Z"}`, status: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, env.router, http.MethodPost, "/rooms/direct", tt.body)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
	env.publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateGroupMakesCallerAdmin(t *testing.T) {
	env := newTestEnv(t, "A")
	env.publisher.On("Publish", mock.Anything, "audit.chat.group.create", mock.MatchedBy(func(e telemetry.AuditEnvelope) bool {
		return e.Payload.Level == telemetry.LevelInfo && e.Payload.RoomID != ""
	}), mock.Anything).Return(nil).Once()

	rec := do(t, env.router, http.MethodPost, "/groups", `{"name":"band","memberIds":["B","C","B","A"]}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		Room models.Room `json:"room"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, models.RoomKindGroup, resp.Room.Kind)
	assert.Equal(t, "band", resp.Room.Name)
	assert.Contains(t, resp.Room.Members, models.Member{UserID: "A", Role: models.RoleAdmin})
	assert.Len(t, resp.Room.Members, 3)
	env.publisher.AssertExpectations(t)
}

func TestCreateGroupRejectsUnknownMembers(t *testing.T) {
	env := newTestEnv(t, "A")

	rec := do(t, env.router, http.MethodPost, "/groups", `{"name":"band","memberIds":["B","ghost"]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "ghost")

	rec = do(t, env.router, http.MethodPost, "/groups", `{"memberIds":["B"]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostMessageBroadcasts(t *testing.T) {
	env := newTestEnv(t, "A")

	rec := do(t, env.router, http.MethodPost, "/rooms/group/G1/messages", `{"content":"hello"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	events := env.fanout.Recorded()
	require.Len(t, events, 1)
	assert.Equal(t, "G1", events[0].RoomID)
	assert.Equal(t, models.EventNewMessage, events[0].Event.Event)
}

func TestPostMessageErrors(t *testing.T) {
	tests := []struct {
		name    string
		userID  string
		path    string
		body    string
		status  int
		message string
	}{
		{name: "non member", userID: "C", path: "/rooms/group/G1/messages", body: `{"content":"x"}`, status: http.StatusForbidden, message: chat.MsgNotAuthorizedGroup},
		{name: "unknown room", userID: "A", path: "/rooms/direct/nope/messages", body: `{"content":"x"}`, status: http.StatusNotFound, message: chat.MsgChatNotFound},
		{name: "bad kind", userID: "A", path: "/rooms/channel/D1/messages", body: `{"content":"x"}`, status: http.StatusBadRequest, message: chat.MsgInvalidChatType},
		{name: "empty", userID: "A", path: "/rooms/direct/D1/messages", body: `{"content":"  "}`, status: http.StatusBadRequest, message: chat.MsgContentRequired},
		{name: "bad json", userID: "A", path: "/rooms/direct/D1/messages", body: `{`, status: http.StatusBadRequest, message: chat.MsgInvalidPayload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.userID)
			rec := do(t, env.router, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.JSONEq(t, `{"error":"`+tt.message+`"}`, rec.Body.String())
			assert.Empty(t, env.fanout.Recorded())
		})
	}
}

func TestListMessagesWithLimit(t *testing.T) {
	env := newTestEnv(t, "B")
	for _, content := range []string{"one", "two", "three"} {
		_, err := env.store.CreateMessage(context.Background(), models.Message{
			ID: content, SenderID: "A", RoomID: "D1", RoomKind: models.RoomKindDirect, Content: content, CreatedAt: time.Now().UTC(),
		})
		require.NoError(t, err)
		time.Sleep(time.Millisecond)
	}

	rec := do(t, env.router, http.MethodGet, "/rooms/direct/D1/messages?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Messages []models.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Messages, 2)
	assert.Equal(t, "two", resp.Messages[0].Content)
	assert.Equal(t, "three", resp.Messages[1].Content)
	require.NotNil(t, resp.Messages[0].Sender)
	assert.Equal(t, "Alice", resp.Messages[0].Sender.Name)

	rec = do(t, env.router, http.MethodGet, "/rooms/direct/D1/messages?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMarkAsReadAndDelete(t *testing.T) {
	env := newTestEnv(t, "B")
	_, err := env.store.CreateMessage(context.Background(), models.Message{
		ID: "m1", SenderID: "A", RoomID: "D1", RoomKind: models.RoomKindDirect, Content: "hi", CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	rec := do(t, env.router, http.MethodPost, "/messages/m1/read", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"appended":true`)

	rec = do(t, env.router, http.MethodPost, "/messages/m1/read", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"appended":false`)
	assert.Len(t, env.fanout.Recorded(), 1)

	rec = do(t, env.router, http.MethodDelete, "/messages/m1", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, env.router, http.MethodPost, "/messages/missing/read", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteOwnMessage(t *testing.T) {
	env := newTestEnv(t, "A")
	env.publisher.On("Publish", mock.Anything, "audit.chat.message.delete", mock.MatchedBy(func(e telemetry.AuditEnvelope) bool {
		return e.Payload.MessageID == "m1" && e.Payload.RoomID == "G1"
	}), mock.Anything).Return(nil).Once()
	_, err := env.store.CreateMessage(context.Background(), models.Message{
		ID: "m1", SenderID: "A", RoomID: "G1", RoomKind: models.RoomKindGroup, Content: "oops", CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	rec := do(t, env.router, http.MethodDelete, "/messages/m1", "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	events := env.fanout.Recorded()
	require.Len(t, events, 1)
	assert.Equal(t, models.EventMessageDeleted, events[0].Event.Event)
	assert.Equal(t, models.MessageDeletedPayload{MessageID: "m1", RoomID: "G1"}, events[0].Event.Data)

	rec = do(t, env.router, http.MethodDelete, "/messages/m1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	env.publisher.AssertExpectations(t)
}

func TestGetPresence(t *testing.T) {
	env := newTestEnv(t, "A")

	rec := do(t, env.router, http.MethodGet, "/presence", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"onlineUsers":["A"]}`, rec.Body.String())

	rec = do(t, env.router, http.MethodGet, "/presence/A", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"userId":"A","online":true}`, rec.Body.String())

	rec = do(t, env.router, http.MethodGet, "/presence/C", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"userId":"C","online":false}`, rec.Body.String())
}

func TestDebugRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	publisher := new(mocks.PublisherMock)
	audit := telemetry.NewAuditEmitter(publisher, "audit.chat", "community-chat", "test", logs.GetLoggerFromLevel(slog.LevelDebug))

	disabled := gin.New()
	RegisterDebugRoutes(disabled, audit, staticPresence{"A"}, false)
	assert.Equal(t, http.StatusNotFound, do(t, disabled, http.MethodGet, "/debug/audit-test", "").Code)

	publisher.On("Publish", mock.Anything, "audit.chat.debug.audit_test", mock.Anything, mock.MatchedBy(func(h map[string]string) bool {
		return h["x-request-id"] == "req-1"
	})).Return(nil).Once()
	enabled := gin.New()
	RegisterDebugRoutes(enabled, audit, staticPresence{"A"}, true)
	req := httptest.NewRequest(http.MethodGet, "/debug/audit-test", nil)
	req.Header.Set("X-Request-ID", "req-1")
	rec := httptest.NewRecorder()
	enabled.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	publisher.AssertExpectations(t)

	rec = do(t, enabled, http.MethodGet, "/debug/connections", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"connections":2,"onlineUsers":["A"],"onlineCount":1}`, rec.Body.String())
}
