package mocks

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"community-chat/internal/identity"
	"community-chat/internal/models"
	"community-chat/internal/repositories"
)

type RoomRepositoryMock struct {
	mock.Mock
}

func (m *RoomRepositoryMock) FindRoom(ctx context.Context, ref models.RoomRef) (models.Room, error) {
	args := m.Called(ctx, ref)
	var room models.Room
	if val := args.Get(0); val != nil {
		room = val.(models.Room)
	}
	return room, args.Error(1)
}

func (m *RoomRepositoryMock) UpdateLastMessage(ctx context.Context, roomID string, messageID string) error {
	args := m.Called(ctx, roomID, messageID)
	return args.Error(0)
}

func (m *RoomRepositoryMock) CreateOrGetDirectRoom(ctx context.Context, userID string, otherID string) (models.Room, error) {
	args := m.Called(ctx, userID, otherID)
	var room models.Room
	if val := args.Get(0); val != nil {
		room = val.(models.Room)
	}
	return room, args.Error(1)
}

func (m *RoomRepositoryMock) CreateGroup(ctx context.Context, name string, creatorID string, memberIDs []string) (models.Room, error) {
	args := m.Called(ctx, name, creatorID, memberIDs)
	var room models.Room
	if val := args.Get(0); val != nil {
		room = val.(models.Room)
	}
	return room, args.Error(1)
}

func (m *RoomRepositoryMock) ListRoomsForUser(ctx context.Context, userID string) ([]models.Room, error) {
	args := m.Called(ctx, userID)
	var rooms []models.Room
	if val := args.Get(0); val != nil {
		rooms = val.([]models.Room)
	}
	return rooms, args.Error(1)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	args := m.Called(ctx, msg)
	var created models.Message
	if val := args.Get(0); val != nil {
		created = val.(models.Message)
	}
	return created, args.Error(1)
}

func (m *MessageRepositoryMock) GetMessage(ctx context.Context, messageID string) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) AppendReadReceipt(ctx context.Context, messageID string, receipt models.ReadReceipt) (bool, error) {
	args := m.Called(ctx, messageID, receipt)
	return args.Bool(0), args.Error(1)
}

func (m *MessageRepositoryMock) ListMessages(ctx context.Context, ref models.RoomRef, limit int) ([]models.Message, error) {
	args := m.Called(ctx, ref, limit)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) SoftDelete(ctx context.Context, messageID string, senderID string) error {
	args := m.Called(ctx, messageID, senderID)
	return args.Error(0)
}

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) DisplayNames(ctx context.Context, ids []string) (map[string]string, error) {
	args := m.Called(ctx, ids)
	var names map[string]string
	if val := args.Get(0); val != nil {
		names = val.(map[string]string)
	}
	return names, args.Error(1)
}

type AuthenticatorMock struct {
	mock.Mock
}

func (m *AuthenticatorMock) Authenticate(ctx context.Context, token string) (models.Principal, error) {
	args := m.Called(ctx, token)
	var principal models.Principal
	if val := args.Get(0); val != nil {
		principal = val.(models.Principal)
	}
	return principal, args.Error(1)
}

// FanoutRecorder captures room broadcasts in order.
type FanoutRecorder struct {
	mu     sync.Mutex
	Events []RoomEvent
}

type RoomEvent struct {
	RoomID string
	Event  models.OutboundEvent
}

func (f *FanoutRecorder) BroadcastToRoom(roomID string, event models.OutboundEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Events = append(f.Events, RoomEvent{RoomID: roomID, Event: event})
}

// Recorded returns a copy of the captured broadcasts.
func (f *FanoutRecorder) Recorded() []RoomEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]RoomEvent(nil), f.Events...)
}

var _ repositories.RoomRepository = (*RoomRepositoryMock)(nil)
var _ repositories.MessageRepository = (*MessageRepositoryMock)(nil)
var _ repositories.UserRepository = (*UserRepositoryMock)(nil)
var _ identity.Authenticator = (*AuthenticatorMock)(nil)
