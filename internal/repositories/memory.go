package repositories

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"community-chat/internal/models"
)

// MemoryStore keeps rooms, messages and users in process memory. It backs
// STORE_DRIVER=memory for local development and the websocket tests.
type MemoryStore struct {
	mu       sync.RWMutex
	rooms    map[string]models.Room
	messages map[string]models.Message
	users    map[string]string
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms:    make(map[string]models.Room),
		messages: make(map[string]models.Message),
		users:    make(map[string]string),
	}
}

var (
	_ RoomRepository    = (*MemoryStore)(nil)
	_ MessageRepository = (*MemoryStore)(nil)
	_ UserRepository    = (*MemoryStore)(nil)
)

// PutUser registers a display name.
func (s *MemoryStore) PutUser(id, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[id] = name
}

// PutRoom stores a room as-is, replacing any room with the same id.
func (s *MemoryStore) PutRoom(room models.Room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[room.ID] = cloneRoom(room)
}

func (s *MemoryStore) FindRoom(_ context.Context, ref models.RoomRef) (models.Room, error) {
	if _, err := models.ParseRoomKind(string(ref.Kind)); err != nil {
		return models.Room{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[ref.ID]
	if !ok || room.Kind != ref.Kind {
		return models.Room{}, ErrRoomNotFound
	}
	return cloneRoom(room), nil
}

func (s *MemoryStore) UpdateLastMessage(_ context.Context, roomID string, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	room.LastMessageID = messageID
	s.rooms[roomID] = room
	return nil
}

func (s *MemoryStore) CreateOrGetDirectRoom(_ context.Context, userID string, otherID string) (models.Room, error) {
	pair, err := directPair(userID, otherID)
	if err != nil {
		return models.Room{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, room := range s.rooms {
		if room.Kind == models.RoomKindDirect && slices.Equal(room.Participants, pair[:]) {
			return cloneRoom(room), nil
		}
	}
	room := models.Room{
		ID:           uuid.NewString(),
		Kind:         models.RoomKindDirect,
		Participants: []string{pair[0], pair[1]},
		CreatedAt:    time.Now().UTC(),
	}
	s.rooms[room.ID] = room
	return cloneRoom(room), nil
}

func (s *MemoryStore) CreateGroup(_ context.Context, name string, creatorID string, memberIDs []string) (models.Room, error) {
	room := models.Room{
		ID:        uuid.NewString(),
		Kind:      models.RoomKindGroup,
		Name:      name,
		CreatedBy: creatorID,
		Members:   groupMembers(creatorID, memberIDs),
		CreatedAt: time.Now().UTC(),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[room.ID] = room
	return cloneRoom(room), nil
}

func (s *MemoryStore) ListRoomsForUser(_ context.Context, userID string) ([]models.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rooms := make([]models.Room, 0)
	for _, room := range s.rooms {
		if room.HasMember(userID) {
			rooms = append(rooms, cloneRoom(room))
		}
	}
	sort.SliceStable(rooms, func(i, j int) bool { return rooms[i].CreatedAt.After(rooms[j].CreatedAt) })
	return rooms, nil
}

func (s *MemoryStore) CreateMessage(_ context.Context, msg models.Message) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[msg.ID] = cloneMessage(msg)
	return msg, nil
}

func (s *MemoryStore) GetMessage(_ context.Context, messageID string) (models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msg, ok := s.messages[messageID]
	if !ok {
		return models.Message{}, ErrMessageNotFound
	}
	return cloneMessage(msg), nil
}

func (s *MemoryStore) AppendReadReceipt(_ context.Context, messageID string, receipt models.ReadReceipt) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[messageID]
	if !ok {
		return false, ErrMessageNotFound
	}
	if msg.ReadByUser(receipt.UserID) {
		return false, nil
	}
	msg.ReadBy = append(slices.Clone(msg.ReadBy), receipt)
	s.messages[messageID] = msg
	return true, nil
}

func (s *MemoryStore) ListMessages(_ context.Context, ref models.RoomRef, limit int) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := lo.Filter(lo.Values(s.messages), func(m models.Message, _ int) bool {
		return m.RoomID == ref.ID && m.RoomKind == ref.Kind && !m.Deleted
	})
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].CreatedAt.Before(msgs[j].CreatedAt) })
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return lo.Map(msgs, func(m models.Message, _ int) models.Message { return cloneMessage(m) }), nil
}

func (s *MemoryStore) SoftDelete(_ context.Context, messageID string, senderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[messageID]
	if !ok || msg.SenderID != senderID {
		return ErrMessageNotFound
	}
	msg.Deleted = true
	s.messages[messageID] = msg
	return nil
}

func (s *MemoryStore) DisplayNames(_ context.Context, ids []string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make(map[string]string, len(ids))
	for _, id := range ids {
		if name, ok := s.users[id]; ok {
			names[id] = name
		}
	}
	return names, nil
}

func cloneRoom(r models.Room) models.Room {
	r.Participants = slices.Clone(r.Participants)
	r.Members = slices.Clone(r.Members)
	return r
}

func cloneMessage(m models.Message) models.Message {
	m.Attachments = slices.Clone(m.Attachments)
	m.ReadBy = slices.Clone(m.ReadBy)
	m.Sender = nil
	return m
}
