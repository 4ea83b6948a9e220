package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"community-chat/internal/mocks"
	"community-chat/internal/models"
)

func TestGateJoinResolvesEitherKind(t *testing.T) {
	f := newFixture(t)
	gate := NewGate(f.store)
	ctx := context.Background()

	room, err := gate.Authorize(ctx, bob, "G1", "", ActionJoin)
	require.NoError(t, err)
	assert.Equal(t, models.RoomKindGroup, room.Kind)

	room, err = gate.Authorize(ctx, bob, "D1", "", ActionJoin)
	require.NoError(t, err)
	assert.Equal(t, models.RoomKindDirect, room.Kind)

	_, err = gate.Authorize(ctx, charlie, "D1", "", ActionJoin)
	requireChatError(t, err, CodeUnauthorized, MsgNotAuthorizedJoin)

	_, err = gate.Authorize(ctx, bob, "ghost", "", ActionJoin)
	requireChatError(t, err, CodeNotFound, MsgChatNotFound)

	_, err = gate.Authorize(ctx, bob, "G1", "forum", ActionJoin)
	requireChatError(t, err, CodeInvalid, MsgInvalidChatType)
}

func TestGateRepositoryFailureIsInternal(t *testing.T) {
	rooms := new(mocks.RoomRepositoryMock)
	rooms.On("FindRoom", mock.Anything, models.GroupRoom("G1")).Return(models.Room{}, assert.AnError).Once()

	_, err := NewGate(rooms).Authorize(context.Background(), alice, "G1", "group", ActionSend)
	requireChatError(t, err, CodeInternal, MsgSendFailed)
	rooms.AssertExpectations(t)
}

func TestGateDirectRoomNeedsExactlyTwoParticipants(t *testing.T) {
	f := newFixture(t)
	f.store.PutRoom(models.Room{ID: "D3", Kind: models.RoomKindDirect, Participants: []string{"A", "B", "C"}})

	_, err := NewGate(f.store).Authorize(context.Background(), alice, "D3", "direct", ActionSend)
	requireChatError(t, err, CodeUnauthorized, MsgNotAuthorizedChat)
}

func TestRoomLocksSerializeAndCleanUp(t *testing.T) {
	locks := NewRoomLocks()
	var (
		mu      sync.Mutex
		active  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("G1")
			defer unlock()
			mu.Lock()
			active++
			maxSeen = max(maxSeen, active)
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Equal(t, 0, locks.size())
}

func TestRoomLocksWithLockUnlocksOnPanic(t *testing.T) {
	locks := NewRoomLocks()

	assert.Panics(t, func() {
		_ = locks.WithLock("D1", func() error { panic("boom") })
	})
	assert.Equal(t, 0, locks.size())

	err := locks.WithLock("D1", func() error { return assert.AnError })
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 0, locks.size())
}

func TestAsErrorWrapsUnknown(t *testing.T) {
	chatErr := AsError(assert.AnError)
	assert.Equal(t, CodeInternal, chatErr.Code)
	assert.Equal(t, MsgInternal, chatErr.Message)
	assert.ErrorIs(t, chatErr, assert.AnError)

	original := NewError(CodeNotFound, MsgMessageNotFound, nil)
	assert.Same(t, original, AsError(original))
}
