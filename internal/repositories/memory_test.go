package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"community-chat/internal/models"
)

func TestMemoryDirectRoomIsUniquePerPair(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	first, err := store.CreateOrGetDirectRoom(ctx, "b", "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, first.Participants)

	second, err := store.CreateOrGetDirectRoom(ctx, "a", "b")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	_, err = store.CreateOrGetDirectRoom(ctx, "a", "a")
	assert.ErrorIs(t, err, ErrInvalidDirectRoom)
}

func TestMemoryCreateGroupMakesCreatorAdmin(t *testing.T) {
	store := NewMemoryStore()
	room, err := store.CreateGroup(context.Background(), "designers", "owner", []string{"x", "owner", "x", "y"})
	require.NoError(t, err)

	assert.Equal(t, []models.Member{
		{UserID: "owner", Role: models.RoleAdmin},
		{UserID: "x", Role: models.RoleMember},
		{UserID: "y", Role: models.RoleMember},
	}, room.Members)

	found, err := store.FindRoom(context.Background(), models.GroupRoom(room.ID))
	require.NoError(t, err)
	assert.Equal(t, room.ID, found.ID)

	_, err = store.FindRoom(context.Background(), models.DirectRoom(room.ID))
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestMemoryAppendReadReceiptIsIdempotent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	_, err := store.CreateMessage(ctx, models.Message{ID: "m1", SenderID: "a", RoomID: "d1", RoomKind: models.RoomKindDirect})
	require.NoError(t, err)

	appended, err := store.AppendReadReceipt(ctx, "m1", models.ReadReceipt{UserID: "b", ReadAt: time.Now()})
	require.NoError(t, err)
	assert.True(t, appended)

	appended, err = store.AppendReadReceipt(ctx, "m1", models.ReadReceipt{UserID: "b", ReadAt: time.Now()})
	require.NoError(t, err)
	assert.False(t, appended)

	msg, err := store.GetMessage(ctx, "m1")
	require.NoError(t, err)
	assert.Len(t, msg.ReadBy, 1)

	_, err = store.AppendReadReceipt(ctx, "missing", models.ReadReceipt{UserID: "b"})
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func TestMemoryListMessagesSkipsDeletedAndLimits(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	base := time.Now()
	for i, id := range []string{"m1", "m2", "m3"} {
		_, err := store.CreateMessage(ctx, models.Message{ID: id, SenderID: "a", RoomID: "g1", RoomKind: models.RoomKindGroup, CreatedAt: base.Add(time.Duration(i) * time.Second)})
		require.NoError(t, err)
	}
	require.NoError(t, store.SoftDelete(ctx, "m3", "a"))
	assert.ErrorIs(t, store.SoftDelete(ctx, "m1", "intruder"), ErrMessageNotFound)

	msgs, err := store.ListMessages(ctx, models.GroupRoom("g1"), 1)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "m2", msgs[0].ID)
}
