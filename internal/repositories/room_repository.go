package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/samber/lo"

	"community-chat/internal/models"
)

var (
	ErrRoomNotFound      = errors.New("room not found")
	ErrInvalidDirectRoom = errors.New("direct room requires exactly two distinct participants")
)

// RoomRepository abstracts room persistence for both room kinds.
type RoomRepository interface {
	FindRoom(ctx context.Context, ref models.RoomRef) (models.Room, error)
	UpdateLastMessage(ctx context.Context, roomID string, messageID string) error
	CreateOrGetDirectRoom(ctx context.Context, userID string, otherID string) (models.Room, error)
	CreateGroup(ctx context.Context, name string, creatorID string, memberIDs []string) (models.Room, error)
	ListRoomsForUser(ctx context.Context, userID string) ([]models.Room, error)
}

// RoomRepo is a sqlx implementation of RoomRepository.
type RoomRepo struct {
	db *sqlx.DB
}

// NewRoomRepo constructs a RoomRepo.
func NewRoomRepo(db *sqlx.DB) *RoomRepo {
	return &RoomRepo{db: db}
}

type roomRow struct {
	ID            string         `db:"id"`
	Kind          string         `db:"kind"`
	Name          sql.NullString `db:"name"`
	CreatedBy     sql.NullString `db:"created_by"`
	LastMessageID sql.NullString `db:"last_message_id"`
	CreatedAt     time.Time      `db:"created_at"`
}

type memberRow struct {
	RoomID string `db:"room_id"`
	UserID string `db:"user_id"`
	Role   string `db:"role"`
}

const roomColumns = `r.id, r.kind, r.name, r.created_by, r.last_message_id, r.created_at`

// FindRoom resolves a room of the given kind with its membership.
func (r *RoomRepo) FindRoom(ctx context.Context, ref models.RoomRef) (models.Room, error) {
	var row roomRow
	err := r.db.GetContext(ctx, &row, `SELECT `+roomColumns+` FROM rooms r WHERE r.id=$1 AND r.kind=$2`, ref.ID, string(ref.Kind))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Room{}, ErrRoomNotFound
	}
	if err != nil {
		return models.Room{}, fmt.Errorf("find room: %w", err)
	}

	var members []memberRow
	if err := r.db.SelectContext(ctx, &members, `SELECT room_id, user_id, role FROM room_members WHERE room_id=$1 ORDER BY user_id`, ref.ID); err != nil {
		return models.Room{}, fmt.Errorf("load members: %w", err)
	}
	return toRoom(row, members), nil
}

// UpdateLastMessage points a room at its newest message.
func (r *RoomRepo) UpdateLastMessage(ctx context.Context, roomID string, messageID string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE rooms SET last_message_id=$2 WHERE id=$1`, roomID, messageID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrRoomNotFound
	}
	return nil
}

// CreateOrGetDirectRoom returns the direct room for the pair, creating it if needed.
func (r *RoomRepo) CreateOrGetDirectRoom(ctx context.Context, userID string, otherID string) (models.Room, error) {
	pair, err := directPair(userID, otherID)
	if err != nil {
		return models.Room{}, err
	}
	key := pair[0] + "|" + pair[1]

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Room{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	id := uuid.NewString()
	res, err := tx.ExecContext(ctx, `INSERT INTO rooms (id, kind, direct_key) VALUES ($1, 'direct', $2) ON CONFLICT (direct_key) DO NOTHING`, id, key)
	if err != nil {
		return models.Room{}, err
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return models.Room{}, err
	}
	if inserted == 1 {
		for _, p := range pair {
			if _, err = tx.ExecContext(ctx, `INSERT INTO room_members (room_id, user_id, role) VALUES ($1, $2, 'member')`, id, p); err != nil {
				return models.Room{}, err
			}
		}
	} else if err = tx.GetContext(ctx, &id, `SELECT id FROM rooms WHERE direct_key=$1`, key); err != nil {
		return models.Room{}, err
	}

	if err = tx.Commit(); err != nil {
		return models.Room{}, err
	}
	return r.FindRoom(ctx, models.DirectRoom(id))
}

// CreateGroup creates a group; the creator becomes its admin.
func (r *RoomRepo) CreateGroup(ctx context.Context, name string, creatorID string, memberIDs []string) (models.Room, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Room{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	id := uuid.NewString()
	if _, err = tx.ExecContext(ctx, `INSERT INTO rooms (id, kind, name, created_by) VALUES ($1, 'group', $2, $3)`, id, name, creatorID); err != nil {
		return models.Room{}, err
	}
	for _, m := range groupMembers(creatorID, memberIDs) {
		if _, err = tx.ExecContext(ctx, `INSERT INTO room_members (room_id, user_id, role) VALUES ($1, $2, $3)`, id, m.UserID, string(m.Role)); err != nil {
			return models.Room{}, err
		}
	}

	if err = tx.Commit(); err != nil {
		return models.Room{}, err
	}
	return r.FindRoom(ctx, models.GroupRoom(id))
}

// ListRoomsForUser returns every room the user belongs to, newest first.
func (r *RoomRepo) ListRoomsForUser(ctx context.Context, userID string) ([]models.Room, error) {
	var rows []roomRow
	query := `SELECT ` + roomColumns + ` FROM rooms r
        INNER JOIN room_members m ON m.room_id = r.id
        WHERE m.user_id=$1
        ORDER BY r.created_at DESC`
	if err := r.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return []models.Room{}, nil
	}

	ids := lo.Map(rows, func(row roomRow, _ int) string { return row.ID })
	var members []memberRow
	if err := r.db.SelectContext(ctx, &members, `SELECT room_id, user_id, role FROM room_members WHERE room_id = ANY($1) ORDER BY user_id`, pq.Array(ids)); err != nil {
		return nil, err
	}
	byRoom := lo.GroupBy(members, func(m memberRow) string { return m.RoomID })

	rooms := make([]models.Room, 0, len(rows))
	for _, row := range rows {
		rooms = append(rooms, toRoom(row, byRoom[row.ID]))
	}
	return rooms, nil
}

func toRoom(row roomRow, members []memberRow) models.Room {
	room := models.Room{
		ID:            row.ID,
		Kind:          models.RoomKind(row.Kind),
		Name:          row.Name.String,
		CreatedBy:     row.CreatedBy.String,
		LastMessageID: row.LastMessageID.String,
		CreatedAt:     row.CreatedAt,
	}
	if room.Kind == models.RoomKindDirect {
		room.Participants = lo.Map(members, func(m memberRow, _ int) string { return m.UserID })
		return room
	}
	room.Members = lo.Map(members, func(m memberRow, _ int) models.Member {
		return models.Member{UserID: m.UserID, Role: models.MemberRole(m.Role)}
	})
	return room
}

// directPair validates and orders the two participants of a direct room.
func directPair(userID, otherID string) ([2]string, error) {
	if userID == "" || otherID == "" || userID == otherID {
		return [2]string{}, ErrInvalidDirectRoom
	}
	pair := []string{userID, otherID}
	sort.Strings(pair)
	return [2]string{pair[0], pair[1]}, nil
}

// groupMembers puts the creator first as admin and de-duplicates the rest.
func groupMembers(creatorID string, memberIDs []string) []models.Member {
	members := []models.Member{{UserID: creatorID, Role: models.RoleAdmin}}
	others := lo.Uniq(lo.Filter(memberIDs, func(id string, _ int) bool { return id != "" && id != creatorID }))
	sort.Strings(others)
	for _, id := range others {
		members = append(members, models.Member{UserID: id, Role: models.RoleMember})
	}
	return members
}
