package models

import (
	"errors"
	"time"

	"github.com/samber/lo"
)

// ErrInvalidRoomKind is returned when a chat type is neither direct nor group.
var ErrInvalidRoomKind = errors.New("invalid chat type")

// RoomKind discriminates the two room documents a message can reference.
type RoomKind string

const (
	RoomKindDirect RoomKind = "direct"
	RoomKindGroup  RoomKind = "group"
)

// ParseRoomKind validates a client supplied chat type.
func ParseRoomKind(s string) (RoomKind, error) {
	switch RoomKind(s) {
	case RoomKindDirect, RoomKindGroup:
		return RoomKind(s), nil
	default:
		return "", ErrInvalidRoomKind
	}
}

// RoomRef addresses a room of a known kind.
type RoomRef struct {
	Kind RoomKind `json:"chatType" bson:"chatType"`
	ID   string   `json:"roomId" bson:"roomId"`
}

// DirectRoom references a two-party room.
func DirectRoom(id string) RoomRef { return RoomRef{Kind: RoomKindDirect, ID: id} }

// GroupRoom references a group room.
func GroupRoom(id string) RoomRef { return RoomRef{Kind: RoomKindGroup, ID: id} }

func (r RoomRef) String() string { return string(r.Kind) + ":" + r.ID }

// MemberRole is the role of a user inside a group.
type MemberRole string

const (
	RoleAdmin     MemberRole = "admin"
	RoleModerator MemberRole = "moderator"
	RoleMember    MemberRole = "member"
)

// Member is one entry of a group's member list.
type Member struct {
	UserID string     `json:"userId" db:"user_id"`
	Role   MemberRole `json:"role" db:"role"`
}

// Room is either a direct room (Participants holds exactly two ids) or a
// group room (Members holds every user with a role).
type Room struct {
	ID            string    `json:"id"`
	Kind          RoomKind  `json:"chatType"`
	Name          string    `json:"name,omitempty"`
	Participants  []string  `json:"participants,omitempty"`
	Members       []Member  `json:"members,omitempty"`
	CreatedBy     string    `json:"createdBy,omitempty"`
	LastMessageID string    `json:"lastMessageId,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Ref returns the tagged reference of the room.
func (r Room) Ref() RoomRef { return RoomRef{Kind: r.Kind, ID: r.ID} }

// HasMember reports whether userID may operate on the room.
func (r Room) HasMember(userID string) bool {
	switch r.Kind {
	case RoomKindDirect:
		return len(r.Participants) == 2 && lo.Contains(r.Participants, userID)
	case RoomKindGroup:
		return lo.ContainsBy(r.Members, func(m Member) bool { return m.UserID == userID })
	default:
		return false
	}
}
