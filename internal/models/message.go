package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/samber/lo"
)

// AttachmentKind is the type of an attachment.
type AttachmentKind string

const (
	AttachmentImage AttachmentKind = "image"
	AttachmentFile  AttachmentKind = "file"
	AttachmentLink  AttachmentKind = "link"
)

// Attachment is a file, image or link carried by a message.
type Attachment struct {
	Kind AttachmentKind `json:"type" bson:"type" validate:"required,oneof=image file link"`
	URL  string         `json:"url" bson:"url" validate:"required,url"`
	Name string         `json:"name,omitempty" bson:"name,omitempty"`
	Size int64          `json:"size,omitempty" bson:"size,omitempty" validate:"gte=0"`
}

// Attachments is stored as a JSONB column.
type Attachments []Attachment

// Value implements driver.Valuer.
func (a Attachments) Value() (driver.Value, error) {
	if a == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(a)
}

// Scan implements sql.Scanner.
func (a *Attachments) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*a = nil
		return nil
	case []byte:
		return json.Unmarshal(v, a)
	case string:
		return json.Unmarshal([]byte(v), a)
	default:
		return errors.New("attachments: unsupported column type")
	}
}

// ReadReceipt records that a user has read a message.
type ReadReceipt struct {
	UserID string    `json:"userId" bson:"user" db:"user_id"`
	ReadAt time.Time `json:"readAt" bson:"readAt" db:"read_at"`
}

// UserSummary is the display metadata attached to outgoing messages.
type UserSummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Message is a chat message in a direct or group room.
type Message struct {
	ID          string        `json:"id" db:"id"`
	SenderID    string        `json:"senderId" db:"sender_id"`
	Sender      *UserSummary  `json:"sender,omitempty" db:"-"`
	RoomID      string        `json:"roomId" db:"room_id"`
	RoomKind    RoomKind      `json:"chatType" db:"room_kind"`
	Content     string        `json:"content" db:"content"`
	Attachments Attachments   `json:"attachments" db:"attachments"`
	ReadBy      []ReadReceipt `json:"readBy" db:"-"`
	Deleted     bool          `json:"isDeleted" db:"deleted"`
	CreatedAt   time.Time     `json:"createdAt" db:"created_at"`
}

// Room returns the tagged room reference of the message.
func (m Message) Room() RoomRef { return RoomRef{Kind: m.RoomKind, ID: m.RoomID} }

// ReadByUser reports whether userID already has a receipt on the message.
func (m Message) ReadByUser(userID string) bool {
	return lo.ContainsBy(m.ReadBy, func(r ReadReceipt) bool { return r.UserID == userID })
}
