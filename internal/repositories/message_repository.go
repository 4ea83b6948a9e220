package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/samber/lo"

	"community-chat/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// pqForeignKeyViolation is the SQLSTATE raised when a referenced row is missing.
const pqForeignKeyViolation = "23503"

// MessageRepository defines interactions for messages of both room kinds.
type MessageRepository interface {
	CreateMessage(ctx context.Context, msg models.Message) (models.Message, error)
	GetMessage(ctx context.Context, messageID string) (models.Message, error)
	AppendReadReceipt(ctx context.Context, messageID string, receipt models.ReadReceipt) (bool, error)
	ListMessages(ctx context.Context, ref models.RoomRef, limit int) ([]models.Message, error)
	SoftDelete(ctx context.Context, messageID string, senderID string) error
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

const messageColumns = `id, sender_id, room_id, room_kind, content, attachments, deleted, created_at`

type receiptRow struct {
	MessageID string `db:"message_id"`
	models.ReadReceipt
}

// CreateMessage stores a message together with its initial read receipts.
func (r *MessageRepo) CreateMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Message{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.NamedExecContext(ctx, `INSERT INTO messages (`+messageColumns+`)
        VALUES (:id, :sender_id, :room_id, :room_kind, :content, :attachments, :deleted, :created_at)`, msg); err != nil {
		return models.Message{}, fmt.Errorf("insert message: %w", err)
	}
	for _, receipt := range msg.ReadBy {
		if _, err = tx.ExecContext(ctx, `INSERT INTO message_reads (message_id, user_id, read_at) VALUES ($1, $2, $3)`, msg.ID, receipt.UserID, receipt.ReadAt); err != nil {
			return models.Message{}, fmt.Errorf("insert receipt: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// GetMessage retrieves a single message with its receipts.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID string) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	if err != nil {
		return models.Message{}, err
	}

	if err := r.db.SelectContext(ctx, &msg.ReadBy, `SELECT user_id, read_at FROM message_reads WHERE message_id=$1 ORDER BY read_at ASC`, messageID); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// AppendReadReceipt records a receipt unless the reader already has one.
// It reports whether a new receipt was written.
func (r *MessageRepo) AppendReadReceipt(ctx context.Context, messageID string, receipt models.ReadReceipt) (bool, error) {
	res, err := r.db.ExecContext(ctx, `INSERT INTO message_reads (message_id, user_id, read_at) VALUES ($1, $2, $3)
        ON CONFLICT (message_id, user_id) DO NOTHING`, messageID, receipt.UserID, receipt.ReadAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqForeignKeyViolation {
			return false, ErrMessageNotFound
		}
		return false, err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return count == 1, nil
}

// ListMessages returns the latest non-deleted messages of a room in chronological order.
func (r *MessageRepo) ListMessages(ctx context.Context, ref models.RoomRef, limit int) ([]models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages
        WHERE room_id=$1 AND room_kind=$2 AND deleted = FALSE
        ORDER BY created_at DESC
        LIMIT $3`
	var msgs []models.Message
	if err := r.db.SelectContext(ctx, &msgs, query, ref.ID, string(ref.Kind), limit); err != nil {
		return nil, err
	}
	slices.Reverse(msgs)
	if len(msgs) == 0 {
		return []models.Message{}, nil
	}

	ids := lo.Map(msgs, func(m models.Message, _ int) string { return m.ID })
	var receipts []receiptRow
	if err := r.db.SelectContext(ctx, &receipts, `SELECT message_id, user_id, read_at FROM message_reads WHERE message_id = ANY($1) ORDER BY read_at ASC`, pq.Array(ids)); err != nil {
		return nil, err
	}
	byMessage := lo.GroupBy(receipts, func(rr receiptRow) string { return rr.MessageID })
	for i := range msgs {
		msgs[i].ReadBy = lo.Map(byMessage[msgs[i].ID], func(rr receiptRow, _ int) models.ReadReceipt { return rr.ReadReceipt })
	}
	return msgs, nil
}

// SoftDelete marks a message deleted for everyone (sender only).
func (r *MessageRepo) SoftDelete(ctx context.Context, messageID string, senderID string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET deleted = TRUE WHERE id=$1 AND sender_id=$2`, messageID, senderID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMessageNotFound
	}
	return nil
}
