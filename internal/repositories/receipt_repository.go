package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"chat-engine/internal/models"
)

// ReceiptRepository maintains read receipts and the unread summary aggregate.
type ReceiptRepository interface {
	MarkDispatched(ctx context.Context, messageID int64) (bool, error)
	InsertReceipt(ctx context.Context, messageID, chatID, userID int64) error
	BumpUnreadOnSend(ctx context.Context, chatID, senderID, messageID int64) error
	InsertMissingReceipts(ctx context.Context, chatID, userID, upToID int64) (int64, error)
	ResetUnread(ctx context.Context, chatID, userID, lastReadID int64) error
	Readers(ctx context.Context, messageIDs []int64) ([]models.ReadPair, error)
	ChildReaders(ctx context.Context, parentIDs []int64) ([]models.ReadPair, error)
}

type ReceiptRepo struct {
	db sqlx.ExtContext
}

func NewReceiptRepo(db sqlx.ExtContext) *ReceiptRepo {
	return &ReceiptRepo{db: db}
}

// MarkDispatched records that the messageSent consumers ran for messageID.
// It returns false when the message was already recorded.
func (r *ReceiptRepo) MarkDispatched(ctx context.Context, messageID int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `INSERT INTO chat_message_dispatches (message_id) VALUES ($1) ON CONFLICT (message_id) DO NOTHING`, messageID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (r *ReceiptRepo) InsertReceipt(ctx context.Context, messageID, chatID, userID int64) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO chat_message_receipts (message_id, chat_id, user_id) VALUES ($1, $2, $3)
        ON CONFLICT (message_id, user_id) DO NOTHING`, messageID, chatID, userID)
	return err
}

// BumpUnreadOnSend resets the sender's summary and increments every other
// member's unread count in a single statement.
func (r *ReceiptRepo) BumpUnreadOnSend(ctx context.Context, chatID, senderID, messageID int64) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO chat_read_summary (chat_id, user_id, unread_count, last_read_message_id, last_read_at, updated_at)
        SELECT $1, cm.user_id,
            CASE WHEN cm.user_id = $2 THEN 0 ELSE 1 END,
            CASE WHEN cm.user_id = $2 THEN $3::bigint ELSE NULL END,
            CASE WHEN cm.user_id = $2 THEN NOW() ELSE NULL END,
            NOW()
        FROM chat_members cm WHERE cm.chat_id = $1
        ON CONFLICT (chat_id, user_id) DO UPDATE SET
            unread_count = CASE WHEN chat_read_summary.user_id = $2 THEN 0 ELSE chat_read_summary.unread_count + 1 END,
            last_read_message_id = CASE WHEN chat_read_summary.user_id = $2 THEN $3::bigint ELSE chat_read_summary.last_read_message_id END,
            last_read_at = CASE WHEN chat_read_summary.user_id = $2 THEN NOW() ELSE chat_read_summary.last_read_at END,
            updated_at = NOW()`, chatID, senderID, messageID)
	return err
}

// InsertMissingReceipts marks as read every non-system message up to upToID
// authored by someone else that the user has no receipt for.
func (r *ReceiptRepo) InsertMissingReceipts(ctx context.Context, chatID, userID, upToID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `INSERT INTO chat_message_receipts (message_id, chat_id, user_id, read_at)
        SELECT m.id, m.chat_id, $2, NOW()
        FROM chat_messages m
        WHERE m.chat_id = $1 AND m.id <= $3 AND m.sender_id <> $2 AND m.message_type = 'user'
            AND NOT EXISTS (SELECT 1 FROM chat_message_receipts r WHERE r.message_id = m.id AND r.user_id = $2)
        ON CONFLICT (message_id, user_id) DO NOTHING`, chatID, userID, upToID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *ReceiptRepo) ResetUnread(ctx context.Context, chatID, userID, lastReadID int64) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO chat_read_summary (chat_id, user_id, unread_count, last_read_message_id, last_read_at, updated_at)
        VALUES ($1, $2, 0, $3, NOW(), NOW())
        ON CONFLICT (chat_id, user_id) DO UPDATE SET
            unread_count = 0, last_read_message_id = EXCLUDED.last_read_message_id,
            last_read_at = NOW(), updated_at = NOW()`, chatID, userID, lastReadID)
	return err
}

// Readers lists receipts on the given messages.
func (r *ReceiptRepo) Readers(ctx context.Context, messageIDs []int64) ([]models.ReadPair, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}
	var pairs []models.ReadPair
	err := sqlx.SelectContext(ctx, r.db, &pairs, `SELECT message_id, user_id FROM chat_message_receipts WHERE message_id = ANY($1)`, pq.Array(messageIDs))
	return pairs, err
}

// ChildReaders lists receipts on fan-out copies, attributed to their canonical message.
func (r *ReceiptRepo) ChildReaders(ctx context.Context, parentIDs []int64) ([]models.ReadPair, error) {
	if len(parentIDs) == 0 {
		return nil, nil
	}
	var pairs []models.ReadPair
	err := sqlx.SelectContext(ctx, r.db, &pairs, `SELECT c.parent_message_id AS message_id, r.user_id
        FROM chat_messages c
        JOIN chat_message_receipts r ON r.message_id = c.id
        WHERE c.parent_message_id = ANY($1)`, pq.Array(parentIDs))
	return pairs, err
}
