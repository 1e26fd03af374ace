package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"chat-engine/internal/models"
)

var ErrChatNotFound = errors.New("chat not found")

const chatColumns = `id, chat_type, name, created_by, pair_key, created_at, updated_at`

// ChatRepository abstracts chat and membership persistence.
type ChatRepository interface {
	CreateChat(ctx context.Context, chatType models.ChatType, name *string, createdBy int64) (models.Chat, error)
	GetOrCreateSingle(ctx context.Context, creatorID, otherID int64) (models.Chat, bool, error)
	AddMembers(ctx context.Context, chatID int64, userIDs []int64) error
	AddBroadcastRecipients(ctx context.Context, chatID int64, recipientIDs []int64) error
	GetChat(ctx context.Context, chatID int64) (models.Chat, error)
	MemberIDs(ctx context.Context, chatID int64) ([]int64, error)
	RecipientIDs(ctx context.Context, chatID int64) ([]int64, error)
	IsMember(ctx context.Context, chatID, userID int64) (bool, error)
	Touch(ctx context.Context, chatID int64) error
	ListForUser(ctx context.Context, userID int64, limit, offset int) ([]models.ChatSummary, error)
	Participants(ctx context.Context, chatIDs []int64) (map[int64][]models.UserRef, error)
	SetPinned(ctx context.Context, chatID, userID int64, pinned bool) error
	Contacts(ctx context.Context, userID int64) ([]models.UserRef, error)
}

// ChatRepo is a sqlx implementation of ChatRepository.
type ChatRepo struct {
	db sqlx.ExtContext
}

// NewChatRepo constructs a ChatRepo over a DB or a transaction.
func NewChatRepo(db sqlx.ExtContext) *ChatRepo {
	return &ChatRepo{db: db}
}

// PairKey is the order-independent identity of a single chat.
func PairKey(a, b int64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d", a, b)
}

// CreateChat inserts a group or broadcast chat row.
func (r *ChatRepo) CreateChat(ctx context.Context, chatType models.ChatType, name *string, createdBy int64) (models.Chat, error) {
	var chat models.Chat
	err := sqlx.GetContext(ctx, r.db, &chat, `INSERT INTO chats (chat_type, name, created_by) VALUES ($1, $2, $3) RETURNING `+chatColumns, chatType, name, createdBy)
	return chat, err
}

// GetOrCreateSingle returns the single chat between the two users, creating it
// with both memberships when absent. The bool reports whether it was created.
func (r *ChatRepo) GetOrCreateSingle(ctx context.Context, creatorID, otherID int64) (models.Chat, bool, error) {
	if creatorID == otherID {
		return models.Chat{}, false, errors.New("cannot create chat with self")
	}
	key := PairKey(creatorID, otherID)

	var chat models.Chat
	err := sqlx.GetContext(ctx, r.db, &chat, `INSERT INTO chats (chat_type, created_by, pair_key) VALUES ('single', $1, $2)
        ON CONFLICT (pair_key) DO NOTHING RETURNING `+chatColumns, creatorID, key)
	if err == nil {
		if err := r.AddMembers(ctx, chat.ID, []int64{creatorID, otherID}); err != nil {
			return models.Chat{}, false, err
		}
		return chat, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, false, err
	}

	if err := sqlx.GetContext(ctx, r.db, &chat, `SELECT `+chatColumns+` FROM chats WHERE pair_key=$1`, key); err != nil {
		return models.Chat{}, false, err
	}
	return chat, false, nil
}

// AddMembers inserts memberships, ignoring existing ones.
func (r *ChatRepo) AddMembers(ctx context.Context, chatID int64, userIDs []int64) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO chat_members (chat_id, user_id) SELECT $1, unnest($2::bigint[])
        ON CONFLICT (chat_id, user_id) DO NOTHING`, chatID, pq.Array(userIDs))
	return err
}

// AddBroadcastRecipients stores recipients of a broadcast chat.
func (r *ChatRepo) AddBroadcastRecipients(ctx context.Context, chatID int64, recipientIDs []int64) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO broadcast_recipients (chat_id, recipient_id) SELECT $1, unnest($2::bigint[])
        ON CONFLICT (chat_id, recipient_id) DO NOTHING`, chatID, pq.Array(recipientIDs))
	return err
}

// GetChat fetches a chat by id.
func (r *ChatRepo) GetChat(ctx context.Context, chatID int64) (models.Chat, error) {
	var chat models.Chat
	err := sqlx.GetContext(ctx, r.db, &chat, `SELECT `+chatColumns+` FROM chats WHERE id=$1`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, ErrChatNotFound
	}
	return chat, err
}

// MemberIDs returns the chat members ordered by user id.
func (r *ChatRepo) MemberIDs(ctx context.Context, chatID int64) ([]int64, error) {
	var ids []int64
	err := sqlx.SelectContext(ctx, r.db, &ids, `SELECT user_id FROM chat_members WHERE chat_id=$1 ORDER BY user_id`, chatID)
	return ids, err
}

// RecipientIDs returns the broadcast recipients ordered by user id.
func (r *ChatRepo) RecipientIDs(ctx context.Context, chatID int64) ([]int64, error) {
	var ids []int64
	err := sqlx.SelectContext(ctx, r.db, &ids, `SELECT recipient_id FROM broadcast_recipients WHERE chat_id=$1 ORDER BY recipient_id`, chatID)
	return ids, err
}

// IsMember checks membership.
func (r *ChatRepo) IsMember(ctx context.Context, chatID, userID int64) (bool, error) {
	var exists bool
	err := sqlx.GetContext(ctx, r.db, &exists, `SELECT EXISTS(SELECT 1 FROM chat_members WHERE chat_id=$1 AND user_id=$2)`, chatID, userID)
	return exists, err
}

// Touch bumps updated_at for chat list ordering.
func (r *ChatRepo) Touch(ctx context.Context, chatID int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE chats SET updated_at = NOW() WHERE id=$1`, chatID)
	return err
}

// ListForUser returns the user's chats, pinned first, then by recent activity.
func (r *ChatRepo) ListForUser(ctx context.Context, userID int64, limit, offset int) ([]models.ChatSummary, error) {
	query := `SELECT c.id, c.name, c.chat_type, c.created_at, c.updated_at, cm.is_pinned AS pinned,
            COALESCE(s.unread_count, 0) AS unread_count
        FROM chat_members cm
        JOIN chats c ON c.id = cm.chat_id
        LEFT JOIN chat_read_summary s ON s.chat_id = c.id AND s.user_id = cm.user_id
        WHERE cm.user_id=$1
        ORDER BY cm.is_pinned DESC, c.updated_at DESC, c.id DESC
        LIMIT $2 OFFSET $3`
	var chats []models.ChatSummary
	err := sqlx.SelectContext(ctx, r.db, &chats, query, userID, limit, offset)
	return chats, err
}

// Participants returns members and broadcast recipients of each chat with names.
func (r *ChatRepo) Participants(ctx context.Context, chatIDs []int64) (map[int64][]models.UserRef, error) {
	result := make(map[int64][]models.UserRef, len(chatIDs))
	if len(chatIDs) == 0 {
		return result, nil
	}
	query := `SELECT p.chat_id, p.user_id AS id, COALESCE(u.name, '') AS name FROM (
            SELECT chat_id, user_id FROM chat_members WHERE chat_id = ANY($1)
            UNION
            SELECT chat_id, recipient_id FROM broadcast_recipients WHERE chat_id = ANY($1)
        ) p
        LEFT JOIN users u ON u.id = p.user_id
        ORDER BY p.chat_id, p.user_id`
	var rows []struct {
		ChatID int64 `db:"chat_id"`
		models.UserRef
	}
	if err := sqlx.SelectContext(ctx, r.db, &rows, query, pq.Array(chatIDs)); err != nil {
		return nil, err
	}
	for _, row := range rows {
		result[row.ChatID] = append(result[row.ChatID], row.UserRef)
	}
	return result, nil
}

// SetPinned pins or unpins the chat for one member.
func (r *ChatRepo) SetPinned(ctx context.Context, chatID, userID int64, pinned bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE chat_members SET is_pinned=$3 WHERE chat_id=$1 AND user_id=$2`, chatID, userID, pinned)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrChatNotFound
	}
	return nil
}

// Contacts returns every other user sharing at least one chat with userID.
func (r *ChatRepo) Contacts(ctx context.Context, userID int64) ([]models.UserRef, error) {
	var contacts []models.UserRef
	err := sqlx.SelectContext(ctx, r.db, &contacts, `SELECT DISTINCT u.id, u.name
        FROM chat_members cm1
        JOIN chat_members cm2 ON cm2.chat_id = cm1.chat_id
        JOIN users u ON u.id = cm2.user_id
        WHERE cm1.user_id = $1 AND cm2.user_id <> $1
        ORDER BY u.id`, userID)
	return contacts, err
}
