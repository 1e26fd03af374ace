package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"chat-engine/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

const messageColumns = `id, chat_id, sender_id, body, message_type, parent_message_id, created_at, updated_at`

// MessageQuery selects one window of a chat for a viewer. At most one of
// BeforeID, AfterID and EqualID is set. AfterID windows are returned in
// ascending id order, all others descending.
type MessageQuery struct {
	ChatID   int64
	ViewerID int64
	Limit    int
	BeforeID *int64
	AfterID  *int64
	EqualID  *int64
}

// SearchCursor is the position after the last returned hit.
type SearchCursor struct {
	CreatedAt time.Time `json:"created_at"`
	Rank      float64   `json:"rank"`
	ID        int64     `json:"id"`
}

type SearchQuery struct {
	ChatID   int64
	ViewerID int64
	Text     string
	Limit    int
	After    *SearchCursor
}

// LastMessageRow is the newest message of a chat not cleared by the viewer.
type LastMessageRow struct {
	ChatID int64 `db:"chat_id"`
	models.LastMessage
	Deleted bool `db:"deleted"`
}

// MessageRepository defines interactions with the shared message log.
type MessageRepository interface {
	Insert(ctx context.Context, msg models.NewMessage, attachments models.Attachments) (models.Message, error)
	InsertReply(ctx context.Context, chatID, messageID, replyToID int64) error
	InsertSystemEvent(ctx context.Context, event models.SystemEvent) error
	Get(ctx context.Context, messageID int64) (models.Message, error)
	IDsInChat(ctx context.Context, chatID int64, messageIDs []int64) ([]int64, error)
	List(ctx context.Context, q MessageQuery) ([]models.MessageRow, error)
	ReplyTargets(ctx context.Context, viewerID int64, messageIDs []int64) (map[int64]models.ReplyData, error)
	SystemEvents(ctx context.Context, messageIDs []int64) (map[int64]models.SystemEvent, error)
	Children(ctx context.Context, parentIDs []int64) ([]models.Message, error)
	LatestUserMessageID(ctx context.Context, chatID int64) (*int64, error)
	LastMessages(ctx context.Context, viewerID int64, chatIDs []int64) (map[int64]LastMessageRow, error)
	Search(ctx context.Context, q SearchQuery) ([]models.SearchHit, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db sqlx.ExtContext
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db sqlx.ExtContext) *MessageRepo {
	return &MessageRepo{db: db}
}

// Insert stores a message; the store assigns its id.
func (r *MessageRepo) Insert(ctx context.Context, msg models.NewMessage, attachments models.Attachments) (models.Message, error) {
	kind := msg.Kind
	if kind == "" {
		kind = models.KindUser
	}
	var out models.Message
	err := sqlx.GetContext(ctx, r.db, &out, `INSERT INTO chat_messages (chat_id, sender_id, body, message_type, parent_message_id, attachments)
        VALUES ($1, $2, $3, $4, $5, $6) RETURNING `+messageColumns,
		msg.ChatID, msg.SenderID, msg.Body, kind, msg.ParentMessageID, attachments)
	return out, err
}

// InsertReply links messageID to the message it answers.
func (r *MessageRepo) InsertReply(ctx context.Context, chatID, messageID, replyToID int64) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO chat_message_replies (message_id, chat_id, reply_message_id) VALUES ($1, $2, $3)`, messageID, chatID, replyToID)
	return err
}

// InsertSystemEvent stores the event payload of a system message.
func (r *MessageRepo) InsertSystemEvent(ctx context.Context, event models.SystemEvent) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO chat_system_events (message_id, chat_id, event, metadata) VALUES ($1, $2, $3, $4)`,
		event.MessageID, event.ChatID, event.Event, event.Metadata)
	return err
}

// Get retrieves a single message.
func (r *MessageRepo) Get(ctx context.Context, messageID int64) (models.Message, error) {
	var msg models.Message
	err := sqlx.GetContext(ctx, r.db, &msg, `SELECT `+messageColumns+` FROM chat_messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// IDsInChat filters messageIDs down to those stored in chatID.
func (r *MessageRepo) IDsInChat(ctx context.Context, chatID int64, messageIDs []int64) ([]int64, error) {
	var ids []int64
	err := sqlx.SelectContext(ctx, r.db, &ids, `SELECT id FROM chat_messages WHERE chat_id=$1 AND id = ANY($2) ORDER BY id`, chatID, pq.Array(messageIDs))
	return ids, err
}

// List returns one window of messages joined with the viewer's overlays.
// Rows at or before the viewer's clear watermark are excluded.
func (r *MessageRepo) List(ctx context.Context, q MessageQuery) ([]models.MessageRow, error) {
	var b strings.Builder
	b.WriteString(`SELECT m.id, m.chat_id, m.sender_id, m.message_type, m.body, m.attachments, m.created_at,
            u.name AS sender_name, rl.reply_message_id, d.delete_action
        FROM chat_messages m
        LEFT JOIN users u ON u.id = m.sender_id
        LEFT JOIN chat_message_replies rl ON rl.message_id = m.id
        LEFT JOIN chat_message_deletes d ON d.message_id = m.id AND d.user_id = $2
        LEFT JOIN chat_clears c ON c.chat_id = m.chat_id AND c.user_id = $2
        WHERE m.chat_id = $1 AND (c.cleared_at IS NULL OR m.created_at > c.cleared_at)`)
	args := []any{q.ChatID, q.ViewerID}
	order := "DESC"
	switch {
	case q.BeforeID != nil:
		args = append(args, *q.BeforeID)
		fmt.Fprintf(&b, " AND m.id < $%d", len(args))
	case q.AfterID != nil:
		args = append(args, *q.AfterID)
		fmt.Fprintf(&b, " AND m.id > $%d", len(args))
		order = "ASC"
	case q.EqualID != nil:
		args = append(args, *q.EqualID)
		fmt.Fprintf(&b, " AND m.id = $%d", len(args))
	}
	args = append(args, q.Limit)
	fmt.Fprintf(&b, " ORDER BY m.id %s LIMIT $%d", order, len(args))

	var rows []models.MessageRow
	err := sqlx.SelectContext(ctx, r.db, &rows, b.String(), args...)
	return rows, err
}

// ReplyTargets resolves quoted messages in one query, flagging those the viewer deleted.
func (r *MessageRepo) ReplyTargets(ctx context.Context, viewerID int64, messageIDs []int64) (map[int64]models.ReplyData, error) {
	result := make(map[int64]models.ReplyData, len(messageIDs))
	if len(messageIDs) == 0 {
		return result, nil
	}
	var rows []models.ReplyData
	err := sqlx.SelectContext(ctx, r.db, &rows, `SELECT m.id, m.body, m.attachments, m.sender_id, m.created_at, u.name AS sender_name,
            (d.message_id IS NOT NULL) AS deleted
        FROM chat_messages m
        LEFT JOIN users u ON u.id = m.sender_id
        LEFT JOIN chat_message_deletes d ON d.message_id = m.id AND d.user_id = $2
        WHERE m.id = ANY($1)`, pq.Array(messageIDs), viewerID)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		result[row.ID] = row
	}
	return result, nil
}

// SystemEvents loads the events of the given system messages.
func (r *MessageRepo) SystemEvents(ctx context.Context, messageIDs []int64) (map[int64]models.SystemEvent, error) {
	result := make(map[int64]models.SystemEvent, len(messageIDs))
	if len(messageIDs) == 0 {
		return result, nil
	}
	var rows []models.SystemEvent
	if err := sqlx.SelectContext(ctx, r.db, &rows, `SELECT message_id, chat_id, event, metadata FROM chat_system_events WHERE message_id = ANY($1)`, pq.Array(messageIDs)); err != nil {
		return nil, err
	}
	for _, row := range rows {
		result[row.MessageID] = row
	}
	return result, nil
}

// Children returns the fan-out copies of the given canonical messages.
func (r *MessageRepo) Children(ctx context.Context, parentIDs []int64) ([]models.Message, error) {
	if len(parentIDs) == 0 {
		return nil, nil
	}
	var msgs []models.Message
	err := sqlx.SelectContext(ctx, r.db, &msgs, `SELECT `+messageColumns+` FROM chat_messages WHERE parent_message_id = ANY($1) ORDER BY id`, pq.Array(parentIDs))
	return msgs, err
}

// LatestUserMessageID returns the newest non-system message id, nil for none.
func (r *MessageRepo) LatestUserMessageID(ctx context.Context, chatID int64) (*int64, error) {
	var id sql.NullInt64
	if err := sqlx.GetContext(ctx, r.db, &id, `SELECT MAX(id) FROM chat_messages WHERE chat_id=$1 AND message_type='user'`, chatID); err != nil {
		return nil, err
	}
	if !id.Valid {
		return nil, nil
	}
	return &id.Int64, nil
}

// LastMessages returns the newest message per chat that survives the viewer's clear watermark.
func (r *MessageRepo) LastMessages(ctx context.Context, viewerID int64, chatIDs []int64) (map[int64]LastMessageRow, error) {
	result := make(map[int64]LastMessageRow, len(chatIDs))
	if len(chatIDs) == 0 {
		return result, nil
	}
	var rows []LastMessageRow
	err := sqlx.SelectContext(ctx, r.db, &rows, `SELECT DISTINCT ON (m.chat_id) m.chat_id, m.id AS message_id, m.body, m.attachments, m.created_at,
            (d.message_id IS NOT NULL) AS deleted
        FROM chat_messages m
        LEFT JOIN chat_clears c ON c.chat_id = m.chat_id AND c.user_id = $2
        LEFT JOIN chat_message_deletes d ON d.message_id = m.id AND d.user_id = $2
        WHERE m.chat_id = ANY($1) AND (c.cleared_at IS NULL OR m.created_at > c.cleared_at)
        ORDER BY m.chat_id, m.id DESC`, pq.Array(chatIDs), viewerID)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		result[row.ChatID] = row
	}
	return result, nil
}

// Search runs a full text query over user messages visible to the viewer.
func (r *MessageRepo) Search(ctx context.Context, q SearchQuery) ([]models.SearchHit, error) {
	var b strings.Builder
	b.WriteString(`SELECT m.id, m.body, m.created_at,
            ts_headline('english', m.body, tq, 'StartSel=<b>, StopSel=</b>') AS highlighted_message,
            ts_rank(m.search_vector, tq)::float8 AS rank
        FROM chat_messages m
        CROSS JOIN websearch_to_tsquery('english', $3) tq
        LEFT JOIN chat_clears c ON c.chat_id = m.chat_id AND c.user_id = $2
        WHERE m.chat_id = $1
            AND m.message_type = 'user'
            AND m.search_vector @@ tq
            AND (c.cleared_at IS NULL OR m.created_at > c.cleared_at)
            AND NOT EXISTS (SELECT 1 FROM chat_message_deletes d WHERE d.message_id = m.id AND d.user_id = $2)`)
	args := []any{q.ChatID, q.ViewerID, q.Text}
	if q.After != nil {
		args = append(args, q.After.CreatedAt, q.After.Rank, q.After.ID)
		fmt.Fprintf(&b, " AND (m.created_at, ts_rank(m.search_vector, tq)::float8, m.id) < ($%d, $%d, $%d)", len(args)-2, len(args)-1, len(args))
	}
	args = append(args, q.Limit)
	fmt.Fprintf(&b, " ORDER BY m.created_at DESC, rank DESC, m.id DESC LIMIT $%d", len(args))

	var hits []models.SearchHit
	err := sqlx.SelectContext(ctx, r.db, &hits, b.String(), args...)
	return hits, err
}
