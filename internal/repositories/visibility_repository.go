package repositories

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"chat-engine/internal/models"
)

// VisibilityRepository writes the per-user overlays that hide shared rows.
type VisibilityRepository interface {
	UpsertDeleteMarks(ctx context.Context, marks []models.DeleteMark) (int64, error)
	UpsertClearWatermark(ctx context.Context, chatID, userID int64) (time.Time, error)
}

type VisibilityRepo struct {
	db sqlx.ExtContext
}

func NewVisibilityRepo(db sqlx.ExtContext) *VisibilityRepo {
	return &VisibilityRepo{db: db}
}

// UpsertDeleteMarks writes all marks in one statement. A repeated
// (message_id, user_id) pair updates the action and timestamp in place.
// Callers must not pass the same pair twice in one call.
func (r *VisibilityRepo) UpsertDeleteMarks(ctx context.Context, marks []models.DeleteMark) (int64, error) {
	if len(marks) == 0 {
		return 0, nil
	}
	messageIDs := make([]int64, len(marks))
	userIDs := make([]int64, len(marks))
	chatIDs := make([]int64, len(marks))
	actions := make([]string, len(marks))
	deletedBy := make([]int64, len(marks))
	for i, m := range marks {
		messageIDs[i] = m.MessageID
		userIDs[i] = m.UserID
		chatIDs[i] = m.ChatID
		actions[i] = string(m.Action)
		deletedBy[i] = m.DeletedBy
	}

	res, err := r.db.ExecContext(ctx, `INSERT INTO chat_message_deletes (message_id, user_id, chat_id, delete_action, deleted_by, deleted_at)
        SELECT t.message_id, t.user_id, t.chat_id, t.delete_action, t.deleted_by, NOW()
        FROM unnest($1::bigint[], $2::bigint[], $3::bigint[], $4::text[], $5::bigint[])
            AS t(message_id, user_id, chat_id, delete_action, deleted_by)
        ON CONFLICT (message_id, user_id) DO UPDATE
        SET delete_action = EXCLUDED.delete_action, deleted_by = EXCLUDED.deleted_by, deleted_at = NOW()`,
		pq.Array(messageIDs), pq.Array(userIDs), pq.Array(chatIDs), pq.Array(actions), pq.Array(deletedBy))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// UpsertClearWatermark moves the user's watermark for the chat to now.
func (r *VisibilityRepo) UpsertClearWatermark(ctx context.Context, chatID, userID int64) (time.Time, error) {
	var clearedAt time.Time
	err := r.db.QueryRowxContext(ctx, `INSERT INTO chat_clears (chat_id, user_id, cleared_at) VALUES ($1, $2, NOW())
        ON CONFLICT (chat_id, user_id) DO UPDATE SET cleared_at = EXCLUDED.cleared_at
        RETURNING cleared_at`, chatID, userID).Scan(&clearedAt)
	return clearedAt, err
}
