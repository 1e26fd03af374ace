package models

import "time"

// DeleteAction selects how a delete request is applied. Only DeleteSelf and
// DeleteEveryone are persisted on delete marks.
type DeleteAction string

const (
	DeleteSelf     DeleteAction = "self"
	DeleteEveryone DeleteAction = "everyone"
	ClearChat      DeleteAction = "clear_chat"
)

// ParseDeleteAction validates a wire value.
func ParseDeleteAction(s string) (DeleteAction, bool) {
	switch DeleteAction(s) {
	case DeleteSelf, DeleteEveryone, ClearChat:
		return DeleteAction(s), true
	}
	return "", false
}

// DeleteMark hides one message from one user.
type DeleteMark struct {
	MessageID int64        `db:"message_id"`
	ChatID    int64        `db:"chat_id"`
	UserID    int64        `db:"user_id"`
	Action    DeleteAction `db:"delete_action"`
	DeletedBy int64        `db:"deleted_by"`
}

// DeleteResult reports what a delete request touched.
type DeleteResult struct {
	Action     DeleteAction `json:"action"`
	ChatID     int64        `json:"chat_id"`
	MessageIDs []int64      `json:"message_ids"`
	Marks      int          `json:"marks"`
	ClearedAt  *time.Time   `json:"cleared_at,omitempty"`
}
