package models

import "time"

// MessageRow is one message joined with the viewer's overlays, as read from
// the store before rendering.
type MessageRow struct {
	ID             int64         `db:"id"`
	ChatID         int64         `db:"chat_id"`
	SenderID       int64         `db:"sender_id"`
	Kind           MessageKind   `db:"message_type"`
	Body           string        `db:"body"`
	Attachments    Attachments   `db:"attachments"`
	CreatedAt      time.Time     `db:"created_at"`
	SenderName     *string       `db:"sender_name"`
	ReplyMessageID *int64        `db:"reply_message_id"`
	DeleteAction   *DeleteAction `db:"delete_action"`
}

// ReplyData is the quoted message rendered under a reply.
type ReplyData struct {
	ID          int64       `db:"id" json:"id"`
	Body        *string     `db:"body" json:"message"`
	Attachments Attachments `db:"attachments" json:"attachments"`
	SenderID    int64       `db:"sender_id" json:"sender_id"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
	SenderName  *string     `db:"sender_name" json:"sender_name"`
	Deleted     bool        `db:"deleted" json:"-"`
}

// SystemData is the rendered form of a system event.
type SystemData struct {
	Event   SystemEventType `json:"event"`
	Actor   UserRef         `json:"actor"`
	Targets []UserRef       `json:"targets,omitempty"`
}

// ReadStatus of a message relative to its eligible readers.
type ReadStatus string

const (
	StatusRead   ReadStatus = "read"
	StatusUnread ReadStatus = "unread"
)

// ChatMessage is a message as one viewer sees it.
type ChatMessage struct {
	ID             int64         `json:"id"`
	ChatID         int64         `json:"chat_id"`
	Kind           MessageKind   `json:"message_type"`
	Body           *string       `json:"message"`
	Attachments    Attachments   `json:"attachments"`
	SenderID       int64         `json:"sender_id"`
	CreatedAt      time.Time     `json:"created_at"`
	SenderName     *string       `json:"sender_name"`
	ReplyMessageID *int64        `json:"reply_message_id"`
	DeleteAction   *DeleteAction `json:"delete_action"`
	DeleteText     *string       `json:"delete_text"`
	ReplyData      *ReplyData    `json:"reply_data"`
	SystemData     *SystemData   `json:"system_data"`
	ReadBy         []string      `json:"read_by"`
	UnreadBy       []string      `json:"unread_by"`
	ReadStatus     ReadStatus    `json:"read_status"`
	SeenAll        bool          `json:"seen_all"`
}

// PagingInfo describes where a page sits in the history.
type PagingInfo struct {
	HasOlder bool   `json:"has_older"`
	HasNewer bool   `json:"has_newer"`
	OldestID *int64 `json:"oldest_id"`
	NewestID *int64 `json:"newest_id"`
	Limit    int    `json:"limit"`
}

// MessagePage is ordered newest first.
type MessagePage struct {
	Data   []ChatMessage `json:"data"`
	Paging PagingInfo    `json:"paging"`
}

// SearchHit is a full-text match.
type SearchHit struct {
	ID          int64     `db:"id" json:"id"`
	Body        string    `db:"body" json:"message"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	Highlighted string    `db:"highlighted_message" json:"highlighted_message"`
	Rank        float64   `db:"rank" json:"rank"`
}

// SearchPage carries an opaque cursor for the next page, nil at the end.
type SearchPage struct {
	Data       []SearchHit `json:"data"`
	NextCursor *string     `json:"next_cursor"`
}
