package models

import "time"

// ChatType is the conversation kind.
type ChatType string

const (
	ChatSingle    ChatType = "single"
	ChatGroup     ChatType = "group"
	ChatBroadcast ChatType = "broadcast"
)

// ParseChatType validates a wire value.
func ParseChatType(s string) (ChatType, bool) {
	switch ChatType(s) {
	case ChatSingle, ChatGroup, ChatBroadcast:
		return ChatType(s), true
	}
	return "", false
}

// Chat is a conversation of any kind.
type Chat struct {
	ID        int64     `db:"id" json:"id"`
	Type      ChatType  `db:"chat_type" json:"chat_type"`
	Name      *string   `db:"name" json:"name"`
	CreatedBy int64     `db:"created_by" json:"created_by"`
	PairKey   *string   `db:"pair_key" json:"-"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// UserRef is a user id with its display name.
type UserRef struct {
	UserID int64  `db:"id" json:"user_id"`
	Name   string `db:"name" json:"name"`
}

// ChatDetails is a chat with its visible participants. Broadcast chats list
// their recipients.
type ChatDetails struct {
	Chat
	Members []UserRef `json:"members"`
}

// LastMessage previews the newest message of a chat for one viewer.
type LastMessage struct {
	MessageID   int64       `db:"message_id" json:"message_id"`
	Body        string      `db:"body" json:"message"`
	Attachments Attachments `db:"attachments" json:"attachments"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
}

// ChatSummary is one row of a user's chat list.
type ChatSummary struct {
	ChatID      int64        `db:"id" json:"chat_id"`
	Name        *string      `db:"name" json:"chat_name"`
	Type        ChatType     `db:"chat_type" json:"chat_type"`
	CreatedAt   time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time    `db:"updated_at" json:"updated_at"`
	Pinned      bool         `db:"pinned" json:"is_pinned"`
	UnreadCount int          `db:"unread_count" json:"unread_count"`
	Members     []UserRef    `db:"-" json:"members"`
	LastMessage *LastMessage `db:"-" json:"last_message"`
}

// ChatInfo is the cached access view of a chat.
type ChatInfo struct {
	ChatID    int64    `json:"chat_id"`
	Type      ChatType `json:"chat_type"`
	CreatedBy int64    `json:"created_by"`
	Members   []int64  `json:"members"`
}

// HasMember reports whether userID may access the chat.
func (c ChatInfo) HasMember(userID int64) bool {
	for _, id := range c.Members {
		if id == userID {
			return true
		}
	}
	return false
}
