package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// MessageKind separates user-authored messages from system notices.
type MessageKind string

const (
	KindUser   MessageKind = "user"
	KindSystem MessageKind = "system"
)

// Message is an immutable row of the shared message log. ParentMessageID is
// set only on broadcast fan-out copies and points at the canonical message.
type Message struct {
	ID              int64       `db:"id" json:"id"`
	ChatID          int64       `db:"chat_id" json:"chat_id"`
	SenderID        int64       `db:"sender_id" json:"sender_id"`
	Body            string      `db:"body" json:"message"`
	Kind            MessageKind `db:"message_type" json:"message_type"`
	ParentMessageID *int64      `db:"parent_message_id" json:"parent_message_id"`
	CreatedAt       time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt       *time.Time  `db:"updated_at" json:"updated_at"`
}

// Attachment is an opaque media descriptor returned by the object store.
type Attachment struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	Kind        string `json:"kind"`
	Size        int64  `json:"size"`
	Name        string `json:"name,omitempty"`
	ContentType string `json:"content_type,omitempty"`
}

// Attachments is stored as a JSON array.
type Attachments []Attachment

func (a Attachments) Value() (driver.Value, error) {
	if a == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(a)
}

func (a *Attachments) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*a = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("attachments: unsupported type %T", src)
	}
	return json.Unmarshal(raw, a)
}

// SystemEventType tags system-kind messages.
type SystemEventType string

const (
	EventGroupCreated       SystemEventType = "group_created"
	EventUsersAdded         SystemEventType = "users_added"
	EventUserRemoved        SystemEventType = "user_removed"
	EventUserLeft           SystemEventType = "user_left"
	EventGroupNameChanged   SystemEventType = "group_name_changed"
	EventGroupAvatarChanged SystemEventType = "group_avatar_changed"
	EventMessagePinned      SystemEventType = "message_pinned"
)

// SystemMetadata is the JSON payload of a system event.
type SystemMetadata struct {
	ActorID       int64   `json:"actor_id"`
	TargetUserIDs []int64 `json:"target_user_ids,omitempty"`
	OldValue      *string `json:"old_value,omitempty"`
	NewValue      *string `json:"new_value,omitempty"`
}

func (m SystemMetadata) Value() (driver.Value, error) {
	return json.Marshal(m)
}

func (m *SystemMetadata) Scan(src any) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	case nil:
		*m = SystemMetadata{}
		return nil
	}
	return fmt.Errorf("system metadata: unsupported type %T", src)
}

// SystemEvent is keyed by its message id.
type SystemEvent struct {
	MessageID int64           `db:"message_id"`
	ChatID    int64           `db:"chat_id"`
	Event     SystemEventType `db:"event"`
	Metadata  SystemMetadata  `db:"metadata"`
}

// NewMessage is the insert shape of a message.
type NewMessage struct {
	ChatID          int64
	SenderID        int64
	Body            string
	Kind            MessageKind
	ParentMessageID *int64
}

// SentMessage is a stored message as returned to the sender and carried by
// the messageSent event.
type SentMessage struct {
	Message
	Attachments Attachments `json:"attachments"`
	ReplyData   *Message    `json:"reply_data"`
}
