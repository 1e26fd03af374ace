package models

import "time"

// UnreadSummary is the per-user aggregate used for chat list rendering.
type UnreadSummary struct {
	ChatID            int64      `db:"chat_id" json:"chat_id"`
	UserID            int64      `db:"user_id" json:"user_id"`
	LastReadMessageID *int64     `db:"last_read_message_id" json:"last_read_message_id"`
	UnreadCount       int        `db:"unread_count" json:"unread_count"`
	LastReadAt        *time.Time `db:"last_read_at" json:"last_read_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// DeliveryStatus is the per-recipient state of one message.
type DeliveryStatus string

const (
	DeliveryRead      DeliveryStatus = "read"
	DeliveryDelivered DeliveryStatus = "delivered"
)

// MessageStatus is one recipient's status for a message.
type MessageStatus struct {
	UserID int64          `json:"user_id"`
	Status DeliveryStatus `json:"status"`
}

// ReadPair links a message to a user that has read it.
type ReadPair struct {
	MessageID int64 `db:"message_id"`
	UserID    int64 `db:"user_id"`
}
