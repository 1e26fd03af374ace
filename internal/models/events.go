package models

// Push event names sent to connected users.
const (
	PushSendMessage     = "sendMessage"
	PushMarkReadMessage = "markReadMessage"
	PushDeleteMessage   = "deleteMessage"
)

// ReadEvent tells chat members how far a user has read.
type ReadEvent struct {
	ChatID            int64  `json:"chat_id"`
	SeenBy            int64  `json:"seen_by"`
	LastReadMessageID *int64 `json:"last_read_message_id,omitempty"`
}

// DeleteEvent tells a user that messages were hidden for them.
type DeleteEvent struct {
	Action     DeleteAction `json:"action"`
	ChatID     int64        `json:"chat_id"`
	DeletedBy  int64        `json:"deleted_by"`
	MessageIDs []int64      `json:"messages_ids"`
}

// PushEnvelope is the frame written to websocket clients.
type PushEnvelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}
