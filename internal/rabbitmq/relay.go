package rabbitmq

import (
	"context"
	"fmt"
	"time"

	"chat-engine/internal/events"
	"chat-engine/internal/models"
)

const messageSentRoute = "chat.message.sent"

// MessageEnvelope is the wire form of a relayed messageSent event.
type MessageEnvelope struct {
	SchemaVersion int                `json:"schema_version"`
	EventType     string             `json:"event_type"`
	OccurredAt    string             `json:"occurred_at"`
	ChatType      models.ChatType    `json:"chat_type"`
	SenderID      int64              `json:"sender_id"`
	Message       models.SentMessage `json:"message"`
}

// MessageRelay forwards committed messages to the exchange so other
// services can react to them.
type MessageRelay struct {
	publisher Publisher
}

func NewMessageRelay(publisher Publisher) *MessageRelay {
	return &MessageRelay{publisher: publisher}
}

func (r *MessageRelay) Name() string { return "amqp_relay" }

func (r *MessageRelay) HandleMessageSent(ctx context.Context, event events.MessageSent) error {
	envelope := MessageEnvelope{
		SchemaVersion: 1,
		EventType:     "message_sent",
		OccurredAt:    time.Now().UTC().Format(time.RFC3339Nano),
		ChatType:      event.ChatType,
		SenderID:      event.SenderID,
		Message:       event.Message,
	}
	if err := r.publisher.Publish(ctx, messageSentRoute, envelope); err != nil {
		return fmt.Errorf("relay message %d: %w", event.Message.ID, err)
	}
	return nil
}
