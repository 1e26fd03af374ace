package events

import (
	"context"

	"go.uber.org/zap"

	"chat-engine/internal/models"
	"chat-engine/internal/observability"
)

// MessageSent is emitted once a message is committed.
type MessageSent struct {
	Message  models.SentMessage
	ChatType models.ChatType
	SenderID int64
}

// MessageSentHandler consumes MessageSent. Handlers must tolerate duplicate
// delivery of the same message.
type MessageSentHandler interface {
	Name() string
	HandleMessageSent(ctx context.Context, event MessageSent) error
}

// Bus dispatches events synchronously to a fixed, ordered list of handlers.
type Bus struct {
	handlers []MessageSentHandler
	log      *zap.Logger
}

// NewBus builds a bus; handlers run in the order given.
func NewBus(log *zap.Logger, handlers ...MessageSentHandler) *Bus {
	return &Bus{handlers: handlers, log: log}
}

// PublishMessageSent runs every handler. A failing handler is logged and
// does not stop the ones after it.
func (b *Bus) PublishMessageSent(ctx context.Context, event MessageSent) {
	if b == nil {
		return
	}
	for _, h := range b.handlers {
		if err := h.HandleMessageSent(ctx, event); err != nil {
			observability.IncEventConsumerError(h.Name())
			b.log.Error("messageSent consumer failed",
				zap.String("consumer", h.Name()),
				zap.Int64("message_id", event.Message.ID),
				zap.Int64("chat_id", event.Message.ChatID),
				zap.Error(err),
			)
		}
	}
}
