package notify

import (
	"context"
	"fmt"

	"chat-engine/internal/events"
	"chat-engine/internal/models"
)

// MemberLister resolves who belongs to a chat.
type MemberLister interface {
	MemberIDs(ctx context.Context, chatID int64) ([]int64, error)
}

// MessagePusher delivers new messages to chat members. Other members also
// get a markReadMessage event showing the sender has seen the chat.
type MessagePusher struct {
	members    MemberLister
	dispatcher *Dispatcher
}

func NewMessagePusher(members MemberLister, dispatcher *Dispatcher) *MessagePusher {
	return &MessagePusher{members: members, dispatcher: dispatcher}
}

func (p *MessagePusher) Name() string { return "push" }

func (p *MessagePusher) HandleMessageSent(ctx context.Context, event events.MessageSent) error {
	ids, err := p.members.MemberIDs(ctx, event.Message.ChatID)
	if err != nil {
		return fmt.Errorf("load members: %w", err)
	}
	p.dispatcher.SendToUsers(ctx, ids, models.PushSendMessage, event.Message)

	others := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id != event.SenderID {
			others = append(others, id)
		}
	}
	p.dispatcher.SendToUsers(ctx, others, models.PushMarkReadMessage, models.ReadEvent{
		ChatID: event.Message.ChatID,
		SeenBy: event.SenderID,
	})
	return nil
}
