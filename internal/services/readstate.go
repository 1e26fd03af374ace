package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"chat-engine/internal/apperr"
	"chat-engine/internal/events"
	"chat-engine/internal/models"
	"chat-engine/internal/repositories"
)

// MarkAsRead records receipts for everything the user has not read up to
// the newest user message and resets the unread counter. It returns the
// new read position, nil when the chat has no user messages.
func (s *ChatService) MarkAsRead(ctx context.Context, chatID, userID int64) (*int64, error) {
	ctx, span := tracer.Start(ctx, "ChatService.MarkAsRead")
	defer span.End()

	chat, err := s.loadChat(ctx, s.store, chatID)
	if err != nil {
		return nil, err
	}
	if err := s.requireMember(ctx, s.store, chat.ID, userID); err != nil {
		return nil, err
	}

	var lastRead *int64
	err = s.store.InTx(ctx, func(tx repositories.Store) error {
		latest, err := tx.Messages().LatestUserMessageID(ctx, chat.ID)
		if err != nil {
			return fmt.Errorf("load latest message: %w", err)
		}
		if latest == nil {
			return nil
		}
		if _, err := tx.Receipts().InsertMissingReceipts(ctx, chat.ID, userID, *latest); err != nil {
			return fmt.Errorf("insert receipts: %w", err)
		}
		if err := tx.Receipts().ResetUnread(ctx, chat.ID, userID, *latest); err != nil {
			return fmt.Errorf("reset unread: %w", err)
		}
		lastRead = latest
		return nil
	})
	if err != nil {
		return nil, storeError("mark as read", err)
	}
	if lastRead == nil {
		return nil, nil
	}

	members, err := s.store.Chats().MemberIDs(ctx, chat.ID)
	if err != nil {
		s.log.Warn("read notification skipped", zap.Int64("chat_id", chat.ID), zap.Error(err))
		return lastRead, nil
	}
	s.dispatcher.SendToUsers(ctx, members, models.PushMarkReadMessage, models.ReadEvent{
		ChatID:            chat.ID,
		SeenBy:            userID,
		LastReadMessageID: lastRead,
	})
	return lastRead, nil
}

// CheckStatus reports read or delivered per recipient of a message. In a
// broadcast chat recipients read their own fan-out copy, so the status comes
// from receipts on the copies.
func (s *ChatService) CheckStatus(ctx context.Context, chatID, messageID, viewerID int64) ([]models.MessageStatus, error) {
	chat, err := s.loadChat(ctx, s.store, chatID)
	if err != nil {
		return nil, err
	}
	if err := s.requireViewer(ctx, chat, viewerID); err != nil {
		return nil, err
	}
	found, err := s.store.Messages().IDsInChat(ctx, chat.ID, []int64{messageID})
	if err != nil {
		return nil, storeError("load message", err)
	}
	if len(found) == 0 {
		return nil, apperr.NotFound("message not found")
	}

	var (
		recipients []int64
		pairs      []models.ReadPair
	)
	if chat.Type == models.ChatBroadcast {
		if recipients, err = s.store.Chats().RecipientIDs(ctx, chat.ID); err != nil {
			return nil, storeError("load recipients", err)
		}
		if pairs, err = s.store.Receipts().ChildReaders(ctx, []int64{messageID}); err != nil {
			return nil, storeError("load receipts", err)
		}
	} else {
		if recipients, err = s.store.Chats().MemberIDs(ctx, chat.ID); err != nil {
			return nil, storeError("load members", err)
		}
		if pairs, err = s.store.Receipts().Readers(ctx, []int64{messageID}); err != nil {
			return nil, storeError("load receipts", err)
		}
	}

	read := make(map[int64]bool, len(pairs))
	for _, p := range pairs {
		read[p.UserID] = true
	}
	statuses := make([]models.MessageStatus, 0, len(recipients))
	for _, uid := range sortedIDs(recipients) {
		if uid == viewerID {
			continue
		}
		status := models.DeliveryDelivered
		if read[uid] {
			status = models.DeliveryRead
		}
		statuses = append(statuses, models.MessageStatus{UserID: uid, Status: status})
	}
	return statuses, nil
}

// ReadTracker bootstraps read state for every committed message: a receipt
// for the sender, reset-or-increment of each member's unread counter and a
// bump of the chat's activity time. Duplicate deliveries are ignored.
type ReadTracker struct {
	store repositories.Store
}

func NewReadTracker(store repositories.Store) *ReadTracker {
	return &ReadTracker{store: store}
}

func (t *ReadTracker) Name() string { return "read_tracker" }

func (t *ReadTracker) HandleMessageSent(ctx context.Context, event events.MessageSent) error {
	msg := event.Message
	return t.store.InTx(ctx, func(tx repositories.Store) error {
		first, err := tx.Receipts().MarkDispatched(ctx, msg.ID)
		if err != nil {
			return fmt.Errorf("mark dispatched: %w", err)
		}
		if !first {
			return nil
		}
		if err := tx.Receipts().InsertReceipt(ctx, msg.ID, msg.ChatID, event.SenderID); err != nil {
			return fmt.Errorf("insert sender receipt: %w", err)
		}
		if msg.Kind == models.KindUser {
			if err := tx.Receipts().BumpUnreadOnSend(ctx, msg.ChatID, event.SenderID, msg.ID); err != nil {
				return fmt.Errorf("bump unread: %w", err)
			}
		}
		if err := tx.Chats().Touch(ctx, msg.ChatID); err != nil {
			return fmt.Errorf("touch chat: %w", err)
		}
		return nil
	})
}
