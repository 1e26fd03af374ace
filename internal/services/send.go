package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"chat-engine/internal/apperr"
	"chat-engine/internal/events"
	"chat-engine/internal/models"
	"chat-engine/internal/objectstore"
	"chat-engine/internal/observability"
	"chat-engine/internal/repositories"
)

// SendInput describes one message. Files are uploaded before anything is
// written; Attachments are pre-uploaded descriptors reused as-is.
type SendInput struct {
	ChatID      int64
	SenderID    int64
	Body        string
	Files       []objectstore.File
	Attachments models.Attachments
	ReplyToID   *int64
	Kind        models.MessageKind
	Event       models.SystemEventType
	Metadata    models.SystemMetadata
}

// SendMessage stores a message, emits messageSent after commit and, for
// broadcast chats, copies it into each recipient's single chat.
func (s *ChatService) SendMessage(ctx context.Context, in SendInput) (models.SentMessage, error) {
	ctx, span := tracer.Start(ctx, "ChatService.SendMessage")
	defer span.End()

	if in.Kind == "" {
		in.Kind = models.KindUser
	}
	switch in.Kind {
	case models.KindUser:
		if strings.TrimSpace(in.Body) == "" && len(in.Files) == 0 && len(in.Attachments) == 0 {
			return models.SentMessage{}, apperr.Validation("message or attachments required")
		}
	case models.KindSystem:
		if in.Event == "" {
			return models.SentMessage{}, apperr.Validation("system message requires an event")
		}
	default:
		return models.SentMessage{}, apperr.Validationf("unsupported message type %q", in.Kind)
	}

	chat, err := s.loadChat(ctx, s.store, in.ChatID)
	if err != nil {
		return models.SentMessage{}, err
	}
	if err := s.requireMember(ctx, s.store, chat.ID, in.SenderID); err != nil {
		return models.SentMessage{}, err
	}

	attachments, err := s.upload(ctx, in)
	if err != nil {
		return models.SentMessage{}, err
	}

	sent, err := s.insertMessage(ctx, s.store, chat.ID, in, attachments, nil)
	if err != nil {
		return models.SentMessage{}, err
	}
	observability.IncMessageSent(string(chat.Type))
	s.bus.PublishMessageSent(ctx, events.MessageSent{Message: sent, ChatType: chat.Type, SenderID: in.SenderID})

	if chat.Type == models.ChatBroadcast && in.Kind == models.KindUser {
		s.fanOut(ctx, chat, sent)
	}
	return sent, nil
}

func (s *ChatService) upload(ctx context.Context, in SendInput) (models.Attachments, error) {
	if len(in.Attachments) > 0 {
		return in.Attachments, nil
	}
	out := models.Attachments{}
	if len(in.Files) == 0 {
		return out, nil
	}
	if s.uploader == nil {
		return nil, apperr.Internal("upload attachments", errors.New("no object store configured"))
	}
	folder := fmt.Sprintf("chat_messages_%d", in.ChatID)
	for _, f := range in.Files {
		att, err := s.uploader.Upload(ctx, f, folder)
		if err != nil {
			return nil, apperr.Internal("upload attachments", err)
		}
		out = append(out, att)
	}
	return out, nil
}

// insertMessage writes the message with its reply link and system event in
// one transaction.
func (s *ChatService) insertMessage(ctx context.Context, store repositories.Store, chatID int64, in SendInput, attachments models.Attachments, parentID *int64) (models.SentMessage, error) {
	var sent models.SentMessage
	err := store.InTx(ctx, func(tx repositories.Store) error {
		var reply *models.Message
		if in.ReplyToID != nil {
			target, err := tx.Messages().Get(ctx, *in.ReplyToID)
			if errors.Is(err, repositories.ErrMessageNotFound) || (err == nil && target.ChatID != chatID) {
				return apperr.Validation("reply target is not in this chat")
			}
			if err != nil {
				return fmt.Errorf("load reply target: %w", err)
			}
			reply = &target
		}

		msg, err := tx.Messages().Insert(ctx, models.NewMessage{
			ChatID:          chatID,
			SenderID:        in.SenderID,
			Body:            in.Body,
			Kind:            in.Kind,
			ParentMessageID: parentID,
		}, attachments)
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		if reply != nil {
			if err := tx.Messages().InsertReply(ctx, chatID, msg.ID, reply.ID); err != nil {
				return fmt.Errorf("insert reply: %w", err)
			}
		}
		if in.Kind == models.KindSystem {
			err := tx.Messages().InsertSystemEvent(ctx, models.SystemEvent{
				MessageID: msg.ID,
				ChatID:    chatID,
				Event:     in.Event,
				Metadata:  in.Metadata,
			})
			if err != nil {
				return fmt.Errorf("insert system event: %w", err)
			}
		}
		sent = models.SentMessage{Message: msg, Attachments: attachments, ReplyData: reply}
		return nil
	})
	if err != nil {
		return models.SentMessage{}, storeError("send message", err)
	}
	return sent, nil
}

// fanOut copies a broadcast message into each recipient's single chat.
// Recipients are isolated: one failure is logged and counted and the rest
// still get their copy.
func (s *ChatService) fanOut(ctx context.Context, chat models.Chat, canonical models.SentMessage) int {
	recipients, err := s.store.Chats().RecipientIDs(ctx, chat.ID)
	if err != nil {
		s.log.Error("broadcast fan-out skipped", zap.Int64("chat_id", chat.ID), zap.Int64("message_id", canonical.ID), zap.Error(err))
		observability.IncFanoutFailure()
		return 0
	}

	delivered := 0
	for _, recipientID := range recipients {
		if recipientID == canonical.SenderID {
			continue
		}
		if err := s.fanOutTo(ctx, canonical, recipientID); err != nil {
			observability.IncFanoutFailure()
			s.log.Warn("broadcast fan-out failed",
				zap.Int64("chat_id", chat.ID),
				zap.Int64("message_id", canonical.ID),
				zap.Int64("recipient_id", recipientID),
				zap.Error(err),
			)
			continue
		}
		delivered++
	}
	return delivered
}

func (s *ChatService) fanOutTo(ctx context.Context, canonical models.SentMessage, recipientID int64) error {
	parentID := canonical.ID
	var child models.SentMessage
	err := s.store.InTx(ctx, func(tx repositories.Store) error {
		single, _, err := tx.Chats().GetOrCreateSingle(ctx, canonical.SenderID, recipientID)
		if err != nil {
			return fmt.Errorf("get or create single chat: %w", err)
		}
		child, err = s.insertMessage(ctx, tx, single.ID, SendInput{
			SenderID: canonical.SenderID,
			Body:     canonical.Body,
			Kind:     models.KindUser,
		}, canonical.Attachments, &parentID)
		return err
	})
	if err != nil {
		return err
	}
	s.bus.PublishMessageSent(ctx, events.MessageSent{Message: child, ChatType: models.ChatSingle, SenderID: canonical.SenderID})
	return nil
}
