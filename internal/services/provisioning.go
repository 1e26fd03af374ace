package services

import (
	"context"
	"fmt"
	"strings"

	"chat-engine/internal/apperr"
	"chat-engine/internal/models"
	"chat-engine/internal/repositories"
)

const groupNamePreview = 3

type CreateChatInput struct {
	CreatorID int64
	MemberIDs []int64
	Type      string
	Name      *string
}

// CreateChat provisions a single, group or broadcast chat in one transaction.
// Single chats are deduplicated per unordered pair of users.
func (s *ChatService) CreateChat(ctx context.Context, in CreateChatInput) (models.ChatDetails, error) {
	ctx, span := tracer.Start(ctx, "ChatService.CreateChat")
	defer span.End()

	chatType, ok := models.ParseChatType(in.Type)
	if !ok {
		return models.ChatDetails{}, apperr.Validation("Unsupported chat type")
	}

	others := make([]int64, 0, len(in.MemberIDs))
	for _, id := range uniqueIDs(in.MemberIDs) {
		if id != in.CreatorID && id > 0 {
			others = append(others, id)
		}
	}
	switch chatType {
	case models.ChatSingle:
		if len(others) != 1 {
			return models.ChatDetails{}, apperr.Validation("single chat requires exactly one other member")
		}
	case models.ChatGroup:
		if len(others) < 2 {
			return models.ChatDetails{}, apperr.Validation("group chat requires at least 2 other members")
		}
	case models.ChatBroadcast:
		if len(others) < 1 {
			return models.ChatDetails{}, apperr.Validation("broadcast requires at least one recipient")
		}
	}

	var chat models.Chat
	err := s.store.InTx(ctx, func(tx repositories.Store) error {
		var err error
		switch chatType {
		case models.ChatSingle:
			chat, _, err = tx.Chats().GetOrCreateSingle(ctx, in.CreatorID, others[0])
			return err
		case models.ChatGroup:
			chat, err = s.createGroup(ctx, tx, in.CreatorID, others, in.Name)
			return err
		case models.ChatBroadcast:
			chat, err = s.createBroadcast(ctx, tx, in.CreatorID, others, in.Name)
			return err
		}
		return apperr.Validation("Unsupported chat type")
	})
	if err != nil {
		return models.ChatDetails{}, storeError("create chat", err)
	}
	return s.details(ctx, chat)
}

func (s *ChatService) createGroup(ctx context.Context, tx repositories.Store, creatorID int64, others []int64, name *string) (models.Chat, error) {
	everyone := append(append([]int64(nil), others...), creatorID)
	finalName, err := s.chatName(ctx, tx, name, everyone)
	if err != nil {
		return models.Chat{}, err
	}
	chat, err := tx.Chats().CreateChat(ctx, models.ChatGroup, &finalName, creatorID)
	if err != nil {
		return models.Chat{}, fmt.Errorf("insert chat: %w", err)
	}
	if err := tx.Chats().AddMembers(ctx, chat.ID, append([]int64{creatorID}, others...)); err != nil {
		return models.Chat{}, fmt.Errorf("insert members: %w", err)
	}

	msg, err := tx.Messages().Insert(ctx, models.NewMessage{
		ChatID:   chat.ID,
		SenderID: creatorID,
		Kind:     models.KindSystem,
	}, nil)
	if err != nil {
		return models.Chat{}, fmt.Errorf("insert system message: %w", err)
	}
	err = tx.Messages().InsertSystemEvent(ctx, models.SystemEvent{
		MessageID: msg.ID,
		ChatID:    chat.ID,
		Event:     models.EventGroupCreated,
		Metadata:  models.SystemMetadata{ActorID: creatorID, TargetUserIDs: others},
	})
	if err != nil {
		return models.Chat{}, fmt.Errorf("insert system event: %w", err)
	}
	return chat, nil
}

// createBroadcast makes the creator the only member; recipients are kept
// apart and reached through their own single chats.
func (s *ChatService) createBroadcast(ctx context.Context, tx repositories.Store, creatorID int64, recipients []int64, name *string) (models.Chat, error) {
	finalName, err := s.chatName(ctx, tx, name, recipients)
	if err != nil {
		return models.Chat{}, err
	}
	chat, err := tx.Chats().CreateChat(ctx, models.ChatBroadcast, &finalName, creatorID)
	if err != nil {
		return models.Chat{}, fmt.Errorf("insert chat: %w", err)
	}
	if err := tx.Chats().AddMembers(ctx, chat.ID, []int64{creatorID}); err != nil {
		return models.Chat{}, fmt.Errorf("insert members: %w", err)
	}
	if err := tx.Chats().AddBroadcastRecipients(ctx, chat.ID, recipients); err != nil {
		return models.Chat{}, fmt.Errorf("insert recipients: %w", err)
	}
	return chat, nil
}

// chatName returns the supplied name, or one built from the first few
// user names plus a "+K more" suffix.
func (s *ChatService) chatName(ctx context.Context, tx repositories.Store, name *string, userIDs []int64) (string, error) {
	if name != nil && strings.TrimSpace(*name) != "" {
		return strings.TrimSpace(*name), nil
	}
	preview := userIDs
	if len(preview) > groupNamePreview {
		preview = preview[:groupNamePreview]
	}
	names, err := tx.Users().Names(ctx, preview)
	if err != nil {
		return "", fmt.Errorf("load names: %w", err)
	}
	shown := make([]string, 0, len(preview))
	for _, id := range preview {
		shown = append(shown, displayName(names, id))
	}
	if remaining := len(userIDs) - len(shown); remaining > 0 {
		return fmt.Sprintf("%s +%d more", strings.Join(shown, ", "), remaining), nil
	}
	return strings.Join(shown, ", "), nil
}

func (s *ChatService) details(ctx context.Context, chat models.Chat) (models.ChatDetails, error) {
	participants, err := s.store.Chats().Participants(ctx, []int64{chat.ID})
	if err != nil {
		return models.ChatDetails{}, storeError("load participants", err)
	}
	members := participants[chat.ID]
	if members == nil {
		members = []models.UserRef{}
	}
	return models.ChatDetails{Chat: chat, Members: members}, nil
}

// GetChat returns a chat with its participants.
func (s *ChatService) GetChat(ctx context.Context, chatID, viewerID int64) (models.ChatDetails, error) {
	chat, err := s.loadChat(ctx, s.store, chatID)
	if err != nil {
		return models.ChatDetails{}, err
	}
	if err := s.requireViewer(ctx, chat, viewerID); err != nil {
		return models.ChatDetails{}, err
	}
	return s.details(ctx, chat)
}

// ListChats returns the user's chats, pinned first, each with its unread
// count and last message as the user sees it.
func (s *ChatService) ListChats(ctx context.Context, userID int64, limit, offset int) ([]models.ChatSummary, error) {
	ctx, span := tracer.Start(ctx, "ChatService.ListChats")
	defer span.End()

	if offset < 0 {
		return nil, apperr.Validation("offset must not be negative")
	}
	chats, err := s.store.Chats().ListForUser(ctx, userID, s.clampLimit(limit), offset)
	if err != nil {
		return nil, storeError("list chats", err)
	}
	if len(chats) == 0 {
		return []models.ChatSummary{}, nil
	}

	ids := make([]int64, len(chats))
	for i, c := range chats {
		ids[i] = c.ChatID
	}
	participants, err := s.store.Chats().Participants(ctx, ids)
	if err != nil {
		return nil, storeError("load participants", err)
	}
	last, err := s.store.Messages().LastMessages(ctx, userID, ids)
	if err != nil {
		return nil, storeError("load last messages", err)
	}

	for i := range chats {
		members := make([]models.UserRef, 0, len(participants[chats[i].ChatID]))
		for _, m := range participants[chats[i].ChatID] {
			if m.UserID != userID {
				members = append(members, m)
			}
		}
		chats[i].Members = members
		if row, ok := last[chats[i].ChatID]; ok && !row.Deleted {
			lm := row.LastMessage
			chats[i].LastMessage = &lm
		}
	}
	return chats, nil
}

// PinChat pins or unpins a chat for one member.
func (s *ChatService) PinChat(ctx context.Context, chatID, userID int64, pinned bool) error {
	if err := s.store.Chats().SetPinned(ctx, chatID, userID, pinned); err != nil {
		return storeError("pin chat", err)
	}
	return nil
}

// Contacts lists the users the caller shares a chat with.
func (s *ChatService) Contacts(ctx context.Context, userID int64) ([]models.UserRef, error) {
	contacts, err := s.store.Chats().Contacts(ctx, userID)
	if err != nil {
		return nil, storeError("list contacts", err)
	}
	if contacts == nil {
		contacts = []models.UserRef{}
	}
	return contacts, nil
}
