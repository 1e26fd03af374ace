package services

import (
	"context"
	"fmt"
	"time"

	"chat-engine/internal/apperr"
	"chat-engine/internal/models"
	"chat-engine/internal/observability"
	"chat-engine/internal/repositories"
)

// DeleteRequest hides messages for users without touching the message rows.
type DeleteRequest struct {
	ChatID     int64
	ActorID    int64
	Action     string
	MessageIDs []int64
}

type markKey struct {
	messageID int64
	userID    int64
}

type noticeKey struct {
	userID int64
	chatID int64
}

// deletePlan collects marks and the per-user notices they produce. Fan-out
// copies live in other chats, so notices are grouped by user and chat.
type deletePlan struct {
	action  models.DeleteAction
	actorID int64
	marks   []models.DeleteMark
	seen    map[markKey]bool
	notices map[noticeKey][]int64
	order   []noticeKey
}

func newDeletePlan(action models.DeleteAction, actorID int64) *deletePlan {
	return &deletePlan{
		action:  action,
		actorID: actorID,
		seen:    make(map[markKey]bool),
		notices: make(map[noticeKey][]int64),
	}
}

func (p *deletePlan) mark(messageID, chatID, userID int64) {
	k := markKey{messageID: messageID, userID: userID}
	if p.seen[k] {
		return
	}
	p.seen[k] = true
	p.marks = append(p.marks, models.DeleteMark{
		MessageID: messageID,
		ChatID:    chatID,
		UserID:    userID,
		Action:    p.action,
		DeletedBy: p.actorID,
	})
	p.notify(userID, chatID, messageID)
}

func (p *deletePlan) notify(userID, chatID int64, messageIDs ...int64) {
	n := noticeKey{userID: userID, chatID: chatID}
	if _, ok := p.notices[n]; !ok {
		p.order = append(p.order, n)
		p.notices[n] = []int64{}
	}
	p.notices[n] = append(p.notices[n], messageIDs...)
}

// DeleteMessages applies one delete action. Repeating a request is a no-op
// apart from refreshing the mark timestamps.
func (s *ChatService) DeleteMessages(ctx context.Context, req DeleteRequest) (models.DeleteResult, error) {
	ctx, span := tracer.Start(ctx, "ChatService.DeleteMessages")
	defer span.End()

	action, ok := models.ParseDeleteAction(req.Action)
	if !ok {
		return models.DeleteResult{}, apperr.Validationf("invalid delete action %q", req.Action)
	}
	ids := uniqueIDs(req.MessageIDs)

	chat, err := s.loadChat(ctx, s.store, req.ChatID)
	if err != nil {
		return models.DeleteResult{}, err
	}
	if err := s.requireViewer(ctx, chat, req.ActorID); err != nil {
		return models.DeleteResult{}, err
	}

	plan := newDeletePlan(action, req.ActorID)
	var clearedAt *time.Time
	err = s.store.InTx(ctx, func(tx repositories.Store) error {
		switch action {
		case models.DeleteSelf:
			if err := s.planSelf(ctx, tx, chat, req.ActorID, ids, plan); err != nil {
				return err
			}
		case models.DeleteEveryone:
			if err := s.planEveryone(ctx, tx, chat, ids, plan); err != nil {
				return err
			}
		case models.ClearChat:
			at, err := tx.Visibility().UpsertClearWatermark(ctx, chat.ID, req.ActorID)
			if err != nil {
				return fmt.Errorf("clear chat: %w", err)
			}
			clearedAt = &at
			plan.notify(req.ActorID, chat.ID)
			return nil
		default:
			return apperr.Validationf("invalid delete action %q", action)
		}
		if _, err := tx.Visibility().UpsertDeleteMarks(ctx, plan.marks); err != nil {
			return fmt.Errorf("upsert delete marks: %w", err)
		}
		return nil
	})
	if err != nil {
		return models.DeleteResult{}, storeError("delete messages", err)
	}
	observability.IncDeleteRequest(string(action))

	for _, n := range plan.order {
		s.dispatcher.SendToUsers(ctx, []int64{n.userID}, models.PushDeleteMessage, models.DeleteEvent{
			Action:     action,
			ChatID:     n.chatID,
			DeletedBy:  req.ActorID,
			MessageIDs: plan.notices[n],
		})
	}

	if ids == nil {
		ids = []int64{}
	}
	return models.DeleteResult{
		Action:     action,
		ChatID:     chat.ID,
		MessageIDs: ids,
		Marks:      len(plan.marks),
		ClearedAt:  clearedAt,
	}, nil
}

func (s *ChatService) messagesInChat(ctx context.Context, tx repositories.Store, chatID int64, ids []int64) error {
	if len(ids) == 0 {
		return apperr.Validation("message ids are required")
	}
	found, err := tx.Messages().IDsInChat(ctx, chatID, ids)
	if err != nil {
		return fmt.Errorf("load messages: %w", err)
	}
	if len(found) != len(ids) {
		return apperr.NotFound("message not found")
	}
	return nil
}

// planSelf hides the messages for the actor only. In a broadcast chat the
// actor's fan-out copies are hidden as well.
func (s *ChatService) planSelf(ctx context.Context, tx repositories.Store, chat models.Chat, actorID int64, ids []int64, plan *deletePlan) error {
	if err := s.messagesInChat(ctx, tx, chat.ID, ids); err != nil {
		return err
	}
	for _, id := range ids {
		plan.mark(id, chat.ID, actorID)
	}
	if chat.Type != models.ChatBroadcast {
		return nil
	}
	children, err := tx.Messages().Children(ctx, ids)
	if err != nil {
		return fmt.Errorf("load fan-out copies: %w", err)
	}
	for _, child := range children {
		if child.SenderID == actorID {
			plan.mark(child.ID, child.ChatID, actorID)
		}
	}
	return nil
}

// planEveryone hides the messages for every member. In a broadcast chat
// both participants of each fan-out thread lose their copy too.
func (s *ChatService) planEveryone(ctx context.Context, tx repositories.Store, chat models.Chat, ids []int64, plan *deletePlan) error {
	if err := s.messagesInChat(ctx, tx, chat.ID, ids); err != nil {
		return err
	}

	members, err := tx.Chats().MemberIDs(ctx, chat.ID)
	if err != nil {
		return fmt.Errorf("load members: %w", err)
	}
	for _, id := range ids {
		for _, uid := range members {
			plan.mark(id, chat.ID, uid)
		}
	}
	if chat.Type != models.ChatBroadcast {
		return nil
	}

	children, err := tx.Messages().Children(ctx, ids)
	if err != nil {
		return fmt.Errorf("load fan-out copies: %w", err)
	}
	participants := make(map[int64][]int64)
	for _, child := range children {
		if _, ok := participants[child.ChatID]; !ok {
			ids, err := tx.Chats().MemberIDs(ctx, child.ChatID)
			if err != nil {
				return fmt.Errorf("load thread members: %w", err)
			}
			participants[child.ChatID] = ids
		}
		for _, uid := range participants[child.ChatID] {
			plan.mark(child.ID, child.ChatID, uid)
		}
	}
	return nil
}
