package services

import (
	"context"

	"chat-engine/internal/models"
)

const (
	textDeletedBySelf     = "You deleted this message"
	textDeletedForAllBy   = "You deleted this message for everyone"
	textDeletedForAllSeen = "This message was deleted"
)

func deleteText(action models.DeleteAction, viewerIsSender bool) string {
	switch action {
	case models.DeleteSelf:
		return textDeletedBySelf
	case models.DeleteEveryone:
		if viewerIsSender {
			return textDeletedForAllBy
		}
		return textDeletedForAllSeen
	}
	return ""
}

// render applies the viewer's overlay and resolves replies, system events
// and read state for the whole page with one query per concern.
func (s *ChatService) render(ctx context.Context, chat models.Chat, viewerID int64, rows []models.MessageRow) ([]models.ChatMessage, error) {
	out := make([]models.ChatMessage, 0, len(rows))
	if len(rows) == 0 {
		return out, nil
	}

	var replyIDs, systemIDs, userIDs []int64
	for _, r := range rows {
		if r.ReplyMessageID != nil {
			replyIDs = append(replyIDs, *r.ReplyMessageID)
		}
		if r.Kind == models.KindSystem {
			systemIDs = append(systemIDs, r.ID)
		} else {
			userIDs = append(userIDs, r.ID)
		}
	}

	replies, err := s.store.Messages().ReplyTargets(ctx, viewerID, uniqueIDs(replyIDs))
	if err != nil {
		return nil, storeError("load reply targets", err)
	}
	systemEvents, err := s.store.Messages().SystemEvents(ctx, systemIDs)
	if err != nil {
		return nil, storeError("load system events", err)
	}

	var (
		eligible []int64
		pairs    []models.ReadPair
	)
	if chat.Type == models.ChatBroadcast {
		if eligible, err = s.store.Chats().RecipientIDs(ctx, chat.ID); err != nil {
			return nil, storeError("load recipients", err)
		}
		if pairs, err = s.store.Receipts().ChildReaders(ctx, userIDs); err != nil {
			return nil, storeError("load receipts", err)
		}
	} else {
		if eligible, err = s.store.Chats().MemberIDs(ctx, chat.ID); err != nil {
			return nil, storeError("load members", err)
		}
		if pairs, err = s.store.Receipts().Readers(ctx, userIDs); err != nil {
			return nil, storeError("load receipts", err)
		}
	}
	eligible = sortedIDs(eligible)
	readers := make(map[int64]map[int64]bool, len(userIDs))
	for _, p := range pairs {
		if readers[p.MessageID] == nil {
			readers[p.MessageID] = make(map[int64]bool)
		}
		readers[p.MessageID][p.UserID] = true
	}

	nameIDs := append([]int64(nil), eligible...)
	for _, ev := range systemEvents {
		nameIDs = append(nameIDs, ev.Metadata.ActorID)
		nameIDs = append(nameIDs, ev.Metadata.TargetUserIDs...)
	}
	names, err := s.store.Users().Names(ctx, uniqueIDs(nameIDs))
	if err != nil {
		return nil, storeError("load names", err)
	}

	for _, r := range rows {
		body := r.Body
		msg := models.ChatMessage{
			ID:             r.ID,
			ChatID:         r.ChatID,
			Kind:           r.Kind,
			Body:           &body,
			Attachments:    r.Attachments,
			SenderID:       r.SenderID,
			CreatedAt:      r.CreatedAt,
			SenderName:     r.SenderName,
			ReplyMessageID: r.ReplyMessageID,
			DeleteAction:   r.DeleteAction,
			ReadBy:         []string{},
			UnreadBy:       []string{},
		}
		if msg.Attachments == nil {
			msg.Attachments = models.Attachments{}
		}
		if r.DeleteAction != nil {
			text := deleteText(*r.DeleteAction, r.SenderID == viewerID)
			msg.Body = nil
			msg.Attachments = nil
			msg.DeleteText = &text
		}

		if r.ReplyMessageID != nil {
			if target, ok := replies[*r.ReplyMessageID]; ok {
				if target.Deleted {
					target.Body = nil
					target.Attachments = nil
				}
				msg.ReplyData = &target
			}
		}

		if r.Kind == models.KindSystem {
			if ev, ok := systemEvents[r.ID]; ok {
				data := &models.SystemData{
					Event: ev.Event,
					Actor: models.UserRef{UserID: ev.Metadata.ActorID, Name: displayName(names, ev.Metadata.ActorID)},
				}
				for _, id := range ev.Metadata.TargetUserIDs {
					data.Targets = append(data.Targets, models.UserRef{UserID: id, Name: displayName(names, id)})
				}
				msg.SystemData = data
			}
			msg.ReadStatus = models.StatusRead
			msg.SeenAll = true
			out = append(out, msg)
			continue
		}

		for _, uid := range eligible {
			if uid == r.SenderID {
				continue
			}
			if readers[r.ID][uid] {
				msg.ReadBy = append(msg.ReadBy, displayName(names, uid))
			} else {
				msg.UnreadBy = append(msg.UnreadBy, displayName(names, uid))
			}
		}
		msg.SeenAll = len(msg.UnreadBy) == 0
		msg.ReadStatus = models.StatusUnread
		if msg.SeenAll {
			msg.ReadStatus = models.StatusRead
		}
		out = append(out, msg)
	}
	return out, nil
}
