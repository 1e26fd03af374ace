package services

import (
	"context"
	"strings"
	"time"

	"chat-engine/internal/apperr"
	"chat-engine/internal/models"
	"chat-engine/internal/repositories"
)

// ScheduleService manages messages queued for later delivery. Delivery
// itself goes through ChatService.SendMessage.
type ScheduleService struct {
	store repositories.Store
	now   func() time.Time
}

func NewScheduleService(store repositories.Store) *ScheduleService {
	return &ScheduleService{store: store, now: time.Now}
}

type ScheduleUpdate struct {
	ID       int64
	SenderID int64
	Body     *string
	At       *time.Time
}

func (s *ScheduleService) ScheduleMessage(ctx context.Context, chatID, senderID int64, body string, at time.Time) (models.Schedule, error) {
	if strings.TrimSpace(body) == "" {
		return models.Schedule{}, apperr.Validation("message is required")
	}
	if !at.After(s.now()) {
		return models.Schedule{}, apperr.Validation("scheduled time must be in the future")
	}
	if _, err := s.store.Chats().GetChat(ctx, chatID); err != nil {
		return models.Schedule{}, storeError("load chat", err)
	}
	member, err := s.store.Chats().IsMember(ctx, chatID, senderID)
	if err != nil {
		return models.Schedule{}, storeError("check membership", err)
	}
	if !member {
		return models.Schedule{}, apperr.Forbidden("not a member of this chat")
	}

	sched, err := s.store.Schedules().Create(ctx, chatID, senderID, body, at.UTC())
	if err != nil {
		return models.Schedule{}, storeError("create schedule", err)
	}
	return sched, nil
}

func (s *ScheduleService) ListSchedules(ctx context.Context, chatID, senderID int64) ([]models.Schedule, error) {
	out, err := s.store.Schedules().ListBySender(ctx, chatID, senderID)
	if err != nil {
		return nil, storeError("list schedules", err)
	}
	if out == nil {
		out = []models.Schedule{}
	}
	return out, nil
}

// UpdateSchedule edits a schedule that is still pending.
func (s *ScheduleService) UpdateSchedule(ctx context.Context, in ScheduleUpdate) (models.Schedule, error) {
	if in.Body == nil && in.At == nil {
		return models.Schedule{}, apperr.Validation("nothing to update")
	}
	if in.Body != nil && strings.TrimSpace(*in.Body) == "" {
		return models.Schedule{}, apperr.Validation("message is required")
	}
	if in.At != nil {
		if !in.At.After(s.now()) {
			return models.Schedule{}, apperr.Validation("scheduled time must be in the future")
		}
		utc := in.At.UTC()
		in.At = &utc
	}
	sched, err := s.store.Schedules().UpdatePending(ctx, in.ID, in.SenderID, in.Body, in.At)
	if err != nil {
		return models.Schedule{}, storeError("update schedule", err)
	}
	return sched, nil
}

func (s *ScheduleService) CancelSchedule(ctx context.Context, id, senderID int64) error {
	if err := s.store.Schedules().Delete(ctx, id, senderID); err != nil {
		return storeError("cancel schedule", err)
	}
	return nil
}
