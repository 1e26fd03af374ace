package services

import (
	"context"
	"errors"
	"sort"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"chat-engine/internal/apperr"
	"chat-engine/internal/config"
	"chat-engine/internal/events"
	"chat-engine/internal/models"
	"chat-engine/internal/notify"
	"chat-engine/internal/objectstore"
	"chat-engine/internal/repositories"
)

var tracer = otel.Tracer("chat-engine/services")

// ChatService implements provisioning, sending, history, visibility and
// read state over a Store. It keeps no state between calls.
type ChatService struct {
	store      repositories.Store
	uploader   objectstore.Uploader
	bus        *events.Bus
	dispatcher *notify.Dispatcher
	paging     config.PagingConfig
	log        *zap.Logger
}

func NewChatService(
	store repositories.Store,
	uploader objectstore.Uploader,
	bus *events.Bus,
	dispatcher *notify.Dispatcher,
	paging config.PagingConfig,
	log *zap.Logger,
) *ChatService {
	return &ChatService{
		store:      store,
		uploader:   uploader,
		bus:        bus,
		dispatcher: dispatcher,
		paging:     paging,
		log:        log,
	}
}

// storeError maps repository sentinels to caller-facing kinds and wraps
// everything else as internal.
func storeError(op string, err error) error {
	switch {
	case errors.Is(err, repositories.ErrChatNotFound):
		return apperr.NotFound("chat not found")
	case errors.Is(err, repositories.ErrMessageNotFound):
		return apperr.NotFound("message not found")
	case errors.Is(err, repositories.ErrScheduleNotFound):
		return apperr.NotFound("schedule not found")
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	return apperr.Internal(op, err)
}

func (s *ChatService) loadChat(ctx context.Context, store repositories.Store, chatID int64) (models.Chat, error) {
	chat, err := store.Chats().GetChat(ctx, chatID)
	if err != nil {
		return models.Chat{}, storeError("load chat", err)
	}
	return chat, nil
}

// requireMember fails with Forbidden unless userID is a member of the chat.
func (s *ChatService) requireMember(ctx context.Context, store repositories.Store, chatID, userID int64) error {
	ok, err := store.Chats().IsMember(ctx, chatID, userID)
	if err != nil {
		return storeError("check membership", err)
	}
	if !ok {
		return apperr.Forbidden("not a member of this chat")
	}
	return nil
}

// requireViewer also admits broadcast recipients.
func (s *ChatService) requireViewer(ctx context.Context, chat models.Chat, userID int64) error {
	err := s.requireMember(ctx, s.store, chat.ID, userID)
	if err == nil || chat.Type != models.ChatBroadcast || apperr.KindOf(err) != apperr.KindForbidden {
		return err
	}
	recipients, rerr := s.store.Chats().RecipientIDs(ctx, chat.ID)
	if rerr != nil {
		return storeError("load recipients", rerr)
	}
	if containsID(recipients, userID) {
		return nil
	}
	return err
}

func (s *ChatService) clampLimit(limit int) int {
	if limit <= 0 {
		return s.paging.DefaultLimit
	}
	if limit > s.paging.MaxLimit {
		return s.paging.MaxLimit
	}
	return limit
}

// displayName falls back to the decimal id for users the store does not know.
func displayName(names map[int64]string, id int64) string {
	if name, ok := names[id]; ok && name != "" {
		return name
	}
	return strconv.FormatInt(id, 10)
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// uniqueIDs keeps first occurrences in order.
func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func sortedIDs(ids []int64) []int64 {
	out := append([]int64(nil), ids...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
