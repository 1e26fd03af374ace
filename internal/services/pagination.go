package services

import (
	"context"

	"chat-engine/internal/apperr"
	"chat-engine/internal/models"
	"chat-engine/internal/repositories"
)

// PageRequest asks for one page of history. At most one cursor may be set.
type PageRequest struct {
	ChatID   int64
	ViewerID int64
	Limit    int
	BeforeID *int64
	AfterID  *int64
	AroundID *int64
}

// GetMessages returns a page ordered newest first, rendered for the viewer.
func (s *ChatService) GetMessages(ctx context.Context, req PageRequest) (models.MessagePage, error) {
	ctx, span := tracer.Start(ctx, "ChatService.GetMessages")
	defer span.End()

	cursors := 0
	for _, c := range []*int64{req.BeforeID, req.AfterID, req.AroundID} {
		if c != nil {
			cursors++
		}
	}
	if cursors > 1 {
		return models.MessagePage{}, apperr.Validation("only one of beforeId, afterId, aroundId may be set")
	}
	limit := s.clampLimit(req.Limit)

	chat, err := s.loadChat(ctx, s.store, req.ChatID)
	if err != nil {
		return models.MessagePage{}, err
	}
	if err := s.requireViewer(ctx, chat, req.ViewerID); err != nil {
		return models.MessagePage{}, err
	}

	base := repositories.MessageQuery{ChatID: chat.ID, ViewerID: req.ViewerID}
	var (
		rows               []models.MessageRow
		hasOlder, hasNewer bool
	)
	switch {
	case req.AroundID != nil:
		rows, hasOlder, hasNewer, err = s.around(ctx, base, *req.AroundID, limit)
	case req.AfterID != nil:
		base.AfterID = req.AfterID
		rows, hasNewer, err = s.fetch(ctx, base, limit)
	case req.BeforeID != nil:
		base.BeforeID = req.BeforeID
		rows, hasOlder, err = s.fetch(ctx, base, limit)
	default:
		rows, hasOlder, err = s.fetch(ctx, base, limit)
	}
	if err != nil {
		return models.MessagePage{}, err
	}

	data, err := s.render(ctx, chat, req.ViewerID, rows)
	if err != nil {
		return models.MessagePage{}, err
	}
	page := models.MessagePage{
		Data:   data,
		Paging: models.PagingInfo{HasOlder: hasOlder, HasNewer: hasNewer, Limit: limit},
	}
	if len(data) > 0 {
		newest, oldest := data[0].ID, data[len(data)-1].ID
		page.Paging.NewestID = &newest
		page.Paging.OldestID = &oldest
	}
	return page, nil
}

// around joins the newer half, the target and the older half.
func (s *ChatService) around(ctx context.Context, base repositories.MessageQuery, aroundID int64, limit int) ([]models.MessageRow, bool, bool, error) {
	newerQ := base
	newerQ.AfterID = &aroundID
	newer, hasNewer, err := s.fetch(ctx, newerQ, (limit+1)/2)
	if err != nil {
		return nil, false, false, err
	}

	targetQ := base
	targetQ.EqualID = &aroundID
	target, _, err := s.fetch(ctx, targetQ, 1)
	if err != nil {
		return nil, false, false, err
	}

	olderQ := base
	olderQ.BeforeID = &aroundID
	older, hasOlder, err := s.fetch(ctx, olderQ, limit/2)
	if err != nil {
		return nil, false, false, err
	}

	rows := make([]models.MessageRow, 0, len(newer)+len(target)+len(older))
	rows = append(rows, newer...)
	rows = append(rows, target...)
	rows = append(rows, older...)
	return rows, hasOlder, hasNewer, nil
}

// fetch reads limit+1 rows to learn whether more exist past the window and
// returns at most limit rows, newest first. A zero limit only checks whether more rows exist.
func (s *ChatService) fetch(ctx context.Context, q repositories.MessageQuery, limit int) ([]models.MessageRow, bool, error) {
	if limit < 0 {
		return nil, false, nil
	}
	q.Limit = limit + 1
	rows, err := s.store.Messages().List(ctx, q)
	if err != nil {
		return nil, false, storeError("list messages", err)
	}
	more := len(rows) > limit
	if more {
		rows = rows[:limit]
	}
	if q.AfterID != nil {
		for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
			rows[i], rows[j] = rows[j], rows[i]
		}
	}
	return rows, more, nil
}
