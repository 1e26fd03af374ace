package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"

	"chat-engine/internal/apperr"
	"chat-engine/internal/models"
	"chat-engine/internal/repositories"
)

type SearchRequest struct {
	ChatID   int64
	ViewerID int64
	Query    string
	Limit    int
	Cursor   string
}

// SearchMessages runs full text search over the messages the viewer can see.
// Hits are ordered newest first; NextCursor continues after the last hit.
func (s *ChatService) SearchMessages(ctx context.Context, req SearchRequest) (models.SearchPage, error) {
	ctx, span := tracer.Start(ctx, "ChatService.SearchMessages")
	defer span.End()

	text := strings.TrimSpace(req.Query)
	if text == "" {
		return models.SearchPage{}, apperr.Validation("search query is required")
	}
	var after *repositories.SearchCursor
	if req.Cursor != "" {
		c, err := decodeSearchCursor(req.Cursor)
		if err != nil {
			return models.SearchPage{}, apperr.Validation("invalid cursor")
		}
		after = &c
	}
	limit := s.clampLimit(req.Limit)

	chat, err := s.loadChat(ctx, s.store, req.ChatID)
	if err != nil {
		return models.SearchPage{}, err
	}
	if err := s.requireViewer(ctx, chat, req.ViewerID); err != nil {
		return models.SearchPage{}, err
	}

	hits, err := s.store.Messages().Search(ctx, repositories.SearchQuery{
		ChatID:   chat.ID,
		ViewerID: req.ViewerID,
		Text:     text,
		Limit:    limit + 1,
		After:    after,
	})
	if err != nil {
		return models.SearchPage{}, storeError("search messages", err)
	}

	page := models.SearchPage{Data: hits}
	if page.Data == nil {
		page.Data = []models.SearchHit{}
	}
	if len(hits) > limit {
		page.Data = hits[:limit]
		last := page.Data[limit-1]
		next := encodeSearchCursor(repositories.SearchCursor{CreatedAt: last.CreatedAt, Rank: last.Rank, ID: last.ID})
		page.NextCursor = &next
	}
	return page, nil
}

func encodeSearchCursor(c repositories.SearchCursor) string {
	raw, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(raw)
}

func decodeSearchCursor(s string) (repositories.SearchCursor, error) {
	var c repositories.SearchCursor
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return c, err
	}
	if err := json.Unmarshal(raw, &c); err != nil {
		return c, err
	}
	if c.ID <= 0 || c.CreatedAt.IsZero() {
		return c, apperr.Validation("invalid cursor")
	}
	return c, nil
}
