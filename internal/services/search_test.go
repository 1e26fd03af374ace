package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-engine/internal/apperr"
)

func TestSearchMessagesPagesWithCursor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	chatID := f.single(t, 1, 2)
	pie := f.send(t, chatID, 1, "apple pie")
	f.send(t, chatID, 2, "banana")
	tart := f.send(t, chatID, 2, "Apple tart")
	juice := f.send(t, chatID, 1, "apple juice")

	first, err := f.svc.SearchMessages(ctx, SearchRequest{ChatID: chatID, ViewerID: 1, Query: "apple", Limit: 2})
	require.NoError(t, err)
	require.Len(t, first.Data, 2)
	assert.Equal(t, juice.ID, first.Data[0].ID)
	assert.Equal(t, tart.ID, first.Data[1].ID)
	require.NotNil(t, first.NextCursor)

	second, err := f.svc.SearchMessages(ctx, SearchRequest{ChatID: chatID, ViewerID: 1, Query: "apple", Limit: 2, Cursor: *first.NextCursor})
	require.NoError(t, err)
	require.Len(t, second.Data, 1)
	assert.Equal(t, pie.ID, second.Data[0].ID)
	assert.Nil(t, second.NextCursor)
}

func TestSearchMessagesSkipsDeleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	chatID := f.single(t, 1, 2)
	msg := f.send(t, chatID, 2, "hidden apple")
	_, err := f.svc.DeleteMessages(ctx, DeleteRequest{ChatID: chatID, ActorID: 1, Action: "self", MessageIDs: []int64{msg.ID}})
	require.NoError(t, err)

	page, err := f.svc.SearchMessages(ctx, SearchRequest{ChatID: chatID, ViewerID: 1, Query: "apple"})
	require.NoError(t, err)
	assert.Empty(t, page.Data)
	assert.NotNil(t, page.Data)

	page, err = f.svc.SearchMessages(ctx, SearchRequest{ChatID: chatID, ViewerID: 2, Query: "apple"})
	require.NoError(t, err)
	assert.Len(t, page.Data, 1)
}

func TestSearchMessagesValidation(t *testing.T) {
	f := newFixture(t)
	chatID := f.single(t, 1, 2)

	_, err := f.svc.SearchMessages(context.Background(), SearchRequest{ChatID: chatID, ViewerID: 1, Query: "  "})
	requireKind(t, err, apperr.KindValidation)

	_, err = f.svc.SearchMessages(context.Background(), SearchRequest{ChatID: chatID, ViewerID: 1, Query: "x", Cursor: "not-a-cursor"})
	requireKind(t, err, apperr.KindValidation)

	_, err = f.svc.SearchMessages(context.Background(), SearchRequest{ChatID: chatID, ViewerID: 4, Query: "x"})
	requireKind(t, err, apperr.KindForbidden)
}
