package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"chat-engine/internal/models"
)

type chatReaderMock struct {
	mock.Mock
}

func (m *chatReaderMock) GetChat(ctx context.Context, chatID int64) (models.Chat, error) {
	args := m.Called(ctx, chatID)
	var chat models.Chat
	if val := args.Get(0); val != nil {
		chat = val.(models.Chat)
	}
	return chat, args.Error(1)
}

func (m *chatReaderMock) MemberIDs(ctx context.Context, chatID int64) ([]int64, error) {
	args := m.Called(ctx, chatID)
	var ids []int64
	if val := args.Get(0); val != nil {
		ids = val.([]int64)
	}
	return ids, args.Error(1)
}

func (m *chatReaderMock) RecipientIDs(ctx context.Context, chatID int64) ([]int64, error) {
	args := m.Called(ctx, chatID)
	var ids []int64
	if val := args.Get(0); val != nil {
		ids = val.([]int64)
	}
	return ids, args.Error(1)
}

func newTestCache(t *testing.T, reader ChatReader) (*ChatInfoCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewChatInfoCache(rdb, NewLoader(reader), time.Hour, zap.NewNop()), mr
}

func TestLoaderIncludesBroadcastRecipients(t *testing.T) {
	reader := new(chatReaderMock)
	reader.On("GetChat", mock.Anything, int64(5)).Return(models.Chat{ID: 5, Type: models.ChatBroadcast, CreatedBy: 1}, nil)
	reader.On("MemberIDs", mock.Anything, int64(5)).Return([]int64{1}, nil)
	reader.On("RecipientIDs", mock.Anything, int64(5)).Return([]int64{2, 3}, nil)

	info, err := NewLoader(reader).ChatInfo(context.Background(), 5)

	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, info.Members)
	assert.True(t, info.HasMember(3))
	assert.False(t, info.HasMember(4))
}

func TestCacheReadsThroughOnce(t *testing.T) {
	reader := new(chatReaderMock)
	reader.On("GetChat", mock.Anything, int64(9)).Return(models.Chat{ID: 9, Type: models.ChatGroup, CreatedBy: 1}, nil).Once()
	reader.On("MemberIDs", mock.Anything, int64(9)).Return([]int64{1, 2, 3}, nil).Once()
	cache, mr := newTestCache(t, reader)

	first, err := cache.ChatInfo(context.Background(), 9)
	require.NoError(t, err)
	second, err := cache.ChatInfo(context.Background(), 9)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.True(t, mr.Exists("chat:info:9"))
	assert.Equal(t, time.Hour, mr.TTL("chat:info:9"))
	reader.AssertExpectations(t)
}

func TestCacheFallsBackWhenRedisDown(t *testing.T) {
	reader := new(chatReaderMock)
	reader.On("GetChat", mock.Anything, int64(4)).Return(models.Chat{ID: 4, Type: models.ChatSingle}, nil)
	reader.On("MemberIDs", mock.Anything, int64(4)).Return([]int64{1, 2}, nil)
	cache, mr := newTestCache(t, reader)
	mr.Close()

	info, err := cache.ChatInfo(context.Background(), 4)

	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, info.Members)
}
