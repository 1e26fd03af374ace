package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"chat-engine/internal/models"
	"chat-engine/internal/observability"
)

// ChatReader is the part of the chat repository the loader needs.
type ChatReader interface {
	GetChat(ctx context.Context, chatID int64) (models.Chat, error)
	MemberIDs(ctx context.Context, chatID int64) ([]int64, error)
	RecipientIDs(ctx context.Context, chatID int64) ([]int64, error)
}

// Loader builds chat info straight from the store.
type Loader struct {
	chats ChatReader
}

func NewLoader(chats ChatReader) *Loader {
	return &Loader{chats: chats}
}

// ChatInfo loads the chat and its access set. Broadcast recipients count as
// members so they can reach the broadcast chat's history.
func (l *Loader) ChatInfo(ctx context.Context, chatID int64) (models.ChatInfo, error) {
	chat, err := l.chats.GetChat(ctx, chatID)
	if err != nil {
		return models.ChatInfo{}, err
	}
	members, err := l.chats.MemberIDs(ctx, chatID)
	if err != nil {
		return models.ChatInfo{}, fmt.Errorf("load members: %w", err)
	}
	if chat.Type == models.ChatBroadcast {
		recipients, err := l.chats.RecipientIDs(ctx, chatID)
		if err != nil {
			return models.ChatInfo{}, fmt.Errorf("load recipients: %w", err)
		}
		members = append(members, recipients...)
	}
	return models.ChatInfo{
		ChatID:    chat.ID,
		Type:      chat.Type,
		CreatedBy: chat.CreatedBy,
		Members:   members,
	}, nil
}

// ChatInfoCache is a read-through redis cache in front of a Loader.
type ChatInfoCache struct {
	rdb    redis.Cmdable
	loader *Loader
	ttl    time.Duration
	log    *zap.Logger
}

func NewChatInfoCache(rdb redis.Cmdable, loader *Loader, ttl time.Duration, log *zap.Logger) *ChatInfoCache {
	return &ChatInfoCache{rdb: rdb, loader: loader, ttl: ttl, log: log}
}

func chatInfoKey(chatID int64) string {
	return fmt.Sprintf("chat:info:%d", chatID)
}

// ChatInfo serves from redis when possible. Redis errors degrade to the loader.
func (c *ChatInfoCache) ChatInfo(ctx context.Context, chatID int64) (models.ChatInfo, error) {
	key := chatInfoKey(chatID)
	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var info models.ChatInfo
		if jsonErr := json.Unmarshal(raw, &info); jsonErr == nil {
			observability.IncCacheLookup("hit")
			return info, nil
		}
		c.log.Warn("discarding corrupt chat info", zap.Int64("chat_id", chatID))
	case errors.Is(err, redis.Nil):
	default:
		c.log.Warn("chat info cache unavailable", zap.Int64("chat_id", chatID), zap.Error(err))
	}
	observability.IncCacheLookup("miss")

	info, err := c.loader.ChatInfo(ctx, chatID)
	if err != nil {
		return models.ChatInfo{}, err
	}
	data, err := json.Marshal(info)
	if err != nil {
		return info, nil
	}
	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.log.Warn("chat info cache write failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
	return info, nil
}
