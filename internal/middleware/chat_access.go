package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chat-engine/internal/models"
	"chat-engine/internal/repositories"
)

// ChatInfoSource resolves the access view of a chat, usually through the
// redis cache.
type ChatInfoSource interface {
	ChatInfo(ctx context.Context, chatID int64) (models.ChatInfo, error)
}

// AccessOption tightens the membership check.
type AccessOption func(*accessRules)

type accessRules struct {
	broadcastCreatorOnly bool
}

// BroadcastCreatorOnly lets only the creator through on broadcast chats.
func BroadcastCreatorOnly() AccessOption {
	return func(r *accessRules) { r.broadcastCreatorOnly = true }
}

// ChatAccess gates routes with a :chat_id parameter. It must run after
// Identity and stores the resolved info as "chatInfo".
func ChatAccess(source ChatInfoSource, log *zap.Logger, opts ...AccessOption) gin.HandlerFunc {
	var rules accessRules
	for _, opt := range opts {
		opt(&rules)
	}
	return func(c *gin.Context) {
		chatID, err := strconv.ParseInt(c.Param("chat_id"), 10, 64)
		if err != nil || chatID <= 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
			return
		}
		userID := c.GetInt64("userID")

		info, err := source.ChatInfo(c.Request.Context(), chatID)
		if errors.Is(err, repositories.ErrChatNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "chat not found"})
			return
		}
		if err != nil {
			log.Error("load chat info failed", zap.Int64("chat_id", chatID), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to load chat"})
			return
		}
		if !info.HasMember(userID) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "not a member of this chat"})
			return
		}
		if rules.broadcastCreatorOnly && info.Type == models.ChatBroadcast && info.CreatedBy != userID {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "only the creator can post to a broadcast"})
			return
		}

		c.Set("chatInfo", info)
		c.Next()
	}
}
