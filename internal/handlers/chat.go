package handlers

import (
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chat-engine/internal/models"
	"chat-engine/internal/objectstore"
	"chat-engine/internal/services"
	"chat-engine/internal/telemetry"
)

const (
	maxUploadFiles    = 10
	maxUploadFileSize = 25 << 20
)

// ChatService is the engine surface used by the chat routes.
type ChatService interface {
	CreateChat(ctx context.Context, in services.CreateChatInput) (models.ChatDetails, error)
	GetChat(ctx context.Context, chatID, viewerID int64) (models.ChatDetails, error)
	ListChats(ctx context.Context, userID int64, limit, offset int) ([]models.ChatSummary, error)
	Contacts(ctx context.Context, userID int64) ([]models.UserRef, error)
	PinChat(ctx context.Context, chatID, userID int64, pinned bool) error
	SendMessage(ctx context.Context, in services.SendInput) (models.SentMessage, error)
	GetMessages(ctx context.Context, req services.PageRequest) (models.MessagePage, error)
	SearchMessages(ctx context.Context, req services.SearchRequest) (models.SearchPage, error)
	DeleteMessages(ctx context.Context, req services.DeleteRequest) (models.DeleteResult, error)
	MarkAsRead(ctx context.Context, chatID, userID int64) (*int64, error)
	CheckStatus(ctx context.Context, chatID, messageID, viewerID int64) ([]models.MessageStatus, error)
}

// ChatHandler serves chat, message, visibility and read-state endpoints.
type ChatHandler struct {
	svc   ChatService
	audit *telemetry.AuditEmitter
	log   *zap.Logger
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(svc ChatService, audit *telemetry.AuditEmitter, log *zap.Logger) *ChatHandler {
	return &ChatHandler{svc: svc, audit: audit, log: log}
}

// CreateChat creates a single, group or broadcast chat.
func (h *ChatHandler) CreateChat(c *gin.Context) {
	var req struct {
		Type      string  `json:"type" binding:"required"`
		MemberIDs []int64 `json:"member_ids" binding:"required"`
		Name      *string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt64("userID")
	chat, err := h.svc.CreateChat(c.Request.Context(), services.CreateChatInput{
		CreatorID: userID,
		MemberIDs: req.MemberIDs,
		Type:      req.Type,
		Name:      req.Name,
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	audit(c, h.audit, "chat created chat_id=%d type=%s", chat.ID, chat.Type)
	c.JSON(http.StatusCreated, gin.H{"data": chat})
}

// ListChats returns the caller's chats, pinned first.
func (h *ChatHandler) ListChats(c *gin.Context) {
	limit, ok := queryInt(c, "limit")
	offset, ok2 := queryInt(c, "offset")
	if !ok || !ok2 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit or offset"})
		return
	}

	chats, err := h.svc.ListChats(c.Request.Context(), c.GetInt64("userID"), limit, offset)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": chats})
}

// ListContacts returns the users the caller shares any chat with.
func (h *ChatHandler) ListContacts(c *gin.Context) {
	contacts, err := h.svc.Contacts(c.Request.Context(), c.GetInt64("userID"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": contacts})
}

func (h *ChatHandler) GetChat(c *gin.Context) {
	chatID, ok := pathID(c, "chat_id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return
	}

	chat, err := h.svc.GetChat(c.Request.Context(), chatID, c.GetInt64("userID"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": chat})
}

func (h *ChatHandler) PinChat(c *gin.Context) {
	chatID, ok := pathID(c, "chat_id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return
	}
	var req struct {
		Pinned *bool `json:"pinned" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.svc.PinChat(c.Request.Context(), chatID, c.GetInt64("userID"), *req.Pinned); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chat_id": chatID, "is_pinned": *req.Pinned})
}

// SendMessage accepts JSON, or multipart/form-data when files are attached.
func (h *ChatHandler) SendMessage(c *gin.Context) {
	chatID, ok := pathID(c, "chat_id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return
	}

	in := services.SendInput{ChatID: chatID, SenderID: c.GetInt64("userID"), Kind: models.KindUser}
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		if err := h.bindMultipart(c, &in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	} else {
		var req struct {
			Message   string `json:"message"`
			ReplyToID *int64 `json:"reply_to_id"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		in.Body = req.Message
		in.ReplyToID = req.ReplyToID
	}

	sent, err := h.svc.SendMessage(c.Request.Context(), in)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	audit(c, h.audit, "message sent chat_id=%d message_id=%d", chatID, sent.ID)
	c.JSON(http.StatusCreated, gin.H{"data": sent})
}

type badRequest string

func (e badRequest) Error() string { return string(e) }

func (h *ChatHandler) bindMultipart(c *gin.Context, in *services.SendInput) error {
	form, err := c.MultipartForm()
	if err != nil {
		return badRequest("invalid multipart form")
	}
	in.Body = c.PostForm("message")
	if raw := c.PostForm("reply_to_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return badRequest("invalid reply_to_id")
		}
		in.ReplyToID = &id
	}

	headers := form.File["files"]
	if len(headers) > maxUploadFiles {
		return badRequest("too many files")
	}
	for _, fh := range headers {
		if fh.Size > maxUploadFileSize {
			return badRequest("file too large: " + fh.Filename)
		}
		data, err := readFile(fh)
		if err != nil {
			return badRequest("unreadable file: " + fh.Filename)
		}
		in.Files = append(in.Files, objectstore.File{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		})
	}
	return nil
}

func readFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, maxUploadFileSize))
}

// GetMessages serves one page of history. At most one of beforeId, afterId
// and aroundId may be given.
func (h *ChatHandler) GetMessages(c *gin.Context) {
	chatID, ok := pathID(c, "chat_id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return
	}
	req := services.PageRequest{ChatID: chatID, ViewerID: c.GetInt64("userID")}
	var valid [4]bool
	req.Limit, valid[0] = queryInt(c, "limit")
	req.BeforeID, valid[1] = optionalID(c, "beforeId")
	req.AfterID, valid[2] = optionalID(c, "afterId")
	req.AroundID, valid[3] = optionalID(c, "aroundId")
	for _, v := range valid {
		if !v {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid paging parameters"})
			return
		}
	}

	page, err := h.svc.GetMessages(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *ChatHandler) SearchMessages(c *gin.Context) {
	chatID, ok := pathID(c, "chat_id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return
	}
	limit, ok := queryInt(c, "limit")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}

	page, err := h.svc.SearchMessages(c.Request.Context(), services.SearchRequest{
		ChatID:   chatID,
		ViewerID: c.GetInt64("userID"),
		Query:    c.Query("q"),
		Limit:    limit,
		Cursor:   c.Query("cursor"),
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// DeleteMessages applies self, everyone or clear_chat.
func (h *ChatHandler) DeleteMessages(c *gin.Context) {
	chatID, ok := pathID(c, "chat_id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return
	}
	var req struct {
		Action     string  `json:"action" binding:"required"`
		MessageIDs []int64 `json:"message_ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.svc.DeleteMessages(c.Request.Context(), services.DeleteRequest{
		ChatID:     chatID,
		ActorID:    c.GetInt64("userID"),
		Action:     req.Action,
		MessageIDs: req.MessageIDs,
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	audit(c, h.audit, "messages deleted chat_id=%d action=%s count=%d", chatID, res.Action, len(res.MessageIDs))
	c.JSON(http.StatusOK, gin.H{"data": res})
}

func (h *ChatHandler) MarkAsRead(c *gin.Context) {
	chatID, ok := pathID(c, "chat_id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return
	}

	last, err := h.svc.MarkAsRead(c.Request.Context(), chatID, c.GetInt64("userID"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chat_id": chatID, "last_read_message_id": last})
}

func (h *ChatHandler) CheckStatus(c *gin.Context) {
	chatID, ok := pathID(c, "chat_id")
	messageID, ok2 := pathID(c, "message_id")
	if !ok || !ok2 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	statuses, err := h.svc.CheckStatus(c.Request.Context(), chatID, messageID, c.GetInt64("userID"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message_id": messageID, "data": statuses})
}
