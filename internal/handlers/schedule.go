package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chat-engine/internal/models"
	"chat-engine/internal/services"
	"chat-engine/internal/telemetry"
)

type ScheduleService interface {
	ScheduleMessage(ctx context.Context, chatID, senderID int64, body string, at time.Time) (models.Schedule, error)
	ListSchedules(ctx context.Context, chatID, senderID int64) ([]models.Schedule, error)
	UpdateSchedule(ctx context.Context, in services.ScheduleUpdate) (models.Schedule, error)
	CancelSchedule(ctx context.Context, id, senderID int64) error
}

// ScheduleHandler manages messages queued for later delivery.
type ScheduleHandler struct {
	svc   ScheduleService
	audit *telemetry.AuditEmitter
	log   *zap.Logger
}

func NewScheduleHandler(svc ScheduleService, audit *telemetry.AuditEmitter, log *zap.Logger) *ScheduleHandler {
	return &ScheduleHandler{svc: svc, audit: audit, log: log}
}

// Create expects scheduled_at in RFC3339.
func (h *ScheduleHandler) Create(c *gin.Context) {
	chatID, ok := pathID(c, "chat_id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return
	}
	var req struct {
		Message     string    `json:"message" binding:"required"`
		ScheduledAt time.Time `json:"scheduled_at" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sched, err := h.svc.ScheduleMessage(c.Request.Context(), chatID, c.GetInt64("userID"), req.Message, req.ScheduledAt)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	audit(c, h.audit, "message scheduled chat_id=%d schedule_id=%d", chatID, sched.ID)
	c.JSON(http.StatusCreated, gin.H{"data": sched})
}

func (h *ScheduleHandler) List(c *gin.Context) {
	chatID, ok := pathID(c, "chat_id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return
	}

	list, err := h.svc.ListSchedules(c.Request.Context(), chatID, c.GetInt64("userID"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list})
}

func (h *ScheduleHandler) Update(c *gin.Context) {
	id, ok := pathID(c, "schedule_id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid schedule id"})
		return
	}
	var req struct {
		Message     *string    `json:"message"`
		ScheduledAt *time.Time `json:"scheduled_at"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sched, err := h.svc.UpdateSchedule(c.Request.Context(), services.ScheduleUpdate{
		ID:       id,
		SenderID: c.GetInt64("userID"),
		Body:     req.Message,
		At:       req.ScheduledAt,
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	audit(c, h.audit, "schedule updated schedule_id=%d", id)
	c.JSON(http.StatusOK, gin.H{"data": sched})
}

func (h *ScheduleHandler) Cancel(c *gin.Context) {
	id, ok := pathID(c, "schedule_id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid schedule id"})
		return
	}

	if err := h.svc.CancelSchedule(c.Request.Context(), id, c.GetInt64("userID")); err != nil {
		respondError(c, h.log, err)
		return
	}

	audit(c, h.audit, "schedule cancelled schedule_id=%d", id)
	c.Status(http.StatusNoContent)
}
