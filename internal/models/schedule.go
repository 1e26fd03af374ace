package models

import "time"

type ScheduleStatus string

const (
	SchedulePending    ScheduleStatus = "pending"
	ScheduleProcessing ScheduleStatus = "processing"
	ScheduleCompleted  ScheduleStatus = "completed"
	ScheduleFailed     ScheduleStatus = "failed"
)

// Schedule is a message waiting to be sent at ScheduledAt.
type Schedule struct {
	ID            int64          `db:"id" json:"id"`
	ChatID        int64          `db:"chat_id" json:"chat_id"`
	SenderID      int64          `db:"sender_id" json:"sender_id"`
	Body          string         `db:"body" json:"message"`
	ScheduledAt   time.Time      `db:"scheduled_at" json:"scheduled_at"`
	Status        ScheduleStatus `db:"status" json:"status"`
	RetryCount    int            `db:"retry_count" json:"retry_count"`
	LastAttemptAt *time.Time     `db:"last_attempt_at" json:"last_attempt_at"`
	CompletedAt   *time.Time     `db:"completed_at" json:"completed_at"`
	ErrorMessage  *string        `db:"error_message" json:"error_message"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
}
