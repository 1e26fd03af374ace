package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"chat-engine/internal/models"
)

var ErrScheduleNotFound = errors.New("schedule not found")

const scheduleColumns = `id, chat_id, sender_id, body, scheduled_at, status, retry_count, last_attempt_at, completed_at, error_message, created_at`

// ScheduleRepository persists delayed messages and their claim state.
type ScheduleRepository interface {
	Create(ctx context.Context, chatID, senderID int64, body string, at time.Time) (models.Schedule, error)
	ListBySender(ctx context.Context, chatID, senderID int64) ([]models.Schedule, error)
	UpdatePending(ctx context.Context, id, senderID int64, body *string, at *time.Time) (models.Schedule, error)
	Delete(ctx context.Context, id, senderID int64) error
	DueIDs(ctx context.Context, now time.Time, limit int) ([]int64, error)
	Claim(ctx context.Context, id int64) (models.Schedule, bool, error)
	MarkCompleted(ctx context.Context, id int64) error
	Reschedule(ctx context.Context, id int64, at time.Time, reason string) error
	MarkFailed(ctx context.Context, id int64, reason string) error
}

type ScheduleRepo struct {
	db sqlx.ExtContext
}

func NewScheduleRepo(db sqlx.ExtContext) *ScheduleRepo {
	return &ScheduleRepo{db: db}
}

func (r *ScheduleRepo) Create(ctx context.Context, chatID, senderID int64, body string, at time.Time) (models.Schedule, error) {
	var s models.Schedule
	err := sqlx.GetContext(ctx, r.db, &s, `INSERT INTO chat_message_schedules (chat_id, sender_id, body, scheduled_at)
        VALUES ($1, $2, $3, $4) RETURNING `+scheduleColumns, chatID, senderID, body, at)
	return s, err
}

func (r *ScheduleRepo) ListBySender(ctx context.Context, chatID, senderID int64) ([]models.Schedule, error) {
	var out []models.Schedule
	err := sqlx.SelectContext(ctx, r.db, &out, `SELECT `+scheduleColumns+` FROM chat_message_schedules
        WHERE chat_id=$1 AND sender_id=$2 ORDER BY scheduled_at ASC, id ASC`, chatID, senderID)
	return out, err
}

// UpdatePending edits a schedule that has not been claimed yet.
func (r *ScheduleRepo) UpdatePending(ctx context.Context, id, senderID int64, body *string, at *time.Time) (models.Schedule, error) {
	var s models.Schedule
	err := sqlx.GetContext(ctx, r.db, &s, `UPDATE chat_message_schedules
        SET body = COALESCE($3::text, body), scheduled_at = COALESCE($4::timestamptz, scheduled_at)
        WHERE id=$1 AND sender_id=$2 AND status='pending'
        RETURNING `+scheduleColumns, id, senderID, body, at)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Schedule{}, ErrScheduleNotFound
	}
	return s, err
}

func (r *ScheduleRepo) Delete(ctx context.Context, id, senderID int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM chat_message_schedules WHERE id=$1 AND sender_id=$2 AND status IN ('pending', 'failed')`, id, senderID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrScheduleNotFound
	}
	return nil
}

// DueIDs lists pending schedules whose time has come, oldest first.
func (r *ScheduleRepo) DueIDs(ctx context.Context, now time.Time, limit int) ([]int64, error) {
	var ids []int64
	err := sqlx.SelectContext(ctx, r.db, &ids, `SELECT id FROM chat_message_schedules
        WHERE status='pending' AND scheduled_at <= $1 ORDER BY scheduled_at ASC, id ASC LIMIT $2`, now, limit)
	return ids, err
}

// Claim moves a pending schedule to processing. Only the caller that gets
// true owns the schedule.
func (r *ScheduleRepo) Claim(ctx context.Context, id int64) (models.Schedule, bool, error) {
	var s models.Schedule
	err := sqlx.GetContext(ctx, r.db, &s, `UPDATE chat_message_schedules
        SET status='processing', last_attempt_at=NOW()
        WHERE id=$1 AND status='pending'
        RETURNING `+scheduleColumns, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Schedule{}, false, nil
	}
	if err != nil {
		return models.Schedule{}, false, err
	}
	return s, true, nil
}

func (r *ScheduleRepo) MarkCompleted(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE chat_message_schedules SET status='completed', completed_at=NOW(), error_message=NULL WHERE id=$1`, id)
	return err
}

// Reschedule returns a failed attempt to pending at a later time.
func (r *ScheduleRepo) Reschedule(ctx context.Context, id int64, at time.Time, reason string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE chat_message_schedules
        SET status='pending', retry_count=retry_count+1, scheduled_at=$2, error_message=$3
        WHERE id=$1`, id, at, reason)
	return err
}

func (r *ScheduleRepo) MarkFailed(ctx context.Context, id int64, reason string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE chat_message_schedules
        SET status='failed', retry_count=retry_count+1, error_message=$2
        WHERE id=$1`, id, reason)
	return err
}
