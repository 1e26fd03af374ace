package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"chat-engine/internal/apperr"
	"chat-engine/internal/config"
	"chat-engine/internal/models"
	"chat-engine/internal/observability"
	"chat-engine/internal/repositories"
	"chat-engine/internal/services"
)

// Sender delivers a due message through the live send path.
type Sender interface {
	SendMessage(ctx context.Context, in services.SendInput) (models.SentMessage, error)
}

// Poller sends scheduled messages once they are due. Several pollers may run
// against the same database; the conditional claim decides who sends.
type Poller struct {
	schedules repositories.ScheduleRepository
	sender    Sender
	cfg       config.SchedulerConfig
	log       *zap.Logger
	now       func() time.Time
}

func NewPoller(schedules repositories.ScheduleRepository, sender Sender, cfg config.SchedulerConfig, log *zap.Logger) *Poller {
	return &Poller{schedules: schedules, sender: sender, cfg: cfg, log: log, now: time.Now}
}

// Run polls every cfg.Interval until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.log.Info("scheduler started", zap.Duration("interval", p.cfg.Interval))
	for {
		if _, err := p.RunOnce(ctx); err != nil && ctx.Err() == nil {
			p.log.Error("scheduler poll failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			p.log.Info("scheduler stopped")
			return
		case <-ticker.C:
		}
	}
}

// RunOnce processes one batch of due schedules and returns how many it sent.
func (p *Poller) RunOnce(ctx context.Context) (int, error) {
	ids, err := p.schedules.DueIDs(ctx, p.now(), p.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}
		sched, ok, err := p.schedules.Claim(ctx, id)
		if err != nil {
			p.log.Warn("claim schedule failed", zap.Int64("schedule_id", id), zap.Error(err))
			continue
		}
		if !ok {
			continue
		}
		if p.process(ctx, sched) {
			sent++
		}
	}
	return sent, nil
}

func (p *Poller) process(ctx context.Context, sched models.Schedule) bool {
	log := p.log.With(zap.Int64("schedule_id", sched.ID), zap.Int64("chat_id", sched.ChatID))

	_, err := p.sender.SendMessage(ctx, services.SendInput{
		ChatID:   sched.ChatID,
		SenderID: sched.SenderID,
		Body:     sched.Body,
		Kind:     models.KindUser,
	})
	if err == nil {
		if err := p.schedules.MarkCompleted(ctx, sched.ID); err != nil {
			log.Error("mark schedule completed failed", zap.Error(err))
		}
		observability.IncScheduleOutcome("completed")
		return true
	}

	attempt := sched.RetryCount + 1
	if permanent(err) || attempt >= p.cfg.MaxRetries {
		if merr := p.schedules.MarkFailed(ctx, sched.ID, err.Error()); merr != nil {
			log.Error("mark schedule failed failed", zap.Error(merr))
		}
		observability.IncScheduleOutcome("failed")
		log.Warn("scheduled message failed", zap.Int("attempt", attempt), zap.Error(err))
		return false
	}

	at := p.now().Add(Backoff(p.cfg.RetryDelay, attempt))
	if rerr := p.schedules.Reschedule(ctx, sched.ID, at, err.Error()); rerr != nil {
		log.Error("reschedule failed", zap.Error(rerr))
	}
	observability.IncScheduleOutcome("retried")
	log.Warn("scheduled message retry", zap.Int("attempt", attempt), zap.Time("next_at", at), zap.Error(err))
	return false
}

// permanent errors will not change on retry.
func permanent(err error) bool {
	switch apperr.KindOf(err) {
	case apperr.KindValidation, apperr.KindForbidden, apperr.KindNotFound:
		return true
	}
	return false
}

// Backoff doubles base for each attempt after the first.
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return base << (attempt - 1)
}
