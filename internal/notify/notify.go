package notify

import (
	"context"

	"go.uber.org/zap"

	"chat-engine/internal/observability"
)

// Notifier pushes an event to every live connection of a user. A user with
// no connection is not an error.
type Notifier interface {
	SendToUser(ctx context.Context, userID int64, event string, payload any) error
}

// Dispatcher fans one event out to many users. Each send is isolated: a
// failure is logged and counted, never returned.
type Dispatcher struct {
	notifier Notifier
	log      *zap.Logger
}

func NewDispatcher(notifier Notifier, log *zap.Logger) *Dispatcher {
	return &Dispatcher{notifier: notifier, log: log}
}

// SendToUsers returns the number of failed sends.
func (d *Dispatcher) SendToUsers(ctx context.Context, userIDs []int64, event string, payload any) int {
	if d == nil || d.notifier == nil {
		return 0
	}
	failed := 0
	for _, id := range userIDs {
		if err := d.notifier.SendToUser(ctx, id, event, payload); err != nil {
			failed++
			observability.IncNotifyFailure(event)
			d.log.Warn("push notification failed",
				zap.String("event", event),
				zap.Int64("user_id", id),
				zap.Error(err),
			)
		}
	}
	return failed
}
