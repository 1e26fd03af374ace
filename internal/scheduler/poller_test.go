package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"chat-engine/internal/apperr"
	"chat-engine/internal/config"
	"chat-engine/internal/models"
	"chat-engine/internal/services"
)

type senderMock struct {
	mock.Mock
}

func (m *senderMock) SendMessage(ctx context.Context, in services.SendInput) (models.SentMessage, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(models.SentMessage), args.Error(1)
}

// scheduleTable keeps schedules in memory with the claim semantics of the SQL repository.
type scheduleTable struct {
	rows map[int64]*models.Schedule
}

func newScheduleTable(rows ...models.Schedule) *scheduleTable {
	t := &scheduleTable{rows: make(map[int64]*models.Schedule)}
	for i := range rows {
		r := rows[i]
		t.rows[r.ID] = &r
	}
	return t
}

func (t *scheduleTable) Create(ctx context.Context, chatID, senderID int64, body string, at time.Time) (models.Schedule, error) {
	return models.Schedule{}, errors.New("not used")
}

func (t *scheduleTable) ListBySender(ctx context.Context, chatID, senderID int64) ([]models.Schedule, error) {
	return nil, errors.New("not used")
}

func (t *scheduleTable) UpdatePending(ctx context.Context, id, senderID int64, body *string, at *time.Time) (models.Schedule, error) {
	return models.Schedule{}, errors.New("not used")
}

func (t *scheduleTable) Delete(ctx context.Context, id, senderID int64) error {
	return errors.New("not used")
}

func (t *scheduleTable) DueIDs(ctx context.Context, now time.Time, limit int) ([]int64, error) {
	var ids []int64
	for id := int64(1); id <= int64(len(t.rows)); id++ {
		r, ok := t.rows[id]
		if ok && r.Status == models.SchedulePending && !r.ScheduledAt.After(now) && len(ids) < limit {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (t *scheduleTable) Claim(ctx context.Context, id int64) (models.Schedule, bool, error) {
	r, ok := t.rows[id]
	if !ok || r.Status != models.SchedulePending {
		return models.Schedule{}, false, nil
	}
	r.Status = models.ScheduleProcessing
	return *r, true, nil
}

func (t *scheduleTable) MarkCompleted(ctx context.Context, id int64) error {
	t.rows[id].Status = models.ScheduleCompleted
	return nil
}

func (t *scheduleTable) Reschedule(ctx context.Context, id int64, at time.Time, reason string) error {
	r := t.rows[id]
	r.Status = models.SchedulePending
	r.RetryCount++
	r.ScheduledAt = at
	r.ErrorMessage = &reason
	return nil
}

func (t *scheduleTable) MarkFailed(ctx context.Context, id int64, reason string) error {
	r := t.rows[id]
	r.Status = models.ScheduleFailed
	r.RetryCount++
	r.ErrorMessage = &reason
	return nil
}

var testNow = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func newTestPoller(table *scheduleTable, sender Sender) *Poller {
	p := NewPoller(table, sender, config.SchedulerConfig{
		Interval:   time.Second,
		BatchSize:  10,
		MaxRetries: 3,
		RetryDelay: 10 * time.Second,
	}, zap.NewNop())
	p.now = func() time.Time { return testNow }
	return p
}

func due(id int64) models.Schedule {
	return models.Schedule{ID: id, ChatID: 7, SenderID: 1, Body: "later", ScheduledAt: testNow.Add(-time.Minute), Status: models.SchedulePending}
}

func TestRunOnceSendsDueSchedules(t *testing.T) {
	notYet := due(2)
	notYet.ScheduledAt = testNow.Add(time.Hour)
	table := newScheduleTable(due(1), notYet)
	sender := new(senderMock)
	sender.On("SendMessage", mock.Anything, services.SendInput{ChatID: 7, SenderID: 1, Body: "later", Kind: models.KindUser}).
		Return(models.SentMessage{}, nil).Once()

	sent, err := newTestPoller(table, sender).RunOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, models.ScheduleCompleted, table.rows[1].Status)
	assert.Equal(t, models.SchedulePending, table.rows[2].Status)
	sender.AssertExpectations(t)
}

func TestRunOnceRetriesWithBackoff(t *testing.T) {
	table := newScheduleTable(due(1))
	sender := new(senderMock)
	sender.On("SendMessage", mock.Anything, mock.Anything).Return(models.SentMessage{}, errors.New("db down"))
	p := newTestPoller(table, sender)

	_, err := p.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.SchedulePending, table.rows[1].Status)
	assert.Equal(t, 1, table.rows[1].RetryCount)
	assert.Equal(t, testNow.Add(10*time.Second), table.rows[1].ScheduledAt)

	p.now = func() time.Time { return testNow.Add(time.Minute) }
	_, err = p.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, table.rows[1].RetryCount)
	assert.Equal(t, testNow.Add(time.Minute+20*time.Second), table.rows[1].ScheduledAt)

	p.now = func() time.Time { return testNow.Add(time.Hour) }
	_, err = p.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.ScheduleFailed, table.rows[1].Status)
	assert.Equal(t, 3, table.rows[1].RetryCount)
}

func TestRunOnceFailsPermanentErrorsImmediately(t *testing.T) {
	table := newScheduleTable(due(1))
	sender := new(senderMock)
	sender.On("SendMessage", mock.Anything, mock.Anything).Return(models.SentMessage{}, apperr.Forbidden("not a member of this chat")).Once()

	_, err := newTestPoller(table, sender).RunOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, models.ScheduleFailed, table.rows[1].Status)
	require.NotNil(t, table.rows[1].ErrorMessage)
	assert.Contains(t, *table.rows[1].ErrorMessage, "not a member")
}

func TestRunOnceSkipsSchedulesClaimedElsewhere(t *testing.T) {
	claimed := due(1)
	claimed.Status = models.ScheduleProcessing
	table := newScheduleTable(claimed)
	sender := new(senderMock)

	sent, err := newTestPoller(table, sender).RunOnce(context.Background())

	require.NoError(t, err)
	assert.Zero(t, sent)
	sender.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything)
}

func TestRunStopsOnCancel(t *testing.T) {
	table := newScheduleTable()
	p := newTestPoller(table, new(senderMock))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not stop")
	}
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, 5*time.Second, Backoff(5*time.Second, 0))
	assert.Equal(t, 5*time.Second, Backoff(5*time.Second, 1))
	assert.Equal(t, 20*time.Second, Backoff(5*time.Second, 3))
}
