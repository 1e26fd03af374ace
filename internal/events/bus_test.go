package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"chat-engine/internal/models"
)

type recordingHandler struct {
	name  string
	err   error
	calls *[]string
}

func (h recordingHandler) Name() string { return h.name }

func (h recordingHandler) HandleMessageSent(ctx context.Context, event MessageSent) error {
	*h.calls = append(*h.calls, h.name)
	return h.err
}

func TestPublishRunsHandlersInOrder(t *testing.T) {
	var calls []string
	bus := NewBus(zap.NewNop(),
		recordingHandler{name: "tracker", calls: &calls},
		recordingHandler{name: "push", calls: &calls},
		recordingHandler{name: "relay", calls: &calls},
	)

	bus.PublishMessageSent(context.Background(), MessageSent{Message: models.SentMessage{Message: models.Message{ID: 1, ChatID: 2}}})

	assert.Equal(t, []string{"tracker", "push", "relay"}, calls)
}

func TestPublishContinuesAfterFailure(t *testing.T) {
	var calls []string
	bus := NewBus(zap.NewNop(),
		recordingHandler{name: "tracker", err: errors.New("db down"), calls: &calls},
		recordingHandler{name: "push", calls: &calls},
	)

	bus.PublishMessageSent(context.Background(), MessageSent{})

	assert.Equal(t, []string{"tracker", "push"}, calls)
}

func TestNilBusIsNoop(t *testing.T) {
	var bus *Bus
	assert.NotPanics(t, func() { bus.PublishMessageSent(context.Background(), MessageSent{}) })
}
