package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"chat-engine/internal/apperr"
	"chat-engine/internal/config"
	"chat-engine/internal/events"
	"chat-engine/internal/models"
	"chat-engine/internal/notify"
	"chat-engine/internal/objectstore"
)

type push struct {
	userID  int64
	event   string
	payload any
}

type recordingNotifier struct {
	mu     sync.Mutex
	pushes []push
}

func (n *recordingNotifier) SendToUser(ctx context.Context, userID int64, event string, payload any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pushes = append(n.pushes, push{userID: userID, event: event, payload: payload})
	return nil
}

func (n *recordingNotifier) sent(event string) []push {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []push
	for _, p := range n.pushes {
		if p.event == event {
			out = append(out, p)
		}
	}
	return out
}

func (n *recordingNotifier) reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pushes = nil
}

type stubUploader struct {
	err     error
	folders []string
}

func (u *stubUploader) Upload(ctx context.Context, f objectstore.File, folder string) (models.Attachment, error) {
	if u.err != nil {
		return models.Attachment{}, u.err
	}
	u.folders = append(u.folders, folder)
	return models.Attachment{ID: f.Name, URL: "http://files/" + folder + "/" + f.Name, Kind: objectstore.KindOf(f.ContentType), Size: int64(len(f.Data))}, nil
}

type fixture struct {
	svc      *ChatService
	store    *memStore
	notifier *recordingNotifier
	uploader *stubUploader
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := newMemStore()
	notifier := &recordingNotifier{}
	uploader := &stubUploader{}
	log := zap.NewNop()
	dispatcher := notify.NewDispatcher(notifier, log)
	bus := events.NewBus(log,
		NewReadTracker(store),
		notify.NewMessagePusher(store.Chats(), dispatcher),
	)
	svc := NewChatService(store, uploader, bus, dispatcher, config.PagingConfig{DefaultLimit: 10, MaxLimit: 100}, log)
	return &fixture{svc: svc, store: store, notifier: notifier, uploader: uploader}
}

func (f *fixture) single(t *testing.T, a, b int64) int64 {
	t.Helper()
	d, err := f.svc.CreateChat(context.Background(), CreateChatInput{CreatorID: a, MemberIDs: []int64{b}, Type: "single"})
	require.NoError(t, err)
	return d.ID
}

func (f *fixture) group(t *testing.T, creator int64, others ...int64) int64 {
	t.Helper()
	d, err := f.svc.CreateChat(context.Background(), CreateChatInput{CreatorID: creator, MemberIDs: others, Type: "group"})
	require.NoError(t, err)
	return d.ID
}

func (f *fixture) broadcast(t *testing.T, creator int64, recipients ...int64) int64 {
	t.Helper()
	d, err := f.svc.CreateChat(context.Background(), CreateChatInput{CreatorID: creator, MemberIDs: recipients, Type: "broadcast"})
	require.NoError(t, err)
	return d.ID
}

func (f *fixture) send(t *testing.T, chatID, senderID int64, body string) models.SentMessage {
	t.Helper()
	sent, err := f.svc.SendMessage(context.Background(), SendInput{ChatID: chatID, SenderID: senderID, Body: body})
	require.NoError(t, err)
	return sent
}

func (f *fixture) sendN(t *testing.T, chatID, senderID int64, n int) []int64 {
	t.Helper()
	ids := make([]int64, 0, n)
	for i := 0; i < n; i++ {
		ids = append(ids, f.send(t, chatID, senderID, "msg").ID)
	}
	return ids
}

func (f *fixture) page(t *testing.T, req PageRequest) models.MessagePage {
	t.Helper()
	page, err := f.svc.GetMessages(context.Background(), req)
	require.NoError(t, err)
	return page
}

func (f *fixture) unread(t *testing.T, chatID, userID int64) int {
	t.Helper()
	chats, err := f.svc.ListChats(context.Background(), userID, 100, 0)
	require.NoError(t, err)
	for _, c := range chats {
		if c.ChatID == chatID {
			return c.UnreadCount
		}
	}
	t.Fatalf("chat %d not listed for user %d", chatID, userID)
	return 0
}

func requireKind(t *testing.T, err error, kind apperr.Kind) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, apperr.KindOf(err), err.Error())
}

func pageIDs(page models.MessagePage) []int64 {
	ids := make([]int64, len(page.Data))
	for i, m := range page.Data {
		ids[i] = m.ID
	}
	return ids
}

func ptr[T any](v T) *T { return &v }

var errBoom = errors.New("boom")
