package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"chat-engine/internal/models"
	"chat-engine/internal/services"
)

type ChatServiceMock struct {
	mock.Mock
}

func (m *ChatServiceMock) CreateChat(ctx context.Context, in services.CreateChatInput) (models.ChatDetails, error) {
	args := m.Called(ctx, in)
	var chat models.ChatDetails
	if val := args.Get(0); val != nil {
		chat = val.(models.ChatDetails)
	}
	return chat, args.Error(1)
}

func (m *ChatServiceMock) GetChat(ctx context.Context, chatID, viewerID int64) (models.ChatDetails, error) {
	args := m.Called(ctx, chatID, viewerID)
	var chat models.ChatDetails
	if val := args.Get(0); val != nil {
		chat = val.(models.ChatDetails)
	}
	return chat, args.Error(1)
}

func (m *ChatServiceMock) ListChats(ctx context.Context, userID int64, limit, offset int) ([]models.ChatSummary, error) {
	args := m.Called(ctx, userID, limit, offset)
	var list []models.ChatSummary
	if val := args.Get(0); val != nil {
		list = val.([]models.ChatSummary)
	}
	return list, args.Error(1)
}

func (m *ChatServiceMock) Contacts(ctx context.Context, userID int64) ([]models.UserRef, error) {
	args := m.Called(ctx, userID)
	var contacts []models.UserRef
	if val := args.Get(0); val != nil {
		contacts = val.([]models.UserRef)
	}
	return contacts, args.Error(1)
}

func (m *ChatServiceMock) PinChat(ctx context.Context, chatID, userID int64, pinned bool) error {
	args := m.Called(ctx, chatID, userID, pinned)
	return args.Error(0)
}

func (m *ChatServiceMock) SendMessage(ctx context.Context, in services.SendInput) (models.SentMessage, error) {
	args := m.Called(ctx, in)
	var msg models.SentMessage
	if val := args.Get(0); val != nil {
		msg = val.(models.SentMessage)
	}
	return msg, args.Error(1)
}

func (m *ChatServiceMock) GetMessages(ctx context.Context, req services.PageRequest) (models.MessagePage, error) {
	args := m.Called(ctx, req)
	var page models.MessagePage
	if val := args.Get(0); val != nil {
		page = val.(models.MessagePage)
	}
	return page, args.Error(1)
}

func (m *ChatServiceMock) SearchMessages(ctx context.Context, req services.SearchRequest) (models.SearchPage, error) {
	args := m.Called(ctx, req)
	var page models.SearchPage
	if val := args.Get(0); val != nil {
		page = val.(models.SearchPage)
	}
	return page, args.Error(1)
}

func (m *ChatServiceMock) DeleteMessages(ctx context.Context, req services.DeleteRequest) (models.DeleteResult, error) {
	args := m.Called(ctx, req)
	var res models.DeleteResult
	if val := args.Get(0); val != nil {
		res = val.(models.DeleteResult)
	}
	return res, args.Error(1)
}

func (m *ChatServiceMock) MarkAsRead(ctx context.Context, chatID, userID int64) (*int64, error) {
	args := m.Called(ctx, chatID, userID)
	var last *int64
	if val := args.Get(0); val != nil {
		last = val.(*int64)
	}
	return last, args.Error(1)
}

func (m *ChatServiceMock) CheckStatus(ctx context.Context, chatID, messageID, viewerID int64) ([]models.MessageStatus, error) {
	args := m.Called(ctx, chatID, messageID, viewerID)
	var list []models.MessageStatus
	if val := args.Get(0); val != nil {
		list = val.([]models.MessageStatus)
	}
	return list, args.Error(1)
}

type ScheduleServiceMock struct {
	mock.Mock
}

func (m *ScheduleServiceMock) ScheduleMessage(ctx context.Context, chatID, senderID int64, body string, at time.Time) (models.Schedule, error) {
	args := m.Called(ctx, chatID, senderID, body, at)
	var sched models.Schedule
	if val := args.Get(0); val != nil {
		sched = val.(models.Schedule)
	}
	return sched, args.Error(1)
}

func (m *ScheduleServiceMock) ListSchedules(ctx context.Context, chatID, senderID int64) ([]models.Schedule, error) {
	args := m.Called(ctx, chatID, senderID)
	var list []models.Schedule
	if val := args.Get(0); val != nil {
		list = val.([]models.Schedule)
	}
	return list, args.Error(1)
}

func (m *ScheduleServiceMock) UpdateSchedule(ctx context.Context, in services.ScheduleUpdate) (models.Schedule, error) {
	args := m.Called(ctx, in)
	var sched models.Schedule
	if val := args.Get(0); val != nil {
		sched = val.(models.Schedule)
	}
	return sched, args.Error(1)
}

func (m *ScheduleServiceMock) CancelSchedule(ctx context.Context, id, senderID int64) error {
	args := m.Called(ctx, id, senderID)
	return args.Error(0)
}

type NotifierMock struct {
	mock.Mock
}

func (m *NotifierMock) SendToUser(ctx context.Context, userID int64, event string, payload any) error {
	args := m.Called(ctx, userID, event, payload)
	return args.Error(0)
}

type MemberListerMock struct {
	mock.Mock
}

func (m *MemberListerMock) MemberIDs(ctx context.Context, chatID int64) ([]int64, error) {
	args := m.Called(ctx, chatID)
	var ids []int64
	if val := args.Get(0); val != nil {
		ids = val.([]int64)
	}
	return ids, args.Error(1)
}

// PublisherMock stands in for the rabbitmq publisher.
type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) Publish(ctx context.Context, routingKey string, event any) error {
	args := m.Called(ctx, routingKey, event)
	return args.Error(0)
}

func (m *PublisherMock) Close() error {
	args := m.Called()
	return args.Error(0)
}
