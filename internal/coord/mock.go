package coord

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"parley/internal/model"
)

type MockMessageStore struct {
	mock.Mock
}

func (m *MockMessageStore) SaveMessage(ctx context.Context, msg *model.Message) (string, error) {
	args := m.Called(ctx, msg)
	return args.String(0), args.Error(1)
}

func (m *MockMessageStore) MarkDelivered(ctx context.Context, messageIDs []string, receiverID string, at time.Time) error {
	args := m.Called(ctx, messageIDs, receiverID, at)
	return args.Error(0)
}

func (m *MockMessageStore) MarkRead(ctx context.Context, senderID, receiverID string, at time.Time) (int64, error) {
	args := m.Called(ctx, senderID, receiverID, at)
	return args.Get(0).(int64), args.Error(1)
}

type MockCallStore struct {
	mock.Mock
}

func (m *MockCallStore) CreateCallRecord(ctx context.Context, call *model.Call) (string, error) {
	args := m.Called(ctx, call)
	return args.String(0), args.Error(1)
}

func (m *MockCallStore) UpdateCallRecord(ctx context.Context, callID string, update model.CallRecordUpdate) error {
	args := m.Called(ctx, callID, update)
	return args.Error(0)
}

type MockUserStore struct {
	mock.Mock
}

func (m *MockUserStore) GetUser(ctx context.Context, userID string) (*model.User, error) {
	args := m.Called(ctx, userID)
	if u, ok := args.Get(0).(*model.User); ok {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUserStore) SetOnlineStatus(ctx context.Context, userID string, online bool) error {
	args := m.Called(ctx, userID, online)
	return args.Error(0)
}

func (m *MockUserStore) UpdateLastSeen(ctx context.Context, userID string, at time.Time) error {
	args := m.Called(ctx, userID, at)
	return args.Error(0)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, userID string, n Notification) error {
	args := m.Called(ctx, userID, n)
	return args.Error(0)
}
