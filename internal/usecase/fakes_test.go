package usecase

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-notifier/internal/domain"
)

// memUsers is an in-memory users table with a phone number index.
type memUsers struct {
	mu       sync.Mutex
	users    []domain.UserRecord
	findErr  error
	clearErr error
	clears   []string
}

func newMemUsers(users ...domain.UserRecord) *memUsers {
	return &memUsers{users: users}
}

func (m *memUsers) FindUsersByPhoneNumber(_ context.Context, phoneNumber string) ([]domain.UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	var out []domain.UserRecord
	for _, u := range m.users {
		if u.PhoneNumber == phoneNumber {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *memUsers) ClearDeviceToken(_ context.Context, uid, staleToken string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clears = append(m.clears, uid)
	if m.clearErr != nil {
		return false, m.clearErr
	}
	for i, u := range m.users {
		if u.UID == uid && u.DeviceToken != nil && *u.DeviceToken == staleToken {
			m.users[i].DeviceToken = nil
			return true, nil
		}
	}
	return false, nil
}

func (m *memUsers) get(t *testing.T, uid string) domain.UserRecord {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.UID == uid {
			return u
		}
	}
	t.Fatalf("no user %q", uid)
	return domain.UserRecord{}
}

type memReceipts struct {
	mu      sync.Mutex
	deleted []string
	err     error
}

func (m *memReceipts) DeleteReceipt(_ context.Context, conversationID, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.deleted = append(m.deleted, conversationID+"/"+messageID)
	return nil
}

type MockSender struct {
	mock.Mock
}

func (m *MockSender) Send(ctx context.Context, token string, payload domain.Payload) (domain.DeliveryResult, error) {
	args := m.Called(ctx, token, payload)
	return args.Get(0).(domain.DeliveryResult), args.Error(1)
}

func newUser(uid, phone, token string) domain.UserRecord {
	u := domain.UserRecord{UID: uid, PhoneNumber: phone}
	if token != "" {
		u.DeviceToken = &token
	}
	return u
}

func delivered() domain.DeliveryResult {
	return domain.DeliveryResult{MessageID: "0:ok"}
}

func failedWith(code string) domain.DeliveryResult {
	return domain.DeliveryResult{Error: &domain.DeliveryError{Code: code}}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}

func newTestService(t *testing.T, users *memUsers, receipts *memReceipts, sender Sender) (*Service, *Metrics) {
	t.Helper()
	m := newTestMetrics()
	svc, err := NewService(users, receipts, sender, m, discardLogger())
	require.NoError(t, err)
	return svc, m
}

func expectUsecaseError(t *testing.T, err error, code ErrorCode) {
	t.Helper()
	var usecaseErr *Error
	require.ErrorAs(t, err, &usecaseErr)
	require.Equal(t, code, usecaseErr.Code)
}
