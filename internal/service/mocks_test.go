package service

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"rentdesk-backend/internal/domain"
)

// MockBillRepo
type MockBillRepo struct {
	mock.Mock
}

func (m *MockBillRepo) GetByID(ctx context.Context, id int32) (*domain.Bill, error) {
	args := m.Called(ctx, id)
	if fn, ok := args.Get(0).(func(context.Context, int32) *domain.Bill); ok {
		return fn(ctx, id), args.Error(1)
	}
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Bill), args.Error(1)
}
func (m *MockBillRepo) ListForPenalty(ctx context.Context, filter domain.BillFilter) ([]domain.Bill, error) {
	args := m.Called(ctx, filter)
	if fn, ok := args.Get(0).(func(context.Context, domain.BillFilter) []domain.Bill); ok {
		return fn(ctx, filter), args.Error(1)
	}
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Bill), args.Error(1)
}
func (m *MockBillRepo) Update(ctx context.Context, bill *domain.Bill) error {
	args := m.Called(ctx, bill)
	return args.Error(0)
}

// MockTenantRepo
type MockTenantRepo struct {
	mock.Mock
}

func (m *MockTenantRepo) GetByID(ctx context.Context, id int32) (*domain.Tenant, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Tenant), args.Error(1)
}

// MockNotificationRepo
type MockNotificationRepo struct {
	mock.Mock
}

func (m *MockNotificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

// MockEmailService
type MockEmailService struct {
	mock.Mock
}

func (m *MockEmailService) SendLateFeeNotification(ctx context.Context, to, name string, notice LateFeeNotice) error {
	args := m.Called(ctx, to, name, notice)
	return args.Error(0)
}

// MockBroadcaster
type MockBroadcaster struct {
	mock.Mock
}

func (m *MockBroadcaster) Broadcast(ctx context.Context, eventType string, payload any) error {
	args := m.Called(ctx, eventType, payload)
	return args.Error(0)
}

// MockDispatcher
type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) LateFeeApplied(ctx context.Context, ev domain.LateFeeEvent) {
	m.Called(ctx, ev)
}
func (m *MockDispatcher) PenaltiesApplied(ctx context.Context, ev domain.SweepEvent) {
	m.Called(ctx, ev)
}

// MockLocker
type MockLocker struct {
	mock.Mock
}

func (m *MockLocker) TryLock(ctx context.Context, kind string, ttl time.Duration) (string, bool, error) {
	args := m.Called(ctx, kind, ttl)
	return args.String(0), args.Bool(1), args.Error(2)
}
func (m *MockLocker) Release(ctx context.Context, kind, token string) error {
	args := m.Called(ctx, kind, token)
	return args.Error(0)
}
