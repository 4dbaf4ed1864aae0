package service

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/velomarket/listing-engine/internal/domain/entity"
	"github.com/velomarket/listing-engine/internal/notifier"
	"github.com/velomarket/listing-engine/internal/platform/logger"
)

type MockListingRepository struct {
	mock.Mock
}

func (m *MockListingRepository) Create(ctx context.Context, listing *entity.Listing) error {
	args := m.Called(ctx, listing)
	return args.Error(0)
}

func (m *MockListingRepository) GetByID(ctx context.Context, id string) (*entity.Listing, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Listing), args.Error(1)
}

func (m *MockListingRepository) Update(ctx context.Context, listing *entity.Listing) error {
	args := m.Called(ctx, listing)
	return args.Error(0)
}

func (m *MockListingRepository) ListForSweep(ctx context.Context) ([]*entity.Listing, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entity.Listing), args.Error(1)
}

type MockBalanceRepository struct {
	mock.Mock
}

func (m *MockBalanceRepository) GetByUserID(ctx context.Context, userID string) (*entity.Balance, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Balance), args.Error(1)
}

func (m *MockBalanceRepository) Save(ctx context.Context, balance *entity.Balance) error {
	args := m.Called(ctx, balance)
	return args.Error(0)
}

type MockUnusedViewsRepository struct {
	mock.Mock
}

func (m *MockUnusedViewsRepository) Get(ctx context.Context, ownerID string) (int64, error) {
	args := m.Called(ctx, ownerID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockUnusedViewsRepository) Add(ctx context.Context, ownerID string, views int64) error {
	args := m.Called(ctx, ownerID, views)
	return args.Error(0)
}

func (m *MockUnusedViewsRepository) Reset(ctx context.Context, ownerID string) error {
	args := m.Called(ctx, ownerID)
	return args.Error(0)
}

type MockLedgerService struct {
	mock.Mock
}

func (m *MockLedgerService) TopUp(ctx context.Context, cmd TopUpCommand) (*entity.Balance, error) {
	args := m.Called(ctx, cmd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Balance), args.Error(1)
}

func (m *MockLedgerService) GetBalance(ctx context.Context, userID string) (*entity.Balance, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Balance), args.Error(1)
}

func (m *MockLedgerService) Charge(ctx context.Context, userID string, amount decimal.Decimal) (entity.DebitBreakdown, error) {
	args := m.Called(ctx, userID, amount)
	return args.Get(0).(entity.DebitBreakdown), args.Error(1)
}

func (m *MockLedgerService) Refund(ctx context.Context, userID string, breakdown entity.DebitBreakdown) error {
	args := m.Called(ctx, userID, breakdown)
	return args.Error(0)
}

type MockMessagePublisher struct {
	mock.Mock
}

func (m *MockMessagePublisher) Publish(ctx context.Context, subject string, message interface{}) error {
	args := m.Called(ctx, subject, message)
	return args.Error(0)
}

func (m *MockMessagePublisher) PublishRaw(ctx context.Context, subject string, data []byte) error {
	args := m.Called(ctx, subject, data)
	return args.Error(0)
}

// recordingNotifier captures everything handed to the sink so tests can
// assert on kinds and counts.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []notifier.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n notifier.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
}

func (r *recordingNotifier) byKind(kind notifier.Kind) []notifier.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notifier.Notification
	for _, n := range r.sent {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

// memoryDedup is an in-process stand-in for the redis SETNX store.
type memoryDedup struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func newMemoryDedup() *memoryDedup {
	return &memoryDedup{seen: make(map[string]struct{})}
}

func (d *memoryDedup) MarkOnce(_ context.Context, key string, _ time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[key]; ok {
		return false, nil
	}
	d.seen[key] = struct{}{}
	return true, nil
}

type noopLogger struct{}

func (noopLogger) Debug(args ...interface{})                   {}
func (noopLogger) Debugf(template string, args ...interface{}) {}
func (noopLogger) Info(args ...interface{})                    {}
func (noopLogger) Infof(template string, args ...interface{})  {}
func (noopLogger) Warn(args ...interface{})                    {}
func (noopLogger) Warnf(template string, args ...interface{})  {}
func (noopLogger) Error(args ...interface{})                   {}
func (noopLogger) Errorf(template string, args ...interface{}) {}
func (noopLogger) Fatal(args ...interface{})                   {}
func (noopLogger) Fatalf(template string, args ...interface{}) {}
func (l noopLogger) With(args ...interface{}) logger.Logger    { return l }
