package services_test

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"storefront/internal/models"
	"storefront/pkg/payment"
	"storefront/pkg/rabbitmq"
)

// MockCouponLedger is a mock implementation of services.CouponLedger
type MockCouponLedger struct {
	mock.Mock
}

func (m *MockCouponLedger) FindActive(ctx context.Context, ownerUserID, code string) (*models.Coupon, error) {
	args := m.Called(ownerUserID, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Coupon), args.Error(1)
}

func (m *MockCouponLedger) Deactivate(ctx context.Context, ownerUserID, code string) (bool, error) {
	args := m.Called(ownerUserID, code)
	return args.Bool(0), args.Error(1)
}

func (m *MockCouponLedger) GrantLoyaltyCoupon(ctx context.Context, ownerUserID string, pct int, ttl time.Duration) (*models.Coupon, error) {
	args := m.Called(ownerUserID, pct, ttl)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Coupon), args.Error(1)
}

// MockCouponRepository is a mock implementation of repositories.CouponRepository
type MockCouponRepository struct {
	mock.Mock
}

func (m *MockCouponRepository) FindActive(ctx context.Context, ownerUserID, code string, now time.Time) (*models.Coupon, error) {
	args := m.Called(ownerUserID, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Coupon), args.Error(1)
}

func (m *MockCouponRepository) ActiveForOwner(ctx context.Context, ownerUserID string, now time.Time) (*models.Coupon, error) {
	args := m.Called(ownerUserID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Coupon), args.Error(1)
}

func (m *MockCouponRepository) Deactivate(ctx context.Context, ownerUserID, code string) (bool, error) {
	args := m.Called(ownerUserID, code)
	return args.Bool(0), args.Error(1)
}

func (m *MockCouponRepository) Replace(ctx context.Context, coupon *models.Coupon) error {
	args := m.Called(coupon)
	return args.Error(0)
}

// MockCartRepository is a mock implementation of repositories.CartRepository
type MockCartRepository struct {
	mock.Mock
}

func (m *MockCartRepository) GetLines(ctx context.Context, ownerUserID string) ([]models.CartLine, error) {
	args := m.Called(ownerUserID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.CartLine), args.Error(1)
}

// MockCardGateway is a mock implementation of payment.CardGateway
type MockCardGateway struct {
	mock.Mock
}

func (m *MockCardGateway) CreateSession(ctx context.Context, req payment.SessionRequest) (*payment.Session, error) {
	args := m.Called(req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Session), args.Error(1)
}

func (m *MockCardGateway) RetrieveStatus(ctx context.Context, sessionID string) (*payment.SessionStatus, error) {
	args := m.Called(sessionID)
	// Like a real client, give up once the context is done.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.SessionStatus), args.Error(1)
}

// MockWalletGateway is a mock implementation of payment.WalletGateway
type MockWalletGateway struct {
	mock.Mock
}

func (m *MockWalletGateway) CreateCharge(ctx context.Context, req payment.ChargeRequest) (*payment.Charge, error) {
	args := m.Called(req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Charge), args.Error(1)
}

// MockEventPublisher is a mock implementation of services.EventPublisher
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) PublishOrderEvent(event rabbitmq.OrderEvent) error {
	args := m.Called(event)
	return args.Error(0)
}
