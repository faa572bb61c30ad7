package repositories

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"storefront/internal/models"
)

// MockOrderRepository is an in-memory implementation of OrderRepository. It
// enforces the same external reference uniqueness and conditional status
// updates as the GORM implementation.
type MockOrderRepository struct {
	orders map[string]models.Order
	byRef  map[string]string
	mu     sync.RWMutex
}

// NewMockOrderRepository creates a new instance of MockOrderRepository.
func NewMockOrderRepository() *MockOrderRepository {
	return &MockOrderRepository{
		orders: make(map[string]models.Order),
		byRef:  make(map[string]string),
	}
}

// Create adds a new order unless its external reference is taken.
func (r *MockOrderRepository) Create(ctx context.Context, order *models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byRef[order.ExternalPaymentRef]; ok {
		return ErrDuplicateExternalRef
	}
	if order.ID == "" {
		order.ID = uuid.New().String()
	}
	now := time.Now()
	order.CreatedAt = now
	order.UpdatedAt = now
	r.orders[order.ID] = cloneOrder(*order)
	r.byRef[order.ExternalPaymentRef] = order.ID
	return nil
}

// GetByID returns an order by its ID.
func (r *MockOrderRepository) GetByID(ctx context.Context, id string) (*models.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	o := cloneOrder(order)
	return &o, nil
}

// FindByExternalRef returns the order keyed by ref.
func (r *MockOrderRepository) FindByExternalRef(ctx context.Context, ref string) (*models.Order, error) {
	r.mu.RLock()
	id, ok := r.byRef[ref]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return r.GetByID(ctx, id)
}

// ListByOwner returns the owner's orders, newest first.
func (r *MockOrderRepository) ListByOwner(ctx context.Context, ownerUserID string) ([]models.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	orderList := make([]models.Order, 0)
	for _, order := range r.orders {
		if order.OwnerUserID == ownerUserID {
			orderList = append(orderList, cloneOrder(order))
		}
	}
	sort.Slice(orderList, func(i, j int) bool {
		return orderList[i].CreatedAt.After(orderList[j].CreatedAt)
	})
	return orderList, nil
}

// TransitionStatus updates the status if the current one is in from.
func (r *MockOrderRepository) TransitionStatus(ctx context.Context, ref string, from []models.PaymentStatus, to models.PaymentStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byRef[ref]
	if !ok {
		return false, nil
	}
	order := r.orders[id]
	for _, f := range from {
		if order.PaymentStatus == f && models.CanTransition(f, to) {
			order.PaymentStatus = to
			order.UpdatedAt = time.Now()
			r.orders[id] = order
			return true, nil
		}
	}
	return false, nil
}

func cloneOrder(o models.Order) models.Order {
	o.Lines = append([]models.OrderLine(nil), o.Lines...)
	return o
}
