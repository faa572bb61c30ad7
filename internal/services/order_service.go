package services

import (
	"context"

	"github.com/go-faster/errors"

	"storefront/internal/models"
	"storefront/internal/repositories"
)

// OrderService handles read access to a customer's orders.
type OrderService struct {
	orderRepo repositories.OrderRepository
}

// NewOrderService creates a new OrderService.
func NewOrderService(orderRepo repositories.OrderRepository) *OrderService {
	return &OrderService{
		orderRepo: orderRepo,
	}
}

// ListForOwner retrieves the owner's orders, newest first. An empty status
// lists every order.
func (s *OrderService) ListForOwner(ctx context.Context, ownerUserID string, status models.PaymentStatus) ([]models.Order, error) {
	orders, err := s.orderRepo.ListByOwner(ctx, ownerUserID)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	if status == "" {
		return orders, nil
	}
	filtered := orders[:0]
	for _, o := range orders {
		if o.PaymentStatus == status {
			filtered = append(filtered, o)
		}
	}
	return filtered, nil
}

// GetForOwner retrieves a single order. Orders of other users are reported
// as not found.
func (s *OrderService) GetForOwner(ctx context.Context, ownerUserID, id string) (*models.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get order %s", id)
	}
	if order.OwnerUserID != ownerUserID {
		return nil, ErrOrderNotFound
	}
	return order, nil
}
