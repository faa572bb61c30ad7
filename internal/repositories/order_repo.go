package repositories

import (
	"context"

	"storefront/internal/models"
)

// OrderRepository defines the interface for order data access. It is the
// single writer of orders.
type OrderRepository interface {
	// Create inserts the order and its lines atomically. It returns
	// ErrDuplicateExternalRef if the external payment reference is taken.
	Create(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, id string) (*models.Order, error)
	FindByExternalRef(ctx context.Context, ref string) (*models.Order, error)
	ListByOwner(ctx context.Context, ownerUserID string) ([]models.Order, error)
	// TransitionStatus moves the order identified by ref to status `to` only if
	// its current status is one of `from`. It reports whether a row changed.
	TransitionStatus(ctx context.Context, ref string, from []models.PaymentStatus, to models.PaymentStatus) (bool, error)
}
