package repositories

import (
	"context"

	"storefront/internal/models"
)

// ProductRepository defines the catalog lookups checkout needs.
type ProductRepository interface {
	GetByIDs(ctx context.Context, ids []string) ([]models.Product, error)
	Create(ctx context.Context, product *models.Product) error
}
