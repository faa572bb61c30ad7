package repositories

import (
	"context"

	"github.com/go-faster/errors"
	"gorm.io/gorm"

	"storefront/internal/models"
)

// CartRepository reads the cart snapshot that cart CRUD maintains.
type CartRepository interface {
	GetLines(ctx context.Context, ownerUserID string) ([]models.CartLine, error)
}

// GORMCartRepository is a GORM implementation of CartRepository.
type GORMCartRepository struct {
	db *gorm.DB
}

// NewGORMCartRepository creates a new instance of GORMCartRepository.
func NewGORMCartRepository(db *gorm.DB) *GORMCartRepository {
	return &GORMCartRepository{
		db: db,
	}
}

// GetLines prices the owner's cart items with current catalog prices. Items
// whose product no longer exists are dropped.
func (r *GORMCartRepository) GetLines(ctx context.Context, ownerUserID string) ([]models.CartLine, error) {
	var lines []models.CartLine
	err := r.db.WithContext(ctx).
		Table("cart_items").
		Select("cart_items.product_id AS product_ref, products.price AS unit_price, cart_items.quantity AS quantity").
		Joins("JOIN products ON products.id = cart_items.product_id").
		Where("cart_items.owner_user_id = ?", ownerUserID).
		Order("cart_items.id").
		Scan(&lines).Error
	if err != nil {
		return nil, errors.Wrap(err, "read cart")
	}
	return lines, nil
}
