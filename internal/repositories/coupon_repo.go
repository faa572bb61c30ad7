package repositories

import (
	"context"
	"time"

	"storefront/internal/models"
)

// CouponRepository defines the interface for coupon data access.
type CouponRepository interface {
	// FindActive returns the owner's active, unexpired coupon with the given
	// code, or ErrNotFound.
	FindActive(ctx context.Context, ownerUserID, code string, now time.Time) (*models.Coupon, error)
	// ActiveForOwner returns the owner's active, unexpired coupon, or
	// ErrNotFound.
	ActiveForOwner(ctx context.Context, ownerUserID string, now time.Time) (*models.Coupon, error)
	// Deactivate flips is_active true->false for the coupon. It reports
	// whether this call performed the flip.
	Deactivate(ctx context.Context, ownerUserID, code string) (bool, error)
	// Replace deletes every coupon of the owner and inserts coupon, atomically.
	Replace(ctx context.Context, coupon *models.Coupon) error
}
