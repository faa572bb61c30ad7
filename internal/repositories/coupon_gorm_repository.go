package repositories

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"gorm.io/gorm"

	"storefront/internal/models"
)

// GORMCouponRepository is a GORM implementation of CouponRepository.
type GORMCouponRepository struct {
	db *gorm.DB
}

// NewGORMCouponRepository creates a new instance of GORMCouponRepository.
func NewGORMCouponRepository(db *gorm.DB) *GORMCouponRepository {
	return &GORMCouponRepository{
		db: db,
	}
}

// FindActive looks up an active coupon by owner and code.
func (r *GORMCouponRepository) FindActive(ctx context.Context, ownerUserID, code string, now time.Time) (*models.Coupon, error) {
	var coupon models.Coupon
	err := r.db.WithContext(ctx).
		Where("owner_user_id = ? AND code = ? AND is_active = ? AND expiration_date > ?", ownerUserID, code, true, now).
		First(&coupon).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrapf(err, "find coupon %s", code)
	}
	return &coupon, nil
}

// ActiveForOwner looks up the owner's single active coupon.
func (r *GORMCouponRepository) ActiveForOwner(ctx context.Context, ownerUserID string, now time.Time) (*models.Coupon, error) {
	var coupon models.Coupon
	err := r.db.WithContext(ctx).
		Where("owner_user_id = ? AND is_active = ? AND expiration_date > ?", ownerUserID, true, now).
		First(&coupon).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "find active coupon")
	}
	return &coupon, nil
}

// Deactivate is an atomic conditional update guarded by the coupon identity
// and its active flag. Deactivating an inactive coupon is a no-op.
func (r *GORMCouponRepository) Deactivate(ctx context.Context, ownerUserID, code string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Coupon{}).
		Where("owner_user_id = ? AND code = ? AND is_active = ?", ownerUserID, code, true).
		Update("is_active", false)
	if res.Error != nil {
		return false, errors.Wrapf(res.Error, "deactivate coupon %s", code)
	}
	return res.RowsAffected > 0, nil
}

// Replace removes all of the owner's coupons, active or not, and inserts the
// new one in the same transaction.
func (r *GORMCouponRepository) Replace(ctx context.Context, coupon *models.Coupon) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("owner_user_id = ?", coupon.OwnerUserID).Delete(&models.Coupon{}).Error; err != nil {
			return errors.Wrap(err, "delete previous coupons")
		}
		if err := tx.Create(coupon).Error; err != nil {
			return errors.Wrap(err, "insert coupon")
		}
		return nil
	})
}
