package models

import "time"

// Coupon is a percentage discount owned by a single user.
//
// At most one coupon per owner may be active; the partial unique index on
// owner_user_id enforces it in storage.
type Coupon struct {
	ID                 uint      `json:"-" gorm:"primaryKey"`
	OwnerUserID        string    `json:"owner_user_id" gorm:"type:varchar(64);not null;uniqueIndex:idx_coupons_owner_code;index:idx_coupons_one_active,unique,where:is_active = true"`
	Code               string    `json:"code" gorm:"type:varchar(64);not null;uniqueIndex:idx_coupons_owner_code"`
	DiscountPercentage int       `json:"discount_percentage" gorm:"not null"`
	IsActive           bool      `json:"is_active" gorm:"not null;default:true"`
	ExpirationDate     time.Time `json:"expiration_date" gorm:"not null"`
	CreatedAt          time.Time `json:"-"`
	UpdatedAt          time.Time `json:"-"`
}

// Expired reports whether the coupon is past its expiration date at now.
func (c *Coupon) Expired(now time.Time) bool {
	return !c.ExpirationDate.IsZero() && !now.Before(c.ExpirationDate)
}
