package models

import "time"

// CartLine is a priced line item read at checkout start. It is never mutated
// by checkout.
type CartLine struct {
	ProductRef string `json:"product_ref"`
	UnitPrice  int64  `json:"unit_price"` // minor units
	Quantity   int    `json:"quantity"`
}

// CartItem is a persisted cart entry maintained by cart CRUD.
type CartItem struct {
	ID          uint      `json:"-" gorm:"primaryKey"`
	OwnerUserID string    `json:"owner_user_id" gorm:"type:varchar(64);not null;uniqueIndex:idx_cart_items_owner_product"`
	ProductID   string    `json:"product_id" gorm:"type:varchar(36);not null;uniqueIndex:idx_cart_items_owner_product"`
	Quantity    int       `json:"quantity" gorm:"not null"`
	CreatedAt   time.Time `json:"-"`
	UpdatedAt   time.Time `json:"-"`
}

// PendingIntent is what a card checkout session carries until it is
// finalized. It lives only in the gateway's session metadata.
type PendingIntent struct {
	ExternalRef        string
	OwnerUserID        string
	CouponCode         string
	DiscountPercentage int
	Lines              []CartLine
	CreatedAt          time.Time
}
