package models

import "time"

// PaymentMethod is the rail a checkout was paid through.
type PaymentMethod string

const (
	PaymentMethodCard   PaymentMethod = "card"
	PaymentMethodWallet PaymentMethod = "wallet"
	PaymentMethodCOD    PaymentMethod = "cod"
)

// Valid reports whether m is one of the supported payment methods.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCard, PaymentMethodWallet, PaymentMethodCOD:
		return true
	}
	return false
}

// PaymentStatus is the payment state of an order.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusPaid      PaymentStatus = "paid"
	PaymentStatusCancelled PaymentStatus = "cancelled"
)

// CanTransition reports whether an order may move from one payment status to
// another. Paid is terminal.
func CanTransition(from, to PaymentStatus) bool {
	switch from {
	case PaymentStatusPending:
		return to == PaymentStatusPaid || to == PaymentStatusCancelled
	case PaymentStatusCancelled:
		// A wallet charge may complete upstream after we gave up on it.
		return to == PaymentStatusPaid
	}
	return false
}

// OrderLine represents a single priced item within an order.
type OrderLine struct {
	ID         uint   `json:"-" gorm:"primaryKey"`
	OrderID    string `json:"-" gorm:"index;type:varchar(36);not null"`
	ProductRef string `json:"product_ref" gorm:"type:varchar(64);not null"`
	Quantity   int    `json:"quantity" gorm:"not null"`
	UnitPrice  int64  `json:"unit_price" gorm:"not null"` // minor units, price at checkout time
}

// Order is the authoritative record of a payment event.
//
// ExternalPaymentRef is always populated and unique across all orders; it is
// the idempotency key every finalization path converges on.
type Order struct {
	ID                 string        `json:"id" gorm:"primaryKey;type:varchar(36)"`
	OwnerUserID        string        `json:"owner_user_id" gorm:"index;type:varchar(64);not null"`
	Lines              []OrderLine   `json:"lines" gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Subtotal           int64         `json:"subtotal" gorm:"not null"`
	Discount           int64         `json:"discount" gorm:"not null;default:0"`
	TotalAmount        int64         `json:"total_amount" gorm:"not null"`
	CouponCode         string        `json:"coupon_code,omitempty" gorm:"type:varchar(64)"`
	PaymentMethod      PaymentMethod `json:"payment_method" gorm:"type:varchar(16);not null"`
	PaymentStatus      PaymentStatus `json:"payment_status" gorm:"type:varchar(16);not null;index"`
	ExternalPaymentRef string        `json:"external_payment_ref" gorm:"uniqueIndex;type:varchar(255);not null"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}
