package services

import (
	"fmt"

	"github.com/go-faster/errors"

	"storefront/pkg/payment"
)

var (
	ErrEmptyCart                = errors.New("cart is empty")
	ErrInvalidLineItem          = errors.New("invalid line item")
	ErrPaymentIncomplete        = errors.New("payment is not complete")
	ErrCartTooLarge             = errors.New("cart too large for a card checkout session")
	ErrUnsupportedPaymentMethod = errors.New("unsupported payment method")
	ErrOrderNotFound            = errors.New("order not found")
	ErrInvalidToken             = errors.New("invalid token")
	// ErrCouponApplyFailed is logged, never returned: the order is already
	// paid when coupon consumption runs.
	ErrCouponApplyFailed = errors.New("coupon apply failed")

	// Re-exported so handlers only depend on this package.
	ErrGatewayUnavailable = payment.ErrGatewayUnavailable
	ErrChargeRejected     = payment.ErrChargeRejected
	ErrSessionNotFound    = payment.ErrSessionNotFound
)

// InvalidLineItemError describes which line was rejected and why.
type InvalidLineItemError struct {
	ProductRef string
	Reason     string
}

func (e *InvalidLineItemError) Error() string {
	return fmt.Sprintf("invalid line item %q: %s", e.ProductRef, e.Reason)
}

func (e *InvalidLineItemError) Is(target error) bool {
	return target == ErrInvalidLineItem
}
