package services

import (
	"context"
	"math"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"storefront/internal/models"
)

// couponFinder is the read side of the coupon ledger the pricing engine
// needs.
type couponFinder interface {
	FindActive(ctx context.Context, ownerUserID, code string) (*models.Coupon, error)
}

// Quote is a priced cart.
type Quote struct {
	Lines              []models.CartLine `json:"lines"`
	Subtotal           int64             `json:"subtotal"`
	Discount           int64             `json:"discount"`
	Total              int64             `json:"total"`
	CouponCode         string            `json:"coupon_code,omitempty"`
	DiscountPercentage int               `json:"discount_percentage"`
	// CouponIgnored is set when a code was supplied but did not match an
	// active coupon of the owner. Checkout proceeds without a discount.
	CouponIgnored bool `json:"coupon_ignored"`
}

// PricingEngine computes subtotal, discount and total for a cart.
type PricingEngine struct {
	coupons couponFinder
}

// NewPricingEngine creates a new PricingEngine.
func NewPricingEngine(coupons couponFinder) *PricingEngine {
	return &PricingEngine{coupons: coupons}
}

// Price prices lines for owner, applying couponCode when it names one of the
// owner's active coupons. It never consumes the coupon.
func (p *PricingEngine) Price(ctx context.Context, ownerUserID string, lines []models.CartLine, couponCode string) (*Quote, error) {
	couponCode = strings.TrimSpace(couponCode)

	subtotal, err := subtotalOf(lines)
	if err != nil {
		return nil, err
	}

	q := &Quote{Lines: lines, Subtotal: subtotal}
	if couponCode != "" {
		coupon, err := p.coupons.FindActive(ctx, ownerUserID, couponCode)
		if err != nil {
			return nil, errors.Wrap(err, "look up coupon")
		}
		if coupon == nil {
			q.CouponIgnored = true
		} else {
			q.CouponCode = coupon.Code
			q.DiscountPercentage = coupon.DiscountPercentage
		}
	}

	q.Discount, q.Total = applyDiscount(subtotal, q.DiscountPercentage)
	return q, nil
}

// subtotalOf validates lines and sums them.
func subtotalOf(lines []models.CartLine) (int64, error) {
	if len(lines) == 0 {
		return 0, ErrEmptyCart
	}
	var subtotal int64
	for _, l := range lines {
		if l.Quantity < 1 {
			return 0, &InvalidLineItemError{ProductRef: l.ProductRef, Reason: "quantity must be at least 1"}
		}
		if l.UnitPrice <= 0 {
			return 0, &InvalidLineItemError{ProductRef: l.ProductRef, Reason: "unit price must be positive"}
		}
		if l.UnitPrice > math.MaxInt64/int64(l.Quantity) {
			return 0, &InvalidLineItemError{ProductRef: l.ProductRef, Reason: "line amount overflows"}
		}
		amount := l.UnitPrice * int64(l.Quantity)
		if subtotal > math.MaxInt64-amount {
			return 0, &InvalidLineItemError{ProductRef: l.ProductRef, Reason: "cart amount overflows"}
		}
		subtotal += amount
	}
	return subtotal, nil
}

// applyDiscount returns the discount, rounded half-up to the minor unit, and
// the resulting total, never below zero.
func applyDiscount(subtotal int64, pct int) (discount, total int64) {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	discount = decimal.NewFromInt(subtotal).
		Mul(decimal.NewFromInt(int64(pct))).
		Div(decimal.NewFromInt(100)).
		Round(0).
		IntPart()
	total = subtotal - discount
	if total < 0 {
		total = 0
	}
	return discount, total
}

// FormatAmount renders minor units as a fixed two-decimal major amount.
func FormatAmount(minor int64) string {
	return decimal.New(minor, -2).StringFixed(2)
}
