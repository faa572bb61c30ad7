package services

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"storefront/internal/models"
	"storefront/internal/repositories"
)

const (
	giftCodePrefix  = "GIFT"
	giftCodeLength  = 6
	giftCodeLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// CouponService is the coupon ledger.
type CouponService struct {
	repo   repositories.CouponRepository
	logger *zap.Logger
	now    func() time.Time
}

// NewCouponService creates a new CouponService.
func NewCouponService(repo repositories.CouponRepository, logger *zap.Logger) *CouponService {
	return &CouponService{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

// FindActive returns the owner's active coupon with code, or nil if there is
// none.
func (s *CouponService) FindActive(ctx context.Context, ownerUserID, code string) (*models.Coupon, error) {
	coupon, err := s.repo.FindActive(ctx, ownerUserID, code, s.now())
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, nil
	}
	return coupon, err
}

// ActiveFor returns the owner's single active coupon, or nil.
func (s *CouponService) ActiveFor(ctx context.Context, ownerUserID string) (*models.Coupon, error) {
	coupon, err := s.repo.ActiveForOwner(ctx, ownerUserID, s.now())
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, nil
	}
	return coupon, err
}

// Deactivate consumes the coupon. It reports whether this call consumed it;
// a second call is a no-op.
func (s *CouponService) Deactivate(ctx context.Context, ownerUserID, code string) (bool, error) {
	return s.repo.Deactivate(ctx, ownerUserID, code)
}

// GrantLoyaltyCoupon replaces every coupon of the owner with a fresh active
// gift coupon.
func (s *CouponService) GrantLoyaltyCoupon(ctx context.Context, ownerUserID string, pct int, ttl time.Duration) (*models.Coupon, error) {
	code, err := giftCode()
	if err != nil {
		return nil, errors.Wrap(err, "generate gift code")
	}
	coupon := &models.Coupon{
		OwnerUserID:        ownerUserID,
		Code:               code,
		DiscountPercentage: pct,
		IsActive:           true,
		ExpirationDate:     s.now().Add(ttl),
	}
	if err := s.repo.Replace(ctx, coupon); err != nil {
		return nil, errors.Wrap(err, "replace coupons")
	}
	s.logger.Info("Loyalty coupon granted",
		zap.String("owner_user_id", ownerUserID),
		zap.String("code", code),
		zap.Int("discount_pct", pct),
	)
	return coupon, nil
}

func giftCode() (string, error) {
	b := make([]byte, giftCodeLength)
	max := big.NewInt(int64(len(giftCodeLetters)))
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = giftCodeLetters[n.Int64()]
	}
	return giftCodePrefix + string(b), nil
}
