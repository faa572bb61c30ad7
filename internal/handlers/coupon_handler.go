package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"storefront/internal/middleware"
	"storefront/internal/models"
	"storefront/internal/services"
)

// CouponHandler exposes the caller's active coupon.
type CouponHandler struct {
	service *services.CouponService
	logger  *zap.Logger
}

// NewCouponHandler creates a new CouponHandler.
func NewCouponHandler(service *services.CouponService, logger *zap.Logger) *CouponHandler {
	return &CouponHandler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers the coupon routes with the Fiber app.
func (h *CouponHandler) RegisterRoutes(router fiber.Router) {
	router.Get("/coupons", h.HandleGetCoupons)
}

// HandleGetCoupons lists the caller's usable coupons: none or one.
func (h *CouponHandler) HandleGetCoupons(c *fiber.Ctx) error {
	coupon, err := h.service.ActiveFor(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return writeError(c, h.logger, err)
	}
	coupons := []models.Coupon{}
	if coupon != nil {
		coupons = append(coupons, *coupon)
	}
	return c.JSON(coupons)
}
