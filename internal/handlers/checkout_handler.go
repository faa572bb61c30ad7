package handlers

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"storefront/internal/middleware"
	"storefront/internal/models"
	"storefront/internal/services"
	"storefront/pkg/payment"
)

// CallbackParser decodes a wallet provider callback body.
type CallbackParser func(body []byte) (*payment.CallbackEvent, error)

// CheckoutHandler handles HTTP requests for checkout.
type CheckoutHandler struct {
	service       *services.CheckoutService
	parseCallback CallbackParser
	validate      *validator.Validate
	logger        *zap.Logger
}

// NewCheckoutHandler creates a new CheckoutHandler.
func NewCheckoutHandler(service *services.CheckoutService, parseCallback CallbackParser, logger *zap.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		service:       service,
		parseCallback: parseCallback,
		validate:      validator.New(),
		logger:        logger,
	}
}

// RegisterRoutes registers the customer-facing checkout routes.
func (h *CheckoutHandler) RegisterRoutes(router fiber.Router) {
	checkoutRoutes := router.Group("/checkout")
	checkoutRoutes.Post("/start", h.HandleStart)
	checkoutRoutes.Post("/quote", h.HandleQuote)
	checkoutRoutes.Post("/finalize", h.HandleFinalize)
}

// RegisterWebhookRoutes registers the provider callback route. It must be
// mounted outside JWT authentication.
func (h *CheckoutHandler) RegisterWebhookRoutes(router fiber.Router, callbackToken string) {
	router.Post("/checkout/webhook", middleware.CallbackTokenRequired(callbackToken), h.HandleWebhook)
}

// idempotencyKeyHeader makes a resubmitted cod or free checkout return the
// first order. The key ends up in the order's external payment reference.
const idempotencyKeyHeader = "Idempotency-Key"

type startCheckoutRequest struct {
	Lines         []services.LineRequest `json:"lines" validate:"dive"`
	CouponCode    string                 `json:"coupon_code" validate:"max=64"`
	PaymentMethod string                 `json:"payment_method" validate:"required,oneof=card wallet cod"`
	ContactHandle string                 `json:"contact_handle" validate:"required_if=PaymentMethod wallet,max=32"`
}

type quoteRequest struct {
	Lines      []services.LineRequest `json:"lines" validate:"dive"`
	CouponCode string                 `json:"coupon_code" validate:"max=64"`
}

type finalizeRequest struct {
	SessionID string `json:"sessionId" validate:"required,max=255"`
}

// HandleStart starts a checkout. Cash on delivery answers with the created
// order; card and wallet answer with the provider redirect.
func (h *CheckoutHandler) HandleStart(c *fiber.Ctx) error {
	var req startCheckoutRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return validationFailed(c, err)
	}
	idempotencyKey := c.Get(idempotencyKeyHeader)
	if err := h.validate.Var(idempotencyKey, "omitempty,max=128,printascii"); err != nil {
		return badRequest(c, "Idempotency-Key must be at most 128 printable ASCII characters")
	}

	res, err := h.service.StartCheckout(c.UserContext(), services.StartCheckoutRequest{
		OwnerUserID:    middleware.UserID(c),
		Lines:          req.Lines,
		CouponCode:     req.CouponCode,
		PaymentMethod:  models.PaymentMethod(req.PaymentMethod),
		ContactHandle:  req.ContactHandle,
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		return writeError(c, h.logger, err)
	}

	body := fiber.Map{
		"total":         res.Quote.Total,
		"totalDisplay":  services.FormatAmount(res.Quote.Total),
		"couponApplied": res.Quote.CouponCode != "",
	}
	if res.Order != nil {
		body["orderId"] = res.Order.ID
	}
	if res.RedirectURL != "" {
		body["redirectUrl"] = res.RedirectURL
	}
	if res.SessionID != "" {
		body["sessionId"] = res.SessionID
	}
	if res.ReferenceID != "" {
		body["referenceId"] = res.ReferenceID
	}

	status := fiber.StatusOK
	if res.Order != nil && res.RedirectURL == "" {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(body)
}

// HandleQuote prices a cart without starting a checkout.
func (h *CheckoutHandler) HandleQuote(c *fiber.Ctx) error {
	var req quoteRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return validationFailed(c, err)
	}

	quote, err := h.service.Quote(c.UserContext(), middleware.UserID(c), req.Lines, req.CouponCode)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(fiber.Map{
		"subtotal":      quote.Subtotal,
		"discount":      quote.Discount,
		"total":         quote.Total,
		"totalDisplay":  services.FormatAmount(quote.Total),
		"couponApplied": quote.CouponCode != "",
		"couponIgnored": quote.CouponIgnored,
	})
}

// HandleFinalize converts a paid card session into an order. Safe to repeat.
func (h *CheckoutHandler) HandleFinalize(c *fiber.Ctx) error {
	var req finalizeRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return validationFailed(c, err)
	}

	order, err := h.service.FinalizeSession(c.UserContext(), middleware.UserID(c), req.SessionID)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(fiber.Map{
		"orderId": order.ID,
		"total":   order.TotalAmount,
	})
}

// HandleWebhook applies a wallet callback. The provider retries on any
// non-2xx answer, so only storage failures produce one.
func (h *CheckoutHandler) HandleWebhook(c *fiber.Ctx) error {
	ev, err := h.parseCallback(c.Body())
	if err != nil {
		h.logger.Warn("Ignoring undecodable wallet callback", zap.Error(err))
		return c.JSON(fiber.Map{"received": true})
	}

	if err := h.service.HandleWalletCallback(c.UserContext(), *ev); err != nil {
		h.logger.Error("Wallet callback failed",
			zap.String("reference_id", ev.ReferenceID),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "InternalError",
			"message": "Callback not processed",
		})
	}
	return c.JSON(fiber.Map{"received": true})
}
