package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"storefront/internal/middleware"
	"storefront/internal/models"
	"storefront/internal/services"
)

// OrderHandler handles HTTP requests for orders.
type OrderHandler struct {
	service *services.OrderService
	logger  *zap.Logger
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(service *services.OrderService, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers the order routes with the Fiber app.
func (h *OrderHandler) RegisterRoutes(router fiber.Router) {
	orderRoutes := router.Group("/orders")
	orderRoutes.Get("/", h.HandleGetOrders)
	orderRoutes.Get("/:id", h.HandleGetOrderByID)
}

// HandleGetOrders retrieves the caller's orders, optionally filtered by
// ?status=pending|paid|cancelled.
func (h *OrderHandler) HandleGetOrders(c *fiber.Ctx) error {
	status := models.PaymentStatus(c.Query("status"))
	switch status {
	case "", models.PaymentStatusPending, models.PaymentStatusPaid, models.PaymentStatusCancelled:
	default:
		return badRequest(c, "Unknown status filter")
	}

	orders, err := h.service.ListForOwner(c.UserContext(), middleware.UserID(c), status)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(orders)
}

// HandleGetOrderByID retrieves one of the caller's orders.
func (h *OrderHandler) HandleGetOrderByID(c *fiber.Ctx) error {
	order, err := h.service.GetForOwner(c.UserContext(), middleware.UserID(c), c.Params("id"))
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(order)
}
