package handlers

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"storefront/internal/services"
)

var errorCodes = []struct {
	err    error
	status int
	code   string
}{
	{services.ErrEmptyCart, fiber.StatusBadRequest, "EmptyCart"},
	{services.ErrInvalidLineItem, fiber.StatusBadRequest, "InvalidLineItem"},
	{services.ErrCartTooLarge, fiber.StatusBadRequest, "CartTooLarge"},
	{services.ErrUnsupportedPaymentMethod, fiber.StatusBadRequest, "UnsupportedPaymentMethod"},
	{services.ErrPaymentIncomplete, fiber.StatusBadRequest, "PaymentIncomplete"},
	{services.ErrChargeRejected, fiber.StatusBadRequest, "ChargeRejected"},
	{services.ErrSessionNotFound, fiber.StatusNotFound, "SessionNotFound"},
	{services.ErrOrderNotFound, fiber.StatusNotFound, "OrderNotFound"},
	{services.ErrGatewayUnavailable, fiber.StatusBadGateway, "GatewayUnavailable"},
}

// writeError maps service errors to status codes and the error body. Unknown
// errors are logged and reported without detail.
func writeError(c *fiber.Ctx, logger *zap.Logger, err error) error {
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return c.Status(e.status).JSON(fiber.Map{
				"error":   e.code,
				"message": err.Error(),
			})
		}
	}
	logger.Error("Request failed",
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
		zap.Error(err),
	)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error":   "InternalError",
		"message": "Internal server error",
	})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error":   "BadRequest",
		"message": msg,
	})
}

func validationFailed(c *fiber.Ctx, err error) error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return badRequest(c, err.Error())
	}
	errorMessages := make(map[string]string)
	for _, e := range validationErrors {
		errorMessages[e.Field()] = fmt.Sprintf("Field '%s' failed on the '%s' tag", e.Field(), e.Tag())
	}
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error":   "ValidationFailed",
		"message": "Validation failed",
		"errors":  errorMessages,
	})
}
