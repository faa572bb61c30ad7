package middleware

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"
)

// CallbackTokenHeader carries the shared secret the wallet provider sends
// with every callback.
const CallbackTokenHeader = "x-callback-token"

// CallbackTokenRequired rejects requests whose callback token does not match.
// An empty token rejects everything.
func CallbackTokenRequired(token string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		got := c.Get(CallbackTokenHeader)
		if token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			return unauthorized(c, "Invalid callback token")
		}
		return c.Next()
	}
}
