package middlewares

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v3"
)

const apiKeyHeader = "X-API-Key"

// APIKeyMiddleware rejects requests whose X-API-Key header does not match the
// configured key. An empty configured key disables the check (local
// socket-only deployments).
func APIKeyMiddleware(key string) fiber.Handler {
	return func(c fiber.Ctx) error {
		if key == "" {
			return c.Next()
		}

		presented := c.Get(apiKeyHeader)
		if subtle.ConstantTimeCompare([]byte(presented), []byte(key)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid or missing API key",
			})
		}
		return c.Next()
	}
}
