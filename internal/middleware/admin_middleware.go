package middleware

import (
	"fabricmart/internal/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// AdminRequired gates operator routes behind the shared admin secret, accepted from
// x-admin-key, x-admin-token or an Authorization bearer.
func AdminRequired(admin *services.AdminAuth, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.Get("x-admin-key")
		if key == "" {
			key = c.Get("x-admin-token")
		}
		if key == "" {
			key, _ = bearerToken(c)
		}
		if !admin.Verify(key) {
			logger.Warn("rejected admin request", zap.String("path", c.Path()), zap.String("ip", c.IP()),
				zap.Bool("key_present", key != ""))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
		}
		return c.Next()
	}
}
