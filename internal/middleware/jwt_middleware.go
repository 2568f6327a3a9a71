package middleware

import (
	"strings"

	"fabricmart/internal/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const (
	localUserID = "user_id"
	localEmail  = "email"
)

// AuthRequired is a Fiber middleware to check for a valid buyer JWT.
func AuthRequired(authService *services.AuthService, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString, ok := bearerToken(c)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "authorization header must be 'Bearer <token>'",
			})
		}

		id, err := authService.ValidateToken(tokenString)
		if err != nil {
			logger.Debug("JWT validation failed", zap.Error(err), zap.String("path", c.Path()))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid or expired token",
			})
		}

		c.Locals(localUserID, id.UserID)
		c.Locals(localEmail, id.Email)
		return c.Next()
	}
}

// AuthOptional attaches the buyer identity when a valid token is present and
// otherwise lets the request through anonymously.
func AuthOptional(authService *services.AuthService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if tokenString, ok := bearerToken(c); ok {
			if id, err := authService.ValidateToken(tokenString); err == nil {
				c.Locals(localUserID, id.UserID)
				c.Locals(localEmail, id.Email)
			}
		}
		return c.Next()
	}
}

// UserID returns the authenticated buyer id, or "".
func UserID(c *fiber.Ctx) string {
	v, _ := c.Locals(localUserID).(string)
	return v
}

// Email returns the authenticated buyer email, or "".
func Email(c *fiber.Ctx) string {
	v, _ := c.Locals(localEmail).(string)
	return v
}

func bearerToken(c *fiber.Ctx) (string, bool) {
	parts := strings.SplitN(c.Get(fiber.HeaderAuthorization), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}
