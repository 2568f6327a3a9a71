package handlers

import (
	"fmt"

	"fabricmart/internal/apperr"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// respondError renders err as {error}. Operator responses also carry the cause.
func respondError(c *fiber.Ctx, logger *zap.Logger, err error, admin bool) error {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)
	if status >= fiber.StatusInternalServerError {
		logger.Error("request failed", zap.String("path", c.Path()), zap.String("kind", kind.String()), zap.Error(err))
	}

	body := fiber.Map{"error": apperr.PublicMessage(err)}
	if admin {
		body["detail"] = err.Error()
	}
	return c.Status(status).JSON(body)
}

// validationFailed renders validator field errors the same way for every handler.
func validationFailed(c *fiber.Ctx, err error) error {
	errorMessages := make(map[string]string)
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		for _, e := range validationErrors {
			errorMessages[e.Field()] = fmt.Sprintf("Field '%s' failed on the '%s' tag", e.Field(), e.Tag())
		}
	}
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error":  "validation failed",
		"errors": errorMessages,
	})
}

func badBody(c *fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
}
