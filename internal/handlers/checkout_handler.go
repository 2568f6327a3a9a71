package handlers

import (
	"fabricmart/internal/apperr"
	"fabricmart/internal/middleware"
	"fabricmart/internal/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// CheckoutHandler handles HTTP requests that start a checkout.
type CheckoutHandler struct {
	service *services.CheckoutService
	logger  *zap.Logger
}

// NewCheckoutHandler creates a new CheckoutHandler.
func NewCheckoutHandler(service *services.CheckoutService, logger *zap.Logger) *CheckoutHandler {
	return &CheckoutHandler{service: service, logger: logger}
}

// RegisterRoutes registers the checkout routes. Each middleware runs before the handler.
func (h *CheckoutHandler) RegisterRoutes(router fiber.Router, mw ...fiber.Handler) {
	chain := append(append([]fiber.Handler{}, mw...), h.HandleCreateSession)
	router.Post("/checkout/sessions", chain...)
}

// HandleCreateSession creates a processor checkout session for the posted cart.
func (h *CheckoutHandler) HandleCreateSession(c *fiber.Ctx) error {
	var req services.CheckoutRequest
	if err := c.BodyParser(&req); err != nil {
		h.logger.Debug("invalid checkout body", zap.Error(err))
		return badBody(c)
	}

	if userID := middleware.UserID(c); userID != "" {
		if req.BuyerID != "" && req.BuyerID != userID {
			return respondError(c, h.logger, apperr.Forbidden("buyer does not match the signed-in user"), false)
		}
		req.BuyerID = userID
		if req.CustomerEmail == "" {
			req.CustomerEmail = middleware.Email(c)
		}
	}

	resp, err := h.service.CreateSession(c.UserContext(), req)
	if err != nil {
		return respondError(c, h.logger, err, false)
	}
	return c.Status(fiber.StatusOK).JSON(resp)
}
