package handlers

import (
	"crypto/subtle"

	"fabricmart/internal/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// WebhookHandler receives payment and shipping provider callbacks.
type WebhookHandler struct {
	payments      *services.PaymentEventService
	shipments     *services.ShipmentService
	shippingToken string
	logger        *zap.Logger
}

// NewWebhookHandler creates a new WebhookHandler. An empty shippingToken disables
// the shipping token check.
func NewWebhookHandler(payments *services.PaymentEventService, shipments *services.ShipmentService, shippingToken string, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		payments:      payments,
		shipments:     shipments,
		shippingToken: shippingToken,
		logger:        logger,
	}
}

// RegisterRoutes registers the webhook routes.
func (h *WebhookHandler) RegisterRoutes(router fiber.Router) {
	hooks := router.Group("/webhooks")
	hooks.Post("/stripe", h.HandleStripe)
	hooks.Post("/shipping", h.HandleShipping)
}

// HandleStripe verifies the signature over the raw body before anything reads it.
func (h *WebhookHandler) HandleStripe(c *fiber.Ctx) error {
	payload := append([]byte(nil), c.Body()...)
	result, err := h.payments.HandleWebhook(c.UserContext(), payload, c.Get("Stripe-Signature"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid signature"})
	}
	return c.Status(fiber.StatusOK).JSON(result)
}

// HandleShipping always answers 200 so the provider stops retrying.
func (h *WebhookHandler) HandleShipping(c *fiber.Ctx) error {
	if h.shippingToken != "" {
		token := c.Query("token")
		if token == "" {
			token = c.Get("x-shipping-token")
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(h.shippingToken)) != 1 {
			h.logger.Warn("shipping webhook with bad token", zap.String("ip", c.IP()))
			return c.Status(fiber.StatusOK).JSON(services.ShipmentResult{OK: true, Skipped: true})
		}
	}

	var ev services.ShippingEvent
	if err := c.BodyParser(&ev); err != nil {
		h.logger.Warn("unreadable shipping webhook", zap.Error(err))
		return c.Status(fiber.StatusOK).JSON(services.ShipmentResult{OK: true, Skipped: true})
	}
	return c.Status(fiber.StatusOK).JSON(h.shipments.HandleEvent(c.UserContext(), ev))
}
