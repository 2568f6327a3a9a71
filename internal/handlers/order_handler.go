package handlers

import (
	"fabricmart/internal/middleware"
	"fabricmart/internal/services"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// CancelRequest is the buyer's cancellation body.
type CancelRequest struct {
	OrderID string `json:"order_id" validate:"required,max=64"`
	BuyerID string `json:"buyer_id" validate:"max=64"`
}

// OrderHandler handles buyer-facing order requests.
type OrderHandler struct {
	service  *services.OrderService
	validate *validator.Validate
	logger   *zap.Logger
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(service *services.OrderService, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		service:  service,
		validate: validator.New(),
		logger:   logger,
	}
}

// RegisterRoutes registers the order routes. auth must resolve the buyer; limit guards
// the cancellation endpoint.
func (h *OrderHandler) RegisterRoutes(router fiber.Router, auth, limit fiber.Handler) {
	orderRoutes := router.Group("/orders")
	orderRoutes.Get("/:id", auth, h.HandleGetOrder)
	orderRoutes.Post("/cancel", limit, auth, h.HandleCancel)
}

// HandleGetOrder returns one of the caller's orders.
func (h *OrderHandler) HandleGetOrder(c *fiber.Ctx) error {
	order, err := h.service.GetForBuyer(c.UserContext(), middleware.UserID(c), c.Params("id"))
	if err != nil {
		return respondError(c, h.logger, err, false)
	}
	return c.JSON(order)
}

// HandleCancel cancels a paid order inside the cancellation window.
func (h *OrderHandler) HandleCancel(c *fiber.Ctx) error {
	var req CancelRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}
	if err := h.validate.Struct(req); err != nil {
		return validationFailed(c, err)
	}

	order, err := h.service.Cancel(c.UserContext(), middleware.UserID(c), req.OrderID, req.BuyerID)
	if err != nil {
		return respondError(c, h.logger, err, false)
	}
	return c.JSON(fiber.Map{"success": true, "order": order})
}
