package handlers

import (
	"fabricmart/internal/services"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// StatusRequest is the admin status-change body.
type StatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// RefundRequest is the optional admin refund body.
type RefundRequest struct {
	Reason string `json:"reason" validate:"omitempty,oneof=duplicate fraudulent requested_by_customer"`
}

// AdminHandler exposes operator-only order operations.
type AdminHandler struct {
	orders   *services.OrderService
	validate *validator.Validate
	logger   *zap.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(orders *services.OrderService, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{orders: orders, validate: validator.New(), logger: logger}
}

// RegisterRoutes registers the admin routes on a router already gated by the admin secret.
func (h *AdminHandler) RegisterRoutes(router fiber.Router) {
	orderRoutes := router.Group("/orders")
	orderRoutes.Get("/:id", h.HandleGetOrder)
	orderRoutes.Patch("/:id/status", h.HandleUpdateStatus)
	orderRoutes.Post("/:id/refund", h.HandleRefund)
	orderRoutes.Post("/:id/mark-sold", h.HandleMarkSold)
	orderRoutes.Post("/:id/payouts", h.HandlePayouts)

	router.Post("/holds/release", h.HandleReleaseHolds)
}

// HandleGetOrder returns the order and its shipment.
func (h *AdminHandler) HandleGetOrder(c *fiber.Ctx) error {
	detail, err := h.orders.GetDetail(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, h.logger, err, true)
	}
	return c.JSON(detail)
}

// HandleUpdateStatus moves an order along the transition table.
func (h *AdminHandler) HandleUpdateStatus(c *fiber.Ctx) error {
	var req StatusRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}
	if err := h.validate.Struct(req); err != nil {
		return validationFailed(c, err)
	}

	order, err := h.orders.UpdateStatus(c.UserContext(), c.Params("id"), req.Status)
	if err != nil {
		return respondError(c, h.logger, err, true)
	}
	return c.JSON(order)
}

// HandleRefund refunds an order outside the buyer window.
func (h *AdminHandler) HandleRefund(c *fiber.Ctx) error {
	var req RefundRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badBody(c)
		}
	}
	if err := h.validate.Struct(req); err != nil {
		return validationFailed(c, err)
	}

	order, err := h.orders.Refund(c.UserContext(), c.Params("id"), req.Reason)
	if err != nil {
		return respondError(c, h.logger, err, true)
	}
	return c.JSON(fiber.Map{"success": true, "order": order})
}

// HandleMarkSold reconciles the order's listings to SOLD.
func (h *AdminHandler) HandleMarkSold(c *fiber.Ctx) error {
	n, err := h.orders.MarkListingsSold(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, h.logger, err, true)
	}
	return c.JSON(fiber.Map{"success": true, "updated": n})
}

// HandlePayouts transfers seller shares for the order.
func (h *AdminHandler) HandlePayouts(c *fiber.Ctx) error {
	res, err := h.orders.SendPayouts(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, h.logger, err, true)
	}
	return c.JSON(res)
}

// HandleReleaseHolds expires stale cart holds.
func (h *AdminHandler) HandleReleaseHolds(c *fiber.Ctx) error {
	n, err := h.orders.ReleaseStaleHolds(c.UserContext())
	if err != nil {
		return respondError(c, h.logger, err, true)
	}
	return c.JSON(fiber.Map{"released": n})
}
