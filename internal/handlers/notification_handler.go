package handlers

import (
	"fabricmart/internal/middleware"
	"fabricmart/internal/models"
	"fabricmart/internal/services"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// NotificationRequest is the body of the internal notifications endpoint.
type NotificationRequest struct {
	UserID string `json:"user_id" validate:"required,max=255"`
	Kind   string `json:"kind" validate:"required,max=64"`
	Title  string `json:"title" validate:"required,max=255"`
	Body   string `json:"body" validate:"max=2000"`
	Href   string `json:"href" validate:"max=512"`
}

// NotificationHandler handles notification requests.
type NotificationHandler struct {
	service  *services.NotificationService
	validate *validator.Validate
	logger   *zap.Logger
}

// NewNotificationHandler creates a new NotificationHandler.
func NewNotificationHandler(service *services.NotificationService, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{service: service, validate: validator.New(), logger: logger}
}

// RegisterRoutes registers the notification routes. admin gates writes; auth gates reads.
func (h *NotificationHandler) RegisterRoutes(router fiber.Router, admin, auth fiber.Handler) {
	router.Post("/notifications", admin, h.HandleCreate)
	router.Get("/notifications", auth, h.HandleList)
}

// HandleCreate stores one notification.
func (h *NotificationHandler) HandleCreate(c *fiber.Ctx) error {
	var req NotificationRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}
	if err := h.validate.Struct(req); err != nil {
		return validationFailed(c, err)
	}

	n := &models.Notification{UserID: req.UserID, Kind: req.Kind, Title: req.Title, Body: req.Body, Href: req.Href}
	if err := h.service.Create(c.UserContext(), n); err != nil {
		return respondError(c, h.logger, err, true)
	}
	return c.Status(fiber.StatusCreated).JSON(n)
}

// HandleList returns the caller's newest notifications.
func (h *NotificationHandler) HandleList(c *fiber.Ctx) error {
	list, err := h.service.ListForUser(c.UserContext(), middleware.UserID(c), c.QueryInt("limit", 50))
	if err != nil {
		return respondError(c, h.logger, err, false)
	}
	return c.JSON(fiber.Map{"notifications": list})
}
