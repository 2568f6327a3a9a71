package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"fabricmart/internal/apperr"
	"fabricmart/internal/models"
	"fabricmart/internal/repositories"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Notifier delivers a single notification.
type Notifier interface {
	Notify(ctx context.Context, n models.Notification) error
}

// NotificationService owns the notifications table: validated inserts and per-user listing.
type NotificationService struct {
	repo     repositories.NotificationRepository
	validate *validator.Validate
}

// NewNotificationService creates a new NotificationService.
func NewNotificationService(repo repositories.NotificationRepository) *NotificationService {
	return &NotificationService{repo: repo, validate: validator.New()}
}

// Create validates and stores a notification.
func (s *NotificationService) Create(ctx context.Context, n *models.Notification) error {
	if err := s.validate.Struct(n); err != nil {
		return apperr.Validation(fmt.Sprintf("invalid notification: %v", err))
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return apperr.Internal("failed to store notification", err)
	}
	return nil
}

// ListForUser returns the newest notifications for userID.
func (s *NotificationService) ListForUser(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	list, err := s.repo.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, apperr.Internal("failed to list notifications", err)
	}
	return list, nil
}

// Notify implements Notifier by writing the row directly.
func (s *NotificationService) Notify(ctx context.Context, n models.Notification) error {
	return s.Create(ctx, &n)
}

// HandleQueuedMessage stores a notification received from the message queue.
func (s *NotificationService) HandleQueuedMessage(body []byte) error {
	var n models.Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return fmt.Errorf("failed to decode queued notification: %w", err)
	}
	return s.Create(context.Background(), &n)
}

// HTTPNotifier posts notifications to the sibling notifications endpoint.
type HTTPNotifier struct {
	url      string
	adminKey string
	timeout  time.Duration
}

// NewHTTPNotifier creates a notifier posting to url with the admin key header.
func NewHTTPNotifier(url, adminKey string, timeout time.Duration) *HTTPNotifier {
	return &HTTPNotifier{url: url, adminKey: adminKey, timeout: timeout}
}

func (h *HTTPNotifier) Notify(_ context.Context, n models.Notification) error {
	agent := fiber.Post(h.url)
	agent.Set("x-admin-key", h.adminKey)
	agent.JSON(n)
	agent.Timeout(h.timeout)

	code, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("notify %s: %w", h.url, errs[0])
	}
	if code >= fiber.StatusMultipleChoices {
		return fmt.Errorf("notify %s: unexpected status %d: %s", h.url, code, string(body))
	}
	return nil
}

// Publisher is the subset of the message-queue client used for notifications.
type Publisher interface {
	PublishJSON(v interface{}) error
}

// QueueNotifier publishes notifications for an asynchronous consumer.
type QueueNotifier struct {
	publisher Publisher
}

// NewQueueNotifier creates a notifier publishing through p.
func NewQueueNotifier(p Publisher) *QueueNotifier {
	return &QueueNotifier{publisher: p}
}

func (q *QueueNotifier) Notify(_ context.Context, n models.Notification) error {
	return q.publisher.PublishJSON(n)
}

// Dispatcher sends notifications without ever failing the caller.
type Dispatcher struct {
	notifier Notifier
	timeout  time.Duration
	logger   *zap.Logger
}

// NewDispatcher wraps notifier. A zero timeout means no per-call deadline.
func NewDispatcher(notifier Notifier, timeout time.Duration, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{notifier: notifier, timeout: timeout, logger: logger}
}

// Send delivers one notification. Errors are logged and dropped; blank recipients are skipped.
func (d *Dispatcher) Send(ctx context.Context, userID, kind, title, body, href string) {
	if d == nil || d.notifier == nil || userID == "" {
		return
	}
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("notification dispatch panicked", zap.String("kind", kind), zap.Any("panic", r))
		}
	}()

	n := models.Notification{UserID: userID, Kind: kind, Title: title, Body: body, Href: href}
	if err := d.notifier.Notify(ctx, n); err != nil {
		d.logger.Warn("failed to send notification",
			zap.String("user_id", userID), zap.String("kind", kind), zap.Error(err))
	}
}
