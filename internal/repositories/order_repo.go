package repositories

import (
	"context"
	"errors"
	"time"

	"fabricmart/internal/models"
)

// ErrOrderNotFound is returned when no order matches the lookup.
var ErrOrderNotFound = errors.New("order not found")

// OrderRepository defines the interface for order data access.
type OrderRepository interface {
	GetByID(ctx context.Context, id string) (*models.Order, error)
	GetByCheckoutSession(ctx context.Context, sessionID string) (*models.Order, error)
	// CreateIfAbsent inserts the order unless a row with the same id, session or
	// payment intent already exists. It reports whether a row was written.
	CreateIfAbsent(ctx context.Context, order *models.Order) (bool, error)
	// TransitionStatus moves the order to `to` only while its current status is one of
	// `from`. Extra column updates are applied in the same statement.
	TransitionStatus(ctx context.Context, id string, from []models.OrderStatus, to models.OrderStatus, extra map[string]interface{}) (bool, error)
	MarkPayoutsSent(ctx context.Context, id string, at time.Time) (bool, error)
}
