package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fabricmart/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GORMOrderRepository is a GORM implementation of OrderRepository.
type GORMOrderRepository struct {
	db *gorm.DB
}

// NewGORMOrderRepository creates a new instance of GORMOrderRepository.
func NewGORMOrderRepository(db *gorm.DB) *GORMOrderRepository {
	return &GORMOrderRepository{
		db: db,
	}
}

// GetByID retrieves a single order by its ID.
func (r *GORMOrderRepository) GetByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).First(&order, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to get order by ID %s: %w", id, err)
	}
	return &order, nil
}

// GetByCheckoutSession retrieves the order created for a processor checkout session.
func (r *GORMOrderRepository) GetByCheckoutSession(ctx context.Context, sessionID string) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).First(&order, "checkout_session_id = ?", sessionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to get order by session %s: %w", sessionID, err)
	}
	return &order, nil
}

// CreateIfAbsent inserts the order, ignoring unique-key conflicts.
func (r *GORMOrderRepository) CreateIfAbsent(ctx context.Context, order *models.Order) (bool, error) {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(order)
	if res.Error != nil {
		return false, fmt.Errorf("failed to create order %s: %w", order.ID, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// TransitionStatus performs a conditional status update.
func (r *GORMOrderRepository) TransitionStatus(ctx context.Context, id string, from []models.OrderStatus, to models.OrderStatus, extra map[string]interface{}) (bool, error) {
	updates := map[string]interface{}{"status": to}
	for k, v := range extra {
		updates[k] = v
	}
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("failed to move order %s to %s: %w", id, to, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// MarkPayoutsSent stamps the payout time once; a second call reports false.
func (r *GORMOrderRepository) MarkPayoutsSent(ctx context.Context, id string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND payouts_sent_at IS NULL", id).
		Update("payouts_sent_at", at)
	if res.Error != nil {
		return false, fmt.Errorf("failed to mark payouts for order %s: %w", id, res.Error)
	}
	return res.RowsAffected > 0, nil
}
