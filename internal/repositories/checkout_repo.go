package repositories

import (
	"context"
	"errors"
	"fmt"

	"fabricmart/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrCheckoutSessionNotFound is returned when no session was indexed for an order.
var ErrCheckoutSessionNotFound = errors.New("checkout session not found")

// CheckoutSessionRepository persists the order id -> processor session index.
type CheckoutSessionRepository interface {
	Save(ctx context.Context, s *models.CheckoutSession) error
	GetByOrderID(ctx context.Context, orderID string) (*models.CheckoutSession, error)
}

// GORMCheckoutSessionRepository is a GORM implementation of CheckoutSessionRepository.
type GORMCheckoutSessionRepository struct {
	db *gorm.DB
}

// NewGORMCheckoutSessionRepository creates a new instance of GORMCheckoutSessionRepository.
func NewGORMCheckoutSessionRepository(db *gorm.DB) *GORMCheckoutSessionRepository {
	return &GORMCheckoutSessionRepository{db: db}
}

// Save writes the index row; a retried checkout for the same order replaces the session id.
func (r *GORMCheckoutSessionRepository) Save(ctx context.Context, s *models.CheckoutSession) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "order_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"session_id", "buyer_id", "listing_ids"}),
	}).Create(s).Error
	if err != nil {
		return fmt.Errorf("failed to index checkout session for order %s: %w", s.OrderID, err)
	}
	return nil
}

// GetByOrderID resolves the session created for an order.
func (r *GORMCheckoutSessionRepository) GetByOrderID(ctx context.Context, orderID string) (*models.CheckoutSession, error) {
	var s models.CheckoutSession
	if err := r.db.WithContext(ctx).First(&s, "order_id = ?", orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCheckoutSessionNotFound
		}
		return nil, fmt.Errorf("failed to get checkout session for order %s: %w", orderID, err)
	}
	return &s, nil
}
