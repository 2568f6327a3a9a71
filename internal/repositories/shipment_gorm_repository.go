package repositories

import (
	"context"
	"errors"
	"fmt"

	"fabricmart/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GORMShipmentRepository is a GORM implementation of ShipmentRepository.
type GORMShipmentRepository struct {
	db *gorm.DB
}

// NewGORMShipmentRepository creates a new instance of GORMShipmentRepository.
func NewGORMShipmentRepository(db *gorm.DB) *GORMShipmentRepository {
	return &GORMShipmentRepository{db: db}
}

// GetByOrderID retrieves the shipment for an order.
func (r *GORMShipmentRepository) GetByOrderID(ctx context.Context, orderID string) (*models.Shipment, error) {
	var shipment models.Shipment
	if err := r.db.WithContext(ctx).First(&shipment, "order_id = ?", orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrShipmentNotFound
		}
		return nil, fmt.Errorf("failed to get shipment for order %s: %w", orderID, err)
	}
	return &shipment, nil
}

// Upsert writes the shipment keyed by order id.
func (r *GORMShipmentRepository) Upsert(ctx context.Context, shipment *models.Shipment) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "order_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"provider_object_id", "carrier", "service_level", "tracking_number",
			"tracking_url", "label_url", "status", "updated_at",
		}),
	}).Create(shipment).Error
	if err != nil {
		return fmt.Errorf("failed to upsert shipment for order %s: %w", shipment.OrderID, err)
	}
	return nil
}
