package repositories

import (
	"context"
	"errors"

	"fabricmart/internal/models"
)

// ErrShipmentNotFound is returned when an order has no shipment yet.
var ErrShipmentNotFound = errors.New("shipment not found")

// ShipmentRepository defines the interface for shipment data access.
type ShipmentRepository interface {
	GetByOrderID(ctx context.Context, orderID string) (*models.Shipment, error)
	// Upsert creates the shipment or overwrites its label/tracking columns.
	Upsert(ctx context.Context, shipment *models.Shipment) error
}
