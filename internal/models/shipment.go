package models

import "time"

// ShipmentStatus is the normalized label/tracking state.
type ShipmentStatus string

const (
	ShipmentStatusCreated   ShipmentStatus = "CREATED"
	ShipmentStatusPurchased ShipmentStatus = "PURCHASED"
	ShipmentStatusTracking  ShipmentStatus = "TRACKING"
	ShipmentStatusDelivered ShipmentStatus = "DELIVERED"
	ShipmentStatusError     ShipmentStatus = "ERROR"
)

var shipmentRank = map[ShipmentStatus]int{
	ShipmentStatusCreated:   1,
	ShipmentStatusPurchased: 2,
	ShipmentStatusTracking:  3,
	ShipmentStatusDelivered: 4,
}

// Allows reports whether a shipment in s may move to next. Progress only goes forward;
// ERROR can be entered from and left to any state.
func (s ShipmentStatus) Allows(next ShipmentStatus) bool {
	if next == ShipmentStatusError || s == ShipmentStatusError || s == "" {
		return true
	}
	return shipmentRank[next] >= shipmentRank[s]
}

// Shipment is the one-to-one shipping sub-record of an order.
type Shipment struct {
	OrderID          string         `json:"order_id" gorm:"primaryKey;type:varchar(64)"`
	ProviderObjectID string         `json:"provider_object_id" gorm:"type:varchar(255)"`
	Carrier          string         `json:"carrier" gorm:"type:varchar(64)"`
	ServiceLevel     string         `json:"service_level" gorm:"type:varchar(128)"`
	TrackingNumber   string         `json:"tracking_number" gorm:"type:varchar(128)"`
	TrackingURL      string         `json:"tracking_url"`
	LabelURL         string         `json:"label_url"`
	Status           ShipmentStatus `json:"status" gorm:"type:varchar(16)"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}
