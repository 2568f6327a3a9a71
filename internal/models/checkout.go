package models

import "time"

// CheckoutSession indexes an order id to the processor session created for it, so
// admin flows never have to search the processor for a session.
type CheckoutSession struct {
	OrderID    string    `json:"order_id" gorm:"primaryKey;type:varchar(64)"`
	SessionID  string    `json:"session_id" gorm:"type:varchar(255);uniqueIndex"`
	BuyerID    string    `json:"buyer_id" gorm:"type:varchar(64)"`
	ListingIDs []string  `json:"listing_ids" gorm:"serializer:json"`
	CreatedAt  time.Time `json:"created_at"`
}

// ProcessedEvent records a webhook event id that has already been applied.
type ProcessedEvent struct {
	EventID     string    `gorm:"primaryKey;type:varchar(255)"`
	Type        string    `gorm:"type:varchar(128);index"`
	ProcessedAt time.Time `gorm:"autoCreateTime"`
}

// SellerAccount mirrors the processor's verification flags for a connected seller.
type SellerAccount struct {
	AccountID        string    `json:"account_id" gorm:"primaryKey;type:varchar(255)"`
	ChargesEnabled   bool      `json:"charges_enabled"`
	PayoutsEnabled   bool      `json:"payouts_enabled"`
	DetailsSubmitted bool      `json:"details_submitted"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// All lists every persisted model for migrations.
func All() []interface{} {
	return []interface{}{
		&Order{},
		&Listing{},
		&Shipment{},
		&Notification{},
		&CheckoutSession{},
		&ProcessedEvent{},
		&SellerAccount{},
	}
}
