package models

import "time"

// ListingStatus tracks whether a listing can be bought.
type ListingStatus string

const (
	ListingStatusActive ListingStatus = "ACTIVE"
	ListingStatusInCart ListingStatus = "IN_CART"
	ListingStatusSold   ListingStatus = "SOLD"
)

// Listing is a sellable item. The catalog owns it; this service only moves its status.
type Listing struct {
	ID         string        `json:"id" gorm:"primaryKey;type:varchar(64)"`
	SellerID   string        `json:"seller_id" gorm:"type:varchar(255);index"`
	Title      string        `json:"title" gorm:"type:varchar(255)"`
	PriceCents int64         `json:"price_cents"`
	Status     ListingStatus `json:"status" gorm:"type:varchar(16);index"`
	HoldAt     *time.Time    `json:"hold_at,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}
