package models

import "time"

// Notification kinds written by the order lifecycle.
const (
	NotificationOrderPaid      = "order_paid"
	NotificationItemSold       = "item_sold"
	NotificationOrderCanceled  = "order_canceled"
	NotificationOrderRefunded  = "order_refunded"
	NotificationOrderShipped   = "order_shipped"
	NotificationOrderDelivered = "order_delivered"
	NotificationPayoutSent     = "payout_sent"
)

// Notification is an append-only message shown to a user.
type Notification struct {
	ID        string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID    string     `json:"user_id" gorm:"type:varchar(255);index" validate:"required"`
	Kind      string     `json:"kind" gorm:"type:varchar(64)" validate:"required,max=64"`
	Title     string     `json:"title" gorm:"type:varchar(255)" validate:"required,max=255"`
	Body      string     `json:"body" validate:"max=2000"`
	Href      string     `json:"href" validate:"max=512"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
