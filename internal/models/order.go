package models

import (
	"fmt"
	"time"
)

// OrderStatus is the closed set of order lifecycle states.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusPaid       OrderStatus = "PAID"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusShipped    OrderStatus = "SHIPPED"
	OrderStatusDelivered  OrderStatus = "DELIVERED"
	OrderStatusComplete   OrderStatus = "COMPLETE"
	OrderStatusCanceled   OrderStatus = "CANCELED"
	OrderStatusRefunded   OrderStatus = "REFUNDED"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusPaid, OrderStatusCanceled},
	OrderStatusPaid:       {OrderStatusProcessing, OrderStatusShipped, OrderStatusDelivered, OrderStatusComplete, OrderStatusCanceled, OrderStatusRefunded},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusDelivered, OrderStatusRefunded},
	OrderStatusShipped:    {OrderStatusDelivered, OrderStatusRefunded},
	OrderStatusDelivered:  {OrderStatusComplete, OrderStatusRefunded},
	OrderStatusComplete:   {OrderStatusRefunded},
	OrderStatusCanceled:   nil,
	OrderStatusRefunded:   nil,
}

// ParseOrderStatus validates a status string against the closed set.
func ParseOrderStatus(s string) (OrderStatus, error) {
	st := OrderStatus(s)
	if _, ok := orderTransitions[st]; !ok {
		return "", fmt.Errorf("invalid order status: %s", s)
	}
	return st, nil
}

// CanTransitionTo reports whether the lifecycle table allows s -> next.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal is true for states with no outgoing transitions.
func (s OrderStatus) IsTerminal() bool {
	_, known := orderTransitions[s]
	return known && len(orderTransitions[s]) == 0
}

// HasShipped is true once the order has left the seller (SHIPPED or later, excluding
// the canceled/refunded exits).
func (s OrderStatus) HasShipped() bool {
	switch s {
	case OrderStatusShipped, OrderStatusDelivered, OrderStatusComplete:
		return true
	}
	return false
}

// ItemSnapshot is the name+quantity view of a purchased line item captured at checkout.
type ItemSnapshot struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

// Order is a buyer's purchase tracked through payment, cancellation and shipment.
type Order struct {
	ID                string           `json:"id" gorm:"primaryKey;type:varchar(64)"`
	CheckoutSessionID string           `json:"checkout_session_id" gorm:"type:varchar(255);uniqueIndex"`
	PaymentIntentID   *string          `json:"payment_intent_id,omitempty" gorm:"type:varchar(255);uniqueIndex"`
	EventID           string           `json:"-" gorm:"type:varchar(255)"`
	BuyerID           string           `json:"buyer_id" gorm:"type:varchar(64);index"`
	BuyerEmail        string           `json:"buyer_email" gorm:"type:varchar(255)"`
	SellerID          string           `json:"seller_id" gorm:"type:varchar(255);index"`
	ListingID         string           `json:"listing_id" gorm:"type:varchar(64);index"`
	SubtotalCents     int64            `json:"subtotal_cents"`
	ShippingCents     int64            `json:"shipping_cents"`
	TotalCents        int64            `json:"total_cents"`
	Currency          string           `json:"currency" gorm:"type:varchar(3)"`
	Status            OrderStatus      `json:"status" gorm:"type:varchar(16);index"`
	Items             []ItemSnapshot   `json:"items" gorm:"serializer:json"`
	SellerSplit       map[string]int64 `json:"seller_split,omitempty" gorm:"serializer:json"`
	PayoutsSentAt     *time.Time       `json:"payouts_sent_at,omitempty"`
	CanceledAt        *time.Time       `json:"canceled_at,omitempty"`
	RefundedAt        *time.Time       `json:"refunded_at,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// PaymentRef returns the processor reference used for refunds.
func (o *Order) PaymentRef() string {
	if o.PaymentIntentID == nil {
		return ""
	}
	return *o.PaymentIntentID
}
