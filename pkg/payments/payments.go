// Package payments wraps the payment processor: checkout sessions, refunds, seller
// transfers and webhook verification.
package payments

import (
	"context"
	"encoding/json"
)

// Event types consumed from the processor.
const (
	EventCheckoutCompleted     = "checkout.session.completed"
	EventAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"
	EventAsyncPaymentFailed    = "checkout.session.async_payment_failed"
	EventCheckoutExpired       = "checkout.session.expired"
	EventAccountUpdated        = "account.updated"
)

// PaymentStatusPaid is the session payment_status for a captured payment.
const PaymentStatusPaid = "paid"

// LineItem is one priced row on the hosted checkout page.
type LineItem struct {
	Name       string
	UnitAmount int64
	Quantity   int64
}

// CheckoutSessionInput describes a hosted checkout session.
type CheckoutSessionInput struct {
	OrderID        string
	Currency       string
	CustomerEmail  string
	SuccessURL     string
	CancelURL      string
	LineItems      []LineItem
	ShippingAmount int64
	Metadata       map[string]string
}

// CheckoutSessionResult is the created session.
type CheckoutSessionResult struct {
	ID  string
	URL string
}

// RefundInput refunds a payment intent. Amount 0 refunds the full charge.
type RefundInput struct {
	PaymentIntentID string
	Amount          int64
	Reason          string
	IdempotencyKey  string
}

// RefundResult is the processor's refund record.
type RefundResult struct {
	ID     string
	Status string
}

// TransferInput moves funds to a connected seller account.
type TransferInput struct {
	Destination    string
	Amount         int64
	Currency       string
	TransferGroup  string
	IdempotencyKey string
}

// TransferResult is the processor's transfer record.
type TransferResult struct {
	ID string
}

// Gateway is the outbound surface of the payment processor.
type Gateway interface {
	CreateCheckoutSession(ctx context.Context, in CheckoutSessionInput) (*CheckoutSessionResult, error)
	Refund(ctx context.Context, in RefundInput) (*RefundResult, error)
	Transfer(ctx context.Context, in TransferInput) (*TransferResult, error)
}

// Event is a verified webhook event. Raw holds the event's data.object.
type Event struct {
	ID   string
	Type string
	Raw  json.RawMessage
}

// EventVerifier authenticates an inbound webhook body before anything parses it.
type EventVerifier interface {
	Verify(payload []byte, signatureHeader string) (*Event, error)
}

// CheckoutCompletion is the subset of a checkout session the order lifecycle reads.
type CheckoutCompletion struct {
	SessionID            string
	PaymentIntentID      string
	PaymentStatus        string
	ClientReferenceID    string
	CustomerEmail        string
	CustomerDetailsEmail string
	Currency             string
	AmountSubtotal       int64
	AmountTotal          int64
	ShippingAmount       int64
	Metadata             map[string]string
}

// AccountUpdate is the subset of a connected account the seller flow reads.
type AccountUpdate struct {
	AccountID        string
	ChargesEnabled   bool
	PayoutsEnabled   bool
	DetailsSubmitted bool
}
