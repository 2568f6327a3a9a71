// Package paymentstest holds helpers for exercising webhook verification in tests.
package paymentstest

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v76/webhook"
)

// SignatureHeader builds a valid Stripe-Signature header for payload.
func SignatureHeader(payload []byte, secret string, at time.Time) string {
	sig := webhook.ComputeSignature(at, payload, secret)
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(sig))
}

// CheckoutCompletedEvent renders a checkout.session.completed event body.
func CheckoutCompletedEvent(eventID, sessionID, paymentIntentID, paymentStatus string, subtotal, shipping int64, metadata map[string]string) []byte {
	return SessionEvent(eventID, "checkout.session.completed", sessionID, paymentIntentID, paymentStatus, subtotal, shipping, metadata)
}

// SessionEvent renders a checkout session event body of the given type.
func SessionEvent(eventID, eventType, sessionID, paymentIntentID, paymentStatus string, subtotal, shipping int64, metadata map[string]string) []byte {
	body := map[string]interface{}{
		"id":          eventID,
		"object":      "event",
		"api_version": "2023-10-16",
		"type":        eventType,
		"data": map[string]interface{}{
			"object": map[string]interface{}{
				"id":               sessionID,
				"object":           "checkout.session",
				"payment_intent":   paymentIntentID,
				"payment_status":   paymentStatus,
				"currency":         "usd",
				"amount_subtotal":  subtotal,
				"amount_total":     subtotal + shipping,
				"customer_details": map[string]string{"email": "details@example.com"},
				"shipping_cost":    map[string]int64{"amount_total": shipping},
				"metadata":         metadata,
			},
		},
	}
	b, _ := json.Marshal(body)
	return b
}

// AccountUpdatedEvent renders an account.updated event body.
func AccountUpdatedEvent(eventID, accountID string, chargesEnabled, payoutsEnabled bool) []byte {
	b, _ := json.Marshal(map[string]interface{}{
		"id":          eventID,
		"object":      "event",
		"api_version": "2023-10-16",
		"type":        "account.updated",
		"data": map[string]interface{}{
			"object": map[string]interface{}{
				"id":                accountID,
				"object":            "account",
				"charges_enabled":   chargesEnabled,
				"payouts_enabled":   payoutsEnabled,
				"details_submitted": true,
			},
		},
	})
	return b
}
