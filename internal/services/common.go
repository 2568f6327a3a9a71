package services

import (
	"context"
	"strings"
	"time"

	"fabricmart/internal/models"
	"fabricmart/internal/repositories"

	"github.com/google/uuid"
)

// Clock returns the current time. Services take one so tests can move time.
type Clock func() time.Time

// resolveField returns the first candidate that is not blank.
func resolveField(candidates ...string) string {
	for _, c := range candidates {
		if strings.TrimSpace(c) != "" {
			return strings.TrimSpace(c)
		}
	}
	return ""
}

// newOrderID generates a human-readable order id such as HM-3F2A9C1B.
func newOrderID() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "HM-" + strings.ToUpper(id[:8])
}

// orderListingIDs collects every listing an order touched: the checkout index first,
// then the order's own listing column.
func orderListingIDs(ctx context.Context, sessions repositories.CheckoutSessionRepository, order *models.Order) []string {
	seen := map[string]bool{}
	var ids []string
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	if sessions != nil {
		if cs, err := sessions.GetByOrderID(ctx, order.ID); err == nil {
			for _, id := range cs.ListingIDs {
				add(id)
			}
		}
	}
	add(order.ListingID)
	return ids
}

func orderHref(orderID string) string {
	return "/orders/" + orderID
}
