package repositories

import (
	"context"
	"errors"
	"time"

	"fabricmart/internal/models"
)

// ErrListingNotFound is returned when no listing matches the lookup.
var ErrListingNotFound = errors.New("listing not found")

// ListingRepository defines the status operations the order lifecycle performs on listings.
// Every mutation is a conditional update reporting whether a row changed.
type ListingRepository interface {
	GetByID(ctx context.Context, id string) (*models.Listing, error)
	Create(ctx context.Context, listing *models.Listing) error
	// Hold reserves an ACTIVE listing, or one whose hold started before staleBefore.
	Hold(ctx context.Context, id string, now, staleBefore time.Time) (bool, error)
	// RefreshHold restarts the hold clock on a listing that is already IN_CART.
	RefreshHold(ctx context.Context, id string, now time.Time) (bool, error)
	// MarkSold flips the listing to SOLD unless it already is.
	MarkSold(ctx context.Context, id string) (bool, error)
	// Reopen returns a SOLD or IN_CART listing to ACTIVE.
	Reopen(ctx context.Context, id string) (bool, error)
	// ReleaseHold returns an IN_CART listing to ACTIVE.
	ReleaseHold(ctx context.Context, id string) (bool, error)
	ReleaseStaleHolds(ctx context.Context, staleBefore time.Time) (int64, error)
}
