package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fabricmart/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GORMListingRepository is a GORM implementation of ListingRepository.
type GORMListingRepository struct {
	db *gorm.DB
}

// NewGORMListingRepository creates a new instance of GORMListingRepository.
func NewGORMListingRepository(db *gorm.DB) *GORMListingRepository {
	return &GORMListingRepository{
		db: db,
	}
}

// GetByID retrieves a single listing by its ID.
func (r *GORMListingRepository) GetByID(ctx context.Context, id string) (*models.Listing, error) {
	var listing models.Listing
	if err := r.db.WithContext(ctx).First(&listing, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrListingNotFound
		}
		return nil, fmt.Errorf("failed to get listing by ID %s: %w", id, err)
	}
	return &listing, nil
}

// Create creates a new listing in the database.
func (r *GORMListingRepository) Create(ctx context.Context, listing *models.Listing) error {
	if listing.ID == "" {
		listing.ID = uuid.New().String()
	}
	if listing.Status == "" {
		listing.Status = models.ListingStatusActive
	}
	if err := r.db.WithContext(ctx).Create(listing).Error; err != nil {
		return fmt.Errorf("failed to create listing: %w", err)
	}
	return nil
}

// Hold moves the listing to IN_CART.
func (r *GORMListingRepository) Hold(ctx context.Context, id string, now, staleBefore time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Listing{}).
		Where("id = ? AND (status = ? OR (status = ? AND hold_at < ?))",
			id, models.ListingStatusActive, models.ListingStatusInCart, staleBefore).
		Updates(map[string]interface{}{"status": models.ListingStatusInCart, "hold_at": now})
	if res.Error != nil {
		return false, fmt.Errorf("failed to hold listing %s: %w", id, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// RefreshHold moves hold_at forward on an IN_CART listing.
func (r *GORMListingRepository) RefreshHold(ctx context.Context, id string, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Listing{}).
		Where("id = ? AND status = ?", id, models.ListingStatusInCart).
		Update("hold_at", now)
	if res.Error != nil {
		return false, fmt.Errorf("failed to refresh hold on listing %s: %w", id, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// MarkSold flips the listing to SOLD and clears its hold.
func (r *GORMListingRepository) MarkSold(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Listing{}).
		Where("id = ? AND status <> ?", id, models.ListingStatusSold).
		Updates(map[string]interface{}{"status": models.ListingStatusSold, "hold_at": nil})
	if res.Error != nil {
		return false, fmt.Errorf("failed to mark listing %s sold: %w", id, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// Reopen makes the listing ACTIVE again.
func (r *GORMListingRepository) Reopen(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Listing{}).
		Where("id = ? AND status IN ?", id, []models.ListingStatus{models.ListingStatusSold, models.ListingStatusInCart}).
		Updates(map[string]interface{}{"status": models.ListingStatusActive, "hold_at": nil})
	if res.Error != nil {
		return false, fmt.Errorf("failed to reopen listing %s: %w", id, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// ReleaseHold drops a cart hold without touching sold listings.
func (r *GORMListingRepository) ReleaseHold(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Listing{}).
		Where("id = ? AND status = ?", id, models.ListingStatusInCart).
		Updates(map[string]interface{}{"status": models.ListingStatusActive, "hold_at": nil})
	if res.Error != nil {
		return false, fmt.Errorf("failed to release hold on listing %s: %w", id, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// ReleaseStaleHolds returns every hold older than staleBefore to ACTIVE.
func (r *GORMListingRepository) ReleaseStaleHolds(ctx context.Context, staleBefore time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Listing{}).
		Where("status = ? AND hold_at < ?", models.ListingStatusInCart, staleBefore).
		Updates(map[string]interface{}{"status": models.ListingStatusActive, "hold_at": nil})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to release stale holds: %w", res.Error)
	}
	return res.RowsAffected, nil
}
