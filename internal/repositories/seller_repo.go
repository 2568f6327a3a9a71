package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fabricmart/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SellerAccountRepository stores connected-account verification flags.
type SellerAccountRepository interface {
	Upsert(ctx context.Context, a *models.SellerAccount) error
	GetByID(ctx context.Context, accountID string) (*models.SellerAccount, error)
}

// GORMSellerAccountRepository is a GORM implementation of SellerAccountRepository.
type GORMSellerAccountRepository struct {
	db *gorm.DB
}

// NewGORMSellerAccountRepository creates a new instance of GORMSellerAccountRepository.
func NewGORMSellerAccountRepository(db *gorm.DB) *GORMSellerAccountRepository {
	return &GORMSellerAccountRepository{db: db}
}

// Upsert writes the latest flags for the account.
func (r *GORMSellerAccountRepository) Upsert(ctx context.Context, a *models.SellerAccount) error {
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = time.Now()
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"charges_enabled", "payouts_enabled", "details_submitted", "updated_at"}),
	}).Create(a).Error
	if err != nil {
		return fmt.Errorf("failed to upsert seller account %s: %w", a.AccountID, err)
	}
	return nil
}

// GetByID returns the stored flags, or nil when the account was never seen.
func (r *GORMSellerAccountRepository) GetByID(ctx context.Context, accountID string) (*models.SellerAccount, error) {
	var a models.SellerAccount
	err := r.db.WithContext(ctx).First(&a, "account_id = ?", accountID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get seller account %s: %w", accountID, err)
	}
	return &a, nil
}
