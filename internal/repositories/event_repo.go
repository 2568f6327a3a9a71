package repositories

import (
	"context"
	"fmt"

	"fabricmart/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProcessedEventRepository is the webhook deduplication ledger.
type ProcessedEventRepository interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	// MarkProcessed records the event and reports false if it was already recorded.
	MarkProcessed(ctx context.Context, eventID, eventType string) (bool, error)
}

// GORMProcessedEventRepository is a GORM implementation of ProcessedEventRepository.
type GORMProcessedEventRepository struct {
	db *gorm.DB
}

// NewGORMProcessedEventRepository creates a new instance of GORMProcessedEventRepository.
func NewGORMProcessedEventRepository(db *gorm.DB) *GORMProcessedEventRepository {
	return &GORMProcessedEventRepository{db: db}
}

// Seen reports whether the event id is already in the ledger.
func (r *GORMProcessedEventRepository) Seen(ctx context.Context, eventID string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.ProcessedEvent{}).Where("event_id = ?", eventID).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to look up event %s: %w", eventID, err)
	}
	return count > 0, nil
}

// MarkProcessed inserts the event id, ignoring duplicates.
func (r *GORMProcessedEventRepository) MarkProcessed(ctx context.Context, eventID, eventType string) (bool, error) {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.ProcessedEvent{EventID: eventID, Type: eventType})
	if res.Error != nil {
		return false, fmt.Errorf("failed to record event %s: %w", eventID, res.Error)
	}
	return res.RowsAffected > 0, nil
}
