package repository

import (
	"context"
	"errors"
	"time"

	"github.com/ManuelReschke/ChatFox/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// usageRepository implements the UsageRepository interface
type usageRepository struct {
	db *gorm.DB
}

// NewUsageRepository creates a new usage repository instance
func NewUsageRepository(db *gorm.DB) UsageRepository {
	return &usageRepository{db: db}
}

// Get returns the counter for one user, kind and period. Missing counters
// are zero.
func (r *usageRepository) Get(ctx context.Context, userID uint, kind, period string) (int64, error) {
	var usage models.Usage
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND kind = ? AND period = ?", userID, kind, period).
		First(&usage).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return usage.Used, nil
}

// Increment atomically adds by to the counter and returns the new value.
func (r *usageRepository) Increment(ctx context.Context, userID uint, kind, period string, by int64) (int64, error) {
	db := r.db.WithContext(ctx)
	usage := &models.Usage{UserID: userID, Kind: kind, Period: period, Used: by}
	err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "kind"}, {Name: "period"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"used":       gorm.Expr("used + ?", by),
			"updated_at": time.Now(),
		}),
	}).Create(usage).Error
	if err != nil {
		return 0, err
	}
	return r.Get(ctx, userID, kind, period)
}
