package billing

import (
	"context"
	"errors"
	"time"

	"github.com/ManuelReschke/ChatFox/app/models"
	"github.com/ManuelReschke/ChatFox/internal/pkg/cache"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides DB operations used by the subscription store.
type Repository interface {
	FindSubscription(ctx context.Context, id string) (*models.Subscription, error)
	UpsertSubscription(ctx context.Context, sub *models.Subscription, assignOwner bool) error
	ListSubscriptionsByUser(ctx context.Context, userID uint) ([]models.Subscription, error)
	CreateWebhookEventIfNotExists(ctx context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error)
	MarkWebhookProcessed(ctx context.Context, id uint, outcome, processingError string) error
	ListPendingWebhookEvents(ctx context.Context, provider string, limit int) ([]models.BillingWebhookEvent, error)
	HasLaterAppliedWebhook(ctx context.Context, provider, subscriptionID string, afterID uint) (bool, error)
}

// QueryCache caches query results outside the process. cache.RedisQueryCache
// implements it.
type QueryCache interface {
	GetJSON(ctx context.Context, key string, dest interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, value interface{}) error
}

// subscriptionColumns are overwritten on every upsert. user_id is only
// added when the event resolved an owner.
var subscriptionColumns = []string{
	"status",
	"amount",
	"currency",
	"recurring_interval",
	"current_period_start",
	"current_period_end",
	"cancel_at_period_end",
	"canceled_at",
	"started_at",
	"ends_at",
	"ended_at",
	"trial_start",
	"trial_end",
	"customer_id",
	"product_id",
	"checkout_id",
	"metadata",
	"updated_at",
}

type gormRepository struct {
	db      *gorm.DB
	queries QueryCache
}

// NewRepository creates a billing repository backed by GORM. queries may be
// nil; when set, select-by-owner results are cached there.
func NewRepository(db *gorm.DB, queries QueryCache) Repository {
	return &gormRepository{db: db, queries: queries}
}

func (r *gormRepository) FindSubscription(ctx context.Context, id string) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&sub).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) UpsertSubscription(ctx context.Context, sub *models.Subscription, assignOwner bool) error {
	columns := subscriptionColumns
	if assignOwner {
		columns = append(append([]string{}, subscriptionColumns...), "user_id")
	}

	db := r.db.WithContext(ctx)
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns(columns),
	}).Create(sub).Error; err != nil {
		return err
	}

	// The stored owner may differ from sub.UserID when it was left untouched.
	var stored models.Subscription
	if err := db.Where("id = ?", sub.ID).First(&stored).Error; err != nil {
		return err
	}
	*sub = stored
	return nil
}

func (r *gormRepository) ListSubscriptionsByUser(ctx context.Context, userID uint) ([]models.Subscription, error) {
	key := cache.SubscriptionsByUserKey(userID)
	if r.queries != nil {
		var cached []models.Subscription
		hit, err := r.queries.GetJSON(ctx, key, &cached)
		if err != nil {
			log.Debugf("[Billing] Query cache read failed for user %d: %v", userID, err)
		} else if hit {
			return cached, nil
		}
	}

	var subs []models.Subscription
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at").Find(&subs).Error; err != nil {
		return nil, err
	}

	if r.queries != nil {
		if err := r.queries.SetJSON(ctx, key, subs); err != nil {
			log.Debugf("[Billing] Query cache write failed for user %d: %v", userID, err)
		}
	}
	return subs, nil
}

func (r *gormRepository) CreateWebhookEventIfNotExists(ctx context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	db := r.db.WithContext(ctx)
	tx := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.BillingWebhookEvent
	if err := db.Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(ctx context.Context, id uint, outcome, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
		"outcome":          outcome,
	}
	return r.db.WithContext(ctx).Model(&models.BillingWebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}

func (r *gormRepository) ListPendingWebhookEvents(ctx context.Context, provider string, limit int) ([]models.BillingWebhookEvent, error) {
	var events []models.BillingWebhookEvent
	q := r.db.WithContext(ctx).
		Where("provider = ?", provider).
		Where("(processed_at IS NULL OR processing_error <> '')").
		Order("id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&events).Error
	return events, err
}

// HasLaterAppliedWebhook reports whether a delivery received after afterID
// was applied to the same subscription.
func (r *gormRepository) HasLaterAppliedWebhook(ctx context.Context, provider, subscriptionID string, afterID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.BillingWebhookEvent{}).
		Where("provider = ? AND subscription_id = ? AND id > ?", provider, subscriptionID, afterID).
		Where("processed_at IS NOT NULL AND processing_error = '' AND outcome = ?", models.WebhookOutcomeProcessed).
		Count(&count).Error
	return count > 0, err
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
