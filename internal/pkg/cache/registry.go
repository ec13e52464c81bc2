package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/ManuelReschke/ChatFox/app/models"
	"github.com/gofiber/fiber/v2/log"
)

// UsageCounter is a cached usage count for one counting period
// (e.g. "2026-10-15" for daily counters, "2026-10" for monthly ones).
type UsageCounter struct {
	Period string
	Used   int64
}

// ProStatus is a cached entitlement answer. An entitled answer is only
// valid until the latest period end among the records that granted it.
type ProStatus struct {
	Entitled bool
	Until    time.Time
}

// ValidAt reports whether the cached answer still holds at now.
func (p ProStatus) ValidAt(now time.Time) bool {
	return !p.Entitled || now.Before(p.Until)
}

// QueryInvalidator drops durable-store query results that touch a user's
// subscription or account rows.
type QueryInvalidator interface {
	InvalidateUser(ctx context.Context, userID uint) error
}

// CacheSpec is the capacity and lifetime of one cache namespace.
type CacheSpec struct {
	MaxEntries int
	TTL        time.Duration
}

// RegistryConfig tunes the four namespaces by volatility.
type RegistryConfig struct {
	Session            CacheSpec
	SubscriptionDetail CacheSpec
	UsageCounters      CacheSpec
	ProStatus          CacheSpec
	SweepInterval      time.Duration
}

// DefaultRegistryConfig returns the production defaults.
func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		Session:            CacheSpec{MaxEntries: 500, TTL: 15 * time.Minute},
		SubscriptionDetail: CacheSpec{MaxEntries: 1000, TTL: 1 * time.Minute},
		UsageCounters:      CacheSpec{MaxEntries: 2000, TTL: 5 * time.Minute},
		ProStatus:          CacheSpec{MaxEntries: 1000, TTL: 30 * time.Minute},
		SweepInterval:      1 * time.Minute,
	}
}

// Registry holds the process-wide entitlement caches. It is created once at
// startup and passed to every reader and writer of subscription truth.
//
// Writers must never delete individual keys of these namespaces; they call
// InvalidateUser so that no namespace is forgotten.
type Registry struct {
	Session            *Bounded[string, *models.User]
	SubscriptionDetail *Bounded[uint, []models.Subscription]
	UsageCounters      *Bounded[string, UsageCounter]
	ProStatus          *Bounded[uint, ProStatus]

	queries QueryInvalidator
}

// NewRegistry builds the four caches. queries may be nil when the durable
// store has no query-result cache.
func NewRegistry(cfg RegistryConfig, queries QueryInvalidator, opts ...Option) *Registry {
	opts = append([]Option{WithSweepInterval(cfg.SweepInterval)}, opts...)
	return &Registry{
		Session:            New[string, *models.User](cfg.Session.MaxEntries, cfg.Session.TTL, opts...),
		SubscriptionDetail: New[uint, []models.Subscription](cfg.SubscriptionDetail.MaxEntries, cfg.SubscriptionDetail.TTL, opts...),
		UsageCounters:      New[string, UsageCounter](cfg.UsageCounters.MaxEntries, cfg.UsageCounters.TTL, opts...),
		ProStatus:          New[uint, ProStatus](cfg.ProStatus.MaxEntries, cfg.ProStatus.TTL, opts...),
		queries:            queries,
	}
}

// DailyUsageKey is the usage-counter key for a user's daily message count.
func DailyUsageKey(userID uint) string {
	return fmt.Sprintf("daily:%d", userID)
}

// MonthlyUsageKey is the usage-counter key for a user's monthly count.
func MonthlyUsageKey(userID uint) string {
	return fmt.Sprintf("monthly:%d", userID)
}

// InvalidateUser drops every cached fact derived from the user's
// subscriptions: subscription detail, both usage counters, pro status and
// the durable store's cached query results.
func (r *Registry) InvalidateUser(ctx context.Context, userID uint) {
	r.SubscriptionDetail.Delete(userID)
	r.UsageCounters.Delete(DailyUsageKey(userID))
	r.UsageCounters.Delete(MonthlyUsageKey(userID))
	r.ProStatus.Delete(userID)

	if r.queries == nil {
		return
	}
	if err := r.queries.InvalidateUser(ctx, userID); err != nil {
		log.Warnf("[Cache] Failed to invalidate query cache for user %d: %v", userID, err)
	}
}

// Close stops the background sweepers of all namespaces.
func (r *Registry) Close() {
	r.Session.Close()
	r.SubscriptionDetail.Close()
	r.UsageCounters.Close()
	r.ProStatus.Close()
}
