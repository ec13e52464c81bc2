package entitlements

import (
	"context"
	"time"

	"github.com/ManuelReschke/ChatFox/app/models"
	"github.com/ManuelReschke/ChatFox/internal/pkg/cache"
	"github.com/ManuelReschke/ChatFox/internal/pkg/metrics"
	"github.com/gofiber/fiber/v2/log"
)

// SubscriptionSource is the durable store read by the resolver.
// *billing.Store implements it.
type SubscriptionSource interface {
	ListByOwner(ctx context.Context, userID uint) ([]models.Subscription, error)
}

// Resolver answers "is this user pro" through the cache registry. It fails
// closed: store errors yield "not entitled" and are never cached.
type Resolver struct {
	source  SubscriptionSource
	caches  *cache.Registry
	metrics *metrics.Metrics
	now     func() time.Time
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) { r.now = now }
}

// NewResolver creates a resolver. m may be nil.
func NewResolver(source SubscriptionSource, caches *cache.Registry, m *metrics.Metrics, opts ...ResolverOption) *Resolver {
	r := &Resolver{source: source, caches: caches, metrics: m, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// IsEntitled reports whether the user currently has pro access.
func (r *Resolver) IsEntitled(ctx context.Context, userID uint) bool {
	if userID == 0 {
		return false
	}
	now := r.now()

	if st, ok := r.caches.ProStatus.Get(userID); ok && st.ValidAt(now) {
		r.metrics.RecordCacheLookup("pro_status", true)
		r.metrics.RecordEntitlementCheck(st.Entitled)
		return st.Entitled
	}
	r.metrics.RecordCacheLookup("pro_status", false)

	subs, err := r.source.ListByOwner(ctx, userID)
	if err != nil {
		log.Errorf("[Entitlements] Failed to load subscriptions for user %d: %v", userID, err)
		r.metrics.RecordEntitlementCheck(false)
		return false
	}
	r.caches.SubscriptionDetail.Set(userID, subs)

	d, until := evaluate(subs, now)
	r.caches.ProStatus.Set(userID, cache.ProStatus{Entitled: d.IsEntitled, Until: until})
	r.metrics.RecordEntitlementCheck(d.IsEntitled)
	return d.IsEntitled
}

// Classify computes the full decision for display. It is recomputed on
// every call because trial day counts depend on the clock.
func (r *Resolver) Classify(ctx context.Context, userID uint) Decision {
	if userID == 0 {
		return Decision{Status: StatusNone}
	}

	subs, ok := r.caches.SubscriptionDetail.Get(userID)
	r.metrics.RecordCacheLookup("subscription_detail", ok)
	if !ok {
		var err error
		subs, err = r.source.ListByOwner(ctx, userID)
		if err != nil {
			log.Errorf("[Entitlements] Failed to classify user %d: %v", userID, err)
			return Decision{Status: StatusNone}
		}
		r.caches.SubscriptionDetail.Set(userID, subs)
	}
	return Evaluate(subs, r.now())
}
