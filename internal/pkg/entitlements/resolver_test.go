package entitlements

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/ChatFox/app/models"
	"github.com/ManuelReschke/ChatFox/app/repository"
	"github.com/ManuelReschke/ChatFox/internal/pkg/billing"
	"github.com/ManuelReschke/ChatFox/internal/pkg/cache"
	"github.com/ManuelReschke/ChatFox/internal/pkg/database/dbtest"
	"github.com/ManuelReschke/ChatFox/internal/pkg/metrics"
)

type countingSource struct {
	mu    sync.Mutex
	subs  map[uint][]models.Subscription
	err   error
	calls int
}

func (c *countingSource) ListByOwner(_ context.Context, userID uint) ([]models.Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return c.subs[userID], nil
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestRegistry(t *testing.T) *cache.Registry {
	t.Helper()
	spec := cache.CacheSpec{MaxEntries: 16, TTL: time.Hour}
	r := cache.NewRegistry(cache.RegistryConfig{
		Session:            spec,
		SubscriptionDetail: spec,
		UsageCounters:      spec,
		ProStatus:          spec,
	}, nil)
	t.Cleanup(r.Close)
	return r
}

func TestResolver_CachesAndRecomputesAfterInvalidation(t *testing.T) {
	clock := &testClock{now: testNow}
	src := &countingSource{subs: map[uint][]models.Subscription{
		1: {{ID: "sub_1", Status: "active", CurrentPeriodEnd: at(24 * time.Hour)}},
	}}
	reg := newTestRegistry(t)
	r := NewResolver(src, reg, metrics.New(), WithClock(clock.Now))
	ctx := context.Background()

	assert.True(t, r.IsEntitled(ctx, 1))
	assert.True(t, r.IsEntitled(ctx, 1))
	assert.Equal(t, 1, src.calls, "second check is served from the pro status cache")

	reg.InvalidateUser(ctx, 1)
	assert.True(t, r.IsEntitled(ctx, 1))
	assert.True(t, r.IsEntitled(ctx, 1))
	assert.Equal(t, 2, src.calls, "exactly one store read after invalidation")
}

func TestResolver_ExpiresAtPeriodEndWithoutWebhook(t *testing.T) {
	clock := &testClock{now: testNow}
	src := &countingSource{subs: map[uint][]models.Subscription{
		1: {{ID: "sub_1", Status: "active", CurrentPeriodEnd: at(time.Hour)}},
	}}
	r := NewResolver(src, newTestRegistry(t), nil, WithClock(clock.Now))
	ctx := context.Background()

	require.True(t, r.IsEntitled(ctx, 1))
	clock.Advance(time.Hour + time.Second)
	assert.False(t, r.IsEntitled(ctx, 1))
	assert.Equal(t, StatusExpired, r.Classify(ctx, 1).Status)
}

func TestResolver_FailsClosed(t *testing.T) {
	src := &countingSource{err: errors.New("db unreachable")}
	reg := newTestRegistry(t)
	r := NewResolver(src, reg, nil)
	ctx := context.Background()

	assert.NotPanics(t, func() {
		assert.False(t, r.IsEntitled(ctx, 1))
	})
	_, cached := reg.ProStatus.Get(1)
	assert.False(t, cached, "failures are not cached")

	assert.Equal(t, Decision{Status: StatusNone}, r.Classify(ctx, 1))
	assert.False(t, r.IsEntitled(ctx, 0))
}

func TestResolver_ClassifyUsesSubscriptionDetailCache(t *testing.T) {
	clock := &testClock{now: testNow}
	src := &countingSource{subs: map[uint][]models.Subscription{
		1: {{ID: "sub_1", Status: "trialing", CurrentPeriodEnd: at(72 * time.Hour), TrialEnd: at(72 * time.Hour)}},
	}}
	r := NewResolver(src, newTestRegistry(t), nil, WithClock(clock.Now))
	ctx := context.Background()

	d := r.Classify(ctx, 1)
	require.NotNil(t, d.Trial)
	assert.Equal(t, 3, d.Trial.DaysLeft)

	clock.Advance(25 * time.Hour)
	d = r.Classify(ctx, 1)
	require.NotNil(t, d.Trial)
	assert.Equal(t, 2, d.Trial.DaysLeft, "day count follows the clock, not the cache")
	assert.Equal(t, 1, src.calls)
}

// Webhook events flow through the store, invalidate the caches and are
// visible to the next entitlement check.
func TestResolver_EndToEndWithStore(t *testing.T) {
	db := dbtest.Open(t)
	reg := newTestRegistry(t)
	store := billing.NewStoreFromDB(db, nil, repository.NewUserRepository(db, nil), reg, time.Second)
	ingestor := billing.NewIngestor(store, nil, nil)
	r := NewResolver(store, reg, nil)
	ctx := context.Background()

	u1 := dbtest.CreateUser(t, db, "u1", "u1@example.com")
	trialEnd := time.Now().Add(7 * 24 * time.Hour).UTC().Format(time.RFC3339Nano)

	assert.False(t, r.IsEntitled(ctx, u1.ID))

	// Event A: owner hint present.
	ingestor.Handle(ctx, []byte(`{"type":"subscription.created","data":{"id":"sub_1","status":"trialing",`+
		`"customer":{"externalId":"`+strconv.Itoa(int(u1.ID))+`"},`+
		`"currentPeriodEnd":"`+trialEnd+`","trialEnd":"`+trialEnd+`"}}`))

	assert.True(t, r.IsEntitled(ctx, u1.ID), "upsert must invalidate the cached negative answer")
	d := r.Classify(ctx, u1.ID)
	assert.True(t, d.IsEntitled)
	require.NotNil(t, d.Trial)
	assert.True(t, d.Trial.InTrial)
	assert.Equal(t, 7, d.Trial.DaysLeft)

	// Event B: no owner hint, cancellation.
	eventB := []byte(`{"type":"subscription.canceled","data":{"id":"sub_1","status":"canceled",` +
		`"currentPeriodEnd":"` + trialEnd + `","cancelAtPeriodEnd":true}}`)
	ingestor.Handle(ctx, eventB)
	ingestor.Handle(ctx, eventB)

	sub, err := store.Get(ctx, "sub_1")
	require.NoError(t, err)
	require.NotNil(t, sub.UserID)
	assert.Equal(t, u1.ID, *sub.UserID)
	assert.False(t, r.IsEntitled(ctx, u1.ID))
	assert.Equal(t, StatusCanceled, r.Classify(ctx, u1.ID).Status)
}
