package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/ChatFox/app/models"
)

type recordingInvalidator struct {
	users []uint
	err   error
}

func (r *recordingInvalidator) InvalidateUser(_ context.Context, userID uint) error {
	r.users = append(r.users, userID)
	return r.err
}

func testRegistryConfig() RegistryConfig {
	return RegistryConfig{
		Session:            CacheSpec{MaxEntries: 4, TTL: time.Minute},
		SubscriptionDetail: CacheSpec{MaxEntries: 4, TTL: time.Minute},
		UsageCounters:      CacheSpec{MaxEntries: 8, TTL: time.Minute},
		ProStatus:          CacheSpec{MaxEntries: 4, TTL: time.Minute},
	}
}

func TestRegistry_InvalidateUserClearsAllNamespaces(t *testing.T) {
	queries := &recordingInvalidator{}
	r := NewRegistry(testRegistryConfig(), queries)
	defer r.Close()

	const user, other uint = 7, 8
	for _, id := range []uint{user, other} {
		r.SubscriptionDetail.Set(id, []models.Subscription{{ID: "sub"}})
		r.UsageCounters.Set(DailyUsageKey(id), UsageCounter{Period: "2026-10-15", Used: 3})
		r.UsageCounters.Set(MonthlyUsageKey(id), UsageCounter{Period: "2026-10", Used: 9})
		r.ProStatus.Set(id, ProStatus{Entitled: true, Until: time.Now().Add(time.Hour)})
	}
	r.Session.Set("sess-1", &models.User{ID: user})

	r.InvalidateUser(context.Background(), user)

	_, ok := r.SubscriptionDetail.Get(user)
	assert.False(t, ok, "subscription detail should be cleared")
	_, ok = r.UsageCounters.Get(DailyUsageKey(user))
	assert.False(t, ok, "daily usage should be cleared")
	_, ok = r.UsageCounters.Get(MonthlyUsageKey(user))
	assert.False(t, ok, "monthly usage should be cleared")
	_, ok = r.ProStatus.Get(user)
	assert.False(t, ok, "pro status should be cleared")

	_, ok = r.ProStatus.Get(other)
	assert.True(t, ok, "other users must not be touched")
	_, ok = r.UsageCounters.Get(DailyUsageKey(other))
	assert.True(t, ok)
	_, ok = r.Session.Get("sess-1")
	assert.True(t, ok, "session lookups are not derived from subscriptions")

	assert.Equal(t, []uint{user}, queries.users)
}

func TestRegistry_InvalidateUserToleratesQueryCacheFailure(t *testing.T) {
	queries := &recordingInvalidator{err: errors.New("redis down")}
	r := NewRegistry(testRegistryConfig(), queries)
	defer r.Close()

	r.ProStatus.Set(1, ProStatus{})
	require.NotPanics(t, func() {
		r.InvalidateUser(context.Background(), 1)
	})
	_, ok := r.ProStatus.Get(1)
	assert.False(t, ok)
}

func TestRegistry_NilQueryCache(t *testing.T) {
	r := NewRegistry(testRegistryConfig(), nil)
	defer r.Close()

	r.ProStatus.Set(1, ProStatus{})
	r.InvalidateUser(context.Background(), 1)
	_, ok := r.ProStatus.Get(1)
	assert.False(t, ok)
}

func TestDefaultRegistryConfig(t *testing.T) {
	cfg := DefaultRegistryConfig()
	assert.Equal(t, 500, cfg.Session.MaxEntries)
	assert.Equal(t, 1000, cfg.SubscriptionDetail.MaxEntries)
	assert.Equal(t, 2000, cfg.UsageCounters.MaxEntries)
	assert.Equal(t, 1000, cfg.ProStatus.MaxEntries)
	assert.Less(t, cfg.SubscriptionDetail.TTL, cfg.ProStatus.TTL)
}

func TestProStatus_ValidAt(t *testing.T) {
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

	assert.True(t, ProStatus{}.ValidAt(now), "a negative answer holds until ttl or invalidation")
	assert.True(t, ProStatus{Entitled: true, Until: now.Add(time.Second)}.ValidAt(now))
	assert.False(t, ProStatus{Entitled: true, Until: now}.ValidAt(now))
	assert.False(t, ProStatus{Entitled: true, Until: now.Add(-time.Hour)}.ValidAt(now))
}
