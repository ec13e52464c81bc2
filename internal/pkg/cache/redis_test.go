package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/ChatFox/internal/pkg/env"
)

const isolatedQueryCacheTestRedisDB = 13

func newTestRedisClient(t *testing.T) *redis.Client {
	t.Helper()

	hosts := []string{env.GetEnv("CACHE_HOST", "localhost"), "cache", "127.0.0.1"}
	port := env.GetEnv("CACHE_PORT", "6379")
	password := env.GetEnv("CACHE_PASSWORD", "")

	var lastErr error
	for _, host := range hosts {
		client := redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%s", host, port),
			Password: password,
			DB:       isolatedQueryCacheTestRedisDB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		_, err := client.Ping(ctx).Result()
		cancel()
		if err == nil {
			t.Cleanup(func() {
				_ = client.FlushDB(context.Background()).Err()
				_ = client.Close()
			})
			return client
		}
		_ = client.Close()
		lastErr = err
	}

	t.Skipf("Skipping Redis-dependent test: no reachable Redis endpoint (%v)", lastErr)
	return nil
}

func TestRedisQueryCache_RoundTripAndInvalidate(t *testing.T) {
	client := newTestRedisClient(t)
	q := NewRedisQueryCache(client, time.Minute)
	ctx := context.Background()

	type row struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	want := []row{{ID: "sub_1", Status: "active"}}

	require.NoError(t, q.SetJSON(ctx, SubscriptionsByUserKey(42), want))
	require.NoError(t, q.SetJSON(ctx, SubscriptionsByUserKey(43), want))

	var got []row
	hit, err := q.GetJSON(ctx, SubscriptionsByUserKey(42), &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, want, got)

	require.NoError(t, q.InvalidateUser(ctx, 42))

	hit, err = q.GetJSON(ctx, SubscriptionsByUserKey(42), &got)
	require.NoError(t, err)
	assert.False(t, hit, "invalidated user must miss")

	hit, err = q.GetJSON(ctx, SubscriptionsByUserKey(43), &got)
	require.NoError(t, err)
	assert.True(t, hit, "other users keep their cached queries")
}

func TestRedisQueryCache_CorruptValueIsAMiss(t *testing.T) {
	client := newTestRedisClient(t)
	q := NewRedisQueryCache(client, time.Minute)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, UserKey(5), "{not json", time.Minute).Err())

	var dest map[string]interface{}
	hit, err := q.GetJSON(ctx, UserKey(5), &dest)
	require.NoError(t, err)
	assert.False(t, hit)
}
