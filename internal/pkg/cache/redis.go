package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
)

const queryKeyPrefix = "query:"

// DefaultQueryCacheTTL bounds how long a stale query result can survive a
// missed invalidation.
const DefaultQueryCacheTTL = 30 * time.Second

// NewRedisClient connects to the Redis/Dragonfly server backing the query
// cache and sessions. A failed ping is logged, not fatal: the query cache
// degrades to always-miss.
func NewRedisClient(host, port, password string) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", host, port),
		Password: password,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	pong, err := client.Ping(ctx).Result()
	if err != nil {
		log.Warnf("[Cache] Could not connect to Redis: %v", err)
	} else {
		log.Infof("[Cache] Connected to Redis: %s", pong)
	}
	return client
}

// RedisQueryCache caches durable-store query results as JSON.
type RedisQueryCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisQueryCache returns a query cache storing results for ttl.
func NewRedisQueryCache(client *redis.Client, ttl time.Duration) *RedisQueryCache {
	return &RedisQueryCache{client: client, ttl: ttl}
}

// SubscriptionsByUserKey is the cache key of the select-by-owner query.
func SubscriptionsByUserKey(userID uint) string {
	return fmt.Sprintf("%ssubscriptions:user:%d", queryKeyPrefix, userID)
}

// UserKey is the cache key of the account select-by-id query.
func UserKey(userID uint) string {
	return fmt.Sprintf("%susers:%d", queryKeyPrefix, userID)
}

// GetJSON loads key into dest. It reports false on a miss.
func (q *RedisQueryCache) GetJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	raw, err := q.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		// A value we cannot decode is as good as absent.
		_ = q.client.Del(ctx, key).Err()
		return false, nil
	}
	return true, nil
}

// SetJSON stores value under key for the configured TTL.
func (q *RedisQueryCache) SetJSON(ctx context.Context, key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return q.client.Set(ctx, key, raw, q.ttl).Err()
}

// InvalidateUser drops every cached query touching the user's subscription
// or account rows.
func (q *RedisQueryCache) InvalidateUser(ctx context.Context, userID uint) error {
	return q.client.Del(ctx, SubscriptionsByUserKey(userID), UserKey(userID)).Err()
}
