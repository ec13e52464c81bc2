package session

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/gofiber/storage/redis"
)

const (
	cookieName = "session_id"
	// sessionRedisDB keeps sessions apart from the query cache on DB 0.
	sessionRedisDB = 1
)

// NewSessionStore creates a session store persisted in Redis.
func NewSessionStore(host string, port int, password string) *session.Store {
	storage := redis.New(redis.Config{
		Host:     host,
		Port:     port,
		Password: password,
		Database: sessionRedisDB,
		Reset:    false,
	})
	return newStore(storage)
}

// NewMemorySessionStore creates a process-local session store.
func NewMemorySessionStore() *session.Store {
	return newStore(nil)
}

func newStore(storage fiber.Storage) *session.Store {
	return session.New(session.Config{
		Storage:        storage,
		CookieHTTPOnly: true,
		Expiration:     24 * time.Hour,
		KeyLookup:      "cookie:" + cookieName,
	})
}

// SetSessionValue stores a key-value pair in the user's individual session
func SetSessionValue(store *session.Store, c *fiber.Ctx, key string, value interface{}) error {
	sess, err := store.Get(c)
	if err != nil {
		return fmt.Errorf("failed to get session: %v", err)
	}

	sess.Set(key, value)
	return sess.Save()
}
