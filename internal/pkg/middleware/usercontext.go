package middleware

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/session"
	"gorm.io/gorm"

	"github.com/ManuelReschke/ChatFox/app/models"
	"github.com/ManuelReschke/ChatFox/internal/pkg/cache"
	"github.com/ManuelReschke/ChatFox/internal/pkg/entitlements"
	"github.com/ManuelReschke/ChatFox/internal/pkg/usercontext"
)

// UserLookup loads accounts by id.
type UserLookup interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
}

// EntitlementChecker answers the pro question.
type EntitlementChecker interface {
	IsEntitled(ctx context.Context, userID uint) bool
}

// NewUserContextMiddleware sets up the complete user context for every
// request. The session to account lookup is cached in the registry's session
// namespace; pro status is resolved once per request and carried in the
// context.
func NewUserContextMiddleware(store *session.Store, users UserLookup, caches *cache.Registry, ent EntitlementChecker) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sess, err := store.Get(c)
		if err != nil {
			usercontext.Set(c, usercontext.Anonymous())
			return c.Next()
		}

		userID, ok := sessionUserID(sess.Get(usercontext.KeyUserID))
		if !ok {
			usercontext.Set(c, usercontext.Anonymous())
			return c.Next()
		}

		user := lookupUser(c.UserContext(), sess.ID(), userID, users, caches)
		if user == nil {
			usercontext.Set(c, usercontext.Anonymous())
			return c.Next()
		}

		isPro := ent.IsEntitled(c.UserContext(), user.ID)
		plan := entitlements.PlanFree
		if isPro {
			plan = entitlements.PlanPro
		}
		usercontext.Set(c, usercontext.UserContext{
			UserID:     user.ID,
			Username:   user.Name,
			Email:      user.Email,
			IsLoggedIn: true,
			IsPro:      isPro,
			Plan:       plan,
		})
		return c.Next()
	}
}

func lookupUser(ctx context.Context, sessionID string, userID uint, users UserLookup, caches *cache.Registry) *models.User {
	if u, ok := caches.Session.Get(sessionID); ok && u.ID == userID {
		return u
	}

	u, err := users.GetByID(ctx, userID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Errorf("[UserContext] Failed to load user %d: %v", userID, err)
		}
		return nil
	}
	caches.Session.Set(sessionID, u)
	return u
}

func sessionUserID(v interface{}) (uint, bool) {
	switch id := v.(type) {
	case uint:
		return id, id != 0
	case int:
		return uint(id), id > 0
	case int64:
		return uint(id), id > 0
	case uint64:
		return uint(id), id != 0
	}
	return 0, false
}
