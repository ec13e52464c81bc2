package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ManuelReschke/ChatFox/app/models"
	"github.com/ManuelReschke/ChatFox/internal/pkg/cache"
	"github.com/ManuelReschke/ChatFox/internal/pkg/session"
	"github.com/ManuelReschke/ChatFox/internal/pkg/usercontext"
)

type countingUsers struct {
	users map[uint]*models.User
	calls int
}

func (u *countingUsers) GetByID(ctx context.Context, id uint) (*models.User, error) {
	u.calls++
	if user, ok := u.users[id]; ok {
		return user, nil
	}
	return nil, gorm.ErrRecordNotFound
}

type staticEntitlements map[uint]bool

func (s staticEntitlements) IsEntitled(ctx context.Context, userID uint) bool {
	return s[userID]
}

func newMiddlewareApp(t *testing.T, users *countingUsers, ent staticEntitlements) (*fiber.App, *cache.Registry) {
	t.Helper()
	caches := cache.NewRegistry(cache.DefaultRegistryConfig(), nil)
	t.Cleanup(caches.Close)

	store := session.NewMemorySessionStore()
	app := fiber.New()
	app.Get("/login/:id", func(c *fiber.Ctx) error {
		id, _ := strconv.Atoi(c.Params("id"))
		return session.SetSessionValue(store, c, usercontext.KeyUserID, uint(id))
	})
	app.Use(NewUserContextMiddleware(store, users, caches, ent))
	app.Get("/me", func(c *fiber.Ctx) error {
		return c.JSON(usercontext.GetUserContext(c))
	})
	app.Get("/api", RequireAPISessionAuth, func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })
	app.Get("/pro", RequirePro, func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })
	return app, caches
}

func login(t *testing.T, app *fiber.App, userID uint) *http.Cookie {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/login/"+strconv.Itoa(int(userID)), nil), -1)
	require.NoError(t, err)
	for _, c := range resp.Cookies() {
		if c.Name == "session_id" {
			return c
		}
	}
	t.Fatal("no session cookie")
	return nil
}

func get(t *testing.T, app *fiber.App, path string, cookie *http.Cookie) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func TestUserContextMiddleware_Anonymous(t *testing.T) {
	app, _ := newMiddlewareApp(t, &countingUsers{}, staticEntitlements{})

	assert.Equal(t, fiber.StatusUnauthorized, get(t, app, "/api", nil).StatusCode)
	assert.Equal(t, fiber.StatusUnauthorized, get(t, app, "/pro", nil).StatusCode)
}

func TestUserContextMiddleware_CachesSessionUser(t *testing.T) {
	users := &countingUsers{users: map[uint]*models.User{
		5: {ID: 5, Name: "ada", Email: "ada@example.com"},
	}}
	app, caches := newMiddlewareApp(t, users, staticEntitlements{})
	cookie := login(t, app, 5)

	assert.Equal(t, fiber.StatusNoContent, get(t, app, "/api", cookie).StatusCode)
	assert.Equal(t, fiber.StatusNoContent, get(t, app, "/api", cookie).StatusCode)
	assert.Equal(t, 1, users.calls, "second request is served from the session cache")
	assert.Equal(t, 1, caches.Session.Len())
}

func TestRequirePro(t *testing.T) {
	users := &countingUsers{users: map[uint]*models.User{
		5: {ID: 5, Name: "ada"},
		6: {ID: 6, Name: "bob"},
	}}
	app, _ := newMiddlewareApp(t, users, staticEntitlements{6: true})

	assert.Equal(t, fiber.StatusForbidden, get(t, app, "/pro", login(t, app, 5)).StatusCode)
	assert.Equal(t, fiber.StatusNoContent, get(t, app, "/pro", login(t, app, 6)).StatusCode)
}

func TestUserContextMiddleware_UnknownUser(t *testing.T) {
	app, _ := newMiddlewareApp(t, &countingUsers{}, staticEntitlements{})

	assert.Equal(t, fiber.StatusUnauthorized, get(t, app, "/api", login(t, app, 99)).StatusCode)
}

func TestSessionUserID(t *testing.T) {
	for _, v := range []interface{}{uint(3), 3, int64(3), uint64(3)} {
		id, ok := sessionUserID(v)
		assert.True(t, ok)
		assert.Equal(t, uint(3), id)
	}
	for _, v := range []interface{}{nil, "3", 0, -1, uint(0)} {
		_, ok := sessionUserID(v)
		assert.False(t, ok)
	}
}
