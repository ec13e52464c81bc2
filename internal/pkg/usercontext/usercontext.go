package usercontext

import (
	"github.com/ManuelReschke/ChatFox/internal/pkg/entitlements"
	"github.com/gofiber/fiber/v2"
)

// UserContext represents the complete user context for a request
type UserContext struct {
	UserID     uint              `json:"user_id"`
	Username   string            `json:"username"`
	Email      string            `json:"email"`
	IsLoggedIn bool              `json:"is_logged_in"`
	IsPro      bool              `json:"is_pro"`
	Plan       entitlements.Plan `json:"plan"`
}

// Anonymous is the context of a request without a valid session.
func Anonymous() UserContext {
	return UserContext{Plan: entitlements.PlanFree}
}

// Set stores the user context on the request.
func Set(c *fiber.Ctx, uc UserContext) {
	c.Locals(LocalsKey, uc)
	c.Locals(KeyFromProtected, uc.IsLoggedIn)
}

// GetUserContext retrieves the user context from fiber context
// Returns a default anonymous context if none is set
func GetUserContext(c *fiber.Ctx) UserContext {
	if ctx, ok := c.Locals(LocalsKey).(UserContext); ok {
		return ctx
	}
	return Anonymous()
}

// IsLoggedIn checks if the current user is logged in
func IsLoggedIn(c *fiber.Ctx) bool {
	return GetUserContext(c).IsLoggedIn
}

// IsPro reports whether the current user has pro access.
func IsPro(c *fiber.Ctx) bool {
	return GetUserContext(c).IsPro
}

// GetUserID returns the current user's ID, or 0 if not logged in
func GetUserID(c *fiber.Ctx) uint {
	return GetUserContext(c).UserID
}
