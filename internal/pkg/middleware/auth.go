package middleware

import (
	icuser "github.com/ManuelReschke/ChatFox/internal/pkg/usercontext"
	"github.com/gofiber/fiber/v2"
)

// RequireAPISessionAuth ensures a logged-in session for API routes and returns JSON 401 instead of redirect.
func RequireAPISessionAuth(c *fiber.Ctx) error {
	if !icuser.IsLoggedIn(c) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   "unauthorized",
			"message": "login required",
		})
	}
	return c.Next()
}

// RequirePro lets only users with an active entitlement through.
func RequirePro(c *fiber.Ctx) error {
	uc := icuser.GetUserContext(c)
	if !uc.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   "unauthorized",
			"message": "login required",
		})
	}
	if !uc.IsPro {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error":   "pro_required",
			"message": "an active pro subscription is required",
		})
	}
	return c.Next()
}
