package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/ManuelReschke/ChatFox/internal/pkg/constants"
	"github.com/ManuelReschke/ChatFox/internal/pkg/middleware"
)

type ApiRouter struct {
	deps Dependencies
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group(constants.APIRoute, limiter.New())
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	v1 := api.Group(constants.APIV1Path)

	user := v1.Group("/user", middleware.RequireAPISessionAuth)
	user.Get("/", h.deps.User.HandleGetUserAccount)
	user.Get("/entitlement", h.deps.User.HandleGetEntitlement)
	user.Get("/usage", h.deps.User.HandleGetUsage)
	user.Post("/usage/:kind", h.deps.User.HandleRecordUsage)

	pro := v1.Group("/pro", middleware.RequirePro)
	pro.Get("/subscriptions", h.deps.User.HandleListSubscriptions)
}

func NewApiRouter(deps Dependencies) *ApiRouter {
	return &ApiRouter{deps: deps}
}
