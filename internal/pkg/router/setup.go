package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ManuelReschke/ChatFox/app/controllers"
	"github.com/ManuelReschke/ChatFox/internal/pkg/cache"
	"github.com/ManuelReschke/ChatFox/internal/pkg/middleware"
)

// Router installs a group of routes.
type Router interface {
	InstallRouter(app *fiber.App)
}

// Dependencies are the services the routes are wired to.
type Dependencies struct {
	Sessions     *session.Store
	Users        middleware.UserLookup
	Caches       *cache.Registry
	Entitlements middleware.EntitlementChecker
	Billing      *controllers.BillingController
	User         *controllers.UserController
	Gatherer     prometheus.Gatherer
	MetricsUser  string
	MetricsPass  string
}

func InstallRouter(app *fiber.App, deps Dependencies) {
	// The HTTP router installs the UserContext middleware the API routes
	// depend on, so it goes first.
	setup(app, NewHttpRouter(deps), NewApiRouter(deps))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
