package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ManuelReschke/ChatFox/internal/pkg/constants"
	"github.com/ManuelReschke/ChatFox/internal/pkg/middleware"
)

type HttpRouter struct {
	deps Dependencies
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// Provider webhooks carry no session; keep them ahead of the session
	// middleware and the API rate limiter.
	app.Post(constants.BillingWebhookRoute, h.deps.Billing.HandleWebhook)

	metrics := adaptor.HTTPHandler(promhttp.HandlerFor(h.deps.Gatherer, promhttp.HandlerOpts{}))
	if h.deps.MetricsUser != "" {
		app.Get(constants.MetricsRoute, basicauth.New(basicauth.Config{
			Users: map[string]string{
				h.deps.MetricsUser: h.deps.MetricsPass,
			},
		}), metrics)
	} else {
		app.Get(constants.MetricsRoute, metrics)
	}

	// Apply UserContext middleware globally
	app.Use(middleware.NewUserContextMiddleware(h.deps.Sessions, h.deps.Users, h.deps.Caches, h.deps.Entitlements))
}

func NewHttpRouter(deps Dependencies) *HttpRouter {
	return &HttpRouter{deps: deps}
}
