package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/ManuelReschke/ChatFox/app/controllers"
	"github.com/ManuelReschke/ChatFox/internal/pkg/env"
	"github.com/ManuelReschke/ChatFox/internal/pkg/router"
	"github.com/ManuelReschke/ChatFox/internal/pkg/session"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the billing webhook endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newServices()
			if err != nil {
				return fmt.Errorf("setup: %w", err)
			}
			defer svc.Close()

			app := newApplication(svc)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				log.Info("[Server] Shutting down")
				if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
					log.Errorf("[Server] Shutdown failed: %v", err)
				}
			}()

			addr := fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000"))
			return app.Listen(addr)
		},
	}
}

func newApplication(svc *services) *fiber.App {
	if env.IsDev() {
		log.SetLevel(log.LevelDebug)
	} else {
		log.SetLevel(log.LevelInfo)
	}

	app := fiber.New(fiber.Config{
		AppName: "ChatFox",
		// Webhook payloads are small JSON documents.
		BodyLimit: 1 * 1024 * 1024,
	})
	app.Use(recover.New(), logger.New())

	sessions := session.NewSessionStore(
		env.GetEnv("CACHE_HOST", "localhost"),
		env.GetEnvInt("CACHE_PORT", 6379),
		env.GetEnv("CACHE_PASSWORD", ""),
	)

	router.InstallRouter(app, router.Dependencies{
		Sessions:     sessions,
		Users:        svc.repos.User,
		Caches:       svc.caches,
		Entitlements: svc.resolver,
		Billing:      controllers.NewBillingController(svc.ingestor, env.GetEnv("BILLING_WEBHOOK_SECRET", "")),
		User:         controllers.NewUserController(svc.resolver, svc.usage, svc.store),
		Gatherer:     prometheus.DefaultGatherer,
		MetricsUser:  env.GetEnv("METRICS_USER", ""),
		MetricsPass:  env.GetEnv("METRICS_PASSWORD", ""),
	})

	return app
}

func logCloseError(what string, err error) {
	log.Warnf("[Server] Closing %s: %v", what, err)
}

// detached is used by one-shot commands that must finish their work even
// when the invoking context has no deadline.
func detached(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}
