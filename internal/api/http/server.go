package http

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-desk/internal/api/http/handlers"
	"github.com/spec-kit/support-desk/internal/app"
	"github.com/spec-kit/support-desk/internal/auth"
)

// NewServer builds the fiber application over the wired services.
func NewServer(a *app.App) *fiber.App {
	server := fiber.New(fiber.Config{
		AppName:               a.Config.App.Name,
		DisableStartupMessage: true,
		ReadTimeout:           30 * time.Second,
	})
	RegisterMiddlewares(server, a.Logger, a.Metrics, a.Config.App.RequestTimeout())

	RegisterRoutes(server, RouteConfig{
		Health:         handlers.NewHealthHandler(a.Config.App.Name, a.Config.App.Version, a.Config.Store.Driver, a.Store, a.Redis),
		Auth:           handlers.NewAuthHandler(a.Auth),
		Tickets:        handlers.NewTicketsHandler(a.Tickets, a.Ingestion, a.Dispatch, a.Config.Scheduler.RunTimeout()),
		Settings:       handlers.NewSettingsHandler(a.Settings, a.Scheduler),
		Metrics:        handlers.NewMetricsHandler(a.Metrics),
		AuthMiddleware: auth.NewAuthMiddleware(a.Auth.TokenManager(), a.Store.Operators),
	})
	return server
}
