package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-desk/internal/api/http/handlers"
	"github.com/spec-kit/support-desk/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Tickets        *handlers.TicketsHandler
	Settings       *handlers.SettingsHandler
	Metrics        *handlers.MetricsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	app.Post("/auth/login", cfg.Auth.Login)

	api := app.Group("/api", cfg.AuthMiddleware.Handle)
	api.Get("/me", cfg.Auth.Me)

	tickets := api.Group("/tickets")
	tickets.Get("/", cfg.Tickets.List)
	tickets.Get("/stats", cfg.Tickets.Stats)
	tickets.Post("/send-approved", cfg.Tickets.SendApproved)
	tickets.Post("/", cfg.Tickets.Create)
	tickets.Get("/:id", cfg.Tickets.Get)
	tickets.Post("/:id/approve", cfg.Tickets.Approve)
	tickets.Post("/:id/reject", cfg.Tickets.Reject)
	tickets.Post("/:id/send", cfg.Tickets.Send)

	api.Post("/ingestion/fetch", cfg.Tickets.Fetch)

	settings := api.Group("/settings")
	settings.Get("/mail", cfg.Settings.GetMail)
	settings.Put("/mail", auth.RequireAdmin(), cfg.Settings.PutMail)
	settings.Get("/scheduler", cfg.Settings.GetScheduler)
	settings.Put("/scheduler", auth.RequireAdmin(), cfg.Settings.PutScheduler)

	api.Get("/metrics", cfg.Metrics.Get)
}
