package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/spec-kit/helpdesk-service/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Tickets        *handlers.TicketsHandler
	AgentTickets   *handlers.AgentTicketsHandler
	Notifications  *handlers.NotificationsHandler
	AuthMiddleware *auth.AuthMiddleware
	Metrics        *observability.Metrics
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}

	app.Post("/auth/login", cfg.Auth.Login)

	protected := app.Group("", cfg.AuthMiddleware.Handle)

	admin := protected.Group("/admin", auth.RequireRole(domain.UserRoleAdmin))
	admin.Post("/users", cfg.Auth.CreateUser)

	tickets := protected.Group("/tickets")
	tickets.Post("/", auth.RequireEmployee(), cfg.Tickets.CreateTicket)
	tickets.Get("/mine", auth.RequireEmployee(), cfg.Tickets.ListMine)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Post("/:id/reopen", auth.RequireEmployee(), cfg.Tickets.Reopen)

	agent := protected.Group("/agent", auth.RequireAgent())
	agent.Get("/tickets", cfg.AgentTickets.ListAssigned)
	agent.Get("/tickets/pending", cfg.AgentTickets.ListPending)
	agent.Get("/tickets/overdue", cfg.AgentTickets.ListOverdue)
	agent.Get("/tickets/statistics", cfg.AgentTickets.Statistics)
	agent.Post("/tickets/:id/process", cfg.AgentTickets.Process)
	agent.Post("/tickets/:id/resolve", cfg.AgentTickets.Resolve)
	agent.Post("/tickets/:id/close", cfg.AgentTickets.Close)
	agent.Post("/tickets/:id/respond", cfg.AgentTickets.Respond)
	agent.Post("/tickets/:id/escalate", cfg.AgentTickets.Escalate)
	agent.Post("/tickets/:id/reassign", cfg.AgentTickets.Reassign)
	agent.Post("/tickets/:id/quality-check", cfg.AgentTickets.QualityCheck)
	agent.Get("/quality/statistics", cfg.AgentTickets.QualityStatistics)

	notifications := protected.Group("/notifications")
	notifications.Get("/", cfg.Notifications.List)
	notifications.Get("/unread-count", cfg.Notifications.UnreadCount)
	notifications.Post("/:id/read", cfg.Notifications.MarkRead)
}
