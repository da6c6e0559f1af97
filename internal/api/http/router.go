package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/deskforge/helpdesk-service/internal/api/http/handlers"
	"github.com/deskforge/helpdesk-service/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Tickets        *handlers.TicketsHandler
	Queues         *handlers.QueuesHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	api := app.Group("/api")

	authGroup := api.Group("/auth")
	authGroup.Post("/register", cfg.Auth.Register)
	authGroup.Post("/login", cfg.Auth.Login)
	authGroup.Post("/password/reset/request", cfg.Auth.RequestPasswordReset)
	authGroup.Post("/password/reset/confirm", cfg.Auth.ConfirmPasswordReset)

	authProtected := authGroup.Group("", cfg.AuthMiddleware.Handle)
	authProtected.Get("/me", cfg.Auth.Me)
	authProtected.Put("/me", cfg.Auth.UpdateMe)
	authProtected.Post("/password/change", cfg.Auth.ChangePassword)

	tickets := api.Group("/tickets", cfg.AuthMiddleware.Handle, auth.RequireAuthenticated())
	tickets.Get("/", cfg.Tickets.ListTickets)
	tickets.Post("/", cfg.Tickets.CreateTicket)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Put("/:id", cfg.Tickets.UpdateTicket)
	tickets.Post("/:id/comments", cfg.Tickets.AddComment)
	tickets.Put("/:id/assign", auth.RequireStaff(), cfg.Tickets.AssignTicket)
	tickets.Put("/:id/queue", auth.RequireStaff(), cfg.Tickets.MoveToQueue)

	queues := api.Group("/queues", cfg.AuthMiddleware.Handle, auth.RequireAuthenticated())
	queues.Get("/", cfg.Queues.ListQueues)
	queues.Get("/:id", cfg.Queues.GetQueue)
	queues.Post("/", auth.RequireQueueManager(), cfg.Queues.CreateQueue)
	queues.Put("/:id", auth.RequireQueueManager(), cfg.Queues.UpdateQueue)
	queues.Delete("/:id", auth.RequireQueueManager(), cfg.Queues.DeleteQueue)
}
