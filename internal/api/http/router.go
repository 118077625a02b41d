package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/qr-ticket-service/internal/api/http/handlers"
	"github.com/spec-kit/qr-ticket-service/internal/auth"
	"github.com/spec-kit/qr-ticket-service/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health                  *handlers.HealthHandler
	Tickets                 *handlers.TicketsHandler
	Jobs                    *handlers.JobsHandler
	Staff                   *handlers.StaffHandler
	AuthMiddleware          *auth.AuthMiddleware
	IssueRateLimitPerMinute int
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", cfg.Health.Metrics)

	app.Post("/auth/staff/login", cfg.Staff.Login)

	issue := []fiber.Handler{}
	if cfg.IssueRateLimitPerMinute > 0 {
		issue = append(issue, issueRateLimiter(cfg.IssueRateLimitPerMinute))
	}
	app.Post("/tickets", append(issue, cfg.Tickets.Issue)...)

	door := []fiber.Handler{cfg.AuthMiddleware.Handle, auth.RequireStaffRole(domain.StaffRoleDoor)}
	app.Post("/tickets/verify", append(door, cfg.Tickets.Verify)...)
	app.Post("/tickets/update", append(door, cfg.Tickets.Update)...)
	app.Get("/tickets", append(door, cfg.Tickets.List)...)
	app.Get("/tickets/:number/attendance", append(door, cfg.Tickets.Attendance)...)

	app.Get("/tickets/:artifact", cfg.Tickets.Artifact)
	app.Get("/jobs/:id", cfg.Jobs.Get)
}
