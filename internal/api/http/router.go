package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/spec-kit/reactive-engine/internal/api/http/handlers"
	"github.com/spec-kit/reactive-engine/internal/auth"
	"github.com/spec-kit/reactive-engine/internal/domain"
	"github.com/spec-kit/reactive-engine/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Reactive       *handlers.ReactiveHandler
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

	reactive := app.Group("/api/reactive", cfg.AuthMiddleware.Handle)

	// fiber applies Group handlers to the whole prefix, so subject checks are per route
	webhookOnly := auth.RequireSubject(domain.SubjectTypeWebhook, domain.SubjectTypeSystem)
	agentOnly := auth.RequireSubject(domain.SubjectTypeAgent, domain.SubjectTypeSystem)

	reactive.Post("/ticket-created", webhookOnly, cfg.Reactive.TicketCreated)
	reactive.Post("/ticket-updated", webhookOnly, cfg.Reactive.TicketUpdated)
	reactive.Post("/vip-check", webhookOnly, cfg.Reactive.VIPCheck)
	reactive.Post("/check-duplicate", webhookOnly, cfg.Reactive.CheckDuplicate)
	reactive.Post("/proactive-sent", webhookOnly, cfg.Reactive.ProactiveSent)

	reactive.Post("/merge", agentOnly, cfg.Reactive.Merge)
	reactive.Post("/outbound-gate", agentOnly, cfg.Reactive.OutboundGate)
	reactive.Post("/lock", agentOnly, cfg.Reactive.Lock)

	reactive.Get("/merges", cfg.Reactive.Merges)
	reactive.Get("/status", cfg.Reactive.Status)
}
