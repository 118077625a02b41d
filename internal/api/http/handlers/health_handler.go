package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/qr-ticket-service/internal/observability"
	"github.com/spec-kit/qr-ticket-service/internal/persistence"
)

const readinessTimeout = 2 * time.Second

// Backlog reports how many jobs wait for the worker.
type Backlog interface {
	Len() int
}

// HealthHandler serves probes and the metrics snapshot.
type HealthHandler struct {
	serviceName  string
	version      string
	startedAt    time.Time
	dependencies map[string]persistence.Pinger
	backlog      Backlog
	metrics      *observability.Metrics
}

// NewHealthHandler returns a handler. dependencies holds only the backends
// that are actually configured; backlog may be nil.
func NewHealthHandler(serviceName, version string, dependencies map[string]persistence.Pinger, backlog Backlog, metrics *observability.Metrics) *HealthHandler {
	return &HealthHandler{
		serviceName:  serviceName,
		version:      version,
		startedAt:    time.Now(),
		dependencies: dependencies,
		backlog:      backlog,
		metrics:      metrics,
	}
}

// Live GET /health/live.
func (h *HealthHandler) Live(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":         "alive",
		"service":        h.serviceName,
		"version":        h.version,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
	})
}

// Ready GET /health/ready. Any failing backend makes the service unready.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), readinessTimeout)
	defer cancel()

	checks := make(map[string]string, len(h.dependencies))
	ready := true
	for name, dep := range h.dependencies {
		if err := dep.Ping(ctx); err != nil {
			checks[name] = err.Error()
			ready = false
			continue
		}
		checks[name] = "ok"
	}

	body := fiber.Map{"dependencies": checks}
	if h.backlog != nil {
		body["queued_jobs"] = h.backlog.Len()
	}
	if !ready {
		body["status"] = "unavailable"
		return c.Status(fiber.StatusServiceUnavailable).JSON(body)
	}
	body["status"] = "ready"
	return c.JSON(body)
}

// Metrics GET /metrics.
func (h *HealthHandler) Metrics(c *fiber.Ctx) error {
	if h.metrics == nil {
		return c.JSON(fiber.Map{})
	}
	return c.JSON(h.metrics.Snapshot())
}
