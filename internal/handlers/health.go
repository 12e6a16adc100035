package handlers

import (
	"time"

	"attune/internal/database"
	"attune/internal/services"

	"github.com/gofiber/fiber/v2"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	db    *database.DB
	mongo *database.MongoDB
	redis *services.RedisService // optional
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(db *database.DB, mongo *database.MongoDB, redis *services.RedisService) *HealthHandler {
	return &HealthHandler{db: db, mongo: mongo, redis: redis}
}

// Handle responds with server health status. Degraded dependencies are
// reported but never fail the endpoint; the engine keeps serving fail-open
// defaults without them.
func (h *HealthHandler) Handle(c *fiber.Ctx) error {
	checks := fiber.Map{}
	status := "healthy"

	if err := h.db.PingContext(c.Context()); err != nil {
		checks["mysql"] = "unreachable"
		status = "degraded"
	} else {
		checks["mysql"] = "ok"
	}

	if err := h.mongo.Ping(c.Context()); err != nil {
		checks["mongodb"] = "unreachable"
		status = "degraded"
	} else {
		checks["mongodb"] = "ok"
	}

	if h.redis != nil {
		if err := h.redis.Ping(c.Context()); err != nil {
			checks["redis"] = "unreachable"
			status = "degraded"
		} else {
			checks["redis"] = "ok"
		}
	} else {
		checks["redis"] = "disabled"
	}

	return c.JSON(fiber.Map{
		"status":    status,
		"checks":    checks,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}
