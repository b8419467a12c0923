package handlers

import (
	"time"

	"neurochat/internal/database"

	"github.com/gofiber/fiber/v2"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	store database.Store
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(store database.Store) *HealthHandler {
	return &HealthHandler{store: store}
}

// Handle responds with server health status
func (h *HealthHandler) Handle(c *fiber.Ctx) error {
	status := "healthy"
	code := fiber.StatusOK
	if err := h.store.Ping(c.Context()); err != nil {
		status = "degraded"
		code = fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(fiber.Map{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}
