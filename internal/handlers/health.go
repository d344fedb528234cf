package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"blackhole/internal/agents"
	"blackhole/internal/database"
)

// StatusReporter reports the database connection state without I/O
type StatusReporter interface {
	Status() database.Status
}

// HealthHandler handles health check requests
type HealthHandler struct {
	db      StatusReporter
	manager *agents.Manager
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(db StatusReporter, manager *agents.Manager) *HealthHandler {
	return &HealthHandler{db: db, manager: manager}
}

// Handle responds with server health status. A disconnected database only
// degrades the service: agents keep answering from the fallback store.
func (h *HealthHandler) Handle(c *fiber.Ctx) error {
	st := h.db.Status()
	status := "healthy"
	if st.Status != database.StatusConnected {
		status = "degraded"
	}
	return c.JSON(fiber.Map{
		"status":    status,
		"database":  st,
		"agents":    h.manager.Agents(),
		"timestamp": time.Now().Format(time.RFC3339),
	})
}
