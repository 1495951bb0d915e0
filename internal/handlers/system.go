package handlers

import (
	"github.com/gofiber/fiber/v2"

	"vpanel/internal/services/monitor"
)

// SystemHandler serves node health snapshots for the dashboard.
type SystemHandler struct {
	monitor *monitor.Monitor
}

func NewSystemHandler(m *monitor.Monitor) *SystemHandler {
	return &SystemHandler{monitor: m}
}

func (h *SystemHandler) Stats(c *fiber.Ctx) error {
	return OK(c, h.monitor.Stats())
}
