package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/ispanel/backend/internal/services"
)

type DashboardHandler struct {
	dashboard *services.DashboardService
	status    *services.RouterStatusService
	log       *zap.Logger
}

func NewDashboardHandler(dashboard *services.DashboardService, status *services.RouterStatusService, log *zap.Logger) *DashboardHandler {
	return &DashboardHandler{dashboard: dashboard, status: status, log: log}
}

// UserStats returns dashboard subscriber counts
func (h *DashboardHandler) UserStats(c *fiber.Ctx) error {
	stats, err := h.dashboard.UserStats(c.UserContext())
	if err != nil {
		return handleError(c, h.log, err)
	}
	return respond(c, stats, stats.Warning)
}

// RouterStatus is never an error: an unreachable router is reported as offline.
func (h *DashboardHandler) RouterStatus(c *fiber.Ctx) error {
	return respond(c, h.status.Status(c.UserContext()), "")
}
