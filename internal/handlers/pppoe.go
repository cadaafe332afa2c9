package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/ispanel/backend/internal/services"
)

// PPPoEHandler exposes router tables as-is. Router failures are 503.
type PPPoEHandler struct {
	svc *services.PPPoEService
	log *zap.Logger
}

func NewPPPoEHandler(svc *services.PPPoEService, log *zap.Logger) *PPPoEHandler {
	return &PPPoEHandler{svc: svc, log: log}
}

func (h *PPPoEHandler) Users(c *fiber.Ctx) error {
	rows, err := h.svc.Secrets(c.UserContext(), c.Query("name"))
	if err != nil {
		return handleError(c, h.log, err)
	}
	return respond(c, rows, "")
}

func (h *PPPoEHandler) Active(c *fiber.Ctx) error {
	rows, err := h.svc.Active(c.UserContext(), c.Query("name"))
	if err != nil {
		return handleError(c, h.log, err)
	}
	return respond(c, rows, "")
}

func (h *PPPoEHandler) Profiles(c *fiber.Ctx) error {
	rows, err := h.svc.Profiles(c.UserContext())
	if err != nil {
		return handleError(c, h.log, err)
	}
	return respond(c, rows, "")
}

func (h *PPPoEHandler) Interfaces(c *fiber.Ctx) error {
	rows, err := h.svc.Interfaces(c.UserContext(), c.Query("name"))
	if err != nil {
		return handleError(c, h.log, err)
	}
	return respond(c, rows, "")
}
