package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/ispanel/backend/internal/services"
)

type SettingsHandler struct {
	svc *services.SettingsService
	log *zap.Logger
}

func NewSettingsHandler(svc *services.SettingsService, log *zap.Logger) *SettingsHandler {
	return &SettingsHandler{svc: svc, log: log}
}

func (h *SettingsHandler) Get(c *fiber.Ctx) error {
	view, err := h.svc.Get(c.UserContext())
	if err != nil {
		return handleError(c, h.log, err)
	}
	return respond(c, view, "")
}

func (h *SettingsHandler) Update(c *fiber.Ctx) error {
	var req services.UpdateSettingsInput
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid request body")
	}
	view, err := h.svc.Update(c.UserContext(), req)
	if err != nil {
		return handleError(c, h.log, err)
	}
	return respondMessage(c, "Settings updated", view, "")
}
