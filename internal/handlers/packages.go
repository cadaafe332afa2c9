package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/ispanel/backend/internal/services"
)

type PackageHandler struct {
	svc *services.PackageService
	log *zap.Logger
}

func NewPackageHandler(svc *services.PackageService, log *zap.Logger) *PackageHandler {
	return &PackageHandler{svc: svc, log: log}
}

func (h *PackageHandler) List(c *fiber.Ctx) error {
	pkgs, err := h.svc.List(c.UserContext())
	if err != nil {
		return handleError(c, h.log, err)
	}
	return respond(c, pkgs, "")
}

// Sync imports router PPP profiles as packages.
func (h *PackageHandler) Sync(c *fiber.Ctx) error {
	res, err := h.svc.SyncFromProfiles(c.UserContext())
	if err != nil {
		return handleError(c, h.log, err)
	}
	return respond(c, res, "")
}
