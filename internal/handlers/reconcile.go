package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/ispanel/backend/internal/services"
)

// ReconcileHandler triggers sync and enforcement passes on demand.
type ReconcileHandler struct {
	sync     *services.SubscriberSync
	enforcer *services.QuotaEnforcer
	log      *zap.Logger
}

func NewReconcileHandler(sync *services.SubscriberSync, enforcer *services.QuotaEnforcer, log *zap.Logger) *ReconcileHandler {
	return &ReconcileHandler{sync: sync, enforcer: enforcer, log: log}
}

// Sync mirrors router secrets into the store.
func (h *ReconcileHandler) Sync(c *fiber.Ctx) error {
	res, err := h.sync.SyncSubscribers(c.UserContext())
	if err != nil {
		return handleError(c, h.log, err)
	}
	return respond(c, res, res.Warning)
}

// CheckQuotas runs one enforcement pass.
func (h *ReconcileHandler) CheckQuotas(c *fiber.Ctx) error {
	report, err := h.enforcer.CheckQuotas(c.UserContext())
	if err != nil {
		return handleError(c, h.log, err)
	}
	return respond(c, report, report.Warning())
}
