package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ispanel/backend/internal/middleware"
)

// Handlers groups everything Register mounts.
type Handlers struct {
	Auth        *AuthHandler
	Subscribers *SubscriberHandler
	Reconcile   *ReconcileHandler
	PPPoE       *PPPoEHandler
	Dashboard   *DashboardHandler
	Packages    *PackageHandler
	Settings    *SettingsHandler
}

// Register mounts the API on app. authRequired guards everything under /api
// except login.
func Register(app *fiber.App, h *Handlers, authRequired fiber.Handler, log *zap.Logger) {
	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"service": "ispanel-api",
		})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api")

	// Public routes
	api.Post("/auth/login", middleware.RateLimiter(20, time.Minute), h.Auth.Login)

	protected := api.Group("", authRequired, middleware.AuditLogger(log))
	protected.Get("/auth/me", h.Auth.Me)

	users := protected.Group("/users")
	users.Get("/", h.Subscribers.List)
	users.Post("/", h.Subscribers.Create)
	users.Get("/:id", h.Subscribers.Get)
	users.Put("/:id", h.Subscribers.Update)
	users.Delete("/:id", h.Subscribers.Delete)
	users.Post("/:id/enable", h.Subscribers.Enable)
	users.Post("/:id/disable", h.Subscribers.Disable)
	users.Post("/:id/renew", h.Subscribers.Renew)

	protected.Get("/sync", h.Reconcile.Sync)
	protected.Post("/quotas/check", h.Reconcile.CheckQuotas)

	pppoe := protected.Group("/pppoe")
	pppoe.Get("/users", h.PPPoE.Users)
	pppoe.Get("/active", h.PPPoE.Active)
	pppoe.Get("/profiles", h.PPPoE.Profiles)
	pppoe.Get("/interfaces", h.PPPoE.Interfaces)

	protected.Get("/network/router-status", h.Dashboard.RouterStatus)
	protected.Get("/dashboard/user-stats", h.Dashboard.UserStats)

	protected.Get("/packages", h.Packages.List)
	protected.Post("/packages/sync", h.Packages.Sync)

	protected.Get("/settings", h.Settings.Get)
	protected.Put("/settings", h.Settings.Update)
}
