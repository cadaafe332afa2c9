package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/ispanel/backend/internal/config"
	"github.com/ispanel/backend/internal/database"
	"github.com/ispanel/backend/internal/handlers"
	"github.com/ispanel/backend/internal/logger"
	"github.com/ispanel/backend/internal/middleware"
	"github.com/ispanel/backend/internal/mikrotik"
	"github.com/ispanel/backend/internal/models"
	"github.com/ispanel/backend/internal/security"
	"github.com/ispanel/backend/internal/services"
	"github.com/ispanel/backend/internal/store"
)

func main() {
	// Load configuration
	cfg := config.Load()

	zapLogger, err := logger.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = zapLogger.Sync() }()
	for _, w := range cfg.Warnings {
		zapLogger.Warn(w)
	}

	// Connect to database
	db, err := database.Connect(cfg, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}

	var st store.Store
	if db == nil {
		st = store.NewMemoryStore()
	} else {
		// Run migrations
		if err := models.AutoMigrate(db); err != nil {
			zapLogger.Fatal("Failed to run migrations", zap.Error(err))
		}
		st = store.NewGormStore(db)
	}

	rdb, err := database.ConnectRedis(cfg, zapLogger)
	if err != nil {
		zapLogger.Warn("Redis unavailable, continuing without cache", zap.Error(err))
		rdb = nil
	}
	defer database.Close(db, rdb)
	cache := database.NewCache(rdb)

	jwtSecret := database.EnsureJWTSecret(db, cfg.JWTSecret, cfg.JWTSecretExplicit, zapLogger)
	tokens := middleware.NewTokenIssuer(jwtSecret, cfg.JWTExpireHours)

	// Seed admin user if not exists
	ctx := context.Background()
	auth := services.NewAuthService(st, zapLogger)
	if _, err := auth.SeedAdmin(ctx, cfg.AdminUsername, cfg.AdminPassword); err != nil {
		zapLogger.Error("Failed to create admin user", zap.Error(err))
	}

	sealer, err := security.NewSealer(cfg.SecretsKey)
	if err != nil {
		zapLogger.Fatal("Invalid SECRETS_KEY", zap.Error(err))
	}

	// Every router operation opens its own connection with the current settings
	router := mikrotik.NewTransport(store.NewRouterConfigSource(st).WithOpener(sealer), zapLogger, cfg.RouterTimeout)

	usage := services.NewUsageTracker(st, router, zapLogger)
	subscribers := services.NewSubscriberService(st, router, usage, services.RenewPolicy{
		Period:       cfg.RenewalPeriod(),
		PollAttempts: cfg.RenewPollAttempts,
		PollDelay:    cfg.RenewPollDelay,
	}, zapLogger)
	sync := services.NewSubscriberSync(st, router, zapLogger)

	// Start quota enforcer
	enforcer := services.NewQuotaEnforcer(st, router, cfg.QuotaCheckInterval, zapLogger)
	if cfg.UsageAccounting {
		enforcer.SetUsageTracker(usage)
	}
	if cache.Enabled() {
		enforcer.SetPassLock(cache)
	}
	enforcer.Start()

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "ISPanel API",
		ServerHeader: "ISPanel",
		BodyLimit:    4 * 1024 * 1024,
		ErrorHandler: handlers.ErrorHandler(zapLogger),
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(compress.New())
	app.Use(middleware.Logger(zapLogger))
	app.Use(middleware.CORS())

	settings := services.NewSettingsService(st, cache, zapLogger)
	settings.SetSealer(sealer)

	h := &handlers.Handlers{
		Auth:        handlers.NewAuthHandler(auth, tokens, zapLogger),
		Subscribers: handlers.NewSubscriberHandler(subscribers, st, zapLogger),
		Reconcile:   handlers.NewReconcileHandler(sync, enforcer, zapLogger),
		PPPoE:       handlers.NewPPPoEHandler(services.NewPPPoEService(router), zapLogger),
		Dashboard: handlers.NewDashboardHandler(
			services.NewDashboardService(st, router, zapLogger),
			services.NewRouterStatusService(router, cache, cfg.RouterStatusCacheTTL, zapLogger),
			zapLogger),
		Packages: handlers.NewPackageHandler(services.NewPackageService(st, router, zapLogger), zapLogger),
		Settings: handlers.NewSettingsHandler(settings, zapLogger),
	}
	handlers.Register(app, h, middleware.AuthRequired(tokens, st), zapLogger)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		zapLogger.Info("Shutting down server...")
		enforcer.Stop()
		if err := app.Shutdown(); err != nil {
			zapLogger.Error("Server shutdown failed", zap.Error(err))
		}
	}()

	// Start server
	addr := fmt.Sprintf(":%d", cfg.APIPort)
	zapLogger.Info("Starting ISPanel API server", zap.String("addr", addr))
	if err := app.Listen(addr); err != nil {
		zapLogger.Fatal("Failed to start server", zap.Error(err))
	}
}
