package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/scalpel-app/scalpel/internal/archive"
	"github.com/scalpel-app/scalpel/internal/config"
	"github.com/scalpel-app/scalpel/internal/handler"
	"github.com/scalpel-app/scalpel/internal/repository"
	"github.com/scalpel-app/scalpel/internal/service"
	"github.com/scalpel-app/scalpel/pkg/database"
	"github.com/scalpel-app/scalpel/pkg/logger"
)

func main() {
	// Initialize structured logger
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logFormat := os.Getenv("LOG_FORMAT")
	if logFormat == "" {
		logFormat = "json"
	}
	logger.Init(logger.Config{
		Level:  logLevel,
		Format: logFormat,
		Output: os.Stdout,
	})

	// Load configuration
	cfg := config.Load()

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("Configuration error")
	}

	logger.Info().
		Str("bind_address", cfg.Server.BindAddress).
		Str("port", cfg.Server.Port).
		Str("log_level", logLevel).
		Msg("Starting Scalpel server")

	// Initialize database
	db, err := database.Initialize(cfg.Database.Path)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize database")
	}
	logger.Info().Str("path", cfg.Database.Path).Msg("Database initialized")

	if err := database.InitSchema(db); err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize schema")
	}
	logger.Info().Msg("Database schema initialized")

	// Initialize repositories
	userRepo := repository.NewUserRepository(db)
	webhookRepo := repository.NewWebhookEventRepository(db)

	// Initialize services
	authSvc := service.NewAuthService(userRepo, cfg)
	quotaSvc := service.NewQuotaService(userRepo)
	planSvc := service.NewPlanService(userRepo, webhookRepo, cfg)
	validator := service.NewUploadValidator(cfg)
	processSvc := service.NewProcessService(validator, quotaSvc)

	// Initialize handlers
	authHandler := handler.NewAuthHandler(authSvc, quotaSvc, cfg)
	planHandler := handler.NewPlanHandler(planSvc)
	processHandler := handler.NewProcessHandler(processSvc, archive.NewAssembler())
	webhookHandler := handler.NewWebhookHandler(planSvc, cfg)

	// Create Fiber app. The body limit covers a full batch of maximum-size
	// files plus multipart framing.
	uploadBodyLimit := int(cfg.Upload.MaxFileSizeBytes)*cfg.Upload.MaxFilesPerUpload + 1024*1024
	app := fiber.New(fiber.Config{
		BodyLimit:               uploadBodyLimit,
		DisableKeepalive:        false,
		ReadTimeout:             60 * time.Second,
		WriteTimeout:            120 * time.Second,
		IdleTimeout:             60 * time.Second,
		ProxyHeader:             fiber.HeaderXForwardedFor,
		EnableTrustedProxyCheck: true,
		TrustedProxies:          cfg.Server.TrustedProxies,
		EnableIPValidation:      true,
	})

	logger.Info().
		Strs("trusted_proxies", cfg.Server.TrustedProxies).
		Msg("Trusted proxy configuration loaded")

	// Middleware
	app.Use(recover.New())
	app.Use(compress.New(compress.Config{
		Level: compress.LevelDefault,
		// The archive response is already deflate-compressed and streamed.
		Next: func(c *fiber.Ctx) bool {
			return c.Path() == "/process-files"
		},
	}))
	app.Use(handler.SecurityHeadersMiddleware())
	app.Use(handler.RequestIDMiddleware())
	app.Use(handler.MetricsMiddleware())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.AllowOrigins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Request-ID, X-CSRF-Token",
		AllowMethods:     "GET, POST, OPTIONS",
		AllowCredentials: true,
		MaxAge:           3600,
	}))
	app.Use(logger.Middleware())

	// Rate limiters, DB-backed so counters survive restarts and apply
	// across replicas. Auth runs before authentication, so it keys on IP
	// alone; promo and processing key on IP plus user.
	generalLimiter := handler.NewPersistentRateLimiter(db, "general", 200, 1*time.Minute)
	authLimiter := handler.NewPersistentRateLimiter(db, "auth", 10, 15*time.Minute)
	promoLimiter := handler.NewPersistentRateLimiterWithKey(db, "promo", 5, 1*time.Minute, handler.IPAndUserKey)
	processLimiter := handler.NewPersistentRateLimiterWithKey(db, "process", 5, 1*time.Minute, handler.IPAndUserKey)

	app.Use(generalLimiter.Middleware())

	jsonBodyLimit := handler.BodyLimitMiddleware(64 * 1024)

	// Auth routes
	app.Post("/register", jsonBodyLimit, authLimiter.Middleware(), authHandler.Register)
	app.Post("/login", jsonBodyLimit, authLimiter.Middleware(), authHandler.Login)
	app.Post("/logout", jsonBodyLimit, handler.CSRFMiddleware(), authHandler.Logout)
	app.Get("/account", handler.AuthMiddleware(authSvc), handler.CSRFMiddleware(), authHandler.GetAccount)
	app.Post("/check-plan", jsonBodyLimit, handler.AuthMiddleware(authSvc), handler.CSRFMiddleware(), authHandler.CheckPlan)

	// Plan routes
	app.Post("/redeem-promo", jsonBodyLimit, handler.AuthMiddleware(authSvc), handler.CSRFMiddleware(), promoLimiter.Middleware(), planHandler.RedeemPromo)

	// Batch processing
	app.Post("/process-files", handler.AuthMiddleware(authSvc), handler.CSRFMiddleware(), processLimiter.Middleware(), processHandler.Process)

	// Payment webhook: authenticated by signature, not by session.
	app.Post("/webhook/razorpay", webhookHandler.HandleRazorpay)

	// Health check handler
	healthHandler := handler.NewHealthHandler(db)
	app.Get("/healthz", healthHandler.Liveness)
	app.Get("/health/ready", healthHandler.Readiness)

	// Metrics endpoint
	metricsHandler := handler.NewMetricsHandler()
	if cfg.Observability.MetricsEnabled {
		if cfg.IsProduction {
			app.Get("/metrics", handler.BearerTokenMiddleware(cfg.Observability.MetricsToken), metricsHandler.Handler())
		} else {
			app.Get("/metrics", metricsHandler.Handler())
		}
	} else {
		logger.Info().Msg("Metrics endpoint disabled")
	}

	// Start server in goroutine
	go func() {
		addr := net.JoinHostPort(cfg.Server.BindAddress, cfg.Server.Port)
		logger.Info().
			Str("address", addr).
			Bool("metrics_enabled", cfg.Observability.MetricsEnabled).
			Msg("HTTP server listening")
		if err := app.Listen(addr); err != nil {
			logger.Error().Err(err).Msg("Server stopped")
		}
	}()

	// Graceful shutdown setup
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	logger.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Info().Msg("Stopping background jobs...")
	generalLimiter.Stop()
	authLimiter.Stop()
	promoLimiter.Stop()
	processLimiter.Stop()

	logger.Info().Msg("Shutting down HTTP server...")
	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error().Err(err).Msg("Error during shutdown")
	}

	logger.Info().Msg("Closing database connection...")
	if err := db.Close(); err != nil {
		logger.Error().Err(err).Msg("Error closing database")
	}

	logger.Info().Msg("Server stopped gracefully")
}
