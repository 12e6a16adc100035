package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"attune/internal/config"
	"attune/internal/database"
	"attune/internal/handlers"
	"attune/internal/jobs"
	"attune/internal/logging"
	"attune/internal/middleware"
	"attune/internal/services"
	"attune/pkg/auth"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file if present
	if err := godotenv.Load(); err != nil {
		log.Println("ℹ️  No .env file found, using environment variables")
	}

	logging.Init()
	cfg := config.Load()

	// MySQL is the durable preference store; the engine cannot start without it
	if cfg.DatabaseURL == "" {
		log.Fatal("❌ DATABASE_URL is required")
	}
	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("❌ Failed to connect to MySQL: %v", err)
	}
	defer db.Close()

	if err := db.Initialize(); err != nil {
		log.Fatalf("❌ Failed to initialize database schema: %v", err)
	}

	// MongoDB holds the conversation log and interaction attributions
	if cfg.MongoURI == "" {
		log.Fatal("❌ MONGODB_URI is required")
	}
	mongoDB, err := database.NewMongoDB(cfg.MongoURI)
	if err != nil {
		log.Fatalf("❌ Failed to connect to MongoDB: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		mongoDB.Close(ctx)
	}()

	initCtx, cancelInit := context.WithTimeout(context.Background(), 30*time.Second)
	if err := mongoDB.Initialize(initCtx); err != nil {
		cancelInit()
		log.Fatalf("❌ Failed to initialize MongoDB indexes: %v", err)
	}
	cancelInit()

	// Redis is optional; without it cache invalidation stays process-local
	var redisService *services.RedisService
	if cfg.RedisURL != "" {
		redisService, err = services.NewRedisService(cfg.RedisURL)
		if err != nil {
			log.Printf("⚠️  Redis unavailable, cache invalidation is local-only: %v", err)
			redisService = nil
		} else {
			defer redisService.Close()
		}
	} else {
		log.Println("ℹ️  REDIS_URL not set, cache invalidation is local-only")
	}

	// JWT auth (optional in development, enforced by the middleware)
	var jwtAuth *auth.LocalJWTAuth
	if cfg.JWTSecret != "" {
		jwtAuth, err = auth.NewLocalJWTAuth(cfg.JWTSecret, 0)
		if err != nil {
			log.Fatalf("❌ Failed to initialize JWT auth: %v", err)
		}
		log.Println("🔒 JWT authentication enabled")
	}

	// Services
	metrics := services.NewMetrics()

	extractionService := services.NewSignalExtractionService(metrics)
	if cfg.RulesFile != "" {
		if err := extractionService.LoadRulesFile(cfg.RulesFile); err != nil {
			log.Printf("⚠️  Failed to load extraction rules, using built-ins: %v", err)
		}
	}

	storeService := services.NewPreferenceStoreService(db, services.StoreConfig{
		ReinforcementRate: cfg.Learning.ReinforcementRate,
		DecayFactor:       cfg.Learning.DecayFactor,
		ConfidenceFloor:   cfg.Learning.ConfidenceFloor,
	}, metrics)

	cacheService := services.NewPreferenceCacheService(storeService, cfg.Learning.CacheTTL, redisService, metrics)

	conversationLog := services.NewConversationLogService(mongoDB)
	interactionLog := services.NewInteractionLogService(mongoDB)

	analysisConfig := services.DefaultAnalysisConfig()
	analysisConfig.WindowSize = cfg.Learning.AnalysisWindow
	analysisService := services.NewPatternAnalysisService(db, conversationLog, analysisConfig, metrics)

	personalizationService := services.NewPersonalizationService(extractionService, cacheService, conversationLog, interactionLog)
	contextService := services.NewContextService(cacheService, metrics)
	feedbackService := services.NewFeedbackService(interactionLog, cacheService, redisService, metrics)

	// Background workers
	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	if redisService != nil {
		go cacheService.ListenInvalidations(rootCtx)
	}

	stopWatch := make(chan struct{})
	if cfg.RulesFile != "" {
		go func() {
			if err := extractionService.WatchRulesFile(cfg.RulesFile, stopWatch); err != nil {
				log.Printf("⚠️  Rules watcher stopped: %v", err)
			}
		}()
	}

	patternRefresh, err := jobs.NewPatternRefreshJob(conversationLog, analysisService)
	if err != nil {
		log.Fatalf("❌ Failed to create pattern refresh job: %v", err)
	}
	if err := patternRefresh.Start(); err != nil {
		log.Fatalf("❌ Failed to start pattern refresh job: %v", err)
	}

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "Attune v1.0",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
		BodyLimit:    1 * 1024 * 1024, // interactions are text exchanges, 1MB is generous
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New())

	// Prometheus metrics middleware
	prometheus := fiberprometheus.New("attune")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)
	log.Println("📊 Prometheus metrics endpoint enabled at /metrics")

	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		allowedOrigins = "http://localhost:5173,http://localhost:3000"
		log.Println("⚠️  ALLOWED_ORIGINS not set, using development defaults")
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     "GET,POST,DELETE,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization",
		AllowCredentials: allowedOrigins != "*",
	}))

	// Global API rate limiter, first line of defense ahead of the per-user
	// interaction limiter
	app.Use("/api", limiter.New(limiter.Config{
		Max:        120,
		Expiration: time.Minute,
	}))

	// Handlers
	healthHandler := handlers.NewHealthHandler(db, mongoDB, redisService)
	preferenceHandler := handlers.NewPreferenceHandler(cacheService)
	interactionHandler := handlers.NewInteractionHandler(personalizationService)
	contextHandler := handlers.NewContextHandler(contextService)
	feedbackHandler := handlers.NewFeedbackHandler(feedbackService)
	patternHandler := handlers.NewPatternHandler(analysisService)

	// Routes
	app.Get("/health", healthHandler.Handle)

	api := app.Group("/api", middleware.LocalAuthMiddleware(jwtAuth))
	api.Get("/preferences", preferenceHandler.Get)
	api.Delete("/preferences", preferenceHandler.Reset)
	api.Post("/interactions", interactionHandler.Process)
	api.Post("/context", contextHandler.Apply)
	api.Post("/feedback", feedbackHandler.Incorporate)
	api.Get("/patterns", patternHandler.Analyze)

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("\n🛑 Shutting down server...")

		close(stopWatch)
		cancelRoot()

		if err := patternRefresh.Stop(); err != nil {
			log.Printf("⚠️ Error stopping pattern refresh job: %v", err)
		}

		if err := app.Shutdown(); err != nil {
			log.Printf("⚠️ Error shutting down server: %v", err)
		}
	}()

	log.Printf("🚀 Attune listening on port %s", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Failed to start server: %v", err)
	}
}
