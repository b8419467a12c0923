package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"neurochat/internal/config"
	"neurochat/internal/database"
	"neurochat/internal/handlers"
	"neurochat/internal/llm"
	"neurochat/internal/logging"
	"neurochat/internal/middleware"
	"neurochat/internal/models"
	"neurochat/internal/services"
	"neurochat/pkg/auth"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Initialize structured logging (JSON in production, text in dev)
	logging.Init()

	log.Println("🚀 Starting NeuroChat Server...")

	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  No .env file found or error loading it: %v", err)
	}

	// Load configuration
	cfg := config.Load()
	log.Printf("📋 Configuration loaded (Port: %s)", cfg.Port)

	// Connect the record store (memory://, mysql://, mongodb:// or a sqlite path)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	store, err := database.New(ctx, cfg.DatabaseURL)
	cancel()
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer store.Close(context.Background())
	log.Println("✅ Record store connected")

	// Optional Redis pub/sub for cross-device sync events
	var pubsub *services.PubSubService
	if cfg.RedisURL != "" {
		pubsub, err = services.NewPubSubService(cfg.RedisURL)
		if err != nil {
			log.Printf("⚠️ Failed to connect to Redis: %v (sync events disabled)", err)
			pubsub = nil
		} else {
			log.Println("✅ Redis pub/sub connected")
		}
	} else {
		log.Println("⚠️ REDIS_URL not set - sync events disabled")
	}

	// Prometheus metrics
	services.InitMetrics()

	// JWT auth (optional outside production; AuthMiddleware enforces the
	// production requirement)
	var jwtAuth *auth.JWTAuth
	if cfg.JWTSecret != "" {
		jwtAuth, err = auth.NewJWTAuth(cfg.JWTSecret, 24*time.Hour)
		if err != nil {
			log.Fatalf("❌ Failed to initialize JWT auth: %v", err)
		}
		log.Println("✅ JWT authentication enabled")
	}

	// Model catalog
	catalog, err := config.LoadModels(cfg.ModelsFile)
	if err != nil {
		log.Printf("⚠️ Failed to load model catalog from %s: %v (using defaults)", cfg.ModelsFile, err)
		catalog = &models.ModelCatalog{
			Models: []models.ModelInfo{
				{ID: "gpt-4o", Name: "GPT-4o"},
				{ID: "gpt-4o-mini", Name: "GPT-4o mini"},
			},
			DefaultModel: "gpt-4o",
		}
	}

	// Model provider
	var provider llm.Provider
	if cfg.LLMAPIKey != "" {
		provider = llm.NewOpenAIProvider(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMTimeout)
		log.Printf("✅ Model provider configured (%s)", cfg.LLMBaseURL)
	} else {
		provider = llm.StubProvider{}
		log.Println("⚠️ LLM_API_KEY not set - using echo stub provider")
	}

	// Services
	chatService := services.NewChatService(store, pubsub)
	exchangeService := services.NewExchangeService(chatService, store, provider, catalog.DefaultModel, cfg.LLMTimeout)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "NeuroChat v1.0",
		ReadTimeout:  120 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
		BodyLimit:    4 * 1024 * 1024,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New())

	// Prometheus metrics middleware
	prometheus := fiberprometheus.New("neurochat")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)

	// CORS configuration with environment-based origins
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		allowedOrigins = "http://localhost:5173,http://localhost:3000"
		log.Println("⚠️  ALLOWED_ORIGINS not set, using development defaults")
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     "GET,POST,PATCH,DELETE,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization",
		AllowCredentials: allowedOrigins != "*",
	}))

	// Rate limiting: a global per-IP limiter on all API routes, plus a
	// tighter per-user limiter on the exchange endpoint
	rateLimitConfig := middleware.LoadRateLimitConfig()
	app.Use("/api", middleware.GlobalAPIRateLimiter(rateLimitConfig))
	log.Printf("🛡️  Rate limits: API=%d/min, Exchange=%d/min", rateLimitConfig.GlobalAPIMax, rateLimitConfig.ExchangeMax)

	// Handlers
	healthHandler := handlers.NewHealthHandler(store)
	chatHandler := handlers.NewChatHandler(chatService)
	messageHandler := handlers.NewMessageHandler(exchangeService)
	modelHandler := handlers.NewModelHandler(catalog)

	// Routes
	app.Get("/health", healthHandler.Handle)
	app.Get("/api/models", modelHandler.List)

	authRequired := middleware.AuthMiddleware(jwtAuth)
	app.Get("/api/chats", authRequired, chatHandler.List)
	app.Post("/api/chats", authRequired, chatHandler.Create)
	app.Get("/api/chats/:id", authRequired, chatHandler.Get)
	app.Patch("/api/chats/:id", authRequired, chatHandler.Rename)
	app.Delete("/api/chats/:id", authRequired, chatHandler.Delete)
	app.Post("/api/messages", authRequired, middleware.ExchangeRateLimiter(rateLimitConfig), messageHandler.Send)

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("\n🛑 Shutting down server...")

		if pubsub != nil {
			if err := pubsub.Close(); err != nil {
				log.Printf("⚠️ Error stopping PubSub: %v", err)
			}
		}

		if err := app.Shutdown(); err != nil {
			log.Printf("⚠️ Error shutting down server: %v", err)
		}
	}()

	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Failed to start server: %v", err)
	}
}
