package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ruchikakengal/AI-Powered-Regulatory-Compilance-Checker/config"
	"github.com/ruchikakengal/AI-Powered-Regulatory-Compilance-Checker/handler"
	"github.com/ruchikakengal/AI-Powered-Regulatory-Compilance-Checker/middleware"
	"github.com/ruchikakengal/AI-Powered-Regulatory-Compilance-Checker/pkg/logger"
	"github.com/ruchikakengal/AI-Powered-Regulatory-Compilance-Checker/service"
)

func main() {
	// Load configuration
	cfg, err := config.Load("config.yaml")
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize logger
	logger.Init(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})

	slog.Info("configuration loaded successfully")

	// Storage
	store, err := service.NewStore(&cfg.Store)
	if err != nil {
		slog.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// Document archive and PDF extraction are optional; without them the
	// service still ingests text and markdown uploads
	var minioSvc *service.MinioService
	if cfg.Minio.Endpoint != "" {
		minioSvc, err = service.NewMinioService(&cfg.Minio)
		if err != nil {
			slog.Error("failed to initialize MINIO service", "error", err)
			os.Exit(1)
		}
		if err := minioSvc.EnsureBucket(context.Background()); err != nil {
			slog.Error("failed to ensure MINIO bucket", "error", err)
			os.Exit(1)
		}
	}

	var extractSvc *service.ExtractService
	if cfg.Extract.APIURL != "" {
		extractSvc = service.NewExtractService(&cfg.Extract)
	}

	// Compliance pipeline
	normalizer := service.NewNormalizer()
	catalog := service.NewCatalog()
	scorer := service.NewScorer(&cfg.Scoring)
	notifier := service.NewNotifier(&cfg.Notifier)
	defer notifier.Stop()

	var recommender *service.Recommender
	if cfg.LLM.APIKey != "" {
		recommender = service.NewRecommender(&cfg.LLM, store, service.NewChatClient(&cfg.LLM), notifier)
		recommender.Start()
		defer recommender.Stop()
	} else {
		slog.Warn("no LLM API key configured, findings will carry no recommendations")
	}

	evaluator := service.NewEvaluator(&cfg.Evaluator, store, catalog, scorer, recommender, notifier)
	evaluator.Start()
	defer evaluator.Stop()

	// Regulatory update monitor
	var sources []service.FeedSource
	if cfg.Rules.FeedURL != "" {
		sources = append(sources, service.NewHTTPFeedSource(&cfg.Rules))
	}
	monitor := service.NewMonitor(&cfg.Rules, store, catalog, evaluator, sources...)
	if err := monitor.Reload(context.Background()); err != nil {
		slog.Error("failed to load rule catalog", "error", err)
		os.Exit(1)
	}
	monitor.Start()
	defer monitor.Stop()

	// Handlers
	authHandler := handler.NewAuthHandler(cfg)
	contractHandler := handler.NewContractHandler(store, minioSvc, extractSvc, normalizer, evaluator, notifier, &cfg.Extract)
	findingHandler := handler.NewFindingHandler(store)
	ruleHandler := handler.NewRuleHandler(store, monitor, catalog)

	// Setup Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New() // Use New() instead of Default() to avoid default middleware

	router.Use(middleware.RequestID())                 // Request ID for tracing
	router.Use(middleware.Recovery())                  // Panic recovery
	router.Use(middleware.RequestLogger())             // Access logging
	router.Use(corsMiddleware())                       // CORS
	router.Use(middleware.RateLimit(100, time.Minute)) // Rate limiting: 100 requests per minute

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"rules":     catalog.Size(),
			"timestamp": time.Now().Format(time.RFC3339),
		})
	})

	// Public routes
	api := router.Group("/api/v1")
	{
		api.POST("/auth/login", authHandler.Login)
		if extractSvc != nil {
			callbackHandler := handler.NewCallbackHandler(extractSvc, store, contractHandler)
			api.POST("/callback/extract", callbackHandler.HandleExtract)
		}
	}

	// Protected routes
	protected := api.Group("/")
	protected.Use(middleware.AuthMiddleware(&cfg.Auth))
	{
		protected.GET("/auth/me", authHandler.GetCurrentUser)

		protected.POST("/contracts", contractHandler.Upload)
		protected.GET("/contracts", contractHandler.List)
		protected.GET("/contracts/:id", contractHandler.Get)
		protected.GET("/contracts/:id/status", contractHandler.GetStatus)
		protected.GET("/contracts/:id/clauses", contractHandler.GetClauses)
		protected.GET("/contracts/:id/findings", contractHandler.GetFindings)
		protected.POST("/contracts/:id/activate", contractHandler.Activate)
		protected.POST("/contracts/:id/archive", contractHandler.Archive)
		protected.POST("/contracts/:id/amend", contractHandler.Amend)
		protected.POST("/contracts/:id/evaluate", contractHandler.Evaluate)
		protected.DELETE("/contracts/:id", contractHandler.Delete)

		protected.GET("/findings", findingHandler.List)
		protected.GET("/findings/:id", findingHandler.Get)
		protected.POST("/findings/:id/resolve", findingHandler.Resolve)
		protected.POST("/findings/:id/dismiss", findingHandler.Dismiss)

		protected.GET("/rules", ruleHandler.List)
		protected.GET("/rules/:id", ruleHandler.Get)
		protected.POST("/rules", middleware.RequireRole("admin"), ruleHandler.Publish)
	}

	// Create server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		slog.Info("server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("server exited gracefully")
}

// corsMiddleware handles CORS headers
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "X-Request-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
