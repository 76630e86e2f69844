package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketplace/cache"
	"marketplace/circuitbreaker"
	"marketplace/config"
	"marketplace/database"
	"marketplace/handlers"
	"marketplace/middleware"
	"marketplace/repository"
	"marketplace/repository/postgres"
	"marketplace/services"

	"go.uber.org/zap"
)

const productCacheTTL = 5 * time.Minute

func main() {
	cfg := config.Load("product-service", ":8081")

	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Initialize database
	db, err := database.InitDB(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	// Initialize Redis cache
	redisClient, err := cache.InitRedis(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize Redis", zap.Error(err))
	}
	defer redisClient.Close()

	// Initialize OpenTelemetry
	shutdown, err := middleware.InitTracing(cfg.Service, cfg.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	defer shutdown()

	breaker := circuitbreaker.NewCircuitBreaker(5, 30*time.Second,
		circuitbreaker.WithFailurePredicate(func(err error) bool {
			return !errors.Is(err, repository.ErrNotFound) && !errors.Is(err, context.Canceled)
		}))

	productService := services.NewProductService(
		postgres.NewProductRepository(db),
		cache.NewProductCache(redisClient, productCacheTTL),
		breaker,
		logger,
	)

	router := handlers.NewRouter(cfg.Service, logger, cfg.AllowedOrigins)
	public := router.Group("/")
	vendor := router.Group("/", middleware.AuthMiddleware(cfg.JWTSecret), middleware.RequireRole(middleware.RoleVendor))
	handlers.NewProductHandler(productService, logger).Register(public, vendor)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	logger.Info("Product Service started", zap.String("addr", cfg.HTTPAddr))

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
