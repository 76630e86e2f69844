package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketplace/cache"
	"marketplace/config"
	"marketplace/database"
	"marketplace/handlers"
	"marketplace/kafka"
	"marketplace/middleware"
	"marketplace/productclient"
	"marketplace/repository/postgres"
	"marketplace/services"

	"go.uber.org/zap"
)

const idempotencyTTL = 24 * time.Hour

func main() {
	cfg := config.Load("order-service", ":8082")

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

	// Initialize Redis for carts and idempotency keys
	redisClient, err := cache.InitRedis(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize Redis", zap.Error(err))
	}
	defer redisClient.Close()

	// Initialize Kafka producer
	producer, err := kafka.InitProducer(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize Kafka producer", zap.Error(err))
	}
	defer producer.Close()

	// Initialize OpenTelemetry
	shutdown, err := middleware.InitTracing(cfg.Service, cfg.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	defer shutdown()

	orderService := services.NewOrderService(
		postgres.NewOrderRepository(db),
		cache.NewCartStore(redisClient),
		productclient.New(cfg.ProductServiceURL, logger),
		kafka.NewPublisher(producer, logger),
		cache.NewIdempotencyStore(redisClient, idempotencyTTL),
		cfg.OrderEventsTopic,
		logger,
	)

	router := handlers.NewRouter(cfg.Service, logger, cfg.AllowedOrigins)
	auth := router.Group("/", middleware.AuthMiddleware(cfg.JWTSecret))
	handlers.NewOrderHandler(orderService, logger).Register(auth)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	logger.Info("Order Service started", zap.String("addr", cfg.HTTPAddr))

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
